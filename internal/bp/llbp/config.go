package llbp

import "fmt"

// Config holds the tunable LLBP geometry. The yaml keys are the names used in
// configuration documents.
type Config struct {
	NumPatterns     int `yaml:"numPatterns" json:"numPatterns"`
	NumContexts     int `yaml:"numContexts" json:"numContexts"`
	CtxAssoc        int `yaml:"ctxAssoc" json:"ctxAssoc"`
	PtrnAssoc       int `yaml:"ptrnAssoc" json:"ptrnAssoc"`
	TTWidth         int `yaml:"TTWidth" json:"TTWidth"`
	CTWidth         int `yaml:"CTWidth" json:"CTWidth"`
	PBSize          int `yaml:"pbSize" json:"pbSize"`
	PBAssoc         int `yaml:"pbAssoc" json:"pbAssoc"`
	CtrWidth        int `yaml:"CtrWidth" json:"CtrWidth"`
	ReplCtrWidth    int `yaml:"ReplCtrWidth" json:"ReplCtrWidth"`
	CtxReplCtrWidth int `yaml:"CtxReplCtrWidth" json:"CtxReplCtrWidth"`
	AccessDelay     int `yaml:"accessDelay" json:"accessDelay"`
}

// RequiredKeys lists the document keys that must be present when binding a
// configuration. accessDelay is optional and keeps its default.
var RequiredKeys = []string{
	"numPatterns",
	"numContexts",
	"ctxAssoc",
	"ptrnAssoc",
	"TTWidth",
	"CTWidth",
	"pbSize",
	"pbAssoc",
	"CtrWidth",
	"ReplCtrWidth",
	"CtxReplCtrWidth",
}

// OptionalKeys lists the document keys that may be left out.
var OptionalKeys = []string{"accessDelay"}

// DefaultConfig returns the reference 64KB-class LLBP parameters.
func DefaultConfig() Config {
	return Config{
		NumPatterns:     16,
		NumContexts:     4096,
		CtxAssoc:        8,
		PtrnAssoc:       4,
		TTWidth:         13,
		CTWidth:         14,
		PBSize:          64,
		PBAssoc:         4,
		CtrWidth:        3,
		ReplCtrWidth:    16,
		CtxReplCtrWidth: 2,
		AccessDelay:     5,
	}
}

// Validate rejects geometries the structures cannot be built from.
func (c Config) Validate() error {
	if err := setAssoc("numContexts", c.NumContexts, "ctxAssoc", c.CtxAssoc); err != nil {
		return err
	}
	if err := setAssoc("numPatterns", c.NumPatterns, "ptrnAssoc", c.PtrnAssoc); err != nil {
		return err
	}
	if err := setAssoc("pbSize", c.PBSize, "pbAssoc", c.PBAssoc); err != nil {
		return err
	}
	for _, w := range []struct {
		name string
		v    int
	}{
		{"TTWidth", c.TTWidth},
		{"CTWidth", c.CTWidth},
		{"CtrWidth", c.CtrWidth},
		{"ReplCtrWidth", c.ReplCtrWidth},
		{"CtxReplCtrWidth", c.CtxReplCtrWidth},
	} {
		if w.v < 1 || w.v > 32 {
			return fmt.Errorf("%s must be between 1 and 32, got %d", w.name, w.v)
		}
	}
	if c.AccessDelay < 0 {
		return fmt.Errorf("accessDelay must not be negative, got %d", c.AccessDelay)
	}
	return nil
}

func setAssoc(sizeName string, size int, assocName string, assoc int) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got %d", sizeName, size)
	}
	if assoc <= 0 || assoc > size {
		return fmt.Errorf("%s must be between 1 and %s (%d), got %d", assocName, sizeName, size, assoc)
	}
	if size%assoc != 0 {
		return fmt.Errorf("%s (%d) must be a multiple of %s (%d)", sizeName, size, assocName, assoc)
	}
	return nil
}
