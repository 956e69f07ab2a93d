package bp

import (
	"llbp-sim/internal/bp/llbp"
	"llbp-sim/internal/bp/sc"
	"llbp-sim/internal/bp/tage"
	"llbp-sim/internal/common"
)

// Kind identifies one concrete predictor variant.
type Kind int

const (
	Tage64k Kind = iota
	Tage64kSCL
	Tage512kSCL
	LLBP
	LLBPTiming

	numKinds
)

type variant struct {
	name      string
	build     func() (Predictor, error)
	configure func(llbp.Config) (Predictor, error) // nil when the variant takes no configuration
}

// variants is indexed by Kind; its length pins the table to the enumeration.
var variants = [numKinds]variant{
	Tage64k: {
		name:  common.PredictorTage64k,
		build: newTage64k,
	},
	Tage64kSCL: {
		name:  common.PredictorTage64kSCL,
		build: func() (Predictor, error) { return sc.New64K(), nil },
	},
	Tage512kSCL: {
		name:  common.PredictorTage512kSCL,
		build: func() (Predictor, error) { return sc.New512K(), nil },
	},
	LLBP: {
		name:      common.PredictorLLBP,
		build:     func() (Predictor, error) { return newLLBP(llbp.DefaultConfig()) },
		configure: newLLBP,
	},
	LLBPTiming: {
		name:      common.PredictorLLBPTiming,
		build:     func() (Predictor, error) { return newLLBPTiming(llbp.DefaultConfig()) },
		configure: newLLBPTiming,
	},
}

// The constructors below return a nil interface on error, never a typed nil.

func newTage64k() (Predictor, error) {
	p, err := tage.New(tage.Default64K())
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newLLBP(c llbp.Config) (Predictor, error) {
	p, err := llbp.New(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newLLBPTiming(c llbp.Config) (Predictor, error) {
	p, err := llbp.NewTiming(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ParseKind resolves a predictor name. Matching is exact and case-sensitive.
func ParseKind(name string) (Kind, error) {
	for k := Kind(0); k < numKinds; k++ {
		if variants[k].name == name {
			return k, nil
		}
	}
	return 0, &UnknownPredictorError{Name: name}
}

// Kinds returns every known kind in table order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k Kind) valid() bool {
	return k >= 0 && k < numKinds
}

func (k Kind) String() string {
	if !k.valid() {
		return "unknown"
	}
	return variants[k].name
}

// Configurable reports whether the kind binds a configuration document.
func (k Kind) Configurable() bool {
	return k.valid() && variants[k].configure != nil
}
