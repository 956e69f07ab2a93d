package bp

import (
	"fmt"
	"strings"

	"llbp-sim/internal/bp/llbp"

	"github.com/rs/zerolog/log"
)

// CreateBP builds the named predictor with its built-in defaults. Unknown
// names return an *UnknownPredictorError.
func CreateBP(name string) (Predictor, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	return create(kind)
}

// CreateBPWithConfig builds the named predictor and binds doc into its
// configuration when the kind is configurable. Kinds that take no
// configuration ignore doc and are built with their defaults, as is every
// kind when doc is nil.
func CreateBPWithConfig(name string, doc *Document) (Predictor, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return create(kind)
	}
	if !kind.Configurable() {
		log.Debug().
			Str("predictor", name).
			Strs("keys", doc.Keys()).
			Msg("Predictor takes no configuration, document ignored")
		return create(kind)
	}

	conf, err := BindConfig(kind, doc)
	if err != nil {
		return nil, err
	}
	p, err := variants[kind].configure(conf)
	if err != nil {
		return nil, &ConfigError{Kind: kind, Err: err}
	}
	log.Debug().Str("predictor", name).Interface("config", conf).Msg("Predictor configured")
	return p, nil
}

// BindConfig decodes doc into the configuration of a configurable kind.
// Missing required keys, mistyped values and impossible geometries fail with
// a *ConfigError.
func BindConfig(kind Kind, doc *Document) (llbp.Config, error) {
	if !kind.Configurable() {
		return llbp.Config{}, &ConfigError{Kind: kind, Err: fmt.Errorf("predictor %s takes no configuration", kind)}
	}

	var missing []string
	for _, key := range llbp.RequiredKeys {
		if !doc.Has(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return llbp.Config{}, &ConfigError{
			Kind: kind,
			Err:  fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")),
		}
	}

	// yaml.v3 truncates floats into int fields, so integers are checked on
	// the nodes before decoding.
	for _, key := range append(append([]string(nil), llbp.RequiredKeys...), llbp.OptionalKeys...) {
		if doc.Present(key) && !doc.IsInt(key) {
			return llbp.Config{}, &ConfigError{
				Kind: kind,
				Err:  fmt.Errorf("%s must be an integer, got %s", key, doc.valueTag(key)),
			}
		}
	}

	conf := llbp.DefaultConfig()
	if err := doc.Decode(&conf); err != nil {
		return llbp.Config{}, &ConfigError{Kind: kind, Err: fmt.Errorf("decode: %w", err)}
	}
	if err := conf.Validate(); err != nil {
		return llbp.Config{}, &ConfigError{Kind: kind, Err: err}
	}
	return conf, nil
}

func create(kind Kind) (Predictor, error) {
	p, err := variants[kind].build()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", kind, err)
	}
	return p, nil
}
