package bp

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPredictor matches errors for names outside the known kinds.
	ErrUnknownPredictor = errors.New("unknown branch predictor")
	// ErrInvalidConfig matches errors binding a configuration document.
	ErrInvalidConfig = errors.New("invalid predictor configuration")
)

// UnknownPredictorError reports a predictor name that is not a Kind.
type UnknownPredictorError struct {
	Name string
}

func (e *UnknownPredictorError) Error() string {
	return "Wrong BP name: " + e.Name
}

func (e *UnknownPredictorError) Is(target error) bool {
	return target == ErrUnknownPredictor
}

// ConfigError reports a configuration document that could not be bound.
type ConfigError struct {
	Kind Kind
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: bad configuration: %v", e.Kind, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
