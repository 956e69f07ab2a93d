// Package bp selects and constructs branch predictors.
//
// Every predictor is driven through the Predictor interface. The factory maps a
// predictor name, and optionally a configuration document, to a freshly built
// instance; optional capabilities such as timing statistics are discovered with
// type assertions rather than from the name.
package bp

import (
	"llbp-sim/internal/bp/llbp"
	"llbp-sim/internal/common"
)

// Predictor is the capability set every branch predictor variant provides.
type Predictor interface {
	// Predict returns the predicted direction of the conditional branch at pc.
	// It does not change predictor state and may be called repeatedly.
	Predict(pc uint64) bool

	// Update trains the predictor with a retired branch. It must be called at
	// most once per branch instance, in retirement order. Non-conditional
	// branches only advance the histories.
	Update(pc uint64, taken bool, br common.Branch)
}

// TimingStats are the counters reported by timing-aware predictors.
type TimingStats = llbp.TimingStats

// TimingReporter marks predictors that model pattern access latency.
type TimingReporter interface {
	TimingStats() TimingStats
}

// SupportsTiming reports whether p exposes timing statistics.
func SupportsTiming(p Predictor) (TimingReporter, bool) {
	tr, ok := p.(TimingReporter)
	return tr, ok
}

type configured interface {
	Config() llbp.Config
}

type wrapper interface {
	Unwrap() Predictor
}

// ConfigOf returns the bound LLBP configuration of a configurable predictor,
// looking through wrappers that expose Unwrap.
func ConfigOf(p Predictor) (llbp.Config, bool) {
	for p != nil {
		if c, ok := p.(configured); ok {
			return c.Config(), true
		}
		w, ok := p.(wrapper)
		if !ok {
			break
		}
		p = w.Unwrap()
	}
	return llbp.Config{}, false
}
