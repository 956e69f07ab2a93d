package metrics

import (
	"errors"
	"time"

	"llbp-sim/internal/bp"
	"llbp-sim/internal/common"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumented counts predictions, updates and mispredictions of the wrapped
// predictor.
type Instrumented struct {
	inner          bp.Predictor
	predictions    prometheus.Counter
	mispredictions prometheus.Counter
	updates        prometheus.Counter
}

// InstrumentedTiming is an Instrumented predictor that keeps the timing
// capability of the wrapped predictor.
type InstrumentedTiming struct {
	*Instrumented
	timing bp.TimingReporter
}

// Instrument wraps p so its traffic is counted under the given kind label.
func Instrument(p bp.Predictor, m *Metrics, kind string) bp.Predictor {
	in := &Instrumented{
		inner:          p,
		predictions:    m.Predictions.WithLabelValues(kind),
		mispredictions: m.Mispredictions.WithLabelValues(kind),
		updates:        m.Updates.WithLabelValues(kind),
	}
	if tr, ok := bp.SupportsTiming(p); ok {
		return &InstrumentedTiming{Instrumented: in, timing: tr}
	}
	return in
}

// Unwrap returns the wrapped predictor.
func (i *Instrumented) Unwrap() bp.Predictor {
	return i.inner
}

func (i *Instrumented) Predict(pc uint64) bool {
	i.predictions.Inc()
	return i.inner.Predict(pc)
}

func (i *Instrumented) Update(pc uint64, taken bool, br common.Branch) {
	if br.IsConditional() && i.inner.Predict(pc) != taken {
		i.mispredictions.Inc()
	}
	i.updates.Inc()
	i.inner.Update(pc, taken, br)
}

func (t *InstrumentedTiming) TimingStats() bp.TimingStats {
	return t.timing.TimingStats()
}

// Wrapper adapts Metrics to the small recorder interfaces of other packages.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

// ConstructionResult records the outcome of a factory call.
func (w *Wrapper) ConstructionResult(kind string, err error) {
	switch {
	case err == nil:
		w.m.Constructions.WithLabelValues(kind).Inc()
	case errors.Is(err, bp.ErrUnknownPredictor):
		w.m.ConstructionErrors.WithLabelValues("unknown_name").Inc()
	case errors.Is(err, bp.ErrInvalidConfig):
		w.m.ConstructionErrors.WithLabelValues("invalid_config").Inc()
	default:
		w.m.ConstructionErrors.WithLabelValues("other").Inc()
	}
}

func (w *Wrapper) EvaluationObserve(d time.Duration, failed bool) {
	w.m.TuningEvaluations.Inc()
	w.m.TuningEvaluationDuration.Observe(d.Seconds())
	if failed {
		w.m.TuningFailures.Inc()
	}
}

func (w *Wrapper) BestImprovementSet(v float64) {
	w.m.TuningBestImprovement.Set(v)
}
