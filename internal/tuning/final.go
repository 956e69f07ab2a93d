package tuning

import (
	"context"
	"fmt"

	"llbp-sim/internal/bp/llbp"
)

// TraceComparison is the MPKI of one trace under the default and a tuned
// configuration.
type TraceComparison struct {
	Trace       string
	Baseline    float64
	Tuned       float64
	Improvement float64 // percent MPKI reduction
}

// Report compares a tuned configuration against the baseline trace by trace.
type Report struct {
	Config              llbp.Config
	Traces              []TraceComparison
	WeightedImprovement float64
	MeanMPKI            float64
	// NewBaselines holds baselines measured because none was known.
	NewBaselines map[string]float64
}

// Compare builds a report over the traces of mpki. Traces without a positive
// baseline are left out.
func Compare(baseline, mpki map[string]float64) Report {
	r := Report{
		WeightedImprovement: WeightedImprovement(baseline, mpki),
		MeanMPKI:            MeanMPKI(mpki),
	}
	for _, trace := range sortedTraces(mpki) {
		b, ok := baseline[trace]
		if !ok || b <= 0 {
			continue
		}
		r.Traces = append(r.Traces, TraceComparison{
			Trace:       trace,
			Baseline:    b,
			Tuned:       mpki[trace],
			Improvement: (b - mpki[trace]) / b * 100,
		})
	}
	return r
}

// FinalEvaluation evaluates conf once and compares it with baseline. When the
// evaluator reports traces baseline does not cover, the default configuration
// is evaluated as well and its MPKI fills the gaps.
func FinalEvaluation(ctx context.Context, ev Evaluator, conf llbp.Config, baseline map[string]float64) (Report, error) {
	mpki, err := ev.Evaluate(ctx, conf)
	if err != nil {
		return Report{}, fmt.Errorf("final evaluation: %w", err)
	}

	merged := make(map[string]float64, len(baseline))
	for t, v := range baseline {
		merged[t] = v
	}
	var fresh map[string]float64
	for _, trace := range sortedTraces(mpki) {
		if _, ok := merged[trace]; ok {
			continue
		}
		if fresh == nil {
			if fresh, err = Baseline(ctx, ev); err != nil {
				return Report{}, err
			}
		}
		if v, ok := fresh[trace]; ok {
			merged[trace] = v
		}
	}

	r := Compare(merged, mpki)
	r.Config = conf
	if fresh != nil {
		r.NewBaselines = make(map[string]float64)
		for _, tc := range r.Traces {
			if _, ok := baseline[tc.Trace]; !ok {
				r.NewBaselines[tc.Trace] = tc.Baseline
			}
		}
	}
	return r, nil
}
