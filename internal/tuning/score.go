package tuning

import "sort"

// FailurePenalty is the MPKI charged to a trace the evaluator could not run
// and to every trace of an invalid candidate.
const FailurePenalty = 1e4

// WeightedImprovement averages the percent MPKI reduction over the baseline,
// weighting each trace by its baseline MPKI. Traces without a positive
// baseline are skipped. It returns 0 when no trace can be weighted.
func WeightedImprovement(baseline, mpki map[string]float64) float64 {
	var weighted, total float64
	for _, trace := range sortedTraces(mpki) {
		b, ok := baseline[trace]
		if !ok || b <= 0 {
			continue
		}
		improvement := (b - mpki[trace]) / b * 100
		weighted += improvement * b
		total += b
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// MeanMPKI is the unweighted mean over all traces, or FailurePenalty when
// there are none.
func MeanMPKI(mpki map[string]float64) float64 {
	if len(mpki) == 0 {
		return FailurePenalty
	}
	var sum float64
	for _, trace := range sortedTraces(mpki) {
		sum += mpki[trace]
	}
	return sum / float64(len(mpki))
}

// penalised charges FailurePenalty to every trace.
func penalised(traces []string) map[string]float64 {
	out := make(map[string]float64, len(traces))
	for _, t := range traces {
		out[t] = FailurePenalty
	}
	return out
}

// sortedTraces fixes the summation order so scores are reproducible.
func sortedTraces(m map[string]float64) []string {
	traces := make([]string, 0, len(m))
	for t := range m {
		traces = append(traces, t)
	}
	sort.Strings(traces)
	return traces
}
