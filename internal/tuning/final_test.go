package tuning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"llbp-sim/internal/bp/llbp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tracesEvaluator reports fixed MPKI per trace, lower for the tuned geometry.
type tracesEvaluator struct {
	calls []llbp.Config
}

func (e *tracesEvaluator) Evaluate(ctx context.Context, conf llbp.Config) (map[string]float64, error) {
	e.calls = append(e.calls, conf)
	if conf == llbp.DefaultConfig() {
		return map[string]float64{"spring": 4, "chirper": 10}, nil
	}
	return map[string]float64{"spring": 3, "chirper": 11}, nil
}

func TestCompare(t *testing.T) {
	r := Compare(
		map[string]float64{"a": 10, "b": 2, "zero": 0},
		map[string]float64{"a": 8, "b": 3, "zero": 1, "c": 5},
	)
	require.Len(t, r.Traces, 2)
	assert.Equal(t, TraceComparison{Trace: "a", Baseline: 10, Tuned: 8, Improvement: 20}, r.Traces[0])
	assert.Equal(t, "b", r.Traces[1].Trace)
	assert.InDelta(t, -50, r.Traces[1].Improvement, 1e-9)
	assert.InDelta(t, (20.0*10-50.0*2)/12, r.WeightedImprovement, 1e-9)
	assert.InDelta(t, 17.0/4, r.MeanMPKI, 1e-9)
}

func TestFinalEvaluation_StoredBaseline(t *testing.T) {
	ev := &tracesEvaluator{}
	conf := llbp.DefaultConfig()
	conf.PBSize = 128

	r, err := FinalEvaluation(context.Background(), ev, conf, map[string]float64{"spring": 4, "chirper": 10})
	require.NoError(t, err)
	assert.Len(t, ev.calls, 1)
	assert.Nil(t, r.NewBaselines)
	assert.Equal(t, conf, r.Config)
	require.Len(t, r.Traces, 2)
	assert.Equal(t, "chirper", r.Traces[0].Trace)
	assert.InDelta(t, -10, r.Traces[0].Improvement, 1e-9)
	assert.InDelta(t, 25, r.Traces[1].Improvement, 1e-9)
}

func TestFinalEvaluation_MeasuresMissingBaseline(t *testing.T) {
	ev := &tracesEvaluator{}
	conf := llbp.DefaultConfig()
	conf.CtrWidth = 5

	r, err := FinalEvaluation(context.Background(), ev, conf, map[string]float64{"spring": 4})
	require.NoError(t, err)
	require.Len(t, ev.calls, 2)
	assert.Equal(t, llbp.DefaultConfig(), ev.calls[1])
	assert.Equal(t, map[string]float64{"chirper": 10}, r.NewBaselines)
	assert.Len(t, r.Traces, 2)
}

func TestFinalEvaluation_EvaluatorError(t *testing.T) {
	_, err := FinalEvaluation(context.Background(), &fakeEvaluator{fail: func(llbp.Config) bool { return true }},
		llbp.DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestHTTPEvaluator_TraceSet(t *testing.T) {
	var got evaluateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mpki": {"spring": 2.5}}`))
	}))
	defer srv.Close()

	ev := NewHTTPEvaluator(srv.URL, 1, 2, 5*time.Second).SetTraceSet("test")
	_, err := ev.Evaluate(context.Background(), llbp.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "test", got.TraceSet)
}
