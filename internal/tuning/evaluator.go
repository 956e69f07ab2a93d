package tuning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"llbp-sim/internal/bp/llbp"

	"github.com/go-resty/resty/v2"
)

// Evaluator runs a configuration over the training traces and reports the
// MPKI of each trace.
type Evaluator interface {
	Evaluate(ctx context.Context, conf llbp.Config) (map[string]float64, error)
}

// HTTPEvaluator submits configurations to a remote simulation service.
type HTTPEvaluator struct {
	base         string
	warmup       int64
	instructions int64
	traceSet     string
	rest         *resty.Client
}

type evaluateRequest struct {
	Config       llbp.Config `json:"config"`
	Warmup       int64       `json:"warmup"`
	Instructions int64       `json:"instructions"`
	TraceSet     string      `json:"traceSet,omitempty"`
}

// evaluateResponse carries a null MPKI for every trace the simulation failed on.
type evaluateResponse struct {
	MPKI  map[string]*float64 `json:"mpki"`
	Error string              `json:"error"`
}

func NewHTTPEvaluator(base string, warmup, instructions int64, timeout time.Duration) *HTTPEvaluator {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Minute)
	}
	r.SetHeader("Accept", "application/json")
	return &HTTPEvaluator{
		base:         strings.TrimRight(base, "/"),
		warmup:       warmup,
		instructions: instructions,
		rest:         r,
	}
}

// SetTraceSet selects a named trace set on the service, such as held-out test
// workloads. Empty means the service default.
func (e *HTTPEvaluator) SetTraceSet(name string) *HTTPEvaluator {
	e.traceSet = name
	return e
}

func (e *HTTPEvaluator) Evaluate(ctx context.Context, conf llbp.Config) (map[string]float64, error) {
	resp := &evaluateResponse{}
	r, err := e.rest.R().
		SetContext(ctx).
		SetBody(evaluateRequest{
			Config:       conf,
			Warmup:       e.warmup,
			Instructions: e.instructions,
			TraceSet:     e.traceSet,
		}).
		SetResult(resp).
		Post(e.base + "/evaluate")
	if err != nil {
		return nil, fmt.Errorf("evaluate request: %w", err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("evaluator: %s: %s", r.Status(), strings.TrimSpace(r.String()))
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("evaluator: %s", resp.Error)
	}
	if len(resp.MPKI) == 0 {
		return nil, fmt.Errorf("evaluator returned no traces")
	}

	mpki := make(map[string]float64, len(resp.MPKI))
	for trace, v := range resp.MPKI {
		if v == nil {
			mpki[trace] = FailurePenalty
			continue
		}
		mpki[trace] = *v
	}
	return mpki, nil
}
