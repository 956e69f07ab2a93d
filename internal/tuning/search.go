package tuning

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"llbp-sim/internal/bp/llbp"

	"github.com/rs/zerolog/log"
)

// Observer receives search progress. metrics.Wrapper covers the first two
// methods; binaries add TrialDone to persist results.
type Observer interface {
	EvaluationObserve(d time.Duration, failed bool)
	BestImprovementSet(v float64)
	TrialDone(t Trial)
}

type nopObserver struct{}

func (nopObserver) EvaluationObserve(time.Duration, bool) {}
func (nopObserver) BestImprovementSet(float64)            {}
func (nopObserver) TrialDone(Trial)                       {}

// Trial is one evaluated candidate.
type Trial struct {
	Iteration  int
	Generation int
	Candidate  Candidate
	Config     llbp.Config // zero when the candidate was rejected
	MPKI       map[string]float64
	Score      float64
	HigherWins bool
	Failed     bool
	Rejected   bool // the factory refused the candidate
	Duration   time.Duration
}

// Result summarises a search. Best is valid when Found is set.
type Result struct {
	Best   Trial
	Found  bool
	Trials []Trial
}

// Baseline evaluates the default configuration.
func Baseline(ctx context.Context, ev Evaluator) (map[string]float64, error) {
	mpki, err := ev.Evaluate(ctx, llbp.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("baseline evaluation: %w", err)
	}
	return mpki, nil
}

type runner struct {
	ev     Evaluator
	obs    Observer
	traces []string
	iter   int
}

func newRunner(ev Evaluator, obs Observer, traces []string) *runner {
	if obs == nil {
		obs = nopObserver{}
	}
	return &runner{ev: ev, obs: obs, traces: traces}
}

// run validates c through the factory and evaluates it. Only cancellation is
// returned as an error; rejected or failed candidates come back penalised.
func (r *runner) run(ctx context.Context, c Candidate) (Trial, error) {
	r.iter++
	start := time.Now()
	t := Trial{Iteration: r.iter, Candidate: c}

	conf, err := c.Config()
	if err != nil {
		log.Debug().Err(err).Int("iteration", r.iter).Msg("Candidate rejected")
		t.Failed, t.Rejected = true, true
		t.MPKI = penalised(r.traces)
	} else {
		t.Config = conf
		mpki, err := r.ev.Evaluate(ctx, conf)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Trial{}, ctxErr
		}
		if err != nil {
			log.Warn().Err(err).Int("iteration", r.iter).Msg("Evaluation failed")
			t.Failed = true
			t.MPKI = penalised(r.traces)
		} else {
			t.MPKI = mpki
			if len(r.traces) == 0 {
				r.traces = sortedTraces(mpki)
			}
		}
	}

	t.Duration = time.Since(start)
	r.obs.EvaluationObserve(t.Duration, t.Failed)
	return t, nil
}

// GridSearch evaluates up to limit grid points drawn without replacement and
// keeps the one with the highest weighted improvement over baseline. Best
// stays unset unless some point improves on the baseline.
func GridSearch(ctx context.Context, ev Evaluator, grid Grid, baseline map[string]float64,
	limit int, rng *rand.Rand, obs Observer) (Result, error) {
	if limit <= 0 {
		return Result{}, fmt.Errorf("grid search limit must be positive, got %d", limit)
	}
	if len(baseline) == 0 {
		return Result{}, fmt.Errorf("grid search needs baseline MPKI")
	}
	size := grid.Size()
	if size == 0 {
		return Result{}, fmt.Errorf("grid is empty")
	}

	r := newRunner(ev, obs, sortedTraces(baseline))
	s := newSampler(size)
	res := Result{}

	log.Info().Int("grid_size", size).Int("limit", limit).Msg("Starting grid search")

	for s.remaining() > 0 && len(res.Trials) < limit {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		t, err := r.run(ctx, grid.At(s.next(rng)))
		if err != nil {
			return res, err
		}
		t.Score = WeightedImprovement(baseline, t.MPKI)
		t.HigherWins = true
		res.Trials = append(res.Trials, t)
		r.obs.TrialDone(t)

		if t.Score > 0 && (!res.Found || t.Score > res.Best.Score) {
			res.Best, res.Found = t, true
			r.obs.BestImprovementSet(t.Score)
			log.Info().
				Int("iteration", t.Iteration).
				Float64("improvement", t.Score).
				Interface("candidate", t.Candidate).
				Msg("New best configuration")
		}
		log.Debug().
			Int("iteration", t.Iteration).
			Float64("improvement", t.Score).
			Dur("runtime", t.Duration).
			Msg("Grid point evaluated")
	}
	return res, nil
}

// GeneticOptions tune the genetic search. Baseline is optional and only used
// to report improvements.
type GeneticOptions struct {
	Population   int
	Generations  int
	MutationRate float64
	Elite        int
	Baseline     map[string]float64
}

func DefaultGeneticOptions() GeneticOptions {
	return GeneticOptions{Population: 20, Generations: 10, MutationRate: 0.1, Elite: 2}
}

func (o GeneticOptions) Validate() error {
	if o.Population < 2 {
		return fmt.Errorf("population must be at least 2, got %d", o.Population)
	}
	if o.Generations < 1 {
		return fmt.Errorf("generations must be positive, got %d", o.Generations)
	}
	if o.Elite < 1 || o.Elite > o.Population {
		return fmt.Errorf("elite must be between 1 and %d, got %d", o.Population, o.Elite)
	}
	if o.MutationRate < 0 || o.MutationRate > 1 {
		return fmt.Errorf("mutation rate must be between 0 and 1, got %g", o.MutationRate)
	}
	return nil
}

// GeneticSearch evolves a population towards the lowest mean MPKI. Elites
// survive unchanged and are not re-evaluated; every other child crosses an
// elite with any member of the previous population and is then mutated. The
// population left after the last generation is evaluated once more.
func GeneticSearch(ctx context.Context, ev Evaluator, space Space, opts GeneticOptions,
	rng *rand.Rand, obs Observer) (Result, error) {
	if err := space.Validate(); err != nil {
		return Result{}, err
	}
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}

	r := newRunner(ev, obs, sortedTraces(opts.Baseline))
	res := Result{}

	population := make([]Candidate, opts.Population)
	for i := range population {
		population[i] = space.Random(rng)
	}
	var elites []Trial

	score := func(gen int) ([]Trial, error) {
		scored := make([]Trial, 0, len(population))
		scored = append(scored, elites...)
		for _, c := range population[len(elites):] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			t, err := r.run(ctx, c)
			if err != nil {
				return nil, err
			}
			t.Generation = gen
			t.Score = MeanMPKI(t.MPKI)
			res.Trials = append(res.Trials, t)
			r.obs.TrialDone(t)
			scored = append(scored, t)
		}
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score < scored[j].Score })

		best := scored[0]
		if !res.Found || best.Score < res.Best.Score {
			res.Best, res.Found = best, true
			if len(opts.Baseline) > 0 {
				r.obs.BestImprovementSet(WeightedImprovement(opts.Baseline, best.MPKI))
			}
		}
		log.Info().Int("generation", gen).Float64("best_mpki", best.Score).Msg("Generation evaluated")
		return scored, nil
	}

	for gen := 0; gen < opts.Generations; gen++ {
		scored, err := score(gen)
		if err != nil {
			return res, err
		}
		elites = append([]Trial(nil), scored[:opts.Elite]...)

		next := make([]Candidate, 0, opts.Population)
		for _, e := range elites {
			next = append(next, e.Candidate)
		}
		for len(next) < opts.Population {
			p1 := elites[rng.Intn(len(elites))].Candidate
			p2 := population[rng.Intn(len(population))]
			next = append(next, space.Mutate(rng, Crossover(rng, p1, p2), opts.MutationRate))
		}
		population = next
	}

	if _, err := score(opts.Generations); err != nil {
		return res, err
	}
	log.Info().
		Float64("best_mpki", res.Best.Score).
		Interface("candidate", res.Best.Candidate).
		Msg("Genetic search finished")
	return res, nil
}
