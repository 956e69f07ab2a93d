package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llbp-sim/internal/bp"
	"llbp-sim/internal/cfg"
	"llbp-sim/internal/common"
	"llbp-sim/internal/metrics"
	"llbp-sim/internal/storage"
	"llbp-sim/internal/tuning"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	modeGrid    = "grid"
	modeGenetic = "genetic"
	modeFinal   = "final"
)

// recorder feeds trials into metrics and the experiment store.
type recorder struct {
	*metrics.Wrapper
	store *storage.Store
	mode  string
}

func (r *recorder) TrialDone(t tuning.Trial) {
	var err error
	if t.Rejected {
		err = bp.ErrInvalidConfig
	}
	r.ConstructionResult(common.PredictorLLBPTiming, err)

	if r.store == nil {
		return
	}
	rec := storage.ResultRecord{
		Mode:        r.mode,
		Iteration:   t.Iteration,
		Candidate:   t.Candidate,
		Config:      t.Config,
		MPKI:        t.MPKI,
		Score:       t.Score,
		HigherWins:  t.HigherWins,
		Failed:      t.Failed,
		DurationSec: t.Duration.Seconds(),
	}
	if err := r.store.StoreResult(rec); err != nil {
		log.Error().Err(err).Int("iteration", t.Iteration).Msg("Failed to store tuning result")
	}
}

func main() {
	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	var (
		mode        = flag.String("mode", modeGrid, "Mode: grid, genetic or final")
		confPath    = flag.String("c", settings.ConfigPath, "Configuration document evaluated in final mode")
		traceSet    = flag.String("trace-set", "", "Trace set requested from the simulation service")
		endpoint    = flag.String("endpoint", settings.EvalEndpoint, "Base URL of the simulation service")
		warmup      = flag.Int64("w", settings.WarmupInstructions, "Number of warmup instructions")
		sim         = flag.Int64("n", settings.SimInstructions, "Number of instructions of the region of interest")
		limit       = flag.Int("limit", settings.TuneLimit, "Maximum number of grid points to evaluate")
		dataPath    = flag.String("store", settings.DataPath, "Directory of the experiment store, empty disables it")
		seed        = flag.Int64("seed", settings.Seed, "Random seed")
		metricsPort = flag.Int("metrics-port", settings.MetricsPort, "Port of the metrics endpoint, 0 disables it")
		logLevel    = flag.String("log-level", settings.LogLevel, "Log level: debug, info, warn, error")
		rebaseline  = flag.Bool("baseline", false, "Re-evaluate the default configuration even if a baseline is stored")
		population  = flag.Int("population", 20, "Genetic population size")
		generations = flag.Int("generations", 10, "Genetic generations")
		mutation    = flag.Float64("mutation", 0.1, "Genetic mutation rate")
		elite       = flag.Int("elite", 2, "Genetic elite size")
	)
	flag.Parse()

	setupLogging(*logLevel)

	if *mode != modeGrid && *mode != modeGenetic && *mode != modeFinal {
		log.Fatal().Str("mode", *mode).Msg("Unknown mode")
	}
	if *mode == modeFinal && *confPath == "" {
		log.Fatal().Msg("Final mode needs a configuration document, set -c")
	}
	if *endpoint == "" {
		log.Fatal().Msgf("No evaluator endpoint, set -endpoint or %s", common.EnvEvalEndpoint)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mw := metrics.NewWrapper(metrics.New())
	if *metricsPort > 0 {
		startMetricsServer(ctx, *metricsPort)
	}

	var store *storage.Store
	if *dataPath != "" {
		store, err = storage.New(*dataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
			store = nil
		} else {
			defer store.Close()
		}
	}

	ev := tuning.NewHTTPEvaluator(*endpoint, *warmup, *sim, settings.EvalTimeout).SetTraceSet(*traceSet)

	if *mode == modeFinal {
		if err := runFinal(ctx, ev, store, *confPath); err != nil {
			log.Fatal().Err(err).Msg("Final evaluation failed")
		}
		return
	}

	baseline, err := loadBaseline(ctx, ev, store, *rebaseline)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to obtain baseline MPKI")
	}
	for trace, mpki := range baseline {
		log.Info().Str("trace", trace).Float64("mpki", mpki).Msg("Baseline")
	}

	rng := rand.New(rand.NewSource(*seed))
	obs := &recorder{Wrapper: mw, store: store, mode: *mode}

	var res tuning.Result
	switch *mode {
	case modeGrid:
		res, err = tuning.GridSearch(ctx, ev, tuning.DefaultGrid(), baseline, *limit, rng, obs)
	case modeGenetic:
		opts := tuning.GeneticOptions{
			Population:   *population,
			Generations:  *generations,
			MutationRate: *mutation,
			Elite:        *elite,
			Baseline:     baseline,
		}
		res, err = tuning.GeneticSearch(ctx, ev, tuning.DefaultSpace(), opts, rng, obs)
	}
	if errors.Is(err, context.Canceled) {
		log.Warn().Int("evaluated", len(res.Trials)).Msg("Search interrupted")
	} else if err != nil {
		log.Fatal().Err(err).Msg("Search failed")
	}

	if !res.Found {
		log.Info().Int("evaluated", len(res.Trials)).Msg("No configuration improved on the baseline")
		reportStoredBest(store, *mode)
		return
	}
	if err := printBest(res.Best, baseline); err != nil {
		log.Fatal().Err(err).Msg("Failed to write result")
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// loadBaseline prefers stored baselines unless refresh is set.
func loadBaseline(ctx context.Context, ev tuning.Evaluator, store *storage.Store, refresh bool) (map[string]float64, error) {
	if store != nil && !refresh {
		baseline, err := store.Baselines()
		if err != nil {
			return nil, err
		}
		if len(baseline) > 0 {
			log.Info().Int("traces", len(baseline)).Msg("Using stored baseline")
			return baseline, nil
		}
	}

	baseline, err := tuning.Baseline(ctx, ev)
	if err != nil {
		return nil, err
	}
	if store != nil {
		for trace, mpki := range baseline {
			if err := store.StoreBaseline(trace, mpki); err != nil {
				return nil, fmt.Errorf("store baseline %s: %w", trace, err)
			}
		}
	}
	return baseline, nil
}

func startMetricsServer(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// runFinal evaluates one configuration document and compares it with the
// baseline trace by trace.
func runFinal(ctx context.Context, ev tuning.Evaluator, store *storage.Store, path string) error {
	doc, err := bp.LoadDocument(path)
	if err != nil {
		return err
	}
	conf, err := bp.BindConfig(bp.LLBPTiming, doc)
	if err != nil {
		return err
	}

	var baseline map[string]float64
	if store != nil {
		if baseline, err = store.Baselines(); err != nil {
			return err
		}
	}

	r, err := tuning.FinalEvaluation(ctx, ev, conf, baseline)
	if err != nil {
		return err
	}
	if store != nil {
		for trace, mpki := range r.NewBaselines {
			if err := store.StoreBaseline(trace, mpki); err != nil {
				return fmt.Errorf("store baseline %s: %w", trace, err)
			}
		}
	}

	fmt.Printf("Configuration %s\n", path)
	fmt.Printf("%-32s %12s %12s %10s\n", "TRACE", "DEFAULT", "TUNED", "DIFF%")
	for _, tc := range r.Traces {
		fmt.Printf("%-32s %12.4f %12.4f %10.2f\n", tc.Trace, tc.Baseline, tc.Tuned, tc.Improvement)
	}
	fmt.Printf("Mean MPKI:            %.4f\n", r.MeanMPKI)
	fmt.Printf("Weighted improvement: %.4f%%\n", r.WeightedImprovement)
	return nil
}

// reportStoredBest prints the best result earlier runs of mode left in store.
func reportStoredBest(store *storage.Store, mode string) {
	if store == nil {
		return
	}
	best, ok, err := store.BestResult(mode)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read stored results")
		return
	}
	if !ok {
		return
	}
	out, err := json.MarshalIndent(best.Config, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode stored result")
		return
	}
	fmt.Printf("Best stored %s result (iteration %d, %s, score %.4f):\n%s\n",
		mode, best.Iteration, best.Timestamp.Format(time.RFC3339), best.Score, out)
}

func printBest(best tuning.Trial, baseline map[string]float64) error {
	out, err := json.MarshalIndent(best.Config, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("Best configuration (iteration %d):\n%s\n", best.Iteration, out)
	fmt.Printf("Mean MPKI:            %.4f\n", tuning.MeanMPKI(best.MPKI))
	fmt.Printf("Weighted improvement: %.4f%%\n", tuning.WeightedImprovement(baseline, best.MPKI))
	return nil
}
