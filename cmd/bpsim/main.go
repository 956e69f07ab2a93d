package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"llbp-sim/internal/bp"
	"llbp-sim/internal/cfg"
	"llbp-sim/internal/metrics"
	"llbp-sim/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	var (
		bpName   = flag.String("bp", settings.Predictor, "Branch predictor name")
		confPath = flag.String("c", settings.ConfigPath, "Predictor configuration document (JSON or YAML)")
		dataPath = flag.String("store", settings.DataPath, "Directory of the experiment store, empty disables it")
		list     = flag.Bool("list", false, "List predictor names and exit")
		logLevel = flag.String("log-level", settings.LogLevel, "Log level: debug, info, warn, error")
	)
	flag.Parse()

	setupLogging(*logLevel)

	if *list {
		listPredictors()
		return
	}

	var doc *bp.Document
	if *confPath != "" {
		doc, err = bp.LoadDocument(*confPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load predictor configuration")
		}
	}

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	built, err := bp.CreateBPWithConfig(*bpName, doc)
	mw.ConstructionResult(*bpName, err)
	if err != nil {
		var unknown *bp.UnknownPredictorError
		if errors.As(err, &unknown) {
			log.Fatal().Msg(unknown.Error())
		}
		log.Fatal().Err(err).Str("predictor", *bpName).Msg("Failed to build predictor")
	}

	kind, _ := bp.ParseKind(*bpName)
	p := metrics.Instrument(built, m, kind.String())
	rec := storage.ConfigRecord{
		Predictor:  kind.String(),
		Timestamp:  time.Now(),
		Configured: doc != nil && kind.Configurable(),
	}
	if rec.Configured {
		rec.Source = *confPath
	}
	if conf, ok := bp.ConfigOf(p); ok {
		rec.Config = &conf
	}

	if err := report(p, rec); err != nil {
		log.Fatal().Err(err).Msg("Failed to write report")
	}

	if *dataPath != "" {
		store, err := storage.New(*dataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("storage initialization failed")
		}
		defer store.Close()
		if err := store.StoreConfig(rec); err != nil {
			store.Close()
			log.Fatal().Err(err).Msg("Failed to store predictor configuration")
		}
		log.Info().Str("path", *dataPath).Msg("Predictor configuration stored")
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

func listPredictors() {
	for _, k := range bp.Kinds() {
		fmt.Printf("%-14s configurable=%t\n", k, k.Configurable())
	}
}

func report(p bp.Predictor, rec storage.ConfigRecord) error {
	fmt.Printf("Predictor:    %s\n", rec.Predictor)
	fmt.Printf("Configured:   %t\n", rec.Configured)

	if tr, ok := bp.SupportsTiming(p); ok {
		fmt.Printf("Timing:       yes (access delay %d)\n", tr.TimingStats().AccessDelay)
	} else {
		fmt.Println("Timing:       no")
	}

	if rec.Config == nil {
		return nil
	}
	out, err := json.MarshalIndent(rec.Config, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("Configuration:\n%s\n", out)
	return nil
}
