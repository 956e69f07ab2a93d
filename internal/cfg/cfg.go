// Package cfg loads the settings of the simulator binaries from a YAML file or
// the environment. A .env file in the working directory is read first.
package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"llbp-sim/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Predictor          string
	ConfigPath         string // predictor configuration document, optional
	DataPath           string // experiment store directory, optional
	MetricsPort        int    // 0 disables the metrics endpoint
	LogLevel           string
	EvalEndpoint       string
	EvalTimeout        time.Duration
	WarmupInstructions int64
	SimInstructions    int64
	TuneLimit          int
	Seed               int64
}

type ConfigFile struct {
	Predictor struct {
		Name   string `yaml:"name"`
		Config string `yaml:"config"`
	} `yaml:"predictor"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		MetricsPort int    `yaml:"metricsPort"`
		LogLevel    string `yaml:"logLevel"`
	} `yaml:"system"`

	Tuning struct {
		Endpoint           string `yaml:"endpoint"`
		Timeout            string `yaml:"timeout"`
		WarmupInstructions int64  `yaml:"warmupInstructions"`
		SimInstructions    int64  `yaml:"simInstructions"`
		Limit              int    `yaml:"limit"`
		Seed               int64  `yaml:"seed"`
	} `yaml:"tuning"`
}

func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	evalTimeout, err := time.ParseDuration(getEnvOrDefault(common.EnvEvalTimeout, config.Tuning.Timeout))
	if err != nil {
		evalTimeout, _ = time.ParseDuration(common.DefaultEvalTimeout)
	}

	settings := Settings{
		Predictor:          getEnvOrDefault(common.EnvPredictor, orDefault(config.Predictor.Name, common.DefaultPredictor)),
		ConfigPath:         getEnvOrDefault(common.EnvPredictorConfig, config.Predictor.Config),
		DataPath:           getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		MetricsPort:        getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		EvalEndpoint:       getEnvOrDefault(common.EnvEvalEndpoint, config.Tuning.Endpoint),
		EvalTimeout:        evalTimeout,
		WarmupInstructions: getInt64FromEnvOrConfig(common.EnvWarmupInstructions, config.Tuning.WarmupInstructions, common.DefaultWarmupInstructions),
		SimInstructions:    getInt64FromEnvOrConfig(common.EnvSimInstructions, config.Tuning.SimInstructions, common.DefaultSimInstructions),
		TuneLimit:          getIntFromEnvOrConfig(common.EnvTuneLimit, orDefaultInt(config.Tuning.Limit, common.DefaultTuneLimit)),
		Seed:               getInt64FromEnvOrConfig(common.EnvSeed, config.Tuning.Seed, 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Predictor:          getEnvOrDefault(common.EnvPredictor, common.DefaultPredictor),
		ConfigPath:         os.Getenv(common.EnvPredictorConfig), // optional
		DataPath:           os.Getenv(common.EnvDataPath),        // optional
		MetricsPort:        getIntOrDefault(common.EnvMetricsPort, 0),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		EvalEndpoint:       os.Getenv(common.EnvEvalEndpoint),
		EvalTimeout:        getDurationOrDefault(common.EnvEvalTimeout, 30*time.Minute),
		WarmupInstructions: getInt64OrDefault(common.EnvWarmupInstructions, common.DefaultWarmupInstructions),
		SimInstructions:    getInt64OrDefault(common.EnvSimInstructions, common.DefaultSimInstructions),
		TuneLimit:          getIntOrDefault(common.EnvTuneLimit, common.DefaultTuneLimit),
		Seed:               getInt64OrDefault(common.EnvSeed, 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	return getIntOrDefault(key, configValue)
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getInt64OrDefault(key, defaultValue)
}

// validateSettings checks value ranges. The predictor name itself is checked
// by the factory.
func validateSettings(settings *Settings) error {
	if settings.Predictor == "" {
		return fmt.Errorf("predictor name cannot be empty")
	}

	if settings.MetricsPort != 0 && (settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort) {
		return fmt.Errorf("metrics port must be 0 or between %d and %d, got %d",
			common.MinMetricsPort, common.MaxMetricsPort, settings.MetricsPort)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	minTimeout := common.MinEvalTimeoutS * time.Second
	maxTimeout := common.MaxEvalTimeoutH * time.Hour
	if settings.EvalTimeout < minTimeout || settings.EvalTimeout > maxTimeout {
		return fmt.Errorf("evaluation timeout must be between %v and %v, got %v", minTimeout, maxTimeout, settings.EvalTimeout)
	}

	if settings.WarmupInstructions < 0 {
		return fmt.Errorf("warmup instructions cannot be negative, got %d", settings.WarmupInstructions)
	}
	if settings.SimInstructions <= 0 {
		return fmt.Errorf("simulation instructions must be positive, got %d", settings.SimInstructions)
	}

	if settings.TuneLimit <= 0 || settings.TuneLimit > common.MaxTuneLimit {
		return fmt.Errorf("tuning limit must be between 1 and %d, got %d", common.MaxTuneLimit, settings.TuneLimit)
	}

	return nil
}
