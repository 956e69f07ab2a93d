package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"llbp-sim/internal/common"
)

var testEnvKeys = []string{
	common.EnvConfigFile,
	common.EnvPredictor,
	common.EnvPredictorConfig,
	common.EnvDataPath,
	common.EnvMetricsPort,
	common.EnvLogLevel,
	common.EnvEvalEndpoint,
	common.EnvEvalTimeout,
	common.EnvWarmupInstructions,
	common.EnvSimInstructions,
	common.EnvTuneLimit,
	common.EnvSeed,
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, key := range testEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.Predictor != common.DefaultPredictor {
					t.Errorf("expected default predictor %s, got %s", common.DefaultPredictor, settings.Predictor)
				}
				if settings.MetricsPort != 0 {
					t.Errorf("expected metrics disabled, got port %d", settings.MetricsPort)
				}
				if settings.EvalTimeout != 30*time.Minute {
					t.Errorf("expected default eval timeout 30m, got %v", settings.EvalTimeout)
				}
				if settings.WarmupInstructions != common.DefaultWarmupInstructions {
					t.Errorf("expected default warmup, got %d", settings.WarmupInstructions)
				}
				if settings.TuneLimit != common.DefaultTuneLimit {
					t.Errorf("expected default tune limit, got %d", settings.TuneLimit)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				common.EnvPredictor:          "llbp-timing",
				common.EnvPredictorConfig:    "configs/default_config.json",
				common.EnvMetricsPort:        "9090",
				common.EnvLogLevel:           "debug",
				common.EnvEvalTimeout:        "2m",
				common.EnvWarmupInstructions: "1000",
				common.EnvSimInstructions:    "5000",
				common.EnvTuneLimit:          "7",
				common.EnvSeed:               "42",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Predictor != "llbp-timing" {
					t.Errorf("expected predictor llbp-timing, got %s", settings.Predictor)
				}
				if settings.ConfigPath != "configs/default_config.json" {
					t.Errorf("unexpected config path %s", settings.ConfigPath)
				}
				if settings.MetricsPort != 9090 {
					t.Errorf("expected MetricsPort 9090, got %d", settings.MetricsPort)
				}
				if settings.EvalTimeout != 2*time.Minute {
					t.Errorf("expected eval timeout 2m, got %v", settings.EvalTimeout)
				}
				if settings.WarmupInstructions != 1000 || settings.SimInstructions != 5000 {
					t.Errorf("unexpected instruction counts %d/%d", settings.WarmupInstructions, settings.SimInstructions)
				}
				if settings.TuneLimit != 7 || settings.Seed != 42 {
					t.Errorf("unexpected tuning settings %d/%d", settings.TuneLimit, settings.Seed)
				}
			},
		},
		{
			name:    "metrics port out of range",
			envVars: map[string]string{common.EnvMetricsPort: "80"},
			wantErr: true,
		},
		{
			name:    "bad log level",
			envVars: map[string]string{common.EnvLogLevel: "chatty"},
			wantErr: true,
		},
		{
			name:    "zero simulation instructions",
			envVars: map[string]string{common.EnvSimInstructions: "0"},
			wantErr: true,
		},
		{
			name:    "tune limit too large",
			envVars: map[string]string{common.EnvTuneLimit: "2000000"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
predictor:
  name: "llbp"
  config: "configs/tuned.json"

system:
  dataPath: "/custom/data"
  metricsPort: 9100
  logLevel: "warn"

tuning:
  endpoint: "http://sim-farm:8080"
  timeout: "45m"
  warmupInstructions: 2000000
  simInstructions: 4000000
  limit: 200
  seed: 7
`,
			validate: func(t *testing.T, settings Settings) {
				if settings.Predictor != "llbp" || settings.ConfigPath != "configs/tuned.json" {
					t.Errorf("unexpected predictor settings %s/%s", settings.Predictor, settings.ConfigPath)
				}
				if settings.DataPath != "/custom/data" {
					t.Errorf("expected DataPath /custom/data, got %s", settings.DataPath)
				}
				if settings.MetricsPort != 9100 {
					t.Errorf("expected MetricsPort 9100, got %d", settings.MetricsPort)
				}
				if settings.EvalEndpoint != "http://sim-farm:8080" {
					t.Errorf("unexpected endpoint %s", settings.EvalEndpoint)
				}
				if settings.EvalTimeout != 45*time.Minute {
					t.Errorf("expected timeout 45m, got %v", settings.EvalTimeout)
				}
				if settings.WarmupInstructions != 2000000 || settings.SimInstructions != 4000000 {
					t.Errorf("unexpected instruction counts %d/%d", settings.WarmupInstructions, settings.SimInstructions)
				}
				if settings.TuneLimit != 200 || settings.Seed != 7 {
					t.Errorf("unexpected tuning settings %d/%d", settings.TuneLimit, settings.Seed)
				}
			},
		},
		{
			name: "environment overrides",
			yamlContent: `
predictor:
  name: "llbp"
tuning:
  limit: 10
`,
			envOverrides: map[string]string{
				common.EnvPredictor: "tage64kscl",
				common.EnvTuneLimit: "3",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Predictor != "tage64kscl" {
					t.Errorf("expected env predictor override, got %s", settings.Predictor)
				}
				if settings.TuneLimit != 3 {
					t.Errorf("expected env tune limit override, got %d", settings.TuneLimit)
				}
				if settings.EvalTimeout != 30*time.Minute {
					t.Errorf("expected default timeout, got %v", settings.EvalTimeout)
				}
			},
		},
		{
			name:        "invalid YAML",
			yamlContent: "predictor: [unclosed",
			wantErr:     true,
		},
		{
			name: "invalid values",
			yamlContent: `
system:
  metricsPort: 70000
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yamlContent), 0o600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			settings, err := loadFromYAML(path)
			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad_UsesConfigFile(t *testing.T) {
	clearTestEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("predictor:\n  name: tage512kscl\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(common.EnvConfigFile, path)

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Predictor != "tage512kscl" {
		t.Errorf("expected predictor from config file, got %s", settings.Predictor)
	}
}

func TestLoadFromYAML_MissingFile(t *testing.T) {
	if _, err := loadFromYAML(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
