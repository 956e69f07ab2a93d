package common

// Predictor names
const (
	PredictorTage64k     = "tage64k"
	PredictorTage64kSCL  = "tage64kscl"
	PredictorTage512kSCL = "tage512kscl"
	PredictorLLBP        = "llbp"
	PredictorLLBPTiming  = "llbp-timing"
)

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvPredictor          = "BP_NAME"
	EnvPredictorConfig    = "BP_CONFIG"
	EnvDataPath           = "DATA_PATH"
	EnvMetricsPort        = "METRICS_PORT"
	EnvLogLevel           = "LOG_LEVEL"
	EnvEvalEndpoint       = "EVAL_ENDPOINT"
	EnvEvalTimeout        = "EVAL_TIMEOUT"
	EnvWarmupInstructions = "WARMUP_INSTRUCTIONS"
	EnvSimInstructions    = "SIM_INSTRUCTIONS"
	EnvTuneLimit          = "TUNE_LIMIT"
	EnvSeed               = "TUNE_SEED"
)

// Configuration defaults
const (
	DefaultPredictor          = PredictorLLBP
	DefaultLogLevel           = "info"
	DefaultEvalTimeout        = "30m"
	DefaultWarmupInstructions = 100_000_000
	DefaultSimInstructions    = 200_000_000
	DefaultTuneLimit          = 50
)

// Validation constants
const (
	MinMetricsPort  = 1024
	MaxMetricsPort  = 65535
	MaxTuneLimit    = 1_000_000
	MinEvalTimeoutS = 1
	MaxEvalTimeoutH = 24
)
