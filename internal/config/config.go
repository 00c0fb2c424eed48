// Package config loads the read-only configuration the core consumes:
// a YAML file, with individual fields overridable by environment
// variables so a deployment can tweak one knob without forking the file.
package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/coresymbols/symd/internal/constants"
	"github.com/coresymbols/symd/internal/errs"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Config is the core's runtime configuration.
type Config struct {
	SymbolDir    string `yaml:"symbol_dir"`
	BucketURL    string `yaml:"bucket_url"`
	BucketRegion string `yaml:"bucket_region"`
	AWSAccessKey string `yaml:"aws_access_key"`
	AWSSecretKey string `yaml:"aws_secret_key"`

	SyncInterval        time.Duration `yaml:"sync_interval"`
	HealthcheckInterval time.Duration `yaml:"healthcheck_interval"`
	HealthcheckTTL      time.Duration `yaml:"healthcheck_ttl"`

	ServerThreads int `yaml:"server_threads"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// envOverrides maps each environment variable to the field it overrides.
const (
	envSymbolDir    = "SYMD_SYMBOL_DIR"
	envBucketURL    = "SYMD_BUCKET_URL"
	envBucketRegion = "SYMD_BUCKET_REGION"
	envAccessKey    = "SYMD_AWS_ACCESS_KEY"
	envSecretKey    = "SYMD_AWS_SECRET_KEY"
	envSyncInterval = "SYMD_SYNC_INTERVAL"
	envHealthInterv = "SYMD_HEALTHCHECK_INTERVAL"
	envHealthTTL    = "SYMD_HEALTHCHECK_TTL"
	envThreads      = "SYMD_SERVER_THREADS"
	envLogLevel     = "SYMD_LOG_LEVEL"
	envLogFile      = "SYMD_LOG_FILE"
)

// Load reads path as YAML, then applies any SYMD_* environment
// overrides, then fills remaining zero-valued fields with defaults.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Wrap("config.Load", errs.CodeMissingConfig, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errs.Wrap("config.Load", errs.CodeBadConfig, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.SymbolDir = env.Str(envSymbolDir, cfg.SymbolDir)
	cfg.BucketURL = env.Str(envBucketURL, cfg.BucketURL)
	cfg.BucketRegion = env.Str(envBucketRegion, cfg.BucketRegion)
	cfg.AWSAccessKey = env.Str(envAccessKey, cfg.AWSAccessKey)
	cfg.AWSSecretKey = env.Str(envSecretKey, cfg.AWSSecretKey)
	cfg.LogLevel = env.Str(envLogLevel, cfg.LogLevel)
	cfg.LogFile = env.Str(envLogFile, cfg.LogFile)

	cfg.SyncInterval = env.Duration(envSyncInterval, cfg.SyncInterval)
	cfg.HealthcheckInterval = env.Duration(envHealthInterv, cfg.HealthcheckInterval)
	cfg.HealthcheckTTL = env.Duration(envHealthTTL, cfg.HealthcheckTTL)
	cfg.ServerThreads = env.Int(envThreads, cfg.ServerThreads)
}

func applyDefaults(cfg *Config) {
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = constants.DefaultSyncInterval
	}
	if cfg.HealthcheckInterval == 0 {
		cfg.HealthcheckInterval = constants.DefaultHealthcheckInterval
	}
	if cfg.HealthcheckTTL == 0 {
		cfg.HealthcheckTTL = constants.DefaultHealthcheckTTL
	}
	if cfg.ServerThreads == 0 {
		cfg.ServerThreads = int(float64(runtime.NumCPU()) * constants.DefaultServerThreadsMultiplier)
		if cfg.ServerThreads < 1 {
			cfg.ServerThreads = 1
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks the required fields and the bucket_url scheme.
func (cfg Config) Validate() error {
	if cfg.SymbolDir == "" {
		return errs.New("config.Validate", errs.CodeMissingConfig, "symbol_dir is required")
	}
	if cfg.BucketURL == "" {
		return errs.New("config.Validate", errs.CodeMissingConfig, "bucket_url is required")
	}
	if !strings.HasPrefix(cfg.BucketURL, "s3://") {
		return errs.New("config.Validate", errs.CodeBadConfig, "bucket_url must use the s3:// scheme")
	}
	if cfg.BucketRegion == "" {
		return errs.New("config.Validate", errs.CodeMissingConfig, "bucket_region is required")
	}
	return nil
}
