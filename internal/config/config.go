// Package config loads service settings from config.yaml and the environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PipelineConfig bounds concurrency and retries for file processing.
type PipelineConfig struct {
	MaxConcurrentTasks int     `yaml:"max_concurrent_tasks" mapstructure:"max_concurrent_tasks"`
	MaxRetries         int     `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseDelay   float64 `yaml:"backoff_base_delay" mapstructure:"backoff_base_delay"`
}

// BaseDelay returns the backoff base as a duration.
func (p PipelineConfig) BaseDelay() time.Duration {
	return time.Duration(p.BackoffBaseDelay * float64(time.Second))
}

// StorageConfig selects the object store. Driver is gcs or local.
type StorageConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	LocalRoot string `yaml:"local_root" mapstructure:"local_root"`
}

// WarehouseConfig selects the warehouse. Driver is postgres or sqlite.
type WarehouseConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Dataset     string `yaml:"dataset" mapstructure:"dataset"`
	Table       string `yaml:"table" mapstructure:"table"`
}

type AnalysisConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

type ServerConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	AudioDir  string `yaml:"audio_dir" mapstructure:"audio_dir"`
	UploadDir string `yaml:"upload_dir" mapstructure:"upload_dir"`
}

type WatchConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	SettleSecs int    `yaml:"settle_secs" mapstructure:"settle_secs"`
}

type LogConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// Legacy environment names the deployment already uses.
var envBindings = map[string]string{
	"pipeline.max_concurrent_tasks": "MAX_CONCURRENT_TASKS",
	"pipeline.max_retries":          "MAX_RETRIES",
	"pipeline.backoff_base_delay":   "BACKOFF_BASE_DELAY",
	"storage.driver":                "STORAGE_DRIVER",
	"storage.bucket":                "GCS_BUCKET_NAME",
	"storage.local_root":            "STORAGE_LOCAL_ROOT",
	"warehouse.driver":              "WAREHOUSE_DRIVER",
	"warehouse.database_url":        "WAREHOUSE_DATABASE_URL",
	"warehouse.dataset":             "BQ_DATASET",
	"warehouse.table":               "BQ_TABLE",
	"analysis.base_url":             "GEMINI_BASE_URL",
	"analysis.api_key":              "GEMINI_API_KEY",
	"analysis.model":                "GEMINI_MODEL",
	"server.port":                   "PORT",
	"server.audio_dir":              "LOCAL_AUDIO_PATH",
	"watch.dir":                     "WATCH_DIR",
	"log.level":                     "LOG_LEVEL",
	"log.environment":               "ENVIRONMENT",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CALLINSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "CALLINSIGHTS_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("pipeline.max_concurrent_tasks", 9)
	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.backoff_base_delay", 2)
	v.SetDefault("storage.driver", "gcs")
	v.SetDefault("storage.prefix", "calls")
	v.SetDefault("storage.local_root", "object-store")
	v.SetDefault("warehouse.driver", "postgres")
	v.SetDefault("analysis.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("analysis.model", "gemini-2.5-flash")
	v.SetDefault("analysis.timeout_secs", 120)
	v.SetDefault("analysis.requests_per_second", 5)
	v.SetDefault("analysis.burst", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.audio_dir", "sample_audio")
	v.SetDefault("watch.settle_secs", 5)
	v.SetDefault("log.level", "info")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.Storage.Bucket == "":
		return eris.New("config: storage.bucket (GCS_BUCKET_NAME) is required")
	case c.Warehouse.Dataset == "":
		return eris.New("config: warehouse.dataset (BQ_DATASET) is required")
	case c.Warehouse.Table == "":
		return eris.New("config: warehouse.table (BQ_TABLE) is required")
	case c.Pipeline.MaxConcurrentTasks <= 0:
		return eris.New("config: pipeline.max_concurrent_tasks must be positive")
	case c.Pipeline.MaxRetries < 0:
		return eris.New("config: pipeline.max_retries must not be negative")
	case c.Pipeline.BackoffBaseDelay <= 0:
		return eris.New("config: pipeline.backoff_base_delay must be positive")
	}
	switch c.Storage.Driver {
	case "gcs", "local":
	default:
		return eris.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Warehouse.Driver {
	case "postgres":
		if c.Warehouse.DatabaseURL == "" {
			return eris.New("config: warehouse.database_url is required for postgres")
		}
	case "sqlite":
	default:
		return eris.Errorf("config: unknown warehouse.driver %q", c.Warehouse.Driver)
	}
	return nil
}
