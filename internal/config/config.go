package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the server configuration
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Data   DataConfig   `mapstructure:"data"`
	Batch  BatchConfig  `mapstructure:"batch"`
	Limits LimitsConfig `mapstructure:"limits"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// StoreConfig selects the checkpoint backend
type StoreConfig struct {
	Type string `mapstructure:"type"` // file or sqlite
	Dir  string `mapstructure:"dir"`  // file backend
	Path string `mapstructure:"path"` // sqlite backend
}

// DataConfig points at the uploaded job inputs
type DataConfig struct {
	DatasetDir   string `mapstructure:"dataset_dir"`
	GuidelineDir string `mapstructure:"guideline_dir"`
	MediaDir     string `mapstructure:"media_dir"`
}

// BatchConfig tunes batch-mode sizing
type BatchConfig struct {
	TargetRowsPerDay int `mapstructure:"target_rows_per_day"`
	MaxSize          int `mapstructure:"max_size"`
	Size             int `mapstructure:"size"` // explicit override, 0 derives from quota
}

// LimitsConfig overrides provider quota assumptions. Keys are
// "provider:model" pairs; values are requests per minute.
type LimitsConfig struct {
	RPM map[string]int `mapstructure:"rpm"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads configuration from the given file (optional), the working
// directory, and SPDATA_* environment variables, on top of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("store.type", "file")
	v.SetDefault("store.dir", "results")
	v.SetDefault("store.path", "spdata.db")
	v.SetDefault("data.dataset_dir", "data")
	v.SetDefault("data.guideline_dir", "guidelines")
	v.SetDefault("data.media_dir", "media")
	v.SetDefault("batch.target_rows_per_day", 50000)
	v.SetDefault("batch.max_size", 250)
	v.SetDefault("batch.size", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.spdata")
	}

	v.SetEnvPrefix("SPDATA")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env cover it.
		// Anything else, a malformed file included, is an error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
