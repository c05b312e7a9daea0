package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName      = ".shapestore"
	configType      = "yaml"
	envPrefix       = "SHAPESTORE"
	envKeySeparator = "_"
)

// Load reads configuration from file, environment and defaults. An
// explicit path must exist; otherwise .shapestore.yaml is looked up in the
// working directory and $HOME, and a missing file means defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("store.crs", "")
	v.SetDefault("store.encoding", "")
	v.SetDefault("store.compression", DefaultCompression)
	v.SetDefault("store.fanout", DefaultFanout)
	v.SetDefault("store.read_only", false)
	v.SetDefault("store.eager_threshold", DefaultEagerThreshold)
	v.SetDefault("store.queue_size", DefaultQueueSize)
	v.SetDefault("store.queue_min_fill", DefaultQueueMinFill)

	v.SetDefault("pool.workers", DefaultWorkers)
	v.SetDefault("pool.record_rate", 0.0)

	v.SetDefault("catalog.max_open", DefaultMaxOpen)
	v.SetDefault("catalog.load_workers", 0)
	v.SetDefault("catalog.skip_errors", DefaultSkipErrors)
}
