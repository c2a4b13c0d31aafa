// Package config loads server settings from an optional JSON file with
// environment overrides. Every field has a usable default so a bare binary
// starts against a local mongod.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultFileName is looked up in the working directory when no explicit
// path is given
const DefaultFileName = "testex"

// Mongo holds document store settings. Memory switches to the in-process
// store, for development and CI boxes without a mongod.
type Mongo struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	Memory   bool   `mapstructure:"memory"`
}

// Upstream holds the real venues' public API locations. RateLimit caps
// outbound calls per venue per second; zero lifts the cap.
type Upstream struct {
	BittrexURL  string        `mapstructure:"bittrex_url"`
	PoloniexURL string        `mapstructure:"poloniex_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	RateLimit   int           `mapstructure:"rate_limit"`
}

// Executor holds trading engine tuning
type Executor struct {
	NonExecuteProb float64 `mapstructure:"non_execute_prob"`
}

// Config is the full server configuration
type Config struct {
	ListenAddress string   `mapstructure:"listen_address"`
	Mongo         Mongo    `mapstructure:"mongo"`
	Upstream      Upstream `mapstructure:"upstream"`
	Executor      Executor `mapstructure:"executor"`
	Verbose       bool     `mapstructure:"verbose"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_address", ":9000")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "testex")
	v.SetDefault("mongo.memory", false)
	v.SetDefault("upstream.bittrex_url", "")
	v.SetDefault("upstream.poloniex_url", "")
	v.SetDefault("upstream.http_timeout", 15*time.Second)
	v.SetDefault("upstream.rate_limit", 10)
	v.SetDefault("executor.non_execute_prob", 0.3)
	v.SetDefault("verbose", false)
}

// Load reads configuration from the given file path, or from testex.json in
// the working directory when path is empty. A missing default file is fine;
// a missing explicit file is not. TESTEX_* environment variables override
// file values, e.g. TESTEX_MONGO_URI.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TESTEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config")
		}
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("json")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return errors.New("listen_address must be set")
	}
	if !c.Mongo.Memory {
		if c.Mongo.URI == "" {
			return errors.New("mongo.uri must be set")
		}
		if c.Mongo.Database == "" {
			return errors.New("mongo.database must be set")
		}
	}
	if c.Executor.NonExecuteProb < 0 || c.Executor.NonExecuteProb > 1 {
		return errors.New("executor.non_execute_prob must be within [0, 1]")
	}
	if c.Upstream.HTTPTimeout <= 0 {
		return errors.New("upstream.http_timeout must be positive")
	}
	if c.Upstream.RateLimit < 0 {
		return errors.New("upstream.rate_limit must not be negative")
	}
	return nil
}
