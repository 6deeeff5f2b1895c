// Package config loads darilo settings from defaults, an optional darilo.yaml
// and DARILO_* environment variables, in increasing order of precedence.
// Command-line flags bound by the caller override all three.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/erazemk/darilo/internal/model"
)

// EnvPrefix prefixes every environment variable, e.g. DARILO_RETRY_ATTEMPTS.
const EnvPrefix = "DARILO"

// Config is the resolved configuration.
type Config struct {
	DB        string `mapstructure:"db"`
	Addr      string `mapstructure:"addr"`
	Log       string `mapstructure:"log"`
	AdminUser string `mapstructure:"admin_user"`

	TokenTTL time.Duration `mapstructure:"token_ttl"`

	Retry struct {
		Attempts int           `mapstructure:"attempts"`
		Backoff  time.Duration `mapstructure:"backoff"`
	} `mapstructure:"retry"`

	Reconcile struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"reconcile"`

	Fulfillment struct {
		Policy string `mapstructure:"policy"`
	} `mapstructure:"fulfillment"`

	Login struct {
		Rate  float64 `mapstructure:"rate"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"login"`
}

// New returns a viper instance with defaults, environment binding and the
// config file search path set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("darilo")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/darilo")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", "darilo.sqlite3")
	v.SetDefault("addr", ":8080")
	v.SetDefault("log", "")
	v.SetDefault("admin_user", "Admin")
	v.SetDefault("token_ttl", "168h")

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.backoff", "10ms")
	v.SetDefault("reconcile.interval", "30s")
	v.SetDefault("fulfillment.policy", model.PolicyAllPromised)
	v.SetDefault("login.rate", 0.2)
	v.SetDefault("login.burst", 5)
}

// Load reads the config file if one exists (or the explicit file, if set)
// and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.DB == "":
		return errors.New("config: db must not be empty")
	case c.Retry.Attempts < 1:
		return fmt.Errorf("config: retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	case c.Retry.Backoff < 0:
		return fmt.Errorf("config: retry.backoff must not be negative, got %s", c.Retry.Backoff)
	case c.Reconcile.Interval <= 0:
		return fmt.Errorf("config: reconcile.interval must be positive, got %s", c.Reconcile.Interval)
	case c.Login.Rate <= 0 || c.Login.Burst < 1:
		return fmt.Errorf("config: login.rate and login.burst must be positive")
	}
	if _, err := model.PolicyByName(c.Fulfillment.Policy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Policy returns the configured fulfilment policy.
func (c *Config) Policy() model.FulfillmentPolicy {
	p, _ := model.PolicyByName(c.Fulfillment.Policy)
	return p
}

// LoginLimit returns the per-client login rate.
func (c *Config) LoginLimit() rate.Limit {
	return rate.Limit(c.Login.Rate)
}
