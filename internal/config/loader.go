package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. STOREFRONT_CHECKOUT_DEADLINE=90s.
const EnvPrefix = "STOREFRONT"

// Load builds the configuration from defaults, an optional YAML file and the environment.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the checkout flow cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.API.BaseURL == "":
		return fmt.Errorf("api.base_url is required")
	case c.Realtime.URL == "":
		return fmt.Errorf("realtime.url is required")
	case c.Checkout.Deadline <= 0:
		return fmt.Errorf("checkout.deadline must be positive")
	case c.Checkout.Tick <= 0 || c.Checkout.Tick > c.Checkout.Deadline:
		return fmt.Errorf("checkout.tick must be positive and not exceed the deadline")
	case c.Checkout.PollInterval <= 0:
		return fmt.Errorf("checkout.poll_interval must be positive")
	case c.Realtime.InitialBackoff <= 0 || c.Realtime.MaxBackoff < c.Realtime.InitialBackoff:
		return fmt.Errorf("realtime backoff must satisfy 0 < initial_backoff <= max_backoff")
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it without a config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)

	v.SetDefault("realtime.url", d.Realtime.URL)
	v.SetDefault("realtime.max_retries", d.Realtime.MaxRetries)
	v.SetDefault("realtime.initial_backoff", d.Realtime.InitialBackoff)
	v.SetDefault("realtime.max_backoff", d.Realtime.MaxBackoff)
	v.SetDefault("realtime.handshake_timeout", d.Realtime.HandshakeTimeout)
	v.SetDefault("realtime.ping_interval", d.Realtime.PingInterval)

	v.SetDefault("checkout.deadline", d.Checkout.Deadline)
	v.SetDefault("checkout.tick", d.Checkout.Tick)
	v.SetDefault("checkout.poll_interval", d.Checkout.PollInterval)
	v.SetDefault("checkout.currency", d.Checkout.Currency)

	v.SetDefault("phone.country_code", d.Phone.CountryCode)

	v.SetDefault("sandbox.addr", d.Sandbox.Addr)
	v.SetDefault("sandbox.database_url", d.Sandbox.DatabaseURL)
	v.SetDefault("sandbox.jwt_secret", d.Sandbox.JWTSecret)
	v.SetDefault("sandbox.token_ttl", d.Sandbox.TokenTTL)
	v.SetDefault("sandbox.settle_after", d.Sandbox.SettleAfter)
	v.SetDefault("sandbox.outcome", d.Sandbox.Outcome)
	v.SetDefault("sandbox.float_limit", d.Sandbox.FloatLimit)
	v.SetDefault("sandbox.demo_email", d.Sandbox.DemoEmail)
	v.SetDefault("sandbox.demo_password", d.Sandbox.DemoPassword)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
