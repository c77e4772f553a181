package config

import "time"

// Config is the full storefront configuration shared by the CLI and the sandbox backend.
type Config struct {
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Realtime RealtimeConfig `yaml:"realtime" mapstructure:"realtime"`
	Checkout CheckoutConfig `yaml:"checkout" mapstructure:"checkout"`
	Phone    PhoneConfig    `yaml:"phone" mapstructure:"phone"`
	Sandbox  SandboxConfig  `yaml:"sandbox" mapstructure:"sandbox"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// APIConfig points the request/response clients at the backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RealtimeConfig configures the persistent event channel and its reconnection policy.
type RealtimeConfig struct {
	URL              string        `yaml:"url" mapstructure:"url"`
	MaxRetries       uint64        `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoff   time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
}

// CheckoutConfig holds the payment deadline and fallback polling pace.
type CheckoutConfig struct {
	Deadline     time.Duration `yaml:"deadline" mapstructure:"deadline"`
	Tick         time.Duration `yaml:"tick" mapstructure:"tick"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	Currency     string        `yaml:"currency" mapstructure:"currency"`
}

// PhoneConfig selects the numbering plan used to canonicalise payer numbers.
type PhoneConfig struct {
	CountryCode string `yaml:"country_code" mapstructure:"country_code"`
}

// SandboxConfig configures the development backend.
type SandboxConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	DatabaseURL  string        `yaml:"database_url" mapstructure:"database_url"`
	JWTSecret    string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
	SettleAfter  time.Duration `yaml:"settle_after" mapstructure:"settle_after"`
	Outcome      string        `yaml:"outcome" mapstructure:"outcome"`
	FloatLimit   float64       `yaml:"float_limit" mapstructure:"float_limit"`
	DemoEmail    string        `yaml:"demo_email" mapstructure:"demo_email"`
	DemoPassword string        `yaml:"demo_password" mapstructure:"demo_password"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}
