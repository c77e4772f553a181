package config

import "time"

// DefaultConfig returns the configuration used when no file or environment override is present.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 15 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:              "ws://localhost:8080/ws",
			MaxRetries:       5,
			InitialBackoff:   500 * time.Millisecond,
			MaxBackoff:       10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			PingInterval:     25 * time.Second,
		},
		Checkout: CheckoutConfig{
			Deadline:     120 * time.Second,
			Tick:         time.Second,
			PollInterval: 5 * time.Second,
			Currency:     "ZMW",
		},
		Phone: PhoneConfig{
			CountryCode: "260",
		},
		Sandbox: SandboxConfig{
			Addr:         ":8080",
			JWTSecret:    "sandbox-secret",
			TokenTTL:     24 * time.Hour,
			SettleAfter:  5 * time.Second,
			Outcome:      "approve",
			FloatLimit:   10000,
			DemoEmail:    "demo@printa.co.zm",
			DemoPassword: "printa123",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
