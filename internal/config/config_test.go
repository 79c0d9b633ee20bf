package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Market.Owner = "0x00000000000000000000000000000000000000a0"
	cfg.Market.FeeRecipient = "0x00000000000000000000000000000000000000f0"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"fee too high", func(c *Config) { c.Market.PlatformFeeBps = 1001 }, "platform_fee_bps"},
		{"missing owner", func(c *Config) { c.Market.Owner = "" }, "owner"},
		{"bad recipient", func(c *Config) { c.Market.FeeRecipient = "not-an-address" }, "fee_recipient"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"oracle missing key", func(c *Config) {
			c.Oracle.Enabled = true
			c.Oracle.RPCURL = "http://localhost:8545"
			c.Oracle.Contract = "0x00000000000000000000000000000000000000cc"
		}, "private_key"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GAVEL_SERVER_PORT", "9001")
	t.Setenv("GAVEL_MARKET_PLATFORM_FEE_BPS", "500")
	t.Setenv("GAVEL_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("GAVEL_ARCHIVE_INTERVAL", "6h")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Market.PlatformFeeBps != 500 {
		t.Errorf("Market.PlatformFeeBps = %d, want 500", cfg.Market.PlatformFeeBps)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Server.CORSOrigins = %v, want two trimmed origins", cfg.Server.CORSOrigins)
	}
	if cfg.Archive.Interval.Duration.Hours() != 6 {
		t.Errorf("Archive.Interval = %v, want 6h", cfg.Archive.Interval.Duration)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Oracle.PrivateKey = "deadbeef"
	cfg.Server.APIKey = "secret"

	red := RedactedConfig(&cfg)

	if red.Postgres.Password != "***" || red.Oracle.PrivateKey != "***" || red.Server.APIKey != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("original config mutated")
	}
}
