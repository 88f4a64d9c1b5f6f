package config

import (
	"crypto/tls"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Hostname != "localhost" {
		t.Errorf("expected hostname 'localhost', got %q", cfg.Hostname)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level 'info', got %q", cfg.LogLevel)
	}
	if cfg.PathPrefix != "/mediator/v1/" {
		t.Errorf("expected path_prefix '/mediator/v1/', got %q", cfg.PathPrefix)
	}
	if cfg.Limits.MaxConnections != 1000 {
		t.Errorf("expected max_connections 1000, got %d", cfg.Limits.MaxConnections)
	}
	if cfg.ACL.Mode != ACLModeExplicitDeny {
		t.Errorf("expected default acl mode explicit_deny, got %q", cfg.ACL.Mode)
	}
	if cfg.Queues.SendHard != 5000 {
		t.Errorf("expected send hard cap 5000, got %d", cfg.Queues.SendHard)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}, wantErr: false},
		{name: "missing hostname", modify: func(c *Config) { c.Hostname = "" }, wantErr: true},
		{name: "missing listen", modify: func(c *Config) { c.Listen = "" }, wantErr: true},
		{name: "zero max connections", modify: func(c *Config) { c.Limits.MaxConnections = 0 }, wantErr: true},
		{name: "invalid tls version", modify: func(c *Config) { c.TLS.MinVersion = "9.9" }, wantErr: true},
		{name: "invalid acl mode", modify: func(c *Config) { c.ACL.Mode = "bogus" }, wantErr: true},
		{name: "missing redis address", modify: func(c *Config) { c.Redis.Address = "" }, wantErr: true},
		{
			name: "metrics enabled without address",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			wantErr: true,
		},
		{
			name: "force session did match without blocking anonymous outer envelope",
			modify: func(c *Config) {
				c.Policy.BlockAnonymousOuterEnvelope = false
				c.Policy.ForceSessionDIDMatch = true
			},
			wantErr: true,
		},
		{
			name: "force session did match with blocking anonymous outer envelope is fine",
			modify: func(c *Config) {
				c.Policy.BlockAnonymousOuterEnvelope = true
				c.Policy.ForceSessionDIDMatch = true
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMinTLSVersion(t *testing.T) {
	cfg := TLSConfig{MinVersion: "1.3"}
	if got := cfg.MinTLSVersion(); got != tls.VersionTLS13 {
		t.Errorf("expected TLS 1.3, got %v", got)
	}

	empty := TLSConfig{}
	if got := empty.MinTLSVersion(); got != tls.VersionTLS12 {
		t.Errorf("expected default TLS 1.2, got %v", got)
	}
}

func TestAccessTTLFloor(t *testing.T) {
	a := AuthConfig{AccessTokenTTL: "1s"}
	if got := a.AccessTTL(); got.Seconds() != 10 {
		t.Errorf("expected access TTL floor of 10s, got %v", got)
	}
}
