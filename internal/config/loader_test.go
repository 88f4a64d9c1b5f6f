package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}

	expected := Default()
	if cfg.Hostname != expected.Hostname {
		t.Errorf("expected hostname %q, got %q", expected.Hostname, cfg.Hostname)
	}
}

func TestLoadValidTOML(t *testing.T) {
	content := `
[mediator]
hostname = "mediator.example.com"
log_level = "debug"
listen = ":9443"

[mediator.tls]
cert_file = "/etc/ssl/cert.pem"
key_file = "/etc/ssl/key.pem"
min_version = "1.3"

[mediator.limits]
max_connections = 50

[mediator.redis]
address = "redis.internal:6379"

[mediator.acl]
mode = "explicit_allow"
access_list_max = 200
`

	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hostname != "mediator.example.com" {
		t.Errorf("hostname = %q, want 'mediator.example.com'", cfg.Hostname)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want 'debug'", cfg.LogLevel)
	}
	if cfg.Listen != ":9443" {
		t.Errorf("listen = %q, want ':9443'", cfg.Listen)
	}
	if cfg.TLS.CertFile != "/etc/ssl/cert.pem" {
		t.Errorf("tls.cert_file = %q, want '/etc/ssl/cert.pem'", cfg.TLS.CertFile)
	}
	if cfg.TLS.MinVersion != "1.3" {
		t.Errorf("tls.min_version = %q, want '1.3'", cfg.TLS.MinVersion)
	}
	if cfg.Limits.MaxConnections != 50 {
		t.Errorf("limits.max_connections = %d, want 50", cfg.Limits.MaxConnections)
	}
	if cfg.Redis.Address != "redis.internal:6379" {
		t.Errorf("redis.address = %q, want 'redis.internal:6379'", cfg.Redis.Address)
	}
	if cfg.ACL.Mode != ACLModeExplicitAllow {
		t.Errorf("acl.mode = %q, want 'explicit_allow'", cfg.ACL.Mode)
	}
	if cfg.ACL.AccessListMax != 200 {
		t.Errorf("acl.access_list_max = %d, want 200", cfg.ACL.AccessListMax)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	content := `
[mediator
hostname = "broken
`
	path := createTempConfig(t, content)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid TOML, got nil")
	}
}

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cfg := Default()
	flags := &Flags{
		Hostname:  "flag.example.com",
		RedisAddr: "flag-redis:6379",
	}

	result := ApplyFlags(cfg, flags)

	if result.Hostname != "flag.example.com" {
		t.Errorf("hostname = %q, want 'flag.example.com' (flag should override)", result.Hostname)
	}
	if result.Redis.Address != "flag-redis:6379" {
		t.Errorf("redis.address = %q, want 'flag-redis:6379' (flag should override)", result.Redis.Address)
	}
	if result.LogLevel != "info" {
		t.Errorf("log_level = %q, want 'info' (config value should remain)", result.LogLevel)
	}
}

func TestApplyEnvOverridesConfig(t *testing.T) {
	t.Setenv("MEDIATOR_HOSTNAME", "env.example.com")
	t.Setenv("MEDIATOR_METRICS_ENABLED", "true")
	t.Setenv("MEDIATOR_QUEUES_SEND_HARD", "42")

	cfg := ApplyEnv(Default())

	if cfg.Hostname != "env.example.com" {
		t.Errorf("hostname = %q, want 'env.example.com'", cfg.Hostname)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics.enabled = true from env")
	}
	if cfg.Queues.SendHard != 42 {
		t.Errorf("queues.send_hard = %d, want 42", cfg.Queues.SendHard)
	}
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create temp config: %v", err)
	}
	return path
}
