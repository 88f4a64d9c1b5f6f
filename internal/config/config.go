// Package config provides configuration management for the mediator.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// ACLMode selects the default interpretation of an account's access list:
// explicit_deny treats the list as a deny-list, explicit_allow as an
// allow-list.
type ACLMode string

const (
	ACLModeExplicitDeny  ACLMode = "explicit_deny"
	ACLModeExplicitAllow ACLMode = "explicit_allow"
)

// FileConfig is the top-level wrapper for the TOML configuration file.
type FileConfig struct {
	Server   ServerConfig `toml:"server"`
	Mediator Config       `toml:"mediator"`
}

// ServerConfig holds settings shared across mediator deployments (hostname,
// TLS) the way infodancer-pop3d shares [server] across its mail daemons.
type ServerConfig struct {
	Hostname string    `toml:"hostname"`
	TLS      TLSConfig `toml:"tls"`
}

// Config holds the mediator's full runtime configuration.
type Config struct {
	Hostname    string         `toml:"hostname"`
	LogLevel    string         `toml:"log_level"`
	PathPrefix  string         `toml:"path_prefix"`
	Listen      string         `toml:"listen"`
	TLS         TLSConfig      `toml:"tls"`
	Timeouts    TimeoutsConfig `toml:"timeouts"`
	Limits      LimitsConfig   `toml:"limits"`
	Metrics     MetricsConfig  `toml:"metrics"`
	Redis       RedisConfig    `toml:"redis"`
	Auth        AuthConfig     `toml:"auth"`
	ACL         ACLConfig      `toml:"acl"`
	Policy      PolicyConfig   `toml:"policy"`
	Queues      QueuesConfig   `toml:"queues"`
	Forwarding  ForwardConfig  `toml:"forwarding"`
	Expiry      ExpiryConfig   `toml:"expiry"`
	OOB         OOBConfig      `toml:"oob"`
	MediatorDID string         `toml:"mediator_did"`
}

// TLSConfig holds TLS certificate and version settings.
type TLSConfig struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	MinVersion string `toml:"min_version"`
}

// TimeoutsConfig defines timeout durations, expressed as parseable strings
// the same way infodancer-pop3d's TimeoutsConfig does.
type TimeoutsConfig struct {
	SessionIdle   string `toml:"session_idle"`
	AdminMessages string `toml:"admin_messages"`
}

// SessionIdleTimeout returns the session idle TTL, defaulting to 5 minutes.
func (t *TimeoutsConfig) SessionIdleTimeout() time.Duration {
	return parseDurationOr(t.SessionIdle, 5*time.Minute)
}

// AdminMessagesTimeout returns the admin-message freshness window, defaulting
// to 3 seconds.
func (t *TimeoutsConfig) AdminMessagesTimeout() time.Duration {
	return parseDurationOr(t.AdminMessages, 3*time.Second)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// LimitsConfig defines resource limits enforced by the envelope pipeline.
type LimitsConfig struct {
	MaxConnections   int `toml:"max_connections"`
	MaxEnvelopeBytes int `toml:"max_envelope_bytes"`
	MaxRecipients    int `toml:"max_recipients"`
	MaxRecipientKeys int `toml:"max_recipient_keys"`
	MaxCryptoOps     int `toml:"max_crypto_ops"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// RedisConfig configures the key-value store connection.
type RedisConfig struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// AuthConfig configures JWT access/refresh token minting and the one-time
// root-admin bootstrap credential.
type AuthConfig struct {
	Secret          string `toml:"secret"`
	AccessTokenTTL  string `toml:"access_token_ttl"`
	RefreshTokenTTL string `toml:"refresh_token_ttl"`

	// RootBootstrapDID is the DID granted TypeRootAdmin on first startup,
	// gated by RootBootstrapTokenHash (an argon2id hash, hex-encoded
	// "salt:hash"). Empty skips bootstrap — used once a root admin
	// already exists.
	RootBootstrapDID       string `toml:"root_bootstrap_did"`
	RootBootstrapTokenHash string `toml:"root_bootstrap_token_hash"`
	RootBootstrapToken     string `toml:"-"` // supplied out-of-band, never persisted
}

// AccessTTL returns the access-token TTL, default 900s, floor 10s.
func (a *AuthConfig) AccessTTL() time.Duration {
	d := parseDurationOr(a.AccessTokenTTL, 900*time.Second)
	if d < 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

// RefreshTTL returns the refresh-token TTL, default 86400s.
func (a *AuthConfig) RefreshTTL() time.Duration {
	return parseDurationOr(a.RefreshTokenTTL, 86400*time.Second)
}

// ACLConfig holds the global default ACL policy applied to newly created
// accounts.
type ACLConfig struct {
	Mode          ACLMode `toml:"mode"`
	DefaultMask   string  `toml:"default_mask"` // rule string or 16-hex-digit literal
	AccessListMax int     `toml:"access_list_max"`
}

// PolicyConfig holds the envelope-processor policy switches.
type PolicyConfig struct {
	BlockAnonymousOuterEnvelope bool `toml:"block_anonymous_outer_envelope"`
	ForceSessionDIDMatch        bool `toml:"force_session_did_match"`
	BlockRemoteAdminMsgs        bool `toml:"block_remote_admin_msgs"`
	LocalDirectDeliveryAllowed  bool `toml:"local_direct_delivery_allowed"`
	LocalDirectDeliveryAllowAnon bool `toml:"local_direct_delivery_allow_anon"`
	SuppressForwardDenialNotice bool `toml:"suppress_forward_denial_notice"`
}

// QueuesConfig holds the soft/hard mailbox caps, per direction.
type QueuesConfig struct {
	SendSoft    int `toml:"send_soft"`
	SendHard    int `toml:"send_hard"`
	ReceiveSoft int `toml:"receive_soft"`
	ReceiveHard int `toml:"receive_hard"`
}

// ForwardConfig configures the forwarding processor.
type ForwardConfig struct {
	QueueCapacity int    `toml:"queue_capacity"`
	MaxDelay      string `toml:"max_delay"`
	MaxAttempts   int    `toml:"max_attempts"`
	BaseBackoff   string `toml:"base_backoff"`
	MaxBackoff    string `toml:"max_backoff"`
}

// MaxDelayDuration returns the forwarding scheduling horizon, default 24h.
func (f *ForwardConfig) MaxDelayDuration() time.Duration {
	return parseDurationOr(f.MaxDelay, 24*time.Hour)
}

// BaseBackoffDuration returns the retry base delay, default 1s.
func (f *ForwardConfig) BaseBackoffDuration() time.Duration {
	return parseDurationOr(f.BaseBackoff, time.Second)
}

// MaxBackoffDuration returns the retry ceiling, default 5m.
func (f *ForwardConfig) MaxBackoffDuration() time.Duration {
	return parseDurationOr(f.MaxBackoff, 5*time.Minute)
}

// ExpiryConfig configures the message-expiry sweeper.
type ExpiryConfig struct {
	MessageTTL string `toml:"message_ttl"`
	SweepEvery string `toml:"sweep_every"`
}

// MessageTTLDuration returns the default message TTL, default 14 days.
func (e *ExpiryConfig) MessageTTLDuration() time.Duration {
	return parseDurationOr(e.MessageTTL, 14*24*time.Hour)
}

// SweepInterval returns the sweep period, default 1 minute.
func (e *ExpiryConfig) SweepInterval() time.Duration {
	return parseDurationOr(e.SweepEvery, time.Minute)
}

// OOBConfig configures out-of-band invitations.
type OOBConfig struct {
	InviteTTL string `toml:"invite_ttl"`
}

// InviteTTLDuration returns the OOB invite TTL, default 7 days.
func (o *OOBConfig) InviteTTLDuration() time.Duration {
	return parseDurationOr(o.InviteTTL, 7*24*time.Hour)
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname:   "localhost",
		LogLevel:   "info",
		PathPrefix: "/mediator/v1/",
		Listen:     ":8443",
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
		Limits: LimitsConfig{
			MaxConnections:   1000,
			MaxEnvelopeBytes: 10 * 1024 * 1024,
			MaxRecipients:    10,
			MaxRecipientKeys: 10,
			MaxCryptoOps:     1000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9101",
			Path:    "/metrics",
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		ACL: ACLConfig{
			Mode:          ACLModeExplicitDeny,
			DefaultMask:   "allow_all",
			AccessListMax: 1000,
		},
		Queues: QueuesConfig{
			SendSoft:    1000,
			SendHard:    5000,
			ReceiveSoft: 1000,
			ReceiveHard: 5000,
		},
		Forwarding: ForwardConfig{
			QueueCapacity: 10000,
			MaxAttempts:   8,
		},
	}
}

// Validate checks that the configuration is internally consistent and
// returns an error if not. Fatal here: never surfaced to clients.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}
	if c.Listen == "" {
		return errors.New("at least one listen address is required")
	}
	if c.Limits.MaxConnections <= 0 {
		return errors.New("max_connections must be positive")
	}
	if c.TLS.MinVersion != "" {
		if _, ok := minTLSVersions[c.TLS.MinVersion]; !ok {
			return fmt.Errorf("invalid TLS min_version %q (valid: 1.0, 1.1, 1.2, 1.3)", c.TLS.MinVersion)
		}
	}
	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}
	if c.ACL.Mode != ACLModeExplicitDeny && c.ACL.Mode != ACLModeExplicitAllow {
		return fmt.Errorf("invalid acl.mode %q", c.ACL.Mode)
	}
	if c.Redis.Address == "" {
		return errors.New("redis address is required")
	}
	// block_anonymous_outer_envelope=false with force_session_did_match=true
	// is self-contradictory (nothing to match the session DID against), so
	// it is rejected as a startup error rather than silently ignored.
	if !c.Policy.BlockAnonymousOuterEnvelope && c.Policy.ForceSessionDIDMatch {
		return errors.New("policy: force_session_did_match requires block_anonymous_outer_envelope")
	}
	return nil
}

// MinTLSVersion returns the crypto/tls constant for the configured minimum
// TLS version, defaulting to TLS 1.2.
func (c *TLSConfig) MinTLSVersion() uint16 {
	if v, ok := minTLSVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

var minTLSVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}
