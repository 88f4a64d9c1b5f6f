package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath string
	Hostname   string
	LogLevel   string
	Listen     string
	TLSCert    string
	TLSKey     string
	RedisAddr  string
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "./mediator.toml", "Path to configuration file")
	flag.StringVar(&f.Hostname, "hostname", "", "Mediator hostname")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.Listen, "listen", "", "Listen address")
	flag.StringVar(&f.TLSCert, "tls-cert", "", "TLS certificate file path")
	flag.StringVar(&f.TLSKey, "tls-key", "", "TLS key file path")
	flag.StringVar(&f.RedisAddr, "redis-addr", "", "Redis-compatible key-value store address")

	flag.Parse()
	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	cfg = mergeServerConfig(cfg, fileConfig.Server)
	cfg = mergeConfig(cfg, fileConfig.Mediator)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	if f.TLSCert != "" {
		cfg.TLS.CertFile = f.TLSCert
	}
	if f.TLSKey != "" {
		cfg.TLS.KeyFile = f.TLSKey
	}
	if f.RedisAddr != "" {
		cfg.Redis.Address = f.RedisAddr
	}
	return cfg
}

// ApplyEnv merges environment-variable overrides into the config. Every
// setting in the mediator is env-overridable here; the prefix is
// MEDIATOR_ and nested keys use underscores (e.g. MEDIATOR_REDIS_ADDRESS).
func ApplyEnv(cfg Config) Config {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("MEDIATOR_HOSTNAME", &cfg.Hostname)
	str("MEDIATOR_LOG_LEVEL", &cfg.LogLevel)
	str("MEDIATOR_LISTEN", &cfg.Listen)
	str("MEDIATOR_PATH_PREFIX", &cfg.PathPrefix)
	str("MEDIATOR_TLS_CERT_FILE", &cfg.TLS.CertFile)
	str("MEDIATOR_TLS_KEY_FILE", &cfg.TLS.KeyFile)
	str("MEDIATOR_TLS_MIN_VERSION", &cfg.TLS.MinVersion)
	str("MEDIATOR_REDIS_ADDRESS", &cfg.Redis.Address)
	str("MEDIATOR_REDIS_PASSWORD", &cfg.Redis.Password)
	integer("MEDIATOR_REDIS_DB", &cfg.Redis.DB)
	str("MEDIATOR_AUTH_SECRET", &cfg.Auth.Secret)
	str("MEDIATOR_AUTH_ACCESS_TOKEN_TTL", &cfg.Auth.AccessTokenTTL)
	str("MEDIATOR_AUTH_REFRESH_TOKEN_TTL", &cfg.Auth.RefreshTokenTTL)
	str("MEDIATOR_AUTH_ROOT_BOOTSTRAP_DID", &cfg.Auth.RootBootstrapDID)
	str("MEDIATOR_AUTH_ROOT_BOOTSTRAP_TOKEN_HASH", &cfg.Auth.RootBootstrapTokenHash)
	str("MEDIATOR_AUTH_ROOT_BOOTSTRAP_TOKEN", &cfg.Auth.RootBootstrapToken)
	str("MEDIATOR_MEDIATOR_DID", &cfg.MediatorDID)
	boolean("MEDIATOR_METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("MEDIATOR_METRICS_ADDRESS", &cfg.Metrics.Address)
	str("MEDIATOR_METRICS_PATH", &cfg.Metrics.Path)
	str("MEDIATOR_TIMEOUTS_SESSION_IDLE", &cfg.Timeouts.SessionIdle)
	str("MEDIATOR_TIMEOUTS_ADMIN_MESSAGES", &cfg.Timeouts.AdminMessages)
	integer("MEDIATOR_LIMITS_MAX_CONNECTIONS", &cfg.Limits.MaxConnections)
	integer("MEDIATOR_LIMITS_MAX_ENVELOPE_BYTES", &cfg.Limits.MaxEnvelopeBytes)
	integer("MEDIATOR_LIMITS_MAX_RECIPIENTS", &cfg.Limits.MaxRecipients)
	integer("MEDIATOR_LIMITS_MAX_RECIPIENT_KEYS", &cfg.Limits.MaxRecipientKeys)
	integer("MEDIATOR_LIMITS_MAX_CRYPTO_OPS", &cfg.Limits.MaxCryptoOps)

	var aclMode string
	str("MEDIATOR_ACL_MODE", &aclMode)
	if aclMode != "" {
		cfg.ACL.Mode = ACLMode(aclMode)
	}
	str("MEDIATOR_ACL_DEFAULT_MASK", &cfg.ACL.DefaultMask)
	integer("MEDIATOR_ACL_ACCESS_LIST_MAX", &cfg.ACL.AccessListMax)

	boolean("MEDIATOR_POLICY_BLOCK_ANONYMOUS_OUTER_ENVELOPE", &cfg.Policy.BlockAnonymousOuterEnvelope)
	boolean("MEDIATOR_POLICY_FORCE_SESSION_DID_MATCH", &cfg.Policy.ForceSessionDIDMatch)
	boolean("MEDIATOR_POLICY_BLOCK_REMOTE_ADMIN_MSGS", &cfg.Policy.BlockRemoteAdminMsgs)
	boolean("MEDIATOR_POLICY_LOCAL_DIRECT_DELIVERY_ALLOWED", &cfg.Policy.LocalDirectDeliveryAllowed)
	boolean("MEDIATOR_POLICY_LOCAL_DIRECT_DELIVERY_ALLOW_ANON", &cfg.Policy.LocalDirectDeliveryAllowAnon)
	boolean("MEDIATOR_POLICY_SUPPRESS_FORWARD_DENIAL_NOTICE", &cfg.Policy.SuppressForwardDenialNotice)

	integer("MEDIATOR_QUEUES_SEND_SOFT", &cfg.Queues.SendSoft)
	integer("MEDIATOR_QUEUES_SEND_HARD", &cfg.Queues.SendHard)
	integer("MEDIATOR_QUEUES_RECEIVE_SOFT", &cfg.Queues.ReceiveSoft)
	integer("MEDIATOR_QUEUES_RECEIVE_HARD", &cfg.Queues.ReceiveHard)

	integer("MEDIATOR_FORWARDING_QUEUE_CAPACITY", &cfg.Forwarding.QueueCapacity)
	str("MEDIATOR_FORWARDING_MAX_DELAY", &cfg.Forwarding.MaxDelay)
	integer("MEDIATOR_FORWARDING_MAX_ATTEMPTS", &cfg.Forwarding.MaxAttempts)
	str("MEDIATOR_FORWARDING_BASE_BACKOFF", &cfg.Forwarding.BaseBackoff)
	str("MEDIATOR_FORWARDING_MAX_BACKOFF", &cfg.Forwarding.MaxBackoff)

	str("MEDIATOR_EXPIRY_MESSAGE_TTL", &cfg.Expiry.MessageTTL)
	str("MEDIATOR_EXPIRY_SWEEP_EVERY", &cfg.Expiry.SweepEvery)
	str("MEDIATOR_OOB_INVITE_TTL", &cfg.OOB.InviteTTL)

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags, then
// applies environment and flag overrides (flags take final precedence).
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg = ApplyEnv(cfg)
	return ApplyFlags(cfg, f), nil
}

// mergeServerConfig merges shared server settings into the config.
func mergeServerConfig(dst Config, src ServerConfig) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}
	if src.TLS.CertFile != "" {
		dst.TLS.CertFile = src.TLS.CertFile
	}
	if src.TLS.KeyFile != "" {
		dst.TLS.KeyFile = src.TLS.KeyFile
	}
	if src.TLS.MinVersion != "" {
		dst.TLS.MinVersion = src.TLS.MinVersion
	}
	return dst
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.PathPrefix != "" {
		dst.PathPrefix = src.PathPrefix
	}
	if src.Listen != "" {
		dst.Listen = src.Listen
	}
	if src.TLS.CertFile != "" {
		dst.TLS.CertFile = src.TLS.CertFile
	}
	if src.TLS.KeyFile != "" {
		dst.TLS.KeyFile = src.TLS.KeyFile
	}
	if src.TLS.MinVersion != "" {
		dst.TLS.MinVersion = src.TLS.MinVersion
	}
	if src.Limits.MaxConnections > 0 {
		dst.Limits.MaxConnections = src.Limits.MaxConnections
	}
	if src.Limits.MaxEnvelopeBytes > 0 {
		dst.Limits.MaxEnvelopeBytes = src.Limits.MaxEnvelopeBytes
	}
	if src.Limits.MaxRecipients > 0 {
		dst.Limits.MaxRecipients = src.Limits.MaxRecipients
	}
	if src.Limits.MaxRecipientKeys > 0 {
		dst.Limits.MaxRecipientKeys = src.Limits.MaxRecipientKeys
	}
	if src.Limits.MaxCryptoOps > 0 {
		dst.Limits.MaxCryptoOps = src.Limits.MaxCryptoOps
	}
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}
	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}
	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}
	if src.Redis.Address != "" {
		dst.Redis.Address = src.Redis.Address
	}
	if src.Redis.Password != "" {
		dst.Redis.Password = src.Redis.Password
	}
	if src.Redis.DB != 0 {
		dst.Redis.DB = src.Redis.DB
	}
	if src.Auth.Secret != "" {
		dst.Auth.Secret = src.Auth.Secret
	}
	if src.Auth.AccessTokenTTL != "" {
		dst.Auth.AccessTokenTTL = src.Auth.AccessTokenTTL
	}
	if src.Auth.RefreshTokenTTL != "" {
		dst.Auth.RefreshTokenTTL = src.Auth.RefreshTokenTTL
	}
	if src.Auth.RootBootstrapDID != "" {
		dst.Auth.RootBootstrapDID = src.Auth.RootBootstrapDID
	}
	if src.Auth.RootBootstrapTokenHash != "" {
		dst.Auth.RootBootstrapTokenHash = src.Auth.RootBootstrapTokenHash
	}
	if src.Timeouts.SessionIdle != "" {
		dst.Timeouts.SessionIdle = src.Timeouts.SessionIdle
	}
	if src.Timeouts.AdminMessages != "" {
		dst.Timeouts.AdminMessages = src.Timeouts.AdminMessages
	}
	if src.ACL.Mode != "" {
		dst.ACL.Mode = src.ACL.Mode
	}
	if src.ACL.DefaultMask != "" {
		dst.ACL.DefaultMask = src.ACL.DefaultMask
	}
	if src.ACL.AccessListMax > 0 {
		dst.ACL.AccessListMax = src.ACL.AccessListMax
	}
	dst.Policy = src.Policy
	if src.Queues.SendSoft > 0 {
		dst.Queues.SendSoft = src.Queues.SendSoft
	}
	if src.Queues.SendHard > 0 {
		dst.Queues.SendHard = src.Queues.SendHard
	}
	if src.Queues.ReceiveSoft > 0 {
		dst.Queues.ReceiveSoft = src.Queues.ReceiveSoft
	}
	if src.Queues.ReceiveHard > 0 {
		dst.Queues.ReceiveHard = src.Queues.ReceiveHard
	}
	if src.Forwarding.QueueCapacity > 0 {
		dst.Forwarding.QueueCapacity = src.Forwarding.QueueCapacity
	}
	if src.Forwarding.MaxDelay != "" {
		dst.Forwarding.MaxDelay = src.Forwarding.MaxDelay
	}
	if src.Forwarding.MaxAttempts > 0 {
		dst.Forwarding.MaxAttempts = src.Forwarding.MaxAttempts
	}
	if src.Forwarding.BaseBackoff != "" {
		dst.Forwarding.BaseBackoff = src.Forwarding.BaseBackoff
	}
	if src.Forwarding.MaxBackoff != "" {
		dst.Forwarding.MaxBackoff = src.Forwarding.MaxBackoff
	}
	if src.Expiry.MessageTTL != "" {
		dst.Expiry.MessageTTL = src.Expiry.MessageTTL
	}
	if src.Expiry.SweepEvery != "" {
		dst.Expiry.SweepEvery = src.Expiry.SweepEvery
	}
	if src.OOB.InviteTTL != "" {
		dst.OOB.InviteTTL = src.OOB.InviteTTL
	}
	if src.MediatorDID != "" {
		dst.MediatorDID = src.MediatorDID
	}
	return dst
}
