package cloudauth

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config groups per-concern settings for a Client. Config instances are
// set up during initialization and treated as immutable afterwards.
type Config struct {
	Cloud     CloudConfig
	Transport TransportConfig
	Session   SessionConfig
	MFA       MFAConfig
	Probe     ProbeConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
CLOUD CONFIG
====================================
*/

// CloudConfig selects the cloud API host. The host is resolved exactly
// once, before the first login, and never changes afterwards.
type CloudConfig struct {
	Region Region
	// CustomHost is consulted only when Region is RegionCustom. Scheme
	// and trailing slashes are stripped.
	CustomHost string
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig bounds every network call. Timeouts are configuration,
// not part of the auth state machine.
type TransportConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// SessionConfig tunes local session validity checks.
type SessionConfig struct {
	// ExpiryLeeway treats a token this close to its expiry claim as
	// already expired, so EnsureSession logs in before the cloud starts
	// rejecting calls.
	ExpiryLeeway time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig bounds one-time challenges.
type MFAConfig struct {
	// ChallengeTTL is how long a requested challenge stays resolvable.
	ChallengeTTL time.Duration
}

// ProbeConfig bounds the RTSP credential probe.
type ProbeConfig struct {
	Timeout     time.Duration
	DefaultPort int
}

// AuditConfig controls the async audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the atomic counters.
type MetricsConfig struct {
	Enabled bool
}

const (
	defaultTimeout      = 25 * time.Second
	defaultExpiryLeeway = 30 * time.Second
	defaultChallengeTTL = 5 * time.Minute
	defaultProbeTimeout = 10 * time.Second
	defaultRTSPPort     = 554
	defaultUserAgent    = "cloudauth-go"
)

func defaultConfig() Config {
	return Config{
		Cloud: CloudConfig{Region: RegionEU},
		Transport: TransportConfig{
			Timeout:   defaultTimeout,
			UserAgent: defaultUserAgent,
		},
		Session: SessionConfig{ExpiryLeeway: defaultExpiryLeeway},
		MFA:     MFAConfig{ChallengeTTL: defaultChallengeTTL},
		Probe: ProbeConfig{
			Timeout:     defaultProbeTimeout,
			DefaultPort: defaultRTSPPort,
		},
		Audit:   AuditConfig{Enabled: false, BufferSize: 64, DropIfFull: true},
		Metrics: MetricsConfig{Enabled: true},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate rejects configurations a Client cannot run with.
func (c Config) Validate() error {
	if c.Cloud.Region == RegionCustom && NormalizeAPIHost(c.Cloud.CustomHost) == "" {
		return ErrInvalidHost
	}
	if _, ok := regionHosts[c.Cloud.Region]; !ok && c.Cloud.Region != RegionCustom {
		return ErrInvalidHost
	}
	if c.Transport.Timeout <= 0 {
		return errors.New("transport timeout must be positive")
	}
	if c.Session.ExpiryLeeway < 0 {
		return errors.New("session expiry leeway must not be negative")
	}
	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("mfa challenge ttl must be positive")
	}
	if c.Probe.Timeout <= 0 {
		return errors.New("probe timeout must be positive")
	}
	if c.Probe.DefaultPort <= 0 || c.Probe.DefaultPort > 65535 {
		return errors.New("probe default port out of range")
	}
	return nil
}

// ConfigFromEnv loads defaults overlaid with environment variables,
// reading .env files first when paths are given (missing files are
// ignored). Recognized variables: CLOUDAUTH_REGION, CLOUDAUTH_API_HOST,
// CLOUDAUTH_TIMEOUT_SECONDS, CLOUDAUTH_PROBE_TIMEOUT_SECONDS,
// CLOUDAUTH_AUDIT_ENABLED.
func ConfigFromEnv(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	cfg := defaultConfig()
	if v := os.Getenv("CLOUDAUTH_REGION"); v != "" {
		cfg.Cloud.Region = Region(v)
	}
	if v := os.Getenv("CLOUDAUTH_API_HOST"); v != "" {
		cfg.Cloud.Region = RegionCustom
		cfg.Cloud.CustomHost = v
	}
	if v := os.Getenv("CLOUDAUTH_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return Config{}, errors.New("invalid CLOUDAUTH_TIMEOUT_SECONDS")
		}
		cfg.Transport.Timeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("CLOUDAUTH_PROBE_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return Config{}, errors.New("invalid CLOUDAUTH_PROBE_TIMEOUT_SECONDS")
		}
		cfg.Probe.Timeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("CLOUDAUTH_AUDIT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, errors.New("invalid CLOUDAUTH_AUDIT_ENABLED")
		}
		cfg.Audit.Enabled = enabled
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
