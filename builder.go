package cloudauth

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/ezvizgo/cloudauth/rtsp"
	"github.com/ezvizgo/cloudauth/session"
)

// Builder assembles a Client. Builders are single use.
type Builder struct {
	config  Config
	account string
	secret  string

	api        CloudAPI
	prober     StreamProber
	redis      *redis.Client
	auditSink  AuditSink
	onRotation RotationHook
	seed       *session.Session

	built bool
}

// New returns a Builder carrying the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccount sets the account identity and secret used for logins. The
// secret is held for retries with an MFA code; it is never logged or
// persisted by this package.
func (b *Builder) WithAccount(identity, secret string) *Builder {
	b.account = identity
	b.secret = secret
	return b
}

// WithAPI substitutes the wire client. Tests use this to fake the cloud
// service.
func (b *Builder) WithAPI(api CloudAPI) *Builder {
	b.api = api
	return b
}

// WithProber substitutes the RTSP credential prober. Tests use this to
// fake the device.
func (b *Builder) WithProber(p StreamProber) *Builder {
	b.prober = p
	return b
}

// WithRedis enables the redis persistence adapters for the session and
// the per-device credential records. Without it, state is memory only
// (or handled by a custom RotationHook).
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the audit destination; the audit config must also
// enable dispatching.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRotationHook installs a callback fired only when a login rotated
// the token pair, so the owner can persist the new session.
func (b *Builder) WithRotationHook(hook RotationHook) *Builder {
	b.onRotation = hook
	return b
}

// WithSession seeds the store with a previously persisted session so the
// client starts authenticated.
func (b *Builder) WithSession(sess *session.Session) *Builder {
	b.seed = sess
	return b
}

// Build validates the configuration, resolves the API host once and
// wires the client together.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.account == "" || b.secret == "" {
		return nil, errors.New("account identity and secret are required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	apiHost, err := ResolveAPIHost(b.config.Cloud.Region, b.config.Cloud.CustomHost)
	if err != nil {
		return nil, err
	}

	api := b.api
	if api == nil {
		api = newHTTPAPI(b.config.Transport)
	}
	prober := b.prober
	if prober == nil {
		prober = rtsp.NewProber(b.config.Probe.Timeout, b.config.Probe.DefaultPort)
	}

	c := &Client{
		config:     b.config,
		account:    b.account,
		secret:     b.secret,
		apiHost:    apiHost,
		api:        api,
		prober:     prober,
		sessions:   session.NewStore(),
		reauth:     NewReauthSignal(),
		metrics:    NewMetrics(b.config.Metrics),
		audit:      newAuditDispatcher(b.config.Audit, b.auditSink),
		onRotation: b.onRotation,
	}
	c.mfa = newMfaChallengeCoordinator(api, b.account, apiHost, b.config.MFA)

	if b.seed != nil {
		if b.seed.APIHost != "" && b.seed.APIHost != apiHost {
			return nil, ErrInvalidHost
		}
		c.sessions.Replace(b.seed)
	}

	if b.redis != nil && c.onRotation == nil {
		persist := session.NewRedisStore(b.redis, "")
		c.onRotation = func(ctx context.Context, account string, sess *session.Session) {
			_ = persist.Save(ctx, account, sess)
		}
	}

	b.built = true
	return c, nil
}
