package cloudauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ezvizgo/cloudauth/session"
)

// RotationHook is invoked after ApplyRotation reports a changed token
// pair, with the freshly installed session. Persistence belongs to the
// hook owner; rotations that echo the same tokens never reach it.
type RotationHook func(ctx context.Context, account string, sess *session.Session)

// Client is the authenticated gateway to the cloud video-device service
// for one account. It owns the session lifecycle (login, rotation, MFA)
// and per-device credential resolution; everything else consumes the
// sessions and records it hands out.
type Client struct {
	config  Config
	account string
	secret  string
	apiHost string

	api        CloudAPI
	prober     StreamProber
	sessions   *session.Store
	mfa        *MfaChallengeCoordinator
	reauth     *ReauthSignal
	audit      *auditDispatcher
	metrics    *Metrics
	onRotation RotationHook

	loginGroup singleflight.Group

	deviceMu    sync.Mutex
	deviceLocks map[string]*sync.Mutex
}

// Account returns the account identity the client logs in as.
func (c *Client) Account() string { return c.account }

// APIHost returns the host resolved at build time. It never changes.
func (c *Client) APIHost() string { return c.apiHost }

// Sessions exposes the session store. Callers must treat returned
// sessions as immutable snapshots.
func (c *Client) Sessions() *session.Store { return c.sessions }

// Reauth exposes the account's reauthentication signal.
func (c *Client) Reauth() *ReauthSignal { return c.reauth }

// MFA exposes the challenge coordinator for UI layers that track
// challenge state across form steps.
func (c *Client) MFA() *MfaChallengeCoordinator { return c.mfa }

// Metrics exposes the counter table.
func (c *Client) Metrics() *Metrics { return c.metrics }

// AuditDropped reports how many audit events were shed under load.
func (c *Client) AuditDropped() uint64 { return c.audit.Dropped() }

// Close flushes the audit dispatcher.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.audit != nil {
		c.audit.Close()
	}
}

// deviceLock serializes resolution and probing for one device. Distinct
// devices never contend.
func (c *Client) deviceLock(serial string) *sync.Mutex {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()

	if c.deviceLocks == nil {
		c.deviceLocks = make(map[string]*sync.Mutex)
	}
	mu, ok := c.deviceLocks[serial]
	if !ok {
		mu = &sync.Mutex{}
		c.deviceLocks[serial] = mu
	}
	return mu
}

func (c *Client) metricInc(id MetricID) {
	c.metrics.Inc(id)
}

// AuditErrorCode is the stable error label attached to audit events.
type AuditErrorCode string

const (
	auditErrInvalidHost        AuditErrorCode = "invalid_host"
	auditErrTransport          AuditErrorCode = "transport"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrMFARequired        AuditErrorCode = "mfa_required"
	auditErrMFAChallenge       AuditErrorCode = "mfa_challenge_invalid"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrNoSession          AuditErrorCode = "no_session"
	auditErrDuplicateDevice    AuditErrorCode = "duplicate_device"
	auditErrDevice             AuditErrorCode = "device_rejected"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidHost):
		return auditErrInvalidHost
	case errors.Is(err, ErrTransport):
		return auditErrTransport
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFAChallengeConsumed),
		errors.Is(err, ErrMFAChallengeAbandoned),
		errors.Is(err, ErrMFAChallengeExpired),
		errors.Is(err, ErrMFAChallengeNotFound):
		return auditErrMFAChallenge
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrNoSession):
		return auditErrNoSession
	case errors.Is(err, ErrDuplicateDevice):
		return auditErrDuplicateDevice
	case errors.Is(err, ErrDevice):
		return auditErrDevice
	default:
		return auditErrInternal
	}
}

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	deviceID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Account:   c.account,
		DeviceID:  deviceID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}
