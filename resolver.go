package cloudauth

import (
	"context"
	"errors"

	"github.com/ezvizgo/cloudauth/session"
)

// secretKind selects which device secret a resolution call targets.
type secretKind uint8

const (
	kindVerificationCode secretKind = iota
	kindEncryptionKey
)

func (k secretKind) operation(serial string) string {
	if k == kindVerificationCode {
		return opVerificationCode(serial)
	}
	return opEncryptionKey(serial)
}

func (k secretKind) label() string {
	if k == kindVerificationCode {
		return "verification_code"
	}
	return "encryption_key"
}

// ResolveVerificationCode fetches the device's sticker verification code
// only when the record marks it Pending. A record whose
// code is already concrete, or whose capabilities exclude the kind, is
// returned unchanged with zero network calls. The input record is never
// mutated; the returned record carries the resolved value.
//
// The call requires an established session. If the cloud service rejects
// the session mid-fetch, ErrSessionExpired surfaces unchanged: the
// caller re-runs EnsureSession(force=true) and re-attempts, keeping the
// session and MFA state machines decoupled.
func (c *Client) ResolveVerificationCode(ctx context.Context, rec *DeviceCredentialRecord, otp string) (*DeviceCredentialRecord, error) {
	return c.resolveSecret(ctx, rec, kindVerificationCode, otp)
}

// ResolveEncryptionKey fetches the device's stream encryption key under
// the same contract as ResolveVerificationCode.
func (c *Client) ResolveEncryptionKey(ctx context.Context, rec *DeviceCredentialRecord, otp string) (*DeviceCredentialRecord, error) {
	return c.resolveSecret(ctx, rec, kindEncryptionKey, otp)
}

func (c *Client) resolveSecret(ctx context.Context, rec *DeviceCredentialRecord, kind secretKind, otp string) (*DeviceCredentialRecord, error) {
	if c == nil || c.api == nil {
		return nil, ErrClientNotReady
	}
	if rec == nil || rec.DeviceID == "" {
		return nil, errors.New("device credential record missing device id")
	}

	supported := rec.Capabilities.SupportsVerificationCode
	target := rec.VerificationCode
	if kind == kindEncryptionKey {
		supported = rec.Capabilities.SupportsEncryptionKey
		target = rec.EncryptionKey
	}
	// Unsupported kinds are the caller's capability decision, not an
	// error; the placeholder comes back untouched.
	if !supported || !target.IsPending() {
		return rec, nil
	}

	sess := c.sessions.Get()
	if !sess.Complete() {
		return nil, opError(kind.label(), rec.DeviceID, ErrNoSession)
	}

	mu := c.deviceLock(rec.DeviceID)
	mu.Lock()
	defer mu.Unlock()

	op := kind.operation(rec.DeviceID)
	if otp != "" && c.mfa.State(op) != MFAStateNone {
		if _, err := c.mfa.Consume(op); err != nil {
			return rec, err
		}
	}

	value, err := c.fetchSecret(ctx, sess, rec.DeviceID, kind, otp)
	if err != nil {
		switch {
		case errors.Is(err, ErrMFARequired):
			c.metricInc(MetricMFARequired)
			if _, reqErr := c.mfa.Request(ctx, sess, op, BizDeviceAuth); reqErr != nil {
				return rec, reqErr
			}
		case errors.Is(err, ErrTransport):
			c.metricInc(MetricTransportError)
		default:
			c.metricInc(MetricCredentialFetchFailure)
		}
		c.emitAudit(ctx, auditEventCredentialFetch, false, rec.DeviceID, err, func() map[string]string {
			return map[string]string{"kind": kind.label()}
		})
		return rec, opError(kind.label(), rec.DeviceID, err)
	}

	out := rec.Clone()
	if kind == kindVerificationCode {
		out.VerificationCode = ResolvedSecret(value)
	} else {
		out.EncryptionKey = ResolvedSecret(value)
	}

	c.metricInc(MetricCredentialFetchSuccess)
	if otp != "" {
		c.metricInc(MetricMFAResolved)
	}
	c.emitAudit(ctx, auditEventCredentialFetch, true, rec.DeviceID, nil, func() map[string]string {
		return map[string]string{"kind": kind.label()}
	})
	return out, nil
}

func (c *Client) fetchSecret(ctx context.Context, sess *session.Session, serial string, kind secretKind, otp string) (string, error) {
	if kind == kindVerificationCode {
		return c.api.FetchVerificationCode(ctx, sess, serial, otp)
	}
	return c.api.FetchEncryptionKey(ctx, sess, serial, otp)
}

// AbandonCredentialMFA cancels the pending one-time-code wait for one
// secret kind of one device.
func (c *Client) AbandonCredentialMFA(serial string) {
	c.mfa.Abandon(opVerificationCode(serial))
	c.mfa.Abandon(opEncryptionKey(serial))
}

// WakeDevice issues the cheapest authenticated read for the device so a
// hibernating unit is reachable before a stream probe.
func (c *Client) WakeDevice(ctx context.Context, serial string) error {
	if c == nil || c.api == nil {
		return ErrClientNotReady
	}
	sess := c.sessions.Get()
	if !sess.Complete() {
		return opError("wake device", serial, ErrNoSession)
	}
	if err := c.api.WakeDevice(ctx, sess, serial); err != nil {
		c.emitAudit(ctx, auditEventDeviceWake, false, serial, err, nil)
		return opError("wake device", serial, err)
	}
	c.emitAudit(ctx, auditEventDeviceWake, true, serial, nil, nil)
	return nil
}
