package cloudauth

import (
	"context"
	"errors"

	"github.com/ezvizgo/cloudauth/rtsp"
)

// StreamProber abstracts the protocol-level credential check so tests
// can substitute a fake device.
type StreamProber interface {
	Probe(ctx context.Context, address, username, secret string) error
}

// VerifyOptions drives one VerifyDeviceCredentials pass. The OTP fields
// carry one-time codes for the two independent device-auth challenges;
// they are consumed by this call and never persisted.
type VerifyOptions struct {
	VerificationOTP string
	EncryptionOTP   string
	// ProbeStream opts into the RTSP check. Probing is explicit per
	// invocation: some device categories have no stream endpoint, and a
	// probe can needlessly wake a battery-powered device.
	ProbeStream bool
	// Address is the device's LAN host[:port], required when probing.
	Address string
}

// VerifyDeviceCredentials resolves whatever the record marks Pending and
// optionally proves the resulting stream secret against the device:
// encryption key first, then verification code, then wake plus RTSP
// DESCRIBE when requested.
//
// On error the returned record still carries everything resolved so far,
// so a UI layer can re-prompt for the failing piece without re-fetching
// values that already succeeded. rtsp.ErrAuthFailed in particular means
// the selected secret kind is wrong for this device: if the record's
// capabilities allow it, flip UsesVerificationCodeForStream and verify
// again.
func (c *Client) VerifyDeviceCredentials(ctx context.Context, rec *DeviceCredentialRecord, opts VerifyOptions) (*DeviceCredentialRecord, error) {
	if c == nil || c.api == nil {
		return nil, ErrClientNotReady
	}
	if rec == nil || rec.DeviceID == "" {
		return nil, errors.New("device credential record missing device id")
	}

	out, err := c.ResolveEncryptionKey(ctx, rec, opts.EncryptionOTP)
	if err != nil {
		return out, err
	}
	out, err = c.ResolveVerificationCode(ctx, out, opts.VerificationOTP)
	if err != nil {
		return out, err
	}

	if !opts.ProbeStream || !out.Capabilities.SupportsStream {
		return out, nil
	}

	secret := out.StreamSecret()
	if !secret.IsResolved() {
		return out, opError("rtsp probe", out.DeviceID, errors.New("stream secret not resolved"))
	}

	// Hibernating devices drop the RTSP port; a harmless read through
	// the cloud wakes them first.
	if err := c.WakeDevice(ctx, out.DeviceID); err != nil {
		return out, err
	}

	mu := c.deviceLock(out.DeviceID)
	mu.Lock()
	defer mu.Unlock()

	if err := c.prober.Probe(ctx, opts.Address, out.Username, secret.Value()); err != nil {
		switch {
		case errors.Is(err, rtsp.ErrAuthFailed):
			c.metricInc(MetricProbeAuthFailed)
		case errors.Is(err, rtsp.ErrTransport):
			c.metricInc(MetricTransportError)
		default:
			c.metricInc(MetricProbeDeviceError)
		}
		c.emitAudit(ctx, auditEventProbe, false, out.DeviceID, nil, func() map[string]string {
			return map[string]string{"mode": streamMode(out)}
		})
		return out, opError("rtsp probe", out.DeviceID, err)
	}

	c.metricInc(MetricProbeSuccess)
	c.emitAudit(ctx, auditEventProbe, true, out.DeviceID, nil, func() map[string]string {
		return map[string]string{"mode": streamMode(out)}
	})
	return out, nil
}

func streamMode(rec *DeviceCredentialRecord) string {
	if rec.UsesVerificationCodeForStream {
		return "verification_code"
	}
	return "encryption_key"
}
