package cloudauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ezvizgo/cloudauth/session"
)

// EnsureSession returns a usable session for the account. With
// force=false a cached session that is not locally expired is returned
// without any network call. Otherwise a login runs; concurrent callers
// for the same account share one in-flight login through a single-flight
// group, so token rotation can never race against itself.
//
// A login interrupted by an MFA demand surfaces ErrMFARequired; the
// caller obtains the one-time code out-of-band and completes the same
// logical attempt with Login.
func (c *Client) EnsureSession(ctx context.Context, force bool) (*session.Session, error) {
	if c == nil || c.api == nil {
		return nil, ErrClientNotReady
	}

	if !force {
		if s := c.sessions.Get(); s.Complete() && !s.ExpiredLocally(time.Now(), c.config.Session.ExpiryLeeway) {
			c.metricInc(MetricSessionReused)
			c.emitAudit(ctx, auditEventSessionReused, true, "", nil, nil)
			return s, nil
		}
	}
	return c.sharedLogin(ctx, "")
}

// Login performs one login call. An empty otp is the first attempt; when
// the service answers "verification required" the caller retries once
// with the delivered code. The code is single use: if the retry is
// interrupted again, a fresh challenge must be requested explicitly.
func (c *Client) Login(ctx context.Context, otp string) (*session.Session, error) {
	if c == nil || c.api == nil {
		return nil, ErrClientNotReady
	}
	return c.sharedLogin(ctx, otp)
}

// AbandonLoginMFA cancels the wait for a login one-time code. An
// in-flight network call is unaffected; only the logical waiting step
// ends and any late result is discarded.
func (c *Client) AbandonLoginMFA() {
	c.mfa.Abandon(opLogin)
}

// sharedLogin funnels every login through the per-account single-flight
// group. At most one attempt is in flight per account; concurrent
// callers observe that attempt's outcome.
func (c *Client) sharedLogin(ctx context.Context, otp string) (*session.Session, error) {
	v, err, _ := c.loginGroup.Do(c.account, func() (interface{}, error) {
		return c.login(ctx, otp)
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

func (c *Client) login(ctx context.Context, otp string) (*session.Session, error) {
	if otp != "" && c.mfa.State(opLogin) != MFAStateNone {
		// One resolution attempt per challenge, win or lose.
		if _, err := c.mfa.Consume(opLogin); err != nil {
			return nil, err
		}
	}

	reply, err := c.api.Login(ctx, c.apiHost, c.account, c.secret, otp)
	if err != nil {
		switch {
		case errors.Is(err, ErrMFARequired):
			// The service dispatched a code alongside this answer;
			// record the pending challenge for the retry.
			c.metricInc(MetricMFARequired)
			if _, reqErr := c.mfa.Request(ctx, nil, opLogin, BizLogin); reqErr != nil {
				return nil, reqErr
			}
			c.emitAudit(ctx, auditEventLoginMFA, false, "", err, nil)
		case errors.Is(err, ErrTransport):
			c.metricInc(MetricTransportError)
			c.emitAudit(ctx, auditEventLogin, false, "", err, nil)
		default:
			c.metricInc(MetricLoginFailure)
			c.emitAudit(ctx, auditEventLogin, false, "", err, nil)
		}
		return nil, opError("login", "", err)
	}

	candidate := &session.Session{
		SessionID:        reply.SessionID,
		RefreshSessionID: reply.RefreshSessionID,
		APIHost:          c.apiHost,
		AccountUserID:    reply.AccountUserID,
		ValidSince:       time.Now().Unix(),
	}

	rotated := c.sessions.ApplyRotation(candidate)
	if rotated {
		c.metricInc(MetricSessionRotated)
		if c.onRotation != nil {
			c.onRotation(ctx, c.account, c.sessions.Get())
		}
		c.emitAudit(ctx, auditEventSessionRotated, true, "", nil, nil)
	}

	if otp != "" {
		c.metricInc(MetricMFAResolved)
		c.emitAudit(ctx, auditEventLoginMFA, true, "", nil, nil)
	}
	c.metricInc(MetricLoginSuccess)
	c.emitAudit(ctx, auditEventLogin, true, "", nil, func() map[string]string {
		return map[string]string{"rotated": strconv.FormatBool(rotated)}
	})

	// A fresh accepted session re-establishes the account, whichever
	// path triggered the login.
	c.reauth.clear()

	return c.sessions.Get(), nil
}
