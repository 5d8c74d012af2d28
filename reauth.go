package cloudauth

import (
	"context"
	"sync"
)

// ReauthSignal is a single-fire notification that the cloud session for
// an account was rejected and must be re-established interactively.
// Once raised it stays raised until a successful EnsureSession(force)
// clears it; while raised, polling, push and stream collaborators are
// expected to pause instead of hammering the service with doomed calls.
type ReauthSignal struct {
	mu      sync.Mutex
	raised  bool
	cleared chan struct{}
}

// NewReauthSignal returns a lowered signal.
func NewReauthSignal() *ReauthSignal {
	return &ReauthSignal{cleared: make(chan struct{})}
}

// Raise fires the signal. Raising an already-raised signal is a no-op,
// so concurrent failure paths cannot double-fire.
func (r *ReauthSignal) Raise() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.raised {
		return false
	}
	r.raised = true
	r.cleared = make(chan struct{})
	return true
}

// clear lowers the signal. Only the auth client calls this, after a
// successful forced login.
func (r *ReauthSignal) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.raised {
		r.raised = false
		close(r.cleared)
	}
}

// Raised reports the current state.
func (r *ReauthSignal) Raised() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.raised
}

// RaiseReauth fires the account's reauth signal with metrics and audit
// attached. Collaborators call this when the cloud service rejects the
// session.
func (c *Client) RaiseReauth(ctx context.Context) {
	if c.reauth.Raise() {
		c.metricInc(MetricReauthRaised)
		c.emitAudit(ctx, auditEventReauthRaised, false, "", nil, nil)
	}
}

// Wait blocks while the signal is raised, returning nil once it clears
// or the context's error on cancellation. A lowered signal returns
// immediately.
func (r *ReauthSignal) Wait(ctx context.Context) error {
	r.mu.Lock()
	if !r.raised {
		r.mu.Unlock()
		return nil
	}
	cleared := r.cleared
	r.mu.Unlock()

	select {
	case <-cleared:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
