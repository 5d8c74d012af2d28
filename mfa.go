package cloudauth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ezvizgo/cloudauth/session"
)

// MFAState is the lifecycle of one one-time-code challenge.
type MFAState uint8

const (
	// MFAStateNone means no challenge exists for the operation.
	MFAStateNone MFAState = iota
	// MFAStateRequested means the cloud service was asked to deliver a
	// code and the caller has not supplied it yet.
	MFAStateRequested
	// MFAStateResolved means the single resolution attempt happened.
	MFAStateResolved
	// MFAStateAbandoned means the caller cancelled the wait.
	MFAStateAbandoned
)

// Logical operation keys. A challenge binds to exactly one of these and
// is never reused across operations.
const (
	opLogin = "login"
)

func opVerificationCode(serial string) string { return "authcode:" + serial }
func opEncryptionKey(serial string) string    { return "encryptkey:" + serial }

// MfaChallenge tracks one in-flight one-time-code challenge.
type MfaChallenge struct {
	ID          string
	Operation   string
	Biz         BizType
	RequestedAt time.Time
	state       MFAState
}

// State returns the challenge lifecycle state.
func (c *MfaChallenge) State() MFAState {
	if c == nil {
		return MFAStateNone
	}
	return c.state
}

// MfaChallengeCoordinator tracks one-time-code challenges keyed by
// logical operation (the account login, or one secret kind of one
// device). Each challenge allows exactly one resolution attempt; a
// repeated "verification required" answer needs an explicit new Request,
// so the engine never auto-loops through the account's SMS quota.
type MfaChallengeCoordinator struct {
	mu         sync.Mutex
	api        CloudAPI
	account    string
	apiHost    string
	ttl        time.Duration
	challenges map[string]*MfaChallenge

	now func() time.Time
}

func newMfaChallengeCoordinator(api CloudAPI, account, apiHost string, cfg MFAConfig) *MfaChallengeCoordinator {
	return &MfaChallengeCoordinator{
		api:        api,
		account:    account,
		apiHost:    apiHost,
		ttl:        cfg.ChallengeTTL,
		challenges: make(map[string]*MfaChallenge),
		now:        time.Now,
	}
}

// Request moves the operation to the Requested state. For device-auth
// challenges the cloud service is explicitly asked to (re)send a code
// tagged with the business type; for login challenges the service
// already dispatched one alongside its "verification required" answer,
// so no resend call exists.
//
// Calling Request again for the same operation issues a fresh challenge
// (and a fresh code for device-auth); the caller decides when that is
// worth another SMS.
func (m *MfaChallengeCoordinator) Request(ctx context.Context, sess *session.Session, op string, biz BizType) (*MfaChallenge, error) {
	if biz == BizDeviceAuth {
		if err := m.api.SendOTP(ctx, sess, m.apiHost, m.account, biz); err != nil {
			return nil, opError("request mfa code", "", err)
		}
	}

	ch := &MfaChallenge{
		ID:          uuid.NewString(),
		Operation:   op,
		Biz:         biz,
		RequestedAt: m.now(),
		state:       MFAStateRequested,
	}

	m.mu.Lock()
	m.challenges[op] = ch
	m.mu.Unlock()
	return ch, nil
}

// Consume spends the challenge for the operation. It succeeds at most
// once per challenge, whatever the outcome of the retried operation; the
// caller attaches the user-supplied code to that single retry.
func (m *MfaChallengeCoordinator) Consume(op string) (*MfaChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.challenges[op]
	if !ok {
		return nil, opError(op, "", ErrMFAChallengeNotFound)
	}
	switch ch.state {
	case MFAStateResolved:
		return nil, opError(op, "", ErrMFAChallengeConsumed)
	case MFAStateAbandoned:
		return nil, opError(op, "", ErrMFAChallengeAbandoned)
	}
	if m.ttl > 0 && m.now().Sub(ch.RequestedAt) > m.ttl {
		delete(m.challenges, op)
		return nil, opError(op, "", ErrMFAChallengeExpired)
	}

	ch.state = MFAStateResolved
	delete(m.challenges, op)
	return ch, nil
}

// Abandon cancels the wait for a code. Any network call already in
// flight still completes; only the logical waiting step ends.
func (m *MfaChallengeCoordinator) Abandon(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.challenges[op]; ok && ch.state == MFAStateRequested {
		ch.state = MFAStateAbandoned
		delete(m.challenges, op)
	}
}

// State reports the lifecycle state for the operation.
func (m *MfaChallengeCoordinator) State(op string) MFAState {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.challenges[op]
	if !ok {
		return MFAStateNone
	}
	if m.ttl > 0 && m.now().Sub(ch.RequestedAt) > m.ttl {
		return MFAStateNone
	}
	return ch.state
}
