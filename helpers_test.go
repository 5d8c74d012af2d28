package cloudauth

import (
	"context"
	"sync"
	"testing"

	"github.com/ezvizgo/cloudauth/session"
)

const (
	testAccount = "user@example.com"
	testSecret  = "hunter2-but-longer"
	testHost    = "apiieu.ezvizlife.com"
)

// fakeAPI scripts the cloud service for tests. Zero-value behavior is a
// successful login with a fixed token pair and successful device calls.
type fakeAPI struct {
	mu sync.Mutex

	loginCalls   int
	sendOTPCalls int
	vcCalls      int
	ekCalls      int
	wakeCalls    int
	lastBiz      BizType

	loginFn func(account, secret, otp string) (*loginReply, error)
	vcFn    func(serial, otp string) (string, error)
	ekFn    func(serial, otp string) (string, error)
	sendErr error
	wakeErr error

	// loginStarted/loginRelease gate the login call for concurrency
	// tests. Both nil means logins return immediately.
	loginStarted chan struct{}
	loginRelease chan struct{}
}

func (f *fakeAPI) Login(_ context.Context, _, account, secret, otp string) (*loginReply, error) {
	f.mu.Lock()
	f.loginCalls++
	started := f.loginStarted
	release := f.loginRelease
	fn := f.loginFn
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if release != nil {
		<-release
	}

	if fn != nil {
		return fn(account, secret, otp)
	}
	return &loginReply{SessionID: "sid-1", RefreshSessionID: "rid-1", AccountUserID: "user-1"}, nil
}

func (f *fakeAPI) SendOTP(_ context.Context, _ *session.Session, _, _ string, biz BizType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendOTPCalls++
	f.lastBiz = biz
	return f.sendErr
}

func (f *fakeAPI) FetchVerificationCode(_ context.Context, _ *session.Session, serial, otp string) (string, error) {
	f.mu.Lock()
	f.vcCalls++
	fn := f.vcFn
	f.mu.Unlock()
	if fn != nil {
		return fn(serial, otp)
	}
	return "VC123", nil
}

func (f *fakeAPI) FetchEncryptionKey(_ context.Context, _ *session.Session, serial, otp string) (string, error) {
	f.mu.Lock()
	f.ekCalls++
	fn := f.ekFn
	f.mu.Unlock()
	if fn != nil {
		return fn(serial, otp)
	}
	return "EK456", nil
}

func (f *fakeAPI) WakeDevice(_ context.Context, _ *session.Session, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wakeCalls++
	return f.wakeErr
}

func (f *fakeAPI) calls() (login, sendOTP, vc, ek, wake int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.sendOTPCalls, f.vcCalls, f.ekCalls, f.wakeCalls
}

// fakeProber records the one probe a verify pass makes.
type fakeProber struct {
	mu       sync.Mutex
	calls    int
	address  string
	username string
	secret   string
	err      error
}

func (p *fakeProber) Probe(_ context.Context, address, username, secret string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.address = address
	p.username = username
	p.secret = secret
	return p.err
}

func newTestClient(t *testing.T, api CloudAPI, mutate func(*Builder)) *Client {
	t.Helper()

	b := New().WithAccount(testAccount, testSecret).WithAPI(api)
	if mutate != nil {
		mutate(b)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// seededSession is a completed pair whose SessionID is not a JWT, so the
// local expiry check never fires for it.
func seededSession() *session.Session {
	return &session.Session{
		SessionID:        "opaque-session-token",
		RefreshSessionID: "opaque-refresh-token",
		APIHost:          testHost,
		AccountUserID:    "user-1",
		ValidSince:       1700000000,
	}
}

func loggedInClient(t *testing.T, api CloudAPI, mutate func(*Builder)) *Client {
	t.Helper()
	return newTestClient(t, api, func(b *Builder) {
		b.WithSession(seededSession())
		if mutate != nil {
			mutate(b)
		}
	})
}
