// Package coordinator is the polling collaborator of the auth engine: it
// keeps a device-state map fresh on an interval, pauses while the
// account needs reauthentication, and is the single writer merging push
// events into that map.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ezvizgo/cloudauth"
	"github.com/ezvizgo/cloudauth/session"
)

// AuthGateway is the slice of the auth client the coordinator needs.
type AuthGateway interface {
	EnsureSession(ctx context.Context, force bool) (*session.Session, error)
	Reauth() *cloudauth.ReauthSignal
	RaiseReauth(ctx context.Context)
}

// DeviceState is one device's projected state. The coordinator owns the
// map of these; Snapshot hands out copies.
type DeviceState struct {
	Serial           string
	Name             string
	LocalIP          string
	Category         string
	Online           bool
	LastAlarmType    string
	LastAlarmCode    string
	LastAlarmTime    string
	LastAlarmPicture string
	MotionTriggered  bool
}

// PushEvent is a push notification delivered from the transport
// goroutine. It crosses into the coordinator over a channel, so the
// state map keeps a single writer.
type PushEvent struct {
	Serial     string
	AlertType  string
	AlertCode  string
	Time       string
	PictureURL string
}

// FetchFunc loads the current device states with an authenticated
// session. Device enumeration itself is the caller's protocol.
type FetchFunc func(ctx context.Context, sess *session.Session) (map[string]DeviceState, error)

// Health classifies the coordinator's last refresh.
type Health uint8

const (
	// HealthUnknown means no refresh has completed yet.
	HealthUnknown Health = iota
	// HealthOK means the last refresh succeeded.
	HealthOK
	// HealthNeedsReauth means the session was rejected and user
	// interaction is required.
	HealthNeedsReauth
	// HealthRetrying means a transport failure; refreshes continue with
	// backoff.
	HealthRetrying
)

// Option tunes a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the refresh period.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithMaxBackoff caps the transport-failure backoff.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Coordinator) { c.maxBackoff = d }
}

// Coordinator runs the poll/merge loop for one account.
type Coordinator struct {
	auth       AuthGateway
	fetch      FetchFunc
	interval   time.Duration
	maxBackoff time.Duration

	events chan PushEvent

	mu      sync.RWMutex
	data    map[string]DeviceState
	health  Health
	lastErr error
}

// New returns a Coordinator; Run must be started by the caller.
func New(auth AuthGateway, fetch FetchFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		auth:       auth,
		fetch:      fetch,
		interval:   30 * time.Second,
		maxBackoff: 5 * time.Minute,
		events:     make(chan PushEvent, 16),
		data:       make(map[string]DeviceState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events is the send side for push transports.
func (c *Coordinator) Events() chan<- PushEvent {
	return c.events
}

// Snapshot copies the current device-state map.
func (c *Coordinator) Snapshot() map[string]DeviceState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]DeviceState, len(c.data))
	for serial, state := range c.data {
		out[serial] = state
	}
	return out
}

// Device returns one device's state.
func (c *Coordinator) Device(serial string) (DeviceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.data[serial]
	return state, ok
}

// Health reports the last refresh classification and its error, if any.
func (c *Coordinator) HealthState() (Health, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health, c.lastErr
}

// Run drives refreshes until the context ends. All writes to the state
// map happen on this goroutine; push events and poll results are
// serialized here.
func (c *Coordinator) Run(ctx context.Context) error {
	backoff := c.interval

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.merge(ev)
			continue
		case <-timer.C:
		}

		// While reauth is pending, hammering the service is pointless;
		// block until an interactive login clears the signal.
		if err := c.auth.Reauth().Wait(ctx); err != nil {
			return err
		}

		if err := c.refresh(ctx); err != nil {
			if authFailure(err) {
				c.auth.RaiseReauth(ctx)
				c.setHealth(HealthNeedsReauth, err)
				timer.Reset(c.interval)
				continue
			}
			c.setHealth(HealthRetrying, err)
			backoff = min(backoff*2, c.maxBackoff)
			timer.Reset(backoff)
			continue
		}

		c.setHealth(HealthOK, nil)
		backoff = c.interval
		timer.Reset(c.interval)
	}
}

func (c *Coordinator) refresh(ctx context.Context) error {
	sess, err := c.auth.EnsureSession(ctx, false)
	if err != nil {
		return err
	}
	states, err := c.fetch(ctx, sess)
	if err != nil {
		return err
	}

	c.mu.Lock()
	// Push-only fields survive a poll that does not carry them.
	for serial, state := range states {
		if prev, ok := c.data[serial]; ok && state.LastAlarmTime == "" {
			state.LastAlarmType = prev.LastAlarmType
			state.LastAlarmCode = prev.LastAlarmCode
			state.LastAlarmTime = prev.LastAlarmTime
			state.LastAlarmPicture = prev.LastAlarmPicture
			state.MotionTriggered = prev.MotionTriggered
		}
		c.data[serial] = state
	}
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) merge(ev PushEvent) {
	if ev.Serial == "" {
		return
	}

	c.mu.Lock()
	state := c.data[ev.Serial]
	state.Serial = ev.Serial
	if ev.PictureURL != "" {
		state.LastAlarmPicture = ev.PictureURL
	}
	if ev.AlertType != "" {
		state.LastAlarmType = ev.AlertType
	}
	if ev.AlertCode != "" {
		state.LastAlarmCode = ev.AlertCode
	}
	if ev.Time != "" {
		state.LastAlarmTime = ev.Time
	}
	state.MotionTriggered = true
	c.data[ev.Serial] = state
	c.mu.Unlock()
}

func (c *Coordinator) setHealth(h Health, err error) {
	c.mu.Lock()
	c.health = h
	c.lastErr = err
	c.mu.Unlock()
}

// authFailure decides whether an error means the session itself is bad,
// as opposed to a transient transport problem.
func authFailure(err error) bool {
	return errors.Is(err, cloudauth.ErrSessionExpired) ||
		errors.Is(err, cloudauth.ErrInvalidCredentials) ||
		errors.Is(err, cloudauth.ErrMFARequired) ||
		errors.Is(err, cloudauth.ErrNoSession)
}
