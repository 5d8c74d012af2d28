// Package push ingests push notifications from the cloud service over a
// websocket transport. The listener only consumes a valid session (host
// and tokens); it never participates in credential resolution, and it
// delivers events into the coordinator's channel so the device-state map
// keeps a single writer.
package push

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ezvizgo/cloudauth/coordinator"
	"github.com/ezvizgo/cloudauth/session"
)

// SessionSource hands out the current session snapshot. *session.Store
// satisfies it.
type SessionSource interface {
	Get() *session.Session
}

// ErrSessionRejected means the transport refused the session tokens.
// The caller raises the reauth signal and restarts the listener after an
// interactive login.
var ErrSessionRejected = errors.New("push transport rejected session")

// wireEvent is the push payload shape on the wire. Unknown fields are
// ignored.
type wireEvent struct {
	Alert string `json:"alert"`
	Ext   struct {
		DeviceSerial  string `json:"device_serial"`
		AlertTypeCode string `json:"alert_type_code"`
		Time          string `json:"time"`
		Image         string `json:"image"`
	} `json:"ext"`
}

// Option tunes a Listener.
type Option func(*Listener)

// WithPath overrides the push endpoint path.
func WithPath(path string) Option {
	return func(l *Listener) { l.path = path }
}

// WithHandshakeTimeout bounds the websocket dial.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(l *Listener) { l.dialer.HandshakeTimeout = d }
}

// WithTLSConfig overrides the dialer's TLS configuration.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(l *Listener) { l.dialer.TLSClientConfig = cfg }
}

// Listener reads push events for one account and forwards them.
type Listener struct {
	source SessionSource
	sink   chan<- coordinator.PushEvent
	dialer websocket.Dialer
	path   string
}

// New returns a Listener forwarding into sink (typically
// coordinator.Events()).
func New(source SessionSource, sink chan<- coordinator.PushEvent, opts ...Option) *Listener {
	l := &Listener{
		source: source,
		sink:   sink,
		dialer: websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		path:   "/v3/push/stream",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run connects and reads until the context ends or the transport fails.
// It returns ErrSessionRejected when the service refuses the tokens, a
// wrapped transport error otherwise; reconnect policy belongs to the
// caller, who knows whether a reauth is pending.
func (l *Listener) Run(ctx context.Context) error {
	sess := l.source.Get()
	if !sess.Complete() {
		return ErrSessionRejected
	}

	header := http.Header{}
	header.Set("sessionId", sess.SessionID)

	conn, resp, err := l.dialer.DialContext(ctx, "wss://"+sess.APIHost+l.path, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrSessionRejected
		}
		return fmt.Errorf("push dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				return ErrSessionRejected
			}
			return fmt.Errorf("push read: %w", err)
		}
		if ev.Ext.DeviceSerial == "" {
			continue
		}

		out := coordinator.PushEvent{
			Serial:     ev.Ext.DeviceSerial,
			AlertType:  ev.Alert,
			AlertCode:  ev.Ext.AlertTypeCode,
			Time:       ev.Ext.Time,
			PictureURL: ev.Ext.Image,
		}
		select {
		case l.sink <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
