package cloudauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHost is returned when the configured region or custom API
	// host cannot be resolved to a usable hostname. Terminal until the
	// configuration is corrected.
	ErrInvalidHost = errors.New("invalid api host")
	// ErrTransport wraps network-level failures (dial, timeout, malformed
	// response). Retryable by the caller; this package never retries on
	// its own.
	ErrTransport = errors.New("cloud transport failure")
	// ErrInvalidCredentials is returned when the cloud service rejects the
	// account identity/secret pair. Terminal: a new secret must be
	// collected from the user.
	ErrInvalidCredentials = errors.New("invalid account credentials")
	// ErrMFARequired is a control-flow signal, not a failure: the cloud
	// service wants a one-time code before it completes the operation.
	// Callers retry the same operation once with the code attached.
	ErrMFARequired = errors.New("verification code required")
	// ErrSessionExpired is returned when the cloud service rejects the
	// current session mid-operation. The caller must run
	// EnsureSession(force=true) and only then re-attempt.
	ErrSessionExpired = errors.New("cloud session expired")
	// ErrNoSession is returned by operations that require an established
	// session when none exists yet.
	ErrNoSession = errors.New("no cloud session established")
	// ErrDuplicateDevice is returned when two device credential records
	// with the same device ID carry conflicting data. Always a caller
	// defect; conflicting records are never silently merged.
	ErrDuplicateDevice = errors.New("duplicate device record")
	// ErrDevice is returned when a device-side call is rejected for a
	// reason unrelated to credentials (malformed request, unsupported
	// capability).
	ErrDevice = errors.New("device rejected request")
	// ErrMFAChallengeConsumed is returned when a one-time challenge is
	// resolved a second time. Challenges are single use.
	ErrMFAChallengeConsumed = errors.New("mfa challenge already consumed")
	// ErrMFAChallengeAbandoned is returned when an operation is retried
	// against a challenge the caller already abandoned.
	ErrMFAChallengeAbandoned = errors.New("mfa challenge abandoned")
	// ErrMFAChallengeExpired is returned when the one-time challenge
	// outlived its TTL before the caller supplied a code.
	ErrMFAChallengeExpired = errors.New("mfa challenge expired")
	// ErrMFAChallengeNotFound is returned when a code is supplied for an
	// operation that never requested a challenge.
	ErrMFAChallengeNotFound = errors.New("mfa challenge not found")
	// ErrClientNotReady is returned when a Client is used before Build
	// wired its mandatory dependencies.
	ErrClientNotReady = errors.New("client not initialized")
)

// opError attaches the failing operation and, when applicable, the device
// serial to a taxonomy error so callers can re-prompt precisely.
func opError(op, serial string, err error) error {
	if serial == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s %s: %w", op, serial, err)
}
