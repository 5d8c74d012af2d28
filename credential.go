package cloudauth

import "strings"

// SecretState classifies a per-device secret field.
type SecretState uint8

const (
	// SecretUnset means the field does not apply or has never been
	// configured for the device.
	SecretUnset SecretState = iota
	// SecretPending means the caller asked for the value to be fetched
	// from the cloud service.
	SecretPending
	// SecretResolved means the field holds a concrete fetched or
	// user-supplied value.
	SecretResolved
)

// Secret is a tagged device secret (verification code or encryption key).
// The zero value is Unset. The tag replaces the historical "fetch my key"
// sentinel string, so the idempotence contract of the resolver is
// type-checkable instead of a string comparison.
type Secret struct {
	state SecretState
	value string
}

// PendingSecret marks a field as "needs fetching".
func PendingSecret() Secret {
	return Secret{state: SecretPending}
}

// ResolvedSecret wraps a concrete value.
func ResolvedSecret(value string) Secret {
	return Secret{state: SecretResolved, value: value}
}

// State returns the tag.
func (s Secret) State() SecretState { return s.state }

// IsPending reports whether the field is marked for fetching.
func (s Secret) IsPending() bool { return s.state == SecretPending }

// IsResolved reports whether the field holds a concrete value.
func (s Secret) IsResolved() bool { return s.state == SecretResolved }

// Value returns the concrete value, or "" unless resolved.
func (s Secret) Value() string {
	if s.state != SecretResolved {
		return ""
	}
	return s.value
}

// String never exposes the secret value. Fmt verbs and audit metadata go
// through here, so a resolved secret prints as a placeholder.
func (s Secret) String() string {
	switch s.state {
	case SecretPending:
		return "secret(pending)"
	case SecretResolved:
		return "secret(resolved)"
	default:
		return "secret(unset)"
	}
}

// Equal compares tag and value.
func (s Secret) Equal(other Secret) bool {
	return s.state == other.state && s.value == other.value
}

const (
	// DefaultCameraUsername is the factory account present on cameras.
	DefaultCameraUsername = "admin"
	// DefaultStreamPath is the substream path, the safer default for
	// bandwidth-limited devices.
	DefaultStreamPath = "/Streaming/Channels/102"

	batteryDeviceCategory = "BatteryCamera"
)

// DeviceCapabilities gates which secret kinds and transports apply to a
// device model. The capability decision belongs to the caller (it knows
// the device category); the resolver only honors it.
type DeviceCapabilities struct {
	SupportsVerificationCode bool
	SupportsEncryptionKey    bool
	SupportsStream           bool
}

// InferStreamSupport applies the category heuristic: battery-powered
// categories generally lack a stream endpoint, and probing them wastes a
// round trip and may wake the device.
func InferStreamSupport(deviceCategory string) bool {
	return !strings.Contains(deviceCategory, batteryDeviceCategory)
}

// DeviceCredentialRecord is the per-device credential state. The caller
// owns the desired-state fields (Username, StreamPath,
// UsesVerificationCodeForStream, Capabilities); the resolver is the
// single writer of the two secret fields, and only when they are Pending.
type DeviceCredentialRecord struct {
	DeviceID                      string
	Username                      string
	VerificationCode              Secret
	EncryptionKey                 Secret
	UsesVerificationCodeForStream bool
	StreamPath                    string
	Capabilities                  DeviceCapabilities
}

// NewDeviceCredentialRecord creates a record with the usual defaults and
// both secrets marked for fetching.
func NewDeviceCredentialRecord(deviceID string, caps DeviceCapabilities) *DeviceCredentialRecord {
	return &DeviceCredentialRecord{
		DeviceID:         deviceID,
		Username:         DefaultCameraUsername,
		VerificationCode: PendingSecret(),
		EncryptionKey:    PendingSecret(),
		StreamPath:       DefaultStreamPath,
		Capabilities:     caps,
	}
}

// Clone returns an independent copy.
func (r *DeviceCredentialRecord) Clone() *DeviceCredentialRecord {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// StreamSecret returns the secret selected for stream authentication by
// the record's mode flag.
func (r *DeviceCredentialRecord) StreamSecret() Secret {
	if r.UsesVerificationCodeForStream {
		return r.VerificationCode
	}
	return r.EncryptionKey
}

// MergeRecords combines two records for the same device, filling gaps in
// a from b. Conflicting concrete data for the same device ID is a caller
// defect and returns ErrDuplicateDevice; nothing is silently overwritten.
func MergeRecords(a, b *DeviceCredentialRecord) (*DeviceCredentialRecord, error) {
	if a == nil || b == nil {
		return nil, opError("merge records", "", ErrDuplicateDevice)
	}
	if a.DeviceID != b.DeviceID {
		return nil, opError("merge records", a.DeviceID, ErrDuplicateDevice)
	}

	conflict := func(x, y Secret) bool {
		return x.IsResolved() && y.IsResolved() && !x.Equal(y)
	}
	if conflict(a.VerificationCode, b.VerificationCode) ||
		conflict(a.EncryptionKey, b.EncryptionKey) {
		return nil, opError("merge records", a.DeviceID, ErrDuplicateDevice)
	}
	if a.Username != "" && b.Username != "" && a.Username != b.Username {
		return nil, opError("merge records", a.DeviceID, ErrDuplicateDevice)
	}
	if a.StreamPath != "" && b.StreamPath != "" && a.StreamPath != b.StreamPath {
		return nil, opError("merge records", a.DeviceID, ErrDuplicateDevice)
	}

	out := a.Clone()
	if !out.VerificationCode.IsResolved() && b.VerificationCode.IsResolved() {
		out.VerificationCode = b.VerificationCode
	}
	if !out.EncryptionKey.IsResolved() && b.EncryptionKey.IsResolved() {
		out.EncryptionKey = b.EncryptionKey
	}
	if out.Username == "" {
		out.Username = b.Username
	}
	if out.StreamPath == "" {
		out.StreamPath = b.StreamPath
	}
	return out, nil
}
