package cloudauth

import (
	"context"
	"errors"
	"testing"
)

func allCaps() DeviceCapabilities {
	return DeviceCapabilities{
		SupportsVerificationCode: true,
		SupportsEncryptionKey:    true,
		SupportsStream:           true,
	}
}

func TestResolveVerificationCodeFetchesPending(t *testing.T) {
	api := &fakeAPI{}
	c := loggedInClient(t, api, nil)

	rec := NewDeviceCredentialRecord("D1", allCaps())
	out, err := c.ResolveVerificationCode(context.Background(), rec, "")
	if err != nil {
		t.Fatalf("ResolveVerificationCode failed: %v", err)
	}
	if out.VerificationCode.Value() != "VC123" {
		t.Fatalf("expected resolved code, got %v", out.VerificationCode)
	}
	// The input record is never mutated.
	if !rec.VerificationCode.IsPending() {
		t.Fatal("input record was mutated")
	}
	if _, _, vc, _, _ := api.calls(); vc != 1 {
		t.Fatalf("expected one fetch, got %d", vc)
	}
}

func TestResolveIsIdempotentOnResolvedSecret(t *testing.T) {
	api := &fakeAPI{}
	c := loggedInClient(t, api, nil)

	rec := NewDeviceCredentialRecord("D1", allCaps())
	out, err := c.ResolveVerificationCode(context.Background(), rec, "")
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	again, err := c.ResolveVerificationCode(context.Background(), out, "")
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if again != out {
		t.Fatal("expected resolved record returned unchanged")
	}
	if _, _, vc, _, _ := api.calls(); vc != 1 {
		t.Fatalf("expected no further network calls, got %d", vc)
	}
}

func TestResolveHonorsCapabilityGate(t *testing.T) {
	api := &fakeAPI{}
	c := loggedInClient(t, api, nil)

	rec := NewDeviceCredentialRecord("D1", DeviceCapabilities{SupportsEncryptionKey: true})
	out, err := c.ResolveVerificationCode(context.Background(), rec, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != rec {
		t.Fatal("unsupported kind should return the record untouched")
	}
	if _, _, vc, _, _ := api.calls(); vc != 0 {
		t.Fatalf("expected zero fetches, got %d", vc)
	}
}

func TestResolveRequiresSession(t *testing.T) {
	c := newTestClient(t, &fakeAPI{}, nil)

	rec := NewDeviceCredentialRecord("D1", allCaps())
	if _, err := c.ResolveEncryptionKey(context.Background(), rec, ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestResolveSurfacesSessionExpiry(t *testing.T) {
	api := &fakeAPI{
		ekFn: func(_, _ string) (string, error) { return "", ErrSessionExpired },
	}
	c := loggedInClient(t, api, nil)

	rec := NewDeviceCredentialRecord("D1", allCaps())
	out, err := c.ResolveEncryptionKey(context.Background(), rec, "")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	// The record comes back so the caller can retry after reauth.
	if out == nil || !out.EncryptionKey.IsPending() {
		t.Fatalf("expected pending record back, got %+v", out)
	}
}

func TestResolveEncryptionKeyMFARoundTrip(t *testing.T) {
	api := &fakeAPI{
		ekFn: func(_, otp string) (string, error) {
			if otp == "" {
				return "", ErrMFARequired
			}
			return "EK456", nil
		},
	}
	c := loggedInClient(t, api, nil)

	rec := NewDeviceCredentialRecord("D1", allCaps())
	_, err := c.ResolveEncryptionKey(context.Background(), rec, "")
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("expected ErrMFARequired, got %v", err)
	}
	if _, sendOTP, _, _, _ := api.calls(); sendOTP != 1 {
		t.Fatalf("expected device-auth code send, got %d", sendOTP)
	}
	if api.lastBiz != BizDeviceAuth {
		t.Fatalf("expected DEVICE_AUTH_CODE biz, got %q", api.lastBiz)
	}

	out, err := c.ResolveEncryptionKey(context.Background(), rec, "654321")
	if err != nil {
		t.Fatalf("resolve with code failed: %v", err)
	}
	if out.EncryptionKey.Value() != "EK456" {
		t.Fatalf("expected resolved key, got %v", out.EncryptionKey)
	}
	if got := c.MFA().State(opEncryptionKey("D1")); got != MFAStateNone {
		t.Fatalf("expected consumed challenge, got state %d", got)
	}
}

func TestAbandonCredentialMFA(t *testing.T) {
	api := &fakeAPI{
		vcFn: func(_, otp string) (string, error) {
			if otp == "" {
				return "", ErrMFARequired
			}
			return "VC123", nil
		},
	}
	c := loggedInClient(t, api, nil)

	rec := NewDeviceCredentialRecord("D1", allCaps())
	if _, err := c.ResolveVerificationCode(context.Background(), rec, ""); !errors.Is(err, ErrMFARequired) {
		t.Fatalf("expected ErrMFARequired, got %v", err)
	}
	if got := c.MFA().State(opVerificationCode("D1")); got != MFAStateRequested {
		t.Fatalf("expected requested challenge, got state %d", got)
	}

	c.AbandonCredentialMFA("D1")
	if got := c.MFA().State(opVerificationCode("D1")); got != MFAStateNone {
		t.Fatalf("expected abandoned challenge gone, got state %d", got)
	}
}

func TestWakeDevice(t *testing.T) {
	api := &fakeAPI{}
	c := loggedInClient(t, api, nil)

	if err := c.WakeDevice(context.Background(), "D1"); err != nil {
		t.Fatalf("WakeDevice failed: %v", err)
	}
	if _, _, _, _, wake := api.calls(); wake != 1 {
		t.Fatalf("expected one wake call, got %d", wake)
	}
}

func TestWakeDeviceRequiresSession(t *testing.T) {
	c := newTestClient(t, &fakeAPI{}, nil)
	if err := c.WakeDevice(context.Background(), "D1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
