package cloudauth

import (
	"context"
	"errors"
	"testing"

	"github.com/ezvizgo/cloudauth/rtsp"
)

func TestVerifyDeviceCredentialsFullPass(t *testing.T) {
	api := &fakeAPI{}
	prober := &fakeProber{}
	c := loggedInClient(t, api, func(b *Builder) { b.WithProber(prober) })

	rec := NewDeviceCredentialRecord("D1", allCaps())
	out, err := c.VerifyDeviceCredentials(context.Background(), rec, VerifyOptions{
		ProbeStream: true,
		Address:     "192.168.1.64",
	})
	if err != nil {
		t.Fatalf("VerifyDeviceCredentials failed: %v", err)
	}
	if !out.VerificationCode.IsResolved() || !out.EncryptionKey.IsResolved() {
		t.Fatalf("expected both secrets resolved: %+v", out)
	}

	if prober.calls != 1 {
		t.Fatalf("expected one probe, got %d", prober.calls)
	}
	if prober.address != "192.168.1.64" || prober.username != DefaultCameraUsername {
		t.Fatalf("probe got %q/%q", prober.address, prober.username)
	}
	// Default stream mode authenticates with the encryption key.
	if prober.secret != "EK456" {
		t.Fatalf("probe used wrong secret kind")
	}
	if _, _, _, _, wake := api.calls(); wake != 1 {
		t.Fatalf("expected wake before probe, got %d", wake)
	}
	if got := c.Metrics().Value(MetricProbeSuccess); got != 1 {
		t.Fatalf("expected one probe success, got %d", got)
	}
}

func TestVerifyUsesVerificationCodeWhenFlagged(t *testing.T) {
	prober := &fakeProber{}
	c := loggedInClient(t, &fakeAPI{}, func(b *Builder) { b.WithProber(prober) })

	rec := NewDeviceCredentialRecord("D1", allCaps())
	rec.UsesVerificationCodeForStream = true

	if _, err := c.VerifyDeviceCredentials(context.Background(), rec, VerifyOptions{
		ProbeStream: true,
		Address:     "10.0.0.2",
	}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if prober.secret != "VC123" {
		t.Fatal("expected probe to use the verification code")
	}
}

func TestVerifySkipsProbeWhenNotRequested(t *testing.T) {
	api := &fakeAPI{}
	prober := &fakeProber{}
	c := loggedInClient(t, api, func(b *Builder) { b.WithProber(prober) })

	rec := NewDeviceCredentialRecord("D1", allCaps())
	if _, err := c.VerifyDeviceCredentials(context.Background(), rec, VerifyOptions{}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if prober.calls != 0 {
		t.Fatalf("expected no probe, got %d", prober.calls)
	}
	if _, _, _, _, wake := api.calls(); wake != 0 {
		t.Fatalf("expected no wake without probe, got %d", wake)
	}
}

func TestVerifySkipsProbeForStreamlessDevice(t *testing.T) {
	prober := &fakeProber{}
	c := loggedInClient(t, &fakeAPI{}, func(b *Builder) { b.WithProber(prober) })

	caps := allCaps()
	caps.SupportsStream = false
	rec := NewDeviceCredentialRecord("D1", caps)

	out, err := c.VerifyDeviceCredentials(context.Background(), rec, VerifyOptions{
		ProbeStream: true,
		Address:     "10.0.0.2",
	})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if prober.calls != 0 {
		t.Fatal("streamless device must never be probed")
	}
	if !out.EncryptionKey.IsResolved() {
		t.Fatal("secrets should still resolve for streamless devices")
	}
}

func TestVerifyAuthFailureKeepsResolvedSecrets(t *testing.T) {
	prober := &fakeProber{err: rtsp.ErrAuthFailed}
	c := loggedInClient(t, &fakeAPI{}, func(b *Builder) { b.WithProber(prober) })

	rec := NewDeviceCredentialRecord("D1", allCaps())
	out, err := c.VerifyDeviceCredentials(context.Background(), rec, VerifyOptions{
		ProbeStream: true,
		Address:     "10.0.0.2",
	})
	if !errors.Is(err, rtsp.ErrAuthFailed) {
		t.Fatalf("expected rtsp.ErrAuthFailed, got %v", err)
	}
	// The fetched values survive, so the caller can flip the stream
	// mode and verify again without re-fetching.
	if out == nil || !out.VerificationCode.IsResolved() || !out.EncryptionKey.IsResolved() {
		t.Fatalf("expected partial record with resolved secrets, got %+v", out)
	}
	if got := c.Metrics().Value(MetricProbeAuthFailed); got != 1 {
		t.Fatalf("expected one auth-failed probe, got %d", got)
	}
}

func TestVerifyStopsAtFailedResolution(t *testing.T) {
	api := &fakeAPI{
		ekFn: func(_, _ string) (string, error) { return "", ErrMFARequired },
	}
	prober := &fakeProber{}
	c := loggedInClient(t, api, func(b *Builder) { b.WithProber(prober) })

	rec := NewDeviceCredentialRecord("D1", allCaps())
	out, err := c.VerifyDeviceCredentials(context.Background(), rec, VerifyOptions{
		ProbeStream: true,
		Address:     "10.0.0.2",
	})
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("expected ErrMFARequired, got %v", err)
	}
	if prober.calls != 0 {
		t.Fatal("probe must not run when resolution failed")
	}
	if out == nil {
		t.Fatal("expected partial record back")
	}
}
