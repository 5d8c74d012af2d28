// Package cloudauth manages authenticated access to a cloud video-device
// service on behalf of downstream consumers such as device-state pollers,
// push-event listeners and per-device stream clients.
//
// The package owns the cloud session lifecycle (login, token rotation,
// one-time multi-factor challenges) and the per-device credential
// resolution sub-flow that obtains and verifies device secrets (a
// verification code or an encryption key) before a device stream can be
// opened. Network retry policy, persistence layout and UI concerns belong
// to the caller.
//
// A Client is assembled through the Builder:
//
//	client, err := cloudauth.New().
//		WithAccount("user@example.com", password).
//		WithConfig(cfg).
//		Build()
//
// Subpackages: session (token set and stores), rtsp (credential probe),
// push (push-event transport) and coordinator (polling collaborator).
package cloudauth
