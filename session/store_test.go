package session

import (
	"testing"
)

func pair(sid, rid string) *Session {
	return &Session{SessionID: sid, RefreshSessionID: rid, APIHost: "api.example.com"}
}

func TestComplete(t *testing.T) {
	cases := []struct {
		name string
		sess *Session
		want bool
	}{
		{"nil", nil, false},
		{"empty", &Session{}, false},
		{"session only", &Session{SessionID: "a"}, false},
		{"refresh only", &Session{RefreshSessionID: "b"}, false},
		{"both", pair("a", "b"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sess.Complete(); got != tc.want {
				t.Fatalf("Complete() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStoreGetReturnsSnapshot(t *testing.T) {
	s := NewStore()
	if s.Get() != nil {
		t.Fatal("empty store should return nil")
	}

	s.Replace(pair("a", "b"))
	snap := s.Get()
	snap.SessionID = "mutated"

	if s.Get().SessionID != "a" {
		t.Fatal("mutating a snapshot must not affect the store")
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.Replace(pair("a", "b"))
	s.Clear()
	if s.Get() != nil {
		t.Fatal("expected empty store after Clear")
	}
}

func TestApplyRotationInstallsFirstSession(t *testing.T) {
	s := NewStore()
	if !s.ApplyRotation(pair("a", "b")) {
		t.Fatal("first complete pair should install")
	}
	got := s.Get()
	if got.SessionID != "a" || got.RefreshSessionID != "b" {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.ValidSince == 0 {
		t.Fatal("expected ValidSince default")
	}
}

func TestApplyRotationSuppressesEchoedPair(t *testing.T) {
	s := NewStore()
	s.ApplyRotation(pair("a", "b"))

	if s.ApplyRotation(pair("a", "b")) {
		t.Fatal("echoed pair must not report a rotation")
	}
}

func TestApplyRotationChangedEitherToken(t *testing.T) {
	s := NewStore()
	s.ApplyRotation(pair("a", "b"))

	if !s.ApplyRotation(pair("a2", "b")) {
		t.Fatal("changed session token should rotate")
	}
	if !s.ApplyRotation(pair("a2", "b2")) {
		t.Fatal("changed refresh token should rotate")
	}
}

func TestApplyRotationRejectsPartialPair(t *testing.T) {
	s := NewStore()
	s.ApplyRotation(pair("a", "b"))

	if s.ApplyRotation(&Session{SessionID: "only-one"}) {
		t.Fatal("partial pair must never install")
	}
	if s.Get().SessionID != "a" {
		t.Fatal("partial pair corrupted the store")
	}
}

func TestApplyRotationKeepsHost(t *testing.T) {
	s := NewStore()
	s.ApplyRotation(pair("a", "b"))

	next := pair("c", "d")
	next.APIHost = "evil.example.net"
	s.ApplyRotation(next)

	if got := s.Get().APIHost; got != "api.example.com" {
		t.Fatalf("rotation moved the host to %q", got)
	}
}

func TestApplyRotationKeepsUserIDWhenAbsent(t *testing.T) {
	s := NewStore()
	first := pair("a", "b")
	first.AccountUserID = "user-1"
	s.ApplyRotation(first)

	s.ApplyRotation(pair("c", "d"))
	if got := s.Get().AccountUserID; got != "user-1" {
		t.Fatalf("rotation dropped the user id: %q", got)
	}
}
