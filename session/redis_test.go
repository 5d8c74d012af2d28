package session

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ""), mr
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := &Session{
		SessionID:        "sid",
		RefreshSessionID: "rid",
		APIHost:          "api.example.com",
		AccountUserID:    "user-1",
		ValidSince:       1700000000,
	}

	blob, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestDecodeRejectsCorruptBlobs(t *testing.T) {
	good, err := Encode(&Session{SessionID: "sid", RefreshSessionID: "rid"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	cases := map[string][]byte{
		"empty":           {},
		"unknown version": {42},
		"truncated":       good[:len(good)-3],
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(blob); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	in := &Session{
		SessionID:        "sid",
		RefreshSessionID: "rid",
		APIHost:          "api.example.com",
		AccountUserID:    "user-1",
		ValidSince:       1700000000,
	}
	if err := store.Save(ctx, "alice@example.com", in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := store.Load(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *out != *in {
		t.Fatalf("persisted session mismatch: %+v", out)
	}
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store, _ := newRedisStore(t)
	if _, err := store.Load(context.Background(), "nobody"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "alice@example.com", &Session{SessionID: "a", RefreshSessionID: "b"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "alice@example.com"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	// Absent keys delete cleanly.
	if err := store.Delete(ctx, "alice@example.com"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}

func TestRedisStoreBackendFailure(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	if err := store.Save(context.Background(), "alice@example.com", &Session{SessionID: "a", RefreshSessionID: "b"}); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.Load(context.Background(), "alice@example.com"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
