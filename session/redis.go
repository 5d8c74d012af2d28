package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cas"

// ErrRedisUnavailable wraps backend failures of the redis persistence
// adapter.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned by RedisStore.Load when no session is
// persisted for the account.
var ErrSessionNotFound = errors.New("session not found")

// RedisStore persists the account session so a restarted process can come
// back with the last rotated token pair instead of forcing a fresh login.
// It is an optional collaborator: the in-memory Store stays authoritative
// and writes happen only when ApplyRotation reports a change.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore returns a RedisStore using the given key prefix, or the
// package default when prefix is empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(account string) string {
	return s.prefix + ":" + account
}

// Save writes the session blob for the account. No TTL: the cloud service
// decides token validity, not this store.
func (s *RedisStore) Save(ctx context.Context, account string, sess *Session) error {
	blob, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(account), blob, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Load reads the persisted session for the account.
func (s *RedisStore) Load(ctx context.Context, account string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(account)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// Delete drops the persisted session. Deleting an absent session is not
// an error.
func (s *RedisStore) Delete(ctx context.Context, account string) error {
	if err := s.redis.Del(ctx, s.key(account)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
