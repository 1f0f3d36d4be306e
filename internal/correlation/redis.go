package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces correlation entries in Redis.
const redisKeyPrefix = "corr:"

// RedisStore keeps pending entries in Redis so callbacks can land on any
// replica. Expiry is enforced by Redis key TTLs; Pop relies on GETDEL for
// atomicity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store with the given TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(token string) string {
	return redisKeyPrefix + token
}

// Put saves an entry under its token with the store TTL.
func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	if entry.Token == "" {
		return fmt.Errorf("correlation: empty token")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	data, errMarshal := json.Marshal(entry)
	if errMarshal != nil {
		return fmt.Errorf("correlation: marshal entry: %w", errMarshal)
	}
	if errSet := s.client.Set(ctx, s.key(entry.Token), data, s.ttl).Err(); errSet != nil {
		return fmt.Errorf("correlation: redis set: %w", errSet)
	}
	return nil
}

// Pop atomically removes and returns the entry for a token.
func (s *RedisStore) Pop(ctx context.Context, token string) (Entry, bool, error) {
	raw, errGet := s.client.GetDel(ctx, s.key(token)).Result()
	if errors.Is(errGet, redis.Nil) {
		return Entry{}, false, nil
	}
	if errGet != nil {
		return Entry{}, false, fmt.Errorf("correlation: redis getdel: %w", errGet)
	}

	var entry Entry
	if errUnmarshal := json.Unmarshal([]byte(raw), &entry); errUnmarshal != nil {
		return Entry{}, false, fmt.Errorf("correlation: unmarshal entry: %w", errUnmarshal)
	}
	return entry, true, nil
}

// NewRedisClient builds a Redis client and verifies connectivity.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("correlation: redis ping: %w", errPing)
	}
	return client, nil
}
