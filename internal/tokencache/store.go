package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token is the cached auth state for one vendor: the access token, when it
// stops being usable, and any vendor-specific auth metadata (e.g. the
// signing secret a signed-request vendor returns at login).
type Token struct {
	AccessToken string            `json:"access_token"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// ValidFor reports whether the token is still usable with the given safety
// buffer before its expiry.
func (t *Token) ValidFor(buffer time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return time.Now().Add(buffer).Before(t.ExpiresAt)
}

// Store persists one Token per vendor id. Entries are never explicitly
// deleted; a refresh simply supersedes the previous value.
type Store interface {
	Get(ctx context.Context, vendorID string) (*Token, error)
	Put(ctx context.Context, vendorID string, token *Token) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) *RedisStore {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{
			Addr: redisURL,
		}
	}

	return &RedisStore{client: redis.NewClient(opt)}
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(vendorID string) string {
	return fmt.Sprintf("vendor:token:%s", vendorID)
}

// Get returns the cached token for a vendor, or nil on a miss.
func (s *RedisStore) Get(ctx context.Context, vendorID string) (*Token, error) {
	data, err := s.client.Get(ctx, s.key(vendorID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached token: %w", err)
	}

	var t Token
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to decode cached token: %w", err)
	}
	return &t, nil
}

func (s *RedisStore) Put(ctx context.Context, vendorID string, token *Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}

	// Keep the entry a bit past its own expiry so a refresh can still
	// read the previous metadata; redis reclaims it afterwards.
	ttl := time.Until(token.ExpiresAt) + time.Hour
	if ttl < time.Hour {
		ttl = time.Hour
	}

	return s.client.Set(ctx, s.key(vendorID), data, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
