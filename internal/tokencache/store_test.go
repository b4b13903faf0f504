package tokencache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreWithClient(client), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tok := &Token{
		AccessToken: "abc",
		ExpiresAt:   time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second),
		Meta:        map[string]string{"secret": "s1"},
	}
	require.NoError(t, store.Put(ctx, "vendor-1", tok))

	got, err := store.Get(ctx, "vendor-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.AccessToken)
	assert.True(t, got.ExpiresAt.Equal(tok.ExpiresAt))
	assert.Equal(t, "s1", got.Meta["secret"])
}

func TestRedisStore_MissIsNilNil(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_RefreshSupersedes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "vendor-1", &Token{AccessToken: "old", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Put(ctx, "vendor-1", &Token{AccessToken: "new", ExpiresAt: time.Now().Add(time.Hour)}))

	got, err := store.Get(ctx, "vendor-1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
}

func TestRedisStore_EntryOutlivesTokenExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "vendor-1", &Token{
		AccessToken: "abc",
		ExpiresAt:   time.Now().Add(30 * time.Minute),
	}))

	ttl := mr.TTL("vendor:token:vendor-1")
	assert.GreaterOrEqual(t, ttl, time.Hour, "the entry stays readable past the token's own expiry")
}

func TestRedisStore_VendorsAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "vendor-1", &Token{AccessToken: "one", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Put(ctx, "vendor-2", &Token{AccessToken: "two", ExpiresAt: time.Now().Add(time.Hour)}))

	got, err := store.Get(ctx, "vendor-2")
	require.NoError(t, err)
	assert.Equal(t, "two", got.AccessToken)
}

func TestTokenValidFor(t *testing.T) {
	var nilTok *Token
	assert.False(t, nilTok.ValidFor(time.Minute))

	assert.False(t, (&Token{ExpiresAt: time.Now().Add(time.Hour)}).ValidFor(time.Minute), "empty access token is never valid")

	tok := &Token{AccessToken: "abc", ExpiresAt: time.Now().Add(10 * time.Minute)}
	assert.True(t, tok.ValidFor(5*time.Minute))
	assert.False(t, tok.ValidFor(15*time.Minute), "expiry inside the buffer counts as expired")
}
