package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-memory redisKV.
type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if b, ok := value.([]byte); ok {
		f.values[key] = string(b)
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	kv := newFakeRedis()
	store := newRedisStore(kv, 7*24*time.Hour)

	cart, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", cart.ID)
	assert.True(t, cart.IsEmpty())

	cart.Items = append(cart.Items, item("p1", "12.50", 2))
	require.NoError(t, store.Save(ctx, cart))
	assert.Contains(t, kv.values, "cart:c1")
	assert.Equal(t, 7*24*time.Hour, kv.ttls["cart:c1"])

	loaded, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "25.00", loaded.Subtotal().StringFixed(2))

	require.NoError(t, store.Delete(ctx, "c1"))
	assert.NotContains(t, kv.values, "cart:c1")
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()

	kv := newFakeRedis()
	kv.getErr = errors.New("connection refused")
	_, err := newRedisStore(kv, time.Hour).Get(ctx, "c1")
	assert.ErrorContains(t, err, "connection refused")

	kv = newFakeRedis()
	kv.values["cart:c1"] = "{"
	_, err = newRedisStore(kv, time.Hour).Get(ctx, "c1")
	assert.ErrorContains(t, err, "decode cart")
}
