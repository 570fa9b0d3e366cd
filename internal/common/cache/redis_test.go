package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dumeirei/school-portal-backend/internal/common/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newClient(t *testing.T, s *miniredis.Miniredis) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestInit(t *testing.T) {
	t.Run("连接成功", func(t *testing.T) {
		s := setupMiniRedis(t)
		port, err := strconv.Atoi(s.Port())
		require.NoError(t, err)

		client, err := Init(&config.RedisConfig{Host: s.Host(), Port: port, PoolSize: 2, DialTimeout: 1, ReadTimeout: 1, WriteTimeout: 1})
		require.NoError(t, err)
		assert.NoError(t, client.Close())
	})

	t.Run("连接失败", func(t *testing.T) {
		_, err := Init(&config.RedisConfig{Host: "127.0.0.1", Port: 1, DialTimeout: 1})
		assert.Error(t, err)
	})
}

func TestJSONCache(t *testing.T) {
	s := setupMiniRedis(t)
	client := newClient(t, s)
	ctx := context.Background()
	key := BuildKey(KeyPrefixPlan, "active")

	type plan struct {
		Code  string `json:"code"`
		Price string `json:"price"`
	}
	require.NoError(t, SetJSON(ctx, client, key, []plan{{Code: "starter", Price: "1000.00"}}, time.Minute))
	assert.Equal(t, time.Minute, s.TTL(key))

	var got []plan
	hit, err := GetJSON(ctx, client, key, &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "starter", got[0].Code)

	t.Run("未命中", func(t *testing.T) {
		hit, err := GetJSON(ctx, client, BuildKey(KeyPrefixPlan, "missing"), &got)
		assert.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("损坏数据按未命中处理", func(t *testing.T) {
		require.NoError(t, s.Set(BuildKey(KeyPrefixPlan, "bad"), "{"))
		hit, err := GetJSON(ctx, client, BuildKey(KeyPrefixPlan, "bad"), &got)
		assert.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("删除", func(t *testing.T) {
		require.NoError(t, Delete(ctx, client, key))
		assert.False(t, s.Exists(key))
	})

	t.Run("Redis 故障返回错误", func(t *testing.T) {
		s.SetError("LOADING")
		defer s.SetError("")
		_, err := GetJSON(ctx, client, key, &got)
		assert.Error(t, err)
	})
}

func TestNilClient(t *testing.T) {
	ctx := context.Background()
	var dest map[string]string

	hit, err := GetJSON(ctx, nil, "k", &dest)
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, SetJSON(ctx, nil, "k", "v", time.Second))
	assert.NoError(t, Delete(ctx, nil, "k"))

	first, err := MarkOnce(ctx, nil, "k", time.Second)
	assert.NoError(t, err)
	assert.True(t, first)
}

func TestMarkOnce(t *testing.T) {
	s := setupMiniRedis(t)
	client := newClient(t, s)
	ctx := context.Background()
	key := BuildKey(KeyPrefixWebhook, "REF1")

	first, err := MarkOnce(ctx, client, key, time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = MarkOnce(ctx, client, key, time.Hour)
	require.NoError(t, err)
	assert.False(t, first)

	s.FastForward(time.Hour + time.Second)
	first, _ = MarkOnce(ctx, client, key, time.Hour)
	assert.True(t, first)
}

func TestLocker(t *testing.T) {
	s := setupMiniRedis(t)
	client := newClient(t, s)
	ctx := context.Background()
	locker := NewLocker(client)
	key := BuildKey(KeyPrefixAttribution, "42")

	first, err := locker.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)

	t.Run("持有期间再次加锁失败", func(t *testing.T) {
		_, err := locker.Acquire(ctx, key, 30*time.Second)
		assert.ErrorIs(t, err, ErrLockNotAcquired)
	})

	t.Run("过期后他人持有时原持有者不能误删", func(t *testing.T) {
		s.FastForward(31 * time.Second)
		second, err := locker.Acquire(ctx, key, 30*time.Second)
		require.NoError(t, err)

		require.NoError(t, first.Release(ctx))
		assert.True(t, s.Exists(key))

		require.NoError(t, second.Release(ctx))
		assert.False(t, s.Exists(key))
	})

	t.Run("未配置 Redis 时直接成功", func(t *testing.T) {
		lk, err := NewLocker(nil).Acquire(ctx, key, time.Second)
		require.NoError(t, err)
		assert.NoError(t, lk.Release(ctx))
	})
}

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "lock:attribution:42", BuildKey(KeyPrefixAttribution, "42"))
	assert.Equal(t, "pricing:plan:active", BuildKey(KeyPrefixPlan, "active"))
	assert.Equal(t, "webhook:seen:a:b", BuildKey(KeyPrefixWebhook, "a", "b"))
}
