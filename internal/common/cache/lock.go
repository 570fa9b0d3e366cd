package cache

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired 锁已被其他持有者占用
var ErrLockNotAcquired = stderrors.New("cache: lock not acquired")

// 仅当值匹配时删除，避免释放他人的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX 的分布式锁
type Locker struct {
	client *redis.Client
}

// NewLocker 创建分布式锁；client 为 nil 时所有加锁直接成功
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lock 表示一次成功加锁
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire 尝试获取锁，失败返回 ErrLockNotAcquired
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if l == nil || l.client == nil {
		return &Lock{key: key}, nil
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release 释放锁
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil || lk.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err()
}
