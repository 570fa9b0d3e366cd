// Package cache Redis 连接、JSON 缓存与分布式锁
// Redis 只是加速层：客户端为 nil 或不可用时，各函数按未命中或无操作处理
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dumeirei/school-portal-backend/internal/common/config"
)

// 键前缀
const (
	KeyPrefixPlan        = "pricing:plan:"
	KeyPrefixAttribution = "lock:attribution:"
	KeyPrefixWebhook     = "webhook:seen:"
)

// Init 创建 Redis 客户端并检查连通性
func Init(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  seconds(cfg.DialTimeout),
		ReadTimeout:  seconds(cfg.ReadTimeout),
		WriteTimeout: seconds(cfg.WriteTimeout),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// GetJSON 读取 JSON 缓存；未命中、解码失败或客户端为 nil 时返回 false
func GetJSON(ctx context.Context, client *redis.Client, key string, dest interface{}) (bool, error) {
	if client == nil {
		return false, nil
	}
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func SetJSON(ctx context.Context, client *redis.Client, key string, value interface{}, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return client.Set(ctx, key, data, ttl).Err()
}

// Delete 删除缓存键
func Delete(ctx context.Context, client *redis.Client, keys ...string) error {
	if client == nil || len(keys) == 0 {
		return nil
	}
	return client.Del(ctx, keys...).Err()
}

// MarkOnce 在 ttl 内首次标记返回 true，重复标记返回 false
// 客户端为 nil 时总是返回 true，由调用方的数据库幂等兜底
func MarkOnce(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (bool, error) {
	if client == nil {
		return true, nil
	}
	return client.SetNX(ctx, key, 1, ttl).Result()
}

// BuildKey 拼接缓存键，prefix 以冒号结尾
func BuildKey(prefix string, parts ...string) string {
	return prefix + strings.Join(parts, ":")
}
