package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/response"
)

// 固定窗口计数：首次计数时设置过期，返回 {计数, 剩余毫秒}
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// IPRateLimit 按客户端 IP 的固定窗口限流，键为 ratelimit:<name>:<ip>
// client 为 nil 或 Redis 出错时放行
func IPRateLimit(client *redis.Client, name string, limit int, window time.Duration) gin.HandlerFunc {
	prefix := "ratelimit:" + name + ":"
	limitHeader := strconv.Itoa(limit)

	return func(c *gin.Context) {
		if client == nil || limit <= 0 {
			c.Next()
			return
		}

		key := prefix + c.ClientIP()
		res, err := fixedWindow.Run(c.Request.Context(), client, []string{key}, window.Milliseconds()).Int64Slice()
		if err != nil || len(res) != 2 {
			logger.Warn("rate limit check failed, allowing", logger.String("key", key), logger.Err(err))
			c.Next()
			return
		}
		count, ttl := res[0], time.Duration(res[1])*time.Millisecond

		c.Header("X-RateLimit-Limit", limitHeader)
		if count > int64(limit) {
			if ttl <= 0 {
				ttl = window
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int((ttl+time.Second-1)/time.Second)))
			response.TooManyRequests(c, "")
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(limit)-count, 10))
		c.Next()
	}
}
