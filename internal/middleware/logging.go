package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/logger"
)

// 请求体中需要脱敏的字段
var redactedFields = map[string]struct{}{
	"password":         {},
	"old_password":     {},
	"new_password":     {},
	"confirm_password": {},
	"account_number":   {},
	"refresh_token":    {},
}

// LoggingOptions 访问日志选项
type LoggingOptions struct {
	SkipPaths   []string // 运维接口等无需记录的路径
	BodyPaths   []string // 记录请求体的路由前缀，如 /api/v1/admin
	MaxBodySize int
}

// Logging 访问日志中间件
// 路径使用路由模板，避免推广码等参数打散日志聚合
func Logging(log *zap.Logger, opts LoggingOptions) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 2048
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		var body string
		if c.Request.Body != nil && c.Request.Method != "GET" && hasAnyPrefix(c.Request.URL.Path, opts.BodyPaths) &&
			strings.HasPrefix(c.ContentType(), "application/json") {
			raw, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(opts.MaxBodySize)+1))
			if err == nil {
				c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))
				body = redactBody(raw, opts.MaxBodySize)
			}
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			logger.RequestID(GetRequestID(c)),
			logger.Method(c.Request.Method),
			logger.Path(route),
			logger.StatusCode(status),
			logger.Latency(time.Since(start)),
			logger.IP(c.ClientIP()),
		}
		if id := GetAffiliateID(c); id > 0 {
			fields = append(fields, logger.AffiliateID(id))
		}
		if id := GetAdminID(c); id > 0 {
			fields = append(fields, logger.AdminID(id))
		}
		if body != "" {
			fields = append(fields, zap.String("body", body))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.ByType(gin.ErrorTypeAny).String()))
		}

		switch {
		case status >= 500:
			log.Error("http request", fields...)
		case status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// redactBody 对 JSON 顶层敏感字段脱敏；超长或无法解析时只记录长度
func redactBody(raw []byte, limit int) string {
	if len(raw) == 0 {
		return ""
	}
	if len(raw) > limit {
		return "(truncated)"
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return "(non-object)"
	}
	for k := range m {
		if _, ok := redactedFields[strings.ToLower(k)]; ok {
			m[k] = "***"
		}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(out)
}
