// Package middleware 提供 HTTP 中间件
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
)

const maxLoggedBody = 16 << 10

// OperationLogger 管理端操作日志中间件
type OperationLogger struct {
	repo  *repository.OperationLogRepository
	async bool
}

// NewOperationLogger 创建操作日志中间件，日志异步写入
func NewOperationLogger(repo *repository.OperationLogRepository) *OperationLogger {
	return &OperationLogger{repo: repo, async: true}
}

// OperationConfig 操作配置
type OperationConfig struct {
	Module     string
	Action     string
	TargetType string
}

// 路由到操作的映射，key 为 "METHOD 路由"，路由不含 /api/v1 前缀
var moduleActionMap = map[string]OperationConfig{
	"POST /admin/auth/login":                    {Module: "auth", Action: "login"},
	"PUT /admin/auth/password":                  {Module: "auth", Action: "change_password"},
	"POST /admin/signups/:id/confirm-payment":   {Module: "signup", Action: "confirm_payment", TargetType: "signup"},
	"POST /admin/signups/:id/attribute":         {Module: "referral", Action: "attribute", TargetType: "signup"},
	"PUT /admin/affiliates/:id/status":          {Module: "affiliate", Action: "update_status", TargetType: "affiliate"},
	"PUT /admin/affiliates/:id/commission-rate": {Module: "affiliate", Action: "update_rate", TargetType: "affiliate"},
	"POST /admin/withdrawals/:id/review":        {Module: "withdrawal", Action: "review", TargetType: "withdrawal"},
	"POST /admin/withdrawals/:id/pay":           {Module: "withdrawal", Action: "pay", TargetType: "withdrawal"},
	"POST /admin/evidence/:id/review":           {Module: "payment", Action: "review_evidence", TargetType: "evidence"},
	"POST /admin/discount-codes":                {Module: "pricing", Action: "create_discount_code", TargetType: "discount_code"},
	"PUT /admin/discount-codes/:id":             {Module: "pricing", Action: "update_discount_code", TargetType: "discount_code"},
	"PUT /admin/pricing/plans/:code":            {Module: "pricing", Action: "update_plan", TargetType: "plan"},
	"PUT /admin/contacts/:id/handled":           {Module: "contact", Action: "mark_handled", TargetType: "contact"},
}

// Log 记录管理员的写操作
func (l *OperationLogger) Log() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWrite(c.Request.Method) {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil && isJSON(c) {
			body, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxLoggedBody+1))
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), c.Request.Body))
		}

		c.Next()

		entry := l.build(c, body)
		if entry == nil {
			return
		}
		if l.async {
			go l.save(entry)
		} else {
			l.save(entry)
		}
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func isJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), gin.MIMEJSON)
}

// build 在请求结束时同步读取上下文，gin.Context 之后会被复用
func (l *OperationLogger) build(c *gin.Context, body []byte) *models.OperationLog {
	if l.repo == nil {
		return nil
	}
	adminID, ok := adminIDFrom(c)
	if !ok {
		return nil
	}

	config := lookupConfig(c.Request.Method, c.FullPath())
	entry := &models.OperationLog{
		AdminID:    adminID,
		Module:     config.Module,
		Action:     config.Action,
		StatusCode: c.Writer.Status(),
		IP:         c.ClientIP(),
	}
	if ua := c.Request.UserAgent(); ua != "" {
		if len(ua) > 255 {
			ua = ua[:255]
		}
		entry.UserAgent = &ua
	}
	if config.TargetType != "" {
		targetType := config.TargetType
		entry.TargetType = &targetType
		if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
			entry.TargetID = &id
		}
	}
	if len(body) > 0 && len(body) <= maxLoggedBody {
		var data map[string]interface{}
		if err := json.Unmarshal(body, &data); err == nil {
			entry.RequestData = filterSensitive(data).(map[string]interface{})
		}
	}
	return entry
}

func (l *OperationLogger) save(entry *models.OperationLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.repo.Create(ctx, entry); err != nil {
		logger.Warn("save operation log failed",
			logger.AdminID(entry.AdminID),
			logger.Module(entry.Module),
			logger.Action(entry.Action),
			zap.Error(err),
		)
	}
}

func adminIDFrom(c *gin.Context) (int64, bool) {
	if c.GetString("user_type") != "admin" {
		return 0, false
	}
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func lookupConfig(method, fullPath string) OperationConfig {
	path := fullPath
	if i := strings.Index(path, "/admin/"); i > 0 {
		path = path[i:]
	}
	if config, ok := moduleActionMap[method+" "+path]; ok {
		return config
	}

	// 未登记的路由按路径和方法推断
	module := "unknown"
	if parts := strings.Split(strings.TrimPrefix(path, "/admin/"), "/"); len(parts) > 0 && parts[0] != "" {
		module = strings.TrimSuffix(parts[0], "s")
	}
	action := "unknown"
	switch method {
	case http.MethodPost:
		action = "create"
	case http.MethodPut, http.MethodPatch:
		action = "update"
	case http.MethodDelete:
		action = "delete"
	}
	return OperationConfig{Module: module, Action: action}
}

var sensitiveFields = []string{
	"password", "token", "secret", "api_key", "account_number",
}

// filterSensitive 屏蔽密码、令牌与银行账号
func filterSensitive(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitive(key) {
				result[key] = "***"
				continue
			}
			result[key] = filterSensitive(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = filterSensitive(item)
		}
		return result
	default:
		return data
	}
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, f := range sensitiveFields {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
