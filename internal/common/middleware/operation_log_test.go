package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/testsupport"
)

func setupOperationLogRouter(t *testing.T, userType string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testsupport.NewSQLiteDB(t)

	op := NewOperationLogger(repository.NewOperationLogRepository(db))
	op.async = false

	r := gin.New()
	admin := r.Group("/api/v1/admin")
	admin.Use(func(c *gin.Context) {
		c.Set("user_id", int64(1))
		c.Set("user_type", userType)
		c.Next()
	})
	admin.Use(op.Log())

	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"code": 0}) }
	admin.PUT("/affiliates/:id/status", ok)
	admin.POST("/withdrawals/:id/pay", ok)
	admin.POST("/auth/login", ok)
	admin.POST("/widgets", ok)
	admin.GET("/signups", ok)
	return r, db
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func lastLog(t *testing.T, db *gorm.DB) *models.OperationLog {
	t.Helper()
	var log models.OperationLog
	require.NoError(t, db.Order("id DESC").First(&log).Error)
	return &log
}

func TestOperationLogger_Log(t *testing.T) {
	r, db := setupOperationLogRouter(t, "admin")

	t.Run("按路由映射模块和操作", func(t *testing.T) {
		w := doJSON(r, http.MethodPut, "/api/v1/admin/affiliates/42/status", map[string]interface{}{"status": "approved"})
		require.Equal(t, http.StatusOK, w.Code)

		log := lastLog(t, db)
		assert.Equal(t, int64(1), log.AdminID)
		assert.Equal(t, "affiliate", log.Module)
		assert.Equal(t, "update_status", log.Action)
		require.NotNil(t, log.TargetType)
		assert.Equal(t, "affiliate", *log.TargetType)
		require.NotNil(t, log.TargetID)
		assert.Equal(t, int64(42), *log.TargetID)
		assert.Equal(t, http.StatusOK, log.StatusCode)
		assert.Equal(t, "approved", log.RequestData["status"])
	})

	t.Run("敏感字段被屏蔽", func(t *testing.T) {
		doJSON(r, http.MethodPost, "/api/v1/admin/auth/login", map[string]interface{}{"username": "root", "password": "secret-pass"})

		log := lastLog(t, db)
		assert.Equal(t, "auth", log.Module)
		assert.Equal(t, "login", log.Action)
		assert.Equal(t, "***", log.RequestData["password"])
		assert.Equal(t, "root", log.RequestData["username"])
	})

	t.Run("未登记路由按路径推断", func(t *testing.T) {
		doJSON(r, http.MethodPost, "/api/v1/admin/widgets", map[string]interface{}{"name": "x"})

		log := lastLog(t, db)
		assert.Equal(t, "widget", log.Module)
		assert.Equal(t, "create", log.Action)
	})

	t.Run("读操作不记录", func(t *testing.T) {
		var before int64
		require.NoError(t, db.Model(&models.OperationLog{}).Count(&before).Error)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/signups", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)

		var after int64
		require.NoError(t, db.Model(&models.OperationLog{}).Count(&after).Error)
		assert.Equal(t, before, after)
	})
}

func TestOperationLogger_SkipsNonAdmin(t *testing.T) {
	r, db := setupOperationLogRouter(t, "affiliate")
	doJSON(r, http.MethodPost, "/api/v1/admin/withdrawals/1/pay", map[string]interface{}{})

	var count int64
	require.NoError(t, db.Model(&models.OperationLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFilterSensitive(t *testing.T) {
	in := map[string]interface{}{
		"account_number": "0123456789",
		"nested":         map[string]interface{}{"new_password": "x", "keep": 1},
		"list":           []interface{}{map[string]interface{}{"access_token": "t"}},
	}
	out := filterSensitive(in).(map[string]interface{})
	assert.Equal(t, "***", out["account_number"])
	assert.Equal(t, "***", out["nested"].(map[string]interface{})["new_password"])
	assert.Equal(t, 1, out["nested"].(map[string]interface{})["keep"])
	assert.Equal(t, "***", out["list"].([]interface{})[0].(map[string]interface{})["access_token"])
}
