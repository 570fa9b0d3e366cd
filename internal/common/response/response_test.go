package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	c, w := setupTest()
	Success(c, map[string]interface{}{"visit_id": 12, "duplicate": false})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "success", resp.Message)
	assert.NotNil(t, resp.Data)
}

func TestSuccess_NilDataOmitted(t *testing.T) {
	c, w := setupTest()
	Success(c, nil)

	assert.NotContains(t, w.Body.String(), `"data"`)
}

func TestRequestIDEchoed(t *testing.T) {
	c, w := setupTest()
	c.Set(RequestIDKey, "req-42")
	Error(c, 4000, "推广码无效或推广员未激活")

	resp := parseResponse(t, w)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.Equal(t, 4000, resp.Code)
}

func TestSuccessPage(t *testing.T) {
	c, w := setupTest()
	SuccessPage(c, []int{1, 2}, 100, 2, 20)

	var resp struct {
		Code int      `json:"code"`
		Data PageData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, int64(100), resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Page)
	assert.Equal(t, 20, resp.Data.PageSize)
	assert.Len(t, resp.Data.List, 2)
}

func TestError(t *testing.T) {
	c, w := setupTest()
	Error(c, 5001, "提现申请状态不允许此操作")

	// 业务错误统一返回 200
	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 5001, resp.Code)
	assert.Nil(t, resp.Data)
}

func TestFail(t *testing.T) {
	c, w := setupTest()
	Fail(c, http.StatusUnauthorized, 6005, "回调签名校验失败")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 6005, parseResponse(t, w).Code)
}

func TestStatusHelpers(t *testing.T) {
	cases := []struct {
		name       string
		fn         func(*gin.Context, string)
		status     int
		defaultMsg string
	}{
		{"参数错误", BadRequest, http.StatusBadRequest, ""},
		{"未授权", Unauthorized, http.StatusUnauthorized, "Please log in"},
		{"禁止访问", Forbidden, http.StatusForbidden, "Access denied"},
		{"不存在", NotFound, http.StatusNotFound, "Resource not found"},
		{"内部错误", InternalError, http.StatusInternalServerError, "Internal server error"},
		{"请求过于频繁", TooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := setupTest()
			tc.fn(c, "自定义消息")
			assert.Equal(t, tc.status, w.Code)
			resp := parseResponse(t, w)
			assert.Equal(t, tc.status, resp.Code)
			assert.Equal(t, "自定义消息", resp.Message)

			c, w = setupTest()
			tc.fn(c, "")
			assert.Equal(t, tc.defaultMsg, parseResponse(t, w).Message)
		})
	}
}
