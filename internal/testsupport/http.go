package testsupport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// Envelope 统一响应体，data 延迟解析
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Decode 解析 data 字段
func (e *Envelope) Decode(t testing.TB, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, out))
}

// NewEngine 测试模式的 gin 引擎
func NewEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// Request 描述一次测试请求
type Request struct {
	Method  string
	Path    string
	Body    interface{} // 非 []byte 时按 JSON 编码
	Token   string
	Headers map[string]string
}

// Do 执行请求并解析统一响应体
func Do(t testing.TB, r http.Handler, req Request) (*httptest.ResponseRecorder, *Envelope) {
	t.Helper()

	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	httpReq := httptest.NewRequest(req.Method, req.Path, body)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)

	env := &Envelope{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), env), w.Body.String())
	}
	return w, env
}
