// Package response 统一 JSON 响应信封
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequestIDKey 请求 ID 在 gin 上下文中的键，由请求 ID 中间件写入
const RequestIDKey = "request_id"

// Response 响应信封，code 为 0 表示成功，其余为业务错误码或 HTTP 状态码
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// PageData 分页列表
type PageData struct {
	List     interface{} `json:"list"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

var defaultMessages = map[int]string{
	http.StatusUnauthorized:        "Please log in",
	http.StatusForbidden:           "Access denied",
	http.StatusNotFound:            "Resource not found",
	http.StatusTooManyRequests:     "Too many requests",
	http.StatusInternalServerError: "Internal server error",
}

func write(c *gin.Context, status, code int, message string, data interface{}) {
	c.JSON(status, Response{
		Code:      code,
		Message:   message,
		Data:      data,
		RequestID: c.GetString(RequestIDKey),
	})
}

// abort 以 HTTP 状态码作为错误码
func abort(c *gin.Context, status int, message string) {
	if message == "" {
		message = defaultMessages[status]
	}
	write(c, status, status, message, nil)
}

// Success 成功
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, 0, "success", data)
}

// SuccessPage 分页成功
func SuccessPage(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	write(c, http.StatusOK, 0, "success", PageData{List: list, Total: total, Page: page, PageSize: pageSize})
}

// Error 业务错误，HTTP 状态保持 200，前端按 code 分支
func Error(c *gin.Context, code int, message string) {
	write(c, http.StatusOK, code, message, nil)
}

// Fail 业务错误，需要网关或回调方感知的场景使用真实 HTTP 状态
func Fail(c *gin.Context, status, code int, message string) {
	write(c, status, code, message, nil)
}

func BadRequest(c *gin.Context, message string)      { abort(c, http.StatusBadRequest, message) }
func Unauthorized(c *gin.Context, message string)    { abort(c, http.StatusUnauthorized, message) }
func Forbidden(c *gin.Context, message string)       { abort(c, http.StatusForbidden, message) }
func NotFound(c *gin.Context, message string)        { abort(c, http.StatusNotFound, message) }
func InternalError(c *gin.Context, message string)   { abort(c, http.StatusInternalServerError, message) }
func TooManyRequests(c *gin.Context, message string) { abort(c, http.StatusTooManyRequests, message) }
