// Package handler 提供 API Handler 的通用辅助函数
// 统一错误处理、身份检查、参数解析与分页
package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/response"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/common/validate"
	"github.com/dumeirei/school-portal-backend/internal/middleware"
)

// HandleError 处理错误并发送响应
// err 为 nil 返回 false；否则发送响应并返回 true，调用方应 return
//
//	result, err := svc.DoSomething(ctx)
//	if handler.HandleError(c, err) {
//	    return
//	}
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			logger.Warn("business error",
				logger.RequestID(c.GetString(middleware.ContextKeyRequestID)),
				logger.Path(c.FullPath()),
				logger.Int("code", appErr.Code),
				logger.Err(appErr.Err),
			)
		}
		response.Error(c, appErr.Code, appErr.Message)
		return true
	}

	logger.Error("unhandled error",
		logger.RequestID(c.GetString(middleware.ContextKeyRequestID)),
		logger.Path(c.FullPath()),
		logger.Err(err),
	)
	response.InternalError(c, "Internal server error")
	return true
}

// MustSucceed 有错误返回错误响应，否则返回成功响应；调用后必须 return
func MustSucceed(c *gin.Context, err error, data interface{}) {
	if HandleError(c, err) {
		return
	}
	response.Success(c, data)
}

// MustSucceedPage 分页版本
//
//	list, total, err := svc.List(ctx, p.GetOffset(), p.GetLimit(), filters)
//	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
func MustSucceedPage(c *gin.Context, err error, list interface{}, total int64, page, pageSize int) {
	if HandleError(c, err) {
		return
	}
	response.SuccessPage(c, list, total, page, pageSize)
}

// BindJSON 绑定并校验 JSON 请求体，失败时发送 400
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, validate.Message(err))
		return false
	}
	return true
}

// RequireAffiliateID 获取当前推广员 ID，未登录时返回 401
func RequireAffiliateID(c *gin.Context) (int64, bool) {
	id := middleware.GetAffiliateID(c)
	if id == 0 {
		response.Unauthorized(c, "Please log in")
		return 0, false
	}
	return id, true
}

// RequireAdminID 获取当前管理员 ID，未登录时返回 401
func RequireAdminID(c *gin.Context) (int64, bool) {
	id := middleware.GetAdminID(c)
	if id == 0 {
		response.Unauthorized(c, "Please log in")
		return 0, false
	}
	return id, true
}

// ParseID 解析路径参数 "id"
//
//	id, ok := handler.ParseID(c, "withdrawal")
//	if !ok {
//	    return
//	}
func ParseID(c *gin.Context, resourceName string) (int64, bool) {
	return ParseParamID(c, "id", resourceName)
}

// ParseParamID 解析指定路径参数为正整数 ID
func ParseParamID(c *gin.Context, paramName, resourceName string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(paramName), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+resourceName+" id")
		return 0, false
	}
	return id, true
}

// ParseQueryID 解析可选的查询参数 ID，为空时返回 (nil, true)
func ParseQueryID(c *gin.Context, paramName, resourceName string) (*int64, bool) {
	idStr := c.Query(paramName)
	if idStr == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+resourceName+" id")
		return nil, false
	}
	return &id, true
}

// DateFormat 查询参数日期格式
const DateFormat = "2006-01-02"

// ParseQueryDateRange 解析 start_date / end_date
// 结束日期取次日零点作为开区间上界；空参数返回零值
func ParseQueryDateRange(c *gin.Context) (time.Time, time.Time, bool) {
	var start, end time.Time

	if s := c.Query("start_date"); s != "" {
		t, err := time.Parse(DateFormat, s)
		if err != nil {
			response.BadRequest(c, "invalid start_date, expected YYYY-MM-DD")
			return start, end, false
		}
		start = t
	}

	if s := c.Query("end_date"); s != "" {
		t, err := time.Parse(DateFormat, s)
		if err != nil {
			response.BadRequest(c, "invalid end_date, expected YYYY-MM-DD")
			return start, end, false
		}
		end = t.AddDate(0, 0, 1)
	}

	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		response.BadRequest(c, "start_date must not be after end_date")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// BindPagination 从查询参数绑定并规范化分页参数
func BindPagination(c *gin.Context) utils.Pagination {
	var p utils.Pagination
	p.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	p.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	p.Normalize()
	return p
}

// RequireAdminAndParseID 检查管理员登录并解析路径 ID
func RequireAdminAndParseID(c *gin.Context, resourceName string) (adminID, resourceID int64, ok bool) {
	adminID, ok = RequireAdminID(c)
	if !ok {
		return 0, 0, false
	}
	resourceID, ok = ParseID(c, resourceName)
	if !ok {
		return 0, 0, false
	}
	return adminID, resourceID, true
}
