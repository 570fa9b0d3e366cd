// Package admin 管理端 HTTP Handler
package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	"github.com/dumeirei/school-portal-backend/internal/common/response"
	adminService "github.com/dumeirei/school-portal-backend/internal/service/admin"
)

// AuthHandler 管理员登录、刷新令牌与个人信息
type AuthHandler struct {
	svc *adminService.AdminAuthService
}

func NewAuthHandler(svc *adminService.AdminAuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register 登录与刷新挂在 public（可带限流），其余挂在已鉴权分组
func (h *AuthHandler) Register(public, protected *gin.RouterGroup) {
	open := public.Group("/auth")
	open.POST("/login", h.Login)
	open.POST("/refresh", h.Refresh)

	me := protected.Group("/auth")
	me.GET("/me", h.Me)
	me.PUT("/password", h.ChangePassword)
}

// Login 管理员登录
// @Summary 管理员登录
// @Tags 管理员认证
// @Accept json
// @Produce json
// @Param request body adminService.LoginRequest true "用户名和密码"
// @Success 200 {object} response.Response{data=adminService.LoginResponse}
// @Router /api/v1/admin/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req adminService.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	req.IP = c.ClientIP()

	res, err := h.svc.Login(c.Request.Context(), &req)
	handler.MustSucceed(c, err, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh 用刷新令牌换发令牌对
// 令牌无效或过期返回 401；账号停用按业务错误返回
// @Summary 刷新管理员令牌
// @Tags 管理员认证
// @Accept json
// @Produce json
// @Param request body refreshRequest true "刷新令牌"
// @Success 200 {object} response.Response{data=jwt.TokenPair}
// @Router /api/v1/admin/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	pair, err := h.svc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if errors.Is(err, errors.ErrTokenInvalid) || errors.Is(err, errors.ErrTokenExpired) {
		response.Unauthorized(c, errors.GetAppError(err).Message)
		return
	}
	handler.MustSucceed(c, err, pair)
}

// Me 当前管理员
// @Summary 获取当前管理员信息
// @Tags 管理员认证
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=adminService.AdminInfo}
// @Router /api/v1/admin/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	adminID, ok := handler.RequireAdminID(c)
	if !ok {
		return
	}
	info, err := h.svc.GetAdminInfo(c.Request.Context(), adminID)
	handler.MustSucceed(c, err, info)
}

// ChangePassword 修改本人密码
// @Summary 修改管理员密码
// @Tags 管理员认证
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body adminService.ChangePasswordRequest true "原密码和新密码"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	adminID, ok := handler.RequireAdminID(c)
	if !ok {
		return
	}
	var req adminService.ChangePasswordRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	handler.MustSucceed(c, h.svc.ChangePassword(c.Request.Context(), adminID, &req), nil)
}
