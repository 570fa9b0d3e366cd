// Package referral 提供推广链接访问相关的 HTTP Handler
package referral

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	referralService "github.com/dumeirei/school-portal-backend/internal/service/referral"
)

// Handler 推广访问处理器
type Handler struct {
	captureService *referralService.CaptureService
}

// NewHandler 创建推广访问处理器
func NewHandler(captureSvc *referralService.CaptureService) *Handler {
	return &Handler{
		captureService: captureSvc,
	}
}

// TrackRequest 访问上报请求
type TrackRequest struct {
	Code        string `json:"code" binding:"required,max=30"`
	LandingPath string `json:"landing_path" binding:"max=255"`
}

// Track 记录推广链接访问
// @Summary 记录推广链接访问
// @Description 访客 IP 与 User-Agent 取自请求；同一 IP 在归因窗口内不重复记录
// @Tags 推广
// @Accept json
// @Produce json
// @Param request body TrackRequest true "请求参数"
// @Success 200 {object} response.Response{data=referralService.RecordResult}
// @Router /api/v1/referrals/track [post]
func (h *Handler) Track(c *gin.Context) {
	var req TrackRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.captureService.RecordVisit(c.Request.Context(), &referralService.VisitInput{
		Code:        req.Code,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		LandingPath: req.LandingPath,
	})
	handler.MustSucceed(c, err, result)
}

// Resolve 解析推广码
// @Summary 解析推广码
// @Tags 推广
// @Produce json
// @Param code path string true "推广码"
// @Success 200 {object} response.Response{data=referralService.ResolvedCode}
// @Router /api/v1/referrals/{code} [get]
func (h *Handler) Resolve(c *gin.Context) {
	result, err := h.captureService.ResolveCode(c.Request.Context(), c.Param("code"))
	handler.MustSucceed(c, err, result)
}

// RegisterRoutes 注册路由，track 接口的限流由调用方传入
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, trackLimiter gin.HandlerFunc) {
	referrals := r.Group("/referrals")
	{
		if trackLimiter != nil {
			referrals.POST("/track", trackLimiter, h.Track)
		} else {
			referrals.POST("/track", h.Track)
		}
		referrals.GET("/:code", h.Resolve)
	}
}
