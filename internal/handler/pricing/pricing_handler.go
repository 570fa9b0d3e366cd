// Package pricing 提供套餐价格相关的 HTTP Handler
package pricing

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	pricingService "github.com/dumeirei/school-portal-backend/internal/service/pricing"
)

// Handler 价格处理器
type Handler struct {
	pricingService *pricingService.PricingService
}

// NewHandler 创建价格处理器
func NewHandler(pricingSvc *pricingService.PricingService) *Handler {
	return &Handler{
		pricingService: pricingSvc,
	}
}

// ListPlans 获取套餐列表
// @Summary 获取套餐列表
// @Tags 价格
// @Produce json
// @Success 200 {object} response.Response{data=[]models.PricingPlan}
// @Router /api/v1/pricing/plans [get]
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.pricingService.ListPlans(c.Request.Context())
	handler.MustSucceed(c, err, plans)
}

// Quote 计算报价
// @Summary 计算报价
// @Description 单价 × 学生人数，超过 100 人享受批量折扣，可叠加优惠码
// @Tags 价格
// @Accept json
// @Produce json
// @Param request body pricingService.QuoteRequest true "请求参数"
// @Success 200 {object} response.Response{data=pricingService.Quote}
// @Router /api/v1/pricing/quote [post]
func (h *Handler) Quote(c *gin.Context) {
	var req pricingService.QuoteRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	quote, err := h.pricingService.Quote(c.Request.Context(), &req)
	handler.MustSucceed(c, err, quote)
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	pricing := r.Group("/pricing")
	{
		pricing.GET("/plans", h.ListPlans)
		pricing.POST("/quote", h.Quote)
	}
}
