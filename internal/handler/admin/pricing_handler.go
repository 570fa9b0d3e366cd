package admin

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	"github.com/dumeirei/school-portal-backend/internal/common/response"
	pricingService "github.com/dumeirei/school-portal-backend/internal/service/pricing"
)

// PricingHandler 套餐与优惠码管理处理器
type PricingHandler struct {
	pricingService *pricingService.PricingService
}

// NewPricingHandler 创建价格管理处理器
func NewPricingHandler(pricingSvc *pricingService.PricingService) *PricingHandler {
	return &PricingHandler{
		pricingService: pricingSvc,
	}
}

// UpdatePlan 更新套餐
// @Summary 更新套餐
// @Tags 管理-价格
// @Accept json
// @Produce json
// @Security Bearer
// @Param code path string true "套餐编码"
// @Param request body pricingService.UpdatePlanRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.PricingPlan}
// @Router /api/v1/admin/pricing/plans/{code} [put]
func (h *PricingHandler) UpdatePlan(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		response.BadRequest(c, "plan code is required")
		return
	}

	var req pricingService.UpdatePlanRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	plan, err := h.pricingService.UpdatePlan(c.Request.Context(), code, &req)
	handler.MustSucceed(c, err, plan)
}

// ListDiscountCodes 优惠码列表
// @Summary 优惠码列表
// @Tags 管理-价格
// @Produce json
// @Security Bearer
// @Param is_active query bool false "是否启用"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.DiscountCode}}
// @Router /api/v1/admin/discount-codes [get]
func (h *PricingHandler) ListDiscountCodes(c *gin.Context) {
	filters := map[string]interface{}{}
	if s := c.Query("is_active"); s != "" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			response.BadRequest(c, "invalid active flag")
			return
		}
		filters["is_active"] = active
	}
	p := handler.BindPagination(c)

	list, total, err := h.pricingService.ListDiscountCodes(c.Request.Context(), p.GetOffset(), p.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// CreateDiscountCode 创建优惠码
// @Summary 创建优惠码
// @Tags 管理-价格
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body pricingService.DiscountCodeRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.DiscountCode}
// @Router /api/v1/admin/discount-codes [post]
func (h *PricingHandler) CreateDiscountCode(c *gin.Context) {
	var req pricingService.DiscountCodeRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	code, err := h.pricingService.CreateDiscountCode(c.Request.Context(), &req)
	handler.MustSucceed(c, err, code)
}

// UpdateDiscountCode 更新优惠码
// @Summary 更新优惠码
// @Tags 管理-价格
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "优惠码ID"
// @Param request body pricingService.DiscountCodeRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.DiscountCode}
// @Router /api/v1/admin/discount-codes/{id} [put]
func (h *PricingHandler) UpdateDiscountCode(c *gin.Context) {
	id, ok := handler.ParseID(c, "discount code")
	if !ok {
		return
	}

	var req pricingService.DiscountCodeRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	code, err := h.pricingService.UpdateDiscountCode(c.Request.Context(), id, &req)
	handler.MustSucceed(c, err, code)
}

// RegisterRoutes 注册路由
func (h *PricingHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.PUT("/pricing/plans/:code", h.UpdatePlan)

	codes := r.Group("/discount-codes")
	{
		codes.GET("", h.ListDiscountCodes)
		codes.POST("", h.CreateDiscountCode)
		codes.PUT("/:id", h.UpdateDiscountCode)
	}
}
