package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	"github.com/dumeirei/school-portal-backend/internal/middleware"
	"github.com/dumeirei/school-portal-backend/internal/models"
	adminService "github.com/dumeirei/school-portal-backend/internal/service/admin"
)

// AffiliateHandler 推广员管理处理器
type AffiliateHandler struct {
	affiliateService *adminService.AffiliateAdminService
}

// NewAffiliateHandler 创建推广员管理处理器
func NewAffiliateHandler(affiliateSvc *adminService.AffiliateAdminService) *AffiliateHandler {
	return &AffiliateHandler{
		affiliateService: affiliateSvc,
	}
}

// List 推广员列表
// @Summary 推广员列表
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param status query string false "状态 (pending/approved/suspended)"
// @Param keyword query string false "用户名、姓名或邮箱"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.Affiliate}}
// @Router /api/v1/admin/affiliates [get]
func (h *AffiliateHandler) List(c *gin.Context) {
	p := handler.BindPagination(c)
	filters := map[string]interface{}{
		"status":  c.Query("status"),
		"keyword": c.Query("keyword"),
	}

	list, total, err := h.affiliateService.List(c.Request.Context(), p.GetOffset(), p.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// Get 推广员详情
// @Summary 推广员详情
// @Description 包含解密后的收款账号
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param id path int true "推广员ID"
// @Success 200 {object} response.Response{data=adminService.AffiliateDetail}
// @Router /api/v1/admin/affiliates/{id} [get]
func (h *AffiliateHandler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "affiliate")
	if !ok {
		return
	}

	detail, err := h.affiliateService.Get(c.Request.Context(), id)
	handler.MustSucceed(c, err, detail)
}

// UpdateStatus 审核或停用推广员
// @Summary 审核或停用推广员
// @Tags 管理-推广员
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "推广员ID"
// @Param request body adminService.UpdateStatusRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Affiliate}
// @Router /api/v1/admin/affiliates/{id}/status [put]
func (h *AffiliateHandler) UpdateStatus(c *gin.Context) {
	adminID, id, ok := handler.RequireAdminAndParseID(c, "affiliate")
	if !ok {
		return
	}

	var req adminService.UpdateStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	affiliate, err := h.affiliateService.UpdateStatus(c.Request.Context(), id, adminID, &req)
	handler.MustSucceed(c, err, affiliate)
}

// UpdateCommissionRate 调整佣金比例
// @Summary 调整佣金比例
// @Description 只影响之后的归因，已入账佣金不变
// @Tags 管理-推广员
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "推广员ID"
// @Param request body adminService.UpdateRateRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Affiliate}
// @Router /api/v1/admin/affiliates/{id}/commission-rate [put]
func (h *AffiliateHandler) UpdateCommissionRate(c *gin.Context) {
	adminID, id, ok := handler.RequireAdminAndParseID(c, "affiliate")
	if !ok {
		return
	}

	var req adminService.UpdateRateRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	affiliate, err := h.affiliateService.UpdateCommissionRate(c.Request.Context(), id, adminID, &req)
	handler.MustSucceed(c, err, affiliate)
}

// ListVisits 推广访问记录
// @Summary 推广访问记录
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param affiliate_id query int false "推广员ID"
// @Param status query string false "状态 (pending/converted)"
// @Param referral_code query string false "推广码"
// @Param start_date query string false "开始日期"
// @Param end_date query string false "结束日期"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.ReferralVisit}}
// @Router /api/v1/admin/visits [get]
func (h *AffiliateHandler) ListVisits(c *gin.Context) {
	affiliateID, ok := handler.ParseQueryID(c, "affiliate_id", "affiliate")
	if !ok {
		return
	}
	start, end, ok := handler.ParseQueryDateRange(c)
	if !ok {
		return
	}
	p := handler.BindPagination(c)

	filters := map[string]interface{}{
		"status":        c.Query("status"),
		"referral_code": c.Query("referral_code"),
		"start_time":    start,
		"end_time":      end,
	}
	if affiliateID != nil {
		filters["affiliate_id"] = *affiliateID
	}

	list, total, err := h.affiliateService.ListVisits(c.Request.Context(), p.GetOffset(), p.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// RegisterRoutes 注册路由；审核和调整佣金比例仅限财务与超级管理员
func (h *AffiliateHandler) RegisterRoutes(r *gin.RouterGroup) {
	affiliates := r.Group("/affiliates")
	{
		affiliates.GET("", h.List)
		affiliates.GET("/:id", h.Get)

		finance := affiliates.Group("")
		finance.Use(middleware.RequireRoles(models.RoleFinanceAdmin, models.RoleSuperAdmin))
		finance.PUT("/:id/status", h.UpdateStatus)
		finance.PUT("/:id/commission-rate", h.UpdateCommissionRate)
	}
	r.GET("/visits", h.ListVisits)
}
