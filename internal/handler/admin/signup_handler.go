package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	"github.com/dumeirei/school-portal-backend/internal/middleware"
	"github.com/dumeirei/school-portal-backend/internal/models"
	paymentService "github.com/dumeirei/school-portal-backend/internal/service/payment"
	referralService "github.com/dumeirei/school-portal-backend/internal/service/referral"
	signupService "github.com/dumeirei/school-portal-backend/internal/service/signup"
)

// SignupHandler 学校报名管理处理器
type SignupHandler struct {
	signupService      *signupService.SignupService
	paymentService     *paymentService.PaymentService
	attributionService *referralService.AttributionService
}

// NewSignupHandler 创建学校报名管理处理器
func NewSignupHandler(
	signupSvc *signupService.SignupService,
	paymentSvc *paymentService.PaymentService,
	attributionSvc *referralService.AttributionService,
) *SignupHandler {
	return &SignupHandler{
		signupService:      signupSvc,
		paymentService:     paymentSvc,
		attributionService: attributionSvc,
	}
}

// List 报名列表
// @Summary 报名列表
// @Tags 管理-学校报名
// @Produce json
// @Security Bearer
// @Param payment_status query string false "付款状态 (pending/paid)"
// @Param payment_type query string false "付款方式 (online/offline)"
// @Param referral_code query string false "推广码"
// @Param keyword query string false "学校名称或邮箱"
// @Param start_date query string false "开始日期"
// @Param end_date query string false "结束日期"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.SchoolSignup}}
// @Router /api/v1/admin/signups [get]
func (h *SignupHandler) List(c *gin.Context) {
	start, end, ok := handler.ParseQueryDateRange(c)
	if !ok {
		return
	}
	p := handler.BindPagination(c)

	filters := map[string]interface{}{
		"payment_status": c.Query("payment_status"),
		"payment_type":   c.Query("payment_type"),
		"referral_code":  c.Query("referral_code"),
		"keyword":        c.Query("keyword"),
		"start_time":     start,
		"end_time":       end,
	}

	list, total, err := h.signupService.List(c.Request.Context(), p.GetOffset(), p.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// Get 报名详情
// @Summary 报名详情
// @Tags 管理-学校报名
// @Produce json
// @Security Bearer
// @Param id path int true "报名ID"
// @Success 200 {object} response.Response{data=models.SchoolSignup}
// @Router /api/v1/admin/signups/{id} [get]
func (h *SignupHandler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "signup")
	if !ok {
		return
	}

	signup, err := h.signupService.Get(c.Request.Context(), id)
	handler.MustSucceed(c, err, signup)
}

// ConfirmPaymentRequest 确认线下付款请求
type ConfirmPaymentRequest struct {
	Reference string `json:"reference" binding:"required,max=100"`
}

// ConfirmPayment 确认线下付款
// @Summary 确认线下付款
// @Description 标记已付款并触发佣金归因
// @Tags 管理-学校报名
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "报名ID"
// @Param request body ConfirmPaymentRequest true "请求参数"
// @Success 200 {object} response.Response{data=paymentService.VerifyResult}
// @Router /api/v1/admin/signups/{id}/confirm-payment [post]
func (h *SignupHandler) ConfirmPayment(c *gin.Context) {
	adminID, id, ok := handler.RequireAdminAndParseID(c, "signup")
	if !ok {
		return
	}

	var req ConfirmPaymentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.paymentService.ConfirmOfflinePayment(c.Request.Context(), id, adminID, req.Reference)
	handler.MustSucceed(c, err, result)
}

// Attribute 手动触发佣金归因
// @Summary 手动触发佣金归因
// @Description 重复调用返回首次结果，不会重复入账
// @Tags 管理-学校报名
// @Produce json
// @Security Bearer
// @Param id path int true "报名ID"
// @Success 200 {object} response.Response{data=referralService.AttributionResult}
// @Router /api/v1/admin/signups/{id}/attribute [post]
func (h *SignupHandler) Attribute(c *gin.Context) {
	id, ok := handler.ParseID(c, "signup")
	if !ok {
		return
	}

	result, err := h.attributionService.Attribute(c.Request.Context(), id)
	handler.MustSucceed(c, err, result)
}

// RegisterRoutes 注册路由；确认收款和补归因会入账佣金，仅限财务与超级管理员
func (h *SignupHandler) RegisterRoutes(r *gin.RouterGroup) {
	signups := r.Group("/signups")
	{
		signups.GET("", h.List)
		signups.GET("/:id", h.Get)

		finance := signups.Group("")
		finance.Use(middleware.RequireRoles(models.RoleFinanceAdmin, models.RoleSuperAdmin))
		finance.POST("/:id/confirm-payment", h.ConfirmPayment)
		finance.POST("/:id/attribute", h.Attribute)
	}
}
