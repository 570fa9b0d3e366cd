package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	paymentService "github.com/dumeirei/school-portal-backend/internal/service/payment"
)

// PaymentHandler 支付与凭证管理处理器
type PaymentHandler struct {
	paymentService *paymentService.PaymentService
}

// NewPaymentHandler 创建支付管理处理器
func NewPaymentHandler(paymentSvc *paymentService.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentSvc,
	}
}

// ListEvidence 付款凭证列表
// @Summary 付款凭证列表
// @Tags 管理-支付
// @Produce json
// @Security Bearer
// @Param status query string false "状态 (submitted/confirmed/rejected)"
// @Param signup_id query int false "报名ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.PaymentEvidence}}
// @Router /api/v1/admin/evidence [get]
func (h *PaymentHandler) ListEvidence(c *gin.Context) {
	signupID, ok := handler.ParseQueryID(c, "signup_id", "signup")
	if !ok {
		return
	}
	p := handler.BindPagination(c)

	filters := map[string]interface{}{
		"status": c.Query("status"),
	}
	if signupID != nil {
		filters["signup_id"] = *signupID
	}

	list, total, err := h.paymentService.ListEvidence(c.Request.Context(), p.GetOffset(), p.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// ReviewEvidence 审核付款凭证
// @Summary 审核付款凭证
// @Description 确认后标记报名或续费已付款，报名会触发佣金归因
// @Tags 管理-支付
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "凭证ID"
// @Param request body paymentService.ReviewEvidenceRequest true "请求参数"
// @Success 200 {object} response.Response{data=paymentService.ReviewEvidenceResult}
// @Router /api/v1/admin/evidence/{id}/review [post]
func (h *PaymentHandler) ReviewEvidence(c *gin.Context) {
	adminID, id, ok := handler.RequireAdminAndParseID(c, "evidence")
	if !ok {
		return
	}

	var req paymentService.ReviewEvidenceRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.paymentService.ReviewEvidence(c.Request.Context(), id, adminID, &req)
	handler.MustSucceed(c, err, result)
}

// ListTransactions 支付流水列表
// @Summary 支付流水列表
// @Tags 管理-支付
// @Produce json
// @Security Bearer
// @Param purpose query string false "用途 (signup/renewal)"
// @Param target_id query int false "报名或续费ID"
// @Param status query string false "状态 (initialized/success/failed)"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.PaymentTransaction}}
// @Router /api/v1/admin/transactions [get]
func (h *PaymentHandler) ListTransactions(c *gin.Context) {
	targetID, ok := handler.ParseQueryID(c, "target_id", "target")
	if !ok {
		return
	}
	p := handler.BindPagination(c)

	filters := map[string]interface{}{
		"purpose": c.Query("purpose"),
		"status":  c.Query("status"),
	}
	if targetID != nil {
		filters["target_id"] = *targetID
	}

	list, total, err := h.paymentService.ListTransactions(c.Request.Context(), p.GetOffset(), p.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// RegisterRoutes 注册路由
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	evidence := r.Group("/evidence")
	{
		evidence.GET("", h.ListEvidence)
		evidence.POST("/:id/review", h.ReviewEvidence)
	}
	r.GET("/transactions", h.ListTransactions)
}
