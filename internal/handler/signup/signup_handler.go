// Package signup 提供学校报名与续费相关的 HTTP Handler
package signup

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	paymentService "github.com/dumeirei/school-portal-backend/internal/service/payment"
	signupService "github.com/dumeirei/school-portal-backend/internal/service/signup"
)

// Handler 报名处理器
type Handler struct {
	signupService  *signupService.SignupService
	renewalService *signupService.RenewalService
	paymentService *paymentService.PaymentService
}

// NewHandler 创建报名处理器
func NewHandler(
	signupSvc *signupService.SignupService,
	renewalSvc *signupService.RenewalService,
	paymentSvc *paymentService.PaymentService,
) *Handler {
	return &Handler{
		signupService:  signupSvc,
		renewalService: renewalSvc,
		paymentService: paymentSvc,
	}
}

// CreateSignup 提交学校报名
// @Summary 提交学校报名
// @Description 可携带推广码；线上付款需再调用支付接口，线下付款需上传凭证
// @Tags 学校报名
// @Accept json
// @Produce json
// @Param request body signupService.CreateRequest true "请求参数"
// @Success 200 {object} response.Response{data=signupService.CreateResult}
// @Router /api/v1/signups [post]
func (h *Handler) CreateSignup(c *gin.Context) {
	var req signupService.CreateRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.signupService.Create(c.Request.Context(), &req)
	handler.MustSucceed(c, err, result)
}

// PaySignup 发起报名在线支付
// @Summary 发起报名在线支付
// @Tags 学校报名
// @Produce json
// @Param id path int true "报名ID"
// @Success 200 {object} response.Response{data=paymentService.InitializeResponse}
// @Router /api/v1/signups/{id}/pay [post]
func (h *Handler) PaySignup(c *gin.Context) {
	id, ok := handler.ParseID(c, "signup")
	if !ok {
		return
	}

	result, err := h.paymentService.InitializeSignup(c.Request.Context(), id)
	handler.MustSucceed(c, err, result)
}

// CreateRenewal 提交续费
// @Summary 提交续费
// @Tags 续费
// @Accept json
// @Produce json
// @Param request body signupService.RenewalRequest true "请求参数"
// @Success 200 {object} response.Response{data=signupService.RenewalResult}
// @Router /api/v1/renewals [post]
func (h *Handler) CreateRenewal(c *gin.Context) {
	var req signupService.RenewalRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.renewalService.Create(c.Request.Context(), &req)
	handler.MustSucceed(c, err, result)
}

// PayRenewal 发起续费在线支付
// @Summary 发起续费在线支付
// @Tags 续费
// @Produce json
// @Param id path int true "续费ID"
// @Success 200 {object} response.Response{data=paymentService.InitializeResponse}
// @Router /api/v1/renewals/{id}/pay [post]
func (h *Handler) PayRenewal(c *gin.Context) {
	id, ok := handler.ParseID(c, "renewal")
	if !ok {
		return
	}

	result, err := h.paymentService.InitializeRenewal(c.Request.Context(), id)
	handler.MustSucceed(c, err, result)
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	signups := r.Group("/signups")
	{
		signups.POST("", h.CreateSignup)
		signups.POST("/:id/pay", h.PaySignup)
	}

	renewals := r.Group("/renewals")
	{
		renewals.POST("", h.CreateRenewal)
		renewals.POST("/:id/pay", h.PayRenewal)
	}
}
