// Package payment 提供支付相关的 HTTP Handler
package payment

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/response"
	"github.com/dumeirei/school-portal-backend/internal/common/validate"
	paymentService "github.com/dumeirei/school-portal-backend/internal/service/payment"
	"github.com/dumeirei/school-portal-backend/pkg/paystack"
)

// maxWebhookBody 回调请求体上限
const maxWebhookBody = 1 << 20

// Handler 支付处理器
type Handler struct {
	paymentService *paymentService.PaymentService
}

// NewHandler 创建支付处理器
func NewHandler(paymentSvc *paymentService.PaymentService) *Handler {
	return &Handler{
		paymentService: paymentSvc,
	}
}

// Verify 核验支付
// @Summary 核验支付
// @Description 支付页回跳后调用；成功时标记已付款并完成佣金归因
// @Tags 支付
// @Produce json
// @Param reference path string true "支付流水号"
// @Success 200 {object} response.Response{data=paymentService.VerifyResult}
// @Router /api/v1/payments/verify/{reference} [get]
func (h *Handler) Verify(c *gin.Context) {
	reference := c.Param("reference")
	if reference == "" {
		response.BadRequest(c, "payment reference is required")
		return
	}

	result, err := h.paymentService.Verify(c.Request.Context(), reference)
	handler.MustSucceed(c, err, result)
}

// PaystackWebhook Paystack 回调
// @Summary Paystack 回调
// @Description 使用 x-paystack-signature 校验 HMAC-SHA512 签名；处理失败返回 5xx 由网关重试
// @Tags 支付
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/payments/paystack/webhook [post]
func (h *Handler) PaystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "could not read request body")
		return
	}

	err = h.paymentService.HandleWebhook(c.Request.Context(), body, c.GetHeader(paystack.SignatureHeader))
	switch {
	case err == nil:
		response.Success(c, nil)
	case errors.Is(err, errors.ErrInvalidSignature):
		response.Fail(c, http.StatusUnauthorized, errors.ErrInvalidSignature.Code, errors.ErrInvalidSignature.Message)
	case errors.Is(err, errors.ErrInvalidParams):
		response.BadRequest(c, "malformed webhook payload")
	default:
		logger.Error("paystack webhook failed", logger.Path(c.FullPath()), logger.Err(err))
		response.Fail(c, http.StatusInternalServerError, errors.GetAppError(err).Code, "webhook processing failed")
	}
}

// SubmitEvidence 上传线下付款凭证
// @Summary 上传线下付款凭证
// @Description 支持 jpg/png/pdf，报名与续费二选一
// @Tags 支付
// @Accept multipart/form-data
// @Produce json
// @Param signup_id formData int false "报名ID"
// @Param renewal_id formData int false "续费ID"
// @Param school_name formData string true "学校名称"
// @Param school_phone formData string true "学校电话"
// @Param email formData string true "邮箱"
// @Param amount_paid formData number true "付款金额"
// @Param payment_ref formData string true "转账流水号"
// @Param payment_date formData string true "付款日期 (2006-01-02)"
// @Param file formData file true "凭证文件"
// @Success 200 {object} response.Response{data=models.PaymentEvidence}
// @Router /api/v1/payments/evidence [post]
func (h *Handler) SubmitEvidence(c *gin.Context) {
	var req paymentService.EvidenceRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, validate.Message(err))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "please upload the payment evidence file")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "could not read the evidence file")
		return
	}
	defer f.Close()

	evidence, err := h.paymentService.SubmitEvidence(c.Request.Context(), &req, &paymentService.EvidenceFile{
		Filename: fh.Filename,
		Size:     fh.Size,
		Reader:   f,
	})
	handler.MustSucceed(c, err, evidence)
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.GET("/verify/:reference", h.Verify)
		payments.POST("/paystack/webhook", h.PaystackWebhook)
		payments.POST("/evidence", h.SubmitEvidence)
	}
}
