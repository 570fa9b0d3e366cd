package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	"github.com/dumeirei/school-portal-backend/internal/middleware"
	"github.com/dumeirei/school-portal-backend/internal/models"
	affiliateService "github.com/dumeirei/school-portal-backend/internal/service/affiliate"
)

// WithdrawalHandler 提现管理处理器
type WithdrawalHandler struct {
	withdrawService *affiliateService.WithdrawService
}

// NewWithdrawalHandler 创建提现管理处理器
func NewWithdrawalHandler(withdrawSvc *affiliateService.WithdrawService) *WithdrawalHandler {
	return &WithdrawalHandler{
		withdrawService: withdrawSvc,
	}
}

// List 提现申请列表
// @Summary 提现申请列表
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Param affiliate_id query int false "推广员ID"
// @Param status query string false "状态 (pending/approved/rejected/paid)"
// @Param start_date query string false "开始日期"
// @Param end_date query string false "结束日期"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.WithdrawalRequest}}
// @Router /api/v1/admin/withdrawals [get]
func (h *WithdrawalHandler) List(c *gin.Context) {
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
		"status":            c.Query("status"),
		"start_time":        start,
		"end_time":          end,
		"preload_affiliate": true,
	}
	if affiliateID != nil {
		filters["affiliate_id"] = *affiliateID
	}

	list, total, err := h.withdrawService.List(c.Request.Context(), p.GetOffset(), p.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// Review 审核提现申请
// @Summary 审核提现申请
// @Description 驳回不影响推广员账本
// @Tags 管理-提现
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "提现申请ID"
// @Param request body affiliateService.ReviewRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.WithdrawalRequest}
// @Router /api/v1/admin/withdrawals/{id}/review [post]
func (h *WithdrawalHandler) Review(c *gin.Context) {
	adminID, id, ok := handler.RequireAdminAndParseID(c, "withdrawal")
	if !ok {
		return
	}

	var req affiliateService.ReviewRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	w, err := h.withdrawService.ReviewWithdrawal(c.Request.Context(), id, adminID, &req)
	handler.MustSucceed(c, err, w)
}

// Pay 标记提现已打款
// @Summary 标记提现已打款
// @Description 仅已批准的申请可打款，打款时扣减可用余额
// @Tags 管理-提现
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "提现申请ID"
// @Param request body affiliateService.PayRequest false "请求参数"
// @Success 200 {object} response.Response{data=models.WithdrawalRequest}
// @Router /api/v1/admin/withdrawals/{id}/pay [post]
func (h *WithdrawalHandler) Pay(c *gin.Context) {
	adminID, id, ok := handler.RequireAdminAndParseID(c, "withdrawal")
	if !ok {
		return
	}

	var req affiliateService.PayRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	w, err := h.withdrawService.MarkPaid(c.Request.Context(), id, adminID, &req)
	handler.MustSucceed(c, err, w)
}

// RegisterRoutes 注册路由；审核和打款仅限财务与超级管理员
func (h *WithdrawalHandler) RegisterRoutes(r *gin.RouterGroup) {
	withdrawals := r.Group("/withdrawals")
	{
		withdrawals.GET("", h.List)

		finance := withdrawals.Group("")
		finance.Use(middleware.RequireRoles(models.RoleFinanceAdmin, models.RoleSuperAdmin))
		finance.POST("/:id/review", h.Review)
		finance.POST("/:id/pay", h.Pay)
	}
}
