// Package affiliate 提供推广员相关的 HTTP Handler
package affiliate

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	"github.com/dumeirei/school-portal-backend/internal/common/response"
	"github.com/dumeirei/school-portal-backend/internal/models"
	affiliateService "github.com/dumeirei/school-portal-backend/internal/service/affiliate"
)

// Handler 推广员处理器
type Handler struct {
	accountService  *affiliateService.AccountService
	withdrawService *affiliateService.WithdrawService
}

// NewHandler 创建推广员处理器
func NewHandler(accountSvc *affiliateService.AccountService, withdrawSvc *affiliateService.WithdrawService) *Handler {
	return &Handler{
		accountService:  accountSvc,
		withdrawService: withdrawSvc,
	}
}

// Register 推广员注册
// @Summary 推广员注册
// @Description 用户名即推广码，注册后需管理员审核
// @Tags 推广员
// @Accept json
// @Produce json
// @Param request body affiliateService.RegisterRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Affiliate}
// @Router /api/v1/affiliates/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req affiliateService.RegisterRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	affiliate, err := h.accountService.Register(c.Request.Context(), &req)
	handler.MustSucceed(c, err, affiliate)
}

// Login 推广员登录
// @Summary 推广员登录
// @Tags 推广员
// @Accept json
// @Produce json
// @Param request body affiliateService.LoginRequest true "请求参数"
// @Success 200 {object} response.Response{data=affiliateService.LoginResponse}
// @Router /api/v1/affiliates/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req affiliateService.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.accountService.Login(c.Request.Context(), &req)
	handler.MustSucceed(c, err, result)
}

// GetDashboard 推广员工作台
// @Summary 推广员工作台
// @Tags 推广员
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=affiliateService.Dashboard}
// @Router /api/v1/affiliate/dashboard [get]
func (h *Handler) GetDashboard(c *gin.Context) {
	affiliateID, ok := handler.RequireAffiliateID(c)
	if !ok {
		return
	}

	dashboard, err := h.accountService.GetDashboard(c.Request.Context(), affiliateID)
	handler.MustSucceed(c, err, dashboard)
}

// ListVisits 访问记录
// @Summary 访问记录
// @Tags 推广员
// @Produce json
// @Security Bearer
// @Param status query string false "状态 (pending/converted)"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.ReferralVisit}}
// @Router /api/v1/affiliate/visits [get]
func (h *Handler) ListVisits(c *gin.Context) {
	affiliateID, ok := handler.RequireAffiliateID(c)
	if !ok {
		return
	}

	status := c.Query("status")
	if status != "" && status != models.VisitStatusPending && status != models.VisitStatusConverted {
		response.BadRequest(c, "invalid status")
		return
	}

	p := handler.BindPagination(c)
	list, total, err := h.accountService.ListVisits(c.Request.Context(), affiliateID, p.GetOffset(), p.GetLimit(), status)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// GetInvite 邀请链接与二维码
// @Summary 邀请链接与二维码
// @Tags 推广员
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=affiliateService.Invite}
// @Router /api/v1/affiliate/invite [get]
func (h *Handler) GetInvite(c *gin.Context) {
	affiliateID, ok := handler.RequireAffiliateID(c)
	if !ok {
		return
	}

	invite, err := h.accountService.GetInvite(c.Request.Context(), affiliateID)
	handler.MustSucceed(c, err, invite)
}

// UpdateBank 更新收款账户
// @Summary 更新收款账户
// @Tags 推广员
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body affiliateService.BankRequest true "请求参数"
// @Success 200 {object} response.Response{data=affiliateService.BankInfo}
// @Router /api/v1/affiliate/bank [put]
func (h *Handler) UpdateBank(c *gin.Context) {
	affiliateID, ok := handler.RequireAffiliateID(c)
	if !ok {
		return
	}

	var req affiliateService.BankRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	info, err := h.accountService.UpdateBank(c.Request.Context(), affiliateID, &req)
	handler.MustSucceed(c, err, info)
}

// RequestWithdrawal 申请提现
// @Summary 申请提现
// @Description 金额不得超过可用余额（累计佣金 - 已提现 - 处理中的申请）
// @Tags 推广员
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body affiliateService.WithdrawRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.WithdrawalRequest}
// @Router /api/v1/affiliate/withdrawals [post]
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	affiliateID, ok := handler.RequireAffiliateID(c)
	if !ok {
		return
	}

	var req affiliateService.WithdrawRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	w, err := h.withdrawService.RequestWithdrawal(c.Request.Context(), affiliateID, &req)
	handler.MustSucceed(c, err, w)
}

// ListWithdrawals 提现记录
// @Summary 提现记录
// @Tags 推广员
// @Produce json
// @Security Bearer
// @Param status query string false "状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.WithdrawalRequest}}
// @Router /api/v1/affiliate/withdrawals [get]
func (h *Handler) ListWithdrawals(c *gin.Context) {
	affiliateID, ok := handler.RequireAffiliateID(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	list, total, err := h.withdrawService.ListOwn(c.Request.Context(), affiliateID, p.GetOffset(), p.GetLimit(), c.Query("status"))
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// RegisterPublicRoutes 注册无需登录的路由
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	affiliates := r.Group("/affiliates")
	{
		affiliates.POST("/register", h.Register)
		affiliates.POST("/login", h.Login)
	}
}

// RegisterRoutes 注册推广员路由，r 需已挂载推广员认证
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard", h.GetDashboard)
	r.GET("/visits", h.ListVisits)
	r.GET("/invite", h.GetInvite)
	r.PUT("/bank", h.UpdateBank)
	r.POST("/withdrawals", h.RequestWithdrawal)
	r.GET("/withdrawals", h.ListWithdrawals)
}
