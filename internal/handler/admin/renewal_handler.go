package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	signupService "github.com/dumeirei/school-portal-backend/internal/service/signup"
)

// RenewalHandler 续费管理处理器
type RenewalHandler struct {
	renewalService *signupService.RenewalService
}

// NewRenewalHandler 创建续费管理处理器
func NewRenewalHandler(renewalSvc *signupService.RenewalService) *RenewalHandler {
	return &RenewalHandler{renewalService: renewalSvc}
}

// List 续费列表
// @Summary 续费列表
// @Tags 管理-续费
// @Produce json
// @Security Bearer
// @Param payment_status query string false "付款状态 (pending/paid)"
// @Param payment_type query string false "付款方式 (online/offline)"
// @Param email query string false "学校邮箱"
// @Param keyword query string false "学校名称或邮箱"
// @Param start_date query string false "开始日期"
// @Param end_date query string false "结束日期"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.Renewal}}
// @Router /api/v1/admin/renewals [get]
func (h *RenewalHandler) List(c *gin.Context) {
	start, end, ok := handler.ParseQueryDateRange(c)
	if !ok {
		return
	}
	p := handler.BindPagination(c)

	filters := map[string]interface{}{
		"payment_status": c.Query("payment_status"),
		"payment_type":   c.Query("payment_type"),
		"email":          c.Query("email"),
		"keyword":        c.Query("keyword"),
		"start_time":     start,
		"end_time":       end,
	}

	list, total, err := h.renewalService.List(c.Request.Context(), p.GetOffset(), p.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// Get 续费详情
// @Summary 续费详情
// @Tags 管理-续费
// @Produce json
// @Security Bearer
// @Param id path int true "续费ID"
// @Success 200 {object} response.Response{data=models.Renewal}
// @Router /api/v1/admin/renewals/{id} [get]
func (h *RenewalHandler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "renewal")
	if !ok {
		return
	}

	renewal, err := h.renewalService.Get(c.Request.Context(), id)
	handler.MustSucceed(c, err, renewal)
}

// RegisterRoutes 注册路由
func (h *RenewalHandler) RegisterRoutes(r *gin.RouterGroup) {
	renewals := r.Group("/renewals")
	{
		renewals.GET("", h.List)
		renewals.GET("/:id", h.Get)
	}
}
