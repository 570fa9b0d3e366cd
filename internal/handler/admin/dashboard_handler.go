package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	adminService "github.com/dumeirei/school-portal-backend/internal/service/admin"
)

// DashboardHandler 仪表盘处理器
type DashboardHandler struct {
	dashboardService *adminService.DashboardService
}

// NewDashboardHandler 创建仪表盘处理器
func NewDashboardHandler(dashboardSvc *adminService.DashboardService) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardSvc,
	}
}

// GetOverview 获取平台概览
// @Summary 获取平台概览
// @Description 报名数、已付款数、营收、推广员分布、今日访问、待处理事项
// @Tags 管理-仪表盘
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=adminService.Overview}
// @Router /api/v1/admin/dashboard [get]
func (h *DashboardHandler) GetOverview(c *gin.Context) {
	overview, err := h.dashboardService.GetOverview(c.Request.Context())
	handler.MustSucceed(c, err, overview)
}

// RegisterRoutes 注册路由
func (h *DashboardHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard", h.GetOverview)
}
