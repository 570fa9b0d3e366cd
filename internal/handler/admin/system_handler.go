package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	adminService "github.com/dumeirei/school-portal-backend/internal/service/admin"
)

// SystemHandler 系统管理处理器
type SystemHandler struct {
	affiliateService    *adminService.AffiliateAdminService
	operationLogService *adminService.OperationLogService
}

// NewSystemHandler 创建系统管理处理器
func NewSystemHandler(affiliateSvc *adminService.AffiliateAdminService, operationLogSvc *adminService.OperationLogService) *SystemHandler {
	return &SystemHandler{
		affiliateService:    affiliateSvc,
		operationLogService: operationLogSvc,
	}
}

// CheckLedger 账本一致性检查
// @Summary 账本一致性检查
// @Description 核对每个推广员的累计佣金与已转化访问之和、已提现与已打款申请之和
// @Tags 管理-系统
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=adminService.LedgerReport}
// @Router /api/v1/admin/ledger/check [get]
func (h *SystemHandler) CheckLedger(c *gin.Context) {
	report, err := h.affiliateService.CheckLedger(c.Request.Context())
	handler.MustSucceed(c, err, report)
}

// ListOperationLogs 操作日志
// @Summary 操作日志
// @Tags 管理-系统
// @Produce json
// @Security Bearer
// @Param admin_id query int false "管理员ID"
// @Param module query string false "模块"
// @Param action query string false "操作"
// @Param target_type query string false "对象类型"
// @Param target_id query int false "对象ID"
// @Param start_date query string false "开始日期"
// @Param end_date query string false "结束日期"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.OperationLog}}
// @Router /api/v1/admin/operation-logs [get]
func (h *SystemHandler) ListOperationLogs(c *gin.Context) {
	adminID, ok := handler.ParseQueryID(c, "admin_id", "admin")
	if !ok {
		return
	}
	targetID, ok := handler.ParseQueryID(c, "target_id", "target")
	if !ok {
		return
	}
	start, end, ok := handler.ParseQueryDateRange(c)
	if !ok {
		return
	}
	p := handler.BindPagination(c)

	filter := repository.OperationLogFilter{
		Module:     c.Query("module"),
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		Start:      start,
		End:        end,
	}
	if adminID != nil {
		filter.AdminID = *adminID
	}
	if targetID != nil {
		filter.TargetID = *targetID
	}

	list, total, err := h.operationLogService.List(c.Request.Context(), p.GetOffset(), p.GetLimit(), filter)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// RegisterRoutes 注册路由
func (h *SystemHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ledger/check", h.CheckLedger)
	r.GET("/operation-logs", h.ListOperationLogs)
}
