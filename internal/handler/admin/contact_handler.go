package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	contactService "github.com/dumeirei/school-portal-backend/internal/service/contact"
)

// ContactHandler 留言管理处理器
type ContactHandler struct {
	contactService *contactService.ContactService
}

// NewContactHandler 创建留言管理处理器
func NewContactHandler(contactSvc *contactService.ContactService) *ContactHandler {
	return &ContactHandler{
		contactService: contactSvc,
	}
}

// List 留言列表
// @Summary 留言列表
// @Tags 管理-留言
// @Produce json
// @Security Bearer
// @Param status query string false "状态 (new/handled)"
// @Param support_type query string false "咨询类型"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData{list=[]models.ContactMessage}}
// @Router /api/v1/admin/contacts [get]
func (h *ContactHandler) List(c *gin.Context) {
	p := handler.BindPagination(c)
	filters := map[string]interface{}{
		"status":       c.Query("status"),
		"support_type": c.Query("support_type"),
	}

	list, total, err := h.contactService.List(c.Request.Context(), p.GetOffset(), p.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// MarkHandled 标记已处理
// @Summary 标记留言已处理
// @Tags 管理-留言
// @Produce json
// @Security Bearer
// @Param id path int true "留言ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/contacts/{id}/handled [put]
func (h *ContactHandler) MarkHandled(c *gin.Context) {
	adminID, id, ok := handler.RequireAdminAndParseID(c, "contact message")
	if !ok {
		return
	}

	handler.MustSucceed(c, h.contactService.MarkHandled(c.Request.Context(), id, adminID), nil)
}

// RegisterRoutes 注册路由
func (h *ContactHandler) RegisterRoutes(r *gin.RouterGroup) {
	contacts := r.Group("/contacts")
	{
		contacts.GET("", h.List)
		contacts.PUT("/:id/handled", h.MarkHandled)
	}
}
