// Package contact 提供联系表单的 HTTP Handler
package contact

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/handler"
	contactService "github.com/dumeirei/school-portal-backend/internal/service/contact"
)

// Handler 联系表单处理器
type Handler struct {
	contactService *contactService.ContactService
}

// NewHandler 创建联系表单处理器
func NewHandler(contactSvc *contactService.ContactService) *Handler {
	return &Handler{
		contactService: contactSvc,
	}
}

// Submit 提交留言
// @Summary 提交留言
// @Tags 联系我们
// @Accept json
// @Produce json
// @Param request body contactService.SubmitRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.ContactMessage}
// @Router /api/v1/contact [post]
func (h *Handler) Submit(c *gin.Context) {
	var req contactService.SubmitRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	msg, err := h.contactService.Submit(c.Request.Context(), &req)
	handler.MustSucceed(c, err, msg)
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/contact", h.Submit)
}
