// Package contact 联系表单与留言处理
package contact

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/common/validate"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/service/notify"
)

// ContactService 联系留言服务
type ContactService struct {
	repo     *repository.ContactRepository
	notifier notify.Notifier
	now      func() time.Time
}

// NewContactService 创建联系留言服务
func NewContactService(repo *repository.ContactRepository, notifier notify.Notifier) *ContactService {
	return &ContactService{repo: repo, notifier: notify.OrNop(notifier), now: time.Now}
}

// SubmitRequest 联系表单
type SubmitRequest struct {
	FullName    string `json:"full_name" binding:"required,max=100"`
	Phone       string `json:"phone" binding:"required"`
	SchoolName  string `json:"school_name" binding:"max=200"`
	SupportType string `json:"support_type" binding:"required,max=50"`
	Message     string `json:"message" binding:"required,max=5000"`
}

// Submit 保存留言并通知客服
func (s *ContactService) Submit(ctx context.Context, req *SubmitRequest) (*models.ContactMessage, error) {
	phone := strings.TrimSpace(req.Phone)
	if !utils.ValidatePhone(phone) {
		return nil, errors.ErrInvalidParams.WithMessage("Invalid phone number")
	}
	msg := &models.ContactMessage{
		FullName:    strings.TrimSpace(req.FullName),
		Phone:       phone,
		SupportType: strings.TrimSpace(req.SupportType),
		Message:     strings.TrimSpace(req.Message),
		Status:      models.ContactStatusNew,
	}
	if school := strings.TrimSpace(req.SchoolName); school != "" {
		msg.SchoolName = &school
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		var ves validator.ValidationErrors
		if stderrors.As(err, &ves) {
			return nil, errors.ErrInvalidParams.WithMessage(validate.Message(err))
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	logger.Info("contact message received", zap.Int64("contact_id", msg.ID), zap.String("support_type", msg.SupportType))
	s.notifier.Notify(ctx, notify.NewEvent(notify.EventContactReceived, "contact:"+strconv.FormatInt(msg.ID, 10), map[string]interface{}{
		"contact_id":   msg.ID,
		"full_name":    msg.FullName,
		"school_name":  utils.SafeString(msg.SchoolName),
		"support_type": msg.SupportType,
	}))
	return msg, nil
}

// MarkHandled 标记留言已处理
func (s *ContactService) MarkHandled(ctx context.Context, id, adminID int64) error {
	if err := s.repo.MarkHandled(ctx, id, adminID, s.now()); err != nil {
		if database.IsNotFound(err) {
			return errors.ErrContactNotFound
		}
		return errors.ErrStoreFailure.WithError(err)
	}
	logger.Info("contact message handled", zap.Int64("contact_id", id), logger.AdminID(adminID))
	return nil
}

// List 留言列表
func (s *ContactService) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.ContactMessage, int64, error) {
	list, total, err := s.repo.List(ctx, offset, limit, filters)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return list, total, nil
}

// CountNew 未处理留言数
func (s *ContactService) CountNew(ctx context.Context) (int64, error) {
	count, err := s.repo.CountByStatus(ctx, models.ContactStatusNew)
	if err != nil {
		return 0, errors.ErrStoreFailure.WithError(err)
	}
	return count, nil
}
