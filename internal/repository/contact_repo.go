// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/models"
)

// ContactRepository 联系留言仓储
type ContactRepository struct {
	db *gorm.DB
}

// NewContactRepository 创建联系留言仓储
func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create 创建留言
func (r *ContactRepository) Create(ctx context.Context, msg *models.ContactMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// MarkHandled 标记留言已处理
func (r *ContactRepository) MarkHandled(ctx context.Context, id, adminID int64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.ContactMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.ContactStatusHandled,
			"handled_by": adminID,
			"handled_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List 获取留言列表
func (r *ContactRepository) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.ContactMessage, int64, error) {
	var list []*models.ContactMessage
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ContactMessage{})
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if supportType, ok := filters["support_type"].(string); ok && supportType != "" {
		query = query.Where("support_type = ?", supportType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// CountByStatus 按状态统计留言
func (r *ContactRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ContactMessage{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
