// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/models"
)

// RenewalRepository 续费仓储
type RenewalRepository struct {
	db *gorm.DB
}

// NewRenewalRepository 创建续费仓储
func NewRenewalRepository(db *gorm.DB) *RenewalRepository {
	return &RenewalRepository{db: db}
}

// Create 事务内创建续费
func (r *RenewalRepository) Create(tx *gorm.DB, renewal *models.Renewal) error {
	return tx.Create(renewal).Error
}

// GetByID 根据 ID 获取续费
func (r *RenewalRepository) GetByID(ctx context.Context, id int64) (*models.Renewal, error) {
	var renewal models.Renewal
	err := r.db.WithContext(ctx).First(&renewal, id).Error
	if err != nil {
		return nil, err
	}
	return &renewal, nil
}

// GetForUpdate 事务内锁定续费行
func (r *RenewalRepository) GetForUpdate(tx *gorm.DB, id int64) (*models.Renewal, error) {
	var renewal models.Renewal
	err := tx.Scopes(database.ForUpdate).First(&renewal, id).Error
	if err != nil {
		return nil, err
	}
	return &renewal, nil
}

// SetPaymentReference 记录网关支付流水号
func (r *RenewalRepository) SetPaymentReference(ctx context.Context, id int64, reference string) error {
	return r.db.WithContext(ctx).Model(&models.Renewal{}).
		Where("id = ?", id).
		Update("payment_reference", reference).Error
}

// MarkPaid 条件更新 pending -> paid
func (r *RenewalRepository) MarkPaid(tx *gorm.DB, id int64, reference string, at time.Time) error {
	fields := map[string]interface{}{
		"payment_status": models.PaymentStatusPaid,
		"paid_at":        at,
	}
	if reference != "" {
		fields["payment_reference"] = reference
	}
	result := tx.Model(&models.Renewal{}).
		Where("id = ? AND payment_status = ?", id, models.PaymentStatusPending).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSignupAlreadyPaid
	}
	return nil
}

// List 获取续费列表
func (r *RenewalRepository) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Renewal, int64, error) {
	var renewals []*models.Renewal
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Renewal{})
	if status, ok := filters["payment_status"].(string); ok && status != "" {
		query = query.Where("payment_status = ?", status)
	}
	if paymentType, ok := filters["payment_type"].(string); ok && paymentType != "" {
		query = query.Where("payment_type = ?", paymentType)
	}
	if email, ok := filters["email"].(string); ok && email != "" {
		query = query.Where("email = ?", email)
	}
	if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("school_name LIKE ? OR email LIKE ?", like, like)
	}
	if startTime, ok := filters["start_time"].(time.Time); ok && !startTime.IsZero() {
		query = query.Where("created_at >= ?", startTime)
	}
	if endTime, ok := filters["end_time"].(time.Time); ok && !endTime.IsZero() {
		query = query.Where("created_at < ?", endTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&renewals).Error; err != nil {
		return nil, 0, err
	}
	return renewals, total, nil
}
