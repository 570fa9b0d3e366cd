// Package repository 提供数据访问层
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/models"
)

// ErrSignupAlreadyPaid 报名已付款
var ErrSignupAlreadyPaid = errors.New("school signup already paid")

// SchoolSignupRepository 学校报名仓储
type SchoolSignupRepository struct {
	db *gorm.DB
}

// NewSchoolSignupRepository 创建学校报名仓储
func NewSchoolSignupRepository(db *gorm.DB) *SchoolSignupRepository {
	return &SchoolSignupRepository{db: db}
}

// Create 创建报名
func (r *SchoolSignupRepository) Create(ctx context.Context, signup *models.SchoolSignup) error {
	return r.db.WithContext(ctx).Create(signup).Error
}

// GetByID 根据 ID 获取报名
func (r *SchoolSignupRepository) GetByID(ctx context.Context, id int64) (*models.SchoolSignup, error) {
	var signup models.SchoolSignup
	err := r.db.WithContext(ctx).First(&signup, id).Error
	if err != nil {
		return nil, err
	}
	return &signup, nil
}

// GetForUpdate 事务内锁定报名行
func (r *SchoolSignupRepository) GetForUpdate(tx *gorm.DB, id int64) (*models.SchoolSignup, error) {
	var signup models.SchoolSignup
	err := tx.Scopes(database.ForUpdate).First(&signup, id).Error
	if err != nil {
		return nil, err
	}
	return &signup, nil
}

// SetPaymentReference 记录最近一次网关支付流水号
func (r *SchoolSignupRepository) SetPaymentReference(ctx context.Context, id int64, reference string) error {
	return r.db.WithContext(ctx).Model(&models.SchoolSignup{}).
		Where("id = ?", id).
		Update("payment_reference", reference).Error
}

// MarkPaid 条件更新 pending -> paid
// 已付款时返回 ErrSignupAlreadyPaid
func (r *SchoolSignupRepository) MarkPaid(tx *gorm.DB, id int64, reference string, at time.Time) error {
	fields := map[string]interface{}{
		"payment_status": models.PaymentStatusPaid,
		"paid_at":        at,
	}
	if reference != "" {
		fields["payment_reference"] = reference
	}
	result := tx.Model(&models.SchoolSignup{}).
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

// StampAttributionChecked 记录归因已得出最终结果
func (r *SchoolSignupRepository) StampAttributionChecked(tx *gorm.DB, id int64, at time.Time) error {
	return tx.Model(&models.SchoolSignup{}).
		Where("id = ?", id).
		Update("attribution_checked_at", at).Error
}

// ListPaidUnattributed 已付款但尚未完成归因的报名 ID
func (r *SchoolSignupRepository) ListPaidUnattributed(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.SchoolSignup{}).
		Where("payment_status = ? AND attribution_checked_at IS NULL", models.PaymentStatusPaid).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// List 获取报名列表
func (r *SchoolSignupRepository) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.SchoolSignup, int64, error) {
	var signups []*models.SchoolSignup
	var total int64

	query := r.db.WithContext(ctx).Model(&models.SchoolSignup{})

	if status, ok := filters["payment_status"].(string); ok && status != "" {
		query = query.Where("payment_status = ?", status)
	}
	if paymentType, ok := filters["payment_type"].(string); ok && paymentType != "" {
		query = query.Where("payment_type = ?", paymentType)
	}
	if code, ok := filters["referral_code"].(string); ok && code != "" {
		query = query.Where("referral_code = ?", code)
	}
	if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("school_name LIKE ? OR school_email LIKE ?", like, like)
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

	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&signups).Error; err != nil {
		return nil, 0, err
	}

	return signups, total, nil
}

// SignupStats 报名统计
type SignupStats struct {
	Total   int64           `json:"total"`
	Paid    int64           `json:"paid"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Stats 报名数、已付款数与收入
func (r *SchoolSignupRepository) Stats(ctx context.Context) (*SignupStats, error) {
	stats := &SignupStats{}
	db := r.db.WithContext(ctx).Model(&models.SchoolSignup{})
	if err := db.Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	var paid struct {
		Count   int64
		Revenue decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&models.SchoolSignup{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS revenue").
		Where("payment_status = ?", models.PaymentStatusPaid).
		Scan(&paid).Error
	if err != nil {
		return nil, err
	}
	stats.Paid = paid.Count
	stats.Revenue = paid.Revenue
	return stats, nil
}
