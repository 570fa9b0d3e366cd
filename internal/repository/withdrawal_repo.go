// Package repository 提供数据访问层
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/models"
)

// ErrWithdrawalStatusChanged 提现申请状态已被他人修改
var ErrWithdrawalStatusChanged = errors.New("withdrawal status changed concurrently")

// WithdrawalRepository 提现申请仓储
type WithdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository 创建提现申请仓储
func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create 事务内创建提现申请
func (r *WithdrawalRepository) Create(tx *gorm.DB, withdrawal *models.WithdrawalRequest) error {
	return tx.Create(withdrawal).Error
}

// GetByID 根据 ID 获取提现申请
func (r *WithdrawalRepository) GetByID(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	err := r.db.WithContext(ctx).First(&withdrawal, id).Error
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// GetByIDWithAffiliate 获取提现申请（包含推广员）
func (r *WithdrawalRepository) GetByIDWithAffiliate(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	err := r.db.WithContext(ctx).Preload("Affiliate").First(&withdrawal, id).Error
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// GetByIDTx 事务内获取提现申请
func (r *WithdrawalRepository) GetByIDTx(tx *gorm.DB, id int64) (*models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	err := tx.First(&withdrawal, id).Error
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// SumOutstanding 推广员处于 pending / approved 的提现金额合计
func (r *WithdrawalRepository) SumOutstanding(tx *gorm.DB, affiliateID int64) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := tx.Model(&models.WithdrawalRequest{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_id = ? AND status IN ?", affiliateID,
			[]string{models.WithdrawalStatusPending, models.WithdrawalStatusApproved}).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// Transition 条件状态迁移 from -> to，同时写入附加字段
// 行状态已不是 from 时返回 ErrWithdrawalStatusChanged
func (r *WithdrawalRepository) Transition(tx *gorm.DB, id int64, from, to string, fields map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := tx.Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWithdrawalStatusChanged
	}
	return nil
}

// List 获取提现申请列表
func (r *WithdrawalRepository) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.WithdrawalRequest, int64, error) {
	var withdrawals []*models.WithdrawalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{})

	if affiliateID, ok := filters["affiliate_id"].(int64); ok && affiliateID > 0 {
		query = query.Where("affiliate_id = ?", affiliateID)
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if startTime, ok := filters["start_time"].(time.Time); ok && !startTime.IsZero() {
		query = query.Where("requested_at >= ?", startTime)
	}
	if endTime, ok := filters["end_time"].(time.Time); ok && !endTime.IsZero() {
		query = query.Where("requested_at < ?", endTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if preload, ok := filters["preload_affiliate"].(bool); ok && preload {
		query = query.Preload("Affiliate")
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&withdrawals).Error; err != nil {
		return nil, 0, err
	}

	return withdrawals, total, nil
}

// CountByStatus 按状态统计提现申请
func (r *WithdrawalRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
