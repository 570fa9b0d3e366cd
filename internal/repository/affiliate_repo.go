// Package repository 提供数据访问层
package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/models"
)

// ErrInsufficientPending 待结算收益不足以结算提现
var ErrInsufficientPending = errors.New("pending earnings below settlement amount")

// AffiliateRepository 推广员仓储
// 收益字段只能经由 CreditCommission / SettleWithdrawal 在事务内修改
type AffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广员仓储
func NewAffiliateRepository(db *gorm.DB) *AffiliateRepository {
	return &AffiliateRepository{db: db}
}

// Create 创建推广员
func (r *AffiliateRepository) Create(ctx context.Context, affiliate *models.Affiliate) error {
	return r.db.WithContext(ctx).Create(affiliate).Error
}

// GetByID 根据 ID 获取推广员
func (r *AffiliateRepository) GetByID(ctx context.Context, id int64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).First(&affiliate, id).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// GetByUsername 根据用户名（推广码）获取推广员
func (r *AffiliateRepository) GetByUsername(ctx context.Context, username string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// GetApprovedByUsername 获取已审核通过的推广员
func (r *AffiliateRepository) GetApprovedByUsername(ctx context.Context, username string) (*models.Affiliate, error) {
	return r.getApprovedByUsername(r.db.WithContext(ctx), username)
}

// GetApprovedByUsernameTx 事务内获取已审核通过的推广员
func (r *AffiliateRepository) GetApprovedByUsernameTx(tx *gorm.DB, username string) (*models.Affiliate, error) {
	return r.getApprovedByUsername(tx, username)
}

func (r *AffiliateRepository) getApprovedByUsername(db *gorm.DB, username string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := db.Where("username = ? AND status = ?", username, models.AffiliateStatusApproved).
		First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// GetByEmail 根据邮箱获取推广员
func (r *AffiliateRepository) GetByEmail(ctx context.Context, email string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// ExistsByUsername 检查用户名是否已存在
func (r *AffiliateRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Affiliate{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// ExistsByEmail 检查邮箱是否已存在
func (r *AffiliateRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Affiliate{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// GetForUpdate 事务内锁定推广员行
func (r *AffiliateRepository) GetForUpdate(tx *gorm.DB, id int64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := tx.Scopes(database.ForUpdate).First(&affiliate, id).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// UpdateProfile 更新非收益字段
func (r *AffiliateRepository) UpdateProfile(ctx context.Context, id int64, fields map[string]interface{}) error {
	for key := range fields {
		if isLedgerColumn(key) {
			return errors.New("ledger columns cannot be updated directly: " + key)
		}
	}
	result := r.db.WithContext(ctx).Model(&models.Affiliate{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func isLedgerColumn(column string) bool {
	switch strings.ToLower(column) {
	case "total_earnings", "pending_earnings", "paid_earnings", "total_referrals":
		return true
	}
	return false
}

// CreditCommission 佣金入账：累计收益与待结算收益同时增加，转化数加一
func (r *AffiliateRepository) CreditCommission(tx *gorm.DB, affiliateID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.New("commission amount must not be negative")
	}
	result := tx.Model(&models.Affiliate{}).
		Where("id = ?", affiliateID).
		Updates(map[string]interface{}{
			"total_earnings":   gorm.Expr("total_earnings + ?", amount),
			"pending_earnings": gorm.Expr("pending_earnings + ?", amount),
			"total_referrals":  gorm.Expr("total_referrals + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SettleWithdrawal 提现打款结算：待结算收益转入已打款
// 待结算收益不足时返回 ErrInsufficientPending
func (r *AffiliateRepository) SettleWithdrawal(tx *gorm.DB, affiliateID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.New("settlement amount must be positive")
	}
	result := tx.Model(&models.Affiliate{}).
		Where("id = ? AND pending_earnings >= ?", affiliateID, amount).
		Updates(map[string]interface{}{
			"pending_earnings": gorm.Expr("pending_earnings - ?", amount),
			"paid_earnings":    gorm.Expr("paid_earnings + ?", amount),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientPending
	}
	return nil
}

// List 获取推广员列表
func (r *AffiliateRepository) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Affiliate, int64, error) {
	var affiliates []*models.Affiliate
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Affiliate{})

	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("username LIKE ? OR full_name LIKE ? OR email LIKE ?", like, like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&affiliates).Error; err != nil {
		return nil, 0, err
	}

	return affiliates, total, nil
}

// CountByStatus 按状态统计推广员数量
func (r *AffiliateRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Affiliate{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Status] = row.Count
	}
	return result, nil
}

// LedgerMismatch 账本不一致的推广员
type LedgerMismatch struct {
	AffiliateID     int64           `json:"affiliate_id"`
	Username        string          `json:"username"`
	TotalEarnings   decimal.Decimal `json:"total_earnings"`
	PendingEarnings decimal.Decimal `json:"pending_earnings"`
	PaidEarnings    decimal.Decimal `json:"paid_earnings"`
	PaidWithdrawals decimal.Decimal `json:"paid_withdrawals"`
	Reason          string          `json:"reason"`
}

// 不一致原因
const (
	MismatchTotalNotBalanced  = "total_ne_pending_plus_paid"
	MismatchPaidNotWithdrawal = "paid_ne_paid_withdrawals"
)

// LedgerMismatches 查找 total != pending + paid 或 paid != 已打款提现合计 的推广员
func (r *AffiliateRepository) LedgerMismatches(ctx context.Context) ([]*LedgerMismatch, error) {
	var affiliates []*models.Affiliate
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&affiliates).Error; err != nil {
		return nil, err
	}

	var sums []struct {
		AffiliateID int64
		Total       decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Select("affiliate_id, COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", models.WithdrawalStatusPaid).
		Group("affiliate_id").
		Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	paidByAffiliate := make(map[int64]decimal.Decimal, len(sums))
	for _, s := range sums {
		paidByAffiliate[s.AffiliateID] = s.Total
	}

	var mismatches []*LedgerMismatch
	for _, a := range affiliates {
		paidWithdrawals := paidByAffiliate[a.ID]
		m := &LedgerMismatch{
			AffiliateID:     a.ID,
			Username:        a.Username,
			TotalEarnings:   a.TotalEarnings,
			PendingEarnings: a.PendingEarnings,
			PaidEarnings:    a.PaidEarnings,
			PaidWithdrawals: paidWithdrawals,
		}
		switch {
		case !a.TotalEarnings.Equal(a.PendingEarnings.Add(a.PaidEarnings)):
			m.Reason = MismatchTotalNotBalanced
		case !a.PaidEarnings.Equal(paidWithdrawals):
			m.Reason = MismatchPaidNotWithdrawal
		default:
			continue
		}
		mismatches = append(mismatches, m)
	}
	return mismatches, nil
}
