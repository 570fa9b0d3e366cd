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

// ErrVisitAlreadyConverted 访问已被其他报名转化
var ErrVisitAlreadyConverted = errors.New("referral visit already converted")

// ReferralVisitRepository 推广访问仓储
type ReferralVisitRepository struct {
	db *gorm.DB
}

// NewReferralVisitRepository 创建推广访问仓储
func NewReferralVisitRepository(db *gorm.DB) *ReferralVisitRepository {
	return &ReferralVisitRepository{db: db}
}

// Create 创建访问记录
func (r *ReferralVisitRepository) Create(ctx context.Context, visit *models.ReferralVisit) error {
	return r.db.WithContext(ctx).Create(visit).Error
}

// GetByID 根据 ID 获取访问记录
func (r *ReferralVisitRepository) GetByID(ctx context.Context, id int64) (*models.ReferralVisit, error) {
	var visit models.ReferralVisit
	err := r.db.WithContext(ctx).First(&visit, id).Error
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

// FindPendingByIP 同一推广员、同一 IP 在 since 之后的未转化访问
func (r *ReferralVisitRepository) FindPendingByIP(ctx context.Context, affiliateID int64, ip string, since time.Time) (*models.ReferralVisit, error) {
	var visit models.ReferralVisit
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND visitor_ip = ? AND status = ? AND created_at >= ?",
			affiliateID, ip, models.VisitStatusPending, since).
		Order("created_at DESC, id DESC").
		First(&visit).Error
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

// GetBySignupID 事务内查询已关联该报名的访问
func (r *ReferralVisitRepository) GetBySignupID(tx *gorm.DB, signupID int64) (*models.ReferralVisit, error) {
	var visit models.ReferralVisit
	err := tx.Where("school_signup_id = ?", signupID).First(&visit).Error
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

// LatestPendingForAffiliate 推广员使用该推广码的最近一条未转化访问（不限访客）
func (r *ReferralVisitRepository) LatestPendingForAffiliate(tx *gorm.DB, affiliateID int64, code string) (*models.ReferralVisit, error) {
	var visit models.ReferralVisit
	err := tx.Where("affiliate_id = ? AND referral_code = ? AND status = ?",
		affiliateID, code, models.VisitStatusPending).
		Order("created_at DESC, id DESC").
		First(&visit).Error
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

// LatestPendingInWindow 归因窗口内全站最近一条属于已审核推广员的未转化访问
func (r *ReferralVisitRepository) LatestPendingInWindow(tx *gorm.DB, since time.Time) (*models.ReferralVisit, error) {
	var visit models.ReferralVisit
	err := tx.Joins("JOIN affiliates ON affiliates.id = referral_visits.affiliate_id").
		Where("referral_visits.status = ? AND referral_visits.created_at >= ? AND affiliates.status = ?",
			models.VisitStatusPending, since, models.AffiliateStatusApproved).
		Order("referral_visits.created_at DESC, referral_visits.id DESC").
		First(&visit).Error
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

// MarkConverted 条件更新 pending -> converted
// 访问已被转化时返回 ErrVisitAlreadyConverted
func (r *ReferralVisitRepository) MarkConverted(tx *gorm.DB, visitID, signupID int64, amount decimal.Decimal, at time.Time) error {
	result := tx.Model(&models.ReferralVisit{}).
		Where("id = ? AND status = ?", visitID, models.VisitStatusPending).
		Updates(map[string]interface{}{
			"status":            models.VisitStatusConverted,
			"commission_amount": amount,
			"school_signup_id":  signupID,
			"converted_at":      at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVisitAlreadyConverted
	}
	return nil
}

// VisitCounts 访问统计
type VisitCounts struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Converted int64 `json:"converted"`
}

// CountByAffiliate 统计推广员的访问数
func (r *ReferralVisitRepository) CountByAffiliate(ctx context.Context, affiliateID int64) (*VisitCounts, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.ReferralVisit{}).
		Select("status, COUNT(*) AS count").
		Where("affiliate_id = ?", affiliateID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := &VisitCounts{}
	for _, row := range rows {
		counts.Total += row.Count
		switch row.Status {
		case models.VisitStatusPending:
			counts.Pending = row.Count
		case models.VisitStatusConverted:
			counts.Converted = row.Count
		}
	}
	return counts, nil
}

// List 获取访问列表
func (r *ReferralVisitRepository) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.ReferralVisit, int64, error) {
	var visits []*models.ReferralVisit
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ReferralVisit{})

	if affiliateID, ok := filters["affiliate_id"].(int64); ok && affiliateID > 0 {
		query = query.Where("affiliate_id = ?", affiliateID)
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if code, ok := filters["referral_code"].(string); ok && code != "" {
		query = query.Where("referral_code = ?", code)
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

	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&visits).Error; err != nil {
		return nil, 0, err
	}

	return visits, total, nil
}
