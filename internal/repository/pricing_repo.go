// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dumeirei/school-portal-backend/internal/models"
)

// PricingRepository 套餐与优惠码仓储
type PricingRepository struct {
	db *gorm.DB
}

// NewPricingRepository 创建定价仓储
func NewPricingRepository(db *gorm.DB) *PricingRepository {
	return &PricingRepository{db: db}
}

// ListActivePlans 获取上架的套餐
func (r *PricingRepository) ListActivePlans(ctx context.Context) ([]*models.PricingPlan, error) {
	var plans []*models.PricingPlan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&plans).Error
	return plans, err
}

// GetPlanByCode 根据编码获取套餐
func (r *PricingRepository) GetPlanByCode(ctx context.Context, code string) (*models.PricingPlan, error) {
	var plan models.PricingPlan
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// UpdatePlan 更新套餐字段
func (r *PricingRepository) UpdatePlan(ctx context.Context, code string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.PricingPlan{}).Where("code = ?", code).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// EnsurePlans 写入缺失的套餐，已存在的不覆盖
func (r *PricingRepository) EnsurePlans(ctx context.Context, plans []*models.PricingPlan) error {
	if len(plans) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&plans).Error
}

// CreateDiscountCode 创建优惠码
func (r *PricingRepository) CreateDiscountCode(ctx context.Context, code *models.DiscountCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

// GetDiscountCodeByID 根据 ID 获取优惠码
func (r *PricingRepository) GetDiscountCodeByID(ctx context.Context, id int64) (*models.DiscountCode, error) {
	var code models.DiscountCode
	err := r.db.WithContext(ctx).First(&code, id).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// GetValidDiscountCode 获取启用且未过期的优惠码
func (r *PricingRepository) GetValidDiscountCode(ctx context.Context, code string, now time.Time) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := r.db.WithContext(ctx).
		Where("code = ? AND is_active = ? AND expires_on >= ?", code, true, now).
		First(&dc).Error
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// SaveDiscountCode 保存优惠码
func (r *PricingRepository) SaveDiscountCode(ctx context.Context, code *models.DiscountCode) error {
	return r.db.WithContext(ctx).Save(code).Error
}

// ListDiscountCodes 获取优惠码列表
func (r *PricingRepository) ListDiscountCodes(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.DiscountCode, int64, error) {
	var codes []*models.DiscountCode
	var total int64

	query := r.db.WithContext(ctx).Model(&models.DiscountCode{})
	if active, ok := filters["is_active"].(bool); ok {
		query = query.Where("is_active = ?", active)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&codes).Error; err != nil {
		return nil, 0, err
	}
	return codes, total, nil
}

// CountUsage 统计邮箱对优惠码的使用次数
func (r *PricingRepository) CountUsage(ctx context.Context, codeID int64, email string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DiscountCodeUsage{}).
		Where("discount_code_id = ? AND email = ?", codeID, email).
		Count(&count).Error
	return count, err
}

// CreateUsage 记录优惠码使用
func (r *PricingRepository) CreateUsage(tx *gorm.DB, usage *models.DiscountCodeUsage) error {
	return tx.Create(usage).Error
}
