// Package pricing 套餐报价与优惠码
package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/cache"
	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
)

const plansCacheTTL = 10 * time.Minute

// Config 定价规则
type Config struct {
	VolumeThreshold   int             // 学生数超过该值享受批量折扣
	VolumeDiscountPct decimal.Decimal // 批量折扣百分比
}

// DefaultConfig 默认定价规则：超过 100 名学生打 8 折
func DefaultConfig() Config {
	return Config{VolumeThreshold: 100, VolumeDiscountPct: decimal.NewFromInt(20)}
}

// DefaultPlans 默认套餐，仅在缺失时写入
func DefaultPlans() []*models.PricingPlan {
	return []*models.PricingPlan{
		{
			Code:            models.PlanCodeStarter,
			Name:            "Starter",
			PricePerStudent: decimal.NewFromInt(1000),
			Features:        models.StringList{"Student records", "Result computation", "Parent portal"},
			IsActive:        true,
			SortOrder:       1,
		},
		{
			Code:            models.PlanCodeStandard,
			Name:            "Standard",
			PricePerStudent: decimal.NewFromInt(2000),
			Features:        models.StringList{"Everything in Starter", "Fee management", "CBT exams", "Priority support"},
			IsActive:        true,
			SortOrder:       2,
		},
	}
}

// PricingService 定价服务
type PricingService struct {
	repo   *repository.PricingRepository
	redis  *redis.Client
	config Config
	now    func() time.Time
}

// NewPricingService 创建定价服务，redis 为 nil 时不缓存套餐
func NewPricingService(repo *repository.PricingRepository, rdb *redis.Client, config Config) *PricingService {
	return &PricingService{repo: repo, redis: rdb, config: config, now: time.Now}
}

// QuoteRequest 报价请求
type QuoteRequest struct {
	PlanCode     string `json:"plan" binding:"required"`
	StudentCount int    `json:"student_count" binding:"required"`
	DiscountCode string `json:"discount_code"`
	Email        string `json:"email"`
	Renewal      bool   `json:"-"`
}

// Quote 报价结果
type Quote struct {
	PlanCode        string          `json:"plan"`
	PlanName        string          `json:"plan_name"`
	StudentCount    int             `json:"student_count"`
	PricePerStudent decimal.Decimal `json:"price_per_student"`
	BaseAmount      decimal.Decimal `json:"base_amount"`
	VolumeDiscount  decimal.Decimal `json:"volume_discount"`
	CodeDiscount    decimal.Decimal `json:"code_discount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DiscountCodeID  *int64          `json:"discount_code_id,omitempty"`
	DiscountCode    string          `json:"discount_code,omitempty"`
}

// ListPlans 获取上架套餐，优先读缓存
func (s *PricingService) ListPlans(ctx context.Context) ([]*models.PricingPlan, error) {
	key := cache.BuildKey(cache.KeyPrefixPlan, "active")
	var cached []*models.PricingPlan
	if hit, err := cache.GetJSON(ctx, s.redis, key, &cached); err != nil {
		logger.Warn("read pricing plans cache failed", zap.Error(err))
	} else if hit {
		return cached, nil
	}

	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if err := cache.SetJSON(ctx, s.redis, key, plans, plansCacheTTL); err != nil {
		logger.Warn("cache pricing plans failed", zap.Error(err))
	}
	return plans, nil
}

// InvalidatePlans 套餐变更后清除缓存
func (s *PricingService) InvalidatePlans(ctx context.Context) {
	if err := cache.Delete(ctx, s.redis, cache.BuildKey(cache.KeyPrefixPlan, "active")); err != nil {
		logger.Warn("invalidate pricing plans failed", zap.Error(err))
	}
}

// EnsureDefaultPlans 启动时写入缺失的默认套餐
func (s *PricingService) EnsureDefaultPlans(ctx context.Context) error {
	if err := s.repo.EnsurePlans(ctx, DefaultPlans()); err != nil {
		return errors.ErrStoreFailure.WithError(err)
	}
	return nil
}

// Quote 计算报价
// 批量折扣只适用于新报名；优惠码在批量折扣后的金额上计算，总价不低于 0
func (s *PricingService) Quote(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	if req.StudentCount <= 0 {
		return nil, errors.ErrInvalidStudentCount
	}

	plan, err := s.repo.GetPlanByCode(ctx, strings.ToLower(strings.TrimSpace(req.PlanCode)))
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrPlanNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if !plan.IsActive {
		return nil, errors.ErrPlanNotFound
	}

	base := utils.RoundMoney(plan.PricePerStudent.Mul(decimal.NewFromInt(int64(req.StudentCount))))
	q := &Quote{
		PlanCode:        plan.Code,
		PlanName:        plan.Name,
		StudentCount:    req.StudentCount,
		PricePerStudent: plan.PricePerStudent,
		BaseAmount:      base,
		VolumeDiscount:  decimal.Zero,
		CodeDiscount:    decimal.Zero,
	}

	if !req.Renewal && req.StudentCount > s.config.VolumeThreshold {
		q.VolumeDiscount = utils.Percent(base, s.config.VolumeDiscountPct)
	}

	if code := strings.TrimSpace(req.DiscountCode); code != "" {
		dc, err := s.ValidateDiscountCode(ctx, code, req.Email)
		if err != nil {
			return nil, err
		}
		q.CodeDiscount = codeDiscount(dc, base.Sub(q.VolumeDiscount))
		q.DiscountCodeID = &dc.ID
		q.DiscountCode = dc.Code
	}

	q.DiscountAmount = decimal.Min(q.VolumeDiscount.Add(q.CodeDiscount), base)
	q.TotalAmount = decimal.Max(base.Sub(q.DiscountAmount), decimal.Zero)
	return q, nil
}

func codeDiscount(dc *models.DiscountCode, amount decimal.Decimal) decimal.Decimal {
	switch dc.CodeType {
	case models.DiscountTypePercentage:
		if dc.Percentage != nil {
			return utils.Percent(amount, *dc.Percentage)
		}
	case models.DiscountTypeFlat:
		if dc.FlatAmount != nil {
			return utils.RoundMoney(*dc.FlatAmount)
		}
	}
	return decimal.Zero
}

// ValidateDiscountCode 校验优惠码有效期与邮箱使用次数
func (s *PricingService) ValidateDiscountCode(ctx context.Context, code, email string) (*models.DiscountCode, error) {
	dc, err := s.repo.GetValidDiscountCode(ctx, strings.ToUpper(strings.TrimSpace(code)), s.now())
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrDiscountCodeInvalid
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, errors.ErrInvalidParams.WithMessage("Email is required to use a discount code")
	}
	used, err := s.repo.CountUsage(ctx, dc.ID, email)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if used >= int64(dc.UsagePerEmail) {
		return nil, errors.ErrDiscountCodeExhausted
	}
	return dc, nil
}

// RecordUsage 在创建报名或续费的事务内记录优惠码使用
func (s *PricingService) RecordUsage(tx *gorm.DB, q *Quote, email string, signupID, renewalID *int64) error {
	if q == nil || q.DiscountCodeID == nil {
		return nil
	}
	return s.repo.CreateUsage(tx, &models.DiscountCodeUsage{
		DiscountCodeID: *q.DiscountCodeID,
		Email:          utils.NormalizeEmail(email),
		SignupID:       signupID,
		RenewalID:      renewalID,
	})
}
