// Package signup 学校报名与续费
package signup

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/service/notify"
	"github.com/dumeirei/school-portal-backend/internal/service/pricing"
)

// SignupService 学校报名服务
type SignupService struct {
	db         *gorm.DB
	signupRepo *repository.SchoolSignupRepository
	pricing    *pricing.PricingService
	notifier   notify.Notifier
}

// NewSignupService 创建报名服务
func NewSignupService(
	db *gorm.DB,
	signupRepo *repository.SchoolSignupRepository,
	pricingService *pricing.PricingService,
	notifier notify.Notifier,
) *SignupService {
	return &SignupService{
		db:         db,
		signupRepo: signupRepo,
		pricing:    pricingService,
		notifier:   notify.OrNop(notifier),
	}
}

// CreateRequest 报名请求
type CreateRequest struct {
	SchoolName   string `json:"school_name" binding:"required,max=200"`
	SchoolEmail  string `json:"school_email" binding:"required,email,max=100"`
	SchoolPhone  string `json:"school_phone" binding:"required,max=20"`
	AdminName    string `json:"admin_name" binding:"required,max=100"`
	AdminEmail   string `json:"admin_email" binding:"required,email,max=100"`
	AdminPhone   string `json:"admin_phone" binding:"required,max=20"`
	Address      string `json:"address" binding:"max=255"`
	State        string `json:"state" binding:"max=50"`
	City         string `json:"city" binding:"max=50"`
	PlanCode     string `json:"plan" binding:"required,max=20"`
	StudentCount int    `json:"student_count" binding:"required"`
	PaymentType  string `json:"payment_type" binding:"required,oneof=online offline"`
	DiscountCode string `json:"discount_code" binding:"max=50"`
	ReferralCode string `json:"referral_code"`
}

// CreateResult 报名结果
type CreateResult struct {
	Signup *models.SchoolSignup `json:"signup"`
	Quote  *pricing.Quote       `json:"quote"`
}

// maxReferralCodeLen 与推广员用户名长度上限一致
const maxReferralCodeLen = 30

// Create 创建报名，价格以服务端报价为准
// 推广码原样记录，是否有效由付款后的归因决定；超长的推广码不可能匹配推广员，直接丢弃
func (s *SignupService) Create(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	if !utils.ValidatePhone(req.SchoolPhone) || !utils.ValidatePhone(req.AdminPhone) {
		return nil, errors.ErrInvalidParams.WithMessage("Invalid phone number")
	}

	quote, err := s.pricing.Quote(ctx, &pricing.QuoteRequest{
		PlanCode:     req.PlanCode,
		StudentCount: req.StudentCount,
		DiscountCode: req.DiscountCode,
		Email:        req.SchoolEmail,
	})
	if err != nil {
		return nil, err
	}

	signup := &models.SchoolSignup{
		SchoolName:     strings.TrimSpace(req.SchoolName),
		SchoolEmail:    utils.NormalizeEmail(req.SchoolEmail),
		SchoolPhone:    strings.TrimSpace(req.SchoolPhone),
		AdminName:      strings.TrimSpace(req.AdminName),
		AdminEmail:     utils.NormalizeEmail(req.AdminEmail),
		AdminPhone:     strings.TrimSpace(req.AdminPhone),
		Address:        optional(req.Address),
		State:          optional(req.State),
		City:           optional(req.City),
		PlanCode:       quote.PlanCode,
		StudentCount:   quote.StudentCount,
		BaseAmount:     quote.BaseAmount,
		DiscountAmount: quote.DiscountAmount,
		TotalAmount:    quote.TotalAmount,
		DiscountCodeID: quote.DiscountCodeID,
		PaymentType:    req.PaymentType,
		PaymentStatus:  models.PaymentStatusPending,
		ReferralCode:   referralCode(req.ReferralCode),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(signup).Error; err != nil {
			return err
		}
		return s.pricing.RecordUsage(tx, quote, signup.SchoolEmail, &signup.ID, nil)
	})
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	logger.Info("school signup created",
		logger.SignupID(signup.ID),
		zap.String("plan", signup.PlanCode),
		zap.Int("students", signup.StudentCount),
		zap.String("payment_type", signup.PaymentType),
	)
	s.notifier.Notify(ctx, notify.NewEvent(notify.EventSignupCreated, itoa(signup.ID), map[string]interface{}{
		"signup_id":     signup.ID,
		"school_name":   signup.SchoolName,
		"plan":          signup.PlanCode,
		"student_count": signup.StudentCount,
		"total_amount":  utils.FormatMoney(signup.TotalAmount),
		"payment_type":  signup.PaymentType,
	}))

	return &CreateResult{Signup: signup, Quote: quote}, nil
}

// Get 获取报名
func (s *SignupService) Get(ctx context.Context, id int64) (*models.SchoolSignup, error) {
	signup, err := s.signupRepo.GetByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrSignupNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return signup, nil
}

// List 报名列表（管理端）
func (s *SignupService) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.SchoolSignup, int64, error) {
	signups, total, err := s.signupRepo.List(ctx, offset, limit, filters)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return signups, total, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func referralCode(raw string) *string {
	code := utils.NormalizeReferralCode(raw)
	if len(code) > maxReferralCodeLen {
		logger.Warn("referral code too long, dropped", zap.Int("length", len(code)))
		return nil
	}
	return optional(code)
}
