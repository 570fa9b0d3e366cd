package signup

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/service/pricing"
)

// RenewalService 续费服务，续费不产生佣金
type RenewalService struct {
	db          *gorm.DB
	renewalRepo *repository.RenewalRepository
	pricing     *pricing.PricingService
}

// NewRenewalService 创建续费服务
func NewRenewalService(db *gorm.DB, renewalRepo *repository.RenewalRepository, pricingService *pricing.PricingService) *RenewalService {
	return &RenewalService{db: db, renewalRepo: renewalRepo, pricing: pricingService}
}

// RenewalRequest 续费请求
type RenewalRequest struct {
	SchoolName   string `json:"school_name" binding:"required,max=200"`
	Email        string `json:"email" binding:"required,email,max=100"`
	Phone        string `json:"phone" binding:"required,max=20"`
	PlanCode     string `json:"plan" binding:"required,max=20"`
	StudentCount int    `json:"student_count" binding:"required"`
	PaymentType  string `json:"payment_type" binding:"omitempty,oneof=online offline"`
	DiscountCode string `json:"discount_code" binding:"max=50"`
}

// RenewalResult 续费结果
type RenewalResult struct {
	Renewal *models.Renewal `json:"renewal"`
	Quote   *pricing.Quote  `json:"quote"`
}

// Create 创建续费单
func (s *RenewalService) Create(ctx context.Context, req *RenewalRequest) (*RenewalResult, error) {
	if !utils.ValidatePhone(req.Phone) {
		return nil, errors.ErrInvalidParams.WithMessage("Invalid phone number")
	}

	quote, err := s.pricing.Quote(ctx, &pricing.QuoteRequest{
		PlanCode:     req.PlanCode,
		StudentCount: req.StudentCount,
		DiscountCode: req.DiscountCode,
		Email:        req.Email,
		Renewal:      true,
	})
	if err != nil {
		return nil, err
	}

	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = models.PaymentTypeOnline
	}

	renewal := &models.Renewal{
		SchoolName:     strings.TrimSpace(req.SchoolName),
		Email:          utils.NormalizeEmail(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
		PlanCode:       quote.PlanCode,
		StudentCount:   quote.StudentCount,
		BaseAmount:     quote.BaseAmount,
		DiscountAmount: quote.DiscountAmount,
		TotalAmount:    quote.TotalAmount,
		DiscountCodeID: quote.DiscountCodeID,
		PaymentType:    paymentType,
		PaymentStatus:  models.PaymentStatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.renewalRepo.Create(tx, renewal); err != nil {
			return err
		}
		return s.pricing.RecordUsage(tx, quote, renewal.Email, nil, &renewal.ID)
	})
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	logger.Info("renewal created", zap.Int64("renewal_id", renewal.ID), zap.String("plan", renewal.PlanCode))
	return &RenewalResult{Renewal: renewal, Quote: quote}, nil
}

// Get 获取续费单
func (s *RenewalService) Get(ctx context.Context, id int64) (*models.Renewal, error) {
	renewal, err := s.renewalRepo.GetByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrRenewalNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return renewal, nil
}

// List 续费列表
func (s *RenewalService) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Renewal, int64, error) {
	if email, ok := filters["email"].(string); ok {
		filters["email"] = utils.NormalizeEmail(email)
	}
	renewals, total, err := s.renewalRepo.List(ctx, offset, limit, filters)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return renewals, total, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
