package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/models"
)

// UpdatePlanRequest 套餐修改请求
type UpdatePlanRequest struct {
	Name            *string          `json:"name"`
	Description     *string          `json:"description"`
	PricePerStudent *decimal.Decimal `json:"price_per_student"`
	Features        []string         `json:"features"`
	IsActive        *bool            `json:"is_active"`
	SortOrder       *int             `json:"sort_order"`
}

// UpdatePlan 修改套餐
func (s *PricingService) UpdatePlan(ctx context.Context, code string, req *UpdatePlanRequest) (*models.PricingPlan, error) {
	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.PricePerStudent != nil {
		if !req.PricePerStudent.IsPositive() {
			return nil, errors.ErrInvalidParams.WithMessage("Price per student must be greater than 0")
		}
		fields["price_per_student"] = *req.PricePerStudent
	}
	if req.Features != nil {
		fields["features"] = models.StringList(req.Features)
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if req.SortOrder != nil {
		fields["sort_order"] = *req.SortOrder
	}
	if len(fields) == 0 {
		return nil, errors.ErrInvalidParams.WithMessage("Nothing to update")
	}

	if err := s.repo.UpdatePlan(ctx, code, fields); err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrPlanNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	s.InvalidatePlans(ctx)

	plan, err := s.repo.GetPlanByCode(ctx, code)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return plan, nil
}

// DiscountCodeRequest 优惠码创建/修改请求
type DiscountCodeRequest struct {
	Code          string           `json:"code" binding:"required,max=50"`
	Title         string           `json:"title" binding:"required"`
	CodeType      string           `json:"code_type" binding:"required,oneof=percentage flat"`
	Percentage    *decimal.Decimal `json:"percentage"`
	FlatAmount    *decimal.Decimal `json:"flat_amount"`
	ExpiresOn     time.Time        `json:"expires_on" binding:"required"`
	IsActive      *bool            `json:"is_active"`
	UsagePerEmail int              `json:"usage_per_email"`
}

func (r *DiscountCodeRequest) apply(dc *models.DiscountCode) {
	dc.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	dc.Title = strings.TrimSpace(r.Title)
	dc.CodeType = r.CodeType
	dc.Percentage = nil
	dc.FlatAmount = nil
	if r.CodeType == models.DiscountTypePercentage {
		dc.Percentage = r.Percentage
	} else {
		dc.FlatAmount = r.FlatAmount
	}
	dc.ExpiresOn = r.ExpiresOn
	if r.IsActive != nil {
		dc.IsActive = *r.IsActive
	}
	if r.UsagePerEmail > 0 {
		dc.UsagePerEmail = r.UsagePerEmail
	}
}

// CreateDiscountCode 创建优惠码
func (s *PricingService) CreateDiscountCode(ctx context.Context, req *DiscountCodeRequest) (*models.DiscountCode, error) {
	dc := &models.DiscountCode{IsActive: true, UsagePerEmail: 1}
	req.apply(dc)
	if err := dc.Validate(); err != nil {
		return nil, errors.ErrInvalidParams.WithError(err)
	}
	if err := s.repo.CreateDiscountCode(ctx, dc); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.ErrAlreadyExists.WithMessage("Discount code already exists")
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return dc, nil
}

// UpdateDiscountCode 修改优惠码
func (s *PricingService) UpdateDiscountCode(ctx context.Context, id int64, req *DiscountCodeRequest) (*models.DiscountCode, error) {
	dc, err := s.repo.GetDiscountCodeByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrDiscountCodeInvalid.WithMessage("Discount code not found")
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	req.apply(dc)
	if err := dc.Validate(); err != nil {
		return nil, errors.ErrInvalidParams.WithError(err)
	}
	if err := s.repo.SaveDiscountCode(ctx, dc); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.ErrAlreadyExists.WithMessage("Discount code already exists")
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return dc, nil
}

// ListDiscountCodes 优惠码列表
func (s *PricingService) ListDiscountCodes(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.DiscountCode, int64, error) {
	codes, total, err := s.repo.ListDiscountCodes(ctx, offset, limit, filters)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return codes, total, nil
}
