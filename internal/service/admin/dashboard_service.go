package admin

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
)

// DashboardService 管理端概览
type DashboardService struct {
	signupRepo     *repository.SchoolSignupRepository
	affiliateRepo  *repository.AffiliateRepository
	visitRepo      *repository.ReferralVisitRepository
	withdrawalRepo *repository.WithdrawalRepository
	paymentRepo    *repository.PaymentRepository
	contactRepo    *repository.ContactRepository
	now            func() time.Time
}

// NewDashboardService 创建概览服务
func NewDashboardService(
	signupRepo *repository.SchoolSignupRepository,
	affiliateRepo *repository.AffiliateRepository,
	visitRepo *repository.ReferralVisitRepository,
	withdrawalRepo *repository.WithdrawalRepository,
	paymentRepo *repository.PaymentRepository,
	contactRepo *repository.ContactRepository,
) *DashboardService {
	return &DashboardService{
		signupRepo:     signupRepo,
		affiliateRepo:  affiliateRepo,
		visitRepo:      visitRepo,
		withdrawalRepo: withdrawalRepo,
		paymentRepo:    paymentRepo,
		contactRepo:    contactRepo,
		now:            time.Now,
	}
}

// Overview 平台概览
type Overview struct {
	// 报名
	TotalSignups int64           `json:"total_signups"`
	PaidSignups  int64           `json:"paid_signups"`
	Revenue      decimal.Decimal `json:"revenue"`

	// 推广
	Affiliates      map[string]int64 `json:"affiliates"`
	TodayVisits     int64            `json:"today_visits"`
	ApprovedPayouts int64            `json:"approved_withdrawals"`
	PendingPayouts  int64            `json:"pending_withdrawals"`
	PendingEvidence int64            `json:"pending_evidence"`
	NewContacts     int64            `json:"new_contacts"`
}

// GetOverview 汇总各模块计数
func (s *DashboardService) GetOverview(ctx context.Context) (*Overview, error) {
	stats, err := s.signupRepo.Stats(ctx)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	overview := &Overview{
		TotalSignups: stats.Total,
		PaidSignups:  stats.Paid,
		Revenue:      stats.Revenue,
	}

	if overview.Affiliates, err = s.affiliateRepo.CountByStatus(ctx); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	for _, status := range []string{models.AffiliateStatusPending, models.AffiliateStatusApproved, models.AffiliateStatusSuspended} {
		if _, ok := overview.Affiliates[status]; !ok {
			overview.Affiliates[status] = 0
		}
	}

	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if _, overview.TodayVisits, err = s.visitRepo.List(ctx, 0, 1, map[string]interface{}{"start_time": startOfDay}); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if overview.PendingPayouts, err = s.withdrawalRepo.CountByStatus(ctx, models.WithdrawalStatusPending); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if overview.ApprovedPayouts, err = s.withdrawalRepo.CountByStatus(ctx, models.WithdrawalStatusApproved); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if _, overview.PendingEvidence, err = s.paymentRepo.ListEvidence(ctx, 0, 1, map[string]interface{}{"status": models.EvidenceStatusSubmitted}); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if overview.NewContacts, err = s.contactRepo.CountByStatus(ctx, models.ContactStatusNew); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return overview, nil
}
