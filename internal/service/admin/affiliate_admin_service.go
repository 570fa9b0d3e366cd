package admin

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/crypto"
	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/service/notify"
	"github.com/dumeirei/school-portal-backend/pkg/sms"
)

// AffiliateAdminService 推广员管理
type AffiliateAdminService struct {
	affiliateRepo *repository.AffiliateRepository
	visitRepo     *repository.ReferralVisitRepository
	aes           *crypto.AES
	notifier      notify.Notifier
	now           func() time.Time
}

// NewAffiliateAdminService 创建推广员管理服务
func NewAffiliateAdminService(
	affiliateRepo *repository.AffiliateRepository,
	visitRepo *repository.ReferralVisitRepository,
	aes *crypto.AES,
) *AffiliateAdminService {
	return &AffiliateAdminService{
		affiliateRepo: affiliateRepo,
		visitRepo:     visitRepo,
		aes:           aes,
		notifier:      notify.Nop{},
		now:           time.Now,
	}
}

// WithNotifier 首次审核通过时通知推广员
func (s *AffiliateAdminService) WithNotifier(n notify.Notifier) *AffiliateAdminService {
	if n != nil {
		s.notifier = n
	}
	return s
}

// AffiliateDetail 管理端推广员详情，含打款所需的完整账号
type AffiliateDetail struct {
	*models.Affiliate
	AccountNumberPlain string `json:"account_number,omitempty"`
}

// List 推广员列表
func (s *AffiliateAdminService) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Affiliate, int64, error) {
	list, total, err := s.affiliateRepo.List(ctx, offset, limit, filters)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return list, total, nil
}

// Get 推广员详情
func (s *AffiliateAdminService) Get(ctx context.Context, id int64) (*AffiliateDetail, error) {
	a, err := s.affiliateRepo.GetByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrAffiliateNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	detail := &AffiliateDetail{Affiliate: a}
	if a.AccountNumber != nil {
		plain, err := s.aes.Decrypt(*a.AccountNumber)
		if err != nil {
			logger.Warn("decrypt affiliate account number failed", logger.AffiliateID(id), zap.Error(err))
		} else {
			detail.AccountNumberPlain = plain
		}
	}
	return detail, nil
}

// UpdateStatusRequest 状态变更
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending approved suspended"`
}

// UpdateStatus 审核或停用推广员；首次通过时记录审核时间
func (s *AffiliateAdminService) UpdateStatus(ctx context.Context, id, adminID int64, req *UpdateStatusRequest) (*models.Affiliate, error) {
	switch req.Status {
	case models.AffiliateStatusPending, models.AffiliateStatusApproved, models.AffiliateStatusSuspended:
	default:
		return nil, errors.ErrInvalidAffiliateStatus
	}

	current, err := s.affiliateRepo.GetByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrAffiliateNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	fields := map[string]interface{}{"status": req.Status}
	if req.Status == models.AffiliateStatusApproved && current.ApprovedAt == nil {
		fields["approved_at"] = s.now()
	}
	if err := s.affiliateRepo.UpdateProfile(ctx, id, fields); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	logger.Info("affiliate status changed",
		logger.AffiliateID(id),
		logger.AdminID(adminID),
		zap.String("from", current.Status),
		zap.String("to", req.Status),
	)

	updated, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, first := fields["approved_at"]; first {
		s.notifier.Notify(ctx, notify.NewEvent(notify.EventAffiliateApproved, "affiliate:"+strconv.FormatInt(id, 10), map[string]interface{}{
			"affiliate_id":  id,
			"referral_code": updated.Username,
		}).WithSMS(sms.AffiliateApproved(utils.SafeString(updated.Phone), updated.FullName, updated.Username)))
	}
	return updated, nil
}

// UpdateRateRequest 佣金比例（百分比）
type UpdateRateRequest struct {
	CommissionRate decimal.Decimal `json:"commission_rate" binding:"required"`
}

// UpdateCommissionRate 修改佣金比例，只影响之后的归因
func (s *AffiliateAdminService) UpdateCommissionRate(ctx context.Context, id, adminID int64, req *UpdateRateRequest) (*models.Affiliate, error) {
	rate := req.CommissionRate
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) || !rate.Equal(utils.RoundMoney(rate)) {
		return nil, errors.ErrInvalidCommissionRate
	}
	if err := s.affiliateRepo.UpdateProfile(ctx, id, map[string]interface{}{"commission_rate": rate}); err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrAffiliateNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	logger.Info("affiliate commission rate changed", logger.AffiliateID(id), logger.AdminID(adminID), zap.String("rate", rate.String()))
	return s.reload(ctx, id)
}

// ListVisits 全部推广访问
func (s *AffiliateAdminService) ListVisits(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.ReferralVisit, int64, error) {
	list, total, err := s.visitRepo.List(ctx, offset, limit, filters)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return list, total, nil
}

// LedgerReport 账本核对结果
type LedgerReport struct {
	CheckedAt  time.Time                    `json:"checked_at"`
	Consistent bool                         `json:"consistent"`
	Mismatches []*repository.LedgerMismatch `json:"mismatches"`
}

// CheckLedger 核对 total = pending + paid 以及 paid = 已打款提现合计
func (s *AffiliateAdminService) CheckLedger(ctx context.Context) (*LedgerReport, error) {
	mismatches, err := s.affiliateRepo.LedgerMismatches(ctx)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	report := &LedgerReport{
		CheckedAt:  s.now(),
		Consistent: len(mismatches) == 0,
		Mismatches: mismatches,
	}
	if report.Mismatches == nil {
		report.Mismatches = []*repository.LedgerMismatch{}
	}
	for _, m := range mismatches {
		logger.Error("affiliate ledger mismatch",
			logger.AffiliateID(m.AffiliateID),
			zap.String("reason", m.Reason),
			zap.String("total", m.TotalEarnings.String()),
			zap.String("pending", m.PendingEarnings.String()),
			zap.String("paid", m.PaidEarnings.String()),
		)
	}
	return report, nil
}

func (s *AffiliateAdminService) reload(ctx context.Context, id int64) (*models.Affiliate, error) {
	a, err := s.affiliateRepo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return a, nil
}
