package affiliate

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
	"github.com/dumeirei/school-portal-backend/internal/common/tracing"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/service/notify"
	"github.com/dumeirei/school-portal-backend/pkg/sms"
)

// DefaultMinWithdrawal 默认最低提现金额
var DefaultMinWithdrawal = decimal.NewFromInt(5000)

// 审核结论
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// WithdrawService 提现申请、审核与打款
// 收益在打款时才从待结算转入已结算
type WithdrawService struct {
	db             *gorm.DB
	affiliateRepo  *repository.AffiliateRepository
	withdrawalRepo *repository.WithdrawalRepository
	notifier       notify.Notifier
	metrics        *metrics.Metrics
	minAmount      decimal.Decimal
	now            func() time.Time
}

// NewWithdrawService 创建提现服务
func NewWithdrawService(
	db *gorm.DB,
	affiliateRepo *repository.AffiliateRepository,
	withdrawalRepo *repository.WithdrawalRepository,
	notifier notify.Notifier,
	m *metrics.Metrics,
) *WithdrawService {
	return &WithdrawService{
		db:             db,
		affiliateRepo:  affiliateRepo,
		withdrawalRepo: withdrawalRepo,
		notifier:       notify.OrNop(notifier),
		metrics:        m,
		minAmount:      DefaultMinWithdrawal,
		now:            time.Now,
	}
}

// SetMinAmount 设置最低提现金额
func (s *WithdrawService) SetMinAmount(min decimal.Decimal) {
	if min.IsPositive() {
		s.minAmount = min
	}
}

// WithdrawRequest 提现申请
type WithdrawRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Notes  string          `json:"notes" binding:"max=500"`
}

// RequestWithdrawal 申请提现
// 锁定推广员行后校验：金额不低于下限，且不超过待结算收益减去处理中的申请
func (s *WithdrawService) RequestWithdrawal(ctx context.Context, affiliateID int64, req *WithdrawRequest) (w *models.WithdrawalRequest, err error) {
	ctx, span := tracing.Start(ctx, "affiliate.request_withdrawal", tracing.AttrAffiliateID.Int64(affiliateID))
	defer func() { tracing.End(span, err) }()

	amount := req.Amount
	if !amount.IsPositive() || amount.LessThan(s.minAmount) || !amount.Equal(utils.RoundMoney(amount)) {
		return nil, errors.ErrInvalidAmount
	}

	var affiliate *models.Affiliate
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		affiliate, err = s.affiliateRepo.GetForUpdate(tx, affiliateID)
		if err != nil {
			if database.IsNotFound(err) {
				return errors.ErrAffiliateNotFound
			}
			return err
		}
		if !affiliate.IsApproved() {
			return errors.ErrAffiliateNotApproved
		}

		outstanding, err := s.withdrawalRepo.SumOutstanding(tx, affiliateID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(affiliate.PendingEarnings.Sub(outstanding)) {
			return errors.ErrInvalidAmount.WithMessage("Amount exceeds available balance")
		}

		w = &models.WithdrawalRequest{
			AffiliateID: affiliateID,
			Amount:      amount,
			Status:      models.WithdrawalStatusPending,
			Notes:       optional(req.Notes),
			RequestedAt: s.now(),
		}
		return s.withdrawalRepo.Create(tx, w)
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}

	s.metrics.RecordWithdrawal(models.WithdrawalStatusPending)
	logger.Info("withdrawal requested",
		logger.AffiliateID(affiliateID),
		logger.WithdrawalID(w.ID),
		logger.Amount(w.Amount),
	)
	s.notifier.Notify(ctx, notify.NewEvent(notify.EventWithdrawalRequested, key(affiliateID), map[string]interface{}{
		"withdrawal_id": w.ID,
		"affiliate_id":  affiliateID,
		"username":      affiliate.Username,
		"amount":        utils.FormatMoney(w.Amount),
	}))
	return w, nil
}

// ListOwn 推广员自己的提现申请
func (s *WithdrawService) ListOwn(ctx context.Context, affiliateID int64, offset, limit int, status string) ([]*models.WithdrawalRequest, int64, error) {
	return s.List(ctx, offset, limit, map[string]interface{}{"affiliate_id": affiliateID, "status": status})
}

// List 提现申请列表
func (s *WithdrawService) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.WithdrawalRequest, int64, error) {
	list, total, err := s.withdrawalRepo.List(ctx, offset, limit, filters)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return list, total, nil
}

// ReviewRequest 审核请求
type ReviewRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Notes    string `json:"notes" binding:"max=500"`
}

// ReviewWithdrawal 审核提现，只允许 pending -> approved/rejected，不影响账本
func (s *WithdrawService) ReviewWithdrawal(ctx context.Context, withdrawalID, adminID int64, req *ReviewRequest) (*models.WithdrawalRequest, error) {
	var to string
	switch req.Decision {
	case DecisionApprove:
		to = models.WithdrawalStatusApproved
	case DecisionReject:
		to = models.WithdrawalStatusRejected
	default:
		return nil, errors.ErrInvalidParams.WithMessage("Invalid review decision")
	}

	now := s.now()
	fields := map[string]interface{}{
		"reviewed_at": now,
		"operator_id": adminID,
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		fields["admin_notes"] = notes
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.withdrawalRepo.GetByIDTx(tx, withdrawalID); err != nil {
			if database.IsNotFound(err) {
				return errors.ErrWithdrawalNotFound
			}
			return err
		}
		return s.withdrawalRepo.Transition(tx, withdrawalID, models.WithdrawalStatusPending, to, fields)
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}

	w, err := s.withdrawalRepo.GetByIDWithAffiliate(ctx, withdrawalID)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	s.metrics.RecordWithdrawal(to)
	logger.Info("withdrawal reviewed", logger.WithdrawalID(withdrawalID), logger.AdminID(adminID), zap.String("status", to))
	s.notifier.Notify(ctx, notify.NewEvent(notify.EventWithdrawalReviewed, key(w.AffiliateID), map[string]interface{}{
		"withdrawal_id": w.ID,
		"affiliate_id":  w.AffiliateID,
		"status":        to,
		"amount":        utils.FormatMoney(w.Amount),
	}))
	return w, nil
}

// PayRequest 打款请求
type PayRequest struct {
	Notes string `json:"notes" binding:"max=500"`
}

// MarkPaid 确认打款：approved -> paid，同一事务内结算收益
func (s *WithdrawService) MarkPaid(ctx context.Context, withdrawalID, adminID int64, req *PayRequest) (w *models.WithdrawalRequest, err error) {
	ctx, span := tracing.Start(ctx, "affiliate.mark_withdrawal_paid", tracing.AttrWithdrawalID.Int64(withdrawalID))
	defer func() { tracing.End(span, err) }()

	now := s.now()
	fields := map[string]interface{}{
		"processed_at": now,
		"operator_id":  adminID,
	}
	if req != nil && strings.TrimSpace(req.Notes) != "" {
		fields["admin_notes"] = strings.TrimSpace(req.Notes)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.withdrawalRepo.GetByIDTx(tx, withdrawalID)
		if err != nil {
			if database.IsNotFound(err) {
				return errors.ErrWithdrawalNotFound
			}
			return err
		}
		if err := s.withdrawalRepo.Transition(tx, withdrawalID, models.WithdrawalStatusApproved, models.WithdrawalStatusPaid, fields); err != nil {
			return err
		}
		if err := s.affiliateRepo.SettleWithdrawal(tx, current.AffiliateID, current.Amount); err != nil {
			if stderrors.Is(err, repository.ErrInsufficientPending) {
				return errors.ErrInvalidAmount.WithMessage("Pending earnings cannot cover this withdrawal")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}

	w, err = s.withdrawalRepo.GetByIDWithAffiliate(ctx, withdrawalID)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	s.metrics.RecordWithdrawal(models.WithdrawalStatusPaid)
	logger.Info("withdrawal paid",
		logger.WithdrawalID(withdrawalID),
		logger.AffiliateID(w.AffiliateID),
		logger.AdminID(adminID),
		logger.Amount(w.Amount),
	)

	amount := utils.FormatMoney(w.Amount)
	ev := notify.NewEvent(notify.EventWithdrawalPaid, key(w.AffiliateID), map[string]interface{}{
		"withdrawal_id": w.ID,
		"affiliate_id":  w.AffiliateID,
		"amount":        amount,
	})
	if w.Affiliate != nil {
		ev = ev.WithSMS(sms.WithdrawalPaid(utils.SafeString(w.Affiliate.Phone), w.Affiliate.FullName, amount))
	}
	s.notifier.Notify(ctx, ev)
	return w, nil
}

// wrapStoreError 业务错误原样返回，其余视为存储失败
func wrapStoreError(err error) error {
	switch {
	case errors.IsAppError(err):
		return err
	case stderrors.Is(err, repository.ErrWithdrawalStatusChanged):
		return errors.ErrInvalidTransition
	default:
		return errors.ErrStoreFailure.WithError(err)
	}
}

func key(affiliateID int64) string {
	return "affiliate:" + strconv.FormatInt(affiliateID, 10)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
