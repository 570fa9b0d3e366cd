package referral

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/cache"
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

// Outcome 归因结果
type Outcome string

// 归因结果取值
const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeNoReferral Outcome = "no_referral"
	OutcomeNotPaid    Outcome = "not_paid"
)

// 归因路径
const (
	PathDirect = "direct" // 报名携带推广码
	PathWindow = "window" // 归因窗口内最近访问
)

// AttributionResult 归因结果
type AttributionResult struct {
	SignupID          int64           `json:"signup_id"`
	Outcome           Outcome         `json:"outcome"`
	Amount            decimal.Decimal `json:"amount"`
	AffiliateID       int64           `json:"affiliate_id,omitempty"`
	AffiliateCode     string          `json:"affiliate_code,omitempty"`
	VisitID           int64           `json:"visit_id,omitempty"`
	Path              string          `json:"path,omitempty"`
	AlreadyAttributed bool            `json:"already_attributed"`
}

// AttributionService 佣金归因
type AttributionService struct {
	db            *gorm.DB
	signupRepo    *repository.SchoolSignupRepository
	visitRepo     *repository.ReferralVisitRepository
	affiliateRepo *repository.AffiliateRepository
	locker        *cache.Locker
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	config        Config
	now           func() time.Time
}

// NewAttributionService 创建归因服务；locker 可为 nil
func NewAttributionService(
	db *gorm.DB,
	signupRepo *repository.SchoolSignupRepository,
	visitRepo *repository.ReferralVisitRepository,
	affiliateRepo *repository.AffiliateRepository,
	locker *cache.Locker,
	notifier notify.Notifier,
	m *metrics.Metrics,
	config Config,
) *AttributionService {
	if config.LockTTL <= 0 {
		config.LockTTL = 30 * time.Second
	}
	return &AttributionService{
		db:            db,
		signupRepo:    signupRepo,
		visitRepo:     visitRepo,
		affiliateRepo: affiliateRepo,
		locker:        locker,
		notifier:      notify.OrNop(notifier),
		metrics:       m,
		config:        config,
		now:           time.Now,
	}
}

// Attribute 为已支付的学校报名归因佣金
// 同一报名重复调用返回首次结果，不会重复入账
func (s *AttributionService) Attribute(ctx context.Context, signupID int64) (res *AttributionResult, err error) {
	ctx, span := tracing.Start(ctx, "referral.attribute", tracing.AttrSignupID.Int64(signupID))
	defer func() {
		if res != nil {
			span.SetAttributes(tracing.AttrOutcome.String(string(res.Outcome)), tracing.AttrPath.String(res.Path))
		}
		tracing.End(span, err)
	}()

	lock, err := s.locker.Acquire(ctx, cache.BuildKey(cache.KeyPrefixAttribution, strconv.FormatInt(signupID, 10)), s.config.LockTTL)
	if err != nil {
		if stderrors.Is(err, cache.ErrLockNotAcquired) {
			return nil, errors.ErrAttributionInProgress
		}
		// Redis 不可用时依赖数据库行锁
		logger.Warn("attribution lock unavailable", logger.SignupID(signupID), zap.Error(err))
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			logger.Warn("release attribution lock failed", logger.SignupID(signupID), zap.Error(rerr))
		}
	}()

	var (
		signup    *models.SchoolSignup
		affiliate *models.Affiliate
	)
	now := s.now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res = nil
		affiliate = nil

		var err error
		signup, err = s.signupRepo.GetForUpdate(tx, signupID)
		if err != nil {
			if database.IsNotFound(err) {
				return errors.ErrSignupNotFound
			}
			return err
		}
		if !signup.IsPaid() {
			res = &AttributionResult{SignupID: signupID, Outcome: OutcomeNotPaid}
			return nil
		}

		existing, err := s.visitRepo.GetBySignupID(tx, signupID)
		if err == nil {
			res = committedFrom(signupID, existing)
			return nil
		}
		if !database.IsNotFound(err) {
			return err
		}
		if signup.AttributionCheckedAt != nil {
			res = &AttributionResult{SignupID: signupID, Outcome: OutcomeNoReferral, AlreadyAttributed: true}
			return nil
		}

		visit, owner, path, err := s.resolve(tx, signup, now)
		if err != nil {
			return err
		}
		if visit == nil {
			res = &AttributionResult{SignupID: signupID, Outcome: OutcomeNoReferral}
			return s.signupRepo.StampAttributionChecked(tx, signupID, now)
		}

		amount := utils.Percent(signup.TotalAmount, owner.CommissionRate)
		if err := s.visitRepo.MarkConverted(tx, visit.ID, signupID, amount, now); err != nil {
			if stderrors.Is(err, repository.ErrVisitAlreadyConverted) || database.IsUniqueViolation(err) {
				return errors.ErrAttributionConflict.WithError(err)
			}
			return err
		}
		if err := s.affiliateRepo.CreditCommission(tx, owner.ID, amount); err != nil {
			return err
		}
		if err := s.signupRepo.StampAttributionChecked(tx, signupID, now); err != nil {
			return err
		}

		affiliate = owner
		res = &AttributionResult{
			SignupID:      signupID,
			Outcome:       OutcomeCommitted,
			Amount:        amount,
			AffiliateID:   owner.ID,
			AffiliateCode: owner.Username,
			VisitID:       visit.ID,
			Path:          path,
		}
		return nil
	})
	if err != nil {
		res = nil
		if database.IsUniqueViolation(err) {
			return nil, errors.ErrAttributionConflict.WithError(err)
		}
		if errors.IsAppError(err) {
			return nil, err
		}
		logger.Error("attribution failed", logger.SignupID(signupID), zap.Error(err))
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	if !res.AlreadyAttributed {
		amount, _ := res.Amount.Float64()
		s.metrics.RecordAttribution(string(res.Outcome), res.Path, amount)
	}
	if affiliate != nil {
		logger.Info("commission attributed",
			logger.SignupID(signupID),
			logger.AffiliateID(affiliate.ID),
			logger.VisitID(res.VisitID),
			logger.Amount(res.Amount),
			zap.String("path", res.Path),
		)
		s.notifyCommission(ctx, affiliate, signup, res)
	}
	return res, nil
}

// resolve 先按推广码直接归因；无推广码或推广码无效时回退到归因窗口
// 推广员有效但没有未转化访问时不回退
func (s *AttributionService) resolve(tx *gorm.DB, signup *models.SchoolSignup, now time.Time) (*models.ReferralVisit, *models.Affiliate, string, error) {
	if code := utils.NormalizeReferralCode(utils.SafeString(signup.ReferralCode)); code != "" {
		owner, err := s.affiliateRepo.GetApprovedByUsernameTx(tx, code)
		switch {
		case err == nil:
			visit, err := s.visitRepo.LatestPendingForAffiliate(tx, owner.ID, owner.Username)
			if err != nil {
				if database.IsNotFound(err) {
					return nil, nil, "", nil
				}
				return nil, nil, "", err
			}
			return visit, owner, PathDirect, nil
		case !database.IsNotFound(err):
			return nil, nil, "", err
		}
	}

	visit, err := s.visitRepo.LatestPendingInWindow(tx, now.Add(-s.config.AttributionWindow))
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil, "", nil
		}
		return nil, nil, "", err
	}
	owner, err := s.affiliateRepo.GetForUpdate(tx, visit.AffiliateID)
	if err != nil {
		return nil, nil, "", err
	}
	return visit, owner, PathWindow, nil
}

func committedFrom(signupID int64, visit *models.ReferralVisit) *AttributionResult {
	res := &AttributionResult{
		SignupID:          signupID,
		Outcome:           OutcomeCommitted,
		AffiliateID:       visit.AffiliateID,
		AffiliateCode:     visit.ReferralCode,
		VisitID:           visit.ID,
		AlreadyAttributed: true,
	}
	if visit.CommissionAmount != nil {
		res.Amount = *visit.CommissionAmount
	}
	return res
}

func (s *AttributionService) notifyCommission(ctx context.Context, affiliate *models.Affiliate, signup *models.SchoolSignup, res *AttributionResult) {
	amount := utils.FormatMoney(res.Amount)
	phone := ""
	if affiliate.Phone != nil {
		phone = *affiliate.Phone
	}
	ev := notify.NewEvent(notify.EventCommissionEarned, "affiliate:"+strconv.FormatInt(affiliate.ID, 10), map[string]interface{}{
		"affiliate_id": affiliate.ID,
		"signup_id":    signup.ID,
		"school_name":  signup.SchoolName,
		"amount":       amount,
		"path":         res.Path,
	}).WithSMS(sms.CommissionEarned(phone, affiliate.FullName, amount, signup.SchoolName))
	s.notifier.Notify(ctx, ev)
}

// RetryStats 补偿归因统计
type RetryStats struct {
	Checked   int
	Committed int
	Failed    int
}

// RetryUnattributed 对已支付但未完成归因的报名重新归因
func (s *AttributionService) RetryUnattributed(ctx context.Context, limit int) (*RetryStats, error) {
	ids, err := s.signupRepo.ListPaidUnattributed(ctx, limit)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	stats := &RetryStats{}
	for _, id := range ids {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		res, err := s.Attribute(ctx, id)
		if err != nil {
			stats.Failed++
			logger.Warn("retry attribution failed", logger.SignupID(id), zap.Error(err))
			continue
		}
		if res.Outcome == OutcomeCommitted && !res.AlreadyAttributed {
			stats.Committed++
		}
	}
	return stats, nil
}
