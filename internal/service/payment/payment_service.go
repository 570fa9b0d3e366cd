// Package payment 提供 Paystack 在线支付、线下凭证与付款确认
package payment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/cache"
	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/service/notify"
	"github.com/dumeirei/school-portal-backend/internal/service/referral"
	"github.com/dumeirei/school-portal-backend/pkg/oss"
	"github.com/dumeirei/school-portal-backend/pkg/paystack"
)

// 待确认流水的重新核验范围
const (
	ReverifyMinAge = 2 * time.Minute
	ReverifyMaxAge = 48 * time.Hour
	reverifyBatch  = 100
	webhookSeenTTL = 24 * time.Hour
)

// Gateway 支付网关
type Gateway interface {
	Initialize(ctx context.Context, req *paystack.InitializeRequest) (*paystack.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*paystack.Transaction, error)
	ParseWebhook(body []byte, signature string) (*paystack.Event, error)
}

// Attributor 付款后的佣金归因
type Attributor interface {
	Attribute(ctx context.Context, signupID int64) (*referral.AttributionResult, error)
}

// PaymentService 支付服务
type PaymentService struct {
	db          *gorm.DB
	paymentRepo *repository.PaymentRepository
	signupRepo  *repository.SchoolSignupRepository
	renewalRepo *repository.RenewalRepository
	gateway     Gateway
	attributor  Attributor
	uploader    oss.Uploader
	redis       *redis.Client
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	maxFileSize int64
	now         func() time.Time
}

// NewPaymentService 创建支付服务
func NewPaymentService(
	db *gorm.DB,
	paymentRepo *repository.PaymentRepository,
	signupRepo *repository.SchoolSignupRepository,
	renewalRepo *repository.RenewalRepository,
	gateway Gateway,
	attributor Attributor,
	uploader oss.Uploader,
	rdb *redis.Client,
	notifier notify.Notifier,
	m *metrics.Metrics,
) *PaymentService {
	return &PaymentService{
		db:          db,
		paymentRepo: paymentRepo,
		signupRepo:  signupRepo,
		renewalRepo: renewalRepo,
		gateway:     gateway,
		attributor:  attributor,
		uploader:    uploader,
		redis:       rdb,
		notifier:    notify.OrNop(notifier),
		metrics:     m,
		maxFileSize: 5 << 20,
		now:         time.Now,
	}
}

// SetMaxFileSize 设置凭证文件大小上限
func (s *PaymentService) SetMaxFileSize(size int64) {
	if size > 0 {
		s.maxFileSize = size
	}
}

// InitializeResponse 发起支付结果
type InitializeResponse struct {
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	Amount           decimal.Decimal `json:"amount"`
}

// InitializeSignup 为在线支付的报名发起 Paystack 交易
func (s *PaymentService) InitializeSignup(ctx context.Context, signupID int64) (*InitializeResponse, error) {
	signup, err := s.signupRepo.GetByID(ctx, signupID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrSignupNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if signup.IsPaid() {
		return nil, errors.ErrAlreadyPaid
	}
	if signup.PaymentType != models.PaymentTypeOnline {
		return nil, errors.ErrInvalidParams.WithMessage("This signup uses offline payment")
	}

	resp, err := s.initialize(ctx, &target{
		purpose:      models.PaymentPurposeSignup,
		id:           signup.ID,
		email:        signup.SchoolEmail,
		amount:       signup.TotalAmount,
		referralCode: utils.SafeString(signup.ReferralCode),
		prefix:       utils.ReferencePrefixSignup,
	})
	if err != nil {
		return nil, err
	}
	if err := s.signupRepo.SetPaymentReference(ctx, signup.ID, resp.Reference); err != nil {
		logger.Warn("save signup payment reference failed", logger.SignupID(signup.ID), zap.Error(err))
	}
	return resp, nil
}

// InitializeRenewal 为续费发起 Paystack 交易
func (s *PaymentService) InitializeRenewal(ctx context.Context, renewalID int64) (*InitializeResponse, error) {
	renewal, err := s.renewalRepo.GetByID(ctx, renewalID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrRenewalNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if renewal.PaymentStatus == models.PaymentStatusPaid {
		return nil, errors.ErrAlreadyPaid
	}

	resp, err := s.initialize(ctx, &target{
		purpose: models.PaymentPurposeRenewal,
		id:      renewal.ID,
		email:   renewal.Email,
		amount:  renewal.TotalAmount,
		prefix:  utils.ReferencePrefixRenewal,
	})
	if err != nil {
		return nil, err
	}
	if err := s.renewalRepo.SetPaymentReference(ctx, renewal.ID, resp.Reference); err != nil {
		logger.Warn("save renewal payment reference failed", zap.Int64("renewal_id", renewal.ID), zap.Error(err))
	}
	return resp, nil
}

type target struct {
	purpose      string
	id           int64
	email        string
	amount       decimal.Decimal
	referralCode string
	prefix       string
}

func (s *PaymentService) initialize(ctx context.Context, t *target) (*InitializeResponse, error) {
	if !t.amount.IsPositive() {
		return nil, errors.ErrInvalidParams.WithMessage("Order total is 0, please contact an administrator")
	}

	now := s.now()
	txn := &models.PaymentTransaction{
		Reference: utils.GenerateReference(t.prefix, t.id, now),
		Purpose:   t.purpose,
		TargetID:  t.id,
		Email:     t.email,
		Amount:    t.amount,
		Currency:  "NGN",
		Status:    models.TransactionStatusInitialized,
	}
	if err := s.paymentRepo.CreateTransaction(ctx, txn); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	metadata := map[string]interface{}{
		"purpose":   t.purpose,
		"target_id": t.id,
	}
	if t.referralCode != "" {
		metadata["referral_code"] = t.referralCode
	}

	result, err := s.gateway.Initialize(ctx, &paystack.InitializeRequest{
		Email:     t.email,
		Amount:    utils.ToMinorUnits(t.amount),
		Reference: txn.Reference,
		Metadata:  metadata,
	})
	if err != nil {
		if ferr := s.paymentRepo.FinalizeTransaction(s.db.WithContext(ctx), txn.Reference, models.TransactionStatusFailed, err.Error(), nil, s.now()); ferr != nil {
			logger.Warn("mark transaction failed", logger.Reference(txn.Reference), zap.Error(ferr))
		}
		s.metrics.RecordPayment(t.purpose, "init_error")
		return nil, gatewayError(err)
	}

	if err := s.paymentRepo.SetAuthorizationURL(ctx, txn.ID, result.AuthorizationURL); err != nil {
		logger.Warn("save authorization url failed", logger.Reference(txn.Reference), zap.Error(err))
	}
	s.metrics.RecordPayment(t.purpose, models.TransactionStatusInitialized)

	return &InitializeResponse{
		Reference:        txn.Reference,
		AuthorizationURL: result.AuthorizationURL,
		Amount:           t.amount,
	}, nil
}

func gatewayError(err error) error {
	if stderrors.Is(err, paystack.ErrTimeout) {
		return errors.ErrGatewayTimeout.WithError(err)
	}
	return errors.ErrGatewayFailure.WithError(err)
}

// VerifyResult 核验结果
type VerifyResult struct {
	Reference   string                      `json:"reference"`
	Purpose     string                      `json:"purpose"`
	TargetID    int64                       `json:"target_id"`
	Status      string                      `json:"status"`
	Paid        bool                        `json:"paid"`
	Attribution *referral.AttributionResult `json:"attribution,omitempty"`
}

// Verify 向网关核验交易；成功则标记付款并触发归因
// 网关超时或失败时订单保持 pending
func (s *PaymentService) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	txn, err := s.paymentRepo.GetTransactionByReference(ctx, reference)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	switch txn.Status {
	case models.TransactionStatusSuccess:
		return s.afterPaid(ctx, txn, false), nil
	case models.TransactionStatusFailed:
		return &VerifyResult{Reference: txn.Reference, Purpose: txn.Purpose, TargetID: txn.TargetID, Status: txn.Status}, nil
	}

	gw, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		s.metrics.RecordPayment(txn.Purpose, "verify_error")
		return nil, gatewayError(err)
	}
	return s.apply(ctx, txn, gw)
}

// apply 根据网关交易结果更新本地流水与订单
func (s *PaymentService) apply(ctx context.Context, txn *models.PaymentTransaction, gw *paystack.Transaction) (*VerifyResult, error) {
	result := &VerifyResult{Reference: txn.Reference, Purpose: txn.Purpose, TargetID: txn.TargetID, Status: txn.Status}

	switch {
	case gw.IsSuccess():
		if gw.Amount != utils.ToMinorUnits(txn.Amount) {
			logger.Error("payment amount mismatch",
				logger.Reference(txn.Reference),
				zap.String("expected", utils.FormatMoney(txn.Amount)),
				zap.String("received", utils.FormatMoney(utils.FromMinorUnits(gw.Amount))),
			)
			s.finalizeFailed(ctx, txn.Reference, "amount mismatch", gw)
			s.metrics.RecordPayment(txn.Purpose, "amount_mismatch")
			return nil, errors.ErrPaymentAmountMismatch
		}
	case gw.Status == paystack.StatusFailed:
		s.finalizeFailed(ctx, txn.Reference, gw.GatewayResponse, gw)
		s.metrics.RecordPayment(txn.Purpose, models.TransactionStatusFailed)
		result.Status = models.TransactionStatusFailed
		return result, nil
	default:
		// abandoned / ongoing 仍可能完成，保持 initialized
		return result, nil
	}

	now := s.now()
	fresh := true
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.paymentRepo.FinalizeTransaction(tx, txn.Reference, models.TransactionStatusSuccess, gw.GatewayResponse, toJSON(gw), now)
		if stderrors.Is(err, repository.ErrTransactionFinalized) {
			fresh = false
			return nil
		}
		if err != nil {
			return err
		}
		return s.markTargetPaid(tx, txn.Purpose, txn.TargetID, txn.Reference, now)
	})
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	txn.Status = models.TransactionStatusSuccess
	if fresh {
		s.metrics.RecordPayment(txn.Purpose, models.TransactionStatusSuccess)
		logger.Info("payment confirmed", logger.Reference(txn.Reference), zap.String("purpose", txn.Purpose), zap.Int64("target_id", txn.TargetID))
	}
	return s.afterPaid(ctx, txn, fresh), nil
}

func (s *PaymentService) markTargetPaid(tx *gorm.DB, purpose string, id int64, reference string, at time.Time) error {
	var err error
	if purpose == models.PaymentPurposeRenewal {
		err = s.renewalRepo.MarkPaid(tx, id, reference, at)
	} else {
		err = s.signupRepo.MarkPaid(tx, id, reference, at)
	}
	if stderrors.Is(err, repository.ErrSignupAlreadyPaid) {
		return nil
	}
	return err
}

func (s *PaymentService) finalizeFailed(ctx context.Context, reference, reason string, gw *paystack.Transaction) {
	err := s.paymentRepo.FinalizeTransaction(s.db.WithContext(ctx), reference, models.TransactionStatusFailed, reason, toJSON(gw), s.now())
	if err != nil && !stderrors.Is(err, repository.ErrTransactionFinalized) {
		logger.Warn("mark transaction failed", logger.Reference(reference), zap.Error(err))
	}
}

// afterPaid 付款完成后的归因与通知；归因失败由定时任务补偿
func (s *PaymentService) afterPaid(ctx context.Context, txn *models.PaymentTransaction, fresh bool) *VerifyResult {
	result := &VerifyResult{
		Reference: txn.Reference,
		Purpose:   txn.Purpose,
		TargetID:  txn.TargetID,
		Status:    models.TransactionStatusSuccess,
		Paid:      true,
	}

	if txn.Purpose == models.PaymentPurposeSignup {
		result.Attribution = s.attribute(ctx, txn.TargetID)
	}

	if fresh {
		name := notify.EventSignupPaid
		if txn.Purpose == models.PaymentPurposeRenewal {
			name = notify.EventRenewalPaid
		}
		s.notifier.Notify(ctx, notify.NewEvent(name, txn.Reference, map[string]interface{}{
			"reference": txn.Reference,
			"target_id": txn.TargetID,
			"amount":    utils.FormatMoney(txn.Amount),
		}))
	}
	return result
}

func (s *PaymentService) attribute(ctx context.Context, signupID int64) *referral.AttributionResult {
	res, err := s.attributor.Attribute(ctx, signupID)
	if err != nil {
		logger.Warn("attribution deferred", logger.SignupID(signupID), zap.Error(err))
		return nil
	}
	return res
}

// HandleWebhook 处理 Paystack 回调：校验签名，按流水号去重
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(body, signature)
	if err != nil {
		s.metrics.RecordWebhook("unknown", "invalid_signature")
		if stderrors.Is(err, paystack.ErrInvalidSignature) {
			return errors.ErrInvalidSignature
		}
		return errors.ErrInvalidParams.WithError(err)
	}

	if ev.Event != paystack.EventChargeSuccess {
		s.metrics.RecordWebhook(ev.Event, "ignored")
		return nil
	}

	reference := ev.Data.Reference
	seenKey := cache.BuildKey(cache.KeyPrefixWebhook, reference)
	first, err := cache.MarkOnce(ctx, s.redis, seenKey, webhookSeenTTL)
	if err != nil {
		logger.Warn("webhook dedup unavailable", logger.Reference(reference), zap.Error(err))
	} else if !first {
		s.metrics.RecordWebhook(ev.Event, "duplicate")
		return nil
	}

	err = s.processCharge(ctx, &ev.Data)
	if err != nil {
		_ = cache.Delete(context.WithoutCancel(ctx), s.redis, seenKey)
		s.metrics.RecordWebhook(ev.Event, "error")
		return err
	}
	s.metrics.RecordWebhook(ev.Event, "processed")
	return nil
}

func (s *PaymentService) processCharge(ctx context.Context, data *paystack.Transaction) error {
	txn, err := s.paymentRepo.GetTransactionByReference(ctx, data.Reference)
	if err != nil {
		if database.IsNotFound(err) {
			logger.Warn("webhook for unknown reference", logger.Reference(data.Reference))
			return nil
		}
		return errors.ErrStoreFailure.WithError(err)
	}
	if txn.Status == models.TransactionStatusSuccess {
		s.afterPaid(ctx, txn, false)
		return nil
	}
	_, err = s.apply(ctx, txn, data)
	return err
}

// ReverifyStats 重新核验统计
type ReverifyStats struct {
	Checked int `json:"checked"`
	Paid    int `json:"paid"`
	Failed  int `json:"failed"`
	Errors  int `json:"errors"`
}

// ReverifyPending 重新核验创建 2 分钟到 48 小时之间仍未确认的流水
func (s *PaymentService) ReverifyPending(ctx context.Context) (*ReverifyStats, error) {
	now := s.now()
	txns, err := s.paymentRepo.ListStaleInitialized(ctx, now.Add(-ReverifyMaxAge), now.Add(-ReverifyMinAge), reverifyBatch)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	stats := &ReverifyStats{}
	for _, txn := range txns {
		if ctx.Err() != nil {
			break
		}
		stats.Checked++
		res, err := s.Verify(ctx, txn.Reference)
		switch {
		case err != nil:
			stats.Errors++
			logger.Warn("reverify payment failed", logger.Reference(txn.Reference), zap.Error(err))
		case res.Paid:
			stats.Paid++
		case res.Status == models.TransactionStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// ListTransactions 支付流水列表（管理端）
func (s *PaymentService) ListTransactions(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.PaymentTransaction, int64, error) {
	txns, total, err := s.paymentRepo.ListTransactions(ctx, offset, limit, filters)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return txns, total, nil
}

func toJSON(v interface{}) models.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out models.JSON
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
