package payment

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/service/notify"
	"github.com/dumeirei/school-portal-backend/internal/service/referral"
	"github.com/dumeirei/school-portal-backend/pkg/oss"
)

// EvidenceRequest 线下付款凭证
type EvidenceRequest struct {
	SignupID    *int64          `form:"signup_id" json:"signup_id"`
	RenewalID   *int64          `form:"renewal_id" json:"renewal_id"`
	SchoolName  string          `form:"school_name" json:"school_name" binding:"required"`
	SchoolPhone string          `form:"school_phone" json:"school_phone" binding:"required"`
	Email       string          `form:"email" json:"email" binding:"required,email"`
	AmountPaid  decimal.Decimal `form:"amount_paid" json:"amount_paid" binding:"required"`
	PaymentRef  string          `form:"payment_ref" json:"payment_ref" binding:"required"`
	PaymentDate time.Time       `form:"payment_date" json:"payment_date" time_format:"2006-01-02" binding:"required"`
}

// EvidenceFile 上传的凭证文件
type EvidenceFile struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// SubmitEvidence 提交线下付款凭证，文件上传到对象存储
func (s *PaymentService) SubmitEvidence(ctx context.Context, req *EvidenceRequest, file *EvidenceFile) (*models.PaymentEvidence, error) {
	if (req.SignupID == nil) == (req.RenewalID == nil) {
		return nil, errors.ErrInvalidParams.WithMessage("Exactly one of signup or renewal is required")
	}
	if !req.AmountPaid.IsPositive() {
		return nil, errors.ErrInvalidParams.WithMessage("Amount must be greater than 0")
	}
	if req.SignupID != nil {
		if _, err := s.signupRepo.GetByID(ctx, *req.SignupID); err != nil {
			if database.IsNotFound(err) {
				return nil, errors.ErrSignupNotFound
			}
			return nil, errors.ErrStoreFailure.WithError(err)
		}
	} else {
		if _, err := s.renewalRepo.GetByID(ctx, *req.RenewalID); err != nil {
			if database.IsNotFound(err) {
				return nil, errors.ErrRenewalNotFound
			}
			return nil, errors.ErrStoreFailure.WithError(err)
		}
	}

	evidence := &models.PaymentEvidence{
		SignupID:    req.SignupID,
		RenewalID:   req.RenewalID,
		SchoolName:  strings.TrimSpace(req.SchoolName),
		SchoolPhone: strings.TrimSpace(req.SchoolPhone),
		Email:       utils.NormalizeEmail(req.Email),
		AmountPaid:  utils.RoundMoney(req.AmountPaid),
		PaymentRef:  strings.TrimSpace(req.PaymentRef),
		PaymentDate: req.PaymentDate,
		Status:      models.EvidenceStatusSubmitted,
	}

	var uploadedKey string
	if file != nil && s.uploader != nil {
		reader, err := oss.ValidateEvidenceFile(file.Filename, file.Size, s.maxFileSize, file.Reader)
		if err != nil {
			return nil, errors.ErrInvalidParams.WithMessage(evidenceFileMessage(err))
		}
		key := oss.EvidenceObjectKey(file.Filename, s.now())
		url, err := s.uploader.Upload(ctx, key, reader, oss.ContentTypeFor(file.Filename))
		if err != nil {
			return nil, errors.ErrExternalService.WithError(err)
		}
		evidence.EvidenceFileURL = &url
		uploadedKey = key
	}

	if err := s.paymentRepo.CreateEvidence(ctx, evidence); err != nil {
		if uploadedKey != "" {
			if derr := s.uploader.Delete(context.WithoutCancel(ctx), uploadedKey); derr != nil {
				logger.Warn("delete orphaned evidence file failed", zap.String("key", uploadedKey), zap.Error(derr))
			}
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	logger.Info("payment evidence submitted", zap.Int64("evidence_id", evidence.ID), zap.String("payment_ref", evidence.PaymentRef))
	return evidence, nil
}

func evidenceFileMessage(err error) string {
	switch {
	case stderrors.Is(err, oss.ErrUnsupportedFileType):
		return "Only jpg, png or pdf evidence files are accepted"
	case stderrors.Is(err, oss.ErrFileTooLarge):
		return "Evidence file is too large"
	case stderrors.Is(err, oss.ErrContentMismatch):
		return "Evidence file content does not match its extension"
	default:
		return "Invalid evidence file"
	}
}

// 凭证审核结论
const (
	DecisionConfirm = "confirm"
	DecisionReject  = "reject"
)

// ReviewEvidenceRequest 凭证审核请求
type ReviewEvidenceRequest struct {
	Decision string `json:"decision" binding:"required,oneof=confirm reject"`
	Notes    string `json:"notes" binding:"max=255"`
}

// ReviewEvidenceResult 凭证审核结果
type ReviewEvidenceResult struct {
	Evidence    *models.PaymentEvidence     `json:"evidence"`
	Attribution *referral.AttributionResult `json:"attribution,omitempty"`
}

// ReviewEvidence 审核线下付款凭证；确认时同一事务内标记订单已付款
func (s *PaymentService) ReviewEvidence(ctx context.Context, evidenceID, adminID int64, req *ReviewEvidenceRequest) (*ReviewEvidenceResult, error) {
	evidence, err := s.paymentRepo.GetEvidenceByID(ctx, evidenceID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrEvidenceNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	status := models.EvidenceStatusRejected
	if req.Decision == DecisionConfirm {
		status = models.EvidenceStatusConfirmed
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.ReviewEvidence(tx, evidence.ID, status, adminID, req.Notes, now); err != nil {
			return err
		}
		if status != models.EvidenceStatusConfirmed {
			return nil
		}
		if evidence.SignupID != nil {
			return s.markTargetPaid(tx, models.PaymentPurposeSignup, *evidence.SignupID, evidence.PaymentRef, now)
		}
		if evidence.RenewalID != nil {
			return s.markTargetPaid(tx, models.PaymentPurposeRenewal, *evidence.RenewalID, evidence.PaymentRef, now)
		}
		return nil
	})
	if err != nil {
		if stderrors.Is(err, repository.ErrEvidenceAlreadyReviewed) {
			return nil, errors.ErrEvidenceReviewed
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	logger.Info("payment evidence reviewed",
		zap.Int64("evidence_id", evidence.ID),
		logger.AdminID(adminID),
		zap.String("status", status),
	)

	evidence.Status = status
	evidence.ReviewedBy = &adminID
	evidence.ReviewedAt = &now
	result := &ReviewEvidenceResult{Evidence: evidence}
	if status == models.EvidenceStatusConfirmed && evidence.SignupID != nil {
		s.metrics.RecordPayment(models.PaymentPurposeSignup, "offline_confirmed")
		result.Attribution = s.attribute(ctx, *evidence.SignupID)
		s.notifier.Notify(ctx, notify.NewEvent(notify.EventSignupPaid, evidence.PaymentRef, map[string]interface{}{
			"reference": evidence.PaymentRef,
			"target_id": *evidence.SignupID,
			"amount":    utils.FormatMoney(evidence.AmountPaid),
			"offline":   true,
		}))
	}
	return result, nil
}

// ConfirmOfflinePayment 管理员直接确认线下付款并触发归因
func (s *PaymentService) ConfirmOfflinePayment(ctx context.Context, signupID, adminID int64, reference string) (*VerifyResult, error) {
	now := s.now()
	reference = strings.TrimSpace(reference)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		signup, err := s.signupRepo.GetForUpdate(tx, signupID)
		if err != nil {
			return err
		}
		if signup.IsPaid() {
			return repository.ErrSignupAlreadyPaid
		}
		return s.signupRepo.MarkPaid(tx, signupID, reference, now)
	})
	if err != nil {
		switch {
		case database.IsNotFound(err):
			return nil, errors.ErrSignupNotFound
		case stderrors.Is(err, repository.ErrSignupAlreadyPaid):
			return nil, errors.ErrAlreadyPaid
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	logger.Info("offline payment confirmed", logger.SignupID(signupID), logger.AdminID(adminID))
	s.metrics.RecordPayment(models.PaymentPurposeSignup, "offline_confirmed")
	s.notifier.Notify(ctx, notify.NewEvent(notify.EventSignupPaid, reference, map[string]interface{}{
		"reference": reference,
		"target_id": signupID,
		"offline":   true,
	}))

	return &VerifyResult{
		Reference:   reference,
		Purpose:     models.PaymentPurposeSignup,
		TargetID:    signupID,
		Status:      models.TransactionStatusSuccess,
		Paid:        true,
		Attribution: s.attribute(ctx, signupID),
	}, nil
}

// ListEvidence 凭证列表（管理端）
func (s *PaymentService) ListEvidence(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.PaymentEvidence, int64, error) {
	list, total, err := s.paymentRepo.ListEvidence(ctx, offset, limit, filters)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return list, total, nil
}
