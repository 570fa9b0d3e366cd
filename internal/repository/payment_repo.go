// Package repository 提供数据访问层
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/models"
)

// ErrTransactionFinalized 支付流水已有最终结果
var ErrTransactionFinalized = errors.New("payment transaction already finalized")

// ErrEvidenceAlreadyReviewed 凭证已审核
var ErrEvidenceAlreadyReviewed = errors.New("payment evidence already reviewed")

// PaymentRepository 支付流水与线下凭证仓储
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓储
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateTransaction 创建支付流水
func (r *PaymentRepository) CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// GetTransactionByReference 根据流水号获取支付流水
func (r *PaymentRepository) GetTransactionByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// SetAuthorizationURL 记录网关返回的支付链接
func (r *PaymentRepository) SetAuthorizationURL(ctx context.Context, id int64, url string) error {
	return r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Update("authorization_url", url).Error
}

// FinalizeTransaction 条件更新 initialized -> success/failed
func (r *PaymentRepository) FinalizeTransaction(tx *gorm.DB, reference, status, gatewayResponse string, payload models.JSON, at time.Time) error {
	fields := map[string]interface{}{
		"status":      status,
		"verified_at": at,
	}
	if gatewayResponse != "" {
		fields["gateway_response"] = gatewayResponse
	}
	if payload != nil {
		fields["raw_payload"] = payload
	}
	result := tx.Model(&models.PaymentTransaction{}).
		Where("reference = ? AND status = ?", reference, models.TransactionStatusInitialized).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionFinalized
	}
	return nil
}

// ListStaleInitialized 创建时间在 [createdAfter, createdBefore) 内仍未确认的流水
func (r *PaymentRepository) ListStaleInitialized(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*models.PaymentTransaction, error) {
	var txns []*models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at >= ? AND created_at < ?",
			models.TransactionStatusInitialized, createdAfter, createdBefore).
		Order("id ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

// ListTransactions 获取支付流水列表
func (r *PaymentRepository) ListTransactions(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.PaymentTransaction, int64, error) {
	var txns []*models.PaymentTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&models.PaymentTransaction{})
	if purpose, ok := filters["purpose"].(string); ok && purpose != "" {
		query = query.Where("purpose = ?", purpose)
	}
	if targetID, ok := filters["target_id"].(int64); ok && targetID > 0 {
		query = query.Where("target_id = ?", targetID)
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// CreateEvidence 创建线下付款凭证
func (r *PaymentRepository) CreateEvidence(ctx context.Context, evidence *models.PaymentEvidence) error {
	return r.db.WithContext(ctx).Create(evidence).Error
}

// GetEvidenceByID 根据 ID 获取凭证
func (r *PaymentRepository) GetEvidenceByID(ctx context.Context, id int64) (*models.PaymentEvidence, error) {
	var evidence models.PaymentEvidence
	err := r.db.WithContext(ctx).First(&evidence, id).Error
	if err != nil {
		return nil, err
	}
	return &evidence, nil
}

// ReviewEvidence 条件更新 submitted -> confirmed/rejected
func (r *PaymentRepository) ReviewEvidence(tx *gorm.DB, id int64, status string, adminID int64, notes string, at time.Time) error {
	fields := map[string]interface{}{
		"status":      status,
		"reviewed_by": adminID,
		"reviewed_at": at,
	}
	if notes != "" {
		fields["review_notes"] = notes
	}
	result := tx.Model(&models.PaymentEvidence{}).
		Where("id = ? AND status = ?", id, models.EvidenceStatusSubmitted).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEvidenceAlreadyReviewed
	}
	return nil
}

// ListEvidence 获取凭证列表
func (r *PaymentRepository) ListEvidence(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.PaymentEvidence, int64, error) {
	var list []*models.PaymentEvidence
	var total int64

	query := r.db.WithContext(ctx).Model(&models.PaymentEvidence{})
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if signupID, ok := filters["signup_id"].(int64); ok && signupID > 0 {
		query = query.Where("signup_id = ?", signupID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
