package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/validate"
)

// PaymentTransaction 在线支付流水，每次网关初始化一条
type PaymentTransaction struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Reference        string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"reference" validate:"required"`
	Purpose          string          `gorm:"type:varchar(20);not null;index:idx_payment_target,priority:1" json:"purpose" validate:"oneof=signup renewal"`
	TargetID         int64           `gorm:"not null;index:idx_payment_target,priority:2" json:"target_id" validate:"required"`
	Email            string          `gorm:"type:varchar(100);not null" json:"email"`
	Amount           decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount" validate:"gt=0"`
	Currency         string          `gorm:"type:varchar(10);not null;default:NGN" json:"currency"`
	Status           string          `gorm:"type:varchar(20);not null;default:initialized;index" json:"status" validate:"oneof=initialized success failed"`
	AuthorizationURL *string         `gorm:"type:varchar(255)" json:"authorization_url,omitempty"`
	GatewayResponse  *string         `gorm:"type:varchar(255)" json:"gateway_response,omitempty"`
	RawPayload       JSON            `gorm:"type:jsonb" json:"-"`
	VerifiedAt       *time.Time      `json:"verified_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// BeforeCreate 创建前校验
func (p *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	return validate.Struct(p)
}

// 支付用途
const (
	PaymentPurposeSignup  = "signup"
	PaymentPurposeRenewal = "renewal"
)

// 支付流水状态
const (
	TransactionStatusInitialized = "initialized"
	TransactionStatusSuccess     = "success"
	TransactionStatusFailed      = "failed"
)

// PaymentEvidence 线下付款凭证
type PaymentEvidence struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SignupID        *int64          `gorm:"index" json:"signup_id,omitempty"`
	RenewalID       *int64          `gorm:"index" json:"renewal_id,omitempty"`
	SchoolName      string          `gorm:"type:varchar(200);not null" json:"school_name" validate:"required"`
	SchoolPhone     string          `gorm:"type:varchar(20);not null" json:"school_phone" validate:"required"`
	Email           string          `gorm:"type:varchar(100);not null" json:"email" validate:"required,email"`
	AmountPaid      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount_paid" validate:"gt=0"`
	PaymentRef      string          `gorm:"type:varchar(100);not null" json:"payment_ref" validate:"required"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date"`
	EvidenceFileURL *string         `gorm:"type:varchar(500)" json:"evidence_file_url,omitempty"`
	Status          string          `gorm:"type:varchar(20);not null;default:submitted;index" json:"status" validate:"oneof=submitted confirmed rejected"`
	ReviewNotes     *string         `gorm:"type:varchar(255)" json:"review_notes,omitempty"`
	ReviewedBy      *int64          `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (PaymentEvidence) TableName() string {
	return "payment_evidences"
}

// BeforeCreate 创建前校验
func (e *PaymentEvidence) BeforeCreate(tx *gorm.DB) error {
	return validate.Struct(e)
}

// 凭证审核状态
const (
	EvidenceStatusSubmitted = "submitted"
	EvidenceStatusConfirmed = "confirmed"
	EvidenceStatusRejected  = "rejected"
)
