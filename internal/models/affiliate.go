package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/validate"
)

// Affiliate 推广员
// 用户名即推广码；收益字段只能通过仓储层的入账/结算方法修改
type Affiliate struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Username        string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"username" validate:"required,referral_code"`
	Email           string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"email" validate:"required,email"`
	PasswordHash    string          `gorm:"type:varchar(255);not null" json:"-" validate:"required"`
	FullName        string          `gorm:"type:varchar(100);not null" json:"full_name" validate:"required,max=100"`
	Phone           *string         `gorm:"type:varchar(20)" json:"phone,omitempty"`
	BankName        *string         `gorm:"type:varchar(100)" json:"bank_name,omitempty"`
	AccountName     *string         `gorm:"type:varchar(100)" json:"account_name,omitempty"`
	AccountNumber   *string         `gorm:"type:varchar(255)" json:"-"` // AES-GCM 密文
	CommissionRate  decimal.Decimal `gorm:"type:decimal(5,2);not null;default:10" json:"commission_rate" validate:"gte=0,lte=100"`
	Status          string          `gorm:"type:varchar(20);not null;default:pending;index" json:"status" validate:"oneof=pending approved suspended"`
	TotalEarnings   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_earnings"`
	PendingEarnings decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"pending_earnings"`
	PaidEarnings    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"paid_earnings"`
	TotalReferrals  int             `gorm:"not null;default:0" json:"total_referrals"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	LastLoginAt     *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Affiliate) TableName() string {
	return "affiliates"
}

// BeforeCreate 创建前校验
func (a *Affiliate) BeforeCreate(tx *gorm.DB) error {
	return validate.Struct(a)
}

// AffiliateStatus 推广员状态
const (
	AffiliateStatusPending   = "pending"   // 待审核
	AffiliateStatusApproved  = "approved"  // 已通过
	AffiliateStatusSuspended = "suspended" // 已停用
)

// IsApproved 是否可参与归因和提现
func (a *Affiliate) IsApproved() bool {
	return a.Status == AffiliateStatusApproved
}

// ReferralVisit 推广访问记录
// SchoolSignupID 唯一，保证一次报名最多转化一条访问
type ReferralVisit struct {
	ID               int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID      int64            `gorm:"not null;index:idx_visits_dedup,priority:1" json:"affiliate_id" validate:"required"`
	ReferralCode     string           `gorm:"type:varchar(30);not null;index" json:"referral_code" validate:"required"`
	VisitorIP        string           `gorm:"type:varchar(45);not null;index:idx_visits_dedup,priority:2" json:"visitor_ip"`
	UserAgent        *string          `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
	LandingPath      *string          `gorm:"type:varchar(255)" json:"landing_path,omitempty"`
	Status           string           `gorm:"type:varchar(20);not null;default:pending;index:idx_visits_dedup,priority:3;index:idx_visits_window,priority:1" json:"status" validate:"oneof=pending converted"`
	CommissionAmount *decimal.Decimal `gorm:"type:decimal(14,2)" json:"commission_amount,omitempty"`
	SchoolSignupID   *int64           `gorm:"uniqueIndex" json:"school_signup_id,omitempty"`
	ConvertedAt      *time.Time       `json:"converted_at,omitempty"`
	CreatedAt        time.Time        `gorm:"autoCreateTime;index:idx_visits_window,priority:2" json:"created_at"`

	// 关联
	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
}

// TableName 表名
func (ReferralVisit) TableName() string {
	return "referral_visits"
}

// BeforeCreate 创建前校验
func (v *ReferralVisit) BeforeCreate(tx *gorm.DB) error {
	return validate.Struct(v)
}

// VisitStatus 访问状态
const (
	VisitStatusPending   = "pending"   // 未转化
	VisitStatusConverted = "converted" // 已转化
)

// WithdrawalRequest 提现申请
type WithdrawalRequest struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID int64           `gorm:"not null;index" json:"affiliate_id" validate:"required"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount" validate:"gt=0"`
	Status      string          `gorm:"type:varchar(20);not null;default:pending;index" json:"status" validate:"oneof=pending approved rejected paid"`
	Notes       *string         `gorm:"type:text" json:"notes,omitempty"`
	AdminNotes  *string         `gorm:"type:text" json:"admin_notes,omitempty"`
	RequestedAt time.Time       `gorm:"not null" json:"requested_at"`
	ReviewedAt  *time.Time      `json:"reviewed_at,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	OperatorID  *int64          `json:"operator_id,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
}

// TableName 表名
func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

// BeforeCreate 创建前校验
func (w *WithdrawalRequest) BeforeCreate(tx *gorm.DB) error {
	return validate.Struct(w)
}

// WithdrawalStatus 提现状态
// pending -> approved -> paid，pending -> rejected；rejected 与 paid 为终态
const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusApproved = "approved"
	WithdrawalStatusRejected = "rejected"
	WithdrawalStatusPaid     = "paid"
)
