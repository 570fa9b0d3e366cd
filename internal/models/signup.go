package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/validate"
)

// SchoolSignup 学校报名
type SchoolSignup struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SchoolName           string          `gorm:"type:varchar(200);not null" json:"school_name" validate:"required,max=200"`
	SchoolEmail          string          `gorm:"type:varchar(100);not null;index" json:"school_email" validate:"required,email,max=100"`
	SchoolPhone          string          `gorm:"type:varchar(20);not null" json:"school_phone" validate:"required,max=20"`
	AdminName            string          `gorm:"type:varchar(100);not null" json:"admin_name" validate:"required,max=100"`
	AdminEmail           string          `gorm:"type:varchar(100);not null" json:"admin_email" validate:"required,email,max=100"`
	AdminPhone           string          `gorm:"type:varchar(20);not null" json:"admin_phone" validate:"required,max=20"`
	Address              *string         `gorm:"type:varchar(255)" json:"address,omitempty" validate:"omitempty,max=255"`
	State                *string         `gorm:"type:varchar(50)" json:"state,omitempty" validate:"omitempty,max=50"`
	City                 *string         `gorm:"type:varchar(50)" json:"city,omitempty" validate:"omitempty,max=50"`
	PlanCode             string          `gorm:"type:varchar(20);not null" json:"plan_code" validate:"required"`
	StudentCount         int             `gorm:"not null" json:"student_count" validate:"gt=0"`
	BaseAmount           decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"base_amount" validate:"gte=0"`
	DiscountAmount       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"discount_amount" validate:"gte=0"`
	TotalAmount          decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_amount" validate:"gte=0"`
	DiscountCodeID       *int64          `json:"discount_code_id,omitempty"`
	PaymentType          string          `gorm:"type:varchar(20);not null" json:"payment_type" validate:"oneof=online offline"`
	PaymentStatus        string          `gorm:"type:varchar(20);not null;default:pending;index" json:"payment_status" validate:"oneof=pending paid"`
	PaymentReference     *string         `gorm:"type:varchar(100);index" json:"payment_reference,omitempty"`
	ReferralCode         *string         `gorm:"type:varchar(30)" json:"referral_code,omitempty" validate:"omitempty,max=30"`
	AttributionCheckedAt *time.Time      `json:"attribution_checked_at,omitempty"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (SchoolSignup) TableName() string {
	return "school_signups"
}

// BeforeCreate 创建前校验
func (s *SchoolSignup) BeforeCreate(tx *gorm.DB) error {
	return validate.Struct(s)
}

// IsPaid 是否已付款
func (s *SchoolSignup) IsPaid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// 付款方式
const (
	PaymentTypeOnline  = "online"  // Paystack 在线支付
	PaymentTypeOffline = "offline" // 线下转账 + 凭证
)

// 报名/续费付款状态
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// Renewal 订阅续费
type Renewal struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SchoolName       string          `gorm:"type:varchar(200);not null" json:"school_name" validate:"required,max=200"`
	Email            string          `gorm:"type:varchar(100);not null;index" json:"email" validate:"required,email,max=100"`
	Phone            string          `gorm:"type:varchar(20);not null" json:"phone" validate:"required,max=20"`
	PlanCode         string          `gorm:"type:varchar(20);not null" json:"plan_code" validate:"required"`
	StudentCount     int             `gorm:"not null" json:"student_count" validate:"gt=0"`
	BaseAmount       decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"base_amount"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"discount_amount"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_amount" validate:"gte=0"`
	DiscountCodeID   *int64          `json:"discount_code_id,omitempty"`
	PaymentType      string          `gorm:"type:varchar(20);not null" json:"payment_type" validate:"oneof=online offline"`
	PaymentStatus    string          `gorm:"type:varchar(20);not null;default:pending;index" json:"payment_status" validate:"oneof=pending paid"`
	PaymentReference *string         `gorm:"type:varchar(100);index" json:"payment_reference,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Renewal) TableName() string {
	return "renewals"
}

// BeforeCreate 创建前校验
func (r *Renewal) BeforeCreate(tx *gorm.DB) error {
	return validate.Struct(r)
}

// PricingPlan 定价套餐
type PricingPlan struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code            string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"code" validate:"required"`
	Name            string          `gorm:"type:varchar(50);not null" json:"name" validate:"required"`
	Description     *string         `gorm:"type:varchar(255)" json:"description,omitempty"`
	PricePerStudent decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price_per_student" validate:"gt=0"`
	Features        StringList      `gorm:"type:jsonb" json:"features"`
	IsActive        bool            `gorm:"not null;default:true" json:"is_active"`
	SortOrder       int             `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (PricingPlan) TableName() string {
	return "pricing_plans"
}

// 套餐编码
const (
	PlanCodeStarter  = "starter"
	PlanCodeStandard = "standard"
)

// DiscountCode 优惠码
type DiscountCode struct {
	ID            int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string           `gorm:"type:varchar(50);uniqueIndex;not null" json:"code" validate:"required,max=50"`
	Title         string           `gorm:"type:varchar(100);not null" json:"title" validate:"required"`
	CodeType      string           `gorm:"type:varchar(20);not null" json:"code_type" validate:"oneof=percentage flat"`
	Percentage    *decimal.Decimal `gorm:"type:decimal(5,2)" json:"percentage,omitempty"`
	FlatAmount    *decimal.Decimal `gorm:"type:decimal(12,2)" json:"flat_amount,omitempty"`
	ExpiresOn     time.Time        `gorm:"not null" json:"expires_on"`
	IsActive      bool             `gorm:"not null;default:true" json:"is_active"`
	UsagePerEmail int              `gorm:"not null;default:1" json:"usage_per_email" validate:"gte=1"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (DiscountCode) TableName() string {
	return "discount_codes"
}

// BeforeCreate 创建前校验
func (d *DiscountCode) BeforeCreate(tx *gorm.DB) error {
	return d.Validate()
}

// ErrDiscountValue 优惠码面值与类型不匹配
var ErrDiscountValue = errors.New("discount code value does not match its type")

// Validate 校验字段及面值
// 百分比类型需 0 < percentage <= 100，固定金额类型需 flat_amount > 0
func (d *DiscountCode) Validate() error {
	if err := validate.Struct(d); err != nil {
		return err
	}
	switch d.CodeType {
	case DiscountTypePercentage:
		if d.Percentage == nil || !d.Percentage.IsPositive() || d.Percentage.GreaterThan(decimal.NewFromInt(100)) {
			return ErrDiscountValue
		}
	case DiscountTypeFlat:
		if d.FlatAmount == nil || !d.FlatAmount.IsPositive() {
			return ErrDiscountValue
		}
	}
	return nil
}

// 优惠码类型
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFlat       = "flat"
)

// DiscountCodeUsage 优惠码使用记录
type DiscountCodeUsage struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DiscountCodeID int64     `gorm:"not null;index:idx_discount_usage,priority:1" json:"discount_code_id"`
	Email          string    `gorm:"type:varchar(100);not null;index:idx_discount_usage,priority:2" json:"email"`
	RenewalID      *int64    `json:"renewal_id,omitempty"`
	SignupID       *int64    `json:"signup_id,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (DiscountCodeUsage) TableName() string {
	return "discount_code_usages"
}

// ContactMessage 联系留言
type ContactMessage struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	FullName    string     `gorm:"type:varchar(100);not null" json:"full_name" validate:"required,max=100"`
	Phone       string     `gorm:"type:varchar(20);not null" json:"phone" validate:"required"`
	SchoolName  *string    `gorm:"type:varchar(200)" json:"school_name,omitempty"`
	SupportType string     `gorm:"type:varchar(50);not null" json:"support_type" validate:"required"`
	Message     string     `gorm:"type:text;not null" json:"message" validate:"required,max=5000"`
	Status      string     `gorm:"type:varchar(20);not null;default:new;index" json:"status" validate:"oneof=new handled"`
	HandledBy   *int64     `json:"handled_by,omitempty"`
	HandledAt   *time.Time `json:"handled_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (ContactMessage) TableName() string {
	return "contact_messages"
}

// BeforeCreate 创建前校验
func (m *ContactMessage) BeforeCreate(tx *gorm.DB) error {
	return validate.Struct(m)
}

// 留言状态
const (
	ContactStatusNew     = "new"
	ContactStatusHandled = "handled"
)
