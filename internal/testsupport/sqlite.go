// Package testsupport 服务层与处理器测试共用的数据库和数据构造
package testsupport

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/school-portal-backend/internal/models"
)

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&models.Affiliate{},
		&models.ReferralVisit{},
		&models.SchoolSignup{},
		&models.WithdrawalRequest{},
		&models.PaymentTransaction{},
		&models.PaymentEvidence{},
		&models.PricingPlan{},
		&models.DiscountCode{},
		&models.DiscountCodeUsage{},
		&models.Renewal{},
		&models.ContactMessage{},
		&models.Admin{},
		&models.OperationLog{},
	}
}

// NewSQLiteDB 每个测试独立的内存库，单连接
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(AllModels()...))
	return db
}

// Dec 解析金额字面量
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CreateAffiliate 创建推广员，佣金比例单位为百分比
func CreateAffiliate(t testing.TB, db *gorm.DB, username, status, rate string) *models.Affiliate {
	t.Helper()
	phone := "08031234567"
	a := &models.Affiliate{
		Username:       username,
		Email:          username + "@example.com",
		PasswordHash:   "hash",
		FullName:       strings.ToUpper(username[:1]) + username[1:],
		Phone:          &phone,
		CommissionRate: Dec(rate),
		Status:         status,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

// CreateVisit 创建未转化访问
func CreateVisit(t testing.TB, db *gorm.DB, a *models.Affiliate, ip string, createdAt time.Time) *models.ReferralVisit {
	t.Helper()
	v := &models.ReferralVisit{
		AffiliateID:  a.ID,
		ReferralCode: a.Username,
		VisitorIP:    ip,
		Status:       models.VisitStatusPending,
		CreatedAt:    createdAt,
	}
	require.NoError(t, db.Create(v).Error)
	return v
}

// SignupOption 调整报名数据
type SignupOption func(*models.SchoolSignup)

// WithReferralCode 报名携带推广码
func WithReferralCode(code string) SignupOption {
	return func(s *models.SchoolSignup) { s.ReferralCode = &code }
}

// WithPaymentType 设置支付方式
func WithPaymentType(paymentType string) SignupOption {
	return func(s *models.SchoolSignup) { s.PaymentType = paymentType }
}

// CreateSignup 创建学校报名
func CreateSignup(t testing.TB, db *gorm.DB, total, status string, opts ...SignupOption) *models.SchoolSignup {
	t.Helper()
	s := &models.SchoolSignup{
		SchoolName:    "Greenfield Academy",
		SchoolEmail:   "office@greenfield.ng",
		SchoolPhone:   "08031234567",
		AdminName:     "Ada",
		AdminEmail:    "ada@greenfield.ng",
		AdminPhone:    "08031234567",
		PlanCode:      models.PlanCodeStarter,
		StudentCount:  50,
		BaseAmount:    Dec(total),
		TotalAmount:   Dec(total),
		PaymentType:   models.PaymentTypeOnline,
		PaymentStatus: status,
	}
	for _, opt := range opts {
		opt(s)
	}
	if status == models.PaymentStatusPaid {
		now := time.Now()
		s.PaidAt = &now
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

// SeedPlans 写入默认套餐
func SeedPlans(t testing.TB, db *gorm.DB) {
	t.Helper()
	plans := []*models.PricingPlan{
		{Code: models.PlanCodeStarter, Name: "Starter", PricePerStudent: Dec("1000"), IsActive: true, SortOrder: 1},
		{Code: models.PlanCodeStandard, Name: "Standard", PricePerStudent: Dec("2000"), IsActive: true, SortOrder: 2},
	}
	require.NoError(t, db.Create(&plans).Error)
}

// ReloadAffiliate 重新读取推广员
func ReloadAffiliate(t testing.TB, db *gorm.DB, id int64) *models.Affiliate {
	t.Helper()
	var a models.Affiliate
	require.NoError(t, db.First(&a, id).Error)
	return &a
}
