package repository

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

// setupTestDB 每个测试独立的内存库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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

	require.NoError(t, db.AutoMigrate(
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
	))
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createAffiliate(t *testing.T, db *gorm.DB, username, status string) *models.Affiliate {
	t.Helper()
	a := &models.Affiliate{
		Username:       username,
		Email:          username + "@example.com",
		PasswordHash:   "hash",
		FullName:       strings.ToUpper(username[:1]) + username[1:],
		CommissionRate: decimal.NewFromInt(10),
		Status:         status,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func createVisit(t *testing.T, db *gorm.DB, a *models.Affiliate, ip string, createdAt time.Time) *models.ReferralVisit {
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

func createSignup(t *testing.T, db *gorm.DB, total string, status string) *models.SchoolSignup {
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
		BaseAmount:    dec(total),
		TotalAmount:   dec(total),
		PaymentType:   models.PaymentTypeOnline,
		PaymentStatus: status,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}
