package admin

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/crypto"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/jwt"
	"github.com/dumeirei/school-portal-backend/internal/common/validate"
	"github.com/dumeirei/school-portal-backend/internal/middleware"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	adminService "github.com/dumeirei/school-portal-backend/internal/service/admin"
	affiliateService "github.com/dumeirei/school-portal-backend/internal/service/affiliate"
	contactService "github.com/dumeirei/school-portal-backend/internal/service/contact"
	paymentService "github.com/dumeirei/school-portal-backend/internal/service/payment"
	pricingService "github.com/dumeirei/school-portal-backend/internal/service/pricing"
	referralService "github.com/dumeirei/school-portal-backend/internal/service/referral"
	signupService "github.com/dumeirei/school-portal-backend/internal/service/signup"
	"github.com/dumeirei/school-portal-backend/internal/testsupport"
)

type fixture struct {
	router *gin.Engine
	db     *gorm.DB
	auth   *adminService.AdminAuthService
}

func setup(t *testing.T) *fixture {
	validate.SetupGin()
	db := testsupport.NewSQLiteDB(t)
	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:            "admin-handler-secret",
		AccessExpireTime:  time.Hour,
		RefreshExpireTime: 24 * time.Hour,
		Issuer:            "school-portal",
	})
	aes, err := crypto.NewAES("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	adminRepo := repository.NewAdminRepository(db)
	affiliateRepo := repository.NewAffiliateRepository(db)
	visitRepo := repository.NewReferralVisitRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	signupRepo := repository.NewSchoolSignupRepository(db)
	renewalRepo := repository.NewRenewalRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	contactRepo := repository.NewContactRepository(db)

	authSvc := adminService.NewAdminAuthService(adminRepo, jwtManager)
	affiliateAdminSvc := adminService.NewAffiliateAdminService(affiliateRepo, visitRepo, aes)
	pricingSvc := pricingService.NewPricingService(repository.NewPricingRepository(db), nil, pricingService.DefaultConfig())
	require.NoError(t, pricingSvc.EnsureDefaultPlans(context.Background()))
	attributionSvc := referralService.NewAttributionService(db, signupRepo, visitRepo, affiliateRepo, nil, nil, nil, referralService.DefaultConfig())
	paymentSvc := paymentService.NewPaymentService(db, paymentRepo, signupRepo, renewalRepo, nil, attributionSvc, nil, nil, nil, nil)
	withdrawSvc := affiliateService.NewWithdrawService(db, affiliateRepo, withdrawalRepo, nil, nil)

	r := testsupport.NewEngine()
	api := r.Group("/api/v1/admin")
	protected := api.Group("")
	protected.Use(middleware.AdminAuth(jwtManager))
	NewAuthHandler(authSvc).Register(api, protected)
	NewDashboardHandler(adminService.NewDashboardService(signupRepo, affiliateRepo, visitRepo, withdrawalRepo, paymentRepo, contactRepo)).RegisterRoutes(protected)
	NewSignupHandler(signupService.NewSignupService(db, signupRepo, pricingSvc, nil), paymentSvc, attributionSvc).RegisterRoutes(protected)
	NewRenewalHandler(signupService.NewRenewalService(db, renewalRepo, pricingSvc)).RegisterRoutes(protected)
	NewAffiliateHandler(affiliateAdminSvc).RegisterRoutes(protected)
	NewWithdrawalHandler(withdrawSvc).RegisterRoutes(protected)
	NewPaymentHandler(paymentSvc).RegisterRoutes(protected)
	NewPricingHandler(pricingSvc).RegisterRoutes(protected)
	NewContactHandler(contactService.NewContactService(contactRepo, nil)).RegisterRoutes(protected)
	NewSystemHandler(affiliateAdminSvc, adminService.NewOperationLogService(repository.NewOperationLogRepository(db))).RegisterRoutes(protected)

	return &fixture{router: r, db: db, auth: authSvc}
}

// login 创建指定角色的管理员并返回访问令牌
func (f *fixture) login(t *testing.T, username, role string) string {
	_, err := f.auth.CreateAdmin(context.Background(), &adminService.CreateAdminRequest{
		Username: username, Password: "admin-pass-1", Name: username, Role: role,
	})
	require.NoError(t, err)

	_, env := f.do(t, http.MethodPost, "/api/v1/admin/auth/login", "", map[string]string{"username": username, "password": "admin-pass-1"})
	require.Equal(t, 0, env.Code, env.Message)
	var res adminService.LoginResponse
	env.Decode(t, &res)
	assert.Equal(t, role, res.Admin.Role)
	return res.TokenPair.AccessToken
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (int, *testsupport.Envelope) {
	w, env := testsupport.Do(t, f.router, testsupport.Request{Method: method, Path: path, Token: token, Body: body})
	return w.Code, env
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestAuthHandler(t *testing.T) {
	f := setup(t)
	token := f.login(t, "root", models.RoleSuperAdmin)

	t.Run("密码错误", func(t *testing.T) {
		_, env := f.do(t, http.MethodPost, "/api/v1/admin/auth/login", "", map[string]string{"username": "root", "password": "wrong-pass"})
		assert.Equal(t, errors.ErrPasswordError.Code, env.Code)
	})

	t.Run("当前管理员", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/admin/auth/me", token, nil)
		require.Equal(t, 0, env.Code)
		var info adminService.AdminInfo
		env.Decode(t, &info)
		assert.Equal(t, "root", info.Username)
	})

	t.Run("修改密码", func(t *testing.T) {
		_, env := f.do(t, http.MethodPut, "/api/v1/admin/auth/password", token, map[string]string{"old_password": "admin-pass-1", "new_password": "admin-pass-2"})
		require.Equal(t, 0, env.Code, env.Message)
		_, env = f.do(t, http.MethodPost, "/api/v1/admin/auth/login", "", map[string]string{"username": "root", "password": "admin-pass-2"})
		assert.Equal(t, 0, env.Code)
	})

	t.Run("未登录", func(t *testing.T) {
		status, _ := f.do(t, http.MethodGet, "/api/v1/admin/dashboard", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("刷新令牌", func(t *testing.T) {
		_, env := f.do(t, http.MethodPost, "/api/v1/admin/auth/login", "", map[string]string{"username": "root", "password": "admin-pass-2"})
		require.Equal(t, 0, env.Code)
		var res adminService.LoginResponse
		env.Decode(t, &res)

		_, env = f.do(t, http.MethodPost, "/api/v1/admin/auth/refresh", "", map[string]string{"refresh_token": res.TokenPair.RefreshToken})
		require.Equal(t, 0, env.Code, env.Message)

		status, _ := f.do(t, http.MethodPost, "/api/v1/admin/auth/refresh", "", map[string]string{"refresh_token": res.TokenPair.AccessToken})
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestWithdrawalHandler_RoleGateAndLedger(t *testing.T) {
	f := setup(t)
	support := f.login(t, "helpdesk", models.RoleSupport)
	finance := f.login(t, "finance", models.RoleFinanceAdmin)

	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return repository.NewAffiliateRepository(f.db).CreditCommission(tx, jane.ID, testsupport.Dec("20000"))
	}))
	w := &models.WithdrawalRequest{AffiliateID: jane.ID, Amount: testsupport.Dec("8000"), Status: models.WithdrawalStatusPending, RequestedAt: time.Now()}
	require.NoError(t, f.db.Create(w).Error)

	t.Run("客服可以查看列表", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/admin/withdrawals?status=pending", support, nil)
		require.Equal(t, 0, env.Code)
		var page struct {
			List  []models.WithdrawalRequest `json:"list"`
			Total int64                      `json:"total"`
		}
		env.Decode(t, &page)
		assert.Equal(t, int64(1), page.Total)
		require.NotNil(t, page.List[0].Affiliate)
		assert.Equal(t, "jane99", page.List[0].Affiliate.Username)
	})

	t.Run("客服不能审核", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/api/v1/admin/withdrawals/"+id(w.ID)+"/review", support, map[string]string{"decision": "approve"})
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("未批准不能打款", func(t *testing.T) {
		_, env := f.do(t, http.MethodPost, "/api/v1/admin/withdrawals/"+id(w.ID)+"/pay", finance, nil)
		assert.Equal(t, errors.ErrInvalidTransition.Code, env.Code)
	})

	_, env := f.do(t, http.MethodPost, "/api/v1/admin/withdrawals/"+id(w.ID)+"/review", finance, map[string]string{"decision": "approve", "notes": "ok"})
	require.Equal(t, 0, env.Code, env.Message)

	_, env = f.do(t, http.MethodPost, "/api/v1/admin/withdrawals/"+id(w.ID)+"/pay", finance, map[string]string{"notes": "sent"})
	require.Equal(t, 0, env.Code, env.Message)
	var paid models.WithdrawalRequest
	env.Decode(t, &paid)
	assert.Equal(t, models.WithdrawalStatusPaid, paid.Status)

	reloaded := testsupport.ReloadAffiliate(t, f.db, jane.ID)
	assert.True(t, reloaded.PaidEarnings.Equal(testsupport.Dec("8000")))
	assert.True(t, reloaded.PendingEarnings.Equal(testsupport.Dec("12000")))

	t.Run("无效的审核结论", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/api/v1/admin/withdrawals/"+id(w.ID)+"/review", finance, map[string]string{"decision": "maybe"})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestSignupHandler_ConfirmAndAttribute(t *testing.T) {
	f := setup(t)
	token := f.login(t, "root", models.RoleSuperAdmin)

	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", time.Now().Add(-time.Hour))
	signup := testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPending,
		testsupport.WithReferralCode("jane99"), testsupport.WithPaymentType(models.PaymentTypeOffline))

	t.Run("客服不能确认收款和归因", func(t *testing.T) {
		support := f.login(t, "helpdesk", models.RoleSupport)
		status, _ := f.do(t, http.MethodPost, "/api/v1/admin/signups/"+id(signup.ID)+"/confirm-payment", support, map[string]string{"reference": "TRF-778"})
		assert.Equal(t, http.StatusForbidden, status)
		status, _ = f.do(t, http.MethodPost, "/api/v1/admin/signups/"+id(signup.ID)+"/attribute", support, nil)
		assert.Equal(t, http.StatusForbidden, status)

		_, env := f.do(t, http.MethodGet, "/api/v1/admin/signups/"+id(signup.ID), support, nil)
		require.Equal(t, 0, env.Code)
		var got models.SchoolSignup
		env.Decode(t, &got)
		assert.Equal(t, models.PaymentStatusPending, got.PaymentStatus)
		assert.True(t, testsupport.ReloadAffiliate(t, f.db, jane.ID).PendingEarnings.IsZero())
	})

	_, env := f.do(t, http.MethodPost, "/api/v1/admin/signups/"+id(signup.ID)+"/confirm-payment", token, map[string]string{"reference": "TRF-778"})
	require.Equal(t, 0, env.Code, env.Message)
	var res paymentService.VerifyResult
	env.Decode(t, &res)
	assert.True(t, res.Paid)
	require.NotNil(t, res.Attribution)
	assert.Equal(t, referralService.OutcomeCommitted, res.Attribution.Outcome)

	t.Run("手动归因返回首次结果", func(t *testing.T) {
		_, env := f.do(t, http.MethodPost, "/api/v1/admin/signups/"+id(signup.ID)+"/attribute", token, nil)
		require.Equal(t, 0, env.Code, env.Message)
		var attr referralService.AttributionResult
		env.Decode(t, &attr)
		assert.True(t, attr.AlreadyAttributed)
		assert.True(t, attr.Amount.Equal(testsupport.Dec("5000")))

		reloaded := testsupport.ReloadAffiliate(t, f.db, jane.ID)
		assert.True(t, reloaded.TotalEarnings.Equal(testsupport.Dec("5000")))
	})

	t.Run("账本一致", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/admin/ledger/check", token, nil)
		require.Equal(t, 0, env.Code)
		var report adminService.LedgerReport
		env.Decode(t, &report)
		assert.True(t, report.Consistent)
	})

	t.Run("报名列表按推广码筛选", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/admin/signups?referral_code=jane99&payment_status=paid", token, nil)
		require.Equal(t, 0, env.Code)
		var page struct {
			Total int64 `json:"total"`
		}
		env.Decode(t, &page)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("日期格式错误", func(t *testing.T) {
		status, _ := f.do(t, http.MethodGet, "/api/v1/admin/signups?start_date=2026/01/01", token, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestRenewalHandler_List(t *testing.T) {
	f := setup(t)
	support := f.login(t, "helpdesk", models.RoleSupport)

	paid := &models.Renewal{
		SchoolName: "Greenfield Academy", Email: "office@greenfield.ng", Phone: "08031234567",
		PlanCode: "standard", StudentCount: 80, BaseAmount: testsupport.Dec("160000"), TotalAmount: testsupport.Dec("160000"),
		PaymentType: models.PaymentTypeOnline, PaymentStatus: models.PaymentStatusPaid,
	}
	pending := &models.Renewal{
		SchoolName: "Hilltop College", Email: "admin@hilltop.ng", Phone: "08039876543",
		PlanCode: "starter", StudentCount: 40, BaseAmount: testsupport.Dec("40000"), TotalAmount: testsupport.Dec("40000"),
		PaymentType: models.PaymentTypeOffline, PaymentStatus: models.PaymentStatusPending,
	}
	require.NoError(t, f.db.Create(paid).Error)
	require.NoError(t, f.db.Create(pending).Error)

	type page struct {
		List  []models.Renewal `json:"list"`
		Total int64            `json:"total"`
	}

	t.Run("全部续费", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/admin/renewals", support, nil)
		require.Equal(t, 0, env.Code, env.Message)
		var p page
		env.Decode(t, &p)
		assert.Equal(t, int64(2), p.Total)
		assert.Equal(t, pending.ID, p.List[0].ID)
	})

	t.Run("按状态和邮箱筛选", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/admin/renewals?payment_status=paid&email=Office@Greenfield.ng", support, nil)
		require.Equal(t, 0, env.Code)
		var p page
		env.Decode(t, &p)
		require.Equal(t, int64(1), p.Total)
		assert.Equal(t, paid.ID, p.List[0].ID)
	})

	t.Run("关键字筛选", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/admin/renewals?keyword=Hilltop", support, nil)
		var p page
		env.Decode(t, &p)
		assert.Equal(t, int64(1), p.Total)
	})

	t.Run("续费详情", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/admin/renewals/"+id(paid.ID), support, nil)
		require.Equal(t, 0, env.Code)
		_, env = f.do(t, http.MethodGet, "/api/v1/admin/renewals/9999", support, nil)
		assert.Equal(t, errors.ErrRenewalNotFound.Code, env.Code)
	})

	t.Run("需要登录", func(t *testing.T) {
		status, _ := f.do(t, http.MethodGet, "/api/v1/admin/renewals", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestAffiliateHandler_StatusAndRate(t *testing.T) {
	f := setup(t)
	token := f.login(t, "root", models.RoleSuperAdmin)
	pat := testsupport.CreateAffiliate(t, f.db, "pat", models.AffiliateStatusPending, "10")

	t.Run("客服不能审核或调整比例", func(t *testing.T) {
		support := f.login(t, "helpdesk", models.RoleSupport)
		status, _ := f.do(t, http.MethodPut, "/api/v1/admin/affiliates/"+id(pat.ID)+"/status", support, map[string]string{"status": "approved"})
		assert.Equal(t, http.StatusForbidden, status)
		status, _ = f.do(t, http.MethodPut, "/api/v1/admin/affiliates/"+id(pat.ID)+"/commission-rate", support, map[string]interface{}{"commission_rate": 50})
		assert.Equal(t, http.StatusForbidden, status)

		reloaded := testsupport.ReloadAffiliate(t, f.db, pat.ID)
		assert.Equal(t, models.AffiliateStatusPending, reloaded.Status)
		assert.True(t, reloaded.CommissionRate.Equal(testsupport.Dec("10")))

		status, env := f.do(t, http.MethodGet, "/api/v1/admin/affiliates/"+id(pat.ID), support, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 0, env.Code)
	})

	_, env := f.do(t, http.MethodPut, "/api/v1/admin/affiliates/"+id(pat.ID)+"/status", token, map[string]string{"status": "approved"})
	require.Equal(t, 0, env.Code, env.Message)
	var a models.Affiliate
	env.Decode(t, &a)
	assert.Equal(t, models.AffiliateStatusApproved, a.Status)

	_, env = f.do(t, http.MethodPut, "/api/v1/admin/affiliates/"+id(pat.ID)+"/commission-rate", token, map[string]interface{}{"commission_rate": 12.5})
	require.Equal(t, 0, env.Code, env.Message)
	env.Decode(t, &a)
	assert.True(t, a.CommissionRate.Equal(testsupport.Dec("12.5")))

	_, env = f.do(t, http.MethodPut, "/api/v1/admin/affiliates/"+id(pat.ID)+"/commission-rate", token, map[string]interface{}{"commission_rate": 150})
	assert.Equal(t, errors.ErrInvalidCommissionRate.Code, env.Code)

	_, env = f.do(t, http.MethodGet, "/api/v1/admin/affiliates?status=approved", token, nil)
	require.Equal(t, 0, env.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	env.Decode(t, &page)
	assert.Equal(t, int64(1), page.Total)
}

func TestPricingHandler_DiscountCodes(t *testing.T) {
	f := setup(t)
	token := f.login(t, "root", models.RoleSuperAdmin)

	_, env := f.do(t, http.MethodPost, "/api/v1/admin/discount-codes", token, map[string]interface{}{
		"code": "WELCOME", "title": "Welcome", "code_type": "percentage", "percentage": 10,
		"expires_on": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, 0, env.Code, env.Message)
	var dc models.DiscountCode
	env.Decode(t, &dc)

	_, env = f.do(t, http.MethodGet, "/api/v1/admin/discount-codes?is_active=true", token, nil)
	require.Equal(t, 0, env.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	env.Decode(t, &page)
	assert.Equal(t, int64(1), page.Total)

	status, _ := f.do(t, http.MethodGet, "/api/v1/admin/discount-codes?is_active=maybe", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	_, env = f.do(t, http.MethodPut, "/api/v1/admin/pricing/plans/starter", token, map[string]interface{}{"price_per_student": 1200})
	require.Equal(t, 0, env.Code, env.Message)
	var plan models.PricingPlan
	env.Decode(t, &plan)
	assert.True(t, plan.PricePerStudent.Equal(testsupport.Dec("1200")))

	_, env = f.do(t, http.MethodPut, "/api/v1/admin/pricing/plans/platinum", token, map[string]interface{}{"price_per_student": 1200})
	assert.Equal(t, errors.ErrPlanNotFound.Code, env.Code)
}
