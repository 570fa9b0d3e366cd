package affiliate

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
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
	affiliateService "github.com/dumeirei/school-portal-backend/internal/service/affiliate"
	"github.com/dumeirei/school-portal-backend/internal/testsupport"
)

type fixture struct {
	router *gin.Engine
	db     *gorm.DB
	jwt    *jwt.Manager
}

func setup(t *testing.T) *fixture {
	validate.SetupGin()
	db := testsupport.NewSQLiteDB(t)
	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:            "affiliate-handler-secret",
		AccessExpireTime:  time.Hour,
		RefreshExpireTime: 24 * time.Hour,
		Issuer:            "school-portal",
	})
	aes, err := crypto.NewAES("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	affiliateRepo := repository.NewAffiliateRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	accountSvc := affiliateService.NewAccountService(db, affiliateRepo, repository.NewReferralVisitRepository(db), withdrawalRepo,
		jwtManager, aes, affiliateService.AccountConfig{DefaultRate: decimal.NewFromInt(10), PublicURL: "https://portal.test", LinkPath: "/?ref="})
	withdrawSvc := affiliateService.NewWithdrawService(db, affiliateRepo, withdrawalRepo, nil, nil)

	h := NewHandler(accountSvc, withdrawSvc)
	r := testsupport.NewEngine()
	api := r.Group("/api/v1")
	h.RegisterPublicRoutes(api)
	protected := api.Group("/affiliate")
	protected.Use(middleware.AffiliateAuth(jwtManager))
	h.RegisterRoutes(protected)

	return &fixture{router: r, db: db, jwt: jwtManager}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (int, *testsupport.Envelope) {
	w, env := testsupport.Do(t, f.router, testsupport.Request{Method: method, Path: path, Token: token, Body: body})
	return w.Code, env
}

func TestHandler_RegisterLoginFlow(t *testing.T) {
	f := setup(t)

	status, env := f.do(t, http.MethodPost, "/api/v1/affiliates/register", "", map[string]string{
		"username": "Jane99", "email": "jane@example.com", "password": "s3cret-pass", "full_name": "Jane Okafor",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, env.Code, env.Message)
	var created models.Affiliate
	env.Decode(t, &created)
	assert.Equal(t, "jane99", created.Username)
	assert.Equal(t, models.AffiliateStatusPending, created.Status)

	t.Run("密码过短", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/api/v1/affiliates/register", "", map[string]string{
			"username": "bob01", "email": "bob@example.com", "password": "short", "full_name": "Bob",
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("密码错误", func(t *testing.T) {
		_, env := f.do(t, http.MethodPost, "/api/v1/affiliates/login", "", map[string]string{"login": "jane99", "password": "wrong-pass"})
		assert.Equal(t, errors.ErrPasswordError.Code, env.Code)
	})

	_, env = f.do(t, http.MethodPost, "/api/v1/affiliates/login", "", map[string]string{"login": "jane@example.com", "password": "s3cret-pass"})
	require.Equal(t, 0, env.Code, env.Message)
	var login affiliateService.LoginResponse
	env.Decode(t, &login)
	require.NotNil(t, login.Token)
	token := login.Token.AccessToken

	t.Run("工作台", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/affiliate/dashboard", token, nil)
		require.Equal(t, 0, env.Code, env.Message)
		var d affiliateService.Dashboard
		env.Decode(t, &d)
		assert.Equal(t, "https://portal.test/?ref=jane99", d.InviteLink)
	})

	t.Run("邀请二维码", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/affiliate/invite", token, nil)
		require.Equal(t, 0, env.Code)
		var inv affiliateService.Invite
		env.Decode(t, &inv)
		assert.Contains(t, inv.QRCode, "data:image/png;base64,")
		assert.False(t, inv.Active)
	})

	t.Run("更新收款账户", func(t *testing.T) {
		_, env := f.do(t, http.MethodPut, "/api/v1/affiliate/bank", token, map[string]string{
			"bank_name": "GTBank", "account_name": "Jane Okafor", "account_number": "0123456789",
		})
		require.Equal(t, 0, env.Code, env.Message)
		var info affiliateService.BankInfo
		env.Decode(t, &info)
		assert.Equal(t, "******6789", info.AccountNumber)

		status, _ := f.do(t, http.MethodPut, "/api/v1/affiliate/bank", token, map[string]string{
			"bank_name": "GTBank", "account_name": "Jane Okafor", "account_number": "12ab",
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("无效的访问状态筛选", func(t *testing.T) {
		status, _ := f.do(t, http.MethodGet, "/api/v1/affiliate/visits?status=weird", token, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestHandler_RequiresAffiliateToken(t *testing.T) {
	f := setup(t)

	status, _ := f.do(t, http.MethodGet, "/api/v1/affiliate/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// 管理员令牌不能访问推广员接口
	pair, err := f.jwt.Issue(jwt.Subject{ID: 1, Type: jwt.UserTypeAdmin, Role: models.RoleSuperAdmin})
	require.NoError(t, err)
	status, _ = f.do(t, http.MethodGet, "/api/v1/affiliate/dashboard", pair.AccessToken, nil)
	assert.NotEqual(t, http.StatusOK, status)
}

func TestHandler_Withdrawals(t *testing.T) {
	f := setup(t)
	a := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return repository.NewAffiliateRepository(f.db).CreditCommission(tx, a.ID, testsupport.Dec("10000"))
	}))
	pair, err := f.jwt.Issue(jwt.Subject{ID: a.ID, Type: jwt.UserTypeAffiliate})
	require.NoError(t, err)
	token := pair.AccessToken

	t.Run("申请提现", func(t *testing.T) {
		_, env := f.do(t, http.MethodPost, "/api/v1/affiliate/withdrawals", token, map[string]interface{}{"amount": 6000, "notes": "first"})
		require.Equal(t, 0, env.Code, env.Message)
		var w models.WithdrawalRequest
		env.Decode(t, &w)
		assert.Equal(t, models.WithdrawalStatusPending, w.Status)
		assert.True(t, w.Amount.Equal(decimal.NewFromInt(6000)))
	})

	t.Run("超过可用余额", func(t *testing.T) {
		_, env := f.do(t, http.MethodPost, "/api/v1/affiliate/withdrawals", token, map[string]interface{}{"amount": 5000})
		assert.Equal(t, errors.ErrInvalidAmount.Code, env.Code)
	})

	t.Run("金额缺失", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/api/v1/affiliate/withdrawals", token, map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("提现记录", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/v1/affiliate/withdrawals?page=1&page_size=10", token, nil)
		require.Equal(t, 0, env.Code)
		var page struct {
			List  []models.WithdrawalRequest `json:"list"`
			Total int64                      `json:"total"`
		}
		env.Decode(t, &page)
		assert.Equal(t, int64(1), page.Total)
		require.Len(t, page.List, 1)
		assert.Equal(t, a.ID, page.List[0].AffiliateID)
	})
}
