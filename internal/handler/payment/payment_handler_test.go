package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/crypto"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/validate"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	paymentService "github.com/dumeirei/school-portal-backend/internal/service/payment"
	referralService "github.com/dumeirei/school-portal-backend/internal/service/referral"
	"github.com/dumeirei/school-portal-backend/internal/testsupport"
	"github.com/dumeirei/school-portal-backend/pkg/oss"
	"github.com/dumeirei/school-portal-backend/pkg/paystack"
)

const secretKey = "sk_test_handler"

// gatewayStub 模拟 Paystack 接口，记录初始化金额，核验时按原金额返回成功
type gatewayStub struct {
	mu      sync.Mutex
	amounts map[string]int64
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	write := func(data interface{}) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": true, "message": "ok", "data": data})
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/transaction/initialize":
		var req paystack.InitializeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		g.amounts[req.Reference] = req.Amount
		write(paystack.InitializeResult{
			AuthorizationURL: "https://checkout.paystack.test/" + req.Reference,
			AccessCode:       "ac",
			Reference:        req.Reference,
		})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/transaction/verify/"):
		ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		write(paystack.Transaction{ID: 7, Status: paystack.StatusSuccess, Reference: ref, Amount: g.amounts[ref], Currency: "NGN"})
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": false, "message": "not found"})
	}
}

type fixture struct {
	router   *gin.Engine
	db       *gorm.DB
	svc      *paymentService.PaymentService
	uploader *oss.MockUploader
}

func setup(t *testing.T) *fixture {
	validate.SetupGin()
	db := testsupport.NewSQLiteDB(t)

	server := httptest.NewServer(&gatewayStub{amounts: make(map[string]int64)})
	t.Cleanup(server.Close)
	client := paystack.NewClient(&paystack.Config{BaseURL: server.URL, SecretKey: secretKey, Currency: "NGN"})

	signupRepo := repository.NewSchoolSignupRepository(db)
	attribution := referralService.NewAttributionService(db, signupRepo, repository.NewReferralVisitRepository(db),
		repository.NewAffiliateRepository(db), nil, nil, nil, referralService.DefaultConfig())
	uploader := oss.NewMockUploader()
	svc := paymentService.NewPaymentService(db, repository.NewPaymentRepository(db), signupRepo, repository.NewRenewalRepository(db),
		client, attribution, uploader, nil, nil, nil)

	r := testsupport.NewEngine()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return &fixture{router: r, db: db, svc: svc, uploader: uploader}
}

func TestHandler_VerifyAttributes(t *testing.T) {
	f := setup(t)
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", jane.CreatedAt)
	signup := testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPending, testsupport.WithReferralCode("jane99"))

	init, err := f.svc.InitializeSignup(context.Background(), signup.ID)
	require.NoError(t, err)

	_, env := testsupport.Do(t, f.router, testsupport.Request{Method: http.MethodGet, Path: "/api/v1/payments/verify/" + init.Reference})
	require.Equal(t, 0, env.Code, env.Message)

	var res paymentService.VerifyResult
	env.Decode(t, &res)
	assert.True(t, res.Paid)
	require.NotNil(t, res.Attribution)
	assert.Equal(t, referralService.OutcomeCommitted, res.Attribution.Outcome)
	assert.True(t, res.Attribution.Amount.Equal(testsupport.Dec("5000")))

	reloaded := testsupport.ReloadAffiliate(t, f.db, jane.ID)
	assert.True(t, reloaded.TotalEarnings.Equal(testsupport.Dec("5000")))

	t.Run("重复核验不重复入账", func(t *testing.T) {
		_, env := testsupport.Do(t, f.router, testsupport.Request{Method: http.MethodGet, Path: "/api/v1/payments/verify/" + init.Reference})
		require.Equal(t, 0, env.Code)
		reloaded := testsupport.ReloadAffiliate(t, f.db, jane.ID)
		assert.True(t, reloaded.TotalEarnings.Equal(testsupport.Dec("5000")))
	})

	t.Run("未知流水号", func(t *testing.T) {
		_, env := testsupport.Do(t, f.router, testsupport.Request{Method: http.MethodGet, Path: "/api/v1/payments/verify/SGN-unknown"})
		assert.Equal(t, errors.ErrPaymentNotFound.Code, env.Code)
	})
}

func TestHandler_PaystackWebhook(t *testing.T) {
	f := setup(t)
	body, err := json.Marshal(map[string]interface{}{
		"event": paystack.EventChargeSuccess,
		"data":  map[string]interface{}{"reference": "SGN-none", "status": "success", "amount": 100},
	})
	require.NoError(t, err)

	t.Run("签名错误", func(t *testing.T) {
		w, env := testsupport.Do(t, f.router, testsupport.Request{
			Method:  http.MethodPost,
			Path:    "/api/v1/payments/paystack/webhook",
			Body:    body,
			Headers: map[string]string{paystack.SignatureHeader: "deadbeef"},
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, errors.ErrInvalidSignature.Code, env.Code)
	})

	t.Run("签名正确", func(t *testing.T) {
		w, env := testsupport.Do(t, f.router, testsupport.Request{
			Method:  http.MethodPost,
			Path:    "/api/v1/payments/paystack/webhook",
			Body:    body,
			Headers: map[string]string{paystack.SignatureHeader: crypto.SignHMACSHA512(secretKey, body)},
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, env.Code)
	})
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func evidenceRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/evidence", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandler_SubmitEvidence(t *testing.T) {
	f := setup(t)
	signup := testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPending, testsupport.WithPaymentType(models.PaymentTypeOffline))

	fields := func() map[string]string {
		return map[string]string{
			"signup_id":    strconv.FormatInt(signup.ID, 10),
			"school_name":  "Greenfield Academy",
			"school_phone": "08031234567",
			"email":        "office@greenfield.ng",
			"amount_paid":  "50000",
			"payment_ref":  "TRF-001",
			"payment_date": "2026-10-01",
		}
	}

	t.Run("上传成功", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, evidenceRequest(t, fields(), "receipt.png", pngHeader))
		require.Equal(t, http.StatusOK, w.Code)

		var env testsupport.Envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		require.Equal(t, 0, env.Code, env.Message)

		var ev models.PaymentEvidence
		env.Decode(t, &ev)
		assert.Equal(t, models.EvidenceStatusSubmitted, ev.Status)
		require.NotNil(t, ev.EvidenceFileURL)
		assert.Len(t, f.uploader.Files, 1)
	})

	t.Run("缺少文件", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, evidenceRequest(t, fields(), "", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("扩展名与内容不符", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, evidenceRequest(t, fields(), "receipt.pdf", pngHeader))
		var env testsupport.Envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Equal(t, errors.ErrInvalidParams.Code, env.Code)
	})

	t.Run("缺少必填字段", func(t *testing.T) {
		fs := fields()
		delete(fs, "payment_ref")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, evidenceRequest(t, fs, "receipt.png", pngHeader))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
