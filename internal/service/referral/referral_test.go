package referral

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/cache"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/service/notify"
	"github.com/dumeirei/school-portal-backend/internal/testsupport"
)

const day = 24 * time.Hour

type fixture struct {
	db          *gorm.DB
	capture     *CaptureService
	attribution *AttributionService
	recorder    *notify.Recorder
}

func newFixture(t *testing.T, locker *cache.Locker) *fixture {
	db := testsupport.NewSQLiteDB(t)
	m := metrics.New("referral_test", prometheus.NewRegistry())
	affiliateRepo := repository.NewAffiliateRepository(db)
	visitRepo := repository.NewReferralVisitRepository(db)
	signupRepo := repository.NewSchoolSignupRepository(db)
	recorder := notify.NewRecorder()

	return &fixture{
		db:          db,
		capture:     NewCaptureService(affiliateRepo, visitRepo, DefaultConfig(), m),
		attribution: NewAttributionService(db, signupRepo, visitRepo, affiliateRepo, locker, recorder, m, DefaultConfig()),
		recorder:    recorder,
	}
}

// at 固定归因服务的当前时间
func (f *fixture) at(now time.Time) {
	f.attribution.now = func() time.Time { return now }
	f.capture.now = func() time.Time { return now }
}

func reloadVisit(t *testing.T, db *gorm.DB, id int64) *models.ReferralVisit {
	var v models.ReferralVisit
	require.NoError(t, db.First(&v, id).Error)
	return &v
}

func reloadSignup(t *testing.T, db *gorm.DB, id int64) *models.SchoolSignup {
	var s models.SchoolSignup
	require.NoError(t, db.First(&s, id).Error)
	return &s
}

func TestCaptureService_RecordVisit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	testsupport.CreateAffiliate(t, f.db, "sam", models.AffiliateStatusSuspended, "10")

	t.Run("有效推广码写入未转化访问", func(t *testing.T) {
		res, err := f.capture.RecordVisit(ctx, &VisitInput{Code: "jane99", IP: "10.0.0.1", UserAgent: "Mozilla/5.0", LandingPath: "/signup"})
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, "Jane99", res.AffiliateName)

		visit := reloadVisit(t, f.db, res.VisitID)
		assert.Equal(t, jane.ID, visit.AffiliateID)
		assert.Equal(t, "jane99", visit.ReferralCode)
		assert.Equal(t, models.VisitStatusPending, visit.Status)
		assert.Nil(t, visit.CommissionAmount)
		assert.Equal(t, "/signup", *visit.LandingPath)
	})

	t.Run("同一 IP 窗口内去重", func(t *testing.T) {
		first, err := f.capture.RecordVisit(ctx, &VisitInput{Code: "jane99", IP: "10.0.0.2"})
		require.NoError(t, err)
		second, err := f.capture.RecordVisit(ctx, &VisitInput{Code: "jane99", IP: "10.0.0.2"})
		require.NoError(t, err)
		assert.True(t, second.Duplicate)
		assert.Equal(t, first.VisitID, second.VisitID)
	})

	t.Run("窗口外同一 IP 重新记录", func(t *testing.T) {
		old := testsupport.CreateVisit(t, f.db, jane, "10.0.0.3", time.Now().Add(-100*day))
		res, err := f.capture.RecordVisit(ctx, &VisitInput{Code: "jane99", IP: "10.0.0.3"})
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.NotEqual(t, old.ID, res.VisitID)
	})

	t.Run("推广码大小写与空白规范化", func(t *testing.T) {
		res, err := f.capture.RecordVisit(ctx, &VisitInput{Code: "  JANE99 ", IP: "10.0.0.4"})
		require.NoError(t, err)
		assert.Equal(t, "jane99", res.ReferralCode)
	})

	t.Run("无效推广码", func(t *testing.T) {
		for _, code := range []string{"nobody", "sam", "", "x!"} {
			_, err := f.capture.RecordVisit(ctx, &VisitInput{Code: code, IP: "10.0.0.5"})
			assert.ErrorIs(t, err, errors.ErrInvalidReferralCode, code)
		}
	})
}

func TestCaptureService_ResolveCode(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	testsupport.CreateAffiliate(t, f.db, "pendingpat", models.AffiliateStatusPending, "10")

	res, err := f.capture.ResolveCode(context.Background(), "Jane99")
	require.NoError(t, err)
	assert.Equal(t, "jane99", res.ReferralCode)
	assert.Equal(t, "Jane99", res.AffiliateName)

	_, err = f.capture.ResolveCode(context.Background(), "pendingpat")
	assert.ErrorIs(t, err, errors.ErrInvalidReferralCode)
}

func TestAttribute_DirectReferral(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	visit := testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", time.Now().Add(-2*day))
	signup := testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPaid, testsupport.WithReferralCode("jane99"))

	res, err := f.attribution.Attribute(ctx, signup.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, PathDirect, res.Path)
	assert.Equal(t, "5000", res.Amount.String())
	assert.Equal(t, visit.ID, res.VisitID)
	assert.Equal(t, "jane99", res.AffiliateCode)

	t.Run("访问已转化并记录佣金", func(t *testing.T) {
		v := reloadVisit(t, f.db, visit.ID)
		assert.Equal(t, models.VisitStatusConverted, v.Status)
		require.NotNil(t, v.SchoolSignupID)
		assert.Equal(t, signup.ID, *v.SchoolSignupID)
		assert.True(t, v.CommissionAmount.Equal(testsupport.Dec("5000")))
		assert.NotNil(t, v.ConvertedAt)
	})

	t.Run("推广员账本入账", func(t *testing.T) {
		a := testsupport.ReloadAffiliate(t, f.db, jane.ID)
		assert.True(t, a.TotalEarnings.Equal(testsupport.Dec("5000")))
		assert.True(t, a.PendingEarnings.Equal(testsupport.Dec("5000")))
		assert.True(t, a.PaidEarnings.IsZero())
		assert.Equal(t, 1, a.TotalReferrals)
	})

	t.Run("报名标记已归因", func(t *testing.T) {
		assert.NotNil(t, reloadSignup(t, f.db, signup.ID).AttributionCheckedAt)
	})

	t.Run("发送佣金到账通知", func(t *testing.T) {
		ev := f.recorder.Last(notify.EventCommissionEarned)
		require.NotNil(t, ev)
		assert.Equal(t, "5000.00", ev.Data["amount"])
		require.NotNil(t, ev.SMS)
		assert.Equal(t, "08031234567", ev.SMS.Phone)
	})

	t.Run("重复归因幂等", func(t *testing.T) {
		again, err := f.attribution.Attribute(ctx, signup.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCommitted, again.Outcome)
		assert.True(t, again.AlreadyAttributed)
		assert.True(t, again.Amount.Equal(res.Amount))
		assert.Equal(t, visit.ID, again.VisitID)

		a := testsupport.ReloadAffiliate(t, f.db, jane.ID)
		assert.True(t, a.TotalEarnings.Equal(testsupport.Dec("5000")))
		assert.Equal(t, 1, a.TotalReferrals)
		assert.Len(t, f.recorder.Events(), 1)
	})
}

func TestAttribute_DirectPicksLatestPendingVisit(t *testing.T) {
	f := newFixture(t, nil)
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	now := time.Now()
	testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", now.Add(-5*day))
	latest := testsupport.CreateVisit(t, f.db, jane, "10.0.0.2", now.Add(-1*day))
	signup := testsupport.CreateSignup(t, f.db, "20000", models.PaymentStatusPaid, testsupport.WithReferralCode("JANE99"))

	res, err := f.attribution.Attribute(context.Background(), signup.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, res.VisitID)
	assert.Equal(t, "2000", res.Amount.String())
}

func TestAttribute_NotPaid(t *testing.T) {
	f := newFixture(t, nil)
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	visit := testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", time.Now())
	signup := testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPending, testsupport.WithReferralCode("jane99"))

	res, err := f.attribution.Attribute(context.Background(), signup.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotPaid, res.Outcome)

	assert.Equal(t, models.VisitStatusPending, reloadVisit(t, f.db, visit.ID).Status)
	assert.True(t, testsupport.ReloadAffiliate(t, f.db, jane.ID).TotalEarnings.IsZero())
	assert.Nil(t, reloadSignup(t, f.db, signup.ID).AttributionCheckedAt)
}

func TestAttribute_SignupNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.attribution.Attribute(context.Background(), 404)
	assert.ErrorIs(t, err, errors.ErrSignupNotFound)
}

func TestAttribute_WindowFallback(t *testing.T) {
	base := time.Now().Add(-30 * day)

	t.Run("无推广码时按窗口内最近访问归因", func(t *testing.T) {
		f := newFixture(t, nil)
		bob := testsupport.CreateAffiliate(t, f.db, "bob", models.AffiliateStatusApproved, "15")
		visit := testsupport.CreateVisit(t, f.db, bob, "10.0.0.9", base)
		signup := testsupport.CreateSignup(t, f.db, "40000", models.PaymentStatusPaid)
		f.at(base.Add(10 * day))

		res, err := f.attribution.Attribute(context.Background(), signup.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCommitted, res.Outcome)
		assert.Equal(t, PathWindow, res.Path)
		assert.Equal(t, visit.ID, res.VisitID)
		assert.Equal(t, "6000", res.Amount.String())
		assert.True(t, testsupport.ReloadAffiliate(t, f.db, bob.ID).PendingEarnings.Equal(testsupport.Dec("6000")))
	})

	t.Run("超过 90 天窗口不归因", func(t *testing.T) {
		f := newFixture(t, nil)
		bob := testsupport.CreateAffiliate(t, f.db, "bob", models.AffiliateStatusApproved, "15")
		visit := testsupport.CreateVisit(t, f.db, bob, "10.0.0.9", base)
		signup := testsupport.CreateSignup(t, f.db, "40000", models.PaymentStatusPaid)
		f.at(base.Add(91 * day))

		res, err := f.attribution.Attribute(context.Background(), signup.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoReferral, res.Outcome)
		assert.Equal(t, models.VisitStatusPending, reloadVisit(t, f.db, visit.ID).Status)
		assert.NotNil(t, reloadSignup(t, f.db, signup.ID).AttributionCheckedAt)
		assert.Empty(t, f.recorder.Events())

		again, err := f.attribution.Attribute(context.Background(), signup.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoReferral, again.Outcome)
		assert.True(t, again.AlreadyAttributed)
	})

	t.Run("无效推广码回退到窗口", func(t *testing.T) {
		f := newFixture(t, nil)
		bob := testsupport.CreateAffiliate(t, f.db, "bob", models.AffiliateStatusApproved, "10")
		testsupport.CreateAffiliate(t, f.db, "sam", models.AffiliateStatusSuspended, "50")
		visit := testsupport.CreateVisit(t, f.db, bob, "10.0.0.9", time.Now().Add(-day))
		signup := testsupport.CreateSignup(t, f.db, "10000", models.PaymentStatusPaid, testsupport.WithReferralCode("sam"))

		res, err := f.attribution.Attribute(context.Background(), signup.ID)
		require.NoError(t, err)
		assert.Equal(t, PathWindow, res.Path)
		assert.Equal(t, visit.ID, res.VisitID)
		assert.Equal(t, "1000", res.Amount.String())
	})

	t.Run("窗口归因跳过未审核推广员的访问", func(t *testing.T) {
		f := newFixture(t, nil)
		bob := testsupport.CreateAffiliate(t, f.db, "bob", models.AffiliateStatusApproved, "10")
		sam := testsupport.CreateAffiliate(t, f.db, "sam", models.AffiliateStatusSuspended, "10")
		older := testsupport.CreateVisit(t, f.db, bob, "10.0.0.1", time.Now().Add(-3*day))
		testsupport.CreateVisit(t, f.db, sam, "10.0.0.2", time.Now().Add(-1*day))
		signup := testsupport.CreateSignup(t, f.db, "10000", models.PaymentStatusPaid)

		res, err := f.attribution.Attribute(context.Background(), signup.ID)
		require.NoError(t, err)
		assert.Equal(t, older.ID, res.VisitID)
	})
}

func TestAttribute_ApprovedCodeWithoutVisitDoesNotFallBack(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	bob := testsupport.CreateAffiliate(t, f.db, "bob", models.AffiliateStatusApproved, "10")
	bobVisit := testsupport.CreateVisit(t, f.db, bob, "10.0.0.1", time.Now().Add(-day))
	signup := testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPaid, testsupport.WithReferralCode("jane99"))

	res, err := f.attribution.Attribute(context.Background(), signup.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoReferral, res.Outcome)
	assert.Equal(t, models.VisitStatusPending, reloadVisit(t, f.db, bobVisit.ID).Status)
}

func TestAttribute_VisitConvertsOnce(t *testing.T) {
	f := newFixture(t, nil)
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", time.Now().Add(-day))
	first := testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPaid, testsupport.WithReferralCode("jane99"))
	second := testsupport.CreateSignup(t, f.db, "30000", models.PaymentStatusPaid, testsupport.WithReferralCode("jane99"))

	res, err := f.attribution.Attribute(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)

	res, err = f.attribution.Attribute(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoReferral, res.Outcome)

	a := testsupport.ReloadAffiliate(t, f.db, jane.ID)
	assert.True(t, a.TotalEarnings.Equal(testsupport.Dec("5000")))
	assert.Equal(t, 1, a.TotalReferrals)
}

func TestAttribute_RoundsHalfUp(t *testing.T) {
	f := newFixture(t, nil)
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "7.5")
	testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", time.Now().Add(-day))
	signup := testsupport.CreateSignup(t, f.db, "33333.33", models.PaymentStatusPaid, testsupport.WithReferralCode("jane99"))

	res, err := f.attribution.Attribute(context.Background(), signup.ID)
	require.NoError(t, err)
	assert.Equal(t, "2500.00", res.Amount.StringFixed(2))
}

func TestAttribute_ConcurrentAttemptsCreditOnce(t *testing.T) {
	f := newFixture(t, nil)
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", time.Now().Add(-day))
	signup := testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPaid, testsupport.WithReferralCode("jane99"))

	var wg sync.WaitGroup
	results := make([]*AttributionResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.attribution.Attribute(context.Background(), signup.ID)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, OutcomeCommitted, results[i].Outcome)
		assert.Equal(t, "5000", results[i].Amount.String())
		if !results[i].AlreadyAttributed {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)

	a := testsupport.ReloadAffiliate(t, f.db, jane.ID)
	assert.True(t, a.PendingEarnings.Equal(testsupport.Dec("5000")))
	assert.Equal(t, 1, a.TotalReferrals)
}

func TestAttribute_LockContention(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, cache.NewLocker(client))
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", time.Now().Add(-day))
	signup := testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPaid, testsupport.WithReferralCode("jane99"))

	key := cache.BuildKey(cache.KeyPrefixAttribution, "1")
	require.Equal(t, int64(1), signup.ID)
	require.NoError(t, s.Set(key, "someone-else"))

	_, err := f.attribution.Attribute(context.Background(), signup.ID)
	assert.ErrorIs(t, err, errors.ErrAttributionInProgress)

	s.Del(key)
	res, err := f.attribution.Attribute(context.Background(), signup.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.False(t, s.Exists(key))
}

func TestRetryUnattributed(t *testing.T) {
	f := newFixture(t, nil)
	jane := testsupport.CreateAffiliate(t, f.db, "jane99", models.AffiliateStatusApproved, "10")
	testsupport.CreateVisit(t, f.db, jane, "10.0.0.1", time.Now().Add(-day))
	testsupport.CreateSignup(t, f.db, "50000", models.PaymentStatusPaid, testsupport.WithReferralCode("jane99"))
	testsupport.CreateSignup(t, f.db, "10000", models.PaymentStatusPaid, testsupport.WithReferralCode("jane99"))
	testsupport.CreateSignup(t, f.db, "10000", models.PaymentStatusPending)

	stats, err := f.attribution.RetryUnattributed(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Checked)
	assert.Equal(t, 1, stats.Committed)
	assert.Equal(t, 0, stats.Failed)

	stats, err = f.attribution.RetryUnattributed(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Checked)
}
