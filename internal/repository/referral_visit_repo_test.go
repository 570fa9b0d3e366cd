package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/models"
)

func TestReferralVisitRepository_FindPendingByIP(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReferralVisitRepository(db)
	ctx := context.Background()
	now := time.Now()
	jane := createAffiliate(t, db, "jane99", models.AffiliateStatusApproved)

	old := createVisit(t, db, jane, "10.0.0.1", now.AddDate(0, 0, -100))
	recent := createVisit(t, db, jane, "10.0.0.1", now.AddDate(0, 0, -3))

	got, err := repo.FindPendingByIP(ctx, jane.ID, "10.0.0.1", now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, recent.ID, got.ID)
	assert.NotEqual(t, old.ID, got.ID)

	_, err = repo.FindPendingByIP(ctx, jane.ID, "10.0.0.2", now.AddDate(0, 0, -90))
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestReferralVisitRepository_LatestPendingForAffiliate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReferralVisitRepository(db)
	now := time.Now()
	jane := createAffiliate(t, db, "jane99", models.AffiliateStatusApproved)

	createVisit(t, db, jane, "1.1.1.1", now.Add(-2*time.Hour))
	same1 := createVisit(t, db, jane, "2.2.2.2", now.Add(-time.Hour))
	same2 := createVisit(t, db, jane, "3.3.3.3", same1.CreatedAt)

	got, err := repo.LatestPendingForAffiliate(db, jane.ID, "jane99")
	require.NoError(t, err)
	assert.Equal(t, same2.ID, got.ID, "同一时间取 ID 最大者")

	require.NoError(t, repo.MarkConverted(db, same2.ID, 1, dec("10"), now))
	got, err = repo.LatestPendingForAffiliate(db, jane.ID, "jane99")
	require.NoError(t, err)
	assert.Equal(t, same1.ID, got.ID)
}

func TestReferralVisitRepository_LatestPendingInWindow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReferralVisitRepository(db)
	now := time.Now()
	since := now.AddDate(0, 0, -90)

	bob := createAffiliate(t, db, "bob", models.AffiliateStatusApproved)
	suspended := createAffiliate(t, db, "sus", models.AffiliateStatusSuspended)

	bobVisit := createVisit(t, db, bob, "1.1.1.1", now.AddDate(0, 0, -10))
	createVisit(t, db, suspended, "1.1.1.1", now.AddDate(0, 0, -1))

	t.Run("跳过未审核推广员的访问", func(t *testing.T) {
		got, err := repo.LatestPendingInWindow(db, since)
		require.NoError(t, err)
		assert.Equal(t, bobVisit.ID, got.ID)
	})

	t.Run("窗口外无结果", func(t *testing.T) {
		_, err := repo.LatestPendingInWindow(db, now.AddDate(0, 0, -5).Add(time.Hour))
		assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	})
}

func TestReferralVisitRepository_MarkConverted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReferralVisitRepository(db)
	ctx := context.Background()
	now := time.Now()
	jane := createAffiliate(t, db, "jane99", models.AffiliateStatusApproved)
	v1 := createVisit(t, db, jane, "1.1.1.1", now.Add(-time.Hour))
	v2 := createVisit(t, db, jane, "2.2.2.2", now.Add(-time.Hour))

	require.NoError(t, repo.MarkConverted(db, v1.ID, 42, dec("5000"), now))

	t.Run("已转化访问不能再次转化", func(t *testing.T) {
		err := repo.MarkConverted(db, v1.ID, 43, dec("1"), now)
		assert.ErrorIs(t, err, ErrVisitAlreadyConverted)
	})

	t.Run("同一报名不能转化两条访问", func(t *testing.T) {
		err := repo.MarkConverted(db, v2.ID, 42, dec("5000"), now)
		require.Error(t, err)
		assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	})

	t.Run("按报名查询", func(t *testing.T) {
		got, err := repo.GetBySignupID(db, 42)
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)
		assert.Equal(t, models.VisitStatusConverted, got.Status)
		require.NotNil(t, got.CommissionAmount)
		assert.True(t, got.CommissionAmount.Equal(dec("5000")))
	})

	t.Run("统计", func(t *testing.T) {
		counts, err := repo.CountByAffiliate(ctx, jane.ID)
		require.NoError(t, err)
		assert.Equal(t, &VisitCounts{Total: 2, Pending: 1, Converted: 1}, counts)
	})

	t.Run("列表过滤", func(t *testing.T) {
		list, total, err := repo.List(ctx, 0, 10, map[string]interface{}{
			"affiliate_id": jane.ID,
			"status":       models.VisitStatusPending,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, v2.ID, list[0].ID)
	})
}
