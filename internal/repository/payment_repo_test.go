package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/school-portal-backend/internal/models"
)

func createTransaction(t *testing.T, repo *PaymentRepository, ref string, createdAt time.Time) *models.PaymentTransaction {
	t.Helper()
	txn := &models.PaymentTransaction{
		Reference: ref,
		Purpose:   models.PaymentPurposeSignup,
		TargetID:  1,
		Email:     "office@greenfield.ng",
		Amount:    dec("50000"),
		Currency:  "NGN",
		Status:    models.TransactionStatusInitialized,
		CreatedAt: createdAt,
	}
	require.NoError(t, repo.CreateTransaction(context.Background(), txn))
	return txn
}

func TestPaymentRepository_FinalizeTransaction(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()
	createTransaction(t, repo, "SIGNUP_1_1", time.Now())

	payload := models.JSON{"status": "success", "amount": float64(5000000)}
	require.NoError(t, repo.FinalizeTransaction(db, "SIGNUP_1_1", models.TransactionStatusSuccess, "Approved", payload, time.Now()))

	got, err := repo.GetTransactionByReference(ctx, "SIGNUP_1_1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusSuccess, got.Status)
	assert.Equal(t, "Approved", *got.GatewayResponse)
	assert.Equal(t, "success", got.RawPayload["status"])
	assert.NotNil(t, got.VerifiedAt)

	err = repo.FinalizeTransaction(db, "SIGNUP_1_1", models.TransactionStatusFailed, "", nil, time.Now())
	assert.ErrorIs(t, err, ErrTransactionFinalized)
}

func TestPaymentRepository_ListStaleInitialized(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()
	now := time.Now()

	createTransaction(t, repo, "FRESH", now.Add(-30*time.Second))
	stale := createTransaction(t, repo, "STALE", now.Add(-10*time.Minute))
	createTransaction(t, repo, "ANCIENT", now.Add(-72*time.Hour))
	done := createTransaction(t, repo, "DONE", now.Add(-10*time.Minute))
	require.NoError(t, repo.FinalizeTransaction(db, done.Reference, models.TransactionStatusSuccess, "", nil, now))

	list, err := repo.ListStaleInitialized(ctx, now.Add(-48*time.Hour), now.Add(-2*time.Minute), 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stale.ID, list[0].ID)
}

func TestPaymentRepository_Evidence(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	signupID := int64(7)
	ev := &models.PaymentEvidence{
		SignupID:    &signupID,
		SchoolName:  "Greenfield Academy",
		SchoolPhone: "08031234567",
		Email:       "office@greenfield.ng",
		AmountPaid:  dec("50000"),
		PaymentRef:  "TRF-001",
		PaymentDate: time.Now(),
		Status:      models.EvidenceStatusSubmitted,
	}
	require.NoError(t, repo.CreateEvidence(ctx, ev))

	require.NoError(t, repo.ReviewEvidence(db, ev.ID, models.EvidenceStatusConfirmed, 3, "已到账", time.Now()))
	err := repo.ReviewEvidence(db, ev.ID, models.EvidenceStatusRejected, 3, "", time.Now())
	assert.ErrorIs(t, err, ErrEvidenceAlreadyReviewed)

	got, err := repo.GetEvidenceByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvidenceStatusConfirmed, got.Status)
	assert.Equal(t, int64(3), *got.ReviewedBy)

	list, total, err := repo.ListEvidence(ctx, 0, 10, map[string]interface{}{"signup_id": signupID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)
}
