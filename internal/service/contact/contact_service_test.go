package contact

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/service/notify"
	"github.com/dumeirei/school-portal-backend/internal/testsupport"
)

func TestContactService(t *testing.T) {
	db := testsupport.NewSQLiteDB(t)
	recorder := notify.NewRecorder()
	svc := NewContactService(repository.NewContactRepository(db), recorder)
	ctx := context.Background()

	msg, err := svc.Submit(ctx, &SubmitRequest{
		FullName:    " Ada Obi ",
		Phone:       "08031234567",
		SchoolName:  "Greenfield Academy",
		SupportType: "billing",
		Message:     "How do I pay offline?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Obi", msg.FullName)
	assert.Equal(t, models.ContactStatusNew, msg.Status)
	require.NotNil(t, msg.SchoolName)

	ev := recorder.Last(notify.EventContactReceived)
	require.NotNil(t, ev)
	assert.Equal(t, "billing", ev.Data["support_type"])

	t.Run("手机号无效", func(t *testing.T) {
		_, err := svc.Submit(ctx, &SubmitRequest{FullName: "X", Phone: "12", SupportType: "other", Message: "hi"})
		assert.ErrorIs(t, err, errors.ErrInvalidParams)
	})

	t.Run("留言过长", func(t *testing.T) {
		_, err := svc.Submit(ctx, &SubmitRequest{FullName: "X", Phone: "08031234567", SupportType: "other", Message: strings.Repeat("a", 5001)})
		assert.ErrorIs(t, err, errors.ErrInvalidParams)
	})

	count, err := svc.CountNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, svc.MarkHandled(ctx, msg.ID, 7))
	assert.ErrorIs(t, svc.MarkHandled(ctx, 404, 7), errors.ErrContactNotFound)

	list, total, err := svc.List(ctx, 0, 10, map[string]interface{}{"status": models.ContactStatusHandled})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].HandledBy)
	assert.Equal(t, int64(7), *list[0].HandledBy)

	count, err = svc.CountNew(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
