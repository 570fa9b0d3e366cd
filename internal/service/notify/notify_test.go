package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
	"github.com/dumeirei/school-portal-backend/pkg/sms"
)

type fakeMQTT struct {
	mu     sync.Mutex
	events []string
	bodies [][]byte
	err    error
}

func (f *fakeMQTT) Publish(_ context.Context, event string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	f.bodies = append(f.bodies, payload)
	return nil
}

type fakeKafka struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeKafka) Publish(_ context.Context, _ string, _ []byte, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func TestDispatcher_Notify(t *testing.T) {
	ctx := context.Background()
	m := metrics.New("notify_test", prometheus.NewRegistry())

	t.Run("事件发送到全部通道", func(t *testing.T) {
		mq := &fakeMQTT{}
		kf := &fakeKafka{}
		sender := sms.NewMockSender()
		d := NewDispatcher(nil, m, NewMQTTBackend(mq), NewKafkaBackend(kf), NewSMSBackend(sender))

		ev := NewEvent(EventCommissionEarned, "affiliate:1", map[string]interface{}{"amount": "5000.00"}).
			WithSMS(sms.CommissionEarned("08031234567", "Jane", "5,000.00", "Greenfield"))
		d.Notify(ctx, ev)
		d.Close()

		require.Equal(t, []string{EventCommissionEarned}, mq.events)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(mq.bodies[0], &body))
		assert.Equal(t, EventCommissionEarned, body["event"])
		assert.Equal(t, "5000.00", body["data"].(map[string]interface{})["amount"])
		assert.NotContains(t, body, "SMS")

		assert.Equal(t, []string{"affiliate:1"}, kf.keys)
		require.Len(t, sender.Messages(), 1)
		assert.Equal(t, "08031234567", sender.Messages()[0].Phone)
	})

	t.Run("无短信的事件不发短信", func(t *testing.T) {
		sender := sms.NewMockSender()
		d := NewDispatcher(nil, m, NewSMSBackend(sender))
		d.Notify(ctx, NewEvent(EventSignupCreated, "signup:1", nil))
		d.Close()
		assert.Empty(t, sender.Messages())
	})

	t.Run("单个通道失败不影响其它通道", func(t *testing.T) {
		mq := &fakeMQTT{err: errors.New("broker down")}
		kf := &fakeKafka{}
		d := NewDispatcher(nil, m, NewMQTTBackend(mq), NewKafkaBackend(kf))
		d.Notify(ctx, NewEvent(EventWithdrawalPaid, "affiliate:2", nil))
		d.Close()
		assert.Equal(t, []string{"affiliate:2"}, kf.keys)
	})

	t.Run("调用方上下文取消后仍然发送", func(t *testing.T) {
		kf := &fakeKafka{}
		d := NewDispatcher(nil, m, NewKafkaBackend(kf))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		d.Notify(cctx, NewEvent(EventContactReceived, "contact:1", nil))
		d.Close()
		assert.Len(t, kf.keys, 1)
	})

	t.Run("nil 分发器为空操作", func(t *testing.T) {
		var d *Dispatcher
		d.Notify(ctx, NewEvent(EventSignupPaid, "", nil))
		d.Close()
	})
}

func TestEvent_WithSMS(t *testing.T) {
	ev := NewEvent(EventWithdrawalPaid, "affiliate:1", nil).WithSMS(sms.WithdrawalPaid("", "Jane", "1.00"))
	assert.Nil(t, ev.SMS)
	assert.False(t, ev.OccurredAt.IsZero())
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Notify(context.Background(), NewEvent(EventSignupCreated, "signup:1", map[string]interface{}{"id": 1}))
	r.Notify(context.Background(), NewEvent(EventSignupPaid, "signup:1", nil))
	r.Notify(context.Background(), NewEvent(EventSignupCreated, "signup:2", map[string]interface{}{"id": 2}))

	assert.Equal(t, []string{EventSignupCreated, EventSignupPaid, EventSignupCreated}, r.Names())
	assert.Equal(t, 2, r.Last(EventSignupCreated).Data["id"])
	assert.Nil(t, r.Last(EventWithdrawalPaid))
	assert.Len(t, r.Events(), 3)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))
	rec := NewRecorder()
	assert.Same(t, rec, OrNop(rec))
	OrNop(nil).Notify(context.Background(), NewEvent(EventContactReceived, "", nil))
}
