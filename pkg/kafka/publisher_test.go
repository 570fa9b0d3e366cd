package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewPublisher(t *testing.T) {
	t.Run("缺少 broker", func(t *testing.T) {
		_, err := NewPublisher(&Config{Topic: "portal.notifications"}, nil)
		assert.Error(t, err)
	})

	t.Run("缺少 topic", func(t *testing.T) {
		_, err := NewPublisher(&Config{Brokers: []string{"localhost:9092"}}, nil)
		assert.Error(t, err)
	})

	t.Run("配置写入 writer", func(t *testing.T) {
		p, err := NewPublisher(&Config{Brokers: []string{"localhost:9092"}, Topic: "portal.notifications"}, nil)
		require.NoError(t, err)
		w, ok := p.writer.(*kafka.Writer)
		require.True(t, ok)
		assert.Equal(t, "portal.notifications", w.Topic)
		assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
		assert.Equal(t, "portal.notifications", p.Topic())
	})
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("消息带事件头和分区键", func(t *testing.T) {
		w := &fakeWriter{}
		p := &Publisher{writer: w, topic: "portal.notifications"}

		require.NoError(t, p.Publish(ctx, "commission.earned", []byte(`{"amount":"5000.00"}`), "affiliate:1"))
		require.Len(t, w.msgs, 1)
		msg := w.msgs[0]
		assert.Equal(t, "affiliate:1", string(msg.Key))
		assert.Equal(t, `{"amount":"5000.00"}`, string(msg.Value))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "event", msg.Headers[0].Key)
		assert.Equal(t, "commission.earned", string(msg.Headers[0].Value))
		assert.False(t, msg.Time.IsZero())
	})

	t.Run("写入失败包含事件名", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("leader not available")}
		p := &Publisher{writer: w}

		err := p.Publish(ctx, "signup.paid", nil, "signup:2")
		assert.ErrorContains(t, err, "signup.paid")
		assert.ErrorContains(t, err, "leader not available")
	})

	t.Run("关闭", func(t *testing.T) {
		w := &fakeWriter{}
		p := &Publisher{writer: w}
		require.NoError(t, p.Close())
		assert.True(t, w.closed)
	})
}
