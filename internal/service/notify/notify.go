// Package notify 业务事件通知：MQTT / Kafka 事件流与短信，尽力而为，不影响调用方
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/crypto"
	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
	"github.com/dumeirei/school-portal-backend/pkg/sms"
)

// 事件名
const (
	EventSignupCreated       = "signup.created"
	EventSignupPaid          = "signup.paid"
	EventRenewalPaid         = "renewal.paid"
	EventCommissionEarned    = "commission.earned"
	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalReviewed  = "withdrawal.reviewed"
	EventWithdrawalPaid      = "withdrawal.paid"
	EventContactReceived     = "contact.received"
	EventAffiliateApproved   = "affiliate.approved"
)

// Event 通知事件
type Event struct {
	Name       string                 `json:"event"`
	Key        string                 `json:"-"` // 分区键，同一实体的事件保持顺序
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
	SMS        *sms.Message           `json:"-"`
}

// NewEvent 创建事件
func NewEvent(name, key string, data map[string]interface{}) *Event {
	return &Event{Name: name, Key: key, OccurredAt: time.Now(), Data: data}
}

// WithSMS 附带短信，手机号为空时忽略
func (e *Event) WithSMS(msg sms.Message) *Event {
	if msg.Phone != "" {
		e.SMS = &msg
	}
	return e
}

// Notifier 事件通知接口
type Notifier interface {
	Notify(ctx context.Context, ev *Event)
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Notify(context.Context, *Event) {}

// OrNop 未配置通知器时返回 Nop
func OrNop(n Notifier) Notifier {
	if n == nil {
		return Nop{}
	}
	return n
}

// Backend 通知通道
type Backend interface {
	Name() string
	Send(ctx context.Context, ev *Event) error
}

// Dispatcher 异步分发事件到各通道，失败只记录日志
type Dispatcher struct {
	backends []Backend
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

// NewDispatcher 创建分发器
func NewDispatcher(logger *zap.Logger, m *metrics.Metrics, backends ...Backend) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		backends: backends,
		timeout:  5 * time.Second,
		logger:   logger.Named("notify"),
		metrics:  m,
	}
}

// Notify 分发事件
func (d *Dispatcher) Notify(ctx context.Context, ev *Event) {
	if d == nil || ev == nil || len(d.backends) == 0 {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		for _, b := range d.backends {
			if err := b.Send(sendCtx, ev); err != nil {
				d.metrics.RecordNotification(b.Name(), "error")
				d.logger.Warn("notification failed",
					zap.String("channel", b.Name()),
					zap.String("event", ev.Name),
					zap.Error(err),
				)
				continue
			}
			d.metrics.RecordNotification(b.Name(), "ok")
		}
	}()
}

// Close 等待已分发的事件发送完成
func (d *Dispatcher) Close() {
	if d != nil {
		d.wg.Wait()
	}
}

// MQTTPublisher MQTT 发布能力
type MQTTPublisher interface {
	Publish(ctx context.Context, event string, payload []byte) error
}

type mqttBackend struct {
	publisher MQTTPublisher
}

// NewMQTTBackend 事件发布到 <prefix>notify/<event>
func NewMQTTBackend(p MQTTPublisher) Backend {
	return &mqttBackend{publisher: p}
}

func (b *mqttBackend) Name() string { return "mqtt" }

func (b *mqttBackend) Send(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.publisher.Publish(ctx, ev.Name, payload)
}

// KafkaPublisher Kafka 发布能力
type KafkaPublisher interface {
	Publish(ctx context.Context, event string, payload []byte, partitionKey string) error
}

type kafkaBackend struct {
	publisher KafkaPublisher
}

// NewKafkaBackend 事件发布到通知主题
func NewKafkaBackend(p KafkaPublisher) Backend {
	return &kafkaBackend{publisher: p}
}

func (b *kafkaBackend) Name() string { return "kafka" }

func (b *kafkaBackend) Send(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.publisher.Publish(ctx, ev.Name, payload, ev.Key)
}

type smsBackend struct {
	sender sms.Sender
}

// NewSMSBackend 只发送附带短信的事件
func NewSMSBackend(s sms.Sender) Backend {
	return &smsBackend{sender: s}
}

func (b *smsBackend) Name() string { return "sms" }

func (b *smsBackend) Send(ctx context.Context, ev *Event) error {
	if ev.SMS == nil {
		return nil
	}
	if err := b.sender.Send(ctx, *ev.SMS); err != nil {
		return fmt.Errorf("sms to %s: %w", crypto.MaskPhone(ev.SMS.Phone), err)
	}
	return nil
}

// Recorder 记录事件的通知器，用于测试
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// NewRecorder 创建记录器
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify 记录事件
func (r *Recorder) Notify(_ context.Context, ev *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events 已记录事件
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names 已记录事件名
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		names = append(names, ev.Name)
	}
	return names
}

// Last 最后一个指定名称的事件
func (r *Recorder) Last(name string) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name == name {
			return r.events[i]
		}
	}
	return nil
}
