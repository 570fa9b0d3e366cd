// Package kafka 提供通知事件的 Kafka 发布器
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Config Kafka 发布配置
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 事件发布器，同一分区键的事件保持顺序
type Publisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewPublisher 创建发布器
func NewPublisher(cfg *Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			WriteTimeout: timeout,
		},
		topic:  cfg.Topic,
		logger: logger.Named("kafka"),
	}, nil
}

// Publish 发布事件，事件名写入消息头 event
func (p *Publisher) Publish(ctx context.Context, event string, payload []byte, partitionKey string) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(partitionKey),
		Value:   payload,
		Headers: []kafka.Header{{Key: "event", Value: []byte(event)}},
		Time:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", event, err)
	}
	return nil
}

// Topic 返回目标主题
func (p *Publisher) Topic() string {
	return p.topic
}

// Close 关闭发布器
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		p.logger.Warn("close writer failed", zap.Error(err))
		return err
	}
	return nil
}
