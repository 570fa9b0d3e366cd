// Package mqtt 通知事件的 MQTT 发布端
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrNotConnected 连接断开且尚未重连成功
var ErrNotConnected = errors.New("mqtt: not connected")

type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      int // 秒
	AutoReconnect  bool
	ConnectTimeout int // 秒
	TopicPrefix    string
}

// Client 只负责发布，不订阅
type Client struct {
	conn   paho.Client
	qos    byte
	prefix string
	logger *zap.Logger
}

// Dial 连接 broker，ctx 取消时放弃等待
func Dial(ctx context.Context, cfg *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("mqtt").With(zap.String("broker", cfg.Broker))

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(cfg.AutoReconnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(paho.Client) {
			log.Info("connected")
		})
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(time.Duration(cfg.KeepAlive) * time.Second)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second)
	}

	c := newClient(paho.NewClient(opts), cfg, log)
	if err := wait(ctx, c.conn.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return c, nil
}

func newClient(conn paho.Client, cfg *Config, log *zap.Logger) *Client {
	return &Client{conn: conn, qos: cfg.QoS, prefix: cfg.TopicPrefix, logger: log}
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

// NotifyTopic 事件主题：<prefix>/notify/<event>
func NotifyTopic(prefix, event string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + "notify/" + event
}

// Publish 把已编码的事件发布到通知主题，等待 broker 确认或 ctx 结束
func (c *Client) Publish(ctx context.Context, event string, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	topic := NotifyTopic(c.prefix, event)
	if err := wait(ctx, c.conn.Publish(topic, c.qos, false, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

// Close 最多等待 250ms 发完在途消息
func (c *Client) Close() {
	if c.IsConnected() {
		c.conn.Disconnect(250)
		c.logger.Info("disconnected")
	}
}
