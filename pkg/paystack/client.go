// Package paystack Paystack 支付网关客户端
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dumeirei/school-portal-backend/internal/common/crypto"
	"github.com/dumeirei/school-portal-backend/internal/common/tracing"
)

// 交易状态
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// 回调事件
const (
	EventChargeSuccess = "charge.success"
)

// SignatureHeader 回调签名头
const SignatureHeader = "x-paystack-signature"

// 网关错误
var (
	ErrTimeout          = errors.New("paystack: request timed out")
	ErrGateway          = errors.New("paystack: gateway error")
	ErrInvalidSignature = errors.New("paystack: invalid webhook signature")
)

// Config 客户端配置
type Config struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	Currency    string
	Timeout     time.Duration
}

// Client Paystack 客户端
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient 创建客户端
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// InitializeRequest 初始化交易请求，金额单位为 kobo
type InitializeRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Reference   string                 `json:"reference"`
	Currency    string                 `json:"currency,omitempty"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// InitializeResult 初始化结果
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Customer 付款人
type Customer struct {
	Email string `json:"email"`
}

// Transaction 交易详情
type Transaction struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	GatewayResponse string          `json:"gateway_response"`
	PaidAt          string          `json:"paid_at"`
	Customer        Customer        `json:"customer"`
	Metadata        json.RawMessage `json:"metadata"`
}

// IsSuccess 交易是否成功
func (t *Transaction) IsSuccess() bool {
	return t.Status == StatusSuccess
}

// Event 回调事件
type Event struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize 初始化交易，返回支付跳转地址
func (c *Client) Initialize(ctx context.Context, req *InitializeRequest) (result *InitializeResult, err error) {
	ctx, span := tracing.Start(ctx, "paystack.initialize", tracing.AttrReference.String(req.Reference))
	defer func() { tracing.End(span, err) }()

	if req.Currency == "" {
		req.Currency = c.config.Currency
	}
	if req.CallbackURL == "" {
		req.CallbackURL = c.config.CallbackURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("paystack: marshal request: %w", err)
	}

	result = &InitializeResult{}
	if err = c.do(ctx, http.MethodPost, "/transaction/initialize", body, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Verify 查询交易状态
func (c *Client) Verify(ctx context.Context, reference string) (tx *Transaction, err error) {
	ctx, span := tracing.Start(ctx, "paystack.verify", tracing.AttrReference.String(reference))
	defer func() { tracing.End(span, err) }()

	tx = &Transaction{}
	if err = c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: read body: %v", ErrGateway, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: status %d: invalid body", ErrGateway, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%w: status %d: %s", ErrGateway, resp.StatusCode, env.Message)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrGateway, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ParseWebhook 校验签名并解析回调事件
func ParseWebhook(secretKey string, body []byte, signature string) (*Event, error) {
	if !crypto.VerifyHMACSHA512(secretKey, body, signature) {
		return nil, ErrInvalidSignature
	}
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("paystack: decode webhook: %w", err)
	}
	return &event, nil
}

// ParseWebhook 使用客户端密钥校验回调
func (c *Client) ParseWebhook(body []byte, signature string) (*Event, error) {
	return ParseWebhook(c.config.SecretKey, body, signature)
}
