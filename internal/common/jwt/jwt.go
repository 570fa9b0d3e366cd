// Package jwt 推广员与管理员的令牌签发和校验
package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 主体类型
const (
	UserTypeAffiliate = "affiliate"
	UserTypeAdmin     = "admin"
)

// 令牌用途
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

// 允许的时钟偏差
const clockSkew = 30 * time.Second

var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenNotActive = errors.New("token not active yet")
	ErrTokenWrongUse  = errors.New("token used for wrong purpose")
)

// Subject 令牌主体
type Subject struct {
	ID   int64
	Type string // affiliate, admin
	Role string // 仅管理员
}

func (s Subject) String() string {
	return s.Type + ":" + strconv.FormatInt(s.ID, 10)
}

// Claims 令牌声明
type Claims struct {
	UserID   int64  `json:"user_id"`
	UserType string `json:"user_type"`
	Role     string `json:"role,omitempty"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// Principal 还原令牌主体
func (c *Claims) Principal() Subject {
	return Subject{ID: c.UserID, Type: c.UserType, Role: c.Role}
}

type Config struct {
	Secret            string
	AccessExpireTime  time.Duration
	RefreshExpireTime time.Duration
	Issuer            string
}

// TokenPair 登录与刷新接口返回的令牌对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Manager 令牌管理器，HS256 签名
type Manager struct {
	config *Config
	key    []byte
	now    func() time.Time
	parser *jwt.Parser
}

func NewManager(config *Config) *Manager {
	m := &Manager{config: config, key: []byte(config.Secret), now: time.Now}
	m.parser = m.newParser()
	return m
}

// WithClock 替换时钟，测试用
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	m.parser = m.newParser()
	return m
}

func (m *Manager) newParser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
}

// Issue 为主体签发访问令牌和刷新令牌，两者共享签发时间但 jti 不同
func (m *Manager) Issue(sub Subject) (*TokenPair, error) {
	now := m.now()
	accessExp := now.Add(m.config.AccessExpireTime)

	access, err := m.sign(sub, TokenUseAccess, now, accessExp)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(sub, TokenUseRefresh, now, now.Add(m.config.RefreshExpireTime))
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp.Unix()}, nil
}

func (m *Manager) sign(sub Subject, use string, now, exp time.Time) (string, error) {
	claims := &Claims{
		UserID:   sub.ID,
		UserType: sub.Type,
		Role:     sub.Role,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Subject:   sub.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
}

// Parse 校验签名、签发方和有效期，并要求令牌用途为 use
func (m *Manager) Parse(tokenString, use string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	if claims.UserID <= 0 || claims.Principal().String() != claims.Subject {
		return nil, ErrTokenInvalid
	}
	if claims.TokenUse != use {
		return nil, ErrTokenWrongUse
	}
	return claims, nil
}

// ParseAccessToken 解析访问令牌
func (m *Manager) ParseAccessToken(tokenString string) (*Claims, error) {
	return m.Parse(tokenString, TokenUseAccess)
}

// ParseRefreshToken 解析刷新令牌；是否换发由调用方结合主体当前状态决定
func (m *Manager) ParseRefreshToken(tokenString string) (*Claims, error) {
	return m.Parse(tokenString, TokenUseRefresh)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrTokenNotActive
	}
	return ErrTokenInvalid
}
