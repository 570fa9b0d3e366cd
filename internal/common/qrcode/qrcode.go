// Package qrcode 生成推广邀请链接二维码
package qrcode

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Generator 二维码生成器
type Generator struct {
	size  int
	level qrcode.RecoveryLevel
}

// Option 生成器选项
type Option func(*Generator)

// WithSize 设置二维码边长（像素）
func WithSize(size int) Option {
	return func(g *Generator) {
		if size > 0 {
			g.size = size
		}
	}
}

// WithHighRecovery 使用 25% 纠错，便于叠加 logo 后打印
func WithHighRecovery() Option {
	return func(g *Generator) {
		g.level = qrcode.High
	}
}

// NewGenerator 创建二维码生成器
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{size: 256, level: qrcode.Medium}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GeneratePNG 生成 PNG 二维码
func (g *Generator) GeneratePNG(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qrcode: empty content")
	}
	return qrcode.Encode(content, g.level, g.size)
}

// GenerateDataURL 生成 data:image/png;base64 形式的二维码
func (g *Generator) GenerateDataURL(content string) (string, error) {
	data, err := g.GeneratePNG(content)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// InviteLink 拼接推广链接，如 https://portal.example.ng/?ref=jane99
func InviteLink(publicURL, linkPath, code string) string {
	base := strings.TrimRight(publicURL, "/")
	if linkPath == "" {
		linkPath = "/?ref="
	}
	if !strings.HasPrefix(linkPath, "/") {
		linkPath = "/" + linkPath
	}
	return base + linkPath + url.QueryEscape(code)
}
