package sms

import (
	"context"
	"sync"
)

// MockSender 只记录不发送，开发环境与测试使用
type MockSender struct {
	mu   sync.Mutex
	sent []Message
	Err  error // 非空时 Send 直接返回该错误
}

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (s *MockSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, msg)
	return nil
}

// Messages 已发送消息的副本
func (s *MockSender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

// Last 最后一条，没有时返回 false
func (s *MockSender) Last() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return Message{}, false
	}
	return s.sent[len(s.sent)-1], true
}

func (s *MockSender) Reset() {
	s.mu.Lock()
	s.sent = nil
	s.mu.Unlock()
}
