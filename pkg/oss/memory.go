package oss

import (
	"context"
	"io"
	"sync"
)

// MockUploader 内存存储，开发环境与测试使用
type MockUploader struct {
	mu    sync.Mutex
	Files map[string][]byte
	Err   error // 非空时 Upload 返回该错误
}

func NewMockUploader() *MockUploader {
	return &MockUploader{Files: make(map[string][]byte)}
}

func (u *MockUploader) Upload(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	if u.Err != nil {
		return "", u.Err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	u.Files[key] = data
	u.mu.Unlock()
	return "https://mock-oss.example.com/" + key, nil
}

func (u *MockUploader) Delete(_ context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.Files, key)
	return nil
}
