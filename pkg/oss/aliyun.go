package oss

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type AliyunConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	BucketName      string
	Domain          string // 自定义访问域名，可选
	BasePath        string // 对象键前缀，如 payment-evidence
}

// AliyunUploader 凭证写入阿里云 OSS
type AliyunUploader struct {
	bucket   *oss.Bucket
	baseURL  string
	basePath string
}

func NewAliyunUploader(cfg *AliyunConfig) (*AliyunUploader, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("aliyun oss client: %w", err)
	}
	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("aliyun oss bucket %s: %w", cfg.BucketName, err)
	}

	return &AliyunUploader{bucket: bucket, baseURL: baseURLFor(cfg), basePath: cfg.BasePath}, nil
}

func baseURLFor(cfg *AliyunConfig) string {
	if cfg.Domain != "" {
		return strings.TrimSuffix(cfg.Domain, "/")
	}
	return "https://" + cfg.BucketName + "." + cfg.Endpoint
}

func (u *AliyunUploader) fullKey(key string) string {
	if u.basePath == "" {
		return key
	}
	return path.Join(u.basePath, key)
}

func (u *AliyunUploader) objectURL(key string) string {
	return u.baseURL + "/" + u.fullKey(key)
}

func (u *AliyunUploader) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	opts := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	if err := u.bucket.PutObject(u.fullKey(key), r, opts...); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return u.objectURL(key), nil
}

func (u *AliyunUploader) Delete(ctx context.Context, key string) error {
	return u.bucket.DeleteObject(u.fullKey(key), oss.WithContext(ctx))
}
