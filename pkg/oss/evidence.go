// Package oss 线下付款凭证的对象存储
package oss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedFileType = errors.New("oss: unsupported evidence file type")
	ErrFileTooLarge        = errors.New("oss: evidence file too large")
	ErrContentMismatch     = errors.New("oss: evidence content does not match extension")
)

// Uploader 对象写入与删除，Upload 返回可访问的 URL
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// 允许的凭证格式
var evidenceTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

// 文件头嗅探长度
const sniffLen = 512

// EvidenceObjectKey yyyy/mm/dd/<uuid><ext>，扩展名转小写
func EvidenceObjectKey(filename string, now time.Time) string {
	return now.Format("2006/01/02") + "/" + uuid.NewString() + strings.ToLower(path.Ext(filename))
}

func ContentTypeFor(filename string) string {
	if ct, ok := evidenceTypes[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ValidateEvidenceFile 依次检查扩展名、声明大小与文件头
// 返回的 reader 从头包含完整内容
func ValidateEvidenceFile(filename string, size, maxSize int64, r io.Reader) (io.Reader, error) {
	want, ok := evidenceTypes[strings.ToLower(path.Ext(filename))]
	if !ok {
		return nil, ErrUnsupportedFileType
	}
	if maxSize > 0 && size > maxSize {
		return nil, ErrFileTooLarge
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	switch {
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
	default:
		return nil, fmt.Errorf("read evidence file: %w", err)
	}
	head = head[:n]

	if !strings.HasPrefix(http.DetectContentType(head), want) {
		return nil, ErrContentMismatch
	}
	return io.MultiReader(bytes.NewReader(head), r), nil
}
