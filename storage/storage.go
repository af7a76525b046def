package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("object not found")

// ObjectStore 对象存储抽象：按 key 存取二进制文件
type ObjectStore interface {
	// Available 返回存储是否可用。不可用时上传方只记录元数据
	Available() bool
	Upload(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// SignedURL 生成限时访问 URL，失败返回空串与错误
	SignedURL(key string, expiry time.Duration) (string, error)
	BucketName() string
}

// ObjectKey 生成内容寻址的对象 key：checksum 前缀用于去重与分桶
func ObjectKey(userID, filename, checksum string) string {
	prefix := "unknown"
	if len(checksum) >= 8 {
		prefix = checksum[:8]
	}
	return fmt.Sprintf("user-files/%s/%s/%s", userID, prefix, filename)
}
