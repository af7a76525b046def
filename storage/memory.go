package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore 内存对象存储，用于测试和无 GCS 配置的本地部署
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	bucket  string

	// FailDownloads 置为 true 时所有下载返回错误，测试降级路径用
	FailDownloads bool
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		bucket:  bucket,
	}
}

func (s *MemoryStore) Available() bool { return true }

func (s *MemoryStore) BucketName() string { return s.bucket }

func (s *MemoryStore) Upload(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[key] = buf
	return fmt.Sprintf("memory://%s/%s", s.bucket, key), nil
}

func (s *MemoryStore) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailDownloads {
		return nil, fmt.Errorf("download disabled for %s", key)
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) SignedURL(key string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", s.bucket, key, int(expiry.Seconds())), nil
}

// Len 返回存储的对象数，测试断言去重用
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
