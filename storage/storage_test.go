package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("user-1", "photo.jpg", "abcdef1234567890")
	if key != "user-files/user-1/abcdef12/photo.jpg" {
		t.Errorf("unexpected key: %s", key)
	}

	// checksum 过短时退化为 unknown 前缀
	key = ObjectKey("user-1", "photo.jpg", "")
	if key != "user-files/user-1/unknown/photo.jpg" {
		t.Errorf("unexpected key for empty checksum: %s", key)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("test-bucket")

	url, err := store.Upload(ctx, "k1", []byte("hello"), "text/plain", map[string]string{"user_id": "u1"})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !strings.HasPrefix(url, "memory://test-bucket/") {
		t.Errorf("unexpected url: %s", url)
	}

	data, err := store.Download(ctx, "k1")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected 'hello', got '%s'", data)
	}

	signed, err := store.SignedURL("k1", 24*time.Hour)
	if err != nil {
		t.Fatalf("signed url failed: %v", err)
	}
	if signed == "" {
		t.Error("expected non-empty signed url")
	}

	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Download(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore("b")
	if _, err := store.Download(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.SignedURL("missing", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
