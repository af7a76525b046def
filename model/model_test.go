package model

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestInitDB(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}

	// 验证表已创建
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	defer sqlDB.Close()

	for _, table := range []string{"users", "conversations", "messages", "file_attachments", "message_attachments"} {
		var count int
		err = sqlDB.QueryRow("SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("%s table not created", table)
		}
	}
}

func TestCRUD(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := InitDB(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}

	user := User{Email: "alice@example.com", Name: "Alice", Provider: "google", ProviderID: "g-1"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.ID == uuid.Nil {
		t.Fatal("expected user ID to be generated")
	}

	conv := Conversation{UserID: user.ID, Title: "Test Conversation"}
	if err := db.Create(&conv).Error; err != nil {
		t.Fatalf("create conversation failed: %v", err)
	}

	sources, _ := json.Marshal([]Source{{Title: "post", Subreddit: "golang", Score: 42}})
	msg := Message{
		ConversationID: conv.ID,
		UserID:         user.ID,
		Role:           RoleAssistant,
		Content:        "Hello",
		Sources:        sources,
		ToolUsed:       "search_reddit",
	}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatalf("create message failed: %v", err)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected message timestamp to be set")
	}

	var loaded Message
	if err := db.First(&loaded, "id = ?", msg.ID).Error; err != nil {
		t.Fatalf("query message failed: %v", err)
	}
	if loaded.Content != "Hello" {
		t.Errorf("expected content 'Hello', got '%s'", loaded.Content)
	}
	if loaded.ToolUsed != "search_reddit" {
		t.Errorf("expected tool_used 'search_reddit', got '%s'", loaded.ToolUsed)
	}

	var parsed []Source
	if err := json.Unmarshal(loaded.Sources, &parsed); err != nil {
		t.Fatalf("unmarshal sources failed: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Subreddit != "golang" {
		t.Errorf("unexpected sources: %+v", parsed)
	}
}

func TestChecksumUniquePerUser(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := InitDB(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}

	alice := User{Email: "alice@example.com", Name: "Alice", Provider: "google", ProviderID: "g-1"}
	bob := User{Email: "bob@example.com", Name: "Bob", Provider: "github", ProviderID: "gh-2"}
	db.Create(&alice)
	db.Create(&bob)

	file := func(userID uuid.UUID) *FileAttachment {
		return &FileAttachment{
			UserID:           userID,
			Filename:         "stored.jpg",
			OriginalFilename: "photo.jpg",
			FileType:         FileTypeImage,
			FileSize:         1024,
			MimeType:         "image/jpeg",
			Bucket:           "test",
			ObjectKey:        "k",
			ObjectURL:        "u",
			Checksum:         "abc123",
		}
	}

	if err := db.Create(file(alice.ID)).Error; err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	// 同用户同 checksum 应违反唯一索引
	if err := db.Create(file(alice.ID)).Error; err == nil {
		t.Error("expected unique index violation for duplicate checksum per user")
	}
	// 不同用户同 checksum 允许
	if err := db.Create(file(bob.ID)).Error; err != nil {
		t.Errorf("same checksum for another user should be allowed: %v", err)
	}
}

func TestMessageAttachmentOrder(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := InitDB(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}

	user := User{Email: "a@b.c", Name: "A", Provider: "google", ProviderID: "1"}
	db.Create(&user)
	conv := Conversation{UserID: user.ID, Title: "t"}
	db.Create(&conv)
	msg := Message{ConversationID: conv.ID, UserID: user.ID, Role: RoleUser, Content: "look", HasAttachments: true}
	db.Create(&msg)

	for i := 0; i < 3; i++ {
		fa := FileAttachment{
			UserID: user.ID, Filename: "f", OriginalFilename: "f", FileType: FileTypeImage,
			FileSize: 1, MimeType: "image/png", Bucket: "b", ObjectKey: "k", ObjectURL: "u",
			Checksum: uuid.NewString(),
		}
		db.Create(&fa)
		db.Create(&MessageAttachment{MessageID: msg.ID, FileAttachmentID: fa.ID, AttachmentOrder: 2 - i})
	}

	var links []MessageAttachment
	if err := db.Where("message_id = ?", msg.ID).Order("attachment_order").Find(&links).Error; err != nil {
		t.Fatal(err)
	}
	if len(links) != 3 {
		t.Fatalf("expected 3 attachment links, got %d", len(links))
	}
	for i, link := range links {
		if link.AttachmentOrder != i {
			t.Errorf("expected order %d at position %d, got %d", i, i, link.AttachmentOrder)
		}
	}
}
