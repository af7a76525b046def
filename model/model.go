package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// 文件类型
const (
	FileTypeImage = "image"
	FileTypeAudio = "audio"
	FileTypeVideo = "video"
	FileTypePDF   = "pdf"
)

// 文件处理状态
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email      string    `gorm:"uniqueIndex;not null" json:"email"`
	Name       string    `gorm:"not null" json:"name"`
	AvatarURL  string    `json:"avatar_url"`
	Provider   string    `gorm:"not null" json:"provider"` // "google" / "github"
	ProviderID string    `gorm:"not null" json:"provider_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Title     string    `gorm:"not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;index;not null" json:"conversation_id"`
	UserID         uuid.UUID      `gorm:"type:uuid;index;not null" json:"user_id"`
	Role           string         `gorm:"not null" json:"role"` // "user" or "assistant"
	Content        string         `gorm:"type:text;not null" json:"content"`
	Sources        datatypes.JSON `json:"sources,omitempty"`
	ToolUsed       string         `json:"tool_used,omitempty"`
	HasAttachments bool           `gorm:"default:false" json:"has_attachments"`
	Timestamp      time.Time      `gorm:"index" json:"timestamp"`

	Attachments []MessageAttachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return nil
}

// FileAttachment 上传文件记录。checksum 按用户唯一，作为去重键
type FileAttachment struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID      `gorm:"type:uuid;index;not null;uniqueIndex:idx_user_checksum" json:"user_id"`
	Filename         string         `gorm:"size:255;not null" json:"filename"`
	OriginalFilename string         `gorm:"size:255;not null" json:"original_filename"`
	FileType         string         `gorm:"size:50;not null" json:"file_type"` // image/audio/video/pdf
	FileSize         int64          `gorm:"not null" json:"file_size"`
	MimeType         string         `gorm:"size:100;not null" json:"mime_type"`
	Bucket           string         `gorm:"size:100;not null" json:"bucket"`
	ObjectKey        string         `gorm:"size:255;not null" json:"object_key"`
	ObjectURL        string         `gorm:"type:text;not null" json:"object_url"`
	ProcessingStatus string         `gorm:"size:20;default:processed" json:"processing_status"`
	FileMetadata     datatypes.JSON `json:"file_metadata,omitempty"`
	Checksum         string         `gorm:"size:64;uniqueIndex:idx_user_checksum" json:"checksum"`
	CreatedAt        time.Time      `json:"created_at"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
}

func (f *FileAttachment) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// MessageAttachment 消息与文件的关联，attachment_order 保留消息内附件顺序
type MessageAttachment struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID        uuid.UUID `gorm:"type:uuid;index;not null" json:"message_id"`
	FileAttachmentID uuid.UUID `gorm:"type:uuid;index;not null" json:"file_attachment_id"`
	AttachmentOrder  int       `gorm:"default:0" json:"attachment_order"`
	CreatedAt        time.Time `json:"created_at"`

	FileAttachment FileAttachment `gorm:"foreignKey:FileAttachmentID" json:"file_attachment,omitempty"`
}

func (ma *MessageAttachment) BeforeCreate(tx *gorm.DB) error {
	if ma.ID == uuid.Nil {
		ma.ID = uuid.New()
	}
	return nil
}

// Source 搜索结果引用，序列化后存在 Message.Sources，不单独建表
type Source struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	Subreddit   string `json:"subreddit"`
	Author      string `json:"author"`
	Score       int    `json:"score"`
	NumComments int    `json:"num_comments"`
	CreatedUTC  string `json:"created_utc"`
	Permalink   string `json:"permalink"`
}

func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&User{},
		&Conversation{},
		&Message{},
		&FileAttachment{},
		&MessageAttachment{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
