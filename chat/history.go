package chat

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Msparihar/ReddiChat/model"
)

var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrInvalidConversationID = errors.New("invalid conversation id")
)

// ConversationSummary 列表项，不含消息体
type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	MessageCount int64     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type UserInfo struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
	User          UserInfo              `json:"user"`
}

// MessageDetail 带解码后的引用与附件信息的单条消息
type MessageDetail struct {
	ID             uuid.UUID        `json:"id"`
	Role           string           `json:"role"`
	Content        string           `json:"content"`
	Sources        []model.Source   `json:"sources"`
	ToolUsed       string           `json:"tool_used,omitempty"`
	HasAttachments bool             `json:"has_attachments"`
	Timestamp      time.Time        `json:"timestamp"`
	Attachments    []AttachmentInfo `json:"attachments"`
}

type ConversationDetail struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []MessageDetail `json:"messages"`
}

// ListConversations 按更新时间倒序分页返回用户会话
func (s *Service) ListConversations(user *model.User, page, size int) (*ConversationPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	if err := s.db.Model(&model.Conversation{}).Where("user_id = ?", user.ID).Count(&total).Error; err != nil {
		return nil, err
	}

	var convs []model.Conversation
	err := s.db.Where("user_id = ?", user.ID).
		Order("updated_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&convs).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		var count int64
		if err := s.db.Model(&model.Message{}).Where("conversation_id = ?", conv.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		summaries = append(summaries, ConversationSummary{
			ID:           conv.ID,
			Title:        conv.Title,
			MessageCount: count,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
		})
	}

	pages := int((total + int64(size) - 1) / int64(size))
	return &ConversationPage{
		Conversations: summaries,
		Pagination:    Pagination{Page: page, Size: size, Total: total, Pages: pages},
		User:          UserInfo{ID: user.ID, Email: user.Email, Name: user.Name},
	}, nil
}

// GetConversation 返回单个会话的全部消息，附件带签名地址
func (s *Service) GetConversation(user *model.User, conversationID uuid.UUID) (*ConversationDetail, error) {
	var conv model.Conversation
	err := s.db.Where("id = ? AND user_id = ?", conversationID, user.ID).First(&conv).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var messages []model.Message
	err = s.db.
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("attachment_order ASC")
		}).
		Preload("Attachments.FileAttachment").
		Where("conversation_id = ?", conv.ID).
		Order("timestamp ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	details := make([]MessageDetail, 0, len(messages))
	for _, msg := range messages {
		detail := MessageDetail{
			ID:             msg.ID,
			Role:           msg.Role,
			Content:        msg.Content,
			Sources:        []model.Source{},
			ToolUsed:       msg.ToolUsed,
			HasAttachments: msg.HasAttachments,
			Timestamp:      msg.Timestamp,
			Attachments:    []AttachmentInfo{},
		}
		if len(msg.Sources) > 0 {
			var sources []model.Source
			if err := json.Unmarshal(msg.Sources, &sources); err == nil {
				detail.Sources = sources
			}
		}
		for _, ma := range msg.Attachments {
			fa := ma.FileAttachment
			detail.Attachments = append(detail.Attachments, AttachmentInfo{
				ID:       fa.ID,
				Filename: fa.OriginalFilename,
				FileType: fa.FileType,
				FileSize: fa.FileSize,
				MimeType: fa.MimeType,
				URL:      s.attachmentURL(&fa),
			})
		}
		details = append(details, detail)
	}

	return &ConversationDetail{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  details,
	}, nil
}

// DeleteConversation 在事务内逐层删除关联与消息，最后删除会话。
// 对象存储里的文件保留，同一内容可能被其他消息复用
func (s *Service) DeleteConversation(user *model.User, conversationID uuid.UUID) error {
	var conv model.Conversation
	err := s.db.Where("id = ? AND user_id = ?", conversationID, user.ID).First(&conv).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrConversationNotFound
		}
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&model.Message{}).Select("id").Where("conversation_id = ?", conv.ID)
		if err := tx.Where("message_id IN (?)", sub).Delete(&model.MessageAttachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&conv).Error
	})
}
