package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Msparihar/ReddiChat/agent"
	"github.com/Msparihar/ReddiChat/ingest"
	"github.com/Msparihar/ReddiChat/model"
	"github.com/Msparihar/ReddiChat/storage"
)

// 会话标题取自首条消息，超长截断
const maxTitleLen = 50

// Upload 是 handler 从 multipart 表单里读出的一个文件
type Upload struct {
	Filename string
	MimeType string
	Data     []byte
}

// AttachmentInfo 返回给客户端的附件摘要，URL 为限时签名地址
type AttachmentInfo struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	FileType    string    `json:"file_type"`
	FileSize    int64     `json:"file_size"`
	MimeType    string    `json:"mime_type"`
	URL         string    `json:"url,omitempty"`
	IsDuplicate bool      `json:"is_duplicate"`
}

// Response 一次完整对话交换的结果
type Response struct {
	Response        string           `json:"response"`
	ConversationID  uuid.UUID        `json:"conversation_id"`
	MessageID       uuid.UUID        `json:"message_id"`
	Sources         []model.Source   `json:"sources"`
	ToolUsed        string           `json:"tool_used,omitempty"`
	FilesProcessed  int              `json:"files_processed"`
	FileAttachments []AttachmentInfo `json:"file_attachments"`
}

// Service 对话编排：会话管理、文件入库、历史重建、模型调用、落库
type Service struct {
	db               *gorm.DB
	store            storage.ObjectStore
	ingest           *ingest.Service
	agent            *agent.Agent
	signedURLExpiry  time.Duration
	attachmentWindow time.Duration
}

func NewService(db *gorm.DB, store storage.ObjectStore, ing *ingest.Service, ag *agent.Agent, signedURLExpiry, attachmentWindow time.Duration) *Service {
	return &Service{
		db:               db,
		store:            store,
		ingest:           ing,
		agent:            ag,
		signedURLExpiry:  signedURLExpiry,
		attachmentWindow: attachmentWindow,
	}
}

// Send 处理一次非流式对话：入库文件、重建历史、调用模型、保存双方消息
func (s *Service) Send(ctx context.Context, user *model.User, conversationID, message string, uploads []Upload) (*Response, error) {
	conv, attachments, turns, err := s.prepare(ctx, user, conversationID, message, uploads)
	if err != nil {
		return nil, err
	}

	result := s.agent.Run(ctx, turns)

	asstMsg, err := s.saveExchange(conv, user, message, attachments, result)
	if err != nil {
		return nil, err
	}
	return s.assembleResponse(conv, asstMsg, result, attachments, len(uploads)), nil
}

// StreamEvent 流式对话事件。Done 置位时 Response 为完整结果
type StreamEvent struct {
	Type       agent.EventType
	Delta      string
	ToolName   string
	ToolOutput json.RawMessage
	Err        string
	Response   *Response
}

// Stream 处理一次流式对话。准备阶段的错误同步返回；
// 模型与工具事件经通道转发，done 事件携带完整响应且已落库
func (s *Service) Stream(ctx context.Context, user *model.User, conversationID, message string, uploads []Upload) (<-chan StreamEvent, error) {
	conv, attachments, turns, err := s.prepare(ctx, user, conversationID, message, uploads)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)
		for ev := range s.agent.RunStream(ctx, turns) {
			switch ev.Type {
			case agent.EventDone:
				asstMsg, err := s.saveExchange(conv, user, message, attachments, ev.Result)
				if err != nil {
					log.Printf("[Chat] save exchange failed: %v", err)
					out <- StreamEvent{Type: agent.EventError, Err: "failed to save conversation"}
					return
				}
				out <- StreamEvent{
					Type:     agent.EventDone,
					Response: s.assembleResponse(conv, asstMsg, ev.Result, attachments, len(uploads)),
				}
			case agent.EventError:
				out <- StreamEvent{Type: agent.EventError, Err: ev.Err}
			case agent.EventToolStart:
				out <- StreamEvent{Type: agent.EventToolStart, ToolName: ev.ToolName}
			case agent.EventToolEnd:
				out <- StreamEvent{Type: agent.EventToolEnd, ToolName: ev.ToolName, ToolOutput: ev.ToolOutput}
			case agent.EventContentDelta:
				out <- StreamEvent{Type: agent.EventContentDelta, Delta: ev.Delta}
			}
		}
	}()
	return out, nil
}

type processedUpload struct {
	file   *ingest.ProcessedFile
	record *model.FileAttachment
}

// prepare 完成模型调用前的全部准备：会话、文件、历史
func (s *Service) prepare(ctx context.Context, user *model.User, conversationID, message string, uploads []Upload) (*model.Conversation, []processedUpload, []agent.Turn, error) {
	conv, err := s.getOrCreateConversation(user.ID, conversationID, message)
	if err != nil {
		return nil, nil, nil, err
	}

	attachments := make([]processedUpload, 0, len(uploads))
	for _, up := range uploads {
		pf, err := s.ingest.Process(user.ID, up.Filename, up.MimeType, up.Data)
		if err != nil {
			return nil, nil, nil, err
		}
		record, err := s.storeFile(ctx, user.ID, pf)
		if err != nil {
			return nil, nil, nil, err
		}
		attachments = append(attachments, processedUpload{file: pf, record: record})
	}

	turns, err := s.buildHistory(ctx, conv)
	if err != nil {
		return nil, nil, nil, err
	}
	turns = append(turns, currentTurn(message, attachments))
	return conv, attachments, turns, nil
}

func (s *Service) getOrCreateConversation(userID uuid.UUID, conversationID, message string) (*model.Conversation, error) {
	if conversationID != "" {
		id, err := uuid.Parse(conversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidConversationID, conversationID)
		}
		var conv model.Conversation
		if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&conv).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, ErrConversationNotFound
			}
			return nil, err
		}
		return &conv, nil
	}

	conv := &model.Conversation{UserID: userID, Title: titleFrom(message)}
	if err := s.db.Create(conv).Error; err != nil {
		return nil, err
	}
	log.Printf("[Chat] created conversation %s for user %s", conv.ID, userID)
	return conv, nil
}

func titleFrom(message string) string {
	runes := []rune(message)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen]) + "..."
	}
	return message
}

// storeFile 把处理后的文件写入对象存储并建档。重复文件复用已有记录
func (s *Service) storeFile(ctx context.Context, userID uuid.UUID, pf *ingest.ProcessedFile) (*model.FileAttachment, error) {
	if pf.IsDuplicate {
		return pf.Existing, nil
	}

	storedName := fmt.Sprintf("%s_%s", uuid.New().String()[:8], pf.Filename)
	key := storage.ObjectKey(userID.String(), storedName, pf.Checksum)

	var objectURL string
	if s.store.Available() {
		url, err := s.store.Upload(ctx, key, pf.Data, pf.MimeType, map[string]string{
			"original_filename": pf.Filename,
			"user_id":           userID.String(),
			"checksum":          pf.Checksum,
			"file_type":         pf.FileType,
		})
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", pf.Filename, err)
		}
		objectURL = url
	} else {
		// 存储不可用时仍建档，内容待补传
		log.Printf("[Chat] object store unavailable, recording metadata only for %s", pf.Filename)
	}

	record := &model.FileAttachment{
		UserID:           userID,
		Filename:         storedName,
		OriginalFilename: pf.Filename,
		FileType:         pf.FileType,
		FileSize:         pf.Size,
		MimeType:         pf.MimeType,
		Bucket:           s.store.BucketName(),
		ObjectKey:        key,
		ObjectURL:        objectURL,
		ProcessingStatus: model.StatusProcessed,
		Checksum:         pf.Checksum,
		FileMetadata:     fileMetadata(pf),
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func fileMetadata(pf *ingest.ProcessedFile) datatypes.JSON {
	var meta map[string]any
	switch pf.FileType {
	case model.FileTypeImage:
		if pf.ImageMetadata != nil {
			meta = pf.ImageMetadata
		}
	case model.FileTypePDF:
		meta = map[string]any{
			"text_extracted": pf.ExtractedText != "",
			"text_length":    len(pf.ExtractedText),
		}
	}
	if meta == nil {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// buildHistory 按时间顺序重建会话上下文。近期附件从对象存储取回原始
// 内容重新编入，过期或取回失败的只留文字占位
func (s *Service) buildHistory(ctx context.Context, conv *model.Conversation) ([]agent.Turn, error) {
	var messages []model.Message
	err := s.db.
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

	turns := make([]agent.Turn, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == model.RoleAssistant {
			turns = append(turns, agent.Turn{Role: model.RoleAssistant, Content: msg.Content})
			continue
		}
		if !msg.HasAttachments || len(msg.Attachments) == 0 {
			turns = append(turns, agent.Turn{Role: model.RoleUser, Content: msg.Content})
			continue
		}

		parts := []agent.Part{agent.TextPart(msg.Content)}
		for _, ma := range msg.Attachments {
			parts = append(parts, s.rehydrate(ctx, &ma.FileAttachment))
		}
		turns = append(turns, agent.Turn{Role: model.RoleUser, Parts: parts})
	}
	return turns, nil
}

// rehydrate 把历史附件还原为模型可读内容
func (s *Service) rehydrate(ctx context.Context, fa *model.FileAttachment) agent.Part {
	placeholder := agent.TextPart(fmt.Sprintf("[File: %s - Content unavailable]", fa.OriginalFilename))

	if time.Since(fa.CreatedAt) > s.attachmentWindow {
		return placeholder
	}
	if !s.store.Available() || fa.ObjectKey == "" {
		return placeholder
	}

	data, err := s.store.Download(ctx, fa.ObjectKey)
	if err != nil {
		log.Printf("[Chat] rehydrate %s failed: %v", fa.ObjectKey, err)
		return placeholder
	}

	switch fa.FileType {
	case model.FileTypeImage:
		return agent.ImagePart(fa.MimeType, data)
	case model.FileTypeAudio, model.FileTypeVideo:
		return agent.MediaPart(fa.MimeType, data)
	case model.FileTypePDF:
		text := ingest.ExtractPDFText(data)
		return agent.TextPart(fmt.Sprintf("[PDF: %s]\n%s", fa.OriginalFilename, text))
	default:
		return placeholder
	}
}

// currentTurn 构建本次用户输入，新上传文件内容直接随消息编入
func currentTurn(message string, attachments []processedUpload) agent.Turn {
	if len(attachments) == 0 {
		return agent.Turn{Role: model.RoleUser, Content: message}
	}
	parts := []agent.Part{agent.TextPart(message)}
	for _, att := range attachments {
		pf := att.file
		switch pf.FileType {
		case model.FileTypeImage:
			parts = append(parts, agent.ImagePart(pf.MimeType, pf.Data))
		case model.FileTypeAudio, model.FileTypeVideo:
			parts = append(parts, agent.MediaPart(pf.MimeType, pf.Data))
		case model.FileTypePDF:
			parts = append(parts, agent.TextPart(fmt.Sprintf("[PDF: %s]\n%s", pf.Filename, pf.ExtractedText)))
		}
	}
	return agent.Turn{Role: model.RoleUser, Parts: parts}
}

// saveExchange 成对落库用户消息与助手消息，并刷新会话时间。
// 模型降级响应同样落库，保持会话完整
func (s *Service) saveExchange(conv *model.Conversation, user *model.User, message string, attachments []processedUpload, result *agent.Result) (*model.Message, error) {
	userMsg := &model.Message{
		ConversationID: conv.ID,
		UserID:         user.ID,
		Role:           model.RoleUser,
		Content:        message,
		HasAttachments: len(attachments) > 0,
	}
	if err := s.db.Create(userMsg).Error; err != nil {
		return nil, err
	}
	for i, att := range attachments {
		ma := &model.MessageAttachment{
			MessageID:        userMsg.ID,
			FileAttachmentID: att.record.ID,
			AttachmentOrder:  i,
		}
		if err := s.db.Create(ma).Error; err != nil {
			return nil, err
		}
	}

	asstMsg := &model.Message{
		ConversationID: conv.ID,
		UserID:         user.ID,
		Role:           model.RoleAssistant,
		Content:        result.Content,
		ToolUsed:       result.ToolUsed,
	}
	if len(result.Sources) > 0 {
		raw, err := json.Marshal(result.Sources)
		if err == nil {
			asstMsg.Sources = datatypes.JSON(raw)
		}
	}
	if err := s.db.Create(asstMsg).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(conv).Update("updated_at", time.Now()).Error; err != nil {
		log.Printf("[Chat] touch conversation %s failed: %v", conv.ID, err)
	}
	return asstMsg, nil
}

func (s *Service) assembleResponse(conv *model.Conversation, asstMsg *model.Message, result *agent.Result, attachments []processedUpload, filesProcessed int) *Response {
	infos := make([]AttachmentInfo, 0, len(attachments))
	for _, att := range attachments {
		infos = append(infos, AttachmentInfo{
			ID:          att.record.ID,
			Filename:    att.record.OriginalFilename,
			FileType:    att.record.FileType,
			FileSize:    att.record.FileSize,
			MimeType:    att.record.MimeType,
			URL:         s.attachmentURL(att.record),
			IsDuplicate: att.file.IsDuplicate,
		})
	}
	return &Response{
		Response:        result.Content,
		ConversationID:  conv.ID,
		MessageID:       asstMsg.ID,
		Sources:         result.Sources,
		ToolUsed:        result.ToolUsed,
		FilesProcessed:  filesProcessed,
		FileAttachments: infos,
	}
}

// attachmentURL 尽力生成签名地址，失败退回对象 URL
func (s *Service) attachmentURL(fa *model.FileAttachment) string {
	if fa.ObjectKey == "" {
		return ""
	}
	url, err := s.store.SignedURL(fa.ObjectKey, s.signedURLExpiry)
	if err != nil {
		return fa.ObjectURL
	}
	return url
}
