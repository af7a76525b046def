package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Msparihar/ReddiChat/agent"
	"github.com/Msparihar/ReddiChat/auth"
	"github.com/Msparihar/ReddiChat/chat"
	"github.com/Msparihar/ReddiChat/ingest"
)

const requestTimeout = 120 * time.Second

// ChatHandler 处理对话请求：表单解析、文件读取、流式与非流式响应
type ChatHandler struct {
	Chat *chat.Service
}

// Handle 处理 POST /api/v1/chat：multipart 表单，一次性返回完整结果
func (h *ChatHandler) Handle(c *gin.Context) {
	user := auth.CurrentUser(c)

	message, conversationID, uploads, ok := h.parseForm(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	resp, err := h.Chat.Send(ctx, user, conversationID, message, uploads)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleStream 处理 POST /api/v1/chat/stream：SSE 推送增量内容与工具事件，
// done 事件携带完整响应，最后发送 [DONE] 哨兵
func (h *ChatHandler) HandleStream(c *gin.Context) {
	user := auth.CurrentUser(c)

	message, conversationID, uploads, ok := h.parseForm(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	events, err := h.Chat.Stream(ctx, user, conversationID, message, uploads)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, fok := c.Writer.(http.Flusher)
	if !fok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			switch ev.Type {
			case agent.EventContentDelta:
				writeSSE(c.Writer, flusher, gin.H{"type": "content", "delta": ev.Delta})
			case agent.EventToolStart:
				writeSSE(c.Writer, flusher, gin.H{"type": "tool_start", "tool": ev.ToolName})
			case agent.EventToolEnd:
				writeSSE(c.Writer, flusher, gin.H{"type": "tool_end", "tool": ev.ToolName})
			case agent.EventDone:
				writeSSE(c.Writer, flusher, gin.H{
					"type":             "done",
					"conversation_id":  ev.Response.ConversationID,
					"message_id":       ev.Response.MessageID,
					"content":          ev.Response.Response,
					"sources":          ev.Response.Sources,
					"tool_used":        ev.Response.ToolUsed,
					"file_attachments": ev.Response.FileAttachments,
				})
				fmt.Fprintf(c.Writer, "data: [DONE]\n\n")
				flusher.Flush()
				return
			case agent.EventError:
				writeSSE(c.Writer, flusher, gin.H{"type": "error", "content": ev.Err})
				fmt.Fprintf(c.Writer, "data: [DONE]\n\n")
				flusher.Flush()
				return
			}
		case <-timer.C:
			log.Printf("[Chat] stream timeout for user %s", user.ID)
			writeSSE(c.Writer, flusher, gin.H{"type": "error", "content": "request timed out"})
			return
		}
	}
}

// parseForm 解析 multipart 表单并读取全部上传文件。
// 出错时已写入响应，返回 ok=false
func (h *ChatHandler) parseForm(c *gin.Context) (message, conversationID string, uploads []chat.Upload, ok bool) {
	message = c.PostForm("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return "", "", nil, false
	}
	conversationID = c.PostForm("conversation_id")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid form: %v", err)})
		return "", "", nil, false
	}

	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("cannot read file %s", fh.Filename)})
			return "", "", nil, false
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("cannot read file %s", fh.Filename)})
			return "", "", nil, false
		}
		uploads = append(uploads, chat.Upload{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return message, conversationID, uploads, true
}

func (h *ChatHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, chat.ErrInvalidConversationID),
		errors.Is(err, ingest.ErrFileTooLarge),
		errors.Is(err, ingest.ErrUnsupportedType),
		errors.Is(err, ingest.ErrMissingFilename):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[Chat] request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
