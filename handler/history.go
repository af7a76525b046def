package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Msparihar/ReddiChat/auth"
	"github.com/Msparihar/ReddiChat/chat"
)

// HistoryHandler 处理会话历史的查询与删除
type HistoryHandler struct {
	Chat *chat.Service
}

// List 处理 GET /api/v1/chat/history/conversations
func (h *HistoryHandler) List(c *gin.Context) {
	user := auth.CurrentUser(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	result, err := h.Chat.ListConversations(user, page, size)
	if err != nil {
		log.Printf("[History] list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get 处理 GET /api/v1/chat/history/conversations/:id
func (h *HistoryHandler) Get(c *gin.Context) {
	user := auth.CurrentUser(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	detail, err := h.Chat.GetConversation(user, id)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		log.Printf("[History] get failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Delete 处理 DELETE /api/v1/chat/history/conversations/:id
func (h *HistoryHandler) Delete(c *gin.Context) {
	user := auth.CurrentUser(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	if err := h.Chat.DeleteConversation(user, id); err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		log.Printf("[History] delete failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "conversation deleted"})
}
