package handler

import (
	"net/http"
	"strconv"

	"github.com/ai-platform/aiplatform/internal/auth"
	"github.com/ai-platform/aiplatform/internal/model"
	"github.com/ai-platform/aiplatform/internal/service"
	"github.com/gin-gonic/gin"
)

// ChatHandler manages chat sessions and message dispatch
type ChatHandler struct {
	chats     *service.ChatService
	router    *service.ModelRouter
	retention *service.RetentionService
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(chats *service.ChatService, router *service.ModelRouter, retention *service.RetentionService) *ChatHandler {
	return &ChatHandler{chats: chats, router: router, retention: retention}
}

func chatID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return uint(id), true
}

// Create starts a new chat session. The user's max-chat cap is enforced
// here, at creation time.
func (h *ChatHandler) Create(c *gin.Context) {
	var req model.ChatCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := auth.UserID(c)

	settings, err := h.retention.Settings(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	count, err := h.chats.Count(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if settings.MaxChats > 0 && count >= int64(settings.MaxChats) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat limit reached"})
		return
	}

	chat, err := h.chats.Create(userID, req.Title, model.ParseAiType(req.AiType), req.AiModel)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// List returns the user's chats ordered by most recent activity
func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.chats.List(auth.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// Messages returns a chat's message history
func (h *ChatHandler) Messages(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	messages, err := h.chats.Messages(id, auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage routes a message through the provider layer
func (h *ChatHandler) SendMessage(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.router.Route(c.Request.Context(), auth.UserID(c), id, service.RouteRequest{
		AiType:      req.AiType,
		Model:       req.Model,
		Prompt:      req.Content,
		Attachments: req.Attachments,
		ImageURL:    req.ImageURL,
		Size:        req.Size,
		ArtStyle:    req.ArtStyle,
		Mode:        req.Mode,
		TaskID:      req.TaskID,
		Seed:        req.Seed,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{
		"user_message": result.UserMessage,
		"provider":     result.Provider,
	}
	if result.AssistantMessage != nil {
		resp["assistant_message"] = result.AssistantMessage
		resp["response"] = result.AssistantMessage.Content
	}
	if result.TaskID != "" {
		resp["task_id"] = result.TaskID
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateTitle renames a chat
func (h *ChatHandler) UpdateTitle(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, err := h.chats.UpdateTitle(id, auth.UserID(c), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// UpdateModel changes a chat's selected model
func (h *ChatHandler) UpdateModel(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req struct {
		Model string `json:"model" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, err := h.chats.UpdateModel(id, auth.UserID(c), req.Model)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// ToggleFavorite flips a chat's favorite flag
func (h *ChatHandler) ToggleFavorite(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	chat, err := h.chats.ToggleFavorite(id, auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// ToggleProtection flips a chat's protected flag, enforcing the protected
// limit when protecting.
func (h *ChatHandler) ToggleProtection(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	userID := auth.UserID(c)

	chat, err := h.chats.Get(id, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !chat.IsProtected {
		settings, err := h.retention.Settings(userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		protected, err := h.chats.ProtectedCount(userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if settings.ProtectedLimit > 0 && protected >= int64(settings.ProtectedLimit) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "protected chat limit reached"})
			return
		}
	}

	chat, err = h.chats.ToggleProtection(id, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// Delete removes a chat and its messages
func (h *ChatHandler) Delete(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	if err := h.chats.Delete(id, auth.UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "chat deleted"})
}
