package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ai-platform/aiplatform/internal/auth"
	"github.com/ai-platform/aiplatform/internal/model"
	"github.com/ai-platform/aiplatform/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PromptHandler exposes the prompt-template gallery
type PromptHandler struct {
	prompts *service.PromptService
	db      *gorm.DB
}

// NewPromptHandler creates a new PromptHandler
func NewPromptHandler(prompts *service.PromptService, db *gorm.DB) *PromptHandler {
	return &PromptHandler{prompts: prompts, db: db}
}

func templateID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return 0, false
	}
	return uint(id), true
}

func writeTemplateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTemplateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotTemplateOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Categories lists the active gallery categories
func (h *PromptHandler) Categories(c *gin.Context) {
	categories, err := h.prompts.Categories()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// List returns one filtered page of public templates
func (h *PromptHandler) List(c *gin.Context) {
	categoryID, _ := strconv.ParseUint(c.Query("category_id"), 10, 32)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	result, err := h.prompts.List(auth.UserID(c), service.PromptListOptions{
		CategoryID: uint(categoryID),
		Type:       model.TemplateType(c.Query("type")),
		Keyword:    c.Query("keyword"),
		Page:       page,
		Size:       size,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Featured lists the featured templates
func (h *PromptHandler) Featured(c *gin.Context) {
	h.listWith(c, h.prompts.Featured)
}

// Popular lists the most-used templates
func (h *PromptHandler) Popular(c *gin.Context) {
	h.listWith(c, h.prompts.Popular)
}

// Latest lists the newest templates
func (h *PromptHandler) Latest(c *gin.Context) {
	h.listWith(c, h.prompts.Latest)
}

func (h *PromptHandler) listWith(c *gin.Context, fetch func(uint) ([]service.PromptView, error)) {
	templates, err := fetch(auth.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// Recommended lists templates written for a given AI model
func (h *PromptHandler) Recommended(c *gin.Context) {
	aiModel := c.Query("ai_model")
	if aiModel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ai_model is required"})
		return
	}
	templates, err := h.prompts.Recommended(auth.UserID(c), aiModel)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// Get returns a single template
func (h *PromptHandler) Get(c *gin.Context) {
	id, ok := templateID(c)
	if !ok {
		return
	}
	template, err := h.prompts.Get(auth.UserID(c), id)
	if err != nil {
		writeTemplateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": template})
}

// Create stores a user-submitted template
func (h *PromptHandler) Create(c *gin.Context) {
	var req model.PromptTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := auth.UserID(c)
	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	template, err := h.prompts.Create(userID, user.Nickname, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": template})
}

// Update modifies a template owned by the user
func (h *PromptHandler) Update(c *gin.Context) {
	id, ok := templateID(c)
	if !ok {
		return
	}
	var req model.PromptTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	template, err := h.prompts.Update(auth.UserID(c), id, req)
	if err != nil {
		writeTemplateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": template})
}

// Delete removes a template owned by the user
func (h *PromptHandler) Delete(c *gin.Context) {
	id, ok := templateID(c)
	if !ok {
		return
	}
	if err := h.prompts.Delete(auth.UserID(c), id); err != nil {
		writeTemplateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "template deleted"})
}

// ToggleLike flips the user's like on a template
func (h *PromptHandler) ToggleLike(c *gin.Context) {
	id, ok := templateID(c)
	if !ok {
		return
	}
	liked, err := h.prompts.ToggleLike(auth.UserID(c), id)
	if err != nil {
		writeTemplateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

// RecordUse stores a usage record for a template
func (h *PromptHandler) RecordUse(c *gin.Context) {
	id, ok := templateID(c)
	if !ok {
		return
	}
	var req model.TemplateUseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.prompts.RecordUsage(auth.UserID(c), id, req.AiModel); err != nil {
		writeTemplateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "usage recorded"})
}
