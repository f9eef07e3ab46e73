package handler

import (
	"net/http"

	"github.com/ai-platform/aiplatform/internal/auth"
	"github.com/ai-platform/aiplatform/internal/model"
	"github.com/ai-platform/aiplatform/internal/service"
	"github.com/gin-gonic/gin"
)

// wipeConfirmText must be sent verbatim before a full wipe is planned.
const wipeConfirmText = "CONFIRM_DELETE"

// DataHandler exposes retention settings, cleanup and statistics
type DataHandler struct {
	retention *service.RetentionService
}

// NewDataHandler creates a new DataHandler
func NewDataHandler(retention *service.RetentionService) *DataHandler {
	return &DataHandler{retention: retention}
}

// GetSettings returns the user's retention settings, creating defaults on
// first access
func (h *DataHandler) GetSettings(c *gin.Context) {
	settings, err := h.retention.Settings(auth.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateSettings applies a partial retention-settings update
func (h *DataHandler) UpdateSettings(c *gin.Context) {
	var req model.SettingsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings, err := h.retention.UpdateSettings(auth.UserID(c), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// PreviewCleanup returns the deletion plan without applying it
func (h *DataHandler) PreviewCleanup(c *gin.Context) {
	plan, err := h.retention.PlanCleanup(auth.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// ExecuteCleanup plans and applies cleanup for the user
func (h *DataHandler) ExecuteCleanup(c *gin.Context) {
	userID := auth.UserID(c)
	plan, err := h.retention.PlanCleanup(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	report, err := h.retention.Execute(plan)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// Statistics returns the user's data footprint
func (h *DataHandler) Statistics(c *gin.Context) {
	stats, err := h.retention.Statistics(auth.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// Wipe deletes all of the user's unprotected chats. The confirmation phrase
// is checked here; the retention engine itself performs no check.
func (h *DataHandler) Wipe(c *gin.Context) {
	var req model.WipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ConfirmText != wipeConfirmText {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confirmation text does not match"})
		return
	}

	userID := auth.UserID(c)
	plan, err := h.retention.PlanFullWipe(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	report, err := h.retention.Execute(plan)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}
