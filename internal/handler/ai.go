package handler

import (
	"net/http"
	"strings"

	"github.com/ai-platform/aiplatform/internal/auth"
	"github.com/ai-platform/aiplatform/internal/config"
	"github.com/ai-platform/aiplatform/internal/model"
	"github.com/ai-platform/aiplatform/internal/provider"
	"github.com/ai-platform/aiplatform/internal/service"
	"github.com/gin-gonic/gin"
)

// AIHandler exposes provider status and 3D task endpoints
type AIHandler struct {
	registry *provider.Registry
	router   *service.ModelRouter
	cfg      *config.Config
}

// NewAIHandler creates a new AIHandler
func NewAIHandler(registry *provider.Registry, router *service.ModelRouter, cfg *config.Config) *AIHandler {
	return &AIHandler{registry: registry, router: router, cfg: cfg}
}

// Status reports per-AI-type provider availability
func (h *AIHandler) Status(c *gin.Context) {
	types := []model.AiType{
		model.AiTypeConversation,
		model.AiTypeTextToImage,
		model.AiTypeImageToImage,
		model.AiTypeTextTo3D,
	}
	status := make(map[string]any, len(types))
	for _, t := range types {
		providers := []gin.H{}
		available := false
		for _, p := range h.registry.Providers(t) {
			if p == nil {
				continue
			}
			up := p.Available()
			available = available || up
			providers = append(providers, gin.H{"name": p.Name(), "available": up})
		}
		status[string(t)] = gin.H{"available": available, "providers": providers}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"default_model": h.cfg.DefaultChatModel,
	})
}

// Config returns the provider configuration with API keys masked
func (h *AIHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"openrouter": gin.H{
			"base_url": h.cfg.OpenRouter.BaseURL,
			"api_key":  maskKey(h.cfg.OpenRouter.APIKey),
			"model":    h.cfg.OpenRouter.Model,
		},
		"local": gin.H{
			"enabled":  h.cfg.Local.Enabled,
			"base_url": h.cfg.Local.BaseURL,
		},
		"dashscope": gin.H{
			"api_key": maskKey(h.cfg.DashScope.APIKey),
			"model":   h.cfg.DashScope.Model,
		},
		"meshy": gin.H{
			"api_key": maskKey(h.cfg.Meshy.APIKey),
		},
	})
}

// TaskStatus polls a 3D generation task and relays the provider payload
func (h *AIHandler) TaskStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	raw, err := h.router.PollStatus(c.Request.Context(), taskID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// ThreeDHistory lists the user's 3D generation tasks
func (h *AIHandler) ThreeDHistory(c *gin.Context) {
	records, err := h.router.ThreeDHistory(auth.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// maskKey hides all but the first and last four characters of a credential.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", 4) + key[len(key)-4:]
}
