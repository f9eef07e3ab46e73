package handler

import (
	"errors"
	"net/http"

	"github.com/ai-platform/aiplatform/internal/provider"
	"github.com/ai-platform/aiplatform/internal/service"
	"github.com/gin-gonic/gin"
)

// writeError maps routing errors onto HTTP statuses by their classified
// kind, keeping the kind visible to API clients for per-kind retry policy.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var pe *provider.Error
	if errors.As(err, &pe) {
		c.JSON(statusForKind(pe.Kind), gin.H{"error": pe.Message, "kind": string(pe.Kind)})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func statusForKind(kind provider.ErrorKind) int {
	switch kind {
	case provider.KindInvalidInput:
		return http.StatusBadRequest
	case provider.KindUnavailable:
		return http.StatusServiceUnavailable
	case provider.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
