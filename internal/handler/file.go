package handler

import (
	"net/http"

	"github.com/ai-platform/aiplatform/internal/auth"
	"github.com/ai-platform/aiplatform/internal/service"
	"github.com/gin-gonic/gin"
)

// FileHandler manages media uploads and downloads
type FileHandler struct {
	files *service.FileService
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(files *service.FileService) *FileHandler {
	return &FileHandler{files: files}
}

// Upload stores a multipart file and returns its attachment record
func (h *FileHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	att, err := h.files.SaveUpload(auth.UserID(c), fileHeader, src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachment": att, "url": "/api/files/" + att.FileName})
}

// Get serves a stored file
func (h *FileHandler) Get(c *gin.Context) {
	data, err := h.files.Content(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
