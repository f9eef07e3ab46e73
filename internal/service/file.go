package service

import (
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/ai-platform/aiplatform/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FileService stores uploaded and generated media on disk, keyed by a
// generated file name, with an attachment row per stored file.
type FileService struct {
	db        *gorm.DB
	uploadDir string
}

// NewFileService creates a new FileService
func NewFileService(db *gorm.DB, uploadDir string) *FileService {
	return &FileService{db: db, uploadDir: uploadDir}
}

// SaveUpload writes an uploaded file to the upload directory under a
// generated name and records an attachment row. The row is created unlinked
// (no message id), owned by the uploading user, and linked when the message
// is sent.
func (s *FileService) SaveUpload(userID uint, file *multipart.FileHeader, src multipart.File) (*model.MessageAttachment, error) {
	name := storedName(file.Filename)
	path := filepath.Join(s.uploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	size, err := dst.ReadFrom(src)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write upload file: %w", err)
	}

	att := &model.MessageAttachment{
		UserID:       userID,
		FileName:     name,
		OriginalName: file.Filename,
		FilePath:     path,
		MimeType:     file.Header.Get("Content-Type"),
		FileSize:     size,
	}
	if err := s.db.Create(att).Error; err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("save attachment record: %w", err)
	}
	return att, nil
}

// Content returns the raw bytes of a stored file.
func (s *FileService) Content(fileName string) ([]byte, error) {
	path, err := s.resolve(fileName)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// ToBase64 returns the stored file content base64-encoded, for embedding in
// multimodal provider requests.
func (s *FileService) ToBase64(fileName string) (string, error) {
	data, err := s.Content(fileName)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Delete removes a stored file. A file that is already gone is not an error.
func (s *FileService) Delete(fileName string) error {
	path, err := s.resolve(fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// resolve maps a stored file name to its on-disk path, refusing names that
// escape the upload directory.
func (s *FileService) resolve(fileName string) (string, error) {
	clean := filepath.Base(fileName)
	if clean != fileName || clean == "." || clean == ".." {
		return "", fmt.Errorf("invalid file name: %s", fileName)
	}
	return filepath.Join(s.uploadDir, clean), nil
}

func storedName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	return uuid.NewString() + ext
}
