package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ai-platform/aiplatform/internal/model"
	"github.com/ai-platform/aiplatform/internal/provider"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database with a unique name to
// avoid shared state between tests
func setupTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	err = db.AutoMigrate(
		&model.User{},
		&model.Chat{},
		&model.Message{},
		&model.MessageAttachment{},
		&model.UserSettings{},
		&model.PromptCategory{},
		&model.PromptTemplate{},
		&model.PromptLike{},
		&model.PromptUsageStats{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupChatService(t *testing.T, db *gorm.DB) *ChatService {
	t.Helper()
	return NewChatService(db, testLogger())
}

func setupRetentionService(t *testing.T, db *gorm.DB) *RetentionService {
	t.Helper()
	return NewRetentionService(db, nil, testLogger())
}

// fakeClient is a scripted provider for router tests.
type fakeClient struct {
	name      string
	available bool
	resp      *provider.Response
	err       error
	calls     int
	lastReq   provider.Request
}

func (f *fakeClient) Name() string    { return f.name }
func (f *fakeClient) Available() bool { return f.available }

func (f *fakeClient) Invoke(_ context.Context, req provider.Request) (*provider.Response, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func setupRouter(t *testing.T, db *gorm.DB, chat, local, image, threeD provider.Client) (*ModelRouter, *ChatService) {
	t.Helper()
	chats := setupChatService(t, db)
	registry := provider.NewRegistry(chat, local, image, threeD)
	router := NewModelRouter(db, registry, chats, testLogger(), "openai/gpt-4.1-nano", "wanx-v1")
	return router, chats
}

func createTestChat(t *testing.T, chats *ChatService, userID uint, aiType model.AiType) *model.Chat {
	t.Helper()
	chat, err := chats.Create(userID, "test chat", aiType, "")
	if err != nil {
		t.Fatalf("failed to create chat: %v", err)
	}
	return chat
}

func countMessages(t *testing.T, db *gorm.DB, chatID uint) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&model.Message{}).Where("chat_id = ?", chatID).Count(&n).Error; err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	return n
}
