package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ai-platform/aiplatform/internal/model"
	"gorm.io/gorm"
)

// ErrChatNotFound is returned when a chat does not exist or is not owned by
// the requesting user.
var ErrChatNotFound = errors.New("chat not found or not owned by user")

// ChatService handles chat session and message persistence.
type ChatService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewChatService creates a new ChatService
func NewChatService(db *gorm.DB, logger *slog.Logger) *ChatService {
	return &ChatService{db: db, logger: logger}
}

// Create starts a new chat session for a user.
func (s *ChatService) Create(userID uint, title string, aiType model.AiType, aiModel string) (*model.Chat, error) {
	if title == "" {
		title = "新对话"
	}
	if aiType == "" {
		aiType = model.AiTypeConversation
	}
	chat := &model.Chat{
		UserID:       userID,
		Title:        title,
		AiType:       aiType,
		AiModel:      aiModel,
		LastActivity: time.Now(),
	}
	if err := s.db.Create(chat).Error; err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	s.logger.Info("chat created", "chat_id", chat.ID, "user_id", userID, "ai_type", aiType)
	return chat, nil
}

// Get returns a chat owned by the user.
func (s *ChatService) Get(chatID, userID uint) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// List returns the user's chats ordered by most recent activity.
func (s *ChatService) List(userID uint) ([]model.Chat, error) {
	var chats []model.Chat
	err := s.db.Where("user_id = ?", userID).Order("last_activity DESC").Find(&chats).Error
	return chats, err
}

// Count returns how many chats the user owns.
func (s *ChatService) Count(userID uint) (int64, error) {
	var n int64
	err := s.db.Model(&model.Chat{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// ProtectedCount returns how many of the user's chats are protected.
func (s *ChatService) ProtectedCount(userID uint) (int64, error) {
	var n int64
	err := s.db.Model(&model.Chat{}).Where("user_id = ? AND is_protected = ?", userID, true).Count(&n).Error
	return n, err
}

// Messages returns a chat's messages in order, with attachments loaded.
func (s *ChatService) Messages(chatID, userID uint) ([]model.Message, error) {
	if _, err := s.Get(chatID, userID); err != nil {
		return nil, err
	}
	var messages []model.Message
	err := s.db.Where("chat_id = ?", chatID).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Order("created_at ASC").Find(&messages).Error
	return messages, err
}

// AppendMessage stores one turn and bumps the chat's message count and
// last-activity timestamp.
func (s *ChatService) AppendMessage(chat *model.Chat, role, content string) (*model.Message, error) {
	msg := &model.Message{ChatID: chat.ID, Role: role, Content: content}
	if err := s.db.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	chat.MessageCount++
	chat.LastActivity = time.Now()
	if err := s.db.Model(chat).Updates(map[string]any{
		"message_count": chat.MessageCount,
		"last_activity": chat.LastActivity,
	}).Error; err != nil {
		return nil, fmt.Errorf("update chat activity: %w", err)
	}
	return msg, nil
}

// UnlinkedAttachments resolves stored file names to attachment rows that the
// user may still claim: rows they uploaded that are not yet linked to any
// message. Names that do not resolve are dropped; callers see exactly what
// would be linked.
func (s *ChatService) UnlinkedAttachments(userID uint, fileNames []string) ([]model.MessageAttachment, error) {
	if len(fileNames) == 0 {
		return nil, nil
	}
	var atts []model.MessageAttachment
	err := s.db.Where("file_name IN ? AND user_id = ? AND message_id IS NULL", fileNames, userID).
		Find(&atts).Error
	if err != nil {
		return nil, err
	}
	if len(atts) < len(fileNames) {
		s.logger.Warn("some attachment names did not resolve",
			"requested", len(fileNames), "resolved", len(atts), "user_id", userID)
	}
	return atts, nil
}

// AttachToMessage links previously resolved attachment rows to a message.
func (s *ChatService) AttachToMessage(messageID uint, atts []model.MessageAttachment) ([]model.MessageAttachment, error) {
	for i := range atts {
		atts[i].MessageID = &messageID
		if err := s.db.Model(&atts[i]).Update("message_id", messageID).Error; err != nil {
			return nil, err
		}
	}
	return atts, nil
}

// UpdateTitle renames a chat.
func (s *ChatService) UpdateTitle(chatID, userID uint, title string) (*model.Chat, error) {
	chat, err := s.Get(chatID, userID)
	if err != nil {
		return nil, err
	}
	chat.Title = title
	if err := s.db.Model(chat).Update("title", title).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// UpdateModel changes the chat's selected model id.
func (s *ChatService) UpdateModel(chatID, userID uint, modelID string) (*model.Chat, error) {
	chat, err := s.Get(chatID, userID)
	if err != nil {
		return nil, err
	}
	chat.AiModel = modelID
	if err := s.db.Model(chat).Update("ai_model", modelID).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// ToggleFavorite flips the favorite flag.
func (s *ChatService) ToggleFavorite(chatID, userID uint) (*model.Chat, error) {
	chat, err := s.Get(chatID, userID)
	if err != nil {
		return nil, err
	}
	chat.IsFavorite = !chat.IsFavorite
	if err := s.db.Model(chat).Update("is_favorite", chat.IsFavorite).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// ToggleProtection flips the protected flag. Protected chats are never
// selected for automatic cleanup.
func (s *ChatService) ToggleProtection(chatID, userID uint) (*model.Chat, error) {
	chat, err := s.Get(chatID, userID)
	if err != nil {
		return nil, err
	}
	chat.IsProtected = !chat.IsProtected
	if err := s.db.Model(chat).Update("is_protected", chat.IsProtected).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// Delete removes a chat with its messages and attachments, children first.
func (s *ChatService) Delete(chatID, userID uint) error {
	chat, err := s.Get(chatID, userID)
	if err != nil {
		return err
	}
	return deleteChatTree(s.db, chat)
}

// deleteChatTree deletes attachments, then messages, then the chat row, so
// the ownership tree never orphans children.
func deleteChatTree(db *gorm.DB, chat *model.Chat) error {
	var messageIDs []uint
	if err := db.Model(&model.Message{}).Where("chat_id = ?", chat.ID).Pluck("id", &messageIDs).Error; err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	if len(messageIDs) > 0 {
		if err := db.Where("message_id IN ?", messageIDs).Delete(&model.MessageAttachment{}).Error; err != nil {
			return fmt.Errorf("delete attachments: %w", err)
		}
	}
	if err := db.Where("chat_id = ?", chat.ID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := db.Delete(chat).Error; err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}
