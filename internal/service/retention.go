package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ai-platform/aiplatform/internal/model"
	"gorm.io/gorm"
)

// CleanupPlan lists the chats selected for deletion plus the estimated
// space their attachments occupy.
type CleanupPlan struct {
	ChatIDs        []uint `json:"chat_ids"`
	EstimatedBytes int64  `json:"estimated_bytes"`
}

// CleanupReport summarizes an executed plan.
type CleanupReport struct {
	DeletedChatCount int   `json:"deleted_chat_count"`
	FreedSpaceBytes  int64 `json:"freed_space_bytes"`
}

// DataStatistics is the read-side aggregation shown to the user.
type DataStatistics struct {
	TotalChats         int64 `json:"total_chats"`
	TotalMessages      int64 `json:"total_messages"`
	ProtectedChats     int64 `json:"protected_chats"`
	EstimatedSizeBytes int64 `json:"estimated_size_bytes"`
	CleanupEligibleCnt int   `json:"cleanup_eligible_count"`
	AutoCleanupEnabled bool  `json:"auto_cleanup_enabled"`
	RetentionDays      int   `json:"retention_days"`
	MaxChats           int   `json:"max_chats"`
	ProtectedLimit     int   `json:"protected_limit"`
}

// RetentionService decides which chats are eligible for automatic deletion
// and applies deletion plans. It never selects protected chats.
type RetentionService struct {
	db     *gorm.DB
	files  *FileService
	logger *slog.Logger
	now    func() time.Time
}

// NewRetentionService creates a new RetentionService
func NewRetentionService(db *gorm.DB, files *FileService, logger *slog.Logger) *RetentionService {
	return &RetentionService{db: db, files: files, logger: logger, now: time.Now}
}

// Settings returns the user's retention settings, creating the defaults
// (disabled, 30 days, 100 chats, 10 protected) on first access. This is the
// only place settings are implicitly materialized.
func (s *RetentionService) Settings(userID uint) (*model.UserSettings, error) {
	var settings model.UserSettings
	err := s.db.Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = model.UserSettings{
			UserID:             userID,
			AutoCleanupEnabled: false,
			RetentionDays:      model.DefaultRetentionDays,
			MaxChats:           model.DefaultMaxChats,
			ProtectedLimit:     model.DefaultProtectedLimit,
		}
		if err := s.db.Create(&settings).Error; err != nil {
			return nil, fmt.Errorf("create default settings: %w", err)
		}
		return &settings, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateSettings applies a partial settings update.
func (s *RetentionService) UpdateSettings(userID uint, req model.SettingsUpdateRequest) (*model.UserSettings, error) {
	settings, err := s.Settings(userID)
	if err != nil {
		return nil, err
	}
	if req.AutoCleanupEnabled != nil {
		settings.AutoCleanupEnabled = *req.AutoCleanupEnabled
	}
	if req.RetentionDays != nil {
		settings.RetentionDays = *req.RetentionDays
	}
	if req.MaxChats != nil {
		settings.MaxChats = *req.MaxChats
	}
	if req.ProtectedLimit != nil {
		settings.ProtectedLimit = *req.ProtectedLimit
	}
	if err := s.db.Save(settings).Error; err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}

// PlanCleanup selects the user's cleanup-eligible chats: auto-cleanup must
// be enabled, and a chat qualifies only when it is unprotected and its last
// activity is older than the retention window. Age is the sole trigger; the
// max-chat and protected-limit caps are advisory and enforced at creation
// time, not here.
func (s *RetentionService) PlanCleanup(userID uint) (*CleanupPlan, error) {
	settings, err := s.Settings(userID)
	if err != nil {
		return nil, err
	}
	if !settings.AutoCleanupEnabled {
		return &CleanupPlan{ChatIDs: []uint{}}, nil
	}

	cutoff := s.now().AddDate(0, 0, -settings.RetentionDays)
	var chats []model.Chat
	err = s.db.Where("user_id = ? AND is_protected = ? AND last_activity < ?", userID, false, cutoff).
		Order("last_activity ASC").Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("list cleanup candidates: %w", err)
	}
	return s.buildPlan(chats)
}

// PlanFullWipe selects all of the user's unprotected chats regardless of
// age. Confirmation of this destructive action is the caller's job; the
// engine performs no check.
func (s *RetentionService) PlanFullWipe(userID uint) (*CleanupPlan, error) {
	var chats []model.Chat
	err := s.db.Where("user_id = ? AND is_protected = ?", userID, false).
		Order("last_activity ASC").Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return s.buildPlan(chats)
}

func (s *RetentionService) buildPlan(chats []model.Chat) (*CleanupPlan, error) {
	plan := &CleanupPlan{ChatIDs: make([]uint, 0, len(chats))}
	for _, chat := range chats {
		plan.ChatIDs = append(plan.ChatIDs, chat.ID)
		size, err := s.chatAttachmentBytes(chat.ID)
		if err != nil {
			return nil, err
		}
		plan.EstimatedBytes += size
	}
	return plan, nil
}

func (s *RetentionService) chatAttachmentBytes(chatID uint) (int64, error) {
	var size *int64
	err := s.db.Model(&model.MessageAttachment{}).
		Joins("JOIN messages ON messages.id = message_attachments.message_id").
		Where("messages.chat_id = ?", chatID).
		Select("SUM(message_attachments.file_size)").Scan(&size).Error
	if err != nil {
		return 0, fmt.Errorf("sum attachment sizes: %w", err)
	}
	if size == nil {
		return 0, nil
	}
	return *size, nil
}

// Execute applies a deletion plan. Each chat's messages and attachments are
// deleted before the chat row. A chat that is already gone is logged and
// skipped, so re-executing an applied plan deletes nothing and reports zero.
func (s *RetentionService) Execute(plan *CleanupPlan) (*CleanupReport, error) {
	report := &CleanupReport{}
	for _, chatID := range plan.ChatIDs {
		var chat model.Chat
		err := s.db.First(&chat, chatID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info("chat already deleted, skipping", "chat_id", chatID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load chat %d: %w", chatID, err)
		}

		size, err := s.chatAttachmentBytes(chatID)
		if err != nil {
			return nil, err
		}

		s.deleteChatFiles(chatID)
		if err := deleteChatTree(s.db, &chat); err != nil {
			s.logger.Warn("chat cleanup failed, skipping", "chat_id", chatID, "error", err)
			continue
		}
		report.DeletedChatCount++
		report.FreedSpaceBytes += size
	}
	s.logger.Info("cleanup executed",
		"deleted_chats", report.DeletedChatCount, "freed_bytes", report.FreedSpaceBytes)
	return report, nil
}

// deleteChatFiles removes the literal media files behind a chat's
// attachments. Task placeholders store no file. File removal failures are
// logged, not fatal: the rows still go away.
func (s *RetentionService) deleteChatFiles(chatID uint) {
	if s.files == nil {
		return
	}
	var atts []model.MessageAttachment
	err := s.db.Joins("JOIN messages ON messages.id = message_attachments.message_id").
		Where("messages.chat_id = ?", chatID).Find(&atts).Error
	if err != nil {
		s.logger.Warn("list attachments for file cleanup failed", "chat_id", chatID, "error", err)
		return
	}
	for _, att := range atts {
		if att.IsTaskPlaceholder() {
			continue
		}
		if err := s.files.Delete(att.FileName); err != nil {
			s.logger.Warn("delete attachment file failed", "file_name", att.FileName, "error", err)
		}
	}
}

// Statistics aggregates the user's data footprint. The eligible count reuses
// PlanCleanup's predicate so the UI-facing number and the actual deletion
// plan never diverge.
func (s *RetentionService) Statistics(userID uint) (*DataStatistics, error) {
	settings, err := s.Settings(userID)
	if err != nil {
		return nil, err
	}

	stats := &DataStatistics{
		AutoCleanupEnabled: settings.AutoCleanupEnabled,
		RetentionDays:      settings.RetentionDays,
		MaxChats:           settings.MaxChats,
		ProtectedLimit:     settings.ProtectedLimit,
	}

	if err := s.db.Model(&model.Chat{}).Where("user_id = ?", userID).Count(&stats.TotalChats).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&model.Chat{}).Where("user_id = ? AND is_protected = ?", userID, true).
		Count(&stats.ProtectedChats).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&model.Message{}).
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("chats.user_id = ?", userID).Count(&stats.TotalMessages).Error; err != nil {
		return nil, err
	}

	var size *int64
	err = s.db.Model(&model.MessageAttachment{}).
		Joins("JOIN messages ON messages.id = message_attachments.message_id").
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("chats.user_id = ?", userID).
		Select("SUM(message_attachments.file_size)").Scan(&size).Error
	if err != nil {
		return nil, err
	}
	if size != nil {
		stats.EstimatedSizeBytes = *size
	}

	plan, err := s.PlanCleanup(userID)
	if err != nil {
		return nil, err
	}
	stats.CleanupEligibleCnt = len(plan.ChatIDs)

	return stats, nil
}

// SweepAll plans and executes cleanup for every user with auto-cleanup
// enabled. Invoked by the cron trigger; per-user failures do not stop the
// sweep. Planning and execution are deliberately not atomic as a pair: a
// chat that gains activity in between is at worst deleted one cycle late.
func (s *RetentionService) SweepAll() {
	var userIDs []uint
	err := s.db.Model(&model.UserSettings{}).
		Where("auto_cleanup_enabled = ?", true).Pluck("user_id", &userIDs).Error
	if err != nil {
		s.logger.Error("retention sweep: list users failed", "error", err)
		return
	}
	for _, userID := range userIDs {
		plan, err := s.PlanCleanup(userID)
		if err != nil {
			s.logger.Warn("retention sweep: planning failed", "user_id", userID, "error", err)
			continue
		}
		if len(plan.ChatIDs) == 0 {
			continue
		}
		if _, err := s.Execute(plan); err != nil {
			s.logger.Warn("retention sweep: execution failed", "user_id", userID, "error", err)
		}
	}
}
