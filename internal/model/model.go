package model

import (
	"time"
)

// AiType is the declared capability a chat requests.
type AiType string

const (
	AiTypeConversation AiType = "conversation"
	AiTypeTextToText   AiType = "text_to_text"
	AiTypeTextToImage  AiType = "text_to_image"
	AiTypeImageToImage AiType = "image_to_image"
	AiTypeTextTo3D     AiType = "text_to_3d"
	AiTypeAudioToText  AiType = "audio_to_text"
)

// ParseAiType maps a request string to a known AI type. Unrecognized values
// fall back to conversation instead of failing the request.
func ParseAiType(s string) AiType {
	switch AiType(s) {
	case AiTypeConversation, AiTypeTextToText, AiTypeTextToImage,
		AiTypeImageToImage, AiTypeTextTo3D, AiTypeAudioToText:
		return AiType(s)
	default:
		return AiTypeConversation
	}
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User represents a platform account
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Nickname  string    `gorm:"size:64" json:"nickname"`
	Password  string    `gorm:"not null" json:"-"` // bcrypt hash, never exposed in JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chat represents a conversation session owned by a user
type Chat struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	Title        string    `gorm:"not null;size:255" json:"title"`
	AiType       AiType    `gorm:"not null;size:32;default:conversation" json:"ai_type"`
	AiModel      string    `gorm:"size:128" json:"ai_model"`
	MessageCount int       `gorm:"default:0" json:"message_count"`
	LastActivity time.Time `json:"last_activity"`
	IsFavorite   bool      `gorm:"default:false" json:"is_favorite"`
	IsProtected  bool      `gorm:"default:false" json:"is_protected"`
	Messages     []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single turn in a chat. Messages are append-only: they are
// never mutated after creation and are deleted only with their chat.
type Message struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	ChatID      uint                `gorm:"index;not null" json:"chat_id"`
	Role        string              `gorm:"not null;size:16" json:"role"` // "user" or "assistant"
	Content     string              `json:"content"`
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// MessageAttachment is a file (or generation-task placeholder) linked to a
// message. For 3D generation results FilePath holds the provider task id and
// MimeType is "3d/preview" or "3d/refine" rather than a real media type.
type MessageAttachment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MessageID    *uint     `gorm:"index" json:"message_id"` // nil until linked to a message
	UserID       uint      `gorm:"index;not null" json:"user_id"` // uploader; only they may link it
	FileName     string    `gorm:"not null;size:255;index" json:"file_name"`
	OriginalName string    `gorm:"size:255" json:"original_name"`
	FilePath     string    `gorm:"not null;size:512" json:"file_path"`
	MimeType     string    `gorm:"size:128" json:"mime_type"`
	FileSize     int64     `gorm:"default:0" json:"file_size"`
	Width        *int      `json:"width,omitempty"`
	Height       *int      `json:"height,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsTaskPlaceholder reports whether the attachment stores a 3D task id
// instead of literal media.
func (a *MessageAttachment) IsTaskPlaceholder() bool {
	return a.MimeType == "3d/preview" || a.MimeType == "3d/refine"
}

// UserSettings holds per-user data-retention preferences. One row per user,
// created lazily with defaults on first access.
type UserSettings struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	AutoCleanupEnabled bool      `gorm:"default:false" json:"auto_cleanup_enabled"`
	RetentionDays      int       `gorm:"default:30" json:"retention_days"`
	MaxChats           int       `gorm:"default:100" json:"max_chats"`
	ProtectedLimit     int       `gorm:"default:10" json:"protected_limit"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Default retention settings.
const (
	DefaultRetentionDays  = 30
	DefaultMaxChats       = 100
	DefaultProtectedLimit = 10
)

// ── Prompt templates ──

// TemplateType distinguishes curated templates from user submissions.
type TemplateType string

const (
	TemplateOfficial TemplateType = "official"
	TemplateUser     TemplateType = "user"
)

// DifficultyLevel rates how much prompt-writing experience a template assumes.
type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "beginner"
	DifficultyIntermediate DifficultyLevel = "intermediate"
	DifficultyAdvanced     DifficultyLevel = "advanced"
)

// PromptCategory groups templates in the gallery
type PromptCategory struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description string    `json:"description"`
	Icon        string    `gorm:"size:50" json:"icon"`
	SortOrder   int       `gorm:"default:0" json:"sort_order"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PromptTemplate is a reusable prompt shared through the gallery. Usage and
// like counts are denormalized; the like/usage tables are the source of truth.
type PromptTemplate struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Title           string          `gorm:"not null;size:200" json:"title"`
	Description     string          `json:"description"`
	Content         string          `gorm:"not null" json:"content"`
	CategoryID      uint            `gorm:"index" json:"category_id"`
	AiModel         string          `gorm:"size:128" json:"ai_model"`
	TemplateType    TemplateType    `gorm:"size:16;default:user" json:"template_type"`
	CreatorID       uint            `gorm:"index" json:"creator_id"`
	CreatorName     string          `gorm:"size:100" json:"creator_name"`
	Tags            string          `gorm:"size:500" json:"tags"`
	Language        string          `gorm:"size:10;default:zh-CN" json:"language"`
	DifficultyLevel DifficultyLevel `gorm:"size:16;default:beginner" json:"difficulty_level"`
	IsPublic        bool            `json:"is_public"`
	IsFeatured      bool            `gorm:"default:false" json:"is_featured"`
	UsageCount      int             `gorm:"default:0" json:"usage_count"`
	LikeCount       int             `gorm:"default:0" json:"like_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PromptLike records one user's like of one template
type PromptLike struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TemplateID uint      `gorm:"uniqueIndex:idx_template_user;not null" json:"template_id"`
	UserID     uint      `gorm:"uniqueIndex:idx_template_user;not null" json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// PromptUsageStats records one use of a template, with the model it was
// used against
type PromptUsageStats struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TemplateID uint      `gorm:"index;not null" json:"template_id"`
	UserID     uint      `json:"user_id"`
	AiModel    string    `gorm:"size:128" json:"ai_model"`
	UsedAt     time.Time `gorm:"autoCreateTime" json:"used_at"`
}

// ── Request bodies ──

// RegisterRequest is the request body for account registration
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Nickname string `json:"nickname"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ChatCreateRequest is the request body for creating a chat
type ChatCreateRequest struct {
	Title   string `json:"title"`
	AiType  string `json:"ai_type"`
	AiModel string `json:"ai_model"`
}

// SendMessageRequest is the request body for sending a message to a chat
type SendMessageRequest struct {
	Content     string   `json:"content"`
	AiType      string   `json:"ai_type"`
	Model       string   `json:"model"`
	Attachments []string `json:"attachments"` // stored file names from prior uploads
	ImageURL    string   `json:"image_url"`
	Size        string   `json:"size"`
	ArtStyle    string   `json:"art_style"`
	Mode        string   `json:"mode"` // 3D: "preview" (default) or "refine"
	TaskID      string   `json:"task_id"`
	Seed        int      `json:"seed"`
}

// SettingsUpdateRequest is the request body for updating retention settings
type SettingsUpdateRequest struct {
	AutoCleanupEnabled *bool `json:"auto_cleanup_enabled"`
	RetentionDays      *int  `json:"retention_days" binding:"omitempty,min=0"`
	MaxChats           *int  `json:"max_chats" binding:"omitempty,min=0"`
	ProtectedLimit     *int  `json:"protected_limit" binding:"omitempty,min=0"`
}

// WipeRequest is the request body for the delete-all-data action
type WipeRequest struct {
	ConfirmText string `json:"confirm_text" binding:"required"`
}

// PromptTemplateRequest is the request body for creating or updating a
// prompt template
type PromptTemplateRequest struct {
	Title           string `json:"title" binding:"required,max=200"`
	Description     string `json:"description"`
	Content         string `json:"content" binding:"required"`
	CategoryID      uint   `json:"category_id"`
	AiModel         string `json:"ai_model"`
	Tags            string `json:"tags"`
	Language        string `json:"language"`
	DifficultyLevel string `json:"difficulty_level"`
	IsPublic        *bool  `json:"is_public"`
}

// TemplateUseRequest is the request body for recording a template use
type TemplateUseRequest struct {
	AiModel string `json:"ai_model"`
}
