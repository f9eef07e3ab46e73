package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ai-platform/aiplatform/internal/model"
	"github.com/ai-platform/aiplatform/internal/provider"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RouteRequest is one message-send request entering the router.
type RouteRequest struct {
	AiType      string
	Model       string
	Prompt      string
	Attachments []string // stored file names from prior uploads
	ImageURL    string
	Size        string
	ArtStyle    string
	Mode        string // 3D: "preview" (default) or "refine"
	TaskID      string // 3D refine: preview task id
	Seed        int
}

// RouteResult is the outcome of a successful route. Synchronous capabilities
// fill AssistantMessage; asynchronous 3D capabilities fill TaskID instead,
// and the task placeholder attachment rides on the user message.
type RouteResult struct {
	UserMessage      *model.Message
	AssistantMessage *model.Message
	TaskID           string
	Provider         string
}

// ThreeDRecord is one reconstructed 3D-generation task, read back from the
// placeholder attachments.
type ThreeDRecord struct {
	TaskID    string    `json:"task_id"`
	Prompt    string    `json:"prompt"`
	Mode      string    `json:"mode"` // "preview" or "refine"
	ArtStyle  string    `json:"art_style"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelRouter selects a provider per request, invokes it, and persists the
// conversation turns. It is the only component that talks to providers.
type ModelRouter struct {
	db       *gorm.DB
	registry *provider.Registry
	chats    *ChatService
	logger   *slog.Logger

	defaultChatModel  string
	defaultImageModel string

	// per-chat serialization so message appends within one chat stay ordered
	// under concurrent requests; striped so the lock set stays bounded no
	// matter how many chats are routed
	chatLocks [64]sync.Mutex
}

// NewModelRouter creates a new ModelRouter
func NewModelRouter(db *gorm.DB, registry *provider.Registry, chats *ChatService, logger *slog.Logger, defaultChatModel, defaultImageModel string) *ModelRouter {
	return &ModelRouter{
		db:                db,
		registry:          registry,
		chats:             chats,
		logger:            logger,
		defaultChatModel:  defaultChatModel,
		defaultImageModel: defaultImageModel,
	}
}

func (r *ModelRouter) lockChat(chatID uint) *sync.Mutex {
	return &r.chatLocks[chatID%uint(len(r.chatLocks))]
}

// Route handles one message-send request end to end. The user message is
// appended before any provider is invoked, so history survives failed
// generations; on provider failure no assistant message is written and the
// provider's error kind is surfaced unchanged.
func (r *ModelRouter) Route(ctx context.Context, userID, chatID uint, req RouteRequest) (*RouteResult, error) {
	if req.Prompt == "" && len(req.Attachments) == 0 {
		return nil, provider.Errorf(provider.KindInvalidInput, "content and attachments cannot both be empty")
	}

	chat, err := r.chats.Get(chatID, userID)
	if err != nil {
		return nil, err
	}

	l := r.lockChat(chatID)
	l.Lock()
	defer l.Unlock()

	aiType := model.ParseAiType(req.AiType)
	if req.AiType == "" {
		aiType = chat.AiType
	}

	// Resolve attachments before writing anything. An empty prompt is only
	// valid when at least one attachment actually resolves, so an
	// empty-content message never persists without attachments.
	claimable, err := r.chats.UnlinkedAttachments(userID, req.Attachments)
	if err != nil {
		return nil, err
	}
	if req.Prompt == "" && len(claimable) == 0 {
		return nil, provider.Errorf(provider.KindInvalidInput, "no usable attachments and no content")
	}

	userMsg, err := r.chats.AppendMessage(chat, model.RoleUser, req.Prompt)
	if err != nil {
		return nil, err
	}
	linked, err := r.chats.AttachToMessage(userMsg.ID, claimable)
	if err != nil {
		return nil, err
	}
	userMsg.Attachments = linked

	refine := req.Mode == "refine"
	capability := provider.CapabilityFor(aiType, refine)

	client, err := r.registry.Resolve(aiType)
	if err != nil {
		r.logger.Warn("no provider available", "ai_type", aiType, "chat_id", chatID)
		return nil, err
	}

	resp, err := client.Invoke(ctx, provider.Request{
		Capability: capability,
		Model:      r.resolveModel(aiType, req.Model, chat.AiModel),
		Prompt:     req.Prompt,
		ImageURL:   r.resolveImageURL(req, linked),
		TaskID:     req.TaskID,
		ArtStyle:   req.ArtStyle,
		Seed:       req.Seed,
		Size:       req.Size,
	})
	if err != nil {
		r.logger.Warn("provider invocation failed",
			"provider", client.Name(), "kind", provider.KindOf(err), "chat_id", chatID)
		return nil, err
	}

	result := &RouteResult{UserMessage: userMsg, Provider: client.Name()}

	switch capability {
	case provider.ThreeDCreate, provider.ThreeDRefine:
		// Async: persist the task id as a placeholder attachment on the user
		// message; final content arrives via status polling.
		if err := r.saveTaskAttachment(userMsg.ID, userID, resp.TaskID, req.ArtStyle, refine); err != nil {
			return nil, err
		}
		result.TaskID = resp.TaskID
	default:
		content := resp.Text
		if content == "" && resp.ImageURL != "" {
			content = "图像生成成功！\n图像URL: " + resp.ImageURL
		}
		assistantMsg, err := r.chats.AppendMessage(chat, model.RoleAssistant, content)
		if err != nil {
			return nil, err
		}
		result.AssistantMessage = assistantMsg
	}

	return result, nil
}

// PollStatus re-queries the 3D provider for a task. It is stateless: no
// rows are written regardless of outcome.
func (r *ModelRouter) PollStatus(ctx context.Context, taskID string) ([]byte, error) {
	client, err := r.registry.Resolve(model.AiTypeTextTo3D)
	if err != nil {
		return nil, err
	}
	resp, err := client.Invoke(ctx, provider.Request{
		Capability: provider.ThreeDStatus,
		TaskID:     taskID,
	})
	if err != nil {
		return nil, err
	}
	return resp.Raw, nil
}

// ThreeDHistory reconstructs the user's 3D generation tasks from the
// placeholder attachments spread across their chats.
func (r *ModelRouter) ThreeDHistory(userID uint) ([]ThreeDRecord, error) {
	chats, err := r.chats.List(userID)
	if err != nil {
		return nil, err
	}

	records := []ThreeDRecord{}
	for _, chat := range chats {
		var messages []model.Message
		if err := r.db.Where("chat_id = ?", chat.ID).
			Preload("Attachments").
			Order("created_at ASC").Find(&messages).Error; err != nil {
			return nil, err
		}
		for _, msg := range messages {
			for _, att := range msg.Attachments {
				if !att.IsTaskPlaceholder() {
					continue
				}
				records = append(records, ThreeDRecord{
					TaskID:    att.FilePath,
					Prompt:    msg.Content,
					Mode:      taskMode(att.MimeType),
					ArtStyle:  taskArtStyle(att.FileName),
					CreatedAt: att.CreatedAt,
				})
			}
		}
	}
	return records, nil
}

// saveTaskAttachment records a 3D task id as an attachment row. The storage
// path holds the task id and the MIME type tags the mode; this is how task
// history is reconstructed later.
func (r *ModelRouter) saveTaskAttachment(messageID, userID uint, taskID, artStyle string, refine bool) error {
	mode := "preview"
	if refine {
		mode = "refine"
	}
	if artStyle == "" {
		artStyle = "realistic"
	}
	att := &model.MessageAttachment{
		MessageID: &messageID,
		UserID:    userID,
		FileName:  fmt.Sprintf("%s_%s_%stask", mode, artStyle, uuid.NewString()),
		FilePath:  taskID,
		MimeType:  "3d/" + mode,
		FileSize:  0,
	}
	if err := r.db.Create(att).Error; err != nil {
		return fmt.Errorf("save task attachment: %w", err)
	}
	r.logger.Info("3d task recorded", "task_id", taskID, "mode", mode)
	return nil
}

// resolveModel picks, in order: the request's model, the chat's stored
// model, then the configured default for the AI type.
func (r *ModelRouter) resolveModel(aiType model.AiType, requested, chatModel string) string {
	if requested != "" {
		return requested
	}
	if chatModel != "" {
		return chatModel
	}
	switch aiType {
	case model.AiTypeTextToImage, model.AiTypeImageToImage:
		return r.defaultImageModel
	default:
		return r.defaultChatModel
	}
}

// resolveImageURL prefers an explicit image URL, falling back to the first
// linked image attachment.
func (r *ModelRouter) resolveImageURL(req RouteRequest, linked []model.MessageAttachment) string {
	if req.ImageURL != "" {
		return req.ImageURL
	}
	for _, att := range linked {
		if len(att.MimeType) >= 6 && att.MimeType[:6] == "image/" {
			return "/api/files/" + att.FileName
		}
	}
	return ""
}

func taskMode(mimeType string) string {
	if mimeType == "3d/refine" {
		return "refine"
	}
	return "preview"
}

func taskArtStyle(fileName string) string {
	// FileName layout: <mode>_<artStyle>_<uuid>task
	first, rest := -1, -1
	for i, c := range fileName {
		if c == '_' {
			if first < 0 {
				first = i
			} else {
				rest = i
				break
			}
		}
	}
	if first < 0 || rest < 0 {
		return ""
	}
	return fileName[first+1 : rest]
}
