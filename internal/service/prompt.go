package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ai-platform/aiplatform/internal/model"
	"gorm.io/gorm"
)

// ErrTemplateNotFound is returned when a prompt template does not exist.
var ErrTemplateNotFound = errors.New("prompt template not found")

// ErrNotTemplateOwner is returned when a user tries to modify a template
// they did not create.
var ErrNotTemplateOwner = errors.New("not the template owner")

// galleryOrder is the default gallery ranking: featured first, then most
// used, then newest.
const galleryOrder = "is_featured DESC, usage_count DESC, created_at DESC"

// PromptView is a template decorated with its category name and whether the
// requesting user has liked it.
type PromptView struct {
	model.PromptTemplate
	CategoryName string `json:"category_name"`
	Liked        bool   `json:"liked"`
}

// PromptPage is one page of gallery results.
type PromptPage struct {
	Templates  []PromptView `json:"templates"`
	TotalCount int64        `json:"total_count"`
	Page       int          `json:"page"`
	Size       int          `json:"size"`
}

// PromptListOptions filters a gallery listing. Zero values mean "no filter".
type PromptListOptions struct {
	CategoryID uint
	Type       model.TemplateType
	Keyword    string
	Page       int
	Size       int
}

// PromptService manages the shared prompt-template gallery: categories,
// templates, likes and usage statistics.
type PromptService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewPromptService creates a new PromptService
func NewPromptService(db *gorm.DB, logger *slog.Logger) *PromptService {
	return &PromptService{db: db, logger: logger}
}

// Categories returns the active categories in display order.
func (s *PromptService) Categories() ([]model.PromptCategory, error) {
	var categories []model.PromptCategory
	err := s.db.Where("is_active = ?", true).Order("sort_order ASC").Find(&categories).Error
	return categories, err
}

// List returns one page of public templates matching the options, decorated
// for the requesting user.
func (s *PromptService) List(userID uint, opts PromptListOptions) (*PromptPage, error) {
	if opts.Size <= 0 {
		opts.Size = 20
	}
	if opts.Page < 0 {
		opts.Page = 0
	}

	q := s.db.Model(&model.PromptTemplate{}).Where("is_public = ?", true)
	if opts.CategoryID > 0 {
		q = q.Where("category_id = ?", opts.CategoryID)
	}
	if opts.Type != "" {
		q = q.Where("template_type = ?", opts.Type)
	}
	if kw := strings.TrimSpace(opts.Keyword); kw != "" {
		pattern := "%" + strings.ToLower(kw) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count templates: %w", err)
	}

	var templates []model.PromptTemplate
	err := q.Order(galleryOrder).
		Offset(opts.Page * opts.Size).Limit(opts.Size).
		Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	views, err := s.decorate(templates, userID)
	if err != nil {
		return nil, err
	}
	return &PromptPage{Templates: views, TotalCount: total, Page: opts.Page, Size: opts.Size}, nil
}

// Featured returns the featured public templates.
func (s *PromptService) Featured(userID uint) ([]PromptView, error) {
	var templates []model.PromptTemplate
	err := s.db.Where("is_featured = ? AND is_public = ?", true, true).
		Order("usage_count DESC, created_at DESC").Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return s.decorate(templates, userID)
}

// Popular returns the ten most-used public templates.
func (s *PromptService) Popular(userID uint) ([]PromptView, error) {
	var templates []model.PromptTemplate
	err := s.db.Where("is_public = ?", true).
		Order("usage_count DESC").Limit(10).Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return s.decorate(templates, userID)
}

// Latest returns the ten newest public templates.
func (s *PromptService) Latest(userID uint) ([]PromptView, error) {
	var templates []model.PromptTemplate
	err := s.db.Where("is_public = ?", true).
		Order("created_at DESC").Limit(10).Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return s.decorate(templates, userID)
}

// Recommended returns public templates written for a specific AI model.
func (s *PromptService) Recommended(userID uint, aiModel string) ([]PromptView, error) {
	var templates []model.PromptTemplate
	err := s.db.Where("ai_model = ? AND is_public = ?", aiModel, true).
		Order("usage_count DESC, created_at DESC").Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return s.decorate(templates, userID)
}

// Get returns a single template decorated for the user.
func (s *PromptService) Get(userID, templateID uint) (*PromptView, error) {
	template, err := s.load(templateID)
	if err != nil {
		return nil, err
	}
	views, err := s.decorate([]model.PromptTemplate{*template}, userID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Create stores a user-submitted template. The creator and template type are
// set here, never from the request.
func (s *PromptService) Create(userID uint, creatorName string, req model.PromptTemplateRequest) (*model.PromptTemplate, error) {
	template := &model.PromptTemplate{
		Title:           req.Title,
		Description:     req.Description,
		Content:         req.Content,
		CategoryID:      req.CategoryID,
		AiModel:         req.AiModel,
		TemplateType:    model.TemplateUser,
		CreatorID:       userID,
		CreatorName:     creatorName,
		Tags:            req.Tags,
		Language:        defaultIfEmpty(req.Language, "zh-CN"),
		DifficultyLevel: parseDifficulty(req.DifficultyLevel),
		IsPublic:        req.IsPublic == nil || *req.IsPublic,
	}
	if err := s.db.Create(template).Error; err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	s.logger.Info("prompt template created", "template_id", template.ID, "creator_id", userID)
	return template, nil
}

// Update modifies a template. Only the creator may update it; counters and
// the featured flag are not touchable through this path.
func (s *PromptService) Update(userID, templateID uint, req model.PromptTemplateRequest) (*model.PromptTemplate, error) {
	template, err := s.load(templateID)
	if err != nil {
		return nil, err
	}
	if template.CreatorID != userID {
		return nil, ErrNotTemplateOwner
	}

	template.Title = req.Title
	template.Description = req.Description
	template.Content = req.Content
	template.CategoryID = req.CategoryID
	template.AiModel = req.AiModel
	template.Tags = req.Tags
	template.Language = defaultIfEmpty(req.Language, template.Language)
	template.DifficultyLevel = parseDifficulty(req.DifficultyLevel)
	if req.IsPublic != nil {
		template.IsPublic = *req.IsPublic
	}
	if err := s.db.Save(template).Error; err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return template, nil
}

// Delete removes a template with its likes and usage records. Only the
// creator may delete it.
func (s *PromptService) Delete(userID, templateID uint) error {
	template, err := s.load(templateID)
	if err != nil {
		return err
	}
	if template.CreatorID != userID {
		return ErrNotTemplateOwner
	}
	if err := s.db.Where("template_id = ?", templateID).Delete(&model.PromptLike{}).Error; err != nil {
		return fmt.Errorf("delete likes: %w", err)
	}
	if err := s.db.Where("template_id = ?", templateID).Delete(&model.PromptUsageStats{}).Error; err != nil {
		return fmt.Errorf("delete usage stats: %w", err)
	}
	if err := s.db.Delete(template).Error; err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	s.logger.Info("prompt template deleted", "template_id", templateID, "user_id", userID)
	return nil
}

// ToggleLike flips the user's like on a template and returns the new state.
// The denormalized like count is re-derived from the like rows.
func (s *PromptService) ToggleLike(userID, templateID uint) (bool, error) {
	if _, err := s.load(templateID); err != nil {
		return false, err
	}

	var like model.PromptLike
	err := s.db.Where("template_id = ? AND user_id = ?", templateID, userID).First(&like).Error
	liked := false
	switch {
	case err == nil:
		if err := s.db.Delete(&like).Error; err != nil {
			return false, fmt.Errorf("remove like: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		like = model.PromptLike{TemplateID: templateID, UserID: userID}
		if err := s.db.Create(&like).Error; err != nil {
			return false, fmt.Errorf("save like: %w", err)
		}
		liked = true
	default:
		return false, err
	}

	if err := s.syncLikeCount(templateID); err != nil {
		return false, err
	}
	return liked, nil
}

// RecordUsage stores one usage record and re-derives the template's usage
// count from the stats rows.
func (s *PromptService) RecordUsage(userID, templateID uint, aiModel string) error {
	if _, err := s.load(templateID); err != nil {
		return err
	}
	stats := &model.PromptUsageStats{TemplateID: templateID, UserID: userID, AiModel: aiModel}
	if err := s.db.Create(stats).Error; err != nil {
		return fmt.Errorf("save usage record: %w", err)
	}

	var count int64
	if err := s.db.Model(&model.PromptUsageStats{}).Where("template_id = ?", templateID).Count(&count).Error; err != nil {
		return err
	}
	return s.db.Model(&model.PromptTemplate{}).Where("id = ?", templateID).
		Update("usage_count", count).Error
}

func (s *PromptService) load(templateID uint) (*model.PromptTemplate, error) {
	var template model.PromptTemplate
	err := s.db.First(&template, templateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (s *PromptService) syncLikeCount(templateID uint) error {
	var count int64
	if err := s.db.Model(&model.PromptLike{}).Where("template_id = ?", templateID).Count(&count).Error; err != nil {
		return err
	}
	return s.db.Model(&model.PromptTemplate{}).Where("id = ?", templateID).
		Update("like_count", count).Error
}

// decorate joins category names and the user's like state onto templates.
func (s *PromptService) decorate(templates []model.PromptTemplate, userID uint) ([]PromptView, error) {
	views := make([]PromptView, 0, len(templates))
	if len(templates) == 0 {
		return views, nil
	}

	var categories []model.PromptCategory
	if err := s.db.Find(&categories).Error; err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	likedIDs := map[uint]bool{}
	if userID != 0 {
		var ids []uint
		err := s.db.Model(&model.PromptLike{}).Where("user_id = ?", userID).
			Pluck("template_id", &ids).Error
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			likedIDs[id] = true
		}
	}

	for _, t := range templates {
		name, ok := names[t.CategoryID]
		if !ok {
			name = "未分类"
		}
		views = append(views, PromptView{
			PromptTemplate: t,
			CategoryName:   name,
			Liked:          likedIDs[t.ID],
		})
	}
	return views, nil
}

func parseDifficulty(s string) model.DifficultyLevel {
	switch model.DifficultyLevel(s) {
	case model.DifficultyIntermediate, model.DifficultyAdvanced:
		return model.DifficultyLevel(s)
	default:
		return model.DifficultyBeginner
	}
}

func defaultIfEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
