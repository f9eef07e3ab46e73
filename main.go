package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/ai-platform/aiplatform/internal/auth"
	"github.com/ai-platform/aiplatform/internal/config"
	"github.com/ai-platform/aiplatform/internal/database"
	"github.com/ai-platform/aiplatform/internal/handler"
	"github.com/ai-platform/aiplatform/internal/provider"
	"github.com/ai-platform/aiplatform/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db := database.Init(cfg.DBPath)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Services
	fileSvc := service.NewFileService(db, cfg.UploadDir)
	chatSvc := service.NewChatService(db, logger)
	retentionSvc := service.NewRetentionService(db, fileSvc, logger)

	// Providers: chat completion falls back from the remote API to the
	// local model; image and 3D have a single backend each.
	registry := provider.NewRegistry(
		provider.NewOpenRouterClient(cfg.OpenRouter, fileSvc.ToBase64),
		provider.NewLocalClient(cfg.Local),
		provider.NewDashScopeClient(cfg.DashScope),
		provider.NewMeshyClient(cfg.Meshy),
	)
	router := service.NewModelRouter(db, registry, chatSvc, logger,
		cfg.DefaultChatModel, cfg.DefaultImageModel)

	// Daily retention sweep (external trigger for the cleanup engine)
	sched := cron.New()
	if _, err := sched.AddFunc("@daily", retentionSvc.SweepAll); err != nil {
		log.Fatalf("Failed to schedule retention sweep: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Setup Gin
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
	}))

	// ============ API Routes ============
	api := r.Group("/api")

	// Public routes (no auth required)
	loginLimiter := auth.NewLoginLimiter(5, 15*time.Minute)
	authH := handler.NewAuthHandler(db, cfg, loginLimiter)
	api.POST("/auth/register", authH.Register)
	api.POST("/auth/login", authH.Login)

	// Protected routes (JWT required)
	protected := api.Group("")
	protected.Use(auth.Middleware(cfg.JWTSecret))

	protected.GET("/auth/me", authH.Me)

	// Chats and messages
	chatH := handler.NewChatHandler(chatSvc, router, retentionSvc)
	protected.POST("/chats", chatH.Create)
	protected.GET("/chats", chatH.List)
	protected.GET("/chats/:id/messages", chatH.Messages)
	protected.POST("/chats/:id/messages", chatH.SendMessage)
	protected.PATCH("/chats/:id/title", chatH.UpdateTitle)
	protected.PATCH("/chats/:id/model", chatH.UpdateModel)
	protected.PATCH("/chats/:id/favorite", chatH.ToggleFavorite)
	protected.PATCH("/chats/:id/protect", chatH.ToggleProtection)
	protected.DELETE("/chats/:id", chatH.Delete)

	// Provider status and 3D tasks
	aiH := handler.NewAIHandler(registry, router, cfg)
	protected.GET("/ai/status", aiH.Status)
	protected.GET("/ai/config", aiH.Config)
	protected.GET("/ai/3d/tasks/:taskId", aiH.TaskStatus)
	protected.GET("/ai/3d/history", aiH.ThreeDHistory)

	// Data lifecycle
	dataH := handler.NewDataHandler(retentionSvc)
	protected.GET("/data/settings", dataH.GetSettings)
	protected.PUT("/data/settings", dataH.UpdateSettings)
	protected.GET("/data/cleanup/preview", dataH.PreviewCleanup)
	protected.POST("/data/cleanup", dataH.ExecuteCleanup)
	protected.GET("/data/statistics", dataH.Statistics)
	protected.POST("/data/wipe", dataH.Wipe)

	// Prompt template gallery
	promptSvc := service.NewPromptService(db, logger)
	promptH := handler.NewPromptHandler(promptSvc, db)
	protected.GET("/prompt-templates/categories", promptH.Categories)
	protected.GET("/prompt-templates", promptH.List)
	protected.GET("/prompt-templates/featured", promptH.Featured)
	protected.GET("/prompt-templates/popular", promptH.Popular)
	protected.GET("/prompt-templates/latest", promptH.Latest)
	protected.GET("/prompt-templates/recommended", promptH.Recommended)
	protected.GET("/prompt-templates/:id", promptH.Get)
	protected.POST("/prompt-templates", promptH.Create)
	protected.PUT("/prompt-templates/:id", promptH.Update)
	protected.DELETE("/prompt-templates/:id", promptH.Delete)
	protected.POST("/prompt-templates/:id/like", promptH.ToggleLike)
	protected.POST("/prompt-templates/:id/use", promptH.RecordUse)

	// Files
	fileH := handler.NewFileHandler(fileSvc)
	protected.POST("/files", fileH.Upload)
	protected.GET("/files/:name", fileH.Get)

	// Start server
	addr := ":" + cfg.Port
	log.Printf("AI platform starting on http://localhost%s", addr)
	log.Printf("Data directory: %s", cfg.DataDir)

	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
