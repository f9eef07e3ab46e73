package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Port      string // HTTP port
	DBPath    string // SQLite database path
	JWTSecret string // JWT signing secret
	DataDir   string // Data directory root
	UploadDir string // Directory for uploaded/generated media

	OpenRouter OpenRouterConfig
	Local      LocalConfig
	DashScope  DashScopeConfig
	Meshy      MeshyConfig

	// Defaults applied when a request carries no model id.
	DefaultChatModel  string
	DefaultImageModel string
}

// OpenRouterConfig configures the remote chat-completion provider.
type OpenRouterConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// LocalConfig configures the local fallback model.
// When BaseURL is empty the provider answers with simulated replies.
type LocalConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
}

// DashScopeConfig configures the image-synthesis provider.
type DashScopeConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
}

// MeshyConfig configures the 3D-generation provider.
type MeshyConfig struct {
	BaseURL string
	APIKey  string
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	dataDir := envOrDefault("AIPLATFORM_DATA_DIR", "./data")

	cfg := &Config{
		Port:      envOrDefault("AIPLATFORM_PORT", "8080"),
		DBPath:    envOrDefault("AIPLATFORM_DB_PATH", filepath.Join(dataDir, "aiplatform.db")),
		JWTSecret: envOrDefault("AIPLATFORM_JWT_SECRET", "aiplatform-change-me-in-production"),
		DataDir:   dataDir,
		UploadDir: envOrDefault("AIPLATFORM_UPLOAD_DIR", filepath.Join(dataDir, "uploads")),

		OpenRouter: OpenRouterConfig{
			BaseURL:   envOrDefault("AIPLATFORM_OPENROUTER_URL", "https://openrouter.ai/api/v1"),
			APIKey:    os.Getenv("AIPLATFORM_OPENROUTER_KEY"),
			Model:     envOrDefault("AIPLATFORM_OPENROUTER_MODEL", "openai/gpt-4.1-nano"),
			MaxTokens: envIntOrDefault("AIPLATFORM_OPENROUTER_MAX_TOKENS", 2000),
		},
		Local: LocalConfig{
			Enabled: envOrDefault("AIPLATFORM_LOCAL_ENABLED", "true") == "true",
			BaseURL: os.Getenv("AIPLATFORM_LOCAL_URL"),
			APIKey:  os.Getenv("AIPLATFORM_LOCAL_KEY"),
		},
		DashScope: DashScopeConfig{
			BaseURL: envOrDefault("AIPLATFORM_DASHSCOPE_URL", "https://dashscope.aliyuncs.com/api/v1"),
			APIKey:  os.Getenv("AIPLATFORM_DASHSCOPE_KEY"),
			Model:   envOrDefault("AIPLATFORM_DASHSCOPE_MODEL", "wanx-v1"),
			Size:    envOrDefault("AIPLATFORM_DASHSCOPE_SIZE", "1024*1024"),
		},
		Meshy: MeshyConfig{
			BaseURL: envOrDefault("AIPLATFORM_MESHY_URL", "https://api.meshy.ai/openapi/v2"),
			APIKey:  os.Getenv("AIPLATFORM_MESHY_KEY"),
		},

		DefaultChatModel:  envOrDefault("AIPLATFORM_DEFAULT_CHAT_MODEL", "openai/gpt-4.1-nano"),
		DefaultImageModel: envOrDefault("AIPLATFORM_DEFAULT_IMAGE_MODEL", "wanx-v1"),
	}

	// Ensure directories exist
	os.MkdirAll(dataDir, 0755)
	os.MkdirAll(cfg.UploadDir, 0755)

	return cfg
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
