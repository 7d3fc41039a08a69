package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultSystemPrompt = "You are a helpful and friendly AI assistant. Analyze any provided images or document content carefully. Be concise and informative in your responses."

var defaultModels = []string{
	"gemini-2.5-pro-preview-03-25",
	"gemini-2.0-flash",
	"gemini-2.0-flash-lite",
	"gemini-1.5-flash",
	"gemini-1.5-flash-8b",
	"gemini-1.5-pro",
}

type Config struct {
	App      AppConfig
	History  HistoryConfig
	Keys     APIKeys
	Ai       AIConfig
	Defaults DefaultsConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	StaticDir          string
	EventsTopic        string
	SessionTTL         time.Duration
	BodyLimitMB        int
}

type HistoryConfig struct {
	Dir         string
	PointerFile string
}

type APIKeys struct {
	GoogleGemini string
}

type AIConfig struct {
	LLMProvider        string // "gemini" or "ollama"
	GeminiBaseURL      string
	OllamaBaseURL      string
	GenerationTimeout  time.Duration
	GenerationLogPath  string
	MaxAttachmentBytes int64
	MaxTokensCeiling   int
	AvailableModels    []string
}

// DefaultsConfig seeds new sessions and fills gaps in loaded chats.
type DefaultsConfig struct {
	ModelName        string
	SystemPrompt     string
	Temperature      float64
	TopP             float64
	MaxTokens        int
	AutoloadLastChat bool
}

// OtelConfig controls the OTLP trace exporter. Tracing stays off unless Enabled.
type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	maxTokens := getEnvAsInt("DEFAULT_MAX_TOKENS", 100000)

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			StaticDir:          getEnv("STATIC_DIR", "./web"),
			EventsTopic:        getEnv("EVENTS_TOPIC", "session.events"),
			SessionTTL:         getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			BodyLimitMB:        getEnvAsInt("BODY_LIMIT_MB", 25),
		},
		History: HistoryConfig{
			Dir:         getEnv("HISTORY_DIR", "chat_history"),
			PointerFile: getEnv("LAST_CHAT_FILE", ".last_chat_id"),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_API_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:        getEnv("LLM_PROVIDER", "gemini"),
			GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			GenerationTimeout:  getEnvAsDuration("GENERATION_TIMEOUT", 5*time.Minute),
			GenerationLogPath:  getEnv("GENERATION_LOG_PATH", "logs/generation.log"),
			MaxAttachmentBytes: int64(getEnvAsInt("MAX_ATTACHMENT_BYTES", 20*1024*1024)),
			MaxTokensCeiling:   getEnvAsInt("MAX_TOKENS_CEILING", maxTokens),
			AvailableModels:    getEnvAsList("AVAILABLE_MODELS", defaultModels),
		},
		Defaults: DefaultsConfig{
			ModelName:        getEnv("DEFAULT_MODEL_NAME", "gemini-2.0-flash-lite"),
			SystemPrompt:     getEnv("DEFAULT_SYSTEM_PROMPT", DefaultSystemPrompt),
			Temperature:      getEnvAsFloat("DEFAULT_TEMPERATURE", 0.7),
			TopP:             getEnvAsFloat("DEFAULT_TOP_P", 0.95),
			MaxTokens:        maxTokens,
			AutoloadLastChat: getEnvAsBool("AUTOLOAD_LAST_CHAT", true),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "gemini-chat-be"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, fallback []string) []string {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(strValue, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
