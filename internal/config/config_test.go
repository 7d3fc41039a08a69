package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	for _, key := range []string{"HISTORY_DIR", "DEFAULT_MODEL_NAME", "DEFAULT_MAX_TOKENS", "MAX_TOKENS_CEILING", "AVAILABLE_MODELS", "AUTOLOAD_LAST_CHAT", "OTEL_ENABLED", "OTEL_SERVICE_NAME"} {
		t.Setenv(key, "") // restores the original value on cleanup
		os.Unsetenv(key)
	}

	cfg := Load()
	assert.Equal(t, "chat_history", cfg.History.Dir)
	assert.Equal(t, "gemini-2.0-flash-lite", cfg.Defaults.ModelName)
	assert.Equal(t, 100000, cfg.Defaults.MaxTokens)
	assert.Equal(t, 100000, cfg.Ai.MaxTokensCeiling)
	assert.Equal(t, defaultModels, cfg.Ai.AvailableModels)
	assert.True(t, cfg.Defaults.AutoloadLastChat)
	assert.False(t, cfg.Otel.Enabled)
	assert.Equal(t, "gemini-chat-be", cfg.Otel.ServiceName)

	t.Setenv("HISTORY_DIR", "chats")
	t.Setenv("DEFAULT_MAX_TOKENS", "4096")
	t.Setenv("AVAILABLE_MODELS", " gemini-2.0-flash , ,gemini-1.5-pro ")
	t.Setenv("AUTOLOAD_LAST_CHAT", "false")
	t.Setenv("GENERATION_TIMEOUT", "90s")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SERVICE_NAME", "chat-staging")

	cfg = Load()
	assert.Equal(t, "chats", cfg.History.Dir)
	assert.Equal(t, ".last_chat_id", cfg.History.PointerFile)
	assert.Equal(t, 4096, cfg.Defaults.MaxTokens)
	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-1.5-pro"}, cfg.Ai.AvailableModels)
	assert.False(t, cfg.Defaults.AutoloadLastChat)
	assert.Equal(t, 90*time.Second, cfg.Ai.GenerationTimeout)
	assert.True(t, cfg.Otel.Enabled)
	assert.Equal(t, "chat-staging", cfg.Otel.ServiceName)
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "not-a-number")
	t.Setenv("CFG_TEST_FLOAT", "0.25")
	t.Setenv("CFG_TEST_LIST", " , ")

	assert.Equal(t, 7, getEnvAsInt("CFG_TEST_INT", 7))
	assert.InDelta(t, 0.25, getEnvAsFloat("CFG_TEST_FLOAT", 1), 1e-9)
	assert.Equal(t, []string{"a"}, getEnvAsList("CFG_TEST_LIST", []string{"a"}))
	assert.True(t, getEnvAsBool("CFG_TEST_MISSING", true))
	assert.Equal(t, time.Minute, getEnvAsDuration("CFG_TEST_MISSING", time.Minute))
}
