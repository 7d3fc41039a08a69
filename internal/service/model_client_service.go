package service

import (
	"context"
	"fmt"
	"strings"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/pkg/llm"
	"gemini-chat-be/pkg/llm/factory"
	"gemini-chat-be/pkg/store"
)

// ProviderFactory builds a generation backend for a credential.
type ProviderFactory func(cfg factory.ProviderConfig) (llm.LLMProvider, error)

type ModelClientConfig struct {
	Provider            string
	GeminiBaseURL       string
	OllamaBaseURL       string
	DefaultSystemPrompt string
}

type IModelClientService interface {
	// ConfigureClient builds the provider from the session's API key and initializes the model.
	ConfigureClient(ctx context.Context, sess *store.Session) bool
	// InitializeModel readies the session's model settings on a configured client.
	InitializeModel(ctx context.Context, sess *store.Session) bool
	ResetClient(sess *store.Session)
}

type modelClientService struct {
	cfg        ModelClientConfig
	newBackend ProviderFactory
	notifier   *notifier
	logger     logger.ILogger
}

func NewModelClientService(cfg ModelClientConfig, newBackend ProviderFactory, publisher IPublisherService, log logger.ILogger) IModelClientService {
	if newBackend == nil {
		newBackend = factory.NewLLMProvider
	}
	return &modelClientService{
		cfg:        cfg,
		newBackend: newBackend,
		notifier:   newNotifier(publisher, log),
		logger:     log,
	}
}

func (s *modelClientService) ConfigureClient(ctx context.Context, sess *store.Session) bool {
	// Only the hosted provider needs a key.
	needsKey := s.cfg.Provider == "" || s.cfg.Provider == "gemini"
	if needsKey && strings.TrimSpace(sess.APIKey) == "" {
		s.ResetClient(sess)
		s.logger.Info("ModelClient", "API key not set, client not configured", map[string]interface{}{"session_id": sess.ID})
		return false
	}

	provider, err := s.newBackend(factory.ProviderConfig{
		Provider:      s.cfg.Provider,
		APIKey:        sess.APIKey,
		ModelName:     sess.Conversation.ModelName,
		GeminiBaseURL: s.cfg.GeminiBaseURL,
		OllamaBaseURL: s.cfg.OllamaBaseURL,
	})
	if err != nil {
		s.ResetClient(sess)
		s.notifier.notify(ctx, sess, constant.NoticeError, fmt.Sprintf("Failed to configure the model client: %v", err))
		return false
	}

	sess.Provider = provider
	sess.ClientConfigured = true
	s.logger.Info("ModelClient", "Client configured", map[string]interface{}{"session_id": sess.ID, "provider": provider.Name()})

	return s.InitializeModel(ctx, sess)
}

func (s *modelClientService) InitializeModel(ctx context.Context, sess *store.Session) bool {
	if !sess.ClientConfigured || sess.Provider == nil {
		sess.ModelReady = false
		s.logger.Debug("ModelClient", "Client not configured, cannot initialize model", map[string]interface{}{"session_id": sess.ID})
		return false
	}

	c := sess.Conversation
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = s.cfg.DefaultSystemPrompt
	}
	if strings.TrimSpace(c.ModelName) == "" {
		sess.ModelReady = false
		sess.ModelError = "no model selected"
		s.notifier.notify(ctx, sess, constant.NoticeError, "Error initializing model: no model selected")
		return false
	}

	sess.ModelReady = true
	sess.ModelError = ""
	s.logger.Info("ModelClient", "Model initialized", map[string]interface{}{"session_id": sess.ID, "model": c.ModelName})
	return true
}

func (s *modelClientService) ResetClient(sess *store.Session) {
	sess.Provider = nil
	sess.ClientConfigured = false
	sess.ModelReady = false
}
