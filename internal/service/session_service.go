package service

import (
	"context"
	"fmt"
	"strings"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/dto"
	"gemini-chat-be/internal/metrics"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/internal/repository/memory"
	"gemini-chat-be/pkg/store"
)

type SessionConfig struct {
	Defaults         store.Defaults
	AvailableModels  []string
	MaxTokensCeiling int
}

type ISessionService interface {
	// Acquire returns the session for id, locked, with defaults in place and startup done.
	// Callers must Release it.
	Acquire(ctx context.Context, id string) *store.Session
	Release(sess *store.Session)
	UpdateCredential(ctx context.Context, sess *store.Session, apiKey string) bool
	UpdateSettings(ctx context.Context, sess *store.Session, req *dto.UpdateSettingsRequest) error
	Snapshot(sess *store.Session) *dto.SessionResponse
	AvailableModels(sess *store.Session) []string
}

type sessionService struct {
	cfg         SessionConfig
	sessions    *memory.SessionRepository
	history     IHistoryService
	modelClient IModelClientService
	startup     IStartupService
	attachments IAttachmentService
	notifier    *notifier
	logger      logger.ILogger
}

func NewSessionService(
	cfg SessionConfig,
	sessions *memory.SessionRepository,
	history IHistoryService,
	modelClient IModelClientService,
	startup IStartupService,
	attachments IAttachmentService,
	publisher IPublisherService,
	log logger.ILogger,
) ISessionService {
	return &sessionService{
		cfg:         cfg,
		sessions:    sessions,
		history:     history,
		modelClient: modelClient,
		startup:     startup,
		attachments: attachments,
		notifier:    newNotifier(publisher, log),
		logger:      log,
	}
}

func (s *sessionService) Acquire(ctx context.Context, id string) *store.Session {
	sess, created := s.sessions.GetOrCreate(id)
	if created {
		metrics.ActiveSessions.Set(float64(s.sessions.Count()))
		s.logger.Info("Session", "Session created", map[string]interface{}{"session_id": sess.ID})
	}

	sess.Lock()
	sess.InitializeDefaults(s.cfg.Defaults)
	s.startup.Run(ctx, sess)
	return sess
}

func (s *sessionService) Release(sess *store.Session) {
	sess.Unlock()
}

func (s *sessionService) UpdateCredential(ctx context.Context, sess *store.Session, apiKey string) bool {
	sess.APIKey = strings.TrimSpace(apiKey)
	s.modelClient.ResetClient(sess)

	if sess.APIKey == "" {
		s.notifier.notify(ctx, sess, constant.NoticeWarning, "API key cleared.")
		return false
	}

	if !s.modelClient.ConfigureClient(ctx, sess) {
		return false
	}
	s.notifier.notify(ctx, sess, constant.NoticeSuccess, "API key configured.")
	return true
}

func (s *sessionService) UpdateSettings(ctx context.Context, sess *store.Session, req *dto.UpdateSettingsRequest) error {
	if sess.Generating {
		return ErrGenerationInProgress
	}
	if req.MaxTokens != nil && s.cfg.MaxTokensCeiling > 0 && *req.MaxTokens > s.cfg.MaxTokensCeiling {
		return fmt.Errorf("%w: max_tokens must be at most %d", ErrInvalidSettings, s.cfg.MaxTokensCeiling)
	}

	c := sess.Conversation
	reinitialize := false
	changed := false

	if req.ModelName != nil && *req.ModelName != c.ModelName {
		c.ModelName = *req.ModelName
		reinitialize, changed = true, true
	}
	if req.SystemPrompt != nil && *req.SystemPrompt != c.SystemPrompt {
		c.SystemPrompt = *req.SystemPrompt
		reinitialize, changed = true, true
	}
	if req.Temperature != nil && *req.Temperature != c.Temperature {
		c.Temperature = *req.Temperature
		changed = true
	}
	if req.TopP != nil && *req.TopP != c.TopP {
		c.TopP = *req.TopP
		changed = true
	}
	if req.MaxTokens != nil && *req.MaxTokens != c.MaxTokens {
		c.MaxTokens = *req.MaxTokens
		changed = true
	}
	if req.AutoloadLastChat != nil {
		sess.AutoloadLastChat = *req.AutoloadLastChat
	}

	if reinitialize && s.modelClient.InitializeModel(ctx, sess) {
		s.notifier.notify(ctx, sess, constant.NoticeInfo, fmt.Sprintf("Model '%s' ready.", c.ModelName))
	}
	if changed {
		s.history.Save(ctx, sess)
	}
	return nil
}

func (s *sessionService) Snapshot(sess *store.Session) *dto.SessionResponse {
	notices := sess.DrainNotices()
	res := &dto.SessionResponse{
		SessionId:          sess.ID,
		Conversation:       dto.NewConversationResponse(sess.Conversation),
		ApiKeySet:          sess.APIKey != "",
		ClientConfigured:   sess.ClientConfigured,
		ModelReady:         sess.ModelReady,
		ModelError:         sess.ModelError,
		AutoloadLastChat:   sess.AutoloadLastChat,
		RenamingChatId:     sess.RenamingChatId,
		Generating:         sess.Generating,
		PendingAttachments: s.attachments.PendingNames(sess),
		AvailableModels:    s.AvailableModels(sess),
		Notices:            make([]dto.NoticeResponse, 0, len(notices)),
	}
	for _, n := range notices {
		res.Notices = append(res.Notices, dto.NoticeResponse{Level: n.Level, Message: n.Message, At: n.At})
	}
	return res
}

// AvailableModels lists the configured models, with the conversation's model first when it is
// not one of them.
func (s *sessionService) AvailableModels(sess *store.Session) []string {
	models := make([]string, 0, len(s.cfg.AvailableModels)+1)
	current := ""
	if sess.Conversation != nil {
		current = sess.Conversation.ModelName
	}

	known := false
	for _, m := range s.cfg.AvailableModels {
		if m == current {
			known = true
		}
	}
	if current != "" && !known {
		models = append(models, current)
	}
	return append(models, s.cfg.AvailableModels...)
}
