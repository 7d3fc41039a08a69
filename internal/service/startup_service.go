package service

import (
	"context"
	"fmt"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/pkg/store"
)

// What startup did with the session's conversation.
const (
	StartupSkipped    = "skipped"
	StartupFresh      = "fresh"
	StartupAutoloaded = "autoloaded"
	StartupReset      = "reset"
)

type IStartupService interface {
	// Run reconciles a new session with what is on disk. Only the first call per session does
	// anything besides flushing the auto-load notice.
	Run(ctx context.Context, sess *store.Session) string
}

type startupService struct {
	history     IHistoryService
	modelClient IModelClientService
	notifier    *notifier
	logger      logger.ILogger
}

func NewStartupService(history IHistoryService, modelClient IModelClientService, publisher IPublisherService, log logger.ILogger) IStartupService {
	return &startupService{
		history:     history,
		modelClient: modelClient,
		notifier:    newNotifier(publisher, log),
		logger:      log,
	}
}

func (s *startupService) Run(ctx context.Context, sess *store.Session) string {
	outcome := StartupSkipped

	if sess.AppJustStarted {
		sess.AppJustStarted = false
		sess.LoadedOnStart = false

		outcome = s.reconcile(ctx, sess)

		if !sess.InitialKeyCheckDone {
			if sess.APIKey != "" && !sess.ClientConfigured {
				s.logger.Info("Startup", "Performing initial API key check", map[string]interface{}{"session_id": sess.ID})
				s.modelClient.ConfigureClient(ctx, sess)
			} else if sess.APIKey == "" {
				s.logger.Info("Startup", "API key not found for initial check", map[string]interface{}{"session_id": sess.ID})
			}
			sess.InitialKeyCheckDone = true
		}
	}

	if sess.LoadedOnStart {
		s.notifier.notify(ctx, sess, constant.NoticeSuccess, fmt.Sprintf("Chat '%s' auto-loaded!", sess.Conversation.Name))
		sess.LoadedOnStart = false
	}

	return outcome
}

func (s *startupService) reconcile(ctx context.Context, sess *store.Session) string {
	details := map[string]interface{}{"session_id": sess.ID}

	if !sess.AutoloadLastChat {
		s.logger.Info("Startup", "Autoload disabled, starting fresh", details)
		s.startFresh(ctx, sess)
		return StartupFresh
	}

	lastId := s.history.LastActiveId(ctx)
	if lastId == "" {
		s.logger.Info("Startup", "No last chat id found, starting fresh", details)
		s.startFresh(ctx, sess)
		return StartupFresh
	}

	details["chat_id"] = lastId
	if err := s.history.Restore(ctx, sess, lastId); err != nil {
		details["error"] = err.Error()
		s.logger.Warn("Startup", "Failed to autoload last chat, starting fresh", details)

		sess.ResetConversation(sess.Conversation.Id)
		s.history.Save(ctx, sess)
		s.modelClient.InitializeModel(ctx, sess)
		return StartupReset
	}

	sess.LoadedOnStart = true
	s.modelClient.InitializeModel(ctx, sess)
	s.logger.Info("Startup", "Autoloaded last chat", details)
	return StartupAutoloaded
}

func (s *startupService) startFresh(ctx context.Context, sess *store.Session) {
	s.history.Save(ctx, sess)
	s.modelClient.InitializeModel(ctx, sess)
}
