package service

import (
	"context"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/pkg/events"
	"gemini-chat-be/pkg/store"
)

// notifier queues a notice on the session, publishes it to subscribers and logs it.
type notifier struct {
	publisher IPublisherService
	logger    logger.ILogger
}

func newNotifier(publisher IPublisherService, log logger.ILogger) *notifier {
	return &notifier{publisher: publisher, logger: log}
}

func (n *notifier) notify(ctx context.Context, sess *store.Session, level, message string) {
	notice := sess.Notify(level, message)

	details := map[string]interface{}{"session_id": sess.ID, "notice": message}
	switch level {
	case constant.NoticeError:
		n.logger.Error("Notice", message, details)
	case constant.NoticeWarning:
		n.logger.Warn("Notice", message, details)
	default:
		n.logger.Debug("Notice", message, details)
	}

	if n.publisher == nil {
		return
	}
	_ = n.publisher.Publish(ctx, events.New(events.TypeNotice, sess.ID, map[string]interface{}{
		"level":   notice.Level,
		"message": notice.Message,
	}))
}

// conversationChanged tells subscribers to re-fetch the session snapshot.
func (n *notifier) conversationChanged(ctx context.Context, sess *store.Session, reason string) {
	if n.publisher == nil || sess.Conversation == nil {
		return
	}
	_ = n.publisher.Publish(ctx, events.New(events.TypeConversation, sess.ID, map[string]interface{}{
		"reason":          reason,
		"conversation_id": sess.Conversation.Id,
		"name":            sess.Conversation.Name,
	}))
}
