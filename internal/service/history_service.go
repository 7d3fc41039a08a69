package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/metrics"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/internal/repository/contract"
	"gemini-chat-be/pkg/store"

	"github.com/google/uuid"
)

const logModuleHistory = "History"

type IHistoryService interface {
	// Save writes the current conversation and points the last-chat pointer at it.
	// Failures become notices; the chat keeps going.
	Save(ctx context.Context, sess *store.Session) bool
	Load(ctx context.Context, sess *store.Session, id string) error
	// Restore adopts a persisted conversation without saving the current one first.
	Restore(ctx context.Context, sess *store.Session, id string) error
	Import(ctx context.Context, sess *store.Session, data []byte, overwrite bool) (*entity.Conversation, error)
	List(ctx context.Context) ([]entity.ConversationSummary, error)
	Delete(ctx context.Context, sess *store.Session, id string) (bool, error)
	Rename(ctx context.Context, sess *store.Session, id, newName string) (bool, error)
	BeginRename(sess *store.Session, id string)
	CancelRename(sess *store.Session)
	NewChat(ctx context.Context, sess *store.Session) error
	Export(sess *store.Session) (string, []byte, error)
	ClearMessages(ctx context.Context, sess *store.Session) error
	LastActiveId(ctx context.Context) string
}

type historyService struct {
	repo        contract.ConversationRepository
	modelClient IModelClientService
	notifier    *notifier
	logger      logger.ILogger
	now         func() time.Time
}

func NewHistoryService(repo contract.ConversationRepository, modelClient IModelClientService, publisher IPublisherService, log logger.ILogger) IHistoryService {
	return &historyService{
		repo:        repo,
		modelClient: modelClient,
		notifier:    newNotifier(publisher, log),
		logger:      log,
		now:         time.Now,
	}
}

func (s *historyService) Save(ctx context.Context, sess *store.Session) bool {
	c := sess.Conversation
	if c == nil {
		return false
	}

	err := s.repo.Save(ctx, c)
	metrics.RecordPersistence("save", err)
	if err != nil {
		s.notifier.notify(ctx, sess, constant.NoticeError, fmt.Sprintf("Error saving chat: %v", err))
		return false
	}

	if err := s.repo.SetLastActiveId(ctx, c.Id); err != nil {
		s.logger.Warn(logModuleHistory, "Failed to update last chat pointer", map[string]interface{}{"chat_id": c.Id, "error": err.Error()})
	}

	s.logger.Debug(logModuleHistory, "Chat saved", map[string]interface{}{"session_id": sess.ID, "chat_id": c.Id, "messages": len(c.Messages)})
	return true
}

func (s *historyService) Load(ctx context.Context, sess *store.Session, id string) error {
	if sess.Generating {
		return ErrGenerationInProgress
	}

	if sess.Conversation != nil && sess.Conversation.Id != id {
		s.Save(ctx, sess)
	}

	if err := s.Restore(ctx, sess, id); err != nil {
		s.notifier.notify(ctx, sess, constant.NoticeError, loadFailureMessage(id, err))
		return err
	}

	s.modelClient.InitializeModel(ctx, sess)
	s.notifier.notify(ctx, sess, constant.NoticeSuccess, fmt.Sprintf("Loaded '%s'.", sess.Conversation.Name))
	s.notifier.conversationChanged(ctx, sess, "loaded")
	return nil
}

func (s *historyService) Restore(ctx context.Context, sess *store.Session, id string) error {
	c, err := s.repo.FindById(ctx, id)
	metrics.RecordPersistence("load", err)
	if err != nil {
		s.logger.Warn(logModuleHistory, "Failed to load chat", map[string]interface{}{"chat_id": id, "error": err.Error()})
		return err
	}

	// The file name is the identity; a stale chat_id inside the document loses.
	c.Id = id

	sess.Conversation = c
	sess.ClearAttachments()
	sess.RenamingChatId = ""

	if err := s.repo.SetLastActiveId(ctx, id); err != nil {
		s.logger.Warn(logModuleHistory, "Failed to update last chat pointer", map[string]interface{}{"chat_id": id, "error": err.Error()})
	}

	s.logger.Info(logModuleHistory, "Chat loaded", map[string]interface{}{"session_id": sess.ID, "chat_id": id, "responses": c.ResponseCount})
	return nil
}

func (s *historyService) Import(ctx context.Context, sess *store.Session, data []byte, overwrite bool) (*entity.Conversation, error) {
	if sess.Generating {
		return nil, ErrGenerationInProgress
	}

	c, err := s.repo.Decode(data)
	metrics.RecordPersistence("import", err)
	if err != nil {
		s.notifier.notify(ctx, sess, constant.NoticeError, fmt.Sprintf("Import failed: %v", err))
		return nil, err
	}

	c.Id = s.importId(ctx, c.Id, overwrite)

	if sess.Conversation != nil && sess.Conversation.Id != c.Id {
		s.Save(ctx, sess)
	}

	sess.Conversation = c
	sess.ClearAttachments()
	sess.RenamingChatId = ""

	s.modelClient.InitializeModel(ctx, sess)
	if !s.Save(ctx, sess) {
		return c, ErrWriteFailure
	}

	s.notifier.notify(ctx, sess, constant.NoticeSuccess, fmt.Sprintf("Imported '%s'.", c.Name))
	s.notifier.conversationChanged(ctx, sess, "imported")
	return c, nil
}

// importId keeps the document's id unless it is unusable or would silently replace another chat.
func (s *historyService) importId(ctx context.Context, id string, overwrite bool) string {
	if !entity.ValidConversationId(id) {
		return uuid.NewString()
	}
	if overwrite {
		return id
	}
	exists, err := s.repo.Exists(ctx, id)
	if err != nil || exists {
		return uuid.NewString()
	}
	return id
}

// List returns saved chats, most recent first. Chats without a readable timestamp go last.
func (s *historyService) List(ctx context.Context) ([]entity.ConversationSummary, error) {
	summaries, err := s.repo.FindAll(ctx)
	metrics.RecordPersistence("list", err)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].SavedAt, summaries[j].SavedAt
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.After(b)
	})
	return summaries, nil
}

func (s *historyService) Delete(ctx context.Context, sess *store.Session, id string) (bool, error) {
	isCurrent := sess.Conversation != nil && sess.Conversation.Id == id
	if isCurrent && sess.Generating {
		return false, ErrGenerationInProgress
	}

	existed, err := s.repo.Delete(ctx, id)
	metrics.RecordPersistence("delete", err)
	if err != nil {
		s.notifier.notify(ctx, sess, constant.NoticeError, fmt.Sprintf("Error deleting chat: %v", err))
		return false, err
	}

	if last, err := s.repo.GetLastActiveId(ctx); err == nil && last == id {
		if err := s.repo.ClearLastActiveId(ctx); err != nil {
			s.logger.Warn(logModuleHistory, "Failed to clear last chat pointer", map[string]interface{}{"chat_id": id, "error": err.Error()})
		}
	}
	if sess.RenamingChatId == id {
		sess.RenamingChatId = ""
	}

	s.logger.Info(logModuleHistory, "Chat deleted", map[string]interface{}{"session_id": sess.ID, "chat_id": id, "existed": existed})

	if !isCurrent {
		if existed {
			s.notifier.notify(ctx, sess, constant.NoticeSuccess, "Chat deleted.")
		}
		return existed, nil
	}

	if s.restoreMostRecent(ctx, sess) {
		s.modelClient.InitializeModel(ctx, sess)
		s.notifier.notify(ctx, sess, constant.NoticeInfo, "Deleted current, loaded recent.")
	} else {
		sess.ResetConversation("")
		s.modelClient.InitializeModel(ctx, sess)
		s.Save(ctx, sess)
		s.notifier.notify(ctx, sess, constant.NoticeInfo, "Deleted last chat, started new one.")
	}
	s.notifier.conversationChanged(ctx, sess, "deleted")
	return existed, nil
}

func (s *historyService) restoreMostRecent(ctx context.Context, sess *store.Session) bool {
	summaries, err := s.List(ctx)
	if err != nil {
		return false
	}
	for _, summary := range summaries {
		if s.Restore(ctx, sess, summary.Id) == nil {
			return true
		}
	}
	return false
}

func (s *historyService) Rename(ctx context.Context, sess *store.Session, id, newName string) (bool, error) {
	name := strings.TrimSpace(newName)
	if name == "" {
		sess.RenamingChatId = ""
		return false, nil
	}

	if sess.Conversation != nil && sess.Conversation.Id == id {
		sess.RenamingChatId = ""
		if sess.Conversation.Name == name {
			return false, nil
		}
		sess.Conversation.Name = name
		if !s.Save(ctx, sess) {
			return false, ErrWriteFailure
		}
		s.notifier.notify(ctx, sess, constant.NoticeSuccess, fmt.Sprintf("Renamed to '%s'.", name))
		s.notifier.conversationChanged(ctx, sess, "renamed")
		return true, nil
	}

	c, err := s.repo.FindById(ctx, id)
	if err != nil {
		s.notifier.notify(ctx, sess, constant.NoticeError, loadFailureMessage(id, err))
		return false, err
	}
	sess.RenamingChatId = ""
	if c.Name == name {
		return false, nil
	}

	c.Id = id
	c.Name = name
	err = s.repo.Save(ctx, c)
	metrics.RecordPersistence("save", err)
	if err != nil {
		s.notifier.notify(ctx, sess, constant.NoticeError, fmt.Sprintf("Error renaming chat: %v", err))
		return false, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	s.notifier.notify(ctx, sess, constant.NoticeSuccess, fmt.Sprintf("Renamed to '%s'.", name))
	return true, nil
}

func (s *historyService) BeginRename(sess *store.Session, id string) {
	sess.RenamingChatId = id
}

func (s *historyService) CancelRename(sess *store.Session) {
	sess.RenamingChatId = ""
}

func (s *historyService) NewChat(ctx context.Context, sess *store.Session) error {
	if sess.Generating {
		return ErrGenerationInProgress
	}

	s.Save(ctx, sess)
	sess.ResetConversation("")
	s.modelClient.InitializeModel(ctx, sess)
	s.Save(ctx, sess)

	s.notifier.notify(ctx, sess, constant.NoticeSuccess, "Started new chat.")
	s.notifier.conversationChanged(ctx, sess, "new")
	return nil
}

// Export renders the current conversation as a download: chat_export_<name>_<YYYYMMDD_HHMM>.json.
func (s *historyService) Export(sess *store.Session) (string, []byte, error) {
	c := sess.Conversation
	if c == nil {
		return "", nil, ErrConversationNotFound
	}

	data, err := s.repo.Encode(c)
	metrics.RecordPersistence("export", err)
	if err != nil {
		return "", nil, err
	}

	filename := fmt.Sprintf("chat_export_%s_%s.json", safeFileName(c.Name), s.now().Format("20060102_1504"))
	return filename, data, nil
}

func (s *historyService) ClearMessages(ctx context.Context, sess *store.Session) error {
	if sess.Generating {
		return ErrGenerationInProgress
	}

	c := sess.Conversation
	c.Messages = []*entity.Turn{}
	c.ResponseCount = 0
	sess.ClearAttachments()

	s.Save(ctx, sess)
	s.notifier.notify(ctx, sess, constant.NoticeSuccess, "Messages cleared.")
	s.notifier.conversationChanged(ctx, sess, "cleared")
	return nil
}

func (s *historyService) LastActiveId(ctx context.Context) string {
	id, err := s.repo.GetLastActiveId(ctx)
	if err != nil {
		s.logger.Warn(logModuleHistory, "Failed to read last chat pointer", map[string]interface{}{"error": err.Error()})
		return ""
	}
	return id
}

func safeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)
}

func loadFailureMessage(id string, err error) string {
	switch {
	case errors.Is(err, ErrConversationNotFound):
		return fmt.Sprintf("Chat %s not found.", id)
	case errors.Is(err, ErrCorruptConversation):
		return fmt.Sprintf("Chat %s is corrupt and could not be loaded.", id)
	case errors.Is(err, ErrInvalidConversationId):
		return fmt.Sprintf("Invalid chat id %q.", id)
	default:
		return fmt.Sprintf("Error loading chat %s: %v", id, err)
	}
}
