package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/mapper"
	"gemini-chat-be/internal/model"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/internal/repository/contract"

	"github.com/go-playground/validator/v10"
)

const (
	FilePrefix          = "chat_"
	FileSuffix          = ".json"
	DefaultPointerFile  = ".last_chat_id"
	logModuleRepository = "ConversationRepository"
)

type ConversationFileRepositoryImpl struct {
	dir         string
	pointerFile string
	mapper      *mapper.ConversationMapper
	validate    *validator.Validate
	logger      logger.ILogger
	now         func() time.Time
}

func NewConversationFileRepository(dir, pointerFile string, m *mapper.ConversationMapper, log logger.ILogger) (contract.ConversationRepository, error) {
	if pointerFile == "" {
		pointerFile = DefaultPointerFile
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir %s: %w", dir, err)
	}
	return &ConversationFileRepositoryImpl{
		dir:         dir,
		pointerFile: pointerFile,
		mapper:      m,
		validate:    validator.New(),
		logger:      log,
		now:         time.Now,
	}, nil
}

func (r *ConversationFileRepositoryImpl) path(id string) string {
	return filepath.Join(r.dir, FilePrefix+id+FileSuffix)
}

func (r *ConversationFileRepositoryImpl) Save(ctx context.Context, conversation *entity.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !entity.ValidConversationId(conversation.Id) {
		return fmt.Errorf("%w: %q", contract.ErrInvalidConversationId, conversation.Id)
	}

	savedAt := r.now()
	data, err := r.encodeAt(conversation, savedAt)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(r.dir, r.path(conversation.Id), data); err != nil {
		return err
	}

	conversation.SavedAt = savedAt
	return nil
}

func (r *ConversationFileRepositoryImpl) FindById(ctx context.Context, id string) (*entity.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !entity.ValidConversationId(id) {
		return nil, fmt.Errorf("%w: %q", contract.ErrInvalidConversationId, id)
	}

	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", contract.ErrConversationNotFound, id)
		}
		return nil, fmt.Errorf("read conversation %s: %w", id, err)
	}

	return r.Decode(data)
}

func (r *ConversationFileRepositoryImpl) FindAll(ctx context.Context) ([]entity.ConversationSummary, error) {
	matches, err := filepath.Glob(filepath.Join(r.dir, FilePrefix+"*"+FileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	summaries := make([]entity.ConversationSummary, 0, len(matches))
	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		base := filepath.Base(match)
		fileId := strings.TrimSuffix(strings.TrimPrefix(base, FilePrefix), FileSuffix)

		data, err := os.ReadFile(match)
		if err != nil {
			r.logger.Warn(logModuleRepository, "Skipping unreadable conversation file", map[string]interface{}{"file": base, "error": err.Error()})
			continue
		}
		doc, err := r.decodeDocument(data)
		if err != nil {
			r.logger.Warn(logModuleRepository, "Skipping corrupt conversation file", map[string]interface{}{"file": base, "error": err.Error()})
			continue
		}

		summaries = append(summaries, r.mapper.ToSummary(fileId, doc))
	}

	return summaries, nil
}

func (r *ConversationFileRepositoryImpl) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !entity.ValidConversationId(id) {
		return false, fmt.Errorf("%w: %q", contract.ErrInvalidConversationId, id)
	}

	if err := os.Remove(r.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return true, nil
}

func (r *ConversationFileRepositoryImpl) Exists(ctx context.Context, id string) (bool, error) {
	if !entity.ValidConversationId(id) {
		return false, nil
	}
	_, err := os.Stat(r.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (r *ConversationFileRepositoryImpl) Encode(conversation *entity.Conversation) ([]byte, error) {
	return r.encodeAt(conversation, r.now())
}

func (r *ConversationFileRepositoryImpl) Decode(data []byte) (*entity.Conversation, error) {
	doc, err := r.decodeDocument(data)
	if err != nil {
		return nil, err
	}
	return r.mapper.ToEntity(doc), nil
}

func (r *ConversationFileRepositoryImpl) GetLastActiveId(ctx context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, r.pointerFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read last chat pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *ConversationFileRepositoryImpl) SetLastActiveId(ctx context.Context, id string) error {
	if !entity.ValidConversationId(id) {
		return fmt.Errorf("%w: %q", contract.ErrInvalidConversationId, id)
	}
	return writeFileAtomic(r.dir, filepath.Join(r.dir, r.pointerFile), []byte(id))
}

func (r *ConversationFileRepositoryImpl) ClearLastActiveId(ctx context.Context) error {
	err := os.Remove(filepath.Join(r.dir, r.pointerFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear last chat pointer: %w", err)
	}
	return nil
}

func (r *ConversationFileRepositoryImpl) encodeAt(conversation *entity.Conversation, savedAt time.Time) ([]byte, error) {
	doc := r.mapper.ToDocument(conversation, savedAt)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode conversation %s: %w", conversation.Id, err)
	}
	return data, nil
}

func (r *ConversationFileRepositoryImpl) decodeDocument(data []byte) (*model.ConversationDocument, error) {
	var doc model.ConversationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrCorruptConversation, err)
	}
	if err := r.validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrCorruptConversation, err)
	}
	return &doc, nil
}

// writeFileAtomic replaces path with data via a temp file in the same directory.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
