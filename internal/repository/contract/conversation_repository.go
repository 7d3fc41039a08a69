package contract

import (
	"context"
	"errors"

	"gemini-chat-be/internal/entity"
)

var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrCorruptConversation   = errors.New("conversation file is corrupt")
	ErrInvalidConversationId = errors.New("invalid conversation id")
)

// ConversationRepository persists conversations as self-describing documents and tracks the
// last active conversation.
type ConversationRepository interface {
	// Save rewrites the whole document and stamps SavedAt on success.
	Save(ctx context.Context, conversation *entity.Conversation) error
	FindById(ctx context.Context, id string) (*entity.Conversation, error)
	// FindAll skips documents that cannot be read.
	FindAll(ctx context.Context) ([]entity.ConversationSummary, error)
	Delete(ctx context.Context, id string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)

	// Encode and Decode use the on-disk document format for export and import.
	Encode(conversation *entity.Conversation) ([]byte, error)
	Decode(data []byte) (*entity.Conversation, error)

	GetLastActiveId(ctx context.Context) (string, error)
	SetLastActiveId(ctx context.Context, id string) error
	ClearLastActiveId(ctx context.Context) error
}
