package model

// ConversationDocument is the on-disk shape of chat_<id>.json and of exported chats.
// Optional fields are pointers: only a missing key falls back to configured defaults, a stored
// empty string is kept as written.
type ConversationDocument struct {
	ChatId        string         `json:"chat_id" validate:"omitempty,max=128"`
	ChatName      *string        `json:"chat_name"`
	ModelName     *string        `json:"model_name"`
	SystemPrompt  *string        `json:"system_prompt"`
	Messages      []TurnDocument `json:"messages" validate:"dive"`
	Temperature   *float64       `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP          *float64       `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxTokens     *int           `json:"max_tokens,omitempty" validate:"omitempty,gte=1"`
	ResponseCount *int           `json:"response_count,omitempty"`
	SavedAt       string         `json:"saved_at,omitempty"`
}

type TurnDocument struct {
	Role    string `json:"role" validate:"required,oneof=user model"`
	Content string `json:"content"`
}
