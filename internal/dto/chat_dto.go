package dto

import (
	"time"

	"gemini-chat-be/internal/entity"
)

type MessageResponse struct {
	Role           string   `json:"role"`
	Content        string   `json:"content"`
	DisplayContent string   `json:"display_content"`
	Attachments    []string `json:"attachments,omitempty"`
}

type ConversationResponse struct {
	Id            string            `json:"id"`
	Name          string            `json:"name"`
	ModelName     string            `json:"model_name"`
	SystemPrompt  string            `json:"system_prompt"`
	Temperature   float64           `json:"temperature"`
	TopP          float64           `json:"top_p"`
	MaxTokens     int               `json:"max_tokens"`
	ResponseCount int               `json:"response_count"`
	SavedAt       *time.Time        `json:"saved_at"`
	Messages      []MessageResponse `json:"messages"`
}

type ConversationSummaryResponse struct {
	Id        string     `json:"id"`
	Name      string     `json:"name"`
	SavedAt   *time.Time `json:"saved_at"`
	IsCurrent bool       `json:"is_current"`
}

type NoticeResponse struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// SessionResponse is everything the UI needs to render the page.
type SessionResponse struct {
	SessionId          string                `json:"session_id"`
	Conversation       *ConversationResponse `json:"conversation"`
	ApiKeySet          bool                  `json:"api_key_set"`
	ClientConfigured   bool                  `json:"client_configured"`
	ModelReady         bool                  `json:"model_ready"`
	ModelError         string                `json:"model_error,omitempty"`
	AutoloadLastChat   bool                  `json:"autoload_last_chat"`
	RenamingChatId     string                `json:"renaming_chat_id,omitempty"`
	Generating         bool                  `json:"generating"`
	PendingAttachments []string              `json:"pending_attachments"`
	AvailableModels    []string              `json:"available_models"`
	Notices            []NoticeResponse      `json:"notices"`
}

type RenameConversationRequest struct {
	Name string `json:"name" validate:"max=200"`
}

type UpdateCredentialRequest struct {
	ApiKey string `json:"api_key" validate:"max=512"`
}

// UpdateSettingsRequest changes only the fields that are present.
type UpdateSettingsRequest struct {
	ModelName        *string  `json:"model_name" validate:"omitempty,min=1,max=128"`
	SystemPrompt     *string  `json:"system_prompt" validate:"omitempty,max=20000"`
	Temperature      *float64 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	TopP             *float64 `json:"top_p" validate:"omitempty,gte=0,lte=1"`
	MaxTokens        *int     `json:"max_tokens" validate:"omitempty,gte=1"`
	AutoloadLastChat *bool    `json:"autoload_last_chat"`
}

type SendMessageRequest struct {
	Prompt string `json:"prompt" validate:"max=100000"`
}

type UploadedFile struct {
	Filename string
	MimeType string
	Data     []byte
}

type RejectedAttachment struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type AttachmentsResponse struct {
	Accepted []string             `json:"accepted"`
	Skipped  []string             `json:"skipped"`
	Rejected []RejectedAttachment `json:"rejected"`
	Pending  []string             `json:"pending"`
}

type RenameResponse struct {
	Renamed bool `json:"renamed"`
}

type DeleteConversationResponse struct {
	Deleted      bool                  `json:"deleted"`
	Conversation *ConversationResponse `json:"conversation"`
}

func NewConversationResponse(c *entity.Conversation) *ConversationResponse {
	if c == nil {
		return nil
	}
	res := &ConversationResponse{
		Id:            c.Id,
		Name:          c.Name,
		ModelName:     c.ModelName,
		SystemPrompt:  c.SystemPrompt,
		Temperature:   c.Temperature,
		TopP:          c.TopP,
		MaxTokens:     c.MaxTokens,
		ResponseCount: c.ResponseCount,
		SavedAt:       timePtr(c.SavedAt),
		Messages:      make([]MessageResponse, 0, len(c.Messages)),
	}
	for _, t := range c.Messages {
		msg := MessageResponse{
			Role:           t.Role,
			Content:        t.Content(),
			DisplayContent: t.DisplayContent,
		}
		for _, a := range t.Attachments() {
			msg.Attachments = append(msg.Attachments, a.OriginalFilename)
		}
		res.Messages = append(res.Messages, msg)
	}
	return res
}

func NewConversationSummaries(summaries []entity.ConversationSummary, currentId string) []*ConversationSummaryResponse {
	res := make([]*ConversationSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		res = append(res, &ConversationSummaryResponse{
			Id:        s.Id,
			Name:      s.Name,
			SavedAt:   timePtr(s.SavedAt),
			IsCurrent: s.Id == currentId,
		})
	}
	return res
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
