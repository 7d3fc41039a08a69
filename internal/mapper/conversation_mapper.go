package mapper

import (
	"fmt"
	"strings"
	"time"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/model"
)

// Python's datetime.isoformat() without a zone, as written by older history files.
const naiveISOLayout = "2006-01-02T15:04:05.999999"

type ConversationMapper struct {
	defaults entity.GenerationDefaults
}

func NewConversationMapper(defaults entity.GenerationDefaults) *ConversationMapper {
	return &ConversationMapper{defaults: defaults}
}

// ToDocument keeps only the text of every turn; attachments never reach disk.
func (m *ConversationMapper) ToDocument(c *entity.Conversation, savedAt time.Time) *model.ConversationDocument {
	if c == nil {
		return nil
	}

	messages := make([]model.TurnDocument, 0, len(c.Messages))
	for _, t := range c.Messages {
		messages = append(messages, model.TurnDocument{
			Role:    t.Role,
			Content: t.Content(),
		})
	}

	name := c.Name
	modelName := c.ModelName
	systemPrompt := c.SystemPrompt
	temperature := c.Temperature
	topP := c.TopP
	maxTokens := c.MaxTokens
	responseCount := c.ResponseCount

	return &model.ConversationDocument{
		ChatId:        c.Id,
		ChatName:      &name,
		ModelName:     &modelName,
		SystemPrompt:  &systemPrompt,
		Messages:      messages,
		Temperature:   &temperature,
		TopP:          &topP,
		MaxTokens:     &maxTokens,
		ResponseCount: &responseCount,
		SavedAt:       savedAt.Format(time.RFC3339Nano),
	}
}

// ToEntity rebuilds a live conversation from a document. Defaults fill only the keys the
// document lacks. The response counter is always recomputed from the transcript, whatever the
// document claims.
func (m *ConversationMapper) ToEntity(doc *model.ConversationDocument) *entity.Conversation {
	if doc == nil {
		return nil
	}

	c := entity.NewConversation(doc.ChatId, constant.LoadedChatName, m.defaults)
	if doc.ChatName != nil {
		c.Name = *doc.ChatName
	}
	if doc.ModelName != nil {
		c.ModelName = *doc.ModelName
	}
	if doc.SystemPrompt != nil {
		c.SystemPrompt = *doc.SystemPrompt
	}
	if doc.Temperature != nil {
		c.Temperature = *doc.Temperature
	}
	if doc.TopP != nil {
		c.TopP = *doc.TopP
	}
	if doc.MaxTokens != nil {
		c.MaxTokens = *doc.MaxTokens
	}
	c.SavedAt = ParseSavedAt(doc.SavedAt)

	for _, msg := range doc.Messages {
		c.Messages = append(c.Messages, entity.NewTextTurn(msg.Role, msg.Content))
	}
	RebuildDisplay(c)

	return c
}

// ToSummary prefers the id encoded in the file name so listing stays addressable.
func (m *ConversationMapper) ToSummary(fileId string, doc *model.ConversationDocument) entity.ConversationSummary {
	id := fileId
	if id == "" {
		id = doc.ChatId
	}
	name := constant.UntitledChatName
	if doc.ChatName != nil {
		name = *doc.ChatName
	}
	return entity.ConversationSummary{
		Id:      id,
		Name:    name,
		SavedAt: ParseSavedAt(doc.SavedAt),
	}
}

// RebuildDisplay derives every turn's display content from (role, content, position) and
// resets the response counter to match.
func RebuildDisplay(c *entity.Conversation) {
	count := 0
	for _, t := range c.Messages {
		content := t.Content()
		number := 0
		if t.Role == constant.ChatMessageRoleModel && IsCountedResponse(content) {
			count++
			number = count
		}
		t.DisplayContent = FormatDisplay(t.Role, content, number, AttachmentNames(t))
	}
	c.ResponseCount = count
}

// CountResponses is the number of model turns that are not error or empty annotations.
func CountResponses(turns []*entity.Turn) int {
	count := 0
	for _, t := range turns {
		if t.Role == constant.ChatMessageRoleModel && IsCountedResponse(t.Content()) {
			count++
		}
	}
	return count
}

func IsCountedResponse(content string) bool {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, constant.ErrorAnnotationPrefix) {
		return false
	}
	if strings.HasPrefix(trimmed, constant.EmptyAnnotationPrefix) {
		return false
	}
	return true
}

// FormatDisplay renders a turn for the transcript. responseNumber is 0 for model turns that
// are not counted.
func FormatDisplay(role, content string, responseNumber int, attachments []string) string {
	switch role {
	case constant.ChatMessageRoleModel:
		if responseNumber > 0 {
			return fmt.Sprintf(constant.ResponseCounterFormat, responseNumber) + content
		}
		return content
	default:
		if len(attachments) > 0 {
			return content + fmt.Sprintf(constant.AttachmentNoteFormat, strings.Join(attachments, ", "))
		}
		return content
	}
}

// ParseSavedAt returns the zero time for missing or unparsable values so they sort last.
func ParseSavedAt(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, naiveISOLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// AttachmentNames lists the file names a live turn was sent with.
func AttachmentNames(t *entity.Turn) []string {
	attachments := t.Attachments()
	if len(attachments) == 0 {
		return nil
	}
	names := make([]string, 0, len(attachments))
	for i, a := range attachments {
		name := a.OriginalFilename
		if name == "" {
			name = fmt.Sprintf("File %d", i+1)
		}
		names = append(names, name)
	}
	return names
}
