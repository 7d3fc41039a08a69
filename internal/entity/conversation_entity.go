package entity

import (
	"regexp"
	"strings"
	"time"
)

var conversationIdPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidConversationId reports whether id is safe to embed in a file name.
func ValidConversationId(id string) bool {
	return conversationIdPattern.MatchString(id)
}

// Conversation is the durable unit of a chat: identity, generation settings and the transcript.
type Conversation struct {
	Id            string
	Name          string
	ModelName     string
	SystemPrompt  string
	Temperature   float64
	TopP          float64
	MaxTokens     int
	Messages      []*Turn
	ResponseCount int
	SavedAt       time.Time
}

// GenerationDefaults seeds the generation settings of new or incomplete conversations.
type GenerationDefaults struct {
	ModelName    string
	SystemPrompt string
	Temperature  float64
	TopP         float64
	MaxTokens    int
}

func NewConversation(id, name string, defaults GenerationDefaults) *Conversation {
	return &Conversation{
		Id:           id,
		Name:         name,
		ModelName:    defaults.ModelName,
		SystemPrompt: defaults.SystemPrompt,
		Temperature:  defaults.Temperature,
		TopP:         defaults.TopP,
		MaxTokens:    defaults.MaxTokens,
		Messages:     []*Turn{},
	}
}

// CopySettingsTo carries the generation configuration over to another conversation.
func (c *Conversation) CopySettingsTo(dst *Conversation) {
	dst.ModelName = c.ModelName
	dst.SystemPrompt = c.SystemPrompt
	dst.Temperature = c.Temperature
	dst.TopP = c.TopP
	dst.MaxTokens = c.MaxTokens
}

// LastTurn returns nil for an empty transcript.
func (c *Conversation) LastTurn() *Turn {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// ConversationSummary is the listing view of a persisted conversation.
type ConversationSummary struct {
	Id      string
	Name    string
	SavedAt time.Time
}

type Turn struct {
	Role           string
	Parts          []Part
	DisplayContent string
}

func NewTextTurn(role, text string) *Turn {
	return &Turn{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Content joins the text parts. It is the only part of a turn that gets persisted.
func (t *Turn) Content() string {
	var texts []string
	for _, p := range t.Parts {
		if tp, ok := p.(TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (t *Turn) Attachments() []Attachment {
	var out []Attachment
	for _, p := range t.Parts {
		if ap, ok := p.(AttachmentPart); ok {
			out = append(out, ap.Attachment)
		}
	}
	return out
}

// Part is either a TextPart or an AttachmentPart.
type Part interface {
	isPart()
}

type TextPart struct {
	Text string
}

type AttachmentPart struct {
	Attachment Attachment
}

func (TextPart) isPart()       {}
func (AttachmentPart) isPart() {}
