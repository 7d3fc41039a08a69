package llm

import (
	"context"
	"errors"
)

var (
	// ErrAuth marks a rejected credential (401/403 or an API_KEY_INVALID body).
	ErrAuth = errors.New("llm: authentication failed")
	// ErrTransport marks any other request or stream failure.
	ErrTransport = errors.New("llm: transport failure")
)

// Finish reasons normalized across providers.
const (
	FinishReasonStop        = "STOP"
	FinishReasonUnspecified = "FINISH_REASON_UNSPECIFIED"
	FinishReasonMaxTokens   = "MAX_TOKENS"
	FinishReasonSafety      = "SAFETY"
	FinishReasonRecitation  = "RECITATION"
)

// Attachment is binary content sent inline with a turn.
type Attachment struct {
	MimeType string
	Data     []byte
}

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role        string // "user", "model"
	Content     string
	Attachments []Attachment
}

// Chunk is one streamed piece of a response. The final chunk usually carries the finish reason;
// a chunk with Err set ends the stream.
type Chunk struct {
	Text         string
	FinishReason string
	BlockReason  string
	Err          error
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithTopP(topP float64) Option {
	return func(o *Options) {
		o.TopP = topP
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(o *Options) {
		o.MaxTokens = maxTokens
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// ChatStream sends the history plus the new turn and streams the response.
	// The returned channel is closed when the response ends or ctx is cancelled.
	ChatStream(ctx context.Context, systemPrompt string, history []Message, turn Message, options ...Option) (<-chan Chunk, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}
