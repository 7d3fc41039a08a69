package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"gemini-chat-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStreamParsesSSE(t *testing.T) {
	var captured generateRequest
	var gotKey, gotPath, gotAlt string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		gotAlt = r.URL.Query().Get("alt")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	}))
	defer server.Close()

	p := NewGeminiProvider("secret", server.URL, "gemini-2.0-flash-lite")
	history := []llm.Message{
		{Role: "user", Content: "earlier"},
		{Role: "model", Content: "reply"},
	}
	turn := llm.Message{
		Role:        "user",
		Content:     "look",
		Attachments: []llm.Attachment{{MimeType: "image/png", Data: []byte{0x89, 0x50}}},
	}

	stream, err := p.ChatStream(context.Background(), "be brief", history, turn,
		llm.WithTemperature(0), llm.WithTopP(0.9), llm.WithMaxTokens(256))
	require.NoError(t, err)

	text, reason, err := collectStream(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, llm.FinishReasonStop, reason)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash-lite:streamGenerateContent", gotPath)
	assert.Equal(t, "sse", gotAlt)
	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "be brief", captured.SystemInstruction.Parts[0].Text)
	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "model", captured.Contents[1].Role)
	last := captured.Contents[2]
	require.Len(t, last.Parts, 2)
	require.NotNil(t, last.Parts[0].InlineData)
	assert.Equal(t, "image/png", last.Parts[0].InlineData.MimeType)
	assert.Equal(t, "look", last.Parts[1].Text)
	require.NotNil(t, captured.GenerationConfig.Temperature)
	assert.Equal(t, 0.0, *captured.GenerationConfig.Temperature)
	assert.Equal(t, 256, captured.GenerationConfig.MaxOutputTokens)
}

func TestChatStreamReportsBlockReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"promptFeedback\":{\"blockReason\":\"SAFETY\"}}\n\n")
	}))
	defer server.Close()

	p := NewGeminiProvider("secret", server.URL, "m")
	stream, err := p.ChatStream(context.Background(), "", nil, llm.Message{Role: "user", Content: "x"})
	require.NoError(t, err)

	chunk := <-stream
	assert.Equal(t, "SAFETY", chunk.BlockReason)
	_, open := <-stream
	assert.False(t, open)
}

func TestChatStreamClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "invalid key",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT","details":[{"reason":"API_KEY_INVALID"}]}}`,
			want:   llm.ErrAuth,
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `denied`,
			want:   llm.ErrAuth,
		},
		{
			name:   "quota",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`,
			want:   llm.ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			p := NewGeminiProvider("bad", server.URL, "m")
			_, err := p.ChatStream(context.Background(), "", nil, llm.Message{Role: "user", Content: "x"})

			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestChatStreamMalformedChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
	}))
	defer server.Close()

	p := NewGeminiProvider("secret", server.URL, "m")
	stream, err := p.ChatStream(context.Background(), "", nil, llm.Message{Role: "user", Content: "x"})
	require.NoError(t, err)

	text, _, err := collectStream(stream)
	assert.Equal(t, "ok", text)
	assert.ErrorIs(t, err, llm.ErrTransport)
}

// collectStream drains a stream into a single string.
func collectStream(stream <-chan llm.Chunk) (text string, finishReason string, err error) {
	for chunk := range stream {
		if chunk.Err != nil {
			return text, finishReason, chunk.Err
		}
		text += chunk.Text
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
	}
	return text, finishReason, nil
}
