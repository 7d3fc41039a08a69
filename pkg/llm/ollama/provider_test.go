package ollama

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

func TestChatStreamNDJSON(t *testing.T) {
	var captured ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"Hi "},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"there"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"length"}`)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3")
	history := []llm.Message{{Role: "model", Content: "previous"}}
	turn := llm.Message{
		Role:    "user",
		Content: "hello",
		Attachments: []llm.Attachment{
			{MimeType: "image/png", Data: []byte("png")},
			{MimeType: "application/pdf", Data: []byte("pdf")},
		},
	}

	stream, err := p.ChatStream(context.Background(), "system text", history, turn, llm.WithMaxTokens(32))
	require.NoError(t, err)

	text, reason, err := collectStream(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	assert.Equal(t, llm.FinishReasonMaxTokens, reason)

	assert.True(t, captured.Stream)
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "assistant", captured.Messages[1].Role)
	assert.Len(t, captured.Messages[2].Images, 1)
	assert.Equal(t, 32, captured.Options.NumPredict)
}

func TestChatStreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "missing")
	_, err := p.ChatStream(context.Background(), "", nil, llm.Message{Role: "user", Content: "x"})

	assert.ErrorIs(t, err, llm.ErrTransport)
}

func TestFinishReasonMapping(t *testing.T) {
	assert.Equal(t, llm.FinishReasonStop, finishReason("stop"))
	assert.Equal(t, llm.FinishReasonStop, finishReason(""))
	assert.Equal(t, llm.FinishReasonMaxTokens, finishReason("length"))
	assert.Equal(t, "LOAD", finishReason("load"))
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
