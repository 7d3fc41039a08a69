package ollama

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gemini-chat-be/pkg/llm"

	"github.com/go-resty/resty/v2"
)

type OllamaProvider struct {
	BaseURL   string
	ModelName string
	Client    *resty.Client
}

// Ensure OllamaProvider implements LLMProvider
var _ llm.LLMProvider = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:   baseURL,
		ModelName: modelName,
		Client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Content-Type", "application/json").
			SetTimeout(10 * time.Minute),
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
	Error      string        `json:"error"`
}

// --- Interface Implementation ---

func (o *OllamaProvider) Name() string {
	return "ollama"
}

func (o *OllamaProvider) ChatStream(ctx context.Context, systemPrompt string, history []llm.Message, turn llm.Message, opts ...llm.Option) (<-chan llm.Chunk, error) {
	// 1. Process Options
	options := &llm.Options{
		Temperature: 0.7, // Default
	}
	for _, opt := range opts {
		opt(options)
	}

	// 2. Map generic messages to Ollama messages
	ollamaMessages := make([]ollamaMessage, 0, len(history)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		ollamaMessages = append(ollamaMessages, ollamaMessage{Role: "system", Content: systemPrompt})
	}
	for _, msg := range history {
		ollamaMessages = append(ollamaMessages, toOllamaMessage(msg))
	}
	ollamaMessages = append(ollamaMessages, toOllamaMessage(turn))

	// 3. Prepare Payload
	model := o.ModelName
	if options.Model != "" {
		model = options.Model
	}

	reqPayload := ollamaChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   true,
		Options: &ollamaOptions{
			Temperature: options.Temperature,
			TopP:        options.TopP,
		},
	}

	if options.MaxTokens > 0 {
		reqPayload.Options.NumPredict = options.MaxTokens
	}

	// 4. Send Request
	resp, err := o.Client.R().
		SetContext(ctx).
		SetBody(reqPayload).
		SetDoNotParseResponse(true).
		Post("/api/chat")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ollama request failed: %v", llm.ErrTransport, err)
	}

	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		defer body.Close()
		bodyBytes, _ := io.ReadAll(body)
		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			return nil, fmt.Errorf("%w: ollama status %d", llm.ErrAuth, resp.StatusCode())
		}
		return nil, fmt.Errorf("%w: ollama error: status %d, body: %s", llm.ErrTransport, resp.StatusCode(), string(bodyBytes))
	}

	// 5. Parse the NDJSON stream
	out := make(chan llm.Chunk, 16)
	go readStream(ctx, body, out)
	return out, nil
}

func readStream(ctx context.Context, body io.ReadCloser, out chan<- llm.Chunk) {
	defer close(out)
	defer body.Close()

	send := func(c llm.Chunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var ollamaResp ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &ollamaResp); err != nil {
			send(llm.Chunk{Err: fmt.Errorf("%w: unmarshal response: %v", llm.ErrTransport, err)})
			return
		}
		if ollamaResp.Error != "" {
			send(llm.Chunk{Err: fmt.Errorf("%w: %s", llm.ErrTransport, ollamaResp.Error)})
			return
		}

		chunk := llm.Chunk{Text: ollamaResp.Message.Content}
		if ollamaResp.Done {
			chunk.FinishReason = finishReason(ollamaResp.DoneReason)
		}
		if chunk.Text == "" && chunk.FinishReason == "" {
			continue
		}
		if !send(chunk) {
			return
		}
		if ollamaResp.Done {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			send(llm.Chunk{Err: ctx.Err()})
			return
		}
		send(llm.Chunk{Err: fmt.Errorf("%w: read stream: %v", llm.ErrTransport, err)})
	}
}

func toOllamaMessage(msg llm.Message) ollamaMessage {
	role := msg.Role
	if role == "model" {
		role = "assistant"
	}
	m := ollamaMessage{Role: role, Content: msg.Content}
	for _, a := range msg.Attachments {
		// Ollama only accepts images inline.
		if strings.HasPrefix(a.MimeType, "image/") {
			m.Images = append(m.Images, base64.StdEncoding.EncodeToString(a.Data))
		}
	}
	return m
}

func finishReason(doneReason string) string {
	switch doneReason {
	case "", "stop":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonMaxTokens
	default:
		return strings.ToUpper(doneReason)
	}
}
