package gemini

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

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

type GeminiProvider struct {
	apiKey     string
	modelName  string
	httpClient *resty.Client
}

// Ensure GeminiProvider implements LLMProvider
var _ llm.LLMProvider = (*GeminiProvider)(nil)

func NewGeminiProvider(apiKey, baseURL, modelName string) *GeminiProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GeminiProvider{
		apiKey:    apiKey,
		modelName: modelName,
		httpClient: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Content-Type", "application/json").
			SetTimeout(10 * time.Minute),
	}
}

// --- Request/Response structs (Internal to this package) ---

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
	Details []struct {
		Reason string `json:"reason"`
	} `json:"details"`
}

// --- Interface Implementation ---

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) ChatStream(ctx context.Context, systemPrompt string, history []llm.Message, turn llm.Message, opts ...llm.Option) (<-chan llm.Chunk, error) {
	options := &llm.Options{
		Model: p.modelName,
	}
	for _, opt := range opts {
		opt(options)
	}

	payload := generateRequest{
		Contents: make([]content, 0, len(history)+1),
		GenerationConfig: generationConfig{
			Temperature:     &options.Temperature,
			TopP:            &options.TopP,
			MaxOutputTokens: options.MaxTokens,
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	for _, msg := range history {
		payload.Contents = append(payload.Contents, toContent(msg))
	}
	payload.Contents = append(payload.Contents, toContent(turn))

	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", p.apiKey).
		SetHeader("Accept", "text/event-stream").
		SetQueryParam("alt", "sse").
		SetBody(payload).
		SetDoNotParseResponse(true).
		Post(fmt.Sprintf("/v1beta/models/%s:streamGenerateContent", options.Model))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", llm.ErrTransport, err)
	}

	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		defer body.Close()
		raw, _ := io.ReadAll(body)
		return nil, classifyStatus(resp.StatusCode(), raw)
	}

	out := make(chan llm.Chunk, 16)
	go p.readStream(ctx, body, out)
	return out, nil
}

func (p *GeminiProvider) readStream(ctx context.Context, body io.ReadCloser, out chan<- llm.Chunk) {
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
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			send(llm.Chunk{Err: fmt.Errorf("%w: malformed stream chunk: %v", llm.ErrTransport, err)})
			return
		}
		if chunk.Error != nil {
			send(llm.Chunk{Err: classifyAPIError(chunk.Error.Code, chunk.Error)})
			return
		}

		c := llm.Chunk{}
		if chunk.PromptFeedback != nil {
			c.BlockReason = chunk.PromptFeedback.BlockReason
		}
		if len(chunk.Candidates) > 0 {
			cand := chunk.Candidates[0]
			for _, pt := range cand.Content.Parts {
				c.Text += pt.Text
			}
			c.FinishReason = cand.FinishReason
		}
		if c.Text == "" && c.FinishReason == "" && c.BlockReason == "" {
			continue
		}
		if !send(c) {
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

func toContent(msg llm.Message) content {
	parts := make([]part, 0, len(msg.Attachments)+1)
	for _, a := range msg.Attachments {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: a.MimeType,
			Data:     base64.StdEncoding.EncodeToString(a.Data),
		}})
	}
	if msg.Content != "" || len(parts) == 0 {
		parts = append(parts, part{Text: msg.Content})
	}
	return content{Role: msg.Role, Parts: parts}
}

func classifyStatus(status int, body []byte) error {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return classifyAPIError(status, envelope.Error)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", llm.ErrAuth, status)
	}
	return fmt.Errorf("%w: status %d, body: %s", llm.ErrTransport, status, string(body))
}

func classifyAPIError(status int, e *apiError) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden || e.Status == "PERMISSION_DENIED" || e.Status == "UNAUTHENTICATED" {
		return fmt.Errorf("%w: %s", llm.ErrAuth, e.Message)
	}
	for _, d := range e.Details {
		if d.Reason == "API_KEY_INVALID" {
			return fmt.Errorf("%w: %s", llm.ErrAuth, e.Message)
		}
	}
	if strings.Contains(e.Message, "API_KEY_INVALID") || strings.Contains(strings.ToLower(e.Message), "api key not valid") {
		return fmt.Errorf("%w: %s", llm.ErrAuth, e.Message)
	}
	return fmt.Errorf("%w: status %d: %s", llm.ErrTransport, status, e.Message)
}
