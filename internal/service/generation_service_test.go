package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/pkg/events"
	"gemini-chat-be/pkg/llm"
	"gemini-chat-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays chunks and optionally hangs until the context ends.
type scriptedProvider struct {
	chunks  []llm.Chunk
	openErr error
	hang    bool

	mu         sync.Mutex
	system     string
	history    []llm.Message
	turn       llm.Message
	options    llm.Options
	calledWith int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) ChatStream(ctx context.Context, systemPrompt string, history []llm.Message, turn llm.Message, opts ...llm.Option) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.system = systemPrompt
	p.history = history
	p.turn = turn
	p.options = llm.Options{}
	for _, o := range opts {
		o(&p.options)
	}
	p.calledWith++
	p.mu.Unlock()

	if p.openErr != nil {
		return nil, p.openErr
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		for _, c := range p.chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
		if p.hang {
			<-ctx.Done()
		}
	}()
	return out, nil
}

type generationFixture struct {
	*historyFixture
	provider   *scriptedProvider
	generation IGenerationService
	sess       *store.Session
}

func newGenerationFixture(t *testing.T, provider *scriptedProvider, timeout time.Duration) *generationFixture {
	t.Helper()
	hf := newHistoryFixture(t)
	hf.modelClient.provider = provider

	sess := newTestSession()
	sess.APIKey = "test-key"
	require.True(t, hf.modelClient.ConfigureClient(context.Background(), sess))

	return &generationFixture{
		historyFixture: hf,
		provider:       provider,
		generation: NewGenerationService(GenerationConfig{Timeout: timeout}, hf.history, hf.modelClient,
			hf.publisher, logger.NewNopLogger(), nil),
		sess: sess,
	}
}

func collectEvents(t *testing.T, st *Stream) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-st.Events():
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-timeout:
			t.Fatal("stream did not finish")
			return out
		}
	}
}

func TestSendCompletesAndPersists(t *testing.T) {
	f := newGenerationFixture(t, &scriptedProvider{chunks: []llm.Chunk{
		{Text: "Hel"},
		{Text: "lo"},
		{FinishReason: llm.FinishReasonStop},
	}}, 0)
	ctx := context.Background()

	st, err := f.generation.Send(ctx, f.sess, "hi")
	require.NoError(t, err)

	evts := collectEvents(t, st)
	require.Len(t, evts, 4)
	assert.Equal(t, StreamEvent{Type: StreamEventFragment, Text: "Hel"}, evts[0])
	assert.Equal(t, StreamEvent{Type: StreamEventFragment, Text: "lo"}, evts[1])
	assert.Equal(t, StreamEventStatus, evts[2].Type)
	assert.Equal(t, StatusStop, evts[2].Status)
	assert.Equal(t, 1, evts[2].ResponseNumber)
	assert.Equal(t, StreamEventDone, evts[3].Type)

	result := st.Wait()
	require.True(t, result.Completed())
	assert.Equal(t, "Hello", result.Content)

	c := f.sess.Conversation
	assert.False(t, f.sess.Generating)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "**(R1)**\n\nHello", c.Messages[1].DisplayContent)
	assert.Equal(t, 1, c.ResponseCount)

	stored, err := f.repo.FindById(ctx, c.Id)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "Hello", stored.Messages[1].Content())

	assert.Len(t, f.publisher.ofType(events.TypeFragment), 2)
	assert.Len(t, f.publisher.ofType(events.TypeStatus), 1)
}

func TestSendBuildsProviderRequest(t *testing.T) {
	f := newGenerationFixture(t, &scriptedProvider{chunks: []llm.Chunk{{Text: "ok", FinishReason: llm.FinishReasonStop}}}, 0)
	ctx := context.Background()

	c := f.sess.Conversation
	c.Messages = append(c.Messages,
		entity.NewTextTurn(constant.ChatMessageRoleUser, "earlier"),
		entity.NewTextTurn(constant.ChatMessageRoleModel, "answer"),
	)
	c.ResponseCount = 1
	c.Temperature = 0.2
	f.sess.PendingAttachments = []entity.Attachment{{MimeType: "image/png", Data: []byte{0x89}, OriginalFilename: "cat.png"}}
	f.sess.MarkUploaded("cat.png")

	st, err := f.generation.Send(ctx, f.sess, "what is this?")
	require.NoError(t, err)
	assert.Empty(t, f.sess.PendingAttachments)
	assert.False(t, f.sess.HasUploaded("cat.png"))

	result := st.Wait()
	require.True(t, result.Completed())
	assert.Equal(t, 2, result.ResponseNumber)

	f.provider.mu.Lock()
	defer f.provider.mu.Unlock()
	assert.Equal(t, testDefaults.SystemPrompt, f.provider.system)
	require.Len(t, f.provider.history, 2)
	assert.Equal(t, "earlier", f.provider.history[0].Content)
	assert.Equal(t, "what is this?", f.provider.turn.Content)
	require.Len(t, f.provider.turn.Attachments, 1)
	assert.Equal(t, "image/png", f.provider.turn.Attachments[0].MimeType)
	assert.Equal(t, testDefaults.ModelName, f.provider.options.Model)
	assert.InDelta(t, 0.2, f.provider.options.Temperature, 1e-9)
	assert.Equal(t, testDefaults.MaxTokens, f.provider.options.MaxTokens)

	user := c.Messages[2]
	assert.Equal(t, "what is this?\n\n*📁 (Sent with: cat.png)*", user.DisplayContent)
}

func TestSendTransportFailureRollsBack(t *testing.T) {
	f := newGenerationFixture(t, &scriptedProvider{chunks: []llm.Chunk{
		{Text: "partial"},
		{Err: fmt.Errorf("%w: connection reset", llm.ErrTransport)},
	}}, 0)
	ctx := context.Background()

	c := f.sess.Conversation
	c.Messages = append(c.Messages,
		entity.NewTextTurn(constant.ChatMessageRoleUser, "q1"),
		entity.NewTextTurn(constant.ChatMessageRoleModel, "a1"),
	)
	c.ResponseCount = 1
	require.True(t, f.history.Save(ctx, f.sess))
	f.sess.PendingAttachments = []entity.Attachment{{MimeType: "application/pdf", Data: []byte("%PDF-1.4")}}

	st, err := f.generation.Send(ctx, f.sess, "q2")
	require.NoError(t, err)
	evts := collectEvents(t, st)
	result := st.Wait()

	assert.Equal(t, StatusTransportError, result.Status)
	assert.ErrorIs(t, result.Err, llm.ErrTransport)
	require.GreaterOrEqual(t, len(evts), 2)
	assert.Equal(t, StatusTransportError, evts[len(evts)-2].Status)

	assert.Len(t, c.Messages, 2)
	assert.Equal(t, 1, c.ResponseCount)
	assert.Empty(t, f.sess.PendingAttachments)
	assert.False(t, f.sess.Generating)
	assert.Equal(t, constant.NoticeError, lastNotice(f.sess).Level)

	stored, err := f.repo.FindById(ctx, c.Id)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 2)
}

func TestSendAuthFailure(t *testing.T) {
	f := newGenerationFixture(t, &scriptedProvider{openErr: fmt.Errorf("%w: API key not valid", llm.ErrAuth)}, 0)

	st, err := f.generation.Send(context.Background(), f.sess, "hi")
	require.NoError(t, err)
	result := st.Wait()

	assert.Equal(t, StatusAuthError, result.Status)
	assert.Empty(t, f.sess.Conversation.Messages)
	assert.Contains(t, lastNotice(f.sess).Message, "Auth Error")
}

func TestSendCancel(t *testing.T) {
	f := newGenerationFixture(t, &scriptedProvider{chunks: []llm.Chunk{{Text: "thinking"}}, hang: true}, 0)

	st, err := f.generation.Send(context.Background(), f.sess, "long question")
	require.NoError(t, err)

	first := <-st.Events()
	assert.Equal(t, "thinking", first.Text)
	st.Cancel()

	result := st.Wait()
	assert.Equal(t, StatusCancelled, result.Status)
	assert.Empty(t, f.sess.Conversation.Messages)
	assert.Equal(t, "Generation cancelled.", lastNotice(f.sess).Message)
	assert.Equal(t, constant.NoticeWarning, lastNotice(f.sess).Level)
}

func TestSendTimeout(t *testing.T) {
	f := newGenerationFixture(t, &scriptedProvider{hang: true}, 20*time.Millisecond)

	st, err := f.generation.Send(context.Background(), f.sess, "slow")
	require.NoError(t, err)
	result := st.Wait()

	assert.Equal(t, StatusCancelled, result.Status)
	assert.Equal(t, "Generation timed out.", lastNotice(f.sess).Message)
}

func TestSendEmptyAndBlockedResponses(t *testing.T) {
	tests := []struct {
		name         string
		chunks       []llm.Chunk
		wantStatus   string
		wantContent  string
		wantResponse int
	}{
		{
			name:        "empty stop",
			chunks:      []llm.Chunk{{FinishReason: llm.FinishReasonStop}},
			wantStatus:  StatusEmpty,
			wantContent: constant.AnnotationEmpty,
		},
		{
			name:         "prompt blocked for safety",
			chunks:       []llm.Chunk{{BlockReason: llm.FinishReasonSafety}},
			wantStatus:   StatusSafety,
			wantContent:  constant.AnnotationSafety,
			wantResponse: 1,
		},
		{
			name:         "truncated",
			chunks:       []llm.Chunk{{Text: "long"}, {FinishReason: llm.FinishReasonMaxTokens}},
			wantStatus:   StatusMaxTokens,
			wantContent:  "long" + constant.AnnotationTruncated,
			wantResponse: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGenerationFixture(t, &scriptedProvider{chunks: tt.chunks}, 0)

			st, err := f.generation.Send(context.Background(), f.sess, "hi")
			require.NoError(t, err)
			result := st.Wait()

			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantContent, result.Content)
			assert.Equal(t, tt.wantResponse, f.sess.Conversation.ResponseCount)
			require.Len(t, f.sess.Conversation.Messages, 2)
		})
	}
}

func TestSendGuards(t *testing.T) {
	f := newGenerationFixture(t, &scriptedProvider{}, 0)
	ctx := context.Background()

	_, err := f.generation.Send(ctx, f.sess, "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	f.sess.Generating = true
	_, err = f.generation.Send(ctx, f.sess, "hi")
	assert.ErrorIs(t, err, ErrGenerationInProgress)
	f.sess.Generating = false

	f.modelClient.ResetClient(f.sess)
	_, err = f.generation.Send(ctx, f.sess, "hi")
	assert.ErrorIs(t, err, ErrClientNotConfigured)

	assert.Empty(t, f.sess.Conversation.Messages)
	assert.Zero(t, f.provider.calledWith)
}

func TestClassifyFinish(t *testing.T) {
	tests := []struct {
		text, finish, block string
		status, suffix      string
	}{
		{"hi", llm.FinishReasonStop, "", StatusStop, ""},
		{"hi", llm.FinishReasonUnspecified, "", StatusStop, ""},
		{"hi", "", "", StatusStop, ""},
		{"", llm.FinishReasonStop, "", StatusEmpty, constant.AnnotationEmpty},
		{"", "", "", StatusEmpty, constant.AnnotationEmpty},
		{"hi", llm.FinishReasonMaxTokens, "", StatusMaxTokens, constant.AnnotationTruncated},
		{"", llm.FinishReasonSafety, "", StatusSafety, constant.AnnotationSafety},
		{"", "", llm.FinishReasonSafety, StatusSafety, constant.AnnotationSafety},
		{"x", llm.FinishReasonRecitation, "", StatusRecitation, constant.AnnotationRecitation},
		{"x", "OTHER", "", StatusOther, "\n\n*(Stopped: OTHER)*"},
		{"", "", "BLOCKLIST", StatusOther, "\n\n*(Stopped: BLOCKLIST)*"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s/%q", tt.finish, tt.block, tt.text), func(t *testing.T) {
			status, suffix := ClassifyFinish(tt.text, tt.finish, tt.block)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.suffix, suffix)
		})
	}
}
