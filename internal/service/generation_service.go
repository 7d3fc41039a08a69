package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/mapper"
	"gemini-chat-be/internal/metrics"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/pkg/events"
	"gemini-chat-be/pkg/llm"
	"gemini-chat-be/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Terminal statuses of a generation.
const (
	StatusStop           = "stop"
	StatusMaxTokens      = "max_tokens"
	StatusSafety         = "safety"
	StatusRecitation     = "recitation"
	StatusOther          = "other"
	StatusEmpty          = "empty"
	StatusAuthError      = "auth_error"
	StatusTransportError = "transport_error"
	StatusCancelled      = "cancelled"
)

const (
	StreamEventFragment = "fragment"
	StreamEventStatus   = "status"
	StreamEventDone     = "done"
)

const defaultStreamBuffer = 64

type StreamEvent struct {
	Type           string `json:"type"`
	Text           string `json:"text,omitempty"`
	Status         string `json:"status,omitempty"`
	Suffix         string `json:"suffix,omitempty"`
	ResponseNumber int    `json:"response_number,omitempty"`
	Error          string `json:"error,omitempty"`
}

type GenerationResult struct {
	Status         string
	Content        string
	Suffix         string
	ResponseNumber int
	Err            error
}

// Completed reports whether a model turn was appended.
func (r *GenerationResult) Completed() bool {
	return r.Err == nil
}

// Stream is the handle of one in-flight generation. Events arrive in the order the provider
// produced them and the channel closes after the done event.
type Stream struct {
	events chan StreamEvent
	cancel context.CancelFunc
	done   chan struct{}
	result *GenerationResult
}

func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Cancel stops the provider call. The generation ends as cancelled unless it already finished.
func (s *Stream) Cancel() {
	s.cancel()
}

// Wait discards unread events and blocks until the generation is finalized. It must not be
// called while holding the session lock.
func (s *Stream) Wait() *GenerationResult {
	for range s.events {
	}
	<-s.done
	return s.result
}

type GenerationConfig struct {
	Timeout      time.Duration
	StreamBuffer int
}

type IGenerationService interface {
	// Send appends the user turn, persists it and starts streaming the model's answer.
	// The caller holds the session lock; the returned stream finalizes under that lock later.
	Send(ctx context.Context, sess *store.Session, prompt string) (*Stream, error)
}

type generationService struct {
	cfg         GenerationConfig
	history     IHistoryService
	modelClient IModelClientService
	publisher   IPublisherService
	notifier    *notifier
	logger      logger.ILogger
	transcript  logger.ILogger
}

func NewGenerationService(cfg GenerationConfig, history IHistoryService, modelClient IModelClientService, publisher IPublisherService, log logger.ILogger, transcript logger.ILogger) IGenerationService {
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = defaultStreamBuffer
	}
	if transcript == nil {
		transcript = logger.NewNopLogger()
	}
	return &generationService{
		cfg:         cfg,
		history:     history,
		modelClient: modelClient,
		publisher:   publisher,
		notifier:    newNotifier(publisher, log),
		logger:      log,
		transcript:  transcript,
	}
}

func (s *generationService) Send(ctx context.Context, sess *store.Session, prompt string) (*Stream, error) {
	if strings.TrimSpace(prompt) == "" {
		s.notifier.notify(ctx, sess, constant.NoticeWarning, "Please enter a message.")
		return nil, ErrEmptyPrompt
	}
	if sess.Generating {
		return nil, ErrGenerationInProgress
	}
	if !sess.ClientConfigured || sess.Provider == nil {
		s.notifier.notify(ctx, sess, constant.NoticeWarning, "Configure an API key before sending messages.")
		return nil, ErrClientNotConfigured
	}
	if !sess.ModelReady && !s.modelClient.InitializeModel(ctx, sess) {
		return nil, ErrClientNotConfigured
	}

	c := sess.Conversation
	history := toProviderMessages(c.Messages)

	// Attachments belong to this prompt only, whatever happens next.
	attachments := sess.TakeAttachments()
	parts := make([]entity.Part, 0, len(attachments)+1)
	for _, a := range attachments {
		parts = append(parts, entity.AttachmentPart{Attachment: a})
	}
	parts = append(parts, entity.TextPart{Text: prompt})

	userTurn := &entity.Turn{Role: constant.ChatMessageRoleUser, Parts: parts}
	userTurn.DisplayContent = mapper.FormatDisplay(constant.ChatMessageRoleUser, prompt, 0, mapper.AttachmentNames(userTurn))
	c.Messages = append(c.Messages, userTurn)
	s.history.Save(ctx, sess)

	sess.Generating = true

	baseCtx := context.WithoutCancel(ctx)
	var (
		genCtx context.Context
		cancel context.CancelFunc
	)
	if s.cfg.Timeout > 0 {
		genCtx, cancel = context.WithTimeout(baseCtx, s.cfg.Timeout)
	} else {
		genCtx, cancel = context.WithCancel(baseCtx)
	}

	st := &Stream{
		events: make(chan StreamEvent, s.cfg.StreamBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	job := &generationJob{
		sess:     sess,
		provider: sess.Provider,
		userTurn: userTurn,
		request: generationRequest{
			systemPrompt: c.SystemPrompt,
			history:      history,
			turn:         toProviderMessage(userTurn),
			options: []llm.Option{
				llm.WithModel(c.ModelName),
				llm.WithTemperature(c.Temperature),
				llm.WithTopP(c.TopP),
				llm.WithMaxTokens(c.MaxTokens),
			},
		},
	}

	s.transcript.Info("Generation", "Prompt sent", map[string]interface{}{
		"session_id":  sess.ID,
		"chat_id":     c.Id,
		"model":       c.ModelName,
		"prompt":      prompt,
		"attachments": len(attachments),
		"history":     len(history),
	})

	go s.run(baseCtx, genCtx, st, job)
	return st, nil
}

type generationRequest struct {
	systemPrompt string
	history      []llm.Message
	turn         llm.Message
	options      []llm.Option
}

type generationJob struct {
	sess     *store.Session
	provider llm.LLMProvider
	userTurn *entity.Turn
	request  generationRequest
}

func (s *generationService) run(baseCtx, genCtx context.Context, st *Stream, job *generationJob) {
	defer close(st.done)
	defer close(st.events)
	defer st.cancel()

	started := time.Now()
	sessionId := job.sess.ID

	spanCtx, span := otel.Tracer("gemini-chat-be/generation").Start(genCtx, "generation.stream")
	span.SetAttributes(
		attribute.String("session.id", sessionId),
		attribute.String("llm.provider", job.provider.Name()),
		attribute.Int("llm.history_turns", len(job.request.history)),
	)
	defer span.End()

	var (
		text         strings.Builder
		finishReason string
		blockReason  string
		streamErr    error
	)

	chunks, err := job.provider.ChatStream(spanCtx, job.request.systemPrompt, job.request.history, job.request.turn, job.request.options...)
	if err != nil {
		streamErr = err
	} else {
		for chunk := range chunks {
			if chunk.Err != nil {
				streamErr = chunk.Err
				break
			}
			if chunk.Text != "" {
				text.WriteString(chunk.Text)
				metrics.StreamedFragmentsTotal.Inc()
				s.emit(baseCtx, st, sessionId, StreamEvent{Type: StreamEventFragment, Text: chunk.Text})
			}
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
			if chunk.BlockReason != "" {
				blockReason = chunk.BlockReason
			}
		}
	}

	ctxErr := genCtx.Err()
	st.cancel()
	if chunks != nil {
		for range chunks {
		}
	}
	if ctxErr != nil {
		streamErr = ctxErr
	}

	var result *GenerationResult
	if streamErr != nil {
		result = &GenerationResult{Status: failureStatus(streamErr), Err: streamErr}
	} else {
		status, suffix := ClassifyFinish(text.String(), finishReason, blockReason)
		result = &GenerationResult{Status: status, Suffix: suffix, Content: text.String() + suffix}
	}

	job.sess.Lock()
	s.finalize(baseCtx, job, result)
	job.sess.Unlock()

	metrics.RecordGeneration(job.provider.Name(), result.Status, started)
	span.SetAttributes(attribute.String("generation.status", result.Status))
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Status)
	}

	s.transcript.Info("Generation", "Generation finished", map[string]interface{}{
		"session_id":      sessionId,
		"status":          result.Status,
		"response":        result.Content,
		"response_number": result.ResponseNumber,
		"duration_ms":     time.Since(started).Milliseconds(),
	})

	statusEvent := StreamEvent{Type: StreamEventStatus, Status: result.Status, Suffix: result.Suffix, ResponseNumber: result.ResponseNumber}
	if result.Err != nil {
		statusEvent.Error = result.Err.Error()
	}
	s.emit(baseCtx, st, sessionId, statusEvent)
	st.events <- StreamEvent{Type: StreamEventDone}

	st.result = result
}

// finalize applies the outcome to the conversation. Runs under the session lock.
func (s *generationService) finalize(ctx context.Context, job *generationJob, result *GenerationResult) {
	sess := job.sess
	c := sess.Conversation
	defer func() { sess.Generating = false }()

	if result.Err != nil {
		// Only roll back our own turn; the conversation may have been swapped meanwhile.
		if c.LastTurn() == job.userTurn {
			c.Messages = c.Messages[:len(c.Messages)-1]
			s.history.Save(ctx, sess)
		}
		s.notifier.notify(ctx, sess, failureNoticeLevel(result.Status), failureMessage(result))
		s.logger.Warn("Generation", "Generation failed", map[string]interface{}{
			"session_id": sess.ID,
			"status":     result.Status,
			"error":      result.Err.Error(),
		})
		return
	}

	number := 0
	if mapper.IsCountedResponse(result.Content) {
		c.ResponseCount++
		number = c.ResponseCount
	}
	result.ResponseNumber = number

	modelTurn := entity.NewTextTurn(constant.ChatMessageRoleModel, result.Content)
	modelTurn.DisplayContent = mapper.FormatDisplay(constant.ChatMessageRoleModel, result.Content, number, nil)
	c.Messages = append(c.Messages, modelTurn)
	s.history.Save(ctx, sess)

	s.logger.Info("Generation", "Response received", map[string]interface{}{
		"session_id":      sess.ID,
		"chat_id":         c.Id,
		"status":          result.Status,
		"response_number": number,
	})
}

// emit hands an event to the stream consumer and mirrors it to session subscribers.
func (s *generationService) emit(ctx context.Context, st *Stream, sessionId string, evt StreamEvent) {
	st.events <- evt

	if s.publisher == nil {
		return
	}
	eventType := events.TypeFragment
	if evt.Type == StreamEventStatus {
		eventType = events.TypeStatus
	}
	_ = s.publisher.Publish(ctx, events.New(eventType, sessionId, evt))
}

// ClassifyFinish maps the provider's finish or block reason to a status and the suffix appended
// to the response text.
func ClassifyFinish(text, finishReason, blockReason string) (string, string) {
	reason := finishReason
	if reason == "" {
		reason = blockReason
	}

	switch reason {
	case llm.FinishReasonMaxTokens:
		return StatusMaxTokens, constant.AnnotationTruncated
	case llm.FinishReasonSafety:
		return StatusSafety, constant.AnnotationSafety
	case llm.FinishReasonRecitation:
		return StatusRecitation, constant.AnnotationRecitation
	case "", llm.FinishReasonStop, llm.FinishReasonUnspecified:
		if text == "" {
			return StatusEmpty, constant.AnnotationEmpty
		}
		return StatusStop, ""
	default:
		return StatusOther, fmt.Sprintf(constant.AnnotationStopped, reason)
	}
}

func failureStatus(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	case errors.Is(err, llm.ErrAuth):
		return StatusAuthError
	default:
		return StatusTransportError
	}
}

func failureNoticeLevel(status string) string {
	if status == StatusCancelled {
		return constant.NoticeWarning
	}
	return constant.NoticeError
}

func failureMessage(result *GenerationResult) string {
	switch result.Status {
	case StatusCancelled:
		if errors.Is(result.Err, context.DeadlineExceeded) {
			return "Generation timed out."
		}
		return "Generation cancelled."
	case StatusAuthError:
		return fmt.Sprintf("Auth Error: %v", result.Err)
	default:
		return fmt.Sprintf("API Error: %v", result.Err)
	}
}

func toProviderMessages(turns []*entity.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, toProviderMessage(t))
	}
	return out
}

func toProviderMessage(t *entity.Turn) llm.Message {
	msg := llm.Message{Role: t.Role, Content: t.Content()}
	for _, a := range t.Attachments() {
		msg.Attachments = append(msg.Attachments, llm.Attachment{MimeType: a.MimeType, Data: a.Data})
	}
	return msg
}
