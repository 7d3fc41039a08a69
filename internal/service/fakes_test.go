package service

import (
	"context"
	"sync"
	"testing"

	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/mapper"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/internal/repository/contract"
	"gemini-chat-be/internal/repository/implementation"
	"gemini-chat-be/pkg/events"
	"gemini-chat-be/pkg/llm"
	"gemini-chat-be/pkg/store"

	"github.com/stretchr/testify/require"
)

var testDefaults = entity.GenerationDefaults{
	ModelName:    "gemini-2.0-flash-lite",
	SystemPrompt: "be brief",
	Temperature:  0.7,
	TopP:         0.95,
	MaxTokens:    1024,
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeModelClient treats any session with a key as configured.
type fakeModelClient struct {
	provider   llm.LLMProvider
	configured int
	inits      int
}

func (f *fakeModelClient) ConfigureClient(ctx context.Context, sess *store.Session) bool {
	f.configured++
	if sess.APIKey == "" {
		f.ResetClient(sess)
		return false
	}
	sess.Provider = f.provider
	sess.ClientConfigured = true
	return f.InitializeModel(ctx, sess)
}

func (f *fakeModelClient) InitializeModel(ctx context.Context, sess *store.Session) bool {
	f.inits++
	sess.ModelReady = sess.ClientConfigured
	return sess.ModelReady
}

func (f *fakeModelClient) ResetClient(sess *store.Session) {
	sess.Provider = nil
	sess.ClientConfigured = false
	sess.ModelReady = false
}

type historyFixture struct {
	repo        contract.ConversationRepository
	dir         string
	publisher   *recordingPublisher
	modelClient *fakeModelClient
	history     IHistoryService
}

func newHistoryFixture(t *testing.T) *historyFixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := implementation.NewConversationFileRepository(dir, "", mapper.NewConversationMapper(testDefaults), logger.NewNopLogger())
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	modelClient := &fakeModelClient{}
	return &historyFixture{
		repo:        repo,
		dir:         dir,
		publisher:   publisher,
		modelClient: modelClient,
		history:     NewHistoryService(repo, modelClient, publisher, logger.NewNopLogger()),
	}
}

func newTestSession() *store.Session {
	sess := store.NewSession("test-session")
	sess.InitializeDefaults(store.Defaults{Generation: testDefaults})
	return sess
}

func lastNotice(sess *store.Session) store.Notice {
	if len(sess.Notices) == 0 {
		return store.Notice{}
	}
	return sess.Notices[len(sess.Notices)-1]
}
