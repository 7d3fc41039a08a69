package service

import (
	"context"
	"testing"
	"time"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/dto"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/internal/repository/memory"
	"gemini-chat-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testModels = []string{"gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-1.5-pro"}

func newSessionService(t *testing.T, f *historyFixture, defaults store.Defaults) ISessionService {
	t.Helper()
	log := logger.NewNopLogger()
	startup := NewStartupService(f.history, f.modelClient, f.publisher, log)
	attachments := NewAttachmentService(1<<20, f.publisher, log)
	return NewSessionService(SessionConfig{
		Defaults:         defaults,
		AvailableModels:  testModels,
		MaxTokensCeiling: 8192,
	}, memory.NewSessionRepository(time.Hour), f.history, f.modelClient, startup, attachments, f.publisher, log)
}

func TestAcquireInitializesOnce(t *testing.T) {
	f := newHistoryFixture(t)
	f.modelClient.provider = &scriptedProvider{}
	svc := newSessionService(t, f, store.Defaults{Generation: testDefaults, APIKey: "env-key", AutoloadLastChat: true})
	ctx := context.Background()

	sess := svc.Acquire(ctx, "browser-1")
	assert.Equal(t, "browser-1", sess.ID)
	assert.Equal(t, "env-key", sess.APIKey)
	assert.True(t, sess.ClientConfigured)
	assert.True(t, sess.AutoloadLastChat)
	firstId := sess.Conversation.Id
	svc.Release(sess)

	again := svc.Acquire(ctx, "browser-1")
	defer svc.Release(again)
	assert.Same(t, sess, again)
	assert.Equal(t, firstId, again.Conversation.Id)
	assert.Equal(t, 1, f.modelClient.configured)
}

func TestAcquireMintsIdForBlankCookie(t *testing.T) {
	f := newHistoryFixture(t)
	svc := newSessionService(t, f, store.Defaults{Generation: testDefaults})

	sess := svc.Acquire(context.Background(), "")
	defer svc.Release(sess)
	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.ClientConfigured)
}

func TestUpdateCredential(t *testing.T) {
	f := newHistoryFixture(t)
	f.modelClient.provider = &scriptedProvider{}
	svc := newSessionService(t, f, store.Defaults{Generation: testDefaults})
	ctx := context.Background()

	sess := svc.Acquire(ctx, "s")
	defer svc.Release(sess)

	assert.True(t, svc.UpdateCredential(ctx, sess, "  new-key  "))
	assert.Equal(t, "new-key", sess.APIKey)
	assert.True(t, sess.ClientConfigured)
	assert.Equal(t, "API key configured.", lastNotice(sess).Message)

	assert.False(t, svc.UpdateCredential(ctx, sess, ""))
	assert.False(t, sess.ClientConfigured)
	assert.Equal(t, constant.NoticeWarning, lastNotice(sess).Level)
}

func TestUpdateSettings(t *testing.T) {
	f := newHistoryFixture(t)
	svc := newSessionService(t, f, store.Defaults{Generation: testDefaults})
	ctx := context.Background()

	sess := svc.Acquire(ctx, "s")
	defer svc.Release(sess)

	model := "gemini-1.5-pro"
	temperature := 1.3
	autoload := true
	require.NoError(t, svc.UpdateSettings(ctx, sess, &dto.UpdateSettingsRequest{
		ModelName:        &model,
		Temperature:      &temperature,
		AutoloadLastChat: &autoload,
	}))
	assert.Equal(t, model, sess.Conversation.ModelName)
	assert.InDelta(t, 1.3, sess.Conversation.Temperature, 1e-9)
	assert.True(t, sess.AutoloadLastChat)

	stored, err := f.repo.FindById(ctx, sess.Conversation.Id)
	require.NoError(t, err)
	assert.Equal(t, model, stored.ModelName)

	tooMany := 100000
	err = svc.UpdateSettings(ctx, sess, &dto.UpdateSettingsRequest{MaxTokens: &tooMany})
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Equal(t, testDefaults.MaxTokens, sess.Conversation.MaxTokens)

	sess.Generating = true
	err = svc.UpdateSettings(ctx, sess, &dto.UpdateSettingsRequest{ModelName: &model})
	assert.ErrorIs(t, err, ErrGenerationInProgress)
	sess.Generating = false
}

func TestSnapshotDrainsNotices(t *testing.T) {
	f := newHistoryFixture(t)
	svc := newSessionService(t, f, store.Defaults{Generation: testDefaults})
	ctx := context.Background()

	sess := svc.Acquire(ctx, "s")
	defer svc.Release(sess)
	sess.Notify(constant.NoticeInfo, "hello")

	snap := svc.Snapshot(sess)
	assert.Equal(t, "s", snap.SessionId)
	require.NotNil(t, snap.Conversation)
	assert.Equal(t, sess.Conversation.Id, snap.Conversation.Id)
	require.NotEmpty(t, snap.Notices)
	assert.Equal(t, "hello", snap.Notices[len(snap.Notices)-1].Message)
	assert.Equal(t, testModels, snap.AvailableModels)

	assert.Empty(t, svc.Snapshot(sess).Notices)
}

func TestAvailableModelsPrependsUnknownCurrent(t *testing.T) {
	f := newHistoryFixture(t)
	svc := newSessionService(t, f, store.Defaults{Generation: testDefaults})

	sess := svc.Acquire(context.Background(), "s")
	defer svc.Release(sess)

	assert.Equal(t, testModels, svc.AvailableModels(sess))

	sess.Conversation.ModelName = "gemini-exp-1206"
	models := svc.AvailableModels(sess)
	require.Len(t, models, len(testModels)+1)
	assert.Equal(t, "gemini-exp-1206", models[0])
}
