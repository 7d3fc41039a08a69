package service

import (
	"context"
	"path/filepath"
	"testing"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartupDecisionTable(t *testing.T) {
	tests := []struct {
		name     string
		autoload bool
		pointer  string
		saved    bool
		want     string
	}{
		{name: "autoload disabled", autoload: false, pointer: "saved-chat", saved: true, want: StartupFresh},
		{name: "no pointer", autoload: true, want: StartupFresh},
		{name: "pointer loads", autoload: true, pointer: "saved-chat", saved: true, want: StartupAutoloaded},
		{name: "dangling pointer", autoload: true, pointer: "deleted-chat", want: StartupReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHistoryFixture(t)
			ctx := context.Background()
			startup := NewStartupService(f.history, f.modelClient, f.publisher, logger.NewNopLogger())

			if tt.saved {
				saved := entity.NewConversation("saved-chat", "Saved", testDefaults)
				saved.Messages = append(saved.Messages,
					entity.NewTextTurn(constant.ChatMessageRoleUser, "hi"),
					entity.NewTextTurn(constant.ChatMessageRoleModel, "hello"),
				)
				require.NoError(t, f.repo.Save(ctx, saved))
			}
			if tt.pointer != "" {
				require.NoError(t, f.repo.SetLastActiveId(ctx, tt.pointer))
			}

			sess := newTestSession()
			sess.AutoloadLastChat = tt.autoload
			freshId := sess.Conversation.Id

			outcome := startup.Run(ctx, sess)
			assert.Equal(t, tt.want, outcome)
			assert.False(t, sess.AppJustStarted)
			assert.True(t, sess.InitialKeyCheckDone)
			assert.Equal(t, 1, f.modelClient.inits)

			switch tt.want {
			case StartupAutoloaded:
				assert.Equal(t, "saved-chat", sess.Conversation.Id)
				assert.Equal(t, 1, sess.Conversation.ResponseCount)
				assert.Equal(t, "Chat 'Saved' auto-loaded!", lastNotice(sess).Message)
				assert.False(t, sess.LoadedOnStart)
			default:
				assert.Equal(t, freshId, sess.Conversation.Id)
				assert.Empty(t, sess.Conversation.Messages)
				assert.FileExists(t, filepath.Join(f.dir, "chat_"+freshId+".json"))
				assert.Equal(t, freshId, f.history.LastActiveId(ctx))
			}
		})
	}
}

func TestStartupRunsOnce(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()
	startup := NewStartupService(f.history, f.modelClient, f.publisher, logger.NewNopLogger())
	sess := newTestSession()

	assert.Equal(t, StartupFresh, startup.Run(ctx, sess))
	assert.Equal(t, StartupSkipped, startup.Run(ctx, sess))
	assert.Equal(t, 1, f.modelClient.inits)
}

func TestStartupInitialKeyCheck(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()
	f.modelClient.provider = &scriptedProvider{}
	startup := NewStartupService(f.history, f.modelClient, f.publisher, logger.NewNopLogger())

	sess := newTestSession()
	sess.APIKey = "from-env"

	startup.Run(ctx, sess)
	assert.Equal(t, 1, f.modelClient.configured)
	assert.True(t, sess.ClientConfigured)
	assert.True(t, sess.ModelReady)

	without := newTestSession()
	startup.Run(ctx, without)
	assert.Equal(t, 1, f.modelClient.configured)
	assert.False(t, without.ClientConfigured)
	assert.True(t, without.InitialKeyCheckDone)
}
