package store

import (
	"sync"
	"time"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/entity"
	"gemini-chat-be/pkg/llm"

	"github.com/google/uuid"
)

// Session is the per-browser context every command runs against.
// Callers hold the session lock for the duration of a command.
type Session struct {
	mu sync.Mutex

	ID string `json:"id"`

	// THE ACTIVE CHAT
	Conversation *entity.Conversation `json:"-"`

	// Model client
	APIKey           string          `json:"-"`
	ClientConfigured bool            `json:"client_configured"`
	Provider         llm.LLMProvider `json:"-"`
	ModelReady       bool            `json:"model_ready"`
	ModelError       string          `json:"model_error,omitempty"`

	// THE WAITING ROOM (files uploaded but not yet sent)
	PendingAttachments []entity.Attachment `json:"-"`
	UploadedNames      map[string]struct{} `json:"-"`

	RenamingChatId   string `json:"renaming_chat_id,omitempty"`
	AutoloadLastChat bool   `json:"autoload_last_chat"`

	// One-shot startup flags
	AppJustStarted      bool `json:"-"`
	LoadedOnStart       bool `json:"-"`
	InitialKeyCheckDone bool `json:"-"`

	Generating bool `json:"generating"`

	Notices []Notice `json:"-"`

	initialized map[string]bool
}

type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Defaults seeds a session the first time it is seen.
type Defaults struct {
	Generation       entity.GenerationDefaults
	APIKey           string
	AutoloadLastChat bool
}

const (
	keyConversation    = "conversation"
	keyAPIKey          = "api_key"
	keyClient          = "client"
	keyAttachments     = "attachments"
	keyUploadedNames   = "uploaded_names"
	keyRenaming        = "renaming_chat_id"
	keyAutoload        = "autoload_last_chat"
	keyAppJustStarted  = "app_just_started"
	keyLoadedOnStart   = "loaded_on_start"
	keyInitialKeyCheck = "initial_key_check_done"
	keyGenerating      = "generating"
	keyNotices         = "notices"
)

func NewSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ID:          id,
		initialized: make(map[string]bool),
	}
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// setDefault runs init only for keys that were never set, so values already assigned survive.
func (s *Session) setDefault(key string, init func()) {
	if s.initialized[key] {
		return
	}
	init()
	s.markSet(key)
}

func (s *Session) markSet(key string) {
	if s.initialized == nil {
		s.initialized = make(map[string]bool)
	}
	s.initialized[key] = true
}

// InitializeDefaults is idempotent and safe to call on every request.
func (s *Session) InitializeDefaults(d Defaults) {
	s.setDefault(keyConversation, func() {
		s.Conversation = entity.NewConversation(uuid.NewString(), constant.DefaultChatName, d.Generation)
	})
	s.setDefault(keyAPIKey, func() { s.APIKey = d.APIKey })
	s.setDefault(keyClient, func() {
		s.ClientConfigured = false
		s.Provider = nil
		s.ModelReady = false
	})
	s.setDefault(keyAttachments, func() { s.PendingAttachments = nil })
	s.setDefault(keyUploadedNames, func() { s.UploadedNames = make(map[string]struct{}) })
	s.setDefault(keyRenaming, func() { s.RenamingChatId = "" })
	s.setDefault(keyAutoload, func() { s.AutoloadLastChat = d.AutoloadLastChat })
	s.setDefault(keyAppJustStarted, func() { s.AppJustStarted = true })
	s.setDefault(keyLoadedOnStart, func() { s.LoadedOnStart = false })
	s.setDefault(keyInitialKeyCheck, func() { s.InitialKeyCheckDone = false })
	s.setDefault(keyGenerating, func() { s.Generating = false })
	s.setDefault(keyNotices, func() { s.Notices = nil })
}

// ResetConversation starts a fresh transcript while keeping the model and sampling settings.
// A blank id mints a new one.
func (s *Session) ResetConversation(newId string) {
	if newId == "" {
		newId = uuid.NewString()
	}

	fresh := entity.NewConversation(newId, constant.DefaultChatName, entity.GenerationDefaults{})
	if s.Conversation != nil {
		s.Conversation.CopySettingsTo(fresh)
	}
	s.Conversation = fresh
	s.markSet(keyConversation)

	s.ClearAttachments()
	s.RenamingChatId = ""
}

// ClearAttachments drops pending uploads and the memory of uploaded file names.
func (s *Session) ClearAttachments() {
	s.PendingAttachments = nil
	s.UploadedNames = make(map[string]struct{})
}

// TakeAttachments hands the pending uploads to the caller and clears them.
func (s *Session) TakeAttachments() []entity.Attachment {
	taken := s.PendingAttachments
	s.ClearAttachments()
	return taken
}

func (s *Session) HasUploaded(name string) bool {
	_, ok := s.UploadedNames[name]
	return ok
}

func (s *Session) MarkUploaded(name string) {
	if s.UploadedNames == nil {
		s.UploadedNames = make(map[string]struct{})
	}
	s.UploadedNames[name] = struct{}{}
}

func (s *Session) Notify(level, message string) Notice {
	n := Notice{Level: level, Message: message, At: time.Now()}
	s.Notices = append(s.Notices, n)
	return n
}

// DrainNotices returns queued notices once.
func (s *Session) DrainNotices() []Notice {
	out := s.Notices
	s.Notices = nil
	return out
}
