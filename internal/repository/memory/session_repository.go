package memory

import (
	"sync"
	"time"

	"gemini-chat-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

type SessionRepository struct {
	cache *cache.Cache
	mu    sync.Mutex
}

// NewSessionRepository keeps sessions for idleTTL after their last use and purges expired
// items every 10 minutes.
func NewSessionRepository(idleTTL time.Duration) *SessionRepository {
	if idleTTL <= 0 {
		idleTTL = 24 * time.Hour
	}
	c := cache.New(idleTTL, 10*time.Minute)
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(session *store.Session) {
	r.cache.Set(session.ID, session, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*store.Session, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*store.Session), true
	}
	return nil, false
}

// GetOrCreate returns the session for sessionID, creating it when missing or expired.
// Every hit refreshes the idle expiration.
func (r *SessionRepository) GetOrCreate(sessionID string) (*store.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != "" {
		if session, found := r.Get(sessionID); found {
			r.Save(session)
			return session, false
		}
	}

	session := store.NewSession(sessionID)
	r.Save(session)
	return session, true
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
