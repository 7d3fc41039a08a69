package serverutils

import (
	"time"

	"gemini-chat-be/internal/service"
	"gemini-chat-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	SessionCookieName = "chat_session_id"
	sessionLocalsKey  = "session"
)

// SessionMiddleware binds the browser's session to the request and holds its lock until the
// handler returns.
func SessionMiddleware(sessions service.ISessionService, cookieTTL time.Duration) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := SessionIdFromCookie(ctx)

		sess := sessions.Acquire(ctx.UserContext(), id)
		defer sessions.Release(sess)

		if sess.ID != id {
			ctx.Cookie(&fiber.Cookie{
				Name:     SessionCookieName,
				Value:    sess.ID,
				Path:     "/",
				Expires:  time.Now().Add(cookieTTL),
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		ctx.Locals(sessionLocalsKey, sess)
		return ctx.Next()
	}
}

// SessionIdFromCookie returns the cookie's session id, or "" when it is missing or malformed.
func SessionIdFromCookie(ctx *fiber.Ctx) string {
	id := ctx.Cookies(SessionCookieName)
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

func CurrentSession(ctx *fiber.Ctx) *store.Session {
	sess, _ := ctx.Locals(sessionLocalsKey).(*store.Session)
	return sess
}
