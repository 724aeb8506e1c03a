package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller. The user row is loaded
// fresh on every request so role changes take effect immediately.
type Principal struct {
	SessionID string
	User      *domain.User
}

// AuthMiddleware resolves the session cookie and loads principals.
type AuthMiddleware struct {
	sessions   *SessionManager
	users      repository.UserRepository
	cookieName string
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(sessions *SessionManager, users repository.UserRepository, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, users: users, cookieName: cookieName}
}

// CookieName returns the name of the session cookie being read.
func (m *AuthMiddleware) CookieName() string {
	return m.cookieName
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	sid := c.Cookies(m.cookieName)
	if sid == "" {
		return apperrors.NewUnauthorized("authentication required")
	}

	session, err := m.sessions.Get(c.UserContext(), sid)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return apperrors.NewUnauthorized("invalid or expired session")
		}
		return apperrors.MapError(err)
	}

	user, err := m.users.GetByID(c.UserContext(), session.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The account was deleted out from under the session.
			_ = m.sessions.Destroy(c.UserContext(), sid)
			return apperrors.NewUnauthorized("user no longer exists")
		}
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, &Principal{SessionID: session.ID, User: user})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
