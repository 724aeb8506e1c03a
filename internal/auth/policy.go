package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// CanAccessTicket decides whether the caller may read or mutate the ticket:
// admins always, everyone else only their own.
func CanAccessTicket(caller *domain.User, ticket *domain.Ticket) bool {
	if caller == nil || ticket == nil {
		return false
	}
	return caller.IsAdmin() || caller.ID == ticket.AuthorID
}

// TicketScope returns the author id listings must be restricted to, or nil
// when the caller may see every ticket.
func TicketScope(caller *domain.User) *int64 {
	if caller.IsAdmin() {
		return nil
	}
	id := caller.ID
	return &id
}

// CanManageUsers decides whether the caller may list users, change roles,
// or delete accounts.
func CanManageUsers(caller *domain.User) bool {
	return caller.IsAdmin()
}

// RequireAdmin ensures the authenticated principal holds the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !CanManageUsers(principal.User) {
			return apperrors.NewForbidden("admin role required")
		}
		return c.Next()
	}
}
