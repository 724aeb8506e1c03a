package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketService coordinates ticket workflows. Every operation takes the
// caller explicitly; the access policy is evaluated here, after existence,
// so a missing ticket is a 404 even for a non-owner.
type TicketService struct {
	tickets repository.TicketRepository
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
}

// TicketUpdateInput carries a partial update: only non-nil fields are
// applied to the ticket.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Status      *string
}

// NewTicketService constructs the service.
func NewTicketService(tickets repository.TicketRepository) *TicketService {
	return &TicketService{tickets: tickets}
}

// Create opens a new ticket authored by the caller. Status and author are
// forced server-side regardless of the payload.
func (s *TicketService) Create(ctx context.Context, caller *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		AuthorID:    caller.ID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// List returns tickets visible to the caller, most recently touched first.
// Admins see everything; everyone else only their own.
func (s *TicketService) List(ctx context.Context, caller *domain.User, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": string(status)})
		}
	}

	filter := repository.TicketFilter{
		AuthorID: auth.TicketScope(caller),
		Statuses: statuses,
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Get fetches a single ticket, access-checked.
func (s *TicketService) Get(ctx context.Context, caller *domain.User, id int64) (*domain.Ticket, error) {
	return s.loadAuthorized(ctx, caller, id)
}

// Update applies the present fields of the partial update and refreshes
// updated_at. An update either fully commits or not at all.
func (s *TicketService) Update(ctx context.Context, caller *domain.User, id int64, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.loadAuthorized(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title must not be empty", nil)
		}
		ticket.Title = title
	}
	if input.Description != nil {
		ticket.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		status := domain.TicketStatus(*input.Status)
		if !status.Valid() {
			return nil, apperrors.NewValidationError("status must be one of open, in_progress, closed", map[string]any{"status": *input.Status})
		}
		ticket.Status = status
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Delete removes the ticket. No cascading side effects.
func (s *TicketService) Delete(ctx context.Context, caller *domain.User, id int64) error {
	if _, err := s.loadAuthorized(ctx, caller, id); err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *TicketService) loadAuthorized(ctx context.Context, caller *domain.User, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if !auth.CanAccessTicket(caller, ticket) {
		return nil, apperrors.NewForbidden("not the ticket author")
	}
	return ticket, nil
}
