package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether the status is one of the accepted values.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. AuthorID is set once at
// creation and never changes afterwards.
type Ticket struct {
	ID          int64
	Title       string
	Description string
	Status      TicketStatus
	AuthorID    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
