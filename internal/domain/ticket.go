package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	Name        string
	Email       string
	Description string
	Status      TicketStatus
	CreatorID   string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Creator is populated by list queries only.
	Creator *UserSummary
}

// OwnedBy reports whether userID created the ticket.
func (t *Ticket) OwnedBy(userID string) bool {
	return t != nil && userID != "" && t.CreatorID == userID
}
