package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Email       string  `json:"email" validate:"required,email,max=255"`
	Description string  `json:"description" validate:"required"`
	CreatorID   *string `json:"creatorId" validate:"omitempty,uuid"`
}

// UpdateTicketRequest is a partial update. Status and CreatorID are decoded
// only so that their presence can be rejected.
type UpdateTicketRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Email       *string `json:"email" validate:"omitempty,email,max=255"`
	Description *string `json:"description" validate:"omitempty,min=1"`
	Status      *string `json:"status"`
	CreatorID   *string `json:"creatorId"`
}

// Empty reports whether no updatable field was supplied.
func (r UpdateTicketRequest) Empty() bool {
	return r.Name == nil && r.Email == nil && r.Description == nil
}

// UpdateStatusRequest payload for PATCH /tickets/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// TicketListQuery pages GET /tickets. Both fields are optional.
type TicketListQuery struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=500"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

// CreatorSummary is the joined creator projection.
type CreatorSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TicketResponse is the public ticket representation.
type TicketResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Description string              `json:"description"`
	Status      domain.TicketStatus `json:"status"`
	CreatorID   string              `json:"creatorId"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	Creator     *CreatorSummary     `json:"creator,omitempty"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:          ticket.ID,
		Name:        ticket.Name,
		Email:       ticket.Email,
		Description: ticket.Description,
		Status:      ticket.Status,
		CreatorID:   ticket.CreatorID,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
	if ticket.Creator != nil {
		resp.Creator = &CreatorSummary{Name: ticket.Creator.Name, Email: ticket.Creator.Email}
	}
	return resp
}

// NewTicketListResponse maps a slice, never returning nil.
func NewTicketListResponse(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}
