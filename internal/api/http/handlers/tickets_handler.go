package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service  *service.TicketService
	validate *validator.Validate
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, validate *validator.Validate) *TicketsHandler {
	return &TicketsHandler{service: ticketService, validate: validate}
}

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("Authentication required")
	}
	return actor, nil
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var query dto.TicketListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("Invalid query parameters", nil)
	}
	if err := validateStruct(h.validate, &query); err != nil {
		return err
	}

	tickets, err := h.service.List(c.UserContext(), actor, service.ListOptions{Limit: query.Limit, Offset: query.Offset})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Tickets retrieved successfully", dto.NewTicketListResponse(tickets))
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Ticket retrieved successfully", dto.NewTicketResponse(ticket))
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := bindJSON(c, h.validate, &req); err != nil {
		return err
	}

	ticket, err := h.service.Create(c.UserContext(), actor, service.TicketCreateInput{
		Name:        req.Name,
		Email:       req.Email,
		Description: req.Description,
		CreatorID:   req.CreatorID,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "Ticket created successfully", dto.NewTicketResponse(ticket))
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := bindJSON(c, h.validate, &req); err != nil {
		return err
	}
	if req.Status != nil {
		return apperrors.NewValidationError("status cannot be changed here; use PATCH /tickets/:id/status",
			map[string]any{"status": "forbidden_field"})
	}
	if req.CreatorID != nil {
		return apperrors.NewValidationError("creatorId cannot be changed",
			map[string]any{"creatorId": "forbidden_field"})
	}
	if req.Empty() {
		return apperrors.NewValidationError("At least one of name, email, description is required", nil)
	}

	ticket, err := h.service.Update(c.UserContext(), actor, c.Params("id"), service.TicketUpdateInput{
		Name:        req.Name,
		Email:       req.Email,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Ticket updated successfully", dto.NewTicketResponse(ticket))
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := bindJSON(c, h.validate, &req); err != nil {
		return err
	}

	ticket, err := h.service.TransitionStatus(c.UserContext(), actor, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Ticket updated successfully", dto.NewTicketResponse(ticket))
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Ticket deleted successfully", nil)
}
