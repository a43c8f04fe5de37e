package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/authz"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lifecycle"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const ticketResource = "Ticket"

// TransitionRecorder counts accepted status changes.
type TransitionRecorder interface {
	RecordTransition(from, to string)
}

// TicketService coordinates ticket workflows. Every operation consults the
// authorization policy, and for status changes the lifecycle, before any
// write reaches the repository.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	metrics    TransitionRecorder
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Metrics    TransitionRecorder
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Name        string
	Email       string
	Description string
	// CreatorID is honoured for admins only.
	CreatorID *string
}

// TicketUpdateInput carries the partial fields of an update. Nil fields are
// left unchanged.
type TicketUpdateInput struct {
	Name        *string
	Email       *string
	Description *string
}

// ListOptions pages a listing. A zero Limit returns the whole scoped set.
type ListOptions struct {
	Limit  int
	Offset int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// List returns the tickets visible to actor.
func (s *TicketService) List(ctx context.Context, actor domain.Actor, opts ListOptions) ([]domain.Ticket, error) {
	scope, decision := authz.ListScope(actor)
	if decision != authz.Allow {
		return nil, authz.Authorize(authz.Request{Actor: actor, Action: authz.ActionList})
	}

	filter := repository.TicketFilter{Limit: opts.Limit, Offset: opts.Offset}
	if !scope.All {
		creatorID := scope.CreatorID
		filter.CreatorID = &creatorID
	}
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// Get returns one ticket if actor may read it.
func (s *TicketService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(authz.Request{Actor: actor, Ticket: ticket, Action: authz.ActionRead}); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Create files a new ticket in the initial status.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if err := authz.Authorize(authz.Request{Actor: actor, Action: authz.ActionCreate}); err != nil {
		return nil, err
	}

	creatorID, err := s.resolveCreator(ctx, actor, input.CreatorID)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		Name:        strings.TrimSpace(input.Name),
		Email:       strings.TrimSpace(input.Email),
		Description: strings.TrimSpace(input.Description),
		Status:      lifecycle.Initial(),
		CreatorID:   creatorID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, actor, events.TicketCreatedPayload{
		CreatorID: ticket.CreatorID,
		Status:    ticket.Status,
		Name:      ticket.Name,
	}))
	return ticket, nil
}

func (s *TicketService) resolveCreator(ctx context.Context, actor domain.Actor, requested *string) (string, error) {
	if requested == nil || strings.TrimSpace(*requested) == "" || *requested == actor.ID {
		return actor.ID, nil
	}

	onBehalf := authz.Request{Actor: actor, Action: authz.ActionCreateOnBehalf}
	if authz.Decide(onBehalf) != authz.Allow {
		s.logger.Debug("ignoring creatorId supplied by non-admin",
			zap.String("actor_id", actor.ID),
			zap.String("creator_id", *requested))
		return actor.ID, nil
	}

	if _, err := s.users.GetByID(ctx, *requested); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewValidationError("creatorId does not reference an existing user",
				map[string]any{"creatorId": *requested})
		}
		return "", apperrors.NewInternalError(err)
	}
	return *requested, nil
}

// Update applies a partial change of name, email or description.
func (s *TicketService) Update(ctx context.Context, actor domain.Actor, id string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(authz.Request{Actor: actor, Ticket: ticket, Action: authz.ActionUpdate}); err != nil {
		return nil, err
	}

	changed := make([]string, 0, 3)
	if input.Name != nil {
		ticket.Name = strings.TrimSpace(*input.Name)
		changed = append(changed, "name")
	}
	if input.Email != nil {
		ticket.Email = strings.TrimSpace(*input.Email)
		changed = append(changed, "email")
	}
	if input.Description != nil {
		ticket.Description = strings.TrimSpace(*input.Description)
		changed = append(changed, "description")
	}

	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketUpdated, ticket.ID, actor, events.TicketUpdatedPayload{
		Fields: changed,
	}))
	return ticket, nil
}

// TransitionStatus moves a ticket to requested. Lifecycle legality is checked
// before authorization so an illegal target always reports the allowed set.
func (s *TicketService) TransitionStatus(ctx context.Context, actor domain.Actor, id, requested string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	from := ticket.Status
	to := domain.TicketStatus(strings.TrimSpace(requested))
	if err := lifecycle.ValidateTransition(from, to); err != nil {
		var transitionErr *lifecycle.TransitionError
		if errors.As(err, &transitionErr) {
			return nil, apperrors.NewInvalidTransition(transitionErr.AllowedStrings())
		}
		return nil, apperrors.NewInternalError(err)
	}

	if err := authz.Authorize(authz.Request{
		Actor:        actor,
		Ticket:       ticket,
		Action:       authz.ActionTransition,
		TargetStatus: to,
	}); err != nil {
		return nil, err
	}

	ticket.Status = to
	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(string(from), string(to))
	}
	s.publishEvent(ctx, events.NewEvent(events.EventTicketStatusChanged, ticket.ID, actor, events.TicketStatusChangedPayload{
		OldStatus: from,
		NewStatus: to,
	}))
	return ticket, nil
}

// Delete removes a ticket.
func (s *TicketService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.Authorize(authz.Request{Actor: actor, Ticket: ticket, Action: authz.ActionDelete}); err != nil {
		return err
	}

	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return mapTicketError(err)
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketDeleted, ticket.ID, actor, events.TicketDeletedPayload{
		CreatorID: ticket.CreatorID,
	}))
	return nil
}

func (s *TicketService) load(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapTicketError(err)
	}
	return ticket, nil
}

func (s *TicketService) save(ctx context.Context, ticket *domain.Ticket) error {
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return mapTicketError(err)
	}
	return nil
}

func mapTicketError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound(ticketResource, nil)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict("Ticket was modified by another request", nil)
	default:
		return apperrors.NewInternalError(err)
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
