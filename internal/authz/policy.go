// Package authz decides which ticket operations an actor may perform.
//
// Every decision is a pure function of the actor, the ticket (nil for
// collection-level actions) and the requested action. The policy variant is
// chosen once, by role and ownership, in For; call sites never compare role
// strings themselves.
package authz

import (
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Action enumerates the operation kinds subject to authorization.
type Action string

const (
	ActionList           Action = "list"
	ActionRead           Action = "read"
	ActionCreate         Action = "create"
	ActionCreateOnBehalf Action = "create_on_behalf"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionTransition     Action = "transition"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Request describes one authorization question.
type Request struct {
	Actor  domain.Actor
	Ticket *domain.Ticket
	Action Action
	// TargetStatus is only consulted for ActionTransition.
	TargetStatus domain.TicketStatus
}

// Scope restricts a ticket listing.
type Scope struct {
	All       bool
	CreatorID string
}

// Policy is one authorization variant.
type Policy interface {
	Name() string
	Decide(req Request) Decision
	ListScope(actor domain.Actor) (Scope, Decision)
}

type permissions map[Action]Decision

func (p permissions) lookup(action Action) Decision {
	if d, ok := p[action]; ok {
		return d
	}
	return Deny
}

// AdminPolicy grants every action on every ticket.
type AdminPolicy struct{}

var adminPermissions = permissions{
	ActionList:           Allow,
	ActionRead:           Allow,
	ActionCreate:         Allow,
	ActionCreateOnBehalf: Allow,
	ActionUpdate:         Allow,
	ActionDelete:         Allow,
	ActionTransition:     Allow,
}

func (AdminPolicy) Name() string { return "admin" }

func (AdminPolicy) Decide(req Request) Decision {
	return adminPermissions.lookup(req.Action)
}

func (AdminPolicy) ListScope(domain.Actor) (Scope, Decision) {
	return Scope{All: true}, Allow
}

// OwnerPolicy applies to a regular user acting on their own tickets, or on
// their own slice of the collection.
type OwnerPolicy struct{}

var ownerPermissions = permissions{
	ActionList:       Allow,
	ActionRead:       Allow,
	ActionCreate:     Allow,
	ActionUpdate:     Allow,
	ActionDelete:     Allow,
	ActionTransition: Allow,
}

// adminOnlyTargets are statuses only an admin may move a ticket into.
var adminOnlyTargets = map[domain.TicketStatus]struct{}{
	domain.TicketStatusResolved: {},
}

func (OwnerPolicy) Name() string { return "owner" }

func (OwnerPolicy) Decide(req Request) Decision {
	if req.Action == ActionTransition {
		if _, adminOnly := adminOnlyTargets[req.TargetStatus]; adminOnly {
			return Deny
		}
	}
	return ownerPermissions.lookup(req.Action)
}

func (OwnerPolicy) ListScope(actor domain.Actor) (Scope, Decision) {
	return Scope{CreatorID: actor.ID}, Allow
}

// DenyPolicy covers non-owners and unknown roles.
type DenyPolicy struct{}

func (DenyPolicy) Name() string { return "deny" }

func (DenyPolicy) Decide(Request) Decision { return Deny }

func (DenyPolicy) ListScope(domain.Actor) (Scope, Decision) {
	return Scope{}, Deny
}

// For selects the policy variant for actor acting on ticket.
func For(actor domain.Actor, ticket *domain.Ticket) Policy {
	switch {
	case actor.Role == domain.RoleAdmin:
		return AdminPolicy{}
	case actor.Role == domain.RoleUser && (ticket == nil || ticket.OwnedBy(actor.ID)):
		return OwnerPolicy{}
	default:
		return DenyPolicy{}
	}
}

// Decide evaluates req. Creating a ticket only requires authentication.
func Decide(req Request) Decision {
	if req.Action == ActionCreate {
		return Allow
	}
	return For(req.Actor, req.Ticket).Decide(req)
}

// ListScope returns the listing scope for actor.
func ListScope(actor domain.Actor) (Scope, Decision) {
	return For(actor, nil).ListScope(actor)
}

// Authorize is Decide expressed as an error: nil on Allow, a FORBIDDEN
// DomainError otherwise.
func Authorize(req Request) error {
	if Decide(req) == Allow {
		return nil
	}
	return apperrors.NewForbidden(deniedMessage(req))
}

func deniedMessage(req Request) string {
	if !req.Actor.Role.Valid() {
		return "Access denied: Invalid user role"
	}
	switch req.Action {
	case ActionList:
		return "Access denied: Invalid user role"
	case ActionRead:
		return "Access denied: You are not allowed to view this ticket"
	case ActionUpdate:
		return "Access denied: You are not allowed to update this ticket"
	case ActionDelete:
		return "Access denied: You are not allowed to delete this ticket"
	case ActionCreateOnBehalf:
		return "Access denied: You are not allowed to create tickets for other users"
	case ActionTransition:
		if req.TargetStatus == domain.TicketStatusResolved {
			return "Access denied: You are not allowed to set the status to resolved"
		}
		return "Access denied: You are not allowed to change the status of this ticket"
	default:
		return "Access denied"
	}
}
