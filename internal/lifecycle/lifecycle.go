// Package lifecycle owns the ticket status state machine.
package lifecycle

import (
	"fmt"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:        {domain.TicketStatusInProgress},
	domain.TicketStatusInProgress: {domain.TicketStatusResolved},
	domain.TicketStatusResolved:   {},
}

// TransitionError reports a rejected status change together with the
// targets that would have been accepted from the current state.
type TransitionError struct {
	From    domain.TicketStatus
	To      domain.TicketStatus
	Allowed []domain.TicketStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

// AllowedStrings returns the allowed targets as plain strings.
func (e *TransitionError) AllowedStrings() []string {
	out := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		out = append(out, string(s))
	}
	return out
}

// Initial returns the status every new ticket starts in.
func Initial() domain.TicketStatus {
	return domain.TicketStatusNew
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status domain.TicketStatus) bool {
	targets, known := allowedTransitions[status]
	return known && len(targets) == 0
}

// ParseStatus converts raw input into a known status.
func ParseStatus(raw string) (domain.TicketStatus, bool) {
	status := domain.TicketStatus(raw)
	_, known := allowedTransitions[status]
	return status, known
}

// AllowedTargets lists the statuses reachable from current. The result is
// never nil and may be safely modified by the caller.
func AllowedTargets(current domain.TicketStatus) []domain.TicketStatus {
	targets := allowedTransitions[current]
	out := make([]domain.TicketStatus, len(targets))
	copy(out, targets)
	return out
}

// ValidateTransition returns a *TransitionError unless requested is a
// direct successor of current.
func ValidateTransition(current, requested domain.TicketStatus) error {
	allowed := AllowedTargets(current)
	for _, candidate := range allowed {
		if candidate == requested {
			return nil
		}
	}
	return &TransitionError{From: current, To: requested, Allowed: allowed}
}
