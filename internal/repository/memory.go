package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MemoryStore keeps users and tickets in process memory. It backs the
// service when no Postgres DSN is configured and is used throughout tests.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	tickets map[string]domain.Ticket
	seq     map[string]int64
	next    int64
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		tickets: make(map[string]domain.Ticket),
		seq:     make(map[string]int64),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Users exposes the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Tickets exposes the store as a TicketRepository.
func (s *MemoryStore) Tickets() TicketRepository { return memoryTickets{s} }

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for _, existing := range m.s.users {
		if existing.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := m.s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	m.s.users[user.ID] = *user
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	user, ok := m.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	for _, user := range m.s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memoryTickets struct{ s *MemoryStore }

func (m memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := m.s.now()
	ticket.Version = 1
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	ticket.Creator = nil

	m.s.next++
	m.s.seq[ticket.ID] = m.s.next
	m.s.tickets[ticket.ID] = *ticket
	return nil
}

func (m memoryTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	stored, ok := m.s.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != ticket.Version {
		return ErrVersionConflict
	}
	stored.Name = ticket.Name
	stored.Email = ticket.Email
	stored.Description = ticket.Description
	stored.Status = ticket.Status
	stored.Version++
	stored.UpdatedAt = m.s.now()
	m.s.tickets[ticket.ID] = stored

	ticket.Version = stored.Version
	ticket.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m memoryTickets) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.s.tickets, id)
	delete(m.s.seq, id)
	return nil
}

func (m memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	ticket, ok := m.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (m memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	result := []domain.Ticket{}
	for _, ticket := range m.s.tickets {
		if filter.CreatorID != nil && ticket.CreatorID != *filter.CreatorID {
			continue
		}
		if creator, ok := m.s.users[ticket.CreatorID]; ok {
			ticket.Creator = &domain.UserSummary{Name: creator.Name, Email: creator.Email}
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		return m.s.seq[result[i].ID] < m.s.seq[result[j].ID]
	})

	if filter.Limit <= 0 {
		return result, nil
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []domain.Ticket{}, nil
	}
	end := offset + filter.Limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}
