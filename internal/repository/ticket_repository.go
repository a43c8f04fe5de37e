package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketFilter narrows a listing. A zero Limit returns every match.
type TicketFilter struct {
	CreatorID *string
	Limit     int
	Offset    int
}

// TicketRepository encapsulates ticket persistence.
//
// Update compares ticket.Version with the stored version and fails with
// ErrVersionConflict on mismatch; on success ticket.Version is advanced.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, name, email, description, status, creator_id, version)
        VALUES ($1,$2,$3,$4,$5,$6,1)
        RETURNING version, created_at, updated_at`
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	return r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.Name,
		ticket.Email,
		ticket.Description,
		ticket.Status,
		ticket.CreatorID,
	).Scan(&ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET name=$1, email=$2, description=$3, status=$4,
            version=version+1, updated_at=NOW()
        WHERE id=$5 AND version=$6
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Name,
		ticket.Email,
		ticket.Description,
		ticket.Status,
		ticket.ID,
		ticket.Version,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrVersionConflict
	}
	return pgx.ErrNoRows
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, name, email, description, status, creator_id, version, created_at, updated_at
        FROM tickets WHERE id=$1`
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Name,
		&ticket.Email,
		&ticket.Description,
		&ticket.Status,
		&ticket.CreatorID,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT t.id, t.name, t.email, t.description, t.status, t.creator_id, t.version,
                    t.created_at, t.updated_at, u.name, u.email
             FROM tickets t LEFT JOIN users u ON u.id = t.creator_id`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatorID != nil {
		if !validID(*filter.CreatorID) {
			return []domain.Ticket{}, nil
		}
		args = append(args, *filter.CreatorID)
		clauses = append(clauses, fmt.Sprintf("t.creator_id=$%d", len(args)))
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.created_at ASC, t.id ASC`, base, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		var (
			ticket       domain.Ticket
			creatorName  *string
			creatorEmail *string
		)
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Name,
			&ticket.Email,
			&ticket.Description,
			&ticket.Status,
			&ticket.CreatorID,
			&ticket.Version,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&creatorName,
			&creatorEmail,
		); err != nil {
			return nil, err
		}
		if creatorName != nil && creatorEmail != nil {
			ticket.Creator = &domain.UserSummary{Name: *creatorName, Email: *creatorEmail}
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
