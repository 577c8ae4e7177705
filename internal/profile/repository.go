package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kineticpt/booking-core/internal/db"
)

var ErrProfileNotFound = errors.New("profile not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, full_name, email, role, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, id)

	var p Profile
	var email *string
	err := row.Scan(
		&p.ID,
		&p.FullName,
		&email,
		&p.Role,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}
