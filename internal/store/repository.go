package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrStoreNotFound = errors.New("store not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Store, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Store, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const storeColumns = `id, owner_id, name, status, created_at, updated_at`

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

func (r *postgresRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE owner_id = $1`
	return r.queryOne(ctx, query, ownerID)
}

func (r *postgresRepository) queryOne(ctx context.Context, query string, arg any) (*Store, error) {
	var s Store
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&s.ID,
		&s.OwnerID,
		&s.Name,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("repository: failed to select store: %w", err)
	}

	return &s, nil
}
