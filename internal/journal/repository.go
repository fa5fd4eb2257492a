package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested entry was not found.
var ErrNotFound = errors.New("journal entry not found")

// Entry is a stored registry event.
type Entry struct {
	ID        int64           `json:"id"`
	Registry  string          `json:"registry"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Registry string
	Name     string
	Limit    int
}

// Repository defines persistent storage for registry events.
type Repository interface {
	Append(ctx context.Context, registry, name string, payload json.RawMessage) error
	Get(ctx context.Context, id int64) (*Entry, error)
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL journal repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Append(ctx context.Context, registry, name string, payload json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO registry_events (registry, name, payload) VALUES ($1, $2, $3::jsonb)`,
		registry, name, payload)
	if err != nil {
		return fmt.Errorf("appending %s event: %w", name, err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id int64) (*Entry, error) {
	var e Entry
	err := r.pool.QueryRow(ctx,
		`SELECT id, registry, name, payload, created_at FROM registry_events WHERE id = $1`,
		id).Scan(&e.ID, &e.Registry, &e.Name, &e.Payload, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting event %d: %w", id, err)
	}
	return &e, nil
}

func (r *PgRepository) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, registry, name, payload, created_at
		 FROM registry_events
		 WHERE ($1 = '' OR registry = $1) AND ($2 = '' OR name = $2)
		 ORDER BY id DESC
		 LIMIT $3`, f.Registry, f.Name, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Registry, &e.Name, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return entries, nil
}
