package stations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the bindings table when it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS live_station_bindings (
	station_id INTEGER NOT NULL,
	source     TEXT    NOT NULL,
	remote_id  TEXT    NOT NULL,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (station_id, source)
)`

// PostgresRepository reads bindings from the live_station_bindings table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL bindings repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema applies Schema.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create live_station_bindings: %w", err)
	}
	return nil
}

// List returns every binding ordered by station then source.
func (r *PostgresRepository) List(ctx context.Context) ([]Binding, error) {
	query := `
		SELECT station_id, source, remote_id, enabled
		FROM live_station_bindings
		ORDER BY station_id, source
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}

	bindings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Binding, error) {
		var b Binding
		err := row.Scan(&b.StationID, &b.Source, &b.RemoteID, &b.Enabled)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan bindings: %w", err)
	}
	return bindings, nil
}

// Upsert inserts or updates one binding.
func (r *PostgresRepository) Upsert(ctx context.Context, b Binding) error {
	if err := b.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO live_station_bindings (station_id, source, remote_id, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (station_id, source)
		DO UPDATE SET remote_id = EXCLUDED.remote_id, enabled = EXCLUDED.enabled, updated_at = now()
	`

	if _, err := r.pool.Exec(ctx, query, b.StationID, b.Source, b.RemoteID, b.Enabled); err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return nil
}
