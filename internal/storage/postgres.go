package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps values in the client_storage table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a store on an open connection. Migrations must have run.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, scope, key string) ([]byte, error) {
	var value []byte
	query := `SELECT value FROM client_storage WHERE scope = $1 AND key = $2`

	err := p.db.GetContext(ctx, &value, query, scope, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (p *PostgresStore) Set(ctx context.Context, scope, key string, value []byte) error {
	query := `
		INSERT INTO client_storage (scope, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := p.db.ExecContext(ctx, query, scope, key, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, scope string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM client_storage WHERE scope = ? AND key IN (?)`, scope, keys)
	if err != nil {
		return err
	}
	query = p.db.Rebind(query)
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// PurgeIdle removes every scope that has not been written for longer than idle.
func (p *PostgresStore) PurgeIdle(ctx context.Context, idle time.Duration) (int64, error) {
	query := `
		DELETE FROM client_storage
		WHERE scope IN (
			SELECT scope FROM client_storage
			GROUP BY scope
			HAVING MAX(updated_at) < $1
		)
	`
	result, err := p.db.ExecContext(ctx, query, time.Now().Add(-idle))
	if err != nil {
		return 0, fmt.Errorf("failed to purge idle scopes: %w", err)
	}
	return result.RowsAffected()
}

// Close leaves the shared connection open; the owner closes it.
func (p *PostgresStore) Close() error {
	return nil
}
