package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresRepository stores audit events in the audit_logs table
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new audit repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type auditRow struct {
	Event
	RawMetadata []byte `db:"metadata"`
}

// Insert stores one event
func (r *PostgresRepository) Insert(ctx context.Context, event *Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, event_type, client_id, session_id, result, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.EventType, event.ClientID, event.SessionID,
		event.Result, metadata, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListByClient returns the newest events for a client
func (r *PostgresRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, event_type, client_id, session_id, result, metadata, created_at
		FROM audit_logs
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, clientID, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}

	events := make([]*Event, len(rows))
	for i := range rows {
		evt := rows[i].Event
		if len(rows[i].RawMetadata) > 0 {
			_ = json.Unmarshal(rows[i].RawMetadata, &evt.Metadata)
		}
		events[i] = &evt
	}
	return events, nil
}
