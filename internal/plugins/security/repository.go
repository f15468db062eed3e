package security

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keyxmakerx/tessera/internal/database"
)

// SecurityEventRepository defines the data access contract for security events.
type SecurityEventRepository interface {
	// Log inserts a new security event.
	Log(ctx context.Context, event *SecurityEvent) error

	// ListByEmail returns the most recent events for one identity, newest first.
	ListByEmail(ctx context.Context, email string, limit int) ([]SecurityEvent, error)
}

// securityEventRepository implements SecurityEventRepository with SQL that
// runs on MariaDB and SQLite.
type securityEventRepository struct {
	db *sql.DB
}

// NewSecurityEventRepository creates a new repository backed by the given DB.
func NewSecurityEventRepository(db *sql.DB) SecurityEventRepository {
	return &securityEventRepository{db: db}
}

// Log inserts a new security event. Details are serialized to JSON.
func (r *securityEventRepository) Log(ctx context.Context, event *SecurityEvent) error {
	query := `INSERT INTO security_events (event_type, email, ip_address, user_agent, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	var details any
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshaling security event details: %w", err)
		}
		details = string(b)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = database.Timestamp(time.Now())
	}

	result, err := r.db.ExecContext(ctx, query,
		event.EventType, event.Email,
		event.IPAddress, event.UserAgent,
		details, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}

	id, _ := result.LastInsertId()
	event.ID = id
	return nil
}

// ListByEmail returns recent events for email.
func (r *securityEventRepository) ListByEmail(ctx context.Context, email string, limit int) ([]SecurityEvent, error) {
	query := `SELECT id, event_type, email, ip_address, user_agent, details, created_at
	          FROM security_events WHERE email = ?
	          ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("listing security events: %w", err)
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var (
			e       SecurityEvent
			details sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.Email, &e.IPAddress, &e.UserAgent,
			&details, database.ScanTime(&e.CreatedAt),
		); err != nil {
			return nil, fmt.Errorf("scanning security event: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decoding security event details: %w", err)
			}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
