package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
)

// DefaultSummaryLimit bounds ListSummaries when no limit is given.
const DefaultSummaryLimit = 5

// SessionRepository provides data access for archived sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save archives a completed session. Saving the same session again replaces
// the earlier row.
func (r *SessionRepository) Save(ctx context.Context, s *model.SessionSummary) error {
	query := `
		INSERT INTO sessions (id, child_id, config, summary, event_count, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			child_id = excluded.child_id,
			config = excluded.config,
			summary = excluded.summary,
			event_count = excluded.event_count,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at
	`

	_, err := r.db.ExecContext(ctx, query,
		s.SessionID,
		s.ChildID,
		nullJSON(s.Config),
		nullJSON(s.Summary),
		s.EventCount,
		s.StartedAt.UTC(),
		s.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetByID retrieves an archived session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.SessionSummary, error) {
	query := `
		SELECT id, child_id, config, summary, event_count, started_at, ended_at
		FROM sessions
		WHERE id = ?
	`

	s, err := scanSummary(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSummaries returns the child's most recent archived sessions, newest
// first. A limit of zero or less uses DefaultSummaryLimit.
func (r *SessionRepository) ListSummaries(ctx context.Context, childID string, limit int) ([]model.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	query := `
		SELECT id, child_id, config, summary, event_count, started_at, ended_at
		FROM sessions
		WHERE child_id = ?
		ORDER BY ended_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []model.SessionSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return summaries, nil
}

// Delete removes an archived session.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// CountByChild returns how many sessions are archived for a child.
func (r *SessionRepository) CountByChild(ctx context.Context, childID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE child_id = ?`, childID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (*model.SessionSummary, error) {
	s := &model.SessionSummary{}
	var config, summary sql.NullString
	if err := row.Scan(
		&s.SessionID,
		&s.ChildID,
		&config,
		&summary,
		&s.EventCount,
		&s.StartedAt,
		&s.EndedAt,
	); err != nil {
		return nil, err
	}
	if config.Valid {
		s.Config = json.RawMessage(config.String)
	}
	if summary.Valid {
		s.Summary = json.RawMessage(summary.String)
	}
	return s, nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
