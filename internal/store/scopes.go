package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
)

// ScopeStats holds per-scope counts.
type ScopeStats struct {
	Program     string     `json:"program"`
	Instance    string     `json:"instance"`
	Recordings  int        `json:"recordings"`
	Pending     int        `json:"pending"`
	Uploading   int        `json:"uploading"`
	Uploaded    int        `json:"uploaded"`
	Failed      int        `json:"failed"`
	FirstSeenAt *time.Time `json:"first_seen_at,omitempty"`
}

func (s *SQLiteStore) ScopeSeen(ctx context.Context, sc model.Scope) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM scopes WHERE program = ? AND instance = ?`, sc.Program, sc.Instance).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check scope: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkScopeSeen(ctx context.Context, sc model.Scope) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO scopes (program, instance, first_seen_at) VALUES (?, ?, ?)`,
		sc.Program, sc.Instance, s.now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("mark scope: %w", err)
	}
	return nil
}

// ListScopes returns every scope that holds recordings or was activated.
func (s *SQLiteStore) ListScopes(ctx context.Context) ([]ScopeStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT k.program, k.instance,
		       COUNT(r.id),
		       COALESCE(SUM(r.upload_status = 'pending'), 0),
		       COALESCE(SUM(r.upload_status = 'uploading'), 0),
		       COALESCE(SUM(r.upload_status = 'uploaded'), 0),
		       COALESCE(SUM(r.upload_status = 'failed'), 0),
		       sc.first_seen_at
		FROM (
			SELECT program, instance FROM recordings
			UNION
			SELECT program, instance FROM scopes
		) k
		LEFT JOIN recordings r ON r.program = k.program AND r.instance = k.instance
		LEFT JOIN scopes sc ON sc.program = k.program AND sc.instance = k.instance
		GROUP BY k.program, k.instance
		ORDER BY k.program, k.instance`)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	var out []ScopeStats
	for rows.Next() {
		var st ScopeStats
		var firstSeen sql.NullString
		if err := rows.Scan(&st.Program, &st.Instance, &st.Recordings,
			&st.Pending, &st.Uploading, &st.Uploaded, &st.Failed, &firstSeen); err != nil {
			return nil, err
		}
		if firstSeen.Valid {
			if t, err := time.Parse(time.RFC3339Nano, firstSeen.String); err == nil {
				st.FirstSeenAt = &t
			}
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
