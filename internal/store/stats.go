package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath          string         `json:"db_path"`
	DBSizeBytes     int64          `json:"db_size_bytes"`
	TotalRecordings int            `json:"total_recordings"`
	ResidentPayload int64          `json:"resident_payload_bytes"`
	ByStatus        map[string]int `json:"by_status"`
	Scopes          []ScopeStats   `json:"scopes"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path, ByStatus: map[string]int{}}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(length(payload)), 0) FROM recordings`,
	).Scan(&st.TotalRecordings, &st.ResidentPayload); err != nil {
		return st, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT upload_status, COUNT(*) FROM recordings GROUP BY upload_status`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return st, err
		}
		st.ByStatus[status] = n
	}
	rows.Close()

	scopes, err := s.ListScopes(ctx)
	if err != nil {
		return st, err
	}
	st.Scopes = scopes
	return st, nil
}
