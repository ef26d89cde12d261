package store

import (
	"context"
	"fmt"
	"time"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
)

// ExportRecord is a recording together with its resident payload.
type ExportRecord struct {
	model.Recording
	Payload []byte `json:"payload,omitempty"`
}

// ExportAll returns every recording, optionally limited to one scope,
// including payloads.
func (s *SQLiteStore) ExportAll(ctx context.Context, sc *model.Scope) ([]ExportRecord, error) {
	query := `SELECT ` + fullColumns + ` FROM recordings`
	var args []any
	if sc != nil {
		query += ` WHERE program = ? AND instance = ?`
		args = append(args, sc.Program, sc.Instance)
	}
	query += ` ORDER BY program, instance, prompt_order, created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportRecord
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ExportRecord{Recording: r, Payload: r.Payload})
	}
	return out, rows.Err()
}

// Import stores exported recordings under their original IDs. Existing IDs
// are skipped. Returns the number of rows inserted.
func (s *SQLiteStore) Import(ctx context.Context, recs []ExportRecord) (int, error) {
	imported := 0
	for _, e := range recs {
		parsed, err := model.ParseID(e.ID)
		if err != nil {
			return imported, err
		}
		r := e.Recording
		r.Payload = e.Payload
		if r.Program != parsed.Program || r.Instance != parsed.Instance || r.PromptOrder != parsed.PromptOrder {
			return imported, fmt.Errorf("import %s: fields do not match id", e.ID)
		}
		if r.UploadStatus == "" {
			r.UploadStatus = model.StatusPending
		}
		if err := r.Validate(); err != nil {
			return imported, fmt.Errorf("import: %w", err)
		}

		var payload, ref any
		if len(r.Payload) > 0 {
			payload = r.Payload
		}
		if r.RemoteRef != "" {
			ref = r.RemoteRef
		}
		size := r.SizeBytes
		if size == 0 {
			size = int64(len(r.Payload))
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO recordings (id, program, instance, prompt_order, created_at, payload, remote_ref, upload_status, size_bytes, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Program, r.Instance, r.PromptOrder, parsed.CreatedAt.UnixMilli(),
			payload, ref, r.UploadStatus, size, s.now().Format(time.RFC3339Nano))
		if err != nil {
			return imported, fmt.Errorf("import %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	return imported, nil
}
