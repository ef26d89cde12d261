package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	lock    *flock.Flock
	entropy io.Reader
	now     func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path and
// takes an exclusive lock on it for the lifetime of the handle.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	lock := flock.New(dbPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dbPath)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection serializes read-modify-write transactions.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:   db,
		path: dbPath,
		lock: lock,
		now:  func() time.Time { return time.Now().UTC() },
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Create(ctx context.Context, p CreateParams) (*model.Recording, error) {
	if err := p.Prompt.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	createdAt = createdAt.UTC().Truncate(time.Millisecond)

	id, err := model.NewID(p.Prompt, createdAt, s.entropy)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if p.Limit > 0 {
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM recordings WHERE program = ? AND instance = ? AND prompt_order = ?`,
			p.Prompt.Program, p.Prompt.Instance, p.Prompt.PromptOrder).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("count recordings: %w", err)
		}
		if count >= p.Limit {
			return nil, fmt.Errorf("%w: %s has %d of %d", ErrCapacity, p.Prompt, count, p.Limit)
		}
	}

	var payload any
	if len(p.Payload) > 0 {
		payload = p.Payload
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO recordings (id, program, instance, prompt_order, created_at, payload, remote_ref, upload_status, size_bytes, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		id, p.Prompt.Program, p.Prompt.Instance, p.Prompt.PromptOrder, createdAt.UnixMilli(),
		payload, model.StatusPending, len(p.Payload), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Recording{
		ID:           id,
		Program:      p.Prompt.Program,
		Instance:     p.Prompt.Instance,
		PromptOrder:  p.Prompt.PromptOrder,
		CreatedAt:    createdAt,
		Payload:      p.Payload,
		PayloadBytes: int64(len(p.Payload)),
		UploadStatus: model.StatusPending,
		SizeBytes:    int64(len(p.Payload)),
		UpdatedAt:    now,
	}, nil
}

const fullColumns = `id, program, instance, prompt_order, created_at, payload, length(payload), remote_ref, upload_status, size_bytes, updated_at`
const listColumns = `id, program, instance, prompt_order, created_at, NULL, length(payload), remote_ref, upload_status, size_bytes, updated_at`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Recording, error) {
	return getRecording(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecording(ctx context.Context, q queryer, id string) (*model.Recording, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fullColumns+` FROM recordings WHERE id = ?`, id)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Recording, error) {
	cols := listColumns
	if p.IncludePayload {
		cols = fullColumns
	}

	where := []string{"program = ?", "instance = ?"}
	args := []any{p.Scope.Program, p.Scope.Instance}
	if p.PromptOrder > 0 {
		where = append(where, "prompt_order = ?")
		args = append(args, p.PromptOrder)
	}
	if len(p.Statuses) > 0 {
		where = append(where, "upload_status IN ("+makePlaceholders(len(p.Statuses))+")")
		for _, st := range p.Statuses {
			args = append(args, st)
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM recordings WHERE %s ORDER BY prompt_order, created_at, id`,
		cols, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recs []model.Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, p model.PromptScope) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recordings WHERE program = ? AND instance = ? AND prompt_order = ?`,
		p.Program, p.Instance, p.PromptOrder).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recordings: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn Mutator) (*model.Recording, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := getRecording(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if err := fn(&next); err != nil {
		if errors.Is(err, ErrNoChange) {
			return current, nil
		}
		return nil, err
	}

	// Identity and scope are immutable.
	next.ID = current.ID
	next.Program = current.Program
	next.Instance = current.Instance
	next.PromptOrder = current.PromptOrder
	next.CreatedAt = current.CreatedAt
	next.SizeBytes = current.SizeBytes
	next.PayloadBytes = int64(len(next.Payload))
	next.UpdatedAt = s.now()

	if err := next.Validate(); err != nil {
		return nil, err
	}

	var payload, ref any
	if len(next.Payload) > 0 {
		payload = next.Payload
	}
	if next.RemoteRef != "" {
		ref = next.RemoteRef
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE recordings SET payload = ?, remote_ref = ?, upload_status = ?, updated_at = ? WHERE id = ?`,
		payload, ref, next.UploadStatus, next.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, fmt.Errorf("update recording: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) DeleteScope(ctx context.Context, sc model.Scope) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM recordings WHERE program = ? AND instance = ?`, sc.Program, sc.Instance)
	if err != nil {
		return 0, fmt.Errorf("delete scope: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ResetInterruptedUploads(ctx context.Context, sc model.Scope) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recordings
		 SET upload_status = CASE WHEN payload IS NOT NULL THEN ? ELSE ? END,
		     updated_at = ?
		 WHERE program = ? AND instance = ? AND upload_status = ?`,
		model.StatusPending, model.StatusFailed, s.now().Format(time.RFC3339Nano),
		sc.Program, sc.Instance, model.StatusUploading)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted uploads: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("release store lock: %w", unlockErr)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (model.Recording, error) {
	var r model.Recording
	var createdMs int64
	var payloadLen sql.NullInt64
	var remoteRef sql.NullString
	var status, updatedAt string

	err := row.Scan(
		&r.ID, &r.Program, &r.Instance, &r.PromptOrder, &createdMs,
		&r.Payload, &payloadLen, &remoteRef, &status, &r.SizeBytes, &updatedAt,
	)
	if err != nil {
		return r, err
	}

	r.CreatedAt = time.UnixMilli(createdMs).UTC()
	r.UploadStatus = model.UploadStatus(status)
	if payloadLen.Valid {
		r.PayloadBytes = payloadLen.Int64
	}
	if remoteRef.Valid {
		r.RemoteRef = remoteRef.String
	}
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if len(r.Payload) == 0 {
		r.Payload = nil
	}
	return r, nil
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
