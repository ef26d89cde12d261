package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
)

var testScope = model.Scope{Program: "spookyland", Instance: "lmid-1"}

func prompt(order int) model.PromptScope {
	return model.PromptScope{Scope: testScope, PromptOrder: order}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.Create(ctx, CreateParams{Prompt: prompt(2), Payload: []byte("audio")})
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, rec.UploadStatus)
	require.EqualValues(t, 5, rec.SizeBytes)

	parsed, err := model.ParseID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, prompt(2), parsed.PromptScope)
	require.True(t, parsed.CreatedAt.Equal(rec.CreatedAt))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("audio"), got.Payload)
	require.True(t, got.HasPayload())
	require.True(t, got.CreatedAt.Equal(rec.CreatedAt))
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateEnforcesLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte{1}, Limit: 3})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte{1}, Limit: 3})
	require.ErrorIs(t, err, ErrCapacity)

	n, err := s.Count(ctx, prompt(1))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// Other prompts are unaffected.
	_, err = s.Create(ctx, CreateParams{Prompt: prompt(2), Payload: []byte{1}, Limit: 3})
	require.NoError(t, err)
}

func TestListOrdersByPromptThenCreation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.UnixMilli(1_700_000_000_000)
	mk := func(order int, offset int64) string {
		r, err := s.Create(ctx, CreateParams{Prompt: prompt(order), Payload: []byte{1}, CreatedAt: base.Add(time.Duration(offset) * time.Millisecond)})
		require.NoError(t, err)
		return r.ID
	}
	c := mk(2, 300)
	a := mk(1, 200)
	b := mk(2, 100)

	list, err := s.List(ctx, ListParams{Scope: testScope})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{a, b, c}, []string{list[0].ID, list[1].ID, list[2].ID})

	// Listings carry the payload size but not the bytes.
	require.Nil(t, list[0].Payload)
	require.EqualValues(t, 1, list[0].PayloadBytes)
	require.True(t, list[0].HasPayload())

	only2, err := s.List(ctx, ListParams{Scope: testScope, PromptOrder: 2, IncludePayload: true})
	require.NoError(t, err)
	require.Len(t, only2, 2)
	require.Equal(t, []byte{1}, only2[0].Payload)

	other, err := s.List(ctx, ListParams{Scope: model.Scope{Program: "spookyland", Instance: "other"}})
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestListFiltersStatuses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r1, _ := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte{1}})
	_, _ = s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte{1}})
	_, err := s.Update(ctx, r1.ID, func(r *model.Recording) error {
		r.UploadStatus = model.StatusFailed
		return nil
	})
	require.NoError(t, err)

	failed, err := s.List(ctx, ListParams{Scope: testScope, Statuses: []model.UploadStatus{model.StatusFailed}})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, r1.ID, failed[0].ID)
}

func TestUpdatePersistsMutableFieldsOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte("abc")})
	require.NoError(t, err)

	updated, err := s.Update(ctx, rec.ID, func(r *model.Recording) error {
		r.UploadStatus = model.StatusUploaded
		r.RemoteRef = "https://cdn.example.com/x.mp3"
		r.Payload = nil
		r.PromptOrder = 9
		r.Program = "hijack"
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, updated.PromptOrder)
	require.Equal(t, "spookyland", updated.Program)
	require.False(t, updated.HasPayload())

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusUploaded, got.UploadStatus)
	require.Equal(t, "https://cdn.example.com/x.mp3", got.RemoteRef)
	require.Nil(t, got.Payload)
	require.EqualValues(t, 3, got.SizeBytes)
}

func TestUpdateRejectsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec, _ := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte("abc")})

	_, err := s.Update(ctx, rec.ID, func(r *model.Recording) error {
		r.UploadStatus = model.StatusUploaded
		r.RemoteRef = "ref"
		return nil
	})
	require.Error(t, err)

	got, _ := s.Get(ctx, rec.ID)
	require.Equal(t, model.StatusPending, got.UploadStatus)
}

func TestUpdateNoChangeAndMutatorError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec, _ := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte("abc")})

	got, err := s.Update(ctx, rec.ID, func(r *model.Recording) error {
		r.UploadStatus = model.StatusFailed
		return ErrNoChange
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, got.UploadStatus)

	boom := errors.New("boom")
	_, err = s.Update(ctx, rec.ID, func(r *model.Recording) error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = s.Update(ctx, "missing", func(r *model.Recording) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec, _ := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte("a")})

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := s.Update(ctx, rec.ID, func(r *model.Recording) error {
				r.Payload = append(append([]byte(nil), r.Payload...), 'x')
				return nil
			})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, got.Payload, 1+n)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec, _ := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte("a")})

	require.NoError(t, s.Delete(ctx, rec.ID))
	_, err := s.Get(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, rec.ID), ErrNotFound)
}

func TestDeleteScope(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _ = s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte("a")})
	_, _ = s.Create(ctx, CreateParams{Prompt: prompt(2), Payload: []byte("b")})
	other := model.PromptScope{Scope: model.Scope{Program: "spookyland", Instance: "lmid-2"}, PromptOrder: 1}
	_, _ = s.Create(ctx, CreateParams{Prompt: other, Payload: []byte("c")})

	n, err := s.DeleteScope(ctx, testScope)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	left, err := s.Count(ctx, other)
	require.NoError(t, err)
	require.Equal(t, 1, left)
}

func TestScopeSeen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seen, err := s.ScopeSeen(ctx, testScope)
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, s.MarkScopeSeen(ctx, testScope))
	require.NoError(t, s.MarkScopeSeen(ctx, testScope))

	seen, err = s.ScopeSeen(ctx, testScope)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestResetInterruptedUploads(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	withPayload, _ := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte("a")})
	withoutPayload, _ := s.Create(ctx, CreateParams{Prompt: prompt(1), Payload: []byte("b")})
	for _, id := range []string{withPayload.ID, withoutPayload.ID} {
		_, err := s.Update(ctx, id, func(r *model.Recording) error {
			r.UploadStatus = model.StatusUploading
			return nil
		})
		require.NoError(t, err)
	}
	_, err := s.Update(ctx, withoutPayload.ID, func(r *model.Recording) error {
		r.Payload = nil
		return nil
	})
	require.NoError(t, err)

	n, err := s.ResetInterruptedUploads(ctx, testScope)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	a, _ := s.Get(ctx, withPayload.ID)
	require.Equal(t, model.StatusPending, a.UploadStatus)
	b, _ := s.Get(ctx, withoutPayload.ID)
	require.Equal(t, model.StatusFailed, b.UploadStatus)
}

func TestSecondOpenIsLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	_, err = NewSQLiteStore(path)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, s.Close())
	again, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestReopenKeepsRecordings(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "durable.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	rec, err := s.Create(ctx, CreateParams{Prompt: prompt(3), Payload: []byte("persist")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("persist"), got.Payload)
}
