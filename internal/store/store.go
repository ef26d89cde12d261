// Package store provides the local durable recording store and its SQLite
// implementation.
//
// The store is the single source of truth for what this device believes
// exists. Every mutation after creation goes through Update, a transactional
// read-modify-write, so concurrent demotions and upload promotions on the same
// record never lose an update.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
)

var (
	// ErrNotFound is returned when a recording ID is unknown.
	ErrNotFound = errors.New("recording not found")
	// ErrCapacity is returned by Create when the prompt already holds Limit recordings.
	ErrCapacity = errors.New("per-prompt recording limit reached")
	// ErrLocked is returned by Open when another process owns the database.
	ErrLocked = errors.New("store is locked by another process")
	// ErrNoChange may be returned from an Update mutator to skip the write.
	ErrNoChange = errors.New("no change")
)

// CreateParams holds parameters for persisting a freshly captured recording.
type CreateParams struct {
	Prompt    model.PromptScope
	Payload   []byte
	CreatedAt time.Time // zero means now
	Limit     int       // 0 disables the per-prompt cap
}

// ListParams holds parameters for listing recordings.
type ListParams struct {
	Scope          model.Scope
	PromptOrder    int // 0 means every prompt
	Statuses       []model.UploadStatus
	IncludePayload bool
}

// Mutator edits a recording inside an Update transaction. Only UploadStatus,
// RemoteRef and Payload changes are persisted.
type Mutator func(r *model.Recording) error

// Store defines the local recording storage interface.
type Store interface {
	// Create persists a new pending recording and returns it with its ID.
	Create(ctx context.Context, p CreateParams) (*model.Recording, error)

	// Get returns a recording including its payload.
	Get(ctx context.Context, id string) (*model.Recording, error)

	// List returns recordings of a scope ordered by prompt then creation time.
	List(ctx context.Context, p ListParams) ([]model.Recording, error)

	// Count returns how many recordings exist for a prompt.
	Count(ctx context.Context, p model.PromptScope) (int, error)

	// Update applies fn to the stored recording atomically.
	Update(ctx context.Context, id string, fn Mutator) (*model.Recording, error)

	// Delete removes a recording.
	Delete(ctx context.Context, id string) error

	// DeleteScope removes every recording of a scope.
	DeleteScope(ctx context.Context, s model.Scope) (int64, error)

	// ScopeSeen reports whether the scope was activated before.
	ScopeSeen(ctx context.Context, s model.Scope) (bool, error)

	// MarkScopeSeen records the first activation of a scope.
	MarkScopeSeen(ctx context.Context, s model.Scope) error

	// ResetInterruptedUploads settles rows left in uploading by a dead process.
	ResetInterruptedUploads(ctx context.Context, s model.Scope) (int64, error)

	// Close closes the store.
	Close() error
}
