// Package resolve turns a recording into something playable: the remote
// reference when the backing object still exists, otherwise the resident
// payload.
//
// A remote reference whose object the store reports missing is demoted in
// place (status failed, reference cleared) so the store never claims
// durability for an object that has disappeared. Any other probe failure
// leaves the row alone.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/events"
	logpkg "github.com/heyfeelings-official/little-microphones-sub001/internal/log"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/metrics"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/remote"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

// ErrNoSourceAvailable means neither a remote object nor a local payload exists.
var ErrNoSourceAvailable = errors.New("no audio source available")

// ResolutionError wraps ErrNoSourceAvailable with the recording ID.
type ResolutionError struct {
	RecordingID string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.RecordingID, ErrNoSourceAvailable)
}

func (e *ResolutionError) Unwrap() error { return ErrNoSourceAvailable }

func (e *ResolutionError) ErrorKind() string { return "not_found" }

// ProbeError is an existence check that could not tell whether the remote
// object exists. The recording is left untouched.
type ProbeError struct {
	RecordingID string
	Err         error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.RecordingID, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

func (e *ProbeError) ErrorKind() string {
	if errors.Is(e.Err, remote.ErrNotConfigured) {
		return "configuration"
	}
	return "transient"
}

// SourceKind says where playable audio was found.
type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

// Source is a playable reference.
type Source struct {
	Kind        SourceKind `json:"kind"`
	RecordingID string     `json:"recording_id"`
	Ref         string     `json:"ref,omitempty"`
	Payload     []byte     `json:"-"`
	Demoted     bool       `json:"demoted,omitempty"`
}

// Retrier re-attempts an upload in the background.
type Retrier interface {
	Enqueue(rec *model.Recording)
}

// Resolver resolves recordings against the store and the remote backing store.
type Resolver struct {
	store   store.Store
	remote  remote.Client
	bus     events.Publisher
	retrier Retrier
	logger  zerolog.Logger
}

// New creates a Resolver. A non-nil retrier receives failed recordings that
// fell back to their local payload.
func New(st store.Store, rc remote.Client, bus events.Publisher, retrier Retrier, logger zerolog.Logger) *Resolver {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Resolver{
		store:   st,
		remote:  rc,
		bus:     bus,
		retrier: retrier,
		logger:  logger.With().Str(logpkg.FieldComponent, "resolve").Logger(),
	}
}

// Resolve returns a playable source for the recording. Only a not-found
// probe demotes; cancellation of ctx is returned as is and other probe
// failures come back as a *ProbeError.
func (r *Resolver) Resolve(ctx context.Context, id string) (Source, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return Source{}, err
	}

	demoted := false
	if rec.IsDurable() {
		probeErr := r.remote.Head(ctx, rec.RemoteRef)
		if probeErr == nil {
			metrics.IncResolution(string(SourceRemote))
			return Source{Kind: SourceRemote, RecordingID: id, Ref: rec.RemoteRef}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Source{}, ctxErr
		}
		if !errors.Is(probeErr, remote.ErrNotFound) {
			metrics.IncResolution("probe_error")
			r.logger.Warn().Err(probeErr).Str(logpkg.FieldRecordingID, id).Msg("remote probe inconclusive")
			return Source{}, &ProbeError{RecordingID: id, Err: probeErr}
		}

		rec, demoted, err = r.demote(ctx, rec, probeErr)
		if err != nil {
			return Source{}, err
		}
		if !demoted && rec.IsDurable() {
			// A newer upload replaced the reference; trust it this round.
			metrics.IncResolution(string(SourceRemote))
			return Source{Kind: SourceRemote, RecordingID: id, Ref: rec.RemoteRef}, nil
		}
	}

	if len(rec.Payload) > 0 {
		if rec.UploadStatus == model.StatusFailed && r.retrier != nil {
			r.retrier.Enqueue(rec)
		}
		metrics.IncResolution(string(SourceLocal))
		return Source{Kind: SourceLocal, RecordingID: id, Payload: rec.Payload, Demoted: demoted}, nil
	}

	metrics.IncResolution("unavailable")
	return Source{}, &ResolutionError{RecordingID: id}
}

// demote clears the remote reference, but only while the row still holds the
// reference that was probed.
func (r *Resolver) demote(ctx context.Context, rec *model.Recording, cause error) (*model.Recording, bool, error) {
	probed := rec.RemoteRef
	changed := false
	updated, err := r.store.Update(ctx, rec.ID, func(cur *model.Recording) error {
		if cur.UploadStatus != model.StatusUploaded || cur.RemoteRef != probed {
			return store.ErrNoChange
		}
		cur.UploadStatus = model.StatusFailed
		cur.RemoteRef = ""
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("demote %s: %w", rec.ID, err)
	}
	if !changed {
		return updated, false, nil
	}

	metrics.DemotionsTotal.Inc()
	r.logger.Warn().
		Err(cause).
		Str(logpkg.FieldRecordingID, rec.ID).
		Str(logpkg.FieldRemoteRef, probed).
		Msg("remote object missing, recording demoted")
	r.bus.Publish(events.StatusChange{
		RecordingID: updated.ID,
		Status:      updated.UploadStatus,
		At:          time.Now().UTC(),
	})
	return updated, true, nil
}
