// Package reconcile cleans the local store when a program session activates.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	logpkg "github.com/heyfeelings-official/little-microphones-sub001/internal/log"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/metrics"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/remote"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

// Result summarizes one run.
type Result struct {
	FirstActivation bool  `json:"first_activation"`
	StaleDeleted    int64 `json:"stale_deleted"`
	UploadsReset    int64 `json:"uploads_reset"`
	OrphansDeleted  int   `json:"orphans_deleted"`
}

// Reconciler removes orphaned and stale local recordings.
type Reconciler struct {
	store  store.Store
	remote remote.Client
	logger zerolog.Logger
}

func New(st store.Store, rc remote.Client, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:  st,
		remote: rc,
		logger: logger.With().Str(logpkg.FieldComponent, "reconcile").Logger(),
	}
}

// Run reconciles one scope. On the first activation of a scope, an empty
// remote listing marks every local recording of the scope as stale. Then
// uploads interrupted by a previous process are settled and orphans are
// deleted. A failed listing only skips the stale check: the local steps
// still run, the scope stays unseen, and the listing error is returned with
// the partial result.
//
// Run must not race with uploads of the same scope.
func (r *Reconciler) Run(ctx context.Context, sc model.Scope) (Result, error) {
	var res Result
	if err := sc.Validate(); err != nil {
		return res, err
	}
	logger := r.logger.With().Str(logpkg.FieldProgram, sc.Program).Str(logpkg.FieldInstance, sc.Instance).Logger()

	seen, err := r.store.ScopeSeen(ctx, sc)
	if err != nil {
		return res, err
	}
	var listErr error
	if !seen {
		res.FirstActivation = true
		objects, err := r.remote.List(ctx, model.ScopePrefix(sc))
		switch {
		case err != nil:
			// The scope stays unseen so the stale check runs again next time.
			listErr = fmt.Errorf("list remote recordings: %w", err)
			logger.Warn().Err(err).Msg("remote listing failed, skipping stale cache check")
		case len(objects) == 0:
			n, err := r.store.DeleteScope(ctx, sc)
			if err != nil {
				return res, err
			}
			res.StaleDeleted = n
			metrics.AddReconcileDeleted("stale", int(n))
			if n > 0 {
				logger.Warn().Int64("deleted", n).Msg("remote holds nothing for a new scope, dropped stale local recordings")
			}
		}
		if listErr == nil {
			if err := r.store.MarkScopeSeen(ctx, sc); err != nil {
				return res, err
			}
		}
	}

	n, err := r.store.ResetInterruptedUploads(ctx, sc)
	if err != nil {
		return res, errors.Join(listErr, err)
	}
	res.UploadsReset = n
	if n > 0 {
		logger.Info().Int64("reset", n).Msg("settled interrupted uploads")
	}

	failed, err := r.store.List(ctx, store.ListParams{
		Scope:    sc,
		Statuses: []model.UploadStatus{model.StatusFailed},
	})
	if err != nil {
		return res, errors.Join(listErr, err)
	}
	for _, rec := range failed {
		if !rec.IsOrphaned() {
			continue
		}
		if err := r.store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return res, errors.Join(listErr, err)
		}
		res.OrphansDeleted++
		logger.Debug().Str(logpkg.FieldRecordingID, rec.ID).Msg("deleted orphaned recording")
	}
	metrics.AddReconcileDeleted("orphan", res.OrphansDeleted)

	logger.Info().
		Bool("first_activation", res.FirstActivation).
		Int64("stale_deleted", res.StaleDeleted).
		Int("orphans_deleted", res.OrphansDeleted).
		Msg("reconciliation finished")
	return res, listErr
}
