// Package upload moves captured recordings to the remote backing store and
// keeps the local store in step with the outcome.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/events"
	logpkg "github.com/heyfeelings-official/little-microphones-sub001/internal/log"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/metrics"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/remote"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

// Options configures a Coordinator.
type Options struct {
	Extension     string  // remote object extension, e.g. "mp3"
	Concurrency   int     // RetryPending parallelism, default 2
	RatePerSecond float64 // RetryPending pacing, 0 disables
	Logger        zerolog.Logger
}

// Coordinator performs uploads and deletions. It is the only writer of
// upload status and remote reference after creation, apart from demotion.
type Coordinator struct {
	store  store.Store
	remote remote.Client
	bus    events.Publisher
	opts   Options
	logger zerolog.Logger

	// background uploads run on a context that is never cancelled
	bg context.Context
	wg sync.WaitGroup
}

// New creates a Coordinator.
func New(st store.Store, rc remote.Client, bus events.Publisher, opts Options) *Coordinator {
	if bus == nil {
		bus = events.Nop{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return &Coordinator{
		store:  st,
		remote: rc,
		bus:    bus,
		opts:   opts,
		logger: opts.Logger.With().Str(logpkg.FieldComponent, "upload").Logger(),
		bg:     context.Background(),
	}
}

// ObjectName is the remote name used for a recording.
func (c *Coordinator) ObjectName(id string) string {
	return remote.ObjectName(id, c.opts.Extension)
}

// Upload makes one upload attempt for the recording. Already uploaded
// recordings are left alone. Once started, the transfer is not cancelled by
// ctx.
func (c *Coordinator) Upload(ctx context.Context, id string) error {
	var (
		skip      bool
		noPayload bool
		payload   []byte
	)
	rec, err := c.store.Update(ctx, id, func(r *model.Recording) error {
		switch {
		case r.UploadStatus == model.StatusUploaded:
			skip = true
			return store.ErrNoChange
		case r.UploadStatus == model.StatusUploading:
			return ErrInFlight
		case !r.HasPayload():
			noPayload = true
			r.UploadStatus = model.StatusFailed
			return nil
		}
		payload = r.Payload
		r.UploadStatus = model.StatusUploading
		return nil
	})
	if err != nil {
		return err
	}
	if skip {
		metrics.IncUpload("skipped")
		return nil
	}
	if noPayload {
		c.publish(rec)
		metrics.IncUpload("failed")
		return &UploadError{RecordingID: id, Err: ErrNoPayload}
	}
	c.publish(rec)

	logger := c.logger.With().Str(logpkg.FieldRecordingID, id).Logger()
	logger.Debug().Int(logpkg.FieldBytes, len(payload)).Msg("upload started")

	ref, putErr := c.remote.Put(context.WithoutCancel(ctx), c.ObjectName(id), payload)
	if putErr != nil {
		return c.markFailed(ctx, id, putErr, logger)
	}

	rec, err = c.store.Update(context.WithoutCancel(ctx), id, func(r *model.Recording) error {
		r.RemoteRef = ref
		r.UploadStatus = model.StatusUploaded
		r.Payload = nil
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		// Deleted while uploading; the local side wins.
		logger.Info().Msg("recording deleted during upload, removing remote copy")
		if delErr := c.remote.Delete(c.bg, c.ObjectName(id)); delErr != nil && !errors.Is(delErr, remote.ErrNotFound) {
			logger.Warn().Err(delErr).Msg("remote cleanup failed")
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("record upload result: %w", err)
	}

	c.publish(rec)
	metrics.IncUpload("uploaded")
	metrics.UploadBytesTotal.Add(float64(len(payload)))
	logger.Info().Str(logpkg.FieldRemoteRef, ref).Msg("upload complete")
	return nil
}

func (c *Coordinator) markFailed(ctx context.Context, id string, cause error, logger zerolog.Logger) error {
	metrics.IncUpload("failed")
	logger.Warn().Err(cause).Msg("upload failed")

	rec, err := c.store.Update(context.WithoutCancel(ctx), id, func(r *model.Recording) error {
		if r.UploadStatus != model.StatusUploading {
			return store.ErrNoChange
		}
		r.UploadStatus = model.StatusFailed
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Error().Err(err).Msg("could not record upload failure")
	}
	if rec != nil {
		c.publish(rec)
	}
	return &UploadError{RecordingID: id, Err: cause}
}

// Enqueue starts an upload in the background. Wait blocks until every
// enqueued upload has finished.
func (c *Coordinator) Enqueue(rec *model.Recording) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Upload(c.bg, rec.ID); err != nil {
			c.logger.Warn().Err(err).Str(logpkg.FieldRecordingID, rec.ID).Msg("background upload did not complete")
		}
	}()
}

// Wait blocks until all background uploads have ended.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Delete removes a recording remotely and then locally. A remote failure is
// logged and never prevents the local delete.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	if _, err := c.store.Get(ctx, id); err != nil {
		return err
	}

	logger := c.logger.With().Str(logpkg.FieldRecordingID, id).Logger()
	if err := c.remote.Delete(ctx, c.ObjectName(id)); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			logger.Debug().Msg("no remote copy to delete")
		} else {
			logger.Warn().Err(err).Msg("remote delete failed, deleting locally anyway")
		}
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info().Msg("recording deleted")
	return nil
}

// Summary reports a RetryPending batch.
type Summary struct {
	Attempted int `json:"attempted"`
	Uploaded  int `json:"uploaded"`
	Failed    int `json:"failed"`
}

// RetryPending re-attempts every pending or failed recording of the scope
// that still holds its payload.
func (c *Coordinator) RetryPending(ctx context.Context, sc model.Scope) (Summary, error) {
	recs, err := c.store.List(ctx, store.ListParams{
		Scope:    sc,
		Statuses: []model.UploadStatus{model.StatusPending, model.StatusFailed},
	})
	if err != nil {
		return Summary{}, err
	}

	var limiter *rate.Limiter
	if c.opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.opts.RatePerSecond), 1)
	}

	var (
		mu  sync.Mutex
		sum Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for _, r := range recs {
		if !r.HasPayload() {
			continue
		}
		id := r.ID
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := c.Upload(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			sum.Attempted++
			var ue *UploadError
			switch {
			case err == nil:
				sum.Uploaded++
			case errors.As(err, &ue), errors.Is(err, ErrInFlight), errors.Is(err, store.ErrNotFound):
				sum.Failed++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	c.logger.Info().
		Str(logpkg.FieldProgram, sc.Program).
		Str(logpkg.FieldInstance, sc.Instance).
		Int("attempted", sum.Attempted).
		Int("uploaded", sum.Uploaded).
		Int("failed", sum.Failed).
		Msg("retry batch finished")
	return sum, nil
}

func (c *Coordinator) publish(r *model.Recording) {
	if r == nil {
		return
	}
	c.bus.Publish(events.StatusChange{
		RecordingID: r.ID,
		Status:      r.UploadStatus,
		RemoteRef:   r.RemoteRef,
		At:          time.Now().UTC(),
	})
}
