// Package app wires the recording core together. One App owns one store
// handle for its whole lifetime; every component receives its collaborators
// explicitly.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/capture"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/config"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/events"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/gateway"
	logpkg "github.com/heyfeelings-official/little-microphones-sub001/internal/log"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/planner"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/reconcile"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/recorder"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/remote"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/resolve"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/upload"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Store      *store.SQLiteStore
	Remote     remote.Client
	Bus        *events.Bus
	Uploader   *upload.Coordinator
	Resolver   *resolve.Resolver
	Reconciler *reconcile.Reconciler
	Planner    *planner.Planner
	Locks      *recorder.LockSet

	base   zerolog.Logger
	logger zerolog.Logger

	mu        sync.Mutex
	activated map[model.Scope]bool
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	remote    remote.Client
	submitter planner.Submitter
	logger    *zerolog.Logger
}

// Option overrides a collaborator.
type Option func(*options)

// WithRemote replaces the configured remote store client.
func WithRemote(rc remote.Client) Option {
	return func(o *options) { o.remote = rc }
}

// WithSubmitter replaces the configured audio gateway.
func WithSubmitter(s planner.Submitter) Option {
	return func(o *options) { o.submitter = s }
}

// WithLogger replaces the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// Open opens the store and builds every component.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logpkg.Base()
	if o.logger != nil {
		logger = *o.logger
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rc := o.remote
	if rc == nil {
		if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
			rc = remote.Disabled{}
		} else {
			rc = remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout)
		}
	}
	sub := o.submitter
	if sub == nil {
		sub = gateway.New(cfg.Gateway.URL, cfg.Gateway.Timeout)
	}

	bus := events.NewBus()
	up := upload.New(st, rc, bus, upload.Options{
		Extension:     cfg.Remote.Extension,
		Concurrency:   cfg.Upload.Concurrency,
		RatePerSecond: cfg.Upload.RatePerSecond,
		Logger:        logger,
	})

	a := &App{
		Config:     cfg,
		Store:      st,
		Remote:     rc,
		Bus:        bus,
		Uploader:   up,
		Resolver:   resolve.New(st, rc, bus, up, logger),
		Reconciler: reconcile.New(st, rc, logger),
		Planner: planner.New(st, rc, sub, planner.Options{
			IncludeRemote: cfg.Planner.IncludeRemote,
			Assets: planner.Assets{
				BaseURL:    cfg.Assets.BaseURL,
				Intro:      cfg.Assets.Intro,
				Outro:      cfg.Assets.Outro,
				PromptCue:  cfg.Assets.PromptCue,
				Background: cfg.Assets.Background,
			},
			Logger: logger,
		}),
		Locks:     recorder.NewLockSet(),
		base:      logger,
		logger:    logger.With().Str(logpkg.FieldComponent, "app").Logger(),
		activated: make(map[model.Scope]bool),
	}
	a.logger.Debug().Str(logpkg.FieldPath, st.Path()).Msg("store opened")
	return a, nil
}

// Activate runs reconciliation for a scope once per process. A failed run is
// logged and retried on the next call.
func (a *App) Activate(ctx context.Context, sc model.Scope) (reconcile.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activated[sc] {
		return reconcile.Result{}, nil
	}
	res, err := a.Reconciler.Run(ctx, sc)
	if err != nil {
		a.logger.Warn().Err(err).
			Str(logpkg.FieldProgram, sc.Program).
			Str(logpkg.FieldInstance, sc.Instance).
			Msg("reconciliation failed, will retry on next activation")
		return res, err
	}
	a.activated[sc] = true
	return res, nil
}

// Device returns the configured capture device.
func (a *App) Device() capture.Device {
	return capture.NewCommandDevice(a.Config.Capture.Command, a.base)
}

// NewRecorder returns a recorder for the prompt sharing the app's lock set.
func (a *App) NewRecorder(p model.PromptScope, dev capture.Device, onFinalize func(*model.Recording, error)) *recorder.Machine {
	return recorder.New(p, dev, a.Store, a.Uploader, a.Locks, recorder.Options{
		Limit:      a.Config.Capture.PerPromptLimit,
		OnFinalize: onFinalize,
		Logger:     a.base,
	})
}

// Close waits for background uploads and closes the store.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.Uploader.Wait()
		a.closeErr = a.Store.Close()
	})
	return a.closeErr
}
