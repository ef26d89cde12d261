// Package recorder implements the per-prompt capture state machine.
//
//	idle -> requesting_capability -> capturing -> finalizing -> idle
//	                              \-> error -> idle
//
// A Machine captures answers for one prompt. Machines for different prompts
// run independently; machines for the same prompt share a LockSet so their
// captures never overlap.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/capture"
	logpkg "github.com/heyfeelings-official/little-microphones-sub001/internal/log"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/metrics"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

// MaxCaptureDuration is the hard ceiling after which a capture finalizes on
// its own.
const MaxCaptureDuration = 10 * time.Minute

// Uploader receives saved recordings.
type Uploader interface {
	Enqueue(rec *model.Recording)
}

// Options configures a Machine.
type Options struct {
	// Limit caps recordings per prompt. Zero means no cap.
	Limit int
	// OnFinalize receives the outcome of captures stopped by the ceiling.
	OnFinalize func(rec *model.Recording, err error)
	// OnTransition observes every state change. It runs after the machine's
	// lock is released, so it may call back into the machine.
	OnTransition func(from, to State)
	Logger       zerolog.Logger
}

// Machine is the recorder for one prompt.
type Machine struct {
	prompt   model.PromptScope
	device   capture.Device
	store    store.Store
	uploader Uploader
	locks    *LockSet
	opts     Options
	logger   zerolog.Logger

	maxDuration time.Duration

	mu        sync.Mutex
	state     State
	lastErr   error
	gen       uint64
	lease     *Lease
	stream    io.ReadCloser
	buf       *bytes.Buffer
	copyDone  chan struct{}
	copyErr   error
	timer     *time.Timer
	startedAt time.Time
	fired     []transition
}

type transition struct{ from, to State }

// New creates an idle Machine.
func New(p model.PromptScope, dev capture.Device, st store.Store, up Uploader, locks *LockSet, opts Options) *Machine {
	if locks == nil {
		locks = NewLockSet()
	}
	return &Machine{
		prompt:   p,
		device:   dev,
		store:    st,
		uploader: up,
		locks:    locks,
		opts:     opts,
		logger: opts.Logger.With().
			Str(logpkg.FieldComponent, "recorder").
			Str(logpkg.FieldProgram, p.Program).
			Str(logpkg.FieldInstance, p.Instance).
			Int(logpkg.FieldPrompt, p.PromptOrder).
			Logger(),
		maxDuration: MaxCaptureDuration,
		state:       StateIdle,
	}
}

// Prompt returns the prompt this machine records for.
func (m *Machine) Prompt() model.PromptScope { return m.prompt }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error of the most recent failed attempt.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Start begins capturing. It refuses while another capture holds the prompt
// or when the prompt is at its cap; in both cases nothing is created and the
// machine stays idle.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock()

	if m.state != StateIdle {
		return ErrAlreadyCapturing
	}
	if err := m.prompt.Validate(); err != nil {
		return err
	}

	lease, ok := m.locks.Acquire(m.prompt.Key())
	if !ok {
		metrics.IncCapture("busy")
		return ErrPromptBusy
	}
	started := false
	defer func() {
		if !started {
			lease.Release()
		}
	}()

	if m.opts.Limit > 0 {
		n, err := m.store.Count(ctx, m.prompt)
		if err != nil {
			return fmt.Errorf("count recordings: %w", err)
		}
		if n >= m.opts.Limit {
			metrics.IncCapture("capacity")
			m.logger.Info().Int("limit", m.opts.Limit).Msg("prompt at recording limit")
			return &CapacityError{Prompt: m.prompt, Limit: m.opts.Limit}
		}
	}

	m.setState(StateRequestingCapability)
	stream, err := m.device.Open(ctx)
	if err != nil {
		capErr := &CapabilityError{Device: m.device.Name(), Reason: capture.Classify(err), Err: err}
		m.fail(capErr)
		metrics.IncCapture("capability")
		return capErr
	}

	m.gen++
	m.lease = lease
	m.stream = stream
	m.buf = &bytes.Buffer{}
	m.copyDone = make(chan struct{})
	m.copyErr = nil
	m.lastErr = nil
	m.startedAt = time.Now()
	go m.copy(stream, m.buf, m.copyDone)

	gen := m.gen
	m.timer = time.AfterFunc(m.maxDuration, func() { m.autoStop(gen) })
	m.setState(StateCapturing)
	started = true
	m.logger.Info().Str(logpkg.FieldDevice, m.device.Name()).Msg("capture started")
	return nil
}

func (m *Machine) copy(r io.Reader, dst *bytes.Buffer, done chan struct{}) {
	defer close(done)
	if _, err := io.Copy(dst, r); !capture.IsEndOfStream(err) {
		m.copyErr = err
	}
}

// Stop finalizes the current capture: the device is released, the recording
// is persisted as pending and handed to the uploader, and the machine returns
// to idle.
func (m *Machine) Stop(ctx context.Context) (*model.Recording, error) {
	m.mu.Lock()
	defer m.unlock()
	return m.finalize(ctx, m.gen)
}

func (m *Machine) autoStop(gen uint64) {
	m.mu.Lock()
	rec, err := m.finalize(context.Background(), gen)
	m.unlock()
	if errors.Is(err, ErrNotCapturing) {
		return
	}
	m.logger.Info().Dur("max_duration", m.maxDuration).Msg("capture reached duration ceiling")
	if m.opts.OnFinalize != nil {
		m.opts.OnFinalize(rec, err)
	}
}

// finalize must be called with mu held.
func (m *Machine) finalize(ctx context.Context, gen uint64) (*model.Recording, error) {
	if m.state != StateCapturing || gen != m.gen {
		return nil, ErrNotCapturing
	}
	m.setState(StateFinalizing)
	m.timer.Stop()

	lease := m.lease
	defer lease.Release()
	m.lease = nil

	closeErr := m.stream.Close()
	<-m.copyDone
	payload := m.buf.Bytes()
	m.stream, m.buf = nil, nil

	if m.copyErr != nil {
		return nil, m.fail(fmt.Errorf("read audio: %w", m.copyErr))
	}
	if closeErr != nil {
		if reason := capture.Classify(closeErr); reason != capture.ReasonUnknown {
			return nil, m.fail(&CapabilityError{Device: m.device.Name(), Reason: reason, Err: closeErr})
		}
		m.logger.Warn().Err(closeErr).Msg("device reported an error on close")
	}
	if len(payload) == 0 {
		metrics.IncCapture("empty")
		return nil, m.fail(ErrEmptyCapture)
	}

	// The capture is already over; a cancelled caller must not lose it.
	rec, err := m.store.Create(context.WithoutCancel(ctx), store.CreateParams{
		Prompt:  m.prompt,
		Payload: payload,
		Limit:   m.opts.Limit,
	})
	if errors.Is(err, store.ErrCapacity) {
		metrics.IncCapture("capacity")
		return nil, m.fail(&CapacityError{Prompt: m.prompt, Limit: m.opts.Limit})
	}
	if err != nil {
		metrics.IncCapture("error")
		return nil, m.fail(fmt.Errorf("save recording: %w", err))
	}

	if m.uploader != nil {
		m.uploader.Enqueue(rec)
	}
	metrics.IncCapture("saved")
	m.logger.Info().
		Str(logpkg.FieldRecordingID, rec.ID).
		Int(logpkg.FieldBytes, len(payload)).
		Dur("duration", time.Since(m.startedAt)).
		Msg("recording saved")
	m.setState(StateIdle)
	return rec, nil
}

// fail passes through the error state back to idle. Callers hold mu.
func (m *Machine) fail(err error) error {
	m.lastErr = err
	m.setState(StateError)
	m.logger.Warn().Err(err).Msg("capture failed")
	m.setState(StateIdle)
	return err
}

func (m *Machine) setState(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.logger.Debug().Str(logpkg.FieldOldState, string(from)).Str(logpkg.FieldNewState, string(to)).Msg("state change")
	if m.opts.OnTransition != nil {
		m.fired = append(m.fired, transition{from, to})
	}
}

// unlock releases mu and then reports the transitions made while it was held.
func (m *Machine) unlock() {
	fired := m.fired
	m.fired = nil
	m.mu.Unlock()
	for _, tr := range fired {
		m.opts.OnTransition(tr.from, tr.to)
	}
}
