package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/capture"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var scope = model.Scope{Program: "spookyland", Instance: "lmid-9"}

func promptN(n int) model.PromptScope {
	return model.PromptScope{Scope: scope, PromptOrder: n}
}

type fakeUploader struct {
	mu   sync.Mutex
	recs []*model.Recording
}

func (u *fakeUploader) Enqueue(rec *model.Recording) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.recs = append(u.recs, rec)
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.recs)
}

type transitions struct {
	mu  sync.Mutex
	log []State
}

func (tr *transitions) record(_, to State) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.log = append(tr.log, to)
}

func (tr *transitions) states() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.log...)
}

func TestStartStopSavesPendingRecording(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	up := &fakeUploader{}
	locks := NewLockSet()
	tr := &transitions{}
	dev := &testsupport.FakeDevice{Data: []byte("pcm-bytes")}

	m := New(promptN(1), dev, st, up, locks, Options{Limit: 30, OnTransition: tr.record, Logger: zerolog.Nop()})
	require.NoError(t, m.Start(ctx))
	require.Equal(t, StateCapturing, m.State())
	require.True(t, locks.Held(promptN(1).Key()))

	rec, err := m.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, rec.UploadStatus)
	require.Equal(t, []byte("pcm-bytes"), rec.Payload)
	require.Equal(t, StateIdle, m.State())
	require.False(t, locks.Held(promptN(1).Key()))
	require.Equal(t, 1, up.count())

	require.Equal(t, []State{StateRequestingCapability, StateCapturing, StateFinalizing, StateIdle}, tr.states())

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("pcm-bytes"), got.Payload)
}

func TestStartRefusedAtCapacity(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	for i := 0; i < 30; i++ {
		_, err := st.Create(ctx, store.CreateParams{Prompt: promptN(1), Payload: []byte{1}})
		require.NoError(t, err)
	}
	dev := &testsupport.FakeDevice{Data: []byte("x")}
	locks := NewLockSet()
	m := New(promptN(1), dev, st, nil, locks, Options{Limit: 30, Logger: zerolog.Nop()})

	err := m.Start(ctx)
	var ce *CapacityError
	require.ErrorAs(t, err, &ce)
	require.ErrorIs(t, err, store.ErrCapacity)
	require.Equal(t, 30, ce.Limit)
	require.Equal(t, StateIdle, m.State())
	require.Zero(t, dev.Opens())
	require.False(t, locks.Held(promptN(1).Key()))

	n, err := st.Count(ctx, promptN(1))
	require.NoError(t, err)
	require.Equal(t, 30, n)

	// Other prompts are unaffected by the cap.
	other := New(promptN(2), dev, st, nil, locks, Options{Limit: 30, Logger: zerolog.Nop()})
	require.NoError(t, other.Start(ctx))
	_, err = other.Stop(ctx)
	require.NoError(t, err)
}

func TestCapabilityErrorReleasesLock(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	locks := NewLockSet()
	tr := &transitions{}

	denied := &testsupport.FakeDevice{OpenErr: capture.ErrPermissionDenied}
	m := New(promptN(1), denied, st, nil, locks, Options{Limit: 30, OnTransition: tr.record, Logger: zerolog.Nop()})

	err := m.Start(ctx)
	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, capture.ReasonPermissionDenied, capErr.Reason)
	require.Equal(t, StateIdle, m.State())
	require.ErrorIs(t, m.LastError(), capture.ErrPermissionDenied)
	require.Equal(t, []State{StateRequestingCapability, StateError, StateIdle}, tr.states())

	// The lock was released, so a second attempt for the same prompt may start.
	ok := New(promptN(1), &testsupport.FakeDevice{Data: []byte("x")}, st, nil, locks, Options{Limit: 30, Logger: zerolog.Nop()})
	require.NoError(t, ok.Start(ctx))
	_, err = ok.Stop(ctx)
	require.NoError(t, err)
}

func TestNoDeviceReason(t *testing.T) {
	m := New(promptN(1), &testsupport.FakeDevice{OpenErr: capture.ErrNoDevice}, testsupport.NewStore(t), nil, nil, Options{Logger: zerolog.Nop()})
	err := m.Start(context.Background())
	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, capture.ReasonNoDevice, capErr.Reason)

	m = New(promptN(1), &testsupport.FakeDevice{OpenErr: errors.New("driver crashed")}, testsupport.NewStore(t), nil, nil, Options{Logger: zerolog.Nop()})
	err = m.Start(context.Background())
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, capture.ReasonUnknown, capErr.Reason)
}

func TestSamePromptCapturesDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	locks := NewLockSet()
	dev := &testsupport.FakeDevice{Data: []byte("x")}

	m1 := New(promptN(1), dev, st, nil, locks, Options{Logger: zerolog.Nop()})
	m2 := New(promptN(1), dev, st, nil, locks, Options{Logger: zerolog.Nop()})

	require.NoError(t, m1.Start(ctx))
	require.ErrorIs(t, m2.Start(ctx), ErrPromptBusy)
	require.Equal(t, StateIdle, m2.State())

	_, err := m1.Stop(ctx)
	require.NoError(t, err)
	require.NoError(t, m2.Start(ctx))
	_, err = m2.Stop(ctx)
	require.NoError(t, err)
}

func TestDifferentPromptsCaptureConcurrently(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	locks := NewLockSet()

	machines := make([]*Machine, 3)
	for i := range machines {
		machines[i] = New(promptN(i+1), &testsupport.FakeDevice{Data: []byte("x")}, st, nil, locks, Options{Logger: zerolog.Nop()})
		require.NoError(t, machines[i].Start(ctx))
	}
	for _, m := range machines {
		require.Equal(t, StateCapturing, m.State())
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(machines))
	for _, m := range machines {
		wg.Add(1)
		go func(m *Machine) {
			defer wg.Done()
			_, err := m.Stop(ctx)
			errs <- err
		}(m)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := st.List(ctx, store.ListParams{Scope: scope})
	require.NoError(t, err)
	require.Len(t, list, 3)
}

func TestCaptureCeilingFinalizes(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	up := &fakeUploader{}
	type outcome struct {
		rec *model.Recording
		err error
	}
	done := make(chan outcome, 1)

	m := New(promptN(1), &testsupport.FakeDevice{Data: []byte("long answer")}, st, up, nil, Options{
		Logger: zerolog.Nop(),
		OnFinalize: func(rec *model.Recording, err error) {
			done <- outcome{rec, err}
		},
	})
	m.maxDuration = 20 * time.Millisecond

	require.NoError(t, m.Start(ctx))
	select {
	case out := <-done:
		require.NoError(t, out.err)
		require.Equal(t, []byte("long answer"), out.rec.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not stop at the ceiling")
	}
	require.Equal(t, StateIdle, m.State())
	require.Equal(t, 1, up.count())

	_, err := m.Stop(ctx)
	require.ErrorIs(t, err, ErrNotCapturing)
}

func TestStaleCeilingDoesNotStopNextCapture(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	m := New(promptN(1), &testsupport.FakeDevice{Data: []byte("x")}, st, nil, nil, Options{Logger: zerolog.Nop()})

	require.NoError(t, m.Start(ctx))
	gen := m.gen
	_, err := m.Stop(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx))
	m.autoStop(gen)
	require.Equal(t, StateCapturing, m.State())
	_, err = m.Stop(ctx)
	require.NoError(t, err)
}

func TestEmptyCaptureIsNotSaved(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	locks := NewLockSet()
	m := New(promptN(1), &testsupport.FakeDevice{}, st, nil, locks, Options{Logger: zerolog.Nop()})

	require.NoError(t, m.Start(ctx))
	_, err := m.Stop(ctx)
	require.ErrorIs(t, err, ErrEmptyCapture)
	require.Equal(t, StateIdle, m.State())
	require.False(t, locks.Held(promptN(1).Key()))

	n, err := st.Count(ctx, promptN(1))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStopWhenIdle(t *testing.T) {
	m := New(promptN(1), &testsupport.FakeDevice{}, testsupport.NewStore(t), nil, nil, Options{Logger: zerolog.Nop()})
	_, err := m.Stop(context.Background())
	require.ErrorIs(t, err, ErrNotCapturing)
}

func TestLeaseReleaseIsIdempotentAndOwned(t *testing.T) {
	locks := NewLockSet()
	l1, ok := locks.Acquire("k")
	require.True(t, ok)
	_, ok = locks.Acquire("k")
	require.False(t, ok)

	l1.Release()
	l2, ok := locks.Acquire("k")
	require.True(t, ok)
	require.NotEqual(t, l1.Token(), l2.Token())

	// A stale lease must not free the new holder.
	l1.Release()
	require.True(t, locks.Held("k"))
	l2.Release()
	require.False(t, locks.Held("k"))
}

func TestStopWithCancelledContextKeepsCapture(t *testing.T) {
	st := testsupport.NewStore(t)
	up := &fakeUploader{}
	dev := &testsupport.FakeDevice{Data: []byte("late answer")}
	m := New(promptN(4), dev, st, up, NewLockSet(), Options{Logger: zerolog.Nop()})
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := m.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, StateIdle, m.State())
	require.Equal(t, 1, up.count())

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("late answer"), got.Payload)
}

func TestTransitionCallbackMayReadMachine(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	dev := &testsupport.FakeDevice{Data: []byte("x")}

	var (
		m    *Machine
		mu   sync.Mutex
		seen []State
	)
	m = New(promptN(5), dev, st, nil, NewLockSet(), Options{
		Logger: zerolog.Nop(),
		OnTransition: func(_, to State) {
			_ = m.LastError()
			cur := m.State()
			mu.Lock()
			seen = append(seen, cur)
			mu.Unlock()
		},
	})

	done := make(chan error, 1)
	go func() {
		if err := m.Start(ctx); err != nil {
			done <- err
			return
		}
		_, err := m.Stop(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("transition callback blocked the machine")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	require.Equal(t, StateIdle, seen[len(seen)-1])
}
