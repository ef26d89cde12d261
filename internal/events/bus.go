// Package events fans out recording status changes to in-process subscribers.
package events

import (
	"sync"
	"time"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/metrics"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
)

// StatusChange announces that a recording's upload status changed.
type StatusChange struct {
	RecordingID string             `json:"recording_id"`
	Status      model.UploadStatus `json:"status"`
	RemoteRef   string             `json:"remote_ref,omitempty"`
	At          time.Time          `json:"at"`
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(ev StatusChange)
}

const subscriberBuffer = 64

// Bus is an in-memory pub/sub. Publish never blocks: a subscriber whose
// buffer is full misses the message.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

var _ Publisher = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Publish delivers ev to every current subscriber.
func (b *Bus) Publish(ev StatusChange) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			metrics.BusDroppedTotal.Inc()
		}
	}
}

// Subscribe registers a new subscriber. Close it when done.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{b: b, ch: make(chan StatusChange, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Subscription receives status changes until closed.
type Subscription struct {
	b    *Bus
	ch   chan StatusChange
	once sync.Once
}

func (s *Subscription) C() <-chan StatusChange {
	return s.ch
}

// Close unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s)
		s.b.mu.Unlock()
		close(s.ch)
	})
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(StatusChange) {}
