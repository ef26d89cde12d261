// Package testsupport holds in-memory fakes shared by package tests.
package testsupport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/remote"
)

// MemoryRemote is an in-memory remote.Client with failure injection.
type MemoryRemote struct {
	mu       sync.Mutex
	base     string
	objects  map[string][]byte
	putErr   error
	headErr  error
	listErr  error
	delErr   error
	puts     int
	heads    int
	deletes  int
	putGate  chan struct{}
	modified time.Time
}

var _ remote.Client = (*MemoryRemote)(nil)

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		base:     "mem://remote/",
		objects:  make(map[string][]byte),
		modified: time.Unix(1_700_000_000, 0).UTC(),
	}
}

// Ref returns the reference Put hands out for name.
func (m *MemoryRemote) Ref(name string) string { return m.base + name }

func (m *MemoryRemote) Put(ctx context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	gate := m.putGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return "", m.putErr
	}
	m.objects[name] = append([]byte(nil), data...)
	return m.Ref(name), nil
}

func (m *MemoryRemote) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.delErr != nil {
		return m.delErr
	}
	if _, ok := m.objects[name]; !ok {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, name)
	}
	delete(m.objects, name)
	return nil
}

func (m *MemoryRemote) Head(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heads++
	if m.headErr != nil {
		return m.headErr
	}
	if _, ok := m.objects[strings.TrimPrefix(ref, m.base)]; !ok {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, ref)
	}
	return nil
}

func (m *MemoryRemote) List(ctx context.Context, prefix string) ([]remote.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []remote.Object
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, remote.Object{Name: name, URL: m.Ref(name), ModifiedAt: m.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Seed stores an object directly, as if another device had uploaded it.
func (m *MemoryRemote) Seed(name string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), data...)
	return m.Ref(name)
}

// Drop removes an object behind the client's back.
func (m *MemoryRemote) Drop(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
}

// Has reports whether name is stored.
func (m *MemoryRemote) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[name]
	return ok
}

// Names returns the stored object names in order.
func (m *MemoryRemote) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for name := range m.objects {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *MemoryRemote) SetPutError(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

func (m *MemoryRemote) SetHeadError(err error) {
	m.mu.Lock()
	m.headErr = err
	m.mu.Unlock()
}

func (m *MemoryRemote) SetListError(err error) {
	m.mu.Lock()
	m.listErr = err
	m.mu.Unlock()
}

func (m *MemoryRemote) SetDeleteError(err error) {
	m.mu.Lock()
	m.delErr = err
	m.mu.Unlock()
}

// HoldPuts makes Put block until the returned release function is called.
func (m *MemoryRemote) HoldPuts() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.putGate = gate
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.putGate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Puts returns how many Put calls were made.
func (m *MemoryRemote) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Heads returns how many Head calls were made.
func (m *MemoryRemote) Heads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heads
}

// Deletes returns how many Delete calls were made.
func (m *MemoryRemote) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}
