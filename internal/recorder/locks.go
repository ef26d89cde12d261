package recorder

import (
	"sync"

	"github.com/google/uuid"
)

// LockSet tracks which prompts have a capture in flight. Each holder owns a
// lease token; only that lease can release the key.
type LockSet struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLockSet() *LockSet {
	return &LockSet{held: make(map[string]string)}
}

// Acquire takes the lease for key. It returns false if the key is held.
func (l *LockSet) Acquire(key string) (*Lease, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false
	}
	token := uuid.NewString()
	l.held[key] = token
	return &Lease{set: l, key: key, token: token}, true
}

// Held reports whether key is currently leased.
func (l *LockSet) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

func (l *LockSet) release(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
}

// Lease is an acquired key. Release is safe to call more than once.
type Lease struct {
	set   *LockSet
	key   string
	token string
	once  sync.Once
}

func (l *Lease) Token() string { return l.token }

func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() { l.set.release(l.key, l.token) })
}
