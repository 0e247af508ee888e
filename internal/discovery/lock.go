package discovery

import "sync"

// RunLock is a keyed try-lock that keeps one discovery run per campaign.
type RunLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewRunLock creates an empty RunLock.
func NewRunLock() *RunLock {
	return &RunLock{held: make(map[string]struct{})}
}

// TryLock acquires key without blocking. The returned func releases it and
// is safe to call more than once.
func (l *RunLock) TryLock(key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true
}

// Held reports whether key is currently locked.
func (l *RunLock) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
