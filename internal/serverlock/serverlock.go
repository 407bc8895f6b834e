// Package serverlock serializes operations per server. Each server's
// configuration state is an independent unit of mutual exclusion: scans,
// edits, template applications and decommission for one server take the
// same lock, while different servers proceed fully in parallel.
package serverlock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when acquiring a lock times out.
var ErrLockTimeout = errors.New("serverlock: acquisition timeout")

type lock struct {
	// sem holds one token when the lock is free.
	sem chan struct{}

	mu     sync.Mutex
	holder string
}

// Manager hands out per-server locks. Safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	locks      map[string]*lock
	defaultTTL time.Duration
}

// NewManager creates a lock manager. defaultTTL bounds acquisition waits
// when the caller passes no timeout; zero selects 30 seconds.
func NewManager(defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &Manager{
		locks:      make(map[string]*lock),
		defaultTTL: defaultTTL,
	}
}

func (m *Manager) lockFor(serverID string) *lock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[serverID]
	if !ok {
		l = &lock{sem: make(chan struct{}, 1)}
		l.sem <- struct{}{}
		m.locks[serverID] = l
	}
	return l
}

// Acquire takes the lock for one server, waiting up to timeout (or the
// manager default when timeout is zero). It returns a release function
// that must be called exactly once.
func (m *Manager) Acquire(ctx context.Context, serverID, holder string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = m.defaultTTL
	}
	l := m.lockFor(serverID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.sem:
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	l.holder = holder
	l.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			l.holder = ""
			l.mu.Unlock()
			l.sem <- struct{}{}
		})
	}
	return release, nil
}

// Holder reports who currently holds a server's lock, for diagnostics.
func (m *Manager) Holder(serverID string) (string, bool) {
	m.mu.Lock()
	l, ok := m.locks[serverID]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == "" {
		return "", false
	}
	return l.holder, true
}
