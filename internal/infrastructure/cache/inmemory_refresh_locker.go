package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// lease is a held lock with its expiration
type lease struct {
	token     string
	expiresAt time.Time
}

// InMemoryRefreshLocker implements the refresh lock with an in-process map.
// It only serializes refreshes within one process, which is all a
// single-replica deployment needs.
type InMemoryRefreshLocker struct {
	mu        sync.Mutex
	leases    map[string]lease
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryRefreshLocker creates a new in-memory locker.
// It starts a background goroutine that drops expired leases.
func NewInMemoryRefreshLocker() *InMemoryRefreshLocker {
	l := &InMemoryRefreshLocker{
		leases:   make(map[string]lease),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop()

	return l
}

// TryAcquire takes the lock for key unless an unexpired lease holds it
func (l *InMemoryRefreshLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, exists := l.leases[key]; exists && now.Before(held.expiresAt) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release drops the lock if token still owns it
func (l *InMemoryRefreshLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, exists := l.leases[key]; exists && held.token == token {
		delete(l.leases, key)
	}
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *InMemoryRefreshLocker) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

func (l *InMemoryRefreshLocker) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *InMemoryRefreshLocker) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, held := range l.leases {
		if !now.Before(held.expiresAt) {
			delete(l.leases, key)
		}
	}
}

// Size returns the number of held leases (for testing/monitoring)
func (l *InMemoryRefreshLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leases)
}
