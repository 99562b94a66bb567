package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrLockNotOwned = errors.New("lock not owned by this client")

// Locker guards a key for at most ttl. TryLock returns false without error
// when somebody else holds the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, string, error)
	Unlock(ctx context.Context, key, token string) error
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker serializes callers inside one process. Used when Redis is not configured.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: map[string]memoryLock{},
		now:   time.Now,
	}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if current, ok := l.locks[key]; ok && now.Before(current.expiresAt) {
		return false, "", nil
	}

	token := uuid.NewString()
	l.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return true, token, nil
}

func (l *MemoryLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.locks[key]
	if !ok {
		return nil
	}
	if current.token != token {
		return ErrLockNotOwned
	}
	delete(l.locks, key)
	return nil
}
