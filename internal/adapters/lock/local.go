// Package lock provides an in-process [ports.Locker] for single-instance
// deployments that run without Redis.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.Locker = (*Local)(nil)

// Local grants named locks within this process. Expired locks are treated
// as released.
type Local struct {
	mu    sync.Mutex
	held  map[string]time.Time
	now   func() time.Time
	owner uint64
}

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), now: time.Now}
}

type localLock struct {
	l       *Local
	name    string
	expires time.Time
}

func (k *localLock) Release(context.Context) error {
	k.l.mu.Lock()
	defer k.l.mu.Unlock()

	if exp, ok := k.l.held[k.name]; ok && exp.Equal(k.expires) {
		delete(k.l.held, k.name)
	}
	return nil
}

// TryAcquire implements [ports.Locker].
func (l *Local) TryAcquire(_ context.Context, name string, ttl time.Duration) (ports.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[name]; ok && now.Before(exp) {
		return nil, fmt.Errorf("lock %s: %w", name, domain.ErrConflict)
	}

	// Distinct expiries let a stale holder's Release leave a newer lock alone.
	l.owner++
	exp := now.Add(ttl).Add(time.Duration(l.owner))
	l.held[name] = exp
	return &localLock{l: l, name: name, expires: exp}, nil
}
