package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.Locker = (*Locker)(nil)

// Locker grants single-attempt redsync mutexes. A lock that is already held
// elsewhere is reported as domain.ErrConflict rather than waited for.
type Locker struct {
	rs     *redsync.Redsync
	rdb    *goredislib.Client
	prefix string
}

// NewLocker returns a Locker on client with keys "<prefix>lock:<name>".
func NewLocker(client *Client) *Locker {
	return &Locker{
		rs:     redsync.New(goredis.NewPool(client.rdb)),
		rdb:    client.rdb,
		prefix: client.Key("lock:"),
	}
}

type mutexLock struct {
	m *redsync.Mutex
}

func (l mutexLock) Release(ctx context.Context) error {
	ok, err := l.m.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.m.Name(), err)
	}
	if !ok {
		return fmt.Errorf("release lock %s: not held", l.m.Name())
	}
	return nil
}

func (l *Locker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (ports.Lock, error) {
	key := l.prefix + name
	m := l.rs.NewMutex(key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)

	if err := m.LockContext(ctx); err != nil {
		if l.held(ctx, key, err) {
			return nil, fmt.Errorf("lock %s: %w", name, domain.ErrConflict)
		}
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	return mutexLock{m: m}, nil
}

// held reports whether err means another owner has the lock. redsync wraps
// the per-node result, so an existing key is checked as a fallback.
func (l *Locker) held(ctx context.Context, key string, err error) bool {
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	n, existsErr := l.rdb.Exists(ctx, key).Result()
	return existsErr == nil && n > 0
}
