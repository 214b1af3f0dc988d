package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 60 * time.Second

// LockOutcome reports one WithLock attempt. Acquired=false is not an
// error: another holder is active and the caller should skip.
type LockOutcome struct {
	Acquired        bool
	Success         bool
	AcquireDuration time.Duration
	Err             error
}

// LockManager serializes cross-process access to named resources through
// TTL leases in the shared store. The TTL must exceed the worst-case
// duration of the guarded function; a lease expiring mid-flight only
// admits a second runner, so guarded operations stay idempotent or detect
// staleness through account versions.
type LockManager struct {
	store LockStore
	nowFn func() time.Time
}

func NewLockManager(store LockStore) *LockManager {
	return &LockManager{
		store: store,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (m *LockManager) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) LockOutcome {
	outcome := LockOutcome{}
	if m == nil || m.store == nil {
		outcome.Err = fmt.Errorf("core: lock store is not configured")
		return outcome
	}
	name = strings.TrimSpace(name)
	if name == "" {
		outcome.Err = fmt.Errorf("core: lock name is required")
		return outcome
	}
	if fn == nil {
		outcome.Err = fmt.Errorf("core: lock function is required")
		return outcome
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	holder := uuid.NewString()
	startedAt := m.nowFn()
	acquired, err := m.store.Acquire(ctx, name, holder, ttl)
	outcome.AcquireDuration = m.nowFn().Sub(startedAt)
	if err != nil {
		outcome.Err = fmt.Errorf("core: lock acquire %q: %w", name, err)
		return outcome
	}
	if !acquired {
		return outcome
	}
	outcome.Acquired = true

	defer func() {
		_ = m.store.Release(ctx, name, holder)
	}()

	if err := fn(ctx); err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Success = true
	return outcome
}

// RefreshLockName namespaces the per-account refresh lease.
func RefreshLockName(accountID string) string {
	return "token-refresh:" + strings.TrimSpace(accountID)
}

// PoolReloadLockName guards the periodic pool reload across processes.
const PoolReloadLockName = "pool-reload"

// MemoryLockStore is a single-process LockStore for tests and deployments
// without a shared store.
type MemoryLockStore struct {
	mu     sync.Mutex
	leases map[string]LockLease
	nowFn  func() time.Time
}

func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{
		leases: make(map[string]LockLease),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryLockStore) Acquire(_ context.Context, name string, holder string, ttl time.Duration) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: lock store is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("core: lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()

	if lease, ok := s.leases[name]; ok && now.Before(lease.ExpiresAt) {
		return false, nil
	}
	s.leases[name] = LockLease{
		Name:        name,
		HolderToken: holder,
		ExpiresAt:   now.Add(ttl),
	}
	return true, nil
}

func (s *MemoryLockStore) Release(_ context.Context, name string, holder string) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lease, ok := s.leases[strings.TrimSpace(name)]
	if !ok || lease.HolderToken != holder {
		return nil
	}
	delete(s.leases, lease.Name)
	return nil
}
