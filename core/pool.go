package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// PoolStats is a monitoring snapshot of the account pool.
type PoolStats struct {
	ActiveCount        int
	CoolingCount       int
	ValidationErrors   int64
	DataRepairs        int64
	IncompleteAccounts int64
	StaleCacheUsed     int64
	DBErrors           int64
	HealthScore        int
	LoadedAt           time.Time
}

// accountPool keeps the in-process view of the serving set: a bounded
// active set, a cooling quarantine, and a cached snapshot of account rows.
// The cache is read-mostly and never authoritative for writes; every
// mutation goes through the store with a version check.
type accountPool struct {
	mu       sync.Mutex
	cfg      PoolConfig
	store    AccountStore
	rotation RotationStore
	locks    *LockManager
	nowFn    func() time.Time

	active   map[string]*PoolEntry
	cooling  map[string]*CoolingEntry
	accounts map[string]*Account
	order    []string

	localCursor map[string]int64

	loadedAt   time.Time
	everLoaded bool

	validationErrors   int64
	dataRepairs        int64
	incompleteAccounts int64
	staleCacheUsed     int64
	dbErrors           int64
}

func newAccountPool(cfg PoolConfig, store AccountStore, rotation RotationStore, locks *LockManager) *accountPool {
	return &accountPool{
		cfg:         cfg,
		store:       store,
		rotation:    rotation,
		locks:       locks,
		nowFn:       func() time.Time { return time.Now().UTC() },
		active:      make(map[string]*PoolEntry),
		cooling:     make(map[string]*CoolingEntry),
		accounts:    make(map[string]*Account),
		localCursor: make(map[string]int64),
	}
}

// Reload refreshes the working set from the store. Store failures degrade
// to the last good snapshot instead of clearing it. When a lock manager is
// configured the reload runs under the shared pool-reload lease so only
// one process rebuilds at a time; a lost lease is a no-op, not an error.
func (p *accountPool) Reload(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("core: account pool is not configured")
	}
	if p.locks == nil {
		return p.reload(ctx)
	}
	outcome := p.locks.WithLock(ctx, PoolReloadLockName, 30*time.Second, p.reload)
	if outcome.Err != nil {
		return outcome.Err
	}
	return nil
}

func (p *accountPool) reload(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("core: account store is not configured")
	}

	// Rows are loaded unfiltered so malformed status values reach the
	// repair pass instead of silently dropping out of the query.
	rows, err := p.store.List(ctx, ListAccountsFilter{})
	if err != nil {
		p.mu.Lock()
		p.dbErrors++
		p.mu.Unlock()
		return fmt.Errorf("core: pool reload: %w", err)
	}

	now := p.nowFn()
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]struct{}, len(rows))
	next := make(map[string]*Account, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		account := row.Clone()
		report := NormalizeAccount(account)
		if report.Repaired() {
			p.dataRepairs += int64(len(report.Repairs))
			p.validationErrors++
		}
		if report.Incomplete {
			p.incompleteAccounts++
			continue
		}
		if account.IsDeleted || account.Status == AccountStatusBanned || account.Status == AccountStatusError {
			continue
		}
		next[account.ID] = account
		seen[account.ID] = struct{}{}
	}

	for id := range p.active {
		if _, ok := seen[id]; !ok {
			p.removeActiveLocked(id)
		}
	}
	for id := range p.cooling {
		if _, ok := seen[id]; !ok {
			delete(p.cooling, id)
		}
	}

	for _, id := range sortedKeys(next) {
		if _, pooled := p.active[id]; pooled {
			continue
		}
		if _, cooled := p.cooling[id]; cooled {
			continue
		}
		if len(p.active) >= p.cfg.Limit {
			break
		}
		p.active[id] = &PoolEntry{AccountID: id, AddedAt: now}
		p.order = append(p.order, id)
	}

	p.accounts = next
	p.loadedAt = now
	p.everLoaded = true
	return nil
}

// NextAccount picks one active account by round-robin. Store failures on
// the rotation cursor fall back to a process-local cursor over the stale
// snapshot rather than failing the request.
func (p *accountPool) NextAccount(ctx context.Context, groupID string) (*Account, error) {
	if p == nil {
		return nil, fmt.Errorf("core: account pool is not configured")
	}
	groupID = strings.TrimSpace(groupID)

	p.mu.Lock()
	if !p.everLoaded {
		p.mu.Unlock()
		if err := p.reloadOnce(ctx); err != nil {
			return nil, ErrPoolUnavailable
		}
		p.mu.Lock()
	}

	p.recoverCooledLocked(p.nowFn())
	candidates := p.candidatesLocked(groupID)
	if len(candidates) == 0 {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.mu.Unlock()

	index := p.nextIndex(ctx, groupID, int64(len(candidates)))

	p.mu.Lock()
	defer p.mu.Unlock()
	account, ok := p.accounts[candidates[index%int64(len(candidates))]]
	if !ok {
		return nil, ErrPoolExhausted
	}
	return account.Clone(), nil
}

func (p *accountPool) reloadOnce(ctx context.Context) error {
	if err := p.Reload(ctx); err != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.everLoaded {
			return err
		}
		p.staleCacheUsed++
	}
	return nil
}

func (p *accountPool) nextIndex(ctx context.Context, groupID string, count int64) int64 {
	if p.rotation != nil {
		index, err := p.rotation.NextIndex(ctx, groupID, count)
		if err == nil {
			return index
		}
		p.mu.Lock()
		p.dbErrors++
		p.staleCacheUsed++
		p.mu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	cursor, seen := p.localCursor[groupID]
	if seen {
		cursor = (cursor + 1) % count
	} else {
		// A cold group starts at the head of the candidate list, matching
		// the persisted cursor's first pick.
		cursor = 0
	}
	p.localCursor[groupID] = cursor
	return cursor
}

func (p *accountPool) candidatesLocked(groupID string) []string {
	candidates := make([]string, 0, len(p.order))
	for _, id := range p.order {
		if _, pooled := p.active[id]; !pooled {
			continue
		}
		account, ok := p.accounts[id]
		if !ok {
			continue
		}
		if p.cfg.GroupRotation && groupID != "" && account.GroupID != groupID {
			continue
		}
		candidates = append(candidates, id)
	}
	return candidates
}

// MarkError increments error bookkeeping and demotes the account to the
// cooling set once the threshold is reached.
func (p *accountPool) MarkError(id string, reason string) error {
	if p == nil {
		return fmt.Errorf("core: account pool is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("core: account id is required")
	}
	now := p.nowFn()

	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.cooling[id]; ok {
		entry.ErrorCount++
		entry.LastError = reason
		return nil
	}
	entry, ok := p.active[id]
	if !ok {
		return nil
	}
	entry.ErrorCount++
	entry.LastErrorAt = now
	if entry.ErrorCount >= p.cfg.ErrorThreshold {
		p.demoteLocked(id, entry.ErrorCount, reason, now)
	}
	return nil
}

// MarkQuotaExhausted pauses the account for the cooling period without
// banning it; the quota resets externally.
func (p *accountPool) MarkQuotaExhausted(id string, reason string) error {
	if p == nil {
		return fmt.Errorf("core: account pool is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("core: account id is required")
	}
	now := p.nowFn()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.cooling[id]; ok {
		return nil
	}
	entry, ok := p.active[id]
	if !ok {
		return nil
	}
	p.demoteLocked(id, entry.ErrorCount, reason, now)
	return nil
}

// Ban removes the account permanently and persists the banned status. A
// banned account is never re-promoted automatically.
func (p *accountPool) Ban(ctx context.Context, id string, reason string) error {
	if p == nil {
		return fmt.Errorf("core: account pool is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("core: account id is required")
	}

	p.mu.Lock()
	p.removeActiveLocked(id)
	delete(p.cooling, id)
	delete(p.accounts, id)
	p.mu.Unlock()

	_, err := MutateAccount(ctx, p.store, id, 0, func(account *Account) error {
		if err := account.Status.TransitionTo(AccountStatusBanned); err != nil {
			return err
		}
		account.Status = AccountStatusBanned
		account.LastError = strings.TrimSpace(reason)
		account.LastCheckedAt = p.nowFn()
		return nil
	})
	return err
}

// RecordUsage persists usage bookkeeping for an account. Side effect
// only; selection never depends on it.
func (p *accountPool) RecordUsage(ctx context.Context, id string) error {
	if p == nil {
		return fmt.Errorf("core: account pool is not configured")
	}
	updated, err := MutateAccount(ctx, p.store, id, 0, func(account *Account) error {
		account.UsageCount++
		return nil
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[updated.ID]; ok {
		p.accounts[updated.ID] = updated.Clone()
	}
	return nil
}

// ActiveAccountIDs returns the ids currently eligible for traffic,
// sorted for deterministic consumption.
func (p *accountPool) ActiveAccountIDs() []string {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recoverCooledLocked(p.nowFn())
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *accountPool) Stats() PoolStats {
	if p == nil {
		return PoolStats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		ActiveCount:        len(p.active),
		CoolingCount:       len(p.cooling),
		ValidationErrors:   p.validationErrors,
		DataRepairs:        p.dataRepairs,
		IncompleteAccounts: p.incompleteAccounts,
		StaleCacheUsed:     p.staleCacheUsed,
		DBErrors:           p.dbErrors,
		LoadedAt:           p.loadedAt,
	}
	stats.HealthScore = p.healthScoreLocked(p.nowFn())
	return stats
}

func (p *accountPool) healthScoreLocked(now time.Time) int {
	if !p.everLoaded {
		return 0
	}
	score := 100

	errors := 0
	for _, entry := range p.active {
		errors += entry.ErrorCount
	}
	penalty := errors * 5
	if penalty > 40 {
		penalty = 40
	}
	score -= penalty

	if len(p.cooling) > 0 && len(p.active)+len(p.cooling) > 0 {
		score -= 30 * len(p.cooling) / (len(p.active) + len(p.cooling))
	}

	if p.cfg.ReloadInterval() > 0 {
		stale := now.Sub(p.loadedAt) - 2*p.cfg.ReloadInterval()
		if stale > 0 {
			staleness := int(stale / time.Minute)
			if staleness > 30 {
				staleness = 30
			}
			score -= staleness
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

func (p *accountPool) demoteLocked(id string, errorCount int, reason string, now time.Time) {
	p.removeActiveLocked(id)
	p.cooling[id] = &CoolingEntry{
		AccountID:      id,
		CoolingStartAt: now,
		ErrorCount:     errorCount,
		LastError:      strings.TrimSpace(reason),
	}
}

func (p *accountPool) recoverCooledLocked(now time.Time) {
	period := p.cfg.CoolingPeriod()
	for id, entry := range p.cooling {
		if now.Sub(entry.CoolingStartAt) < period {
			continue
		}
		if len(p.active) >= p.cfg.Limit {
			continue
		}
		delete(p.cooling, id)
		p.active[id] = &PoolEntry{AccountID: id, AddedAt: now}
		p.order = append(p.order, id)
	}
}

func (p *accountPool) removeActiveLocked(id string) {
	delete(p.active, id)
	kept := p.order[:0]
	for _, existing := range p.order {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	p.order = kept
}

func sortedKeys(accounts map[string]*Account) []string {
	keys := make([]string, 0, len(accounts))
	for key := range accounts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
