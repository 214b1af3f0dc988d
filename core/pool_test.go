package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testPoolConfig() PoolConfig {
	return PoolConfig{
		Limit:                 3,
		ErrorThreshold:        3,
		CoolingPeriodSeconds:  600,
		ReloadIntervalSeconds: 300,
	}
}

func newTestPool(t *testing.T, store AccountStore) *accountPool {
	t.Helper()
	pool := newAccountPool(testPoolConfig(), store, nil, nil)
	if err := pool.Reload(context.Background()); err != nil {
		t.Fatalf("seed reload: %v", err)
	}
	return pool
}

func seedAccounts(ids ...string) *memAccountStore {
	expires := time.Now().UTC().Add(time.Hour)
	accounts := make([]*Account, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, testAccount(id, AccountStatusActive, expires))
	}
	return newMemAccountStore(accounts...)
}

func TestPoolNextAccountRoundRobin(t *testing.T) {
	pool := newTestPool(t, seedAccounts("a", "b", "c"))
	ctx := context.Background()

	counts := map[string]int{}
	for i := 0; i < 30; i++ {
		account, err := pool.NextAccount(ctx, "")
		if err != nil {
			t.Fatalf("next account: %v", err)
		}
		counts[account.ID]++
	}
	for _, id := range []string{"a", "b", "c"} {
		if counts[id] != 10 {
			t.Fatalf("rotation skewed: %v", counts)
		}
	}
}

func TestPoolLocalCursorStartsAtHead(t *testing.T) {
	pool := newTestPool(t, seedAccounts("a", "b", "c"))
	ctx := context.Background()

	// With no rotation store the in-memory cursor decides. Its first pick
	// for a cold group must be the head of the candidate list, the same
	// slot a freshly created persisted cursor would return.
	account, err := pool.NextAccount(ctx, "")
	if err != nil {
		t.Fatalf("next account: %v", err)
	}
	if account.ID != "a" {
		t.Fatalf("cold cursor should start at the head, got %q", account.ID)
	}

	account, err = pool.NextAccount(ctx, "")
	if err != nil {
		t.Fatalf("next account: %v", err)
	}
	if account.ID != "b" {
		t.Fatalf("second pick should advance to the next slot, got %q", account.ID)
	}
}

func TestPoolDemotionAtThresholdAndRecovery(t *testing.T) {
	store := seedAccounts("a", "b", "c")
	pool := newTestPool(t, store)
	ctx := context.Background()

	current := time.Now().UTC()
	pool.nowFn = func() time.Time { return current }

	for i := 0; i < pool.cfg.ErrorThreshold; i++ {
		if err := pool.MarkError("a", "upstream 500"); err != nil {
			t.Fatalf("mark error: %v", err)
		}
	}

	stats := pool.Stats()
	if stats.ActiveCount != 2 || stats.CoolingCount != 1 {
		t.Fatalf("expected a demoted, got %+v", stats)
	}

	// rotation must only cover the survivors
	for i := 0; i < 20; i++ {
		account, err := pool.NextAccount(ctx, "")
		if err != nil {
			t.Fatalf("next account: %v", err)
		}
		if account.ID == "a" {
			t.Fatal("cooling account served traffic")
		}
	}

	// before the cooling period elapses the account must stay out
	current = current.Add(pool.cfg.CoolingPeriod() - time.Second)
	if ids := pool.ActiveAccountIDs(); len(ids) != 2 {
		t.Fatalf("premature recovery: %v", ids)
	}

	current = current.Add(2 * time.Second)
	ids := pool.ActiveAccountIDs()
	if len(ids) != 3 {
		t.Fatalf("expected recovery after cooling period: %v", ids)
	}
	if entry := pool.active["a"]; entry == nil || entry.ErrorCount != 0 {
		t.Fatalf("recovered account should reset error count: %+v", entry)
	}
}

func TestPoolEndToEndRotationScenario(t *testing.T) {
	store := seedAccounts("a", "b", "c")
	pool := newTestPool(t, store)
	ctx := context.Background()

	current := time.Now().UTC()
	pool.nowFn = func() time.Time { return current }

	for i := 0; i < pool.cfg.ErrorThreshold; i++ {
		_ = pool.MarkError("a", "boom")
	}

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		account, err := pool.NextAccount(ctx, "")
		if err != nil {
			t.Fatalf("next account: %v", err)
		}
		seen[account.ID] = true
	}
	if seen["a"] || !seen["b"] || !seen["c"] {
		t.Fatalf("expected rotation across [b c], saw %v", seen)
	}

	current = current.Add(pool.cfg.CoolingPeriod() + time.Second)
	seen = map[string]bool{}
	for i := 0; i < 12; i++ {
		account, err := pool.NextAccount(ctx, "")
		if err != nil {
			t.Fatalf("next account: %v", err)
		}
		seen[account.ID] = true
	}
	if !seen["a"] || !seen["b"] || !seen["c"] {
		t.Fatalf("expected rotation across [a b c] after recovery, saw %v", seen)
	}
}

func TestPoolQuotaExhaustedCoolsWithoutBan(t *testing.T) {
	store := seedAccounts("a", "b")
	pool := newTestPool(t, store)

	if err := pool.MarkQuotaExhausted("a", "quota exceeded"); err != nil {
		t.Fatalf("quota exhausted: %v", err)
	}

	if _, cooled := pool.cooling["a"]; !cooled {
		t.Fatal("quota-exhausted account should cool immediately")
	}
	if row := store.row("a"); row.Status != AccountStatusActive {
		t.Fatalf("quota exhaustion must not change persisted status, got %s", row.Status)
	}
}

func TestPoolBanIsPermanent(t *testing.T) {
	store := seedAccounts("a", "b")
	pool := newTestPool(t, store)
	ctx := context.Background()

	if err := pool.Ban(ctx, "a", "abuse"); err != nil {
		t.Fatalf("ban: %v", err)
	}

	row := store.row("a")
	if row.Status != AccountStatusBanned {
		t.Fatalf("expected banned status persisted, got %s", row.Status)
	}
	if row.Version != 2 {
		t.Fatalf("ban must bump version, got %d", row.Version)
	}

	if err := pool.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	for _, id := range pool.ActiveAccountIDs() {
		if id == "a" {
			t.Fatal("banned account re-promoted")
		}
	}
}

func TestPoolStaleCacheFallback(t *testing.T) {
	store := seedAccounts("a", "b")
	pool := newTestPool(t, store)
	ctx := context.Background()

	store.listErr = fmt.Errorf("connection refused")
	if err := pool.Reload(ctx); err == nil {
		t.Fatal("reload should surface the store failure")
	}

	// the last good snapshot still serves
	account, err := pool.NextAccount(ctx, "")
	if err != nil {
		t.Fatalf("stale cache should serve: %v", err)
	}
	if account == nil {
		t.Fatal("expected an account from the stale snapshot")
	}
	if stats := pool.Stats(); stats.DBErrors == 0 {
		t.Fatalf("db errors should be counted: %+v", stats)
	}
}

func TestPoolUnavailableWithoutSnapshot(t *testing.T) {
	store := seedAccounts("a")
	store.listErr = fmt.Errorf("connection refused")
	pool := newAccountPool(testPoolConfig(), store, nil, nil)

	_, err := pool.NextAccount(context.Background(), "")
	if !errors.Is(err, ErrPoolUnavailable) {
		t.Fatalf("expected pool unavailable, got %v", err)
	}
}

func TestPoolExhaustedWhenActiveSetEmpty(t *testing.T) {
	store := seedAccounts("a")
	pool := newTestPool(t, store)
	ctx := context.Background()

	for i := 0; i < pool.cfg.ErrorThreshold; i++ {
		_ = pool.MarkError("a", "boom")
	}
	_, err := pool.NextAccount(ctx, "")
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected pool exhausted, got %v", err)
	}
}

func TestPoolLimitBoundsActiveSet(t *testing.T) {
	store := seedAccounts("a", "b", "c", "d", "e")
	pool := newTestPool(t, store)

	if got := len(pool.ActiveAccountIDs()); got != pool.cfg.Limit {
		t.Fatalf("active set must respect limit, got %d", got)
	}
}

func TestPoolReloadCountsRepairsAndIncomplete(t *testing.T) {
	broken := &Account{
		ID:           "broken",
		Email:        "broken@example.com",
		RefreshToken: "rt",
		Status:       AccountStatus("???"),
		Version:      1,
	}
	incomplete := &Account{ID: "incomplete", Status: AccountStatusActive, Version: 1}
	store := newMemAccountStore(broken, incomplete)

	pool := newAccountPool(testPoolConfig(), store, nil, nil)
	if err := pool.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	stats := pool.Stats()
	if stats.DataRepairs == 0 {
		t.Fatalf("expected repairs counted: %+v", stats)
	}
	if stats.IncompleteAccounts != 1 {
		t.Fatalf("expected one incomplete account: %+v", stats)
	}
}

func TestPoolRecordUsagePersists(t *testing.T) {
	store := seedAccounts("a")
	pool := newTestPool(t, store)

	if err := pool.RecordUsage(context.Background(), "a"); err != nil {
		t.Fatalf("record usage: %v", err)
	}
	row := store.row("a")
	if row.UsageCount != 1 || row.Version != 2 {
		t.Fatalf("usage not persisted with version bump: %+v", row)
	}
}

func TestPoolHealthScoreDegrades(t *testing.T) {
	store := seedAccounts("a", "b")
	pool := newTestPool(t, store)

	healthy := pool.Stats().HealthScore
	if healthy != 100 {
		t.Fatalf("fresh pool should score 100, got %d", healthy)
	}

	_ = pool.MarkError("a", "boom")
	_ = pool.MarkError("a", "boom")
	degraded := pool.Stats().HealthScore
	if degraded >= healthy {
		t.Fatalf("errors should degrade the score: %d -> %d", healthy, degraded)
	}

	empty := newAccountPool(testPoolConfig(), store, nil, nil)
	if empty.Stats().HealthScore != 0 {
		t.Fatal("never-loaded pool should score 0")
	}
}
