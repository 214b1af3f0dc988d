package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-credpool/core"
	credmigrations "github.com/goliatone/go-credpool/migrations"
	sqlstore "github.com/goliatone/go-credpool/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-credpool-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:credpool-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = credmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != credmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, credmigrations.WithValidationTargets(credmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func newPoolAccount(id string) *core.Account {
	return &core.Account{
		ID:           id,
		Email:        id + "@example.com",
		AccessToken:  "at-" + id,
		RefreshToken: "rt-" + id,
		Status:       core.AccountStatusActive,
		Version:      1,
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"pool_accounts", "pool_round_robin", "pool_locks"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestAccountStoreVersionedUpdates(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	accounts := factory.Accounts()
	created, err := accounts.CreateAccount(ctx, newPoolAccount("acc-1"))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected created version=1, got %d", created.Version)
	}

	loaded, err := accounts.GetByID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}

	loaded.AccessToken = "at-rotated"
	loaded.Status = core.AccountStatusActive
	updated, err := accounts.UpdateWithVersion(ctx, loaded, loaded.Version)
	if err != nil {
		t.Fatalf("update with version: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", updated.Version)
	}

	// The stale writer still holds version 1 and must lose.
	stale := created.Clone()
	stale.AccessToken = "at-stale"
	if _, err := accounts.UpdateWithVersion(ctx, stale, 1); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	reread, err := accounts.GetByID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if reread.AccessToken != "at-rotated" || reread.Version != 2 {
		t.Fatalf("winning write clobbered: %+v", reread)
	}

	missing := newPoolAccount("acc-missing")
	if _, err := accounts.UpdateWithVersion(ctx, missing, 1); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected account-not-found, got %v", err)
	}
}

func TestAccountStoreListExpiringOrdersSoonestFirst(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	accounts := factory.Accounts()
	now := time.Now().UTC()

	soon := newPoolAccount("exp-soon")
	soon.ExpiresAt = now.Add(2 * time.Minute)
	later := newPoolAccount("exp-later")
	later.ExpiresAt = now.Add(8 * time.Minute)
	banned := newPoolAccount("exp-banned")
	banned.ExpiresAt = now.Add(time.Minute)
	banned.Status = core.AccountStatusBanned
	distant := newPoolAccount("exp-distant")
	distant.ExpiresAt = now.Add(24 * time.Hour)

	for _, account := range []*core.Account{soon, later, banned, distant} {
		if _, err := accounts.CreateAccount(ctx, account); err != nil {
			t.Fatalf("create %s: %v", account.ID, err)
		}
	}

	expiring, err := accounts.ListExpiring(ctx, core.ExpiringAccountsQuery{
		Before:          now.Add(time.Hour),
		ExcludeStatuses: []core.AccountStatus{core.AccountStatusBanned},
	})
	if err != nil {
		t.Fatalf("list expiring: %v", err)
	}
	if len(expiring) != 2 {
		t.Fatalf("expected 2 expiring accounts, got %d", len(expiring))
	}
	if expiring[0].ID != "exp-soon" || expiring[1].ID != "exp-later" {
		t.Fatalf("expected soonest-first ordering, got [%s %s]", expiring[0].ID, expiring[1].ID)
	}

	restricted, err := accounts.ListExpiring(ctx, core.ExpiringAccountsQuery{
		Before:        now.Add(time.Hour),
		RestrictToIDs: []string{"exp-later"},
	})
	if err != nil {
		t.Fatalf("list restricted: %v", err)
	}
	if len(restricted) != 1 || restricted[0].ID != "exp-later" {
		t.Fatalf("restriction not applied: %+v", restricted)
	}
}

func TestAccountStoreListFilters(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	accounts := factory.Accounts()
	grouped := newPoolAccount("grp-1")
	grouped.GroupID = "team-a"
	errored := newPoolAccount("grp-2")
	errored.GroupID = "team-a"
	errored.Status = core.AccountStatusError
	outside := newPoolAccount("grp-3")
	outside.GroupID = "team-b"

	for _, account := range []*core.Account{grouped, errored, outside} {
		if _, err := accounts.CreateAccount(ctx, account); err != nil {
			t.Fatalf("create %s: %v", account.ID, err)
		}
	}

	teamA, err := accounts.List(ctx, core.ListAccountsFilter{GroupID: "team-a"})
	if err != nil {
		t.Fatalf("list team-a: %v", err)
	}
	if len(teamA) != 2 {
		t.Fatalf("expected 2 team-a accounts, got %d", len(teamA))
	}

	activeOnly, err := accounts.List(ctx, core.ListAccountsFilter{
		GroupID:  "team-a",
		Statuses: []core.AccountStatus{core.AccountStatusActive},
	})
	if err != nil {
		t.Fatalf("list active team-a: %v", err)
	}
	if len(activeOnly) != 1 || activeOnly[0].ID != "grp-1" {
		t.Fatalf("status filter not applied: %+v", activeOnly)
	}
}

func TestRotationStoreCyclesFairly(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	rotation := factory.RotationStore()
	counts := map[int64]int{}
	for i := 0; i < 9; i++ {
		index, err := rotation.NextIndex(ctx, "team-a", 3)
		if err != nil {
			t.Fatalf("next index %d: %v", i, err)
		}
		if index < 0 || index > 2 {
			t.Fatalf("index out of range: %d", index)
		}
		counts[index]++
	}
	for index := int64(0); index < 3; index++ {
		if counts[index] != 3 {
			t.Fatalf("expected each index picked 3 times, got %v", counts)
		}
	}

	// Membership drift restarts the cycle at zero.
	index, err := rotation.NextIndex(ctx, "team-a", 2)
	if err != nil {
		t.Fatalf("next index after count change: %v", err)
	}
	if index != 0 {
		t.Fatalf("expected cursor reset to 0 on count change, got %d", index)
	}

	if _, err := rotation.NextIndex(ctx, "team-a", 0); err == nil {
		t.Fatal("zero live accounts must be rejected")
	}
}

func TestRotationStoreSeparatesGroups(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	rotation := factory.RotationStore()
	if _, err := rotation.NextIndex(ctx, "team-a", 3); err != nil {
		t.Fatalf("seed team-a cursor: %v", err)
	}
	if _, err := rotation.NextIndex(ctx, "team-a", 3); err != nil {
		t.Fatalf("advance team-a cursor: %v", err)
	}

	index, err := rotation.NextIndex(ctx, "team-b", 3)
	if err != nil {
		t.Fatalf("team-b cursor: %v", err)
	}
	if index != 0 {
		t.Fatalf("expected fresh group to start at 0, got %d", index)
	}
}

func TestLockStoreLeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	locks := factory.LockStore()
	acquired, err := locks.Acquire(ctx, "token-refresh:acc-1", "holder-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("first acquire must win")
	}

	stolen, err := locks.Acquire(ctx, "token-refresh:acc-1", "holder-b", time.Minute)
	if err != nil {
		t.Fatalf("contending acquire: %v", err)
	}
	if stolen {
		t.Fatal("live lease must not be stolen")
	}

	extended, err := locks.Acquire(ctx, "token-refresh:acc-1", "holder-a", time.Minute)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !extended {
		t.Fatal("current holder must be able to extend its lease")
	}

	if err := locks.Release(ctx, "token-refresh:acc-1", "holder-b"); err != nil {
		t.Fatalf("mismatched release: %v", err)
	}
	stillHeld, err := locks.Acquire(ctx, "token-refresh:acc-1", "holder-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire after mismatched release: %v", err)
	}
	if stillHeld {
		t.Fatal("mismatched release must not drop the live lease")
	}

	if err := locks.Release(ctx, "token-refresh:acc-1", "holder-a"); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	reacquired, err := locks.Acquire(ctx, "token-refresh:acc-1", "holder-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !reacquired {
		t.Fatal("released lease must be acquirable")
	}
}

func TestLockStoreExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	locks := factory.LockStore()
	acquired, err := locks.Acquire(ctx, "pool-reload", "holder-a", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("first acquire must win")
	}

	time.Sleep(25 * time.Millisecond)

	takenOver, err := locks.Acquire(ctx, "pool-reload", "holder-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire expired lease: %v", err)
	}
	if !takenOver {
		t.Fatal("expired lease must be acquirable by a new holder")
	}
}

func TestLockStoreLeaseExpiryComputedOnStoreClock(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	locks, err := sqlstore.NewLockStore(client.DB())
	if err != nil {
		t.Fatalf("new lock store: %v", err)
	}

	acquired, err := locks.Acquire(ctx, "token-refresh:acc-clock", "holder-a", time.Hour)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("first acquire must win")
	}

	// The lease boundary must be the database's own now plus the ttl, not
	// a timestamp bound by this process. A caller with a skewed clock would
	// otherwise write an expiry the other processes disagree with.
	var withinTTL int
	err = client.DB().NewRaw(
		"SELECT COUNT(*) FROM pool_locks WHERE name = ?"+
			" AND expires_at > STRFTIME('%Y-%m-%d %H:%M:%f', 'now')"+
			" AND expires_at <= STRFTIME('%Y-%m-%d %H:%M:%f', 'now', '+3600.000 seconds')",
		"token-refresh:acc-clock",
	).Scan(ctx, &withinTTL)
	if err != nil {
		t.Fatalf("inspect lease expiry: %v", err)
	}
	if withinTTL != 1 {
		t.Fatal("lease expiry must sit at store-now plus the ttl")
	}

	shortLived, err := locks.Acquire(ctx, "token-refresh:acc-clock-short", "holder-a", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire short lease: %v", err)
	}
	if !shortLived {
		t.Fatal("short lease acquire must win")
	}

	time.Sleep(40 * time.Millisecond)

	var expired int
	err = client.DB().NewRaw(
		"SELECT COUNT(*) FROM pool_locks WHERE name = ?"+
			" AND expires_at <= STRFTIME('%Y-%m-%d %H:%M:%f', 'now')",
		"token-refresh:acc-clock-short",
	).Scan(ctx, &expired)
	if err != nil {
		t.Fatalf("inspect expired lease: %v", err)
	}
	if expired != 1 {
		t.Fatal("elapsed lease must read as expired on the store clock")
	}
}
