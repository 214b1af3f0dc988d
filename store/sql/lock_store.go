package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// LockStore backs the lock manager with one row per named lease. Acquire
// is a single conditional upsert: the insert wins an empty slot, the
// update steals a lease only once it has expired or already belongs to
// the caller. Expiry is compared inside the store so every process sees
// the same verdict.
type LockStore struct {
	db *bun.DB
}

func NewLockStore(db *bun.DB) (*LockStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LockStore{db: db}, nil
}

func (s *LockStore) Acquire(ctx context.Context, name string, holder string, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: lock store is not configured")
	}
	name = strings.TrimSpace(name)
	holder = strings.TrimSpace(holder)
	if name == "" || holder == "" {
		return false, fmt.Errorf("sqlstore: lock name and holder are required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("sqlstore: lock ttl must be positive")
	}

	// Expiry is computed and compared on the database clock. Binding a
	// caller timestamp here would let a process with a skewed clock steal
	// a live lease.
	nowExpr, expiresExpr, expiresArg := s.clockExpressions(ttl)

	record := &lockLeaseRecord{
		Name:        name,
		HolderToken: holder,
	}
	res, err := s.db.NewInsert().
		Model(record).
		Value("expires_at", expiresExpr, expiresArg).
		On("CONFLICT (name) DO UPDATE").
		Set("holder_token = EXCLUDED.holder_token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Where("?TableAlias.expires_at <= "+nowExpr+" OR ?TableAlias.holder_token = ?", holder).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// clockExpressions returns the store-clock SQL for "now" and for
// "now + ttl" in the active dialect. SQLite needs STRFTIME with %f so
// sub-second leases compare correctly against the stored text.
func (s *LockStore) clockExpressions(ttl time.Duration) (nowExpr string, expiresExpr string, expiresArg any) {
	if s.db.Dialect().Name() == dialect.PG {
		return "CURRENT_TIMESTAMP",
			"CURRENT_TIMESTAMP + ? * INTERVAL '1 second'",
			ttl.Seconds()
	}
	return "STRFTIME('%Y-%m-%d %H:%M:%f', 'now')",
		"STRFTIME('%Y-%m-%d %H:%M:%f', 'now', ? || ' seconds')",
		fmt.Sprintf("+%.3f", ttl.Seconds())
}

// Release drops the lease only when the caller still holds it. A stale
// holder releasing after expiry must not clobber the next owner's lease,
// so a mismatch is a silent no-op.
func (s *LockStore) Release(ctx context.Context, name string, holder string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: lock store is not configured")
	}
	name = strings.TrimSpace(name)
	holder = strings.TrimSpace(holder)
	if name == "" || holder == "" {
		return fmt.Errorf("sqlstore: lock name and holder are required")
	}

	_, err := s.db.NewDelete().
		Model((*lockLeaseRecord)(nil)).
		Where("?TableAlias.name = ?", name).
		Where("?TableAlias.holder_token = ?", holder).
		Exec(ctx)
	return err
}
