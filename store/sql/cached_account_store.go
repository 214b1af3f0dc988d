package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-credpool/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const accountCacheKeyPrefix = "go-credpool::account::v1"

// CachedAccountStore fronts point reads with the repository cache.
// Listing queries always hit the base store: the refresher and the pool
// depend on seeing fresh expiry and status data, and a stale list costs
// far more than the read it saves.
type CachedAccountStore struct {
	base  core.AccountStore
	cache repositorycache.CacheService
}

func NewCachedAccountStore(base core.AccountStore, cacheService repositorycache.CacheService) (*CachedAccountStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base account store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: account cache service is required")
	}
	return &CachedAccountStore{base: base, cache: cacheService}, nil
}

// AccountCacheKey returns the deterministic cache key contract for
// account point reads: go-credpool::account::v1::<id> with the id
// URL-path escaped.
func AccountCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: account id is required")
	}
	return accountCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedAccountStore) GetByID(ctx context.Context, id string) (*core.Account, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	cacheKey, err := AccountCacheKey(id)
	if err != nil {
		return nil, err
	}

	account, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Account, error) {
		fetched, fetchErr := s.base.GetByID(ctx, id)
		if fetchErr != nil {
			return core.Account{}, fetchErr
		}
		if fetched == nil {
			return core.Account{}, core.ErrAccountNotFound
		}
		return *fetched.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

func (s *CachedAccountStore) List(ctx context.Context, filter core.ListAccountsFilter) ([]*core.Account, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	return s.base.List(ctx, filter)
}

func (s *CachedAccountStore) ListExpiring(ctx context.Context, query core.ExpiringAccountsQuery) ([]*core.Account, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	return s.base.ListExpiring(ctx, query)
}

func (s *CachedAccountStore) UpdateWithVersion(ctx context.Context, account *core.Account, expectedVersion int64) (*core.Account, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if account == nil {
		return nil, fmt.Errorf("sqlstore: account is required")
	}
	cacheKey, keyErr := AccountCacheKey(account.ID)
	if keyErr != nil {
		return nil, keyErr
	}

	updated, err := s.base.UpdateWithVersion(ctx, account, expectedVersion)

	// Invalidate on every outcome, not just success. A version conflict
	// means the cached row is behind the winning writer, and the retry
	// loop's re-read must come from the store or it will resubmit the
	// same stale version forever.
	if delErr := s.cache.Delete(ctx, cacheKey); delErr != nil && err == nil {
		return nil, delErr
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}
