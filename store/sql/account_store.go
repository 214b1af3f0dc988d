package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-credpool/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// AccountStore persists pooled accounts. Every mutation goes through
// UpdateWithVersion so concurrent writers surface as version conflicts
// instead of lost updates.
type AccountStore struct {
	db   *bun.DB
	repo repository.Repository[*accountRecord]
}

func NewAccountStore(db *bun.DB) (*AccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*accountRecord](db, accountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid account repository wiring: %w", err)
		}
	}
	return &AccountStore{db: db, repo: repo}, nil
}

// CreateAccount inserts a new account row. Missing defaults are repaired
// the same way the pool repairs rows on load.
func (s *AccountStore) CreateAccount(ctx context.Context, account *core.Account) (*core.Account, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if account == nil {
		return nil, fmt.Errorf("sqlstore: account is required")
	}
	candidate := account.Clone()
	report := core.NormalizeAccount(candidate)
	if report.Incomplete {
		return nil, fmt.Errorf("sqlstore: account %q is missing identity or refresh credentials", candidate.ID)
	}
	now := time.Now().UTC()
	if candidate.CreatedAt.IsZero() {
		candidate.CreatedAt = now
	}
	candidate.UpdatedAt = now

	created, err := s.repo.Create(ctx, newAccountRecord(candidate))
	if err != nil {
		return nil, err
	}
	return created.toDomain(), nil
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*core.Account, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: account id is required")
	}
	record := &accountRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrAccountNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

func (s *AccountStore) List(ctx context.Context, filter core.ListAccountsFilter) ([]*core.Account, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}

	criteria := []repository.SelectCriteria{
		repository.OrderBy("id ASC"),
	}
	if groupID := strings.TrimSpace(filter.GroupID); groupID != "" {
		criteria = append(criteria, repository.SelectBy("group_id", "=", groupID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.status IN (?)", bun.In(statuses))
		}))
	}
	if filter.IncludeDelete {
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereAllWithDeleted()
		}))
	}
	if filter.Limit > 0 {
		limit := filter.Limit
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Limit(limit)
		}))
	}

	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Account, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// ListExpiring returns accounts whose credential expires before the
// threshold, soonest first. Rows with no recorded expiry sort ahead of
// everything so fresh imports are refreshed first.
func (s *AccountStore) ListExpiring(ctx context.Context, query core.ExpiringAccountsQuery) ([]*core.Account, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if query.Before.IsZero() {
		return nil, fmt.Errorf("sqlstore: expiry threshold is required")
	}

	records := []*accountRecord{}
	q := s.db.NewSelect().
		Model(&records).
		Where("(?TableAlias.expires_at IS NULL OR ?TableAlias.expires_at < ?)", query.Before.UTC()).
		OrderExpr("?TableAlias.expires_at ASC")

	if len(query.ExcludeStatuses) > 0 {
		statuses := make([]string, 0, len(query.ExcludeStatuses))
		for _, status := range query.ExcludeStatuses {
			statuses = append(statuses, string(status))
		}
		q = q.Where("?TableAlias.status NOT IN (?)", bun.In(statuses))
	}
	if len(query.RestrictToIDs) > 0 {
		q = q.Where("?TableAlias.id IN (?)", bun.In(query.RestrictToIDs))
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*core.Account, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// UpdateWithVersion writes the account conditioned on the last-seen
// version. A zero-row update means another writer got there first, or the
// row is gone; the two are told apart with a follow-up read.
func (s *AccountStore) UpdateWithVersion(ctx context.Context, account *core.Account, expectedVersion int64) (*core.Account, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if account == nil {
		return nil, fmt.Errorf("sqlstore: account is required")
	}
	id := strings.TrimSpace(account.ID)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: account id is required")
	}
	if expectedVersion < 1 {
		return nil, fmt.Errorf("sqlstore: expected version must be at least 1")
	}

	next := account.Clone()
	next.ID = id
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()

	record := newAccountRecord(next)
	res, err := s.db.NewUpdate().
		Model(record).
		Column(
			"email", "identity_provider", "group_id",
			"access_token", "refresh_token", "client_id", "client_secret", "region",
			"expires_at", "auth_method", "provider",
			"status", "last_error", "last_checked_at",
			"version", "usage_count", "updated_at",
		).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, core.ErrVersionConflict
	}
	return next, nil
}
