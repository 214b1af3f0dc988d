package query

import (
	"context"

	"github.com/goliatone/go-credpool/core"
)

type PoolReader interface {
	NextAccount(ctx context.Context, groupID string) (*core.Account, error)
	ActiveAccountIDs(ctx context.Context) []string
	PoolStats(ctx context.Context) core.PoolStats
}

type RefresherReader interface {
	RefresherStats(ctx context.Context) core.RefresherStats
}

type AccountReader interface {
	GetByID(ctx context.Context, id string) (*core.Account, error)
}

type NextAccountQuery struct {
	reader PoolReader
}

func NewNextAccountQuery(reader PoolReader) *NextAccountQuery {
	return &NextAccountQuery{reader: reader}
}

func (q *NextAccountQuery) Query(ctx context.Context, msg NextAccountMessage) (*core.Account, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: pool reader is required")
	}
	return q.reader.NextAccount(ctx, msg.GroupID)
}

type ActiveAccountsQuery struct {
	reader PoolReader
}

func NewActiveAccountsQuery(reader PoolReader) *ActiveAccountsQuery {
	return &ActiveAccountsQuery{reader: reader}
}

func (q *ActiveAccountsQuery) Query(ctx context.Context, msg ActiveAccountsMessage) ([]string, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: pool reader is required")
	}
	return q.reader.ActiveAccountIDs(ctx), nil
}

type PoolStatsQuery struct {
	reader PoolReader
}

func NewPoolStatsQuery(reader PoolReader) *PoolStatsQuery {
	return &PoolStatsQuery{reader: reader}
}

func (q *PoolStatsQuery) Query(ctx context.Context, msg PoolStatsMessage) (core.PoolStats, error) {
	if q == nil || q.reader == nil {
		return core.PoolStats{}, queryDependencyError("query: pool reader is required")
	}
	return q.reader.PoolStats(ctx), nil
}

type RefresherStatsQuery struct {
	reader RefresherReader
}

func NewRefresherStatsQuery(reader RefresherReader) *RefresherStatsQuery {
	return &RefresherStatsQuery{reader: reader}
}

func (q *RefresherStatsQuery) Query(ctx context.Context, msg RefresherStatsMessage) (core.RefresherStats, error) {
	if q == nil || q.reader == nil {
		return core.RefresherStats{}, queryDependencyError("query: refresher reader is required")
	}
	return q.reader.RefresherStats(ctx), nil
}

type GetAccountQuery struct {
	reader AccountReader
}

func NewGetAccountQuery(reader AccountReader) *GetAccountQuery {
	return &GetAccountQuery{reader: reader}
}

func (q *GetAccountQuery) Query(ctx context.Context, msg GetAccountMessage) (*core.Account, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: account reader is required")
	}
	return q.reader.GetByID(ctx, msg.AccountID)
}
