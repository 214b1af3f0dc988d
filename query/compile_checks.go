package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credpool/core"
)

var (
	_ gocmd.Querier[NextAccountMessage, *core.Account]          = (*NextAccountQuery)(nil)
	_ gocmd.Querier[ActiveAccountsMessage, []string]            = (*ActiveAccountsQuery)(nil)
	_ gocmd.Querier[PoolStatsMessage, core.PoolStats]           = (*PoolStatsQuery)(nil)
	_ gocmd.Querier[RefresherStatsMessage, core.RefresherStats] = (*RefresherStatsQuery)(nil)
	_ gocmd.Querier[GetAccountMessage, *core.Account]           = (*GetAccountQuery)(nil)
)
