package query

import (
	"fmt"
	"strings"
)

const (
	TypeNextAccount    = "credpool.query.pool.next_account"
	TypeActiveAccounts = "credpool.query.pool.active_accounts"
	TypePoolStats      = "credpool.query.pool.stats"
	TypeRefresherStats = "credpool.query.refresher.stats"
	TypeGetAccount     = "credpool.query.account.get"
)

type NextAccountMessage struct {
	GroupID string
}

func (NextAccountMessage) Type() string { return TypeNextAccount }

func (NextAccountMessage) Validate() error { return nil }

type ActiveAccountsMessage struct{}

func (ActiveAccountsMessage) Type() string { return TypeActiveAccounts }

func (ActiveAccountsMessage) Validate() error { return nil }

type PoolStatsMessage struct{}

func (PoolStatsMessage) Type() string { return TypePoolStats }

func (PoolStatsMessage) Validate() error { return nil }

type RefresherStatsMessage struct{}

func (RefresherStatsMessage) Type() string { return TypeRefresherStats }

func (RefresherStatsMessage) Validate() error { return nil }

type GetAccountMessage struct {
	AccountID string
}

func (GetAccountMessage) Type() string { return TypeGetAccount }

func (m GetAccountMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("query: account id is required")
	}
	return nil
}
