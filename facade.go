package credpool

import (
	"fmt"

	credpoolcommand "github.com/goliatone/go-credpool/command"
	"github.com/goliatone/go-credpool/core"
	credpoolquery "github.com/goliatone/go-credpool/query"
)

// CommandQueryService is the runtime surface the facade wires handlers
// around. *core.Service satisfies it.
type CommandQueryService interface {
	credpoolcommand.MutatingService
	credpoolquery.PoolReader
	credpoolquery.RefresherReader
}

type Commands struct {
	MarkAccountError   *credpoolcommand.MarkAccountErrorCommand
	MarkQuotaExhausted *credpoolcommand.MarkQuotaExhaustedCommand
	BanAccount         *credpoolcommand.BanAccountCommand
	RecordUsage        *credpoolcommand.RecordUsageCommand
	ReloadPool         *credpoolcommand.ReloadPoolCommand
	RefreshAccount     *credpoolcommand.RefreshAccountCommand
	RunRefreshCycle    *credpoolcommand.RunRefreshCycleCommand
}

type Queries struct {
	NextAccount    *credpoolquery.NextAccountQuery
	ActiveAccounts *credpoolquery.ActiveAccountsQuery
	PoolStats      *credpoolquery.PoolStatsQuery
	RefresherStats *credpoolquery.RefresherStatsQuery
	GetAccount     *credpoolquery.GetAccountQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	accountReader credpoolquery.AccountReader
}

// WithAccountReader overrides the store used to serve account lookups.
func WithAccountReader(reader credpoolquery.AccountReader) FacadeOption {
	return func(options *facadeOptions) {
		options.accountReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("credpool: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.accountReader
	if reader == nil {
		reader = resolveAccountReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		MarkAccountError:   credpoolcommand.NewMarkAccountErrorCommand(service),
		MarkQuotaExhausted: credpoolcommand.NewMarkQuotaExhaustedCommand(service),
		BanAccount:         credpoolcommand.NewBanAccountCommand(service),
		RecordUsage:        credpoolcommand.NewRecordUsageCommand(service),
		ReloadPool:         credpoolcommand.NewReloadPoolCommand(service),
		RefreshAccount:     credpoolcommand.NewRefreshAccountCommand(service),
		RunRefreshCycle:    credpoolcommand.NewRunRefreshCycleCommand(service),
	}
	facade.queries = Queries{
		NextAccount:    credpoolquery.NewNextAccountQuery(service),
		ActiveAccounts: credpoolquery.NewActiveAccountsQuery(service),
		PoolStats:      credpoolquery.NewPoolStatsQuery(service),
		RefresherStats: credpoolquery.NewRefresherStatsQuery(service),
		GetAccount:     credpoolquery.NewGetAccountQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveAccountReader(service CommandQueryService) credpoolquery.AccountReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(credpoolquery.AccountReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		AccountStore() core.AccountStore
	})
	if !ok {
		return nil
	}
	store := provider.AccountStore()
	if store == nil {
		return nil
	}
	return store
}
