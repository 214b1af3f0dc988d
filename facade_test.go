package credpool

import (
	"context"
	"testing"

	credpoolcommand "github.com/goliatone/go-credpool/command"
	"github.com/goliatone/go-credpool/core"
	credpoolquery "github.com/goliatone/go-credpool/query"
)

type stubPoolService struct {
	marked   []string
	banned   []string
	reloaded int
	store    core.AccountStore
}

func (s *stubPoolService) MarkAccountError(_ context.Context, id string, _ string) error {
	s.marked = append(s.marked, id)
	return nil
}

func (s *stubPoolService) MarkAccountQuotaExhausted(context.Context, string, string) error {
	return nil
}

func (s *stubPoolService) BanAccount(_ context.Context, id string, _ string) error {
	s.banned = append(s.banned, id)
	return nil
}

func (s *stubPoolService) RecordUsage(context.Context, string) error { return nil }

func (s *stubPoolService) ReloadPool(context.Context) error {
	s.reloaded++
	return nil
}

func (s *stubPoolService) RefreshAccount(context.Context, string) error { return nil }
func (s *stubPoolService) CheckAndRefresh(context.Context) error        { return nil }

func (s *stubPoolService) NextAccount(context.Context, string) (*core.Account, error) {
	return &core.Account{ID: "acc-1"}, nil
}

func (s *stubPoolService) ActiveAccountIDs(context.Context) []string { return []string{"acc-1"} }

func (s *stubPoolService) PoolStats(context.Context) core.PoolStats {
	return core.PoolStats{ActiveCount: 1}
}

func (s *stubPoolService) RefresherStats(context.Context) core.RefresherStats {
	return core.RefresherStats{}
}

func (s *stubPoolService) AccountStore() core.AccountStore { return s.store }

type stubAccountReader struct {
	lastID string
}

func (r *stubAccountReader) GetByID(_ context.Context, id string) (*core.Account, error) {
	r.lastID = id
	return &core.Account{ID: id}, nil
}

func TestNewFacadeWiresCommandsAndQueries(t *testing.T) {
	service := &stubPoolService{}
	facade, err := NewFacade(service)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.MarkAccountError == nil || commands.BanAccount == nil || commands.ReloadPool == nil ||
		commands.RecordUsage == nil || commands.RefreshAccount == nil || commands.RunRefreshCycle == nil ||
		commands.MarkQuotaExhausted == nil {
		t.Fatalf("expected every command handler wired")
	}
	queries := facade.Queries()
	if queries.NextAccount == nil || queries.ActiveAccounts == nil || queries.PoolStats == nil ||
		queries.RefresherStats == nil || queries.GetAccount == nil {
		t.Fatalf("expected every query handler wired")
	}

	if facade.Service() == nil {
		t.Fatalf("expected service accessor")
	}

	ctx := context.Background()
	if err := commands.BanAccount.Execute(ctx, credpoolcommand.BanAccountMessage{
		AccountID: "acc-1",
		Reason:    "abuse",
	}); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if len(service.banned) != 1 || service.banned[0] != "acc-1" {
		t.Fatalf("expected ban delegation, got %v", service.banned)
	}

	account, err := queries.NextAccount.Query(ctx, credpoolquery.NextAccountMessage{GroupID: "default"})
	if err != nil || account == nil || account.ID != "acc-1" {
		t.Fatalf("expected next account delegation, got %v / %v", account, err)
	}
	stats, err := queries.PoolStats.Query(ctx, credpoolquery.PoolStatsMessage{})
	if err != nil || stats.ActiveCount != 1 {
		t.Fatalf("expected pool stats delegation, got %+v / %v", stats, err)
	}
}

func TestNewFacadeResolvesAccountReader(t *testing.T) {
	ctx := context.Background()

	explicit := &stubAccountReader{}
	facade, err := NewFacade(&stubPoolService{}, WithAccountReader(explicit))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if _, err := facade.Queries().GetAccount.Query(ctx, credpoolquery.GetAccountMessage{AccountID: "acc-9"}); err != nil {
		t.Fatalf("get account: %v", err)
	}
	if explicit.lastID != "acc-9" {
		t.Fatalf("expected explicit reader to win, got %q", explicit.lastID)
	}

	// Falls back to the service's account store accessor.
	fallback := &stubAccountReader{}
	facade, err = NewFacade(&stubPoolService{store: accountStoreFromReader{fallback}})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if _, err := facade.Queries().GetAccount.Query(ctx, credpoolquery.GetAccountMessage{AccountID: "acc-2"}); err != nil {
		t.Fatalf("get account via store: %v", err)
	}
	if fallback.lastID != "acc-2" {
		t.Fatalf("expected store-backed reader, got %q", fallback.lastID)
	}
}

func TestNewFacadeRequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected nil service to be rejected")
	}
}

// accountStoreFromReader adapts the test reader to the full store
// contract so it can stand in for Service.AccountStore().
type accountStoreFromReader struct {
	reader *stubAccountReader
}

func (s accountStoreFromReader) GetByID(ctx context.Context, id string) (*core.Account, error) {
	return s.reader.GetByID(ctx, id)
}

func (s accountStoreFromReader) List(context.Context, core.ListAccountsFilter) ([]*core.Account, error) {
	return nil, nil
}

func (s accountStoreFromReader) ListExpiring(context.Context, core.ExpiringAccountsQuery) ([]*core.Account, error) {
	return nil, nil
}

func (s accountStoreFromReader) UpdateWithVersion(_ context.Context, account *core.Account, _ int64) (*core.Account, error) {
	return account, nil
}
