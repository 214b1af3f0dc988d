package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memAccountStore struct {
	mu        sync.Mutex
	rows      map[string]*Account
	listErr   error
	getErr    error
	updateErr error
	updates   int
}

func newMemAccountStore(accounts ...*Account) *memAccountStore {
	store := &memAccountStore{rows: make(map[string]*Account)}
	for _, account := range accounts {
		store.rows[account.ID] = account.Clone()
	}
	return store
}

func (s *memAccountStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	row, ok := s.rows[strings.TrimSpace(id)]
	if !ok || row.IsDeleted {
		return nil, ErrAccountNotFound
	}
	return row.Clone(), nil
}

func (s *memAccountStore) List(_ context.Context, filter ListAccountsFilter) ([]*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	var out []*Account
	for _, row := range s.rows {
		if row.IsDeleted && !filter.IncludeDelete {
			continue
		}
		if filter.GroupID != "" && row.GroupID != filter.GroupID {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(row.Status, filter.Statuses) {
			continue
		}
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memAccountStore) ListExpiring(_ context.Context, query ExpiringAccountsQuery) ([]*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	restrict := map[string]struct{}{}
	for _, id := range query.RestrictToIDs {
		restrict[id] = struct{}{}
	}

	var out []*Account
	for _, row := range s.rows {
		if row.IsDeleted {
			continue
		}
		if statusIn(row.Status, query.ExcludeStatuses) {
			continue
		}
		if !row.ExpiresAt.Before(query.Before) {
			continue
		}
		if len(restrict) > 0 {
			if _, ok := restrict[row.ID]; !ok {
				continue
			}
		}
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (s *memAccountStore) UpdateWithVersion(_ context.Context, account *Account, expectedVersion int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}

	row, ok := s.rows[account.ID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if row.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	next := account.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()
	s.rows[account.ID] = next
	s.updates++
	return next.Clone(), nil
}

func (s *memAccountStore) row(id string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	return row.Clone()
}

func statusIn(status AccountStatus, statuses []AccountStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func testAccount(id string, status AccountStatus, expiresAt time.Time) *Account {
	return &Account{
		ID:           id,
		Email:        id + "@example.com",
		AccessToken:  "at-" + id,
		RefreshToken: "rt-" + id,
		Provider:     defaultProvider,
		AuthMethod:   defaultAuthMethod,
		Status:       status,
		ExpiresAt:    expiresAt,
		Version:      1,
	}
}

// scriptedAuthenticator replays refresh outcomes per account in order.
type scriptedAuthenticator struct {
	mu      sync.Mutex
	results map[string][]scriptedResult
	calls   []string
}

type scriptedResult struct {
	result RefreshResult
	err    error
}

func newScriptedAuthenticator() *scriptedAuthenticator {
	return &scriptedAuthenticator{results: make(map[string][]scriptedResult)}
}

func (a *scriptedAuthenticator) succeed(id string, expiresIn int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[id] = append(a.results[id], scriptedResult{result: RefreshResult{
		AccessToken:  "new-at-" + id,
		RefreshToken: "new-rt-" + id,
		ExpiresIn:    expiresIn,
	}})
}

func (a *scriptedAuthenticator) fail(id string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[id] = append(a.results[id], scriptedResult{err: err})
}

func (a *scriptedAuthenticator) Refresh(_ context.Context, account *Account) (RefreshResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, account.ID)

	queue := a.results[account.ID]
	if len(queue) == 0 {
		return RefreshResult{}, fmt.Errorf("no scripted result for %s", account.ID)
	}
	next := queue[0]
	a.results[account.ID] = queue[1:]
	return next.result, next.err
}

func (a *scriptedAuthenticator) callCount(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for _, call := range a.calls {
		if call == id {
			count++
		}
	}
	return count
}

type staticRegistry struct {
	authenticator Authenticator
}

func (r staticRegistry) Resolve(string) (Authenticator, error) {
	if r.authenticator == nil {
		return nil, fmt.Errorf("no authenticator configured")
	}
	return r.authenticator, nil
}

type capturingAlertSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (s *capturingAlertSink) Notify(_ context.Context, alert Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

type staticGate struct {
	allow bool
}

func (g staticGate) Allow(time.Time) bool { return g.allow }
