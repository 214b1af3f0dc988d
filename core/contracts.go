package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ListAccountsFilter narrows an account listing. Zero value lists every
// non-deleted account.
type ListAccountsFilter struct {
	GroupID       string
	Statuses      []AccountStatus
	IncludeDelete bool
	Limit         int
}

// ExpiringAccountsQuery selects accounts whose credential expires before
// the threshold, soonest first.
type ExpiringAccountsQuery struct {
	Before          time.Time
	ExcludeStatuses []AccountStatus
	RestrictToIDs   []string
	Limit           int
}

// AccountStore is the persistence seam for account rows. All mutations go
// through UpdateWithVersion so lost updates surface as ErrVersionConflict.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	List(ctx context.Context, filter ListAccountsFilter) ([]*Account, error)
	ListExpiring(ctx context.Context, query ExpiringAccountsQuery) ([]*Account, error)
	UpdateWithVersion(ctx context.Context, account *Account, expectedVersion int64) (*Account, error)
}

// RotationStore advances the persisted round-robin cursor for a group.
type RotationStore interface {
	NextIndex(ctx context.Context, groupID string, liveCount int64) (int64, error)
}

// LockStore backs the lock manager with store-clock TTL leases.
type LockStore interface {
	Acquire(ctx context.Context, name string, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string, holder string) error
}

// RefreshResult is a successful provider refresh response. ExpiresIn is
// the provider-reported lifetime in seconds, validated before use.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Authenticator performs the provider-specific credential refresh.
type Authenticator interface {
	Refresh(ctx context.Context, account *Account) (RefreshResult, error)
}

// AuthenticatorRegistry resolves the authenticator for an account's
// provider key.
type AuthenticatorRegistry interface {
	Resolve(provider string) (Authenticator, error)
}

// Alert is a threshold breach reported to the external alerting sink.
type Alert struct {
	Type         string
	Severity     string
	Message      string
	Threshold    float64
	CurrentValue float64
}

type AlertSink interface {
	Notify(ctx context.Context, alert Alert) error
}

// Gate pauses refresh cycles externally, e.g. a business-hours window.
type Gate interface {
	Allow(now time.Time) bool
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SecretProvider resolves secret references (client secrets, signing keys)
// from an external secret backend.
type SecretProvider interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// StoreProvider exposes the stores a repository factory builds.
type StoreProvider interface {
	AccountStore() AccountStore
	RotationStore() RotationStore
	LockStore() LockStore
}

// RepositoryStoreFactory builds stores from a persistence client.
type RepositoryStoreFactory interface {
	BuildStores(client any) (StoreProvider, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
