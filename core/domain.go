package core

import (
	"fmt"
	"strings"
	"time"
)

// AccountStatus is the persisted lifecycle state of a pooled account.
type AccountStatus string

const (
	AccountStatusActive     AccountStatus = "active"
	AccountStatusError      AccountStatus = "error"
	AccountStatusBanned     AccountStatus = "banned"
	AccountStatusRefreshing AccountStatus = "refreshing"
	AccountStatusUnknown    AccountStatus = "unknown"
)

var accountStatusTransitions = map[AccountStatus][]AccountStatus{
	AccountStatusUnknown:    {AccountStatusActive, AccountStatusError, AccountStatusBanned},
	AccountStatusActive:     {AccountStatusRefreshing, AccountStatusError, AccountStatusBanned},
	AccountStatusRefreshing: {AccountStatusActive, AccountStatusError, AccountStatusBanned},
	AccountStatusError:      {AccountStatusActive, AccountStatusRefreshing, AccountStatusBanned},
	AccountStatusBanned:     {},
}

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusError, AccountStatusBanned, AccountStatusRefreshing, AccountStatusUnknown:
		return true
	default:
		return false
	}
}

// TransitionTo reports whether the move from s to next is allowed.
// Banned is terminal.
func (s AccountStatus) TransitionTo(next AccountStatus) error {
	if s == next {
		return nil
	}
	for _, allowed := range accountStatusTransitions[s] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("core: account status transition %q -> %q is not allowed", s, next)
}

// Account is the identity/credential/usage record shared by every process.
// Version implements optimistic concurrency: every mutating write is
// conditioned on the last-seen value and bumps it atomically.
type Account struct {
	ID               string
	Email            string
	IdentityProvider string
	GroupID          string

	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	Region       string
	ExpiresAt    time.Time
	AuthMethod   string
	Provider     string

	Status        AccountStatus
	LastError     string
	LastCheckedAt time.Time
	IsDeleted     bool
	Version       int64
	UsageCount    int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	copied := *a
	return &copied
}

// TokenExpiresWithin reports whether the credential expires before now+window.
func (a *Account) TokenExpiresWithin(now time.Time, window time.Duration) bool {
	if a == nil || a.ExpiresAt.IsZero() {
		return true
	}
	return a.ExpiresAt.Before(now.Add(window))
}

// RepairReport summarizes what NormalizeAccount had to fix on load.
type RepairReport struct {
	Repairs    []string
	Incomplete bool
}

func (r RepairReport) Repaired() bool {
	return len(r.Repairs) > 0
}

const (
	defaultAuthMethod = "oauth"
	defaultProvider   = "default"
)

// NormalizeAccount validates a record loaded from the store and repairs
// what it can in place. Missing identity fields mark the record incomplete
// rather than discarding it; callers decide whether to pool it.
func NormalizeAccount(account *Account) RepairReport {
	report := RepairReport{}
	if account == nil {
		report.Incomplete = true
		return report
	}

	account.ID = strings.TrimSpace(account.ID)
	account.Email = strings.TrimSpace(account.Email)
	if account.ID == "" || account.Email == "" {
		report.Incomplete = true
	}

	if !account.Status.Valid() {
		account.Status = AccountStatusUnknown
		report.Repairs = append(report.Repairs, "status")
	}
	if strings.TrimSpace(account.AuthMethod) == "" {
		account.AuthMethod = defaultAuthMethod
		report.Repairs = append(report.Repairs, "auth_method")
	}
	if strings.TrimSpace(account.Provider) == "" {
		account.Provider = defaultProvider
		report.Repairs = append(report.Repairs, "provider")
	}
	if account.Version < 1 {
		account.Version = 1
		report.Repairs = append(report.Repairs, "version")
	}
	if strings.TrimSpace(account.RefreshToken) == "" {
		report.Incomplete = true
	}
	return report
}

// RotationCursor is the persisted round-robin pointer for one group.
type RotationCursor struct {
	GroupID      string
	CurrentIndex int64
	AccountCount int64
	UpdatedAt    time.Time
}

// LockLease is a TTL-bounded exclusive claim on a named resource. Expiry
// is enforced by the store's clock so a crashed holder cannot wedge the
// lock.
type LockLease struct {
	Name        string
	HolderToken string
	ExpiresAt   time.Time
}

// PoolEntry tracks one account in the active serving set. In-memory only.
type PoolEntry struct {
	AccountID   string
	AddedAt     time.Time
	ErrorCount  int
	LastErrorAt time.Time
}

// CoolingEntry tracks one quarantined account until its cooling period
// elapses. In-memory only.
type CoolingEntry struct {
	AccountID      string
	CoolingStartAt time.Time
	ErrorCount     int
	LastError      string
}

// RetryEntry is a pending re-attempt for a failed refresh. Never
// persisted: a restart drops it and the next scan rediscovers the account.
type RetryEntry struct {
	AccountID     string
	Attempts      int
	NextRetryTime time.Time
	Kind          FailureKind
	LastError     string
}
