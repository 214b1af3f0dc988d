package sqlstore

import (
	"time"

	"github.com/goliatone/go-credpool/core"
	"github.com/uptrace/bun"
)

type accountRecord struct {
	bun.BaseModel `bun:"table:pool_accounts,alias:pa"`

	ID               string     `bun:"id,pk"`
	Email            string     `bun:"email,notnull"`
	IdentityProvider string     `bun:"identity_provider"`
	GroupID          string     `bun:"group_id"`
	AccessToken      string     `bun:"access_token"`
	RefreshToken     string     `bun:"refresh_token"`
	ClientID         string     `bun:"client_id"`
	ClientSecret     string     `bun:"client_secret"`
	Region           string     `bun:"region"`
	ExpiresAt        *time.Time `bun:"expires_at,nullzero"`
	AuthMethod       string     `bun:"auth_method,notnull"`
	Provider         string     `bun:"provider,notnull"`
	Status           string     `bun:"status,notnull"`
	LastError        string     `bun:"last_error"`
	LastCheckedAt    *time.Time `bun:"last_checked_at,nullzero"`
	Version          int64      `bun:"version,notnull"`
	UsageCount       int64      `bun:"usage_count,notnull"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt        *time.Time `bun:"deleted_at,soft_delete"`
}

func newAccountRecord(account *core.Account) *accountRecord {
	if account == nil {
		return nil
	}
	record := &accountRecord{
		ID:               account.ID,
		Email:            account.Email,
		IdentityProvider: account.IdentityProvider,
		GroupID:          account.GroupID,
		AccessToken:      account.AccessToken,
		RefreshToken:     account.RefreshToken,
		ClientID:         account.ClientID,
		ClientSecret:     account.ClientSecret,
		Region:           account.Region,
		AuthMethod:       account.AuthMethod,
		Provider:         account.Provider,
		Status:           string(account.Status),
		LastError:        account.LastError,
		Version:          account.Version,
		UsageCount:       account.UsageCount,
		CreatedAt:        account.CreatedAt,
		UpdatedAt:        account.UpdatedAt,
	}
	if !account.ExpiresAt.IsZero() {
		value := account.ExpiresAt.UTC()
		record.ExpiresAt = &value
	}
	if !account.LastCheckedAt.IsZero() {
		value := account.LastCheckedAt.UTC()
		record.LastCheckedAt = &value
	}
	return record
}

func (r *accountRecord) toDomain() *core.Account {
	if r == nil {
		return nil
	}
	account := &core.Account{
		ID:               r.ID,
		Email:            r.Email,
		IdentityProvider: r.IdentityProvider,
		GroupID:          r.GroupID,
		AccessToken:      r.AccessToken,
		RefreshToken:     r.RefreshToken,
		ClientID:         r.ClientID,
		ClientSecret:     r.ClientSecret,
		Region:           r.Region,
		AuthMethod:       r.AuthMethod,
		Provider:         r.Provider,
		Status:           core.AccountStatus(r.Status),
		LastError:        r.LastError,
		IsDeleted:        r.DeletedAt != nil,
		Version:          r.Version,
		UsageCount:       r.UsageCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		account.ExpiresAt = r.ExpiresAt.UTC()
	}
	if r.LastCheckedAt != nil {
		account.LastCheckedAt = r.LastCheckedAt.UTC()
	}
	return account
}

type rotationCursorRecord struct {
	bun.BaseModel `bun:"table:pool_round_robin,alias:prr"`

	ID           string    `bun:"id,pk"`
	GroupID      string    `bun:"group_id,notnull"`
	CurrentIndex int64     `bun:"current_index,notnull"`
	AccountCount int64     `bun:"account_count,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type lockLeaseRecord struct {
	bun.BaseModel `bun:"table:pool_locks,alias:pl"`

	Name        string    `bun:"name,pk"`
	HolderToken string    `bun:"holder_token,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
