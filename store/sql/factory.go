package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-credpool/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	accountStore  *AccountStore
	rotationStore *RotationStore
	lockStore     *LockStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.accountStore != nil && f.rotationStore != nil && f.lockStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) AccountStore() core.AccountStore {
	if f == nil || f.accountStore == nil {
		return nil
	}
	return f.accountStore
}

func (f *RepositoryFactory) RotationStore() core.RotationStore {
	if f == nil || f.rotationStore == nil {
		return nil
	}
	return f.rotationStore
}

func (f *RepositoryFactory) LockStore() core.LockStore {
	if f == nil || f.lockStore == nil {
		return nil
	}
	return f.lockStore
}

// Accounts exposes the concrete store so callers can seed rows through
// CreateAccount.
func (f *RepositoryFactory) Accounts() *AccountStore {
	if f == nil {
		return nil
	}
	return f.accountStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	accountStore, err := NewAccountStore(f.db)
	if err != nil {
		return err
	}
	f.accountStore = accountStore

	rotationStore, err := NewRotationStore(f.db)
	if err != nil {
		return err
	}
	f.rotationStore = rotationStore

	lockStore, err := NewLockStore(f.db)
	if err != nil {
		return err
	}
	f.lockStore = lockStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
