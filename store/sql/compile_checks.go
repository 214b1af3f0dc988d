package sqlstore

import "github.com/goliatone/go-credpool/core"

var (
	_ core.AccountStore           = (*AccountStore)(nil)
	_ core.AccountStore           = (*CachedAccountStore)(nil)
	_ core.RotationStore          = (*RotationStore)(nil)
	_ core.LockStore              = (*LockStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
