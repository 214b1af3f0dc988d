package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the long-lived pool runtime constructed once at process
// start. It owns the account pool, the token refresher, and the lock
// manager, and is handed to collaborators by reference.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	accountStore      AccountStore
	rotationStore     RotationStore
	lockStore         LockStore
	lockManager       *LockManager
	registry          AuthenticatorRegistry
	gate              Gate
	alertSink         AlertSink
	pool              *accountPool
	refresher         *tokenRefresher
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("credpool", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("credpool"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.alertSink == nil {
		builder.alertSink = NopAlertSink{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if needsStores(builder) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				applyStoreProvider(&builder, storeProvider)
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			applyStoreProvider(&builder, storeProvider)
		}
	}

	if builder.accountStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: account store is required"))
	}
	if builder.lockStore == nil {
		builder.lockStore = NewMemoryLockStore()
	}

	lockManager := NewLockManager(builder.lockStore)
	pool := newAccountPool(finalConfig.Pool, builder.accountStore, builder.rotationStore, lockManager)
	refresher := newTokenRefresher(
		finalConfig.Refresher,
		finalConfig.Alerts,
		builder.accountStore,
		builder.registry,
		lockManager,
		pool,
		builder.gate,
		builder.alertSink,
		logger,
	)

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		accountStore:      builder.accountStore,
		rotationStore:     builder.rotationStore,
		lockStore:         builder.lockStore,
		lockManager:       lockManager,
		registry:          builder.registry,
		gate:              builder.gate,
		alertSink:         builder.alertSink,
		pool:              pool,
		refresher:         refresher,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func needsStores(builder serviceBuilder) bool {
	return builder.accountStore == nil || builder.rotationStore == nil || builder.lockStore == nil
}

func applyStoreProvider(builder *serviceBuilder, provider StoreProvider) {
	if builder.accountStore == nil {
		builder.accountStore = provider.AccountStore()
	}
	if builder.rotationStore == nil {
		builder.rotationStore = provider.RotationStore()
	}
	if builder.lockStore == nil {
		builder.lockStore = provider.LockStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) mapError(err error) error {
	if s == nil || err == nil {
		return err
	}
	if s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) LockManager() *LockManager {
	if s == nil {
		return nil
	}
	return s.lockManager
}

func (s *Service) AccountStore() AccountStore {
	if s == nil {
		return nil
	}
	return s.accountStore
}

// Start launches the refresher scheduler when enabled.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if s.config.Refresher.Disabled {
		s.logInfo(ctx, "refresher disabled by configuration", nil)
		return nil
	}
	return s.mapError(s.refresher.Start(ctx))
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.mapError(s.refresher.Shutdown(ctx))
}

// NextAccount returns one active account chosen by round-robin.
func (s *Service) NextAccount(ctx context.Context, groupID string) (*Account, error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()
	fields := map[string]any{"group_id": groupID}

	account, err := s.pool.NextAccount(ctx, groupID)
	if err != nil {
		err = s.mapError(err)
	} else {
		fields["account_id"] = account.ID
	}
	s.observeOperation(ctx, startedAt, "next_account", err, fields)
	return account, err
}

// MarkAccountError records a serving failure against the account and
// persists the reason. Demotion to cooling happens at the error
// threshold.
func (s *Service) MarkAccountError(ctx context.Context, id string, reason string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()
	fields := map[string]any{"account_id": id}

	err := s.pool.MarkError(id, reason)
	if err == nil {
		_, persistErr := MutateAccount(ctx, s.accountStore, id, 0, func(account *Account) error {
			account.LastError = strings.TrimSpace(reason)
			account.LastCheckedAt = time.Now().UTC()
			return nil
		})
		err = persistErr
	}
	err = s.mapError(err)
	s.observeOperation(ctx, startedAt, "mark_account_error", err, fields)
	return err
}

// MarkAccountQuotaExhausted pauses the account until its quota resets
// externally. The account is not banned and not retried this cycle.
func (s *Service) MarkAccountQuotaExhausted(ctx context.Context, id string, reason string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()
	fields := map[string]any{"account_id": id}

	err := s.pool.MarkQuotaExhausted(id, reason)
	if err == nil {
		_, persistErr := MutateAccount(ctx, s.accountStore, id, 0, func(account *Account) error {
			account.LastError = strings.TrimSpace(reason)
			account.LastCheckedAt = time.Now().UTC()
			return nil
		})
		err = persistErr
	}
	err = s.mapError(err)
	s.observeOperation(ctx, startedAt, "mark_account_quota_exhausted", err, fields)
	return err
}

// BanAccount removes the account permanently and persists the banned
// status.
func (s *Service) BanAccount(ctx context.Context, id string, reason string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()
	fields := map[string]any{"account_id": id}

	err := s.mapError(s.pool.Ban(ctx, id, reason))
	s.observeOperation(ctx, startedAt, "ban_account", err, fields)
	return err
}

// RecordUsage persists usage bookkeeping for an account.
func (s *Service) RecordUsage(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()
	fields := map[string]any{"account_id": id}

	err := s.mapError(s.pool.RecordUsage(ctx, id))
	s.observeOperation(ctx, startedAt, "record_usage", err, fields)
	return err
}

// ReloadPool rebuilds the in-process working set from the store.
func (s *Service) ReloadPool(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()

	err := s.mapError(s.pool.Reload(ctx))
	s.observeOperation(ctx, startedAt, "reload_pool", err, nil)
	return err
}

// ActiveAccountIDs lists the ids currently eligible for traffic.
func (s *Service) ActiveAccountIDs(_ context.Context) []string {
	if s == nil {
		return nil
	}
	return s.pool.ActiveAccountIDs()
}

func (s *Service) PoolStats(_ context.Context) PoolStats {
	if s == nil {
		return PoolStats{}
	}
	return s.pool.Stats()
}

func (s *Service) RefresherStats(_ context.Context) RefresherStats {
	if s == nil {
		return RefresherStats{}
	}
	return s.refresher.Stats()
}

// CheckAndRefresh runs one refresh cycle on demand.
func (s *Service) CheckAndRefresh(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()

	err := s.mapError(s.refresher.CheckAndRefresh(ctx))
	s.observeOperation(ctx, startedAt, "check_and_refresh", err, nil)
	return err
}

// RefreshAccount refreshes a single account under its lease. A held
// lease surfaces as a refresh-locked conflict so callers can back off.
func (s *Service) RefreshAccount(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	id = strings.TrimSpace(id)
	startedAt := time.Now()
	fields := map[string]any{"account_id": id}

	err := func() error {
		if id == "" {
			return fmt.Errorf("core: account id is required")
		}
		account, err := s.accountStore.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAccountNotFound
		}
		return s.refresher.RefreshNow(ctx, account)
	}()
	err = s.mapError(err)
	s.observeOperation(ctx, startedAt, "refresh_account", err, fields)
	return err
}
