package core

import (
	"context"
	"fmt"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
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
	registry          AuthenticatorRegistry
	gate              Gate
	alertSink         AlertSink
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithAccountStore(store AccountStore) Option {
	return func(b *serviceBuilder) {
		b.accountStore = store
	}
}

func WithRotationStore(store RotationStore) Option {
	return func(b *serviceBuilder) {
		b.rotationStore = store
	}
}

func WithLockStore(store LockStore) Option {
	return func(b *serviceBuilder) {
		b.lockStore = store
	}
}

func WithAuthenticatorRegistry(registry AuthenticatorRegistry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithGate(gate Gate) Option {
	return func(b *serviceBuilder) {
		b.gate = gate
	}
}

func WithAlertSink(sink AlertSink) Option {
	return func(b *serviceBuilder) {
		b.alertSink = sink
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("credpool", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		registry:        NewProviderRegistry(),
		alertSink:       NopAlertSink{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return poolErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key string, value string) {
		if includeZero || value != "" {
			layer[key] = value
		}
	}
	setString("service_name", cfg.ServiceName)

	pool := map[string]any{}
	setInt(pool, includeZero, "limit", cfg.Pool.Limit)
	setInt(pool, includeZero, "error_threshold", cfg.Pool.ErrorThreshold)
	setInt(pool, includeZero, "cooling_period_seconds", cfg.Pool.CoolingPeriodSeconds)
	setInt(pool, includeZero, "reload_interval_seconds", cfg.Pool.ReloadIntervalSeconds)
	setBool(pool, includeZero, "group_rotation", cfg.Pool.GroupRotation)
	if len(pool) > 0 {
		layer["pool"] = pool
	}

	refresher := map[string]any{}
	setBool(refresher, includeZero, "disabled", cfg.Refresher.Disabled)
	setInt(refresher, includeZero, "check_interval_seconds", cfg.Refresher.CheckIntervalSeconds)
	setInt(refresher, includeZero, "look_ahead_min_seconds", cfg.Refresher.LookAheadMinSeconds)
	setInt(refresher, includeZero, "look_ahead_max_seconds", cfg.Refresher.LookAheadMaxSeconds)
	setInt(refresher, includeZero, "batch_size", cfg.Refresher.BatchSize)
	setInt(refresher, includeZero, "max_retry_attempts", cfg.Refresher.MaxRetryAttempts)
	setInt(refresher, includeZero, "retry_queue_capacity", cfg.Refresher.RetryQueueCapacity)
	setBool(refresher, includeZero, "active_pool_only", cfg.Refresher.ActivePoolOnly)
	setInt(refresher, includeZero, "min_expires_in_seconds", cfg.Refresher.MinExpiresInSeconds)
	setInt(refresher, includeZero, "max_expires_in_seconds", cfg.Refresher.MaxExpiresInSeconds)
	setInt(refresher, includeZero, "default_expires_in_seconds", cfg.Refresher.DefaultExpiresSeconds)
	setInt(refresher, includeZero, "account_delay_min_millis", cfg.Refresher.AccountDelayMinMillis)
	setInt(refresher, includeZero, "account_delay_max_millis", cfg.Refresher.AccountDelayMaxMillis)
	setInt(refresher, includeZero, "shutdown_grace_seconds", cfg.Refresher.ShutdownGraceSeconds)
	setInt(refresher, includeZero, "deadlock_window_seconds", cfg.Refresher.DeadlockWindowSeconds)
	setInt(refresher, includeZero, "deadlock_threshold", cfg.Refresher.DeadlockThreshold)
	setInt(refresher, includeZero, "lock_ttl_seconds", cfg.Refresher.LockTTLSeconds)
	if len(refresher) > 0 {
		layer["refresher"] = refresher
	}

	alerts := map[string]any{}
	if includeZero || cfg.Alerts.FailureRateThreshold != 0 {
		alerts["failure_rate_threshold"] = cfg.Alerts.FailureRateThreshold
	}
	setInt(alerts, includeZero, "avg_duration_millis", cfg.Alerts.AvgDurationMillis)
	setInt(alerts, includeZero, "retry_queue_threshold", cfg.Alerts.RetryQueueThreshold)
	if len(alerts) > 0 {
		layer["alerts"] = alerts
	}

	return layer
}

func setInt(layer map[string]any, includeZero bool, key string, value int) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func setBool(layer map[string]any, includeZero bool, key string, value bool) {
	if includeZero || value {
		layer[key] = value
	}
}
