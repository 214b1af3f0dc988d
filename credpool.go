package credpool

import "github.com/goliatone/go-credpool/core"

type Config = core.Config

type PoolConfig = core.PoolConfig

type RefresherConfig = core.RefresherConfig

type AlertsConfig = core.AlertsConfig

type Option = core.Option

type Service = core.Service

type Account = core.Account
type AccountStatus = core.AccountStatus
type PoolStats = core.PoolStats
type RefresherStats = core.RefresherStats
type RefreshResult = core.RefreshResult
type FailureKind = core.FailureKind

type AccountStore = core.AccountStore
type RotationStore = core.RotationStore
type LockStore = core.LockStore
type Authenticator = core.Authenticator
type AuthenticatorRegistry = core.AuthenticatorRegistry
type SecretProvider = core.SecretProvider
type AlertSink = core.AlertSink
type Gate = core.Gate
type MetricsRecorder = core.MetricsRecorder

type LockManager = core.LockManager
type LockOutcome = core.LockOutcome

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorFactory          = core.WithErrorFactory
	WithErrorMapper           = core.WithErrorMapper
	WithSecretProvider        = core.WithSecretProvider
	WithPersistenceClient     = core.WithPersistenceClient
	WithRepositoryFactory     = core.WithRepositoryFactory
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithAccountStore          = core.WithAccountStore
	WithRotationStore         = core.WithRotationStore
	WithLockStore             = core.WithLockStore
	WithAuthenticatorRegistry = core.WithAuthenticatorRegistry
	WithGate                  = core.WithGate
	WithAlertSink             = core.WithAlertSink
)

var (
	ErrAccountNotFound = core.ErrAccountNotFound
	ErrVersionConflict = core.ErrVersionConflict
	ErrPoolExhausted   = core.ErrPoolExhausted
	ErrPoolUnavailable = core.ErrPoolUnavailable
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

func NewProviderRegistry() *core.ProviderRegistry {
	return core.NewProviderRegistry()
}
