package core

import (
	"fmt"
	"strings"
	"time"
)

type PoolConfig struct {
	Limit                 int  `koanf:"limit" mapstructure:"limit"`
	ErrorThreshold        int  `koanf:"error_threshold" mapstructure:"error_threshold"`
	CoolingPeriodSeconds  int  `koanf:"cooling_period_seconds" mapstructure:"cooling_period_seconds"`
	ReloadIntervalSeconds int  `koanf:"reload_interval_seconds" mapstructure:"reload_interval_seconds"`
	GroupRotation         bool `koanf:"group_rotation" mapstructure:"group_rotation"`
}

func (c PoolConfig) CoolingPeriod() time.Duration {
	return time.Duration(c.CoolingPeriodSeconds) * time.Second
}

func (c PoolConfig) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadIntervalSeconds) * time.Second
}

type RefresherConfig struct {
	// Disabled rather than Enabled so the zero value means "run", which
	// survives the zero-dropping option-layer merge.
	Disabled              bool `koanf:"disabled" mapstructure:"disabled"`
	CheckIntervalSeconds  int  `koanf:"check_interval_seconds" mapstructure:"check_interval_seconds"`
	LookAheadMinSeconds   int  `koanf:"look_ahead_min_seconds" mapstructure:"look_ahead_min_seconds"`
	LookAheadMaxSeconds   int  `koanf:"look_ahead_max_seconds" mapstructure:"look_ahead_max_seconds"`
	BatchSize             int  `koanf:"batch_size" mapstructure:"batch_size"`
	MaxRetryAttempts      int  `koanf:"max_retry_attempts" mapstructure:"max_retry_attempts"`
	RetryQueueCapacity    int  `koanf:"retry_queue_capacity" mapstructure:"retry_queue_capacity"`
	ActivePoolOnly        bool `koanf:"active_pool_only" mapstructure:"active_pool_only"`
	MinExpiresInSeconds   int  `koanf:"min_expires_in_seconds" mapstructure:"min_expires_in_seconds"`
	MaxExpiresInSeconds   int  `koanf:"max_expires_in_seconds" mapstructure:"max_expires_in_seconds"`
	DefaultExpiresSeconds int  `koanf:"default_expires_in_seconds" mapstructure:"default_expires_in_seconds"`
	AccountDelayMinMillis int  `koanf:"account_delay_min_millis" mapstructure:"account_delay_min_millis"`
	AccountDelayMaxMillis int  `koanf:"account_delay_max_millis" mapstructure:"account_delay_max_millis"`
	ShutdownGraceSeconds  int  `koanf:"shutdown_grace_seconds" mapstructure:"shutdown_grace_seconds"`
	DeadlockWindowSeconds int  `koanf:"deadlock_window_seconds" mapstructure:"deadlock_window_seconds"`
	DeadlockThreshold     int  `koanf:"deadlock_threshold" mapstructure:"deadlock_threshold"`
	LockTTLSeconds        int  `koanf:"lock_ttl_seconds" mapstructure:"lock_ttl_seconds"`
}

func (c RefresherConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

func (c RefresherConfig) LookAheadMin() time.Duration {
	return time.Duration(c.LookAheadMinSeconds) * time.Second
}

func (c RefresherConfig) LookAheadMax() time.Duration {
	return time.Duration(c.LookAheadMaxSeconds) * time.Second
}

func (c RefresherConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

func (c RefresherConfig) DeadlockWindow() time.Duration {
	return time.Duration(c.DeadlockWindowSeconds) * time.Second
}

func (c RefresherConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

type AlertsConfig struct {
	FailureRateThreshold float64 `koanf:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	AvgDurationMillis    int     `koanf:"avg_duration_millis" mapstructure:"avg_duration_millis"`
	RetryQueueThreshold  int     `koanf:"retry_queue_threshold" mapstructure:"retry_queue_threshold"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Pool        PoolConfig      `koanf:"pool" mapstructure:"pool"`
	Refresher   RefresherConfig `koanf:"refresher" mapstructure:"refresher"`
	Alerts      AlertsConfig    `koanf:"alerts" mapstructure:"alerts"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "credpool",
		Pool: PoolConfig{
			Limit:                 10,
			ErrorThreshold:        3,
			CoolingPeriodSeconds:  600,
			ReloadIntervalSeconds: 300,
		},
		Refresher: RefresherConfig{
			CheckIntervalSeconds:  60,
			LookAheadMinSeconds:   600,
			LookAheadMaxSeconds:   960,
			BatchSize:             10,
			MaxRetryAttempts:      3,
			RetryQueueCapacity:    50,
			MinExpiresInSeconds:   300,
			MaxExpiresInSeconds:   7200,
			DefaultExpiresSeconds: 3600,
			AccountDelayMinMillis: 500,
			AccountDelayMaxMillis: 2000,
			ShutdownGraceSeconds:  30,
			DeadlockWindowSeconds: 300,
			DeadlockThreshold:     3,
			LockTTLSeconds:        60,
		},
		Alerts: AlertsConfig{
			FailureRateThreshold: 0.5,
			AvgDurationMillis:    10000,
			RetryQueueThreshold:  20,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Pool.Limit < 1 {
		return fmt.Errorf("core: pool.limit must be at least 1")
	}
	if c.Pool.ErrorThreshold < 1 {
		return fmt.Errorf("core: pool.error_threshold must be at least 1")
	}
	if c.Pool.CoolingPeriodSeconds < 0 {
		return fmt.Errorf("core: pool.cooling_period_seconds must not be negative")
	}
	if c.Refresher.BatchSize < 1 {
		return fmt.Errorf("core: refresher.batch_size must be at least 1")
	}
	if c.Refresher.LookAheadMinSeconds < 0 || c.Refresher.LookAheadMaxSeconds < c.Refresher.LookAheadMinSeconds {
		return fmt.Errorf("core: refresher look-ahead band is invalid")
	}
	if c.Refresher.MaxRetryAttempts < 1 {
		return fmt.Errorf("core: refresher.max_retry_attempts must be at least 1")
	}
	if c.Refresher.RetryQueueCapacity < 1 {
		return fmt.Errorf("core: refresher.retry_queue_capacity must be at least 1")
	}
	if c.Refresher.MinExpiresInSeconds < 1 || c.Refresher.MaxExpiresInSeconds < c.Refresher.MinExpiresInSeconds {
		return fmt.Errorf("core: refresher expires-in bounds are invalid")
	}
	if c.Refresher.DefaultExpiresSeconds < c.Refresher.MinExpiresInSeconds ||
		c.Refresher.DefaultExpiresSeconds > c.Refresher.MaxExpiresInSeconds {
		return fmt.Errorf("core: refresher.default_expires_in_seconds must sit inside the sane bounds")
	}
	if c.Refresher.AccountDelayMaxMillis < c.Refresher.AccountDelayMinMillis {
		return fmt.Errorf("core: refresher account delay band is invalid")
	}
	if c.Refresher.DeadlockThreshold < 1 {
		return fmt.Errorf("core: refresher.deadlock_threshold must be at least 1")
	}
	if c.Alerts.FailureRateThreshold < 0 || c.Alerts.FailureRateThreshold > 1 {
		return fmt.Errorf("core: alerts.failure_rate_threshold must be within [0, 1]")
	}
	return nil
}
