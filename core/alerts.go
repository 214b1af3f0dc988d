package core

import (
	"context"
	"fmt"
	"time"
)

const (
	AlertTypeFailureRate = "refresh_failure_rate"
	AlertTypeAvgDuration = "refresh_avg_duration"
	AlertTypeRetryQueue  = "refresh_retry_queue"

	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

type NopAlertSink struct{}

func (NopAlertSink) Notify(context.Context, Alert) error { return nil }

var _ AlertSink = NopAlertSink{}

// evaluateAlerts compares a stats snapshot against the configured
// thresholds and returns the alerts to emit.
func evaluateAlerts(stats RefresherStats, cfg AlertsConfig) []Alert {
	var alerts []Alert

	if cfg.FailureRateThreshold > 0 && stats.FailureRate >= cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:         AlertTypeFailureRate,
			Severity:     AlertSeverityCritical,
			Message:      fmt.Sprintf("refresh failure rate %.2f exceeds threshold %.2f", stats.FailureRate, cfg.FailureRateThreshold),
			Threshold:    cfg.FailureRateThreshold,
			CurrentValue: stats.FailureRate,
		})
	}

	if cfg.AvgDurationMillis > 0 {
		avgMs := float64(stats.AvgDuration / time.Millisecond)
		if avgMs >= float64(cfg.AvgDurationMillis) {
			alerts = append(alerts, Alert{
				Type:         AlertTypeAvgDuration,
				Severity:     AlertSeverityWarning,
				Message:      fmt.Sprintf("average refresh duration %.0fms exceeds threshold %dms", avgMs, cfg.AvgDurationMillis),
				Threshold:    float64(cfg.AvgDurationMillis),
				CurrentValue: avgMs,
			})
		}
	}

	if cfg.RetryQueueThreshold > 0 && stats.RetryQueueSize >= cfg.RetryQueueThreshold {
		alerts = append(alerts, Alert{
			Type:         AlertTypeRetryQueue,
			Severity:     AlertSeverityWarning,
			Message:      fmt.Sprintf("retry queue size %d exceeds threshold %d", stats.RetryQueueSize, cfg.RetryQueueThreshold),
			Threshold:    float64(cfg.RetryQueueThreshold),
			CurrentValue: float64(stats.RetryQueueSize),
		})
	}
	return alerts
}
