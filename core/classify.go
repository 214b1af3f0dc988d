package core

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/lib/pq"
)

// FailureKind is the closed classification of a refresh failure. Every
// downstream decision (retry, demote, ban, batch-size adaptation) branches
// on this enum, never on raw error text.
type FailureKind string

const (
	FailureCredentialInvalid FailureKind = "credential_invalid"
	FailureTokenExpired      FailureKind = "token_expired"
	FailureNetworkError      FailureKind = "network_error"
	FailureRateLimit         FailureKind = "rate_limit"
	FailureServerError       FailureKind = "server_error"
	FailureDatabaseDeadlock  FailureKind = "database_deadlock"
	FailureBanned            FailureKind = "banned"
	FailureQuotaExhausted    FailureKind = "quota_exhausted"
	FailureUnknown           FailureKind = "unknown"
)

// RefreshError carries the structured outcome of a failed provider call so
// the classifier can branch on status codes before falling back to text.
type RefreshError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RefreshError) Error() string {
	if e == nil {
		return "core: refresh failed"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "refresh failed"
	}
	return msg
}

func (e *RefreshError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

const (
	pqCodeDeadlockDetected = "40P01"
	pqCodeLockNotAvailable = "55P03"
	pqCodeSerialization    = "40001"
)

// Classify maps a raw failure signal to a FailureKind. Structured errors
// are inspected first (rich envelopes, driver codes, net timeouts, HTTP
// status), then known message substrings.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqCodeDeadlockDetected, pqCodeLockNotAvailable, pqCodeSerialization:
			return FailureDatabaseDeadlock
		}
	}

	var refreshErr *RefreshError
	if errors.As(err, &refreshErr) {
		switch {
		case refreshErr.StatusCode == 401 || refreshErr.StatusCode == 403:
			if kind := classifyMessage(refreshErr.Error()); kind == FailureBanned {
				return FailureBanned
			}
			return FailureCredentialInvalid
		case refreshErr.StatusCode == 429:
			return FailureRateLimit
		case refreshErr.StatusCode >= 500:
			return FailureServerError
		}
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz:
			return FailureCredentialInvalid
		case goerrors.CategoryRateLimit:
			return FailureRateLimit
		case goerrors.CategoryExternal:
			return FailureServerError
		}
		switch strings.TrimSpace(strings.ToUpper(richErr.TextCode)) {
		case "TOKEN_EXPIRED":
			return FailureTokenExpired
		case "QUOTA_EXHAUSTED":
			return FailureQuotaExhausted
		case "BANNED":
			return FailureBanned
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetworkError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetworkError
	}

	return classifyMessage(err.Error())
}

func classifyMessage(message string) FailureKind {
	msg := strings.ToLower(strings.TrimSpace(message))
	switch {
	case strings.Contains(msg, "banned"),
		strings.Contains(msg, "account suspended"),
		strings.Contains(msg, "account disabled"):
		return FailureBanned
	case strings.Contains(msg, "quota exceeded"),
		strings.Contains(msg, "quota exhausted"),
		strings.Contains(msg, "insufficient_quota"):
		return FailureQuotaExhausted
	case strings.Contains(msg, "invalid_grant"),
		strings.Contains(msg, "invalid_client"),
		strings.Contains(msg, "unauthorized_client"),
		strings.Contains(msg, "token has been expired or revoked"),
		strings.Contains(msg, "revoked"),
		strings.Contains(msg, "invalid refresh token"):
		return FailureCredentialInvalid
	case strings.Contains(msg, "token expired"),
		strings.Contains(msg, "access token is expired"):
		return FailureTokenExpired
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "lock wait timeout"):
		return FailureDatabaseDeadlock
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "throttl"):
		return FailureRateLimit
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "econnrefused"),
		strings.Contains(msg, "econnreset"):
		return FailureNetworkError
	case strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "gateway timeout"),
		strings.Contains(msg, "server error"):
		return FailureServerError
	default:
		return FailureUnknown
	}
}

// Retryable reports whether the refresher should queue a retry for the
// classified failure. Unknown defaults to non-retryable so new failure
// modes surface instead of masquerading as transient.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureTokenExpired, FailureNetworkError, FailureRateLimit, FailureServerError, FailureDatabaseDeadlock:
		return true
	default:
		return false
	}
}

// RetryDelay is the per-kind wait before a retry attempt.
func (k FailureKind) RetryDelay() time.Duration {
	switch k {
	case FailureTokenExpired:
		return 1 * time.Second
	case FailureDatabaseDeadlock:
		return 2 * time.Second
	case FailureNetworkError:
		return 5 * time.Second
	case FailureServerError:
		return 15 * time.Second
	case FailureRateLimit:
		return 60 * time.Second
	default:
		return 0
	}
}

// Category maps the failure kind to a rich-error category for boundary
// envelopes.
func (k FailureKind) Category() goerrors.Category {
	switch k {
	case FailureCredentialInvalid, FailureBanned:
		return goerrors.CategoryAuth
	case FailureRateLimit, FailureQuotaExhausted:
		return goerrors.CategoryRateLimit
	case FailureNetworkError, FailureServerError:
		return goerrors.CategoryExternal
	case FailureDatabaseDeadlock:
		return goerrors.CategoryConflict
	default:
		return goerrors.CategoryInternal
	}
}
