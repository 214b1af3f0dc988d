package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeBadInput        = "CREDPOOL_BAD_INPUT"
	ErrorCodeAccountNotFound = "CREDPOOL_ACCOUNT_NOT_FOUND"
	ErrorCodePoolExhausted   = "CREDPOOL_POOL_EXHAUSTED"
	ErrorCodePoolUnavailable = "CREDPOOL_POOL_UNAVAILABLE"
	ErrorCodeVersionConflict = "CREDPOOL_VERSION_CONFLICT"
	ErrorCodeRefreshLocked   = "CREDPOOL_REFRESH_LOCKED"
	ErrorCodeAccountBanned   = "CREDPOOL_ACCOUNT_BANNED"
	ErrorCodeRateLimited     = "CREDPOOL_RATE_LIMITED"
	ErrorCodeInternal        = "CREDPOOL_INTERNAL_ERROR"
)

var (
	// ErrVersionConflict signals an optimistic update raced a concurrent
	// writer; callers must re-read before retrying.
	ErrVersionConflict = errors.New("core: account version conflict")
	// ErrAccountNotFound signals the row does not exist or is deleted.
	ErrAccountNotFound = errors.New("core: account not found")
	// ErrPoolExhausted signals the active set is empty.
	ErrPoolExhausted = errors.New("core: account pool exhausted")
	// ErrPoolUnavailable signals the store is unreachable and no cache
	// snapshot has ever been populated.
	ErrPoolUnavailable = errors.New("core: account pool unavailable")
)

func poolErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePoolErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrPoolExhausted):
		return newPoolError(err.Error(), goerrors.CategoryConflict, ErrorCodePoolExhausted)
	case errors.Is(err, ErrPoolUnavailable):
		return newPoolError(err.Error(), goerrors.CategoryInternal, ErrorCodePoolUnavailable)
	case errors.Is(err, ErrVersionConflict):
		return newPoolError(err.Error(), goerrors.CategoryConflict, ErrorCodeVersionConflict)
	case errors.Is(err, ErrAccountNotFound):
		return newPoolError(err.Error(), goerrors.CategoryNotFound, ErrorCodeAccountNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "refresh lock"):
		return newPoolError(err.Error(), goerrors.CategoryConflict, ErrorCodeRefreshLocked)
	case strings.Contains(msg, "banned"):
		return newPoolError(err.Error(), goerrors.CategoryAuthz, ErrorCodeAccountBanned)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newPoolError(err.Error(), goerrors.CategoryRateLimit, ErrorCodeRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newPoolError(err.Error(), goerrors.CategoryBadInput, ErrorCodeBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePoolErrorEnvelope(mapped)
}

func newPoolError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensurePoolErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensurePoolErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = poolHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPoolTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultPoolTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeBadInput
	case goerrors.CategoryNotFound:
		return ErrorCodeAccountNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorCodeAccountBanned
	case goerrors.CategoryConflict:
		return ErrorCodeVersionConflict
	case goerrors.CategoryRateLimit:
		return ErrorCodeRateLimited
	default:
		return ErrorCodeInternal
	}
}

func poolHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
