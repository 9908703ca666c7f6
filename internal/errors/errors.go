package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode 错误码
type ErrorCode int

// 系统错误 (1000-1999)
const (
	ErrInternal ErrorCode = 1000 + iota
	ErrStoreUnavailable
)

// 认证错误 (2000-2999)
const (
	ErrUnauthorized ErrorCode = 2000 + iota
	ErrForbidden
	ErrInvalidCredentials
)

// 请求错误 (3000-3999)
const (
	ErrBadRequest ErrorCode = 3000 + iota
	ErrNotFound
	ErrResourceExists
	ErrMutationInFlight
)

// 准入与审核错误 (4000-4999)
const (
	ErrRateLimitExceeded ErrorCode = 4000 + iota
	ErrQuotaExceeded
	ErrInvalidTransition
	ErrMissingReason
	ErrConflictingTransition
)

// AppError 应用错误；Details 带上可直接展示给用户的计数/阈值/时间
type AppError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// With 追加展示细节
func (e *AppError) With(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// CodeOf 取错误码，非 AppError 视为内部错误，nil 返回 0
func CodeOf(err error) ErrorCode {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func RateLimitExceeded(action string, window time.Duration, count, max int64, next time.Time) *AppError {
	return New(ErrRateLimitExceeded,
		fmt.Sprintf("too many %s actions: %d of %d allowed in %s, try again at %s",
			action, count, max, window, next.Format(time.RFC3339))).
		With("action", action).
		With("window", window.String()).
		With("count", count).
		With("max", max).
		With("next_available_at", next)
}

func QuotaExceeded(tier string, limit, used int64, resetAt time.Time) *AppError {
	return New(ErrQuotaExceeded,
		fmt.Sprintf("daily upload quota reached for tier %s (%d of %d used), resets at %s",
			tier, used, limit, resetAt.Format(time.RFC3339))).
		With("tier", tier).
		With("daily_limit", limit).
		With("used_today", used).
		With("remaining_today", 0).
		With("reset_at", resetAt)
}

func NotFound(what string, id uint64) *AppError {
	return New(ErrNotFound, fmt.Sprintf("%s %d not found", what, id)).With("id", id)
}

func InvalidTransition(action string, from string) *AppError {
	return New(ErrInvalidTransition, fmt.Sprintf("cannot %s an item in state %s", action, from)).
		With("action", action).
		With("state", from)
}

func MissingReason(action string) *AppError {
	return New(ErrMissingReason, fmt.Sprintf("a reason is required to %s", action)).With("action", action)
}

func ConflictingTransition(id uint64) *AppError {
	return New(ErrConflictingTransition, "someone else already moderated this item").With("id", id)
}

func StoreUnavailable(err error) *AppError {
	return Wrap(ErrStoreUnavailable, "storage temporarily unavailable", err)
}

func MutationInFlight(id uint64) *AppError {
	return New(ErrMutationInFlight, "another change to this item is still in progress").With("id", id)
}

func BadRequest(message string) *AppError {
	return New(ErrBadRequest, message)
}

func Forbidden(message string) *AppError {
	return New(ErrForbidden, message)
}

func Unauthorized(message string) *AppError {
	return New(ErrUnauthorized, message)
}

func InvalidCredentials() *AppError {
	return New(ErrInvalidCredentials, "invalid username or password")
}

func ResourceExists(message string) *AppError {
	return New(ErrResourceExists, message)
}

func Internal(err error) *AppError {
	return Wrap(ErrInternal, "internal server error", err)
}
