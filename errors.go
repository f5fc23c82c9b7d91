package trialpay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies errors for callers that map them onto transports.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindInvalidState Kind = "invalid_state"
	KindNotFound     Kind = "not_found"
	KindRateLimited  Kind = "rate_limited"
	KindExhausted    Kind = "exhausted"
	KindPrecondition Kind = "precondition_failed"
	KindUnavailable  Kind = "unavailable"
)

// Error is the error type returned by the engine and the stores. Code is
// stable and machine-readable; Message is meant for humans.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "trialpay: " + e.Message + ": " + e.Err.Error()
	}
	return "trialpay: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels (no code) by kind and coded sentinels by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Code == e.Code
}

// with returns a copy of a coded sentinel carrying a more specific message.
func (e *Error) with(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// wrap returns a copy of a coded sentinel with cause err.
func (e *Error) wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// Kind sentinels. errors.Is(err, ErrNotFound) holds for every not-found error.
var (
	ErrValidation   = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrConflict     = &Error{Kind: KindConflict, Message: "conflict"}
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	ErrRateLimited  = &Error{Kind: KindRateLimited, Message: "rate limited"}
	ErrExhausted    = &Error{Kind: KindExhausted, Message: "exhausted"}
	ErrUnavailable  = &Error{Kind: KindUnavailable, Message: "unavailable"}
)

var (
	// Validation errors
	ErrInvalidInput     = &Error{Kind: KindValidation, Code: "INVALID_INPUT", Message: "invalid input"}
	ErrInvalidDuration  = &Error{Kind: KindValidation, Code: "INVALID_DURATION", Message: "duration must be between 1 and 365 days"}
	ErrInvalidSource    = &Error{Kind: KindValidation, Code: "INVALID_SOURCE", Message: "unknown grace period source"}
	ErrInvalidPromoCode = &Error{Kind: KindValidation, Code: "INVALID_PROMO_CODE", Message: "invalid promo code definition"}

	// Conflict errors
	ErrAlreadyExists           = &Error{Kind: KindConflict, Code: "ALREADY_EXISTS", Message: "already exists"}
	ErrActiveGracePeriodExists = &Error{Kind: KindConflict, Code: "ACTIVE_GRACE_PERIOD_EXISTS", Message: "user already has an active grace period"}
	ErrDuplicatePromoCode      = &Error{Kind: KindConflict, Code: "DUPLICATE_PROMO_CODE", Message: "promo code already exists"}
	ErrDuplicatePlan           = &Error{Kind: KindConflict, Code: "DUPLICATE_PLAN", Message: "plan slug already exists"}
	ErrConcurrentUpdate        = &Error{Kind: KindConflict, Code: "CONCURRENT_UPDATE", Message: "record was modified concurrently, retry"}

	// State errors
	ErrGracePeriodNotActive = &Error{Kind: KindInvalidState, Code: "GRACE_PERIOD_NOT_ACTIVE", Message: "grace period is not active"}
	ErrGracePeriodConverted = &Error{Kind: KindInvalidState, Code: "GRACE_PERIOD_CONVERTED", Message: "a converted grace period cannot be cancelled"}
	ErrPlanNotPurchasable   = &Error{Kind: KindInvalidState, Code: "PLAN_NOT_PURCHASABLE", Message: "plan is archived"}

	// Not found errors
	ErrGracePeriodNotFound    = &Error{Kind: KindNotFound, Code: "GRACE_PERIOD_NOT_FOUND", Message: "grace period not found"}
	ErrPromoCodeNotFound      = &Error{Kind: KindNotFound, Code: "PROMO_CODE_NOT_FOUND", Message: "promo code not found"}
	ErrPromoCodeUsageNotFound = &Error{Kind: KindNotFound, Code: "PROMO_CODE_USAGE_NOT_FOUND", Message: "promo code usage not found"}
	ErrSubscriptionNotFound   = &Error{Kind: KindNotFound, Code: "SUBSCRIPTION_NOT_FOUND", Message: "subscription not found"}
	ErrPlanNotFound           = &Error{Kind: KindNotFound, Code: "PLAN_NOT_FOUND", Message: "plan not found"}
	ErrTenantNotFound         = &Error{Kind: KindNotFound, Code: "TENANT_NOT_FOUND", Message: "tenant not found"}

	// Promo limit errors
	ErrPromoCodeExhausted  = &Error{Kind: KindExhausted, Code: "CODE_EXHAUSTED", Message: "promo code has reached its usage limit"}
	ErrUserLimitExceeded   = &Error{Kind: KindExhausted, Code: "USER_LIMIT_EXCEEDED", Message: "promo code usage limit for this user reached"}
	ErrValidationThrottled = &Error{Kind: KindRateLimited, Code: "RATE_LIMIT_EXCEEDED", Message: "too many promo code attempts, retry later"}

	// Store errors
	ErrPreconditionFailed   = &Error{Kind: KindPrecondition, Code: "PRECONDITION_FAILED", Message: "conditional update did not match"}
	ErrStoreTimeout         = &Error{Kind: KindUnavailable, Code: "STORE_TIMEOUT", Message: "store call timed out"}
	ErrStoreFailure         = &Error{Kind: KindUnavailable, Code: "STORE_FAILURE", Message: "store call failed"}
	ErrConversionIncomplete = &Error{Kind: KindUnavailable, Code: "CONVERSION_INCOMPLETE", Message: "conversion recorded but not finalized, retry or wait for reconciliation"}
)

// MultiError collects errors from a batch operation.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "trialpay: no errors"
	case 1:
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("trialpay: %d errors occurred (first: %v)", len(e.Errors), e.Errors[0])
}

// Add appends err when it is not nil.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors reports whether any error was collected.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// KindOf returns the kind of err, or "" when err is not a trialpay error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the stable code of err, or "" when it has none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsRateLimited(err error) bool  { return errors.Is(err, ErrRateLimited) }
func IsExhausted(err error) bool    { return errors.Is(err, ErrExhausted) }

// IsRetryable reports whether the operation may succeed if retried as is.
// Rate-limited calls are retryable after RetryAfter.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}

// storeError classifies a raw store error. Trialpay errors pass through;
// deadlines become ErrStoreTimeout and anything else ErrStoreFailure.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStoreTimeout.wrap(err)
	}
	return ErrStoreFailure.wrap(err)
}
