// Package apperr defines the error taxonomy shared by the storefront
// services. Handlers map these to HTTP statuses; everything else is treated
// as an internal error.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidTransition
	KindUnauthorized
	KindCouponInapplicable
	KindValidation
)

// CouponReason narrows KindCouponInapplicable so callers can render a
// precise message.
type CouponReason string

const (
	CouponNotFound     CouponReason = "not_found"
	CouponInactive     CouponReason = "inactive"
	CouponExpired      CouponReason = "expired"
	CouponBelowMinimum CouponReason = "below_minimum"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Reason  CouponReason // set only for KindCouponInapplicable
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind sentinels produced by the constructors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// NotFound reports a missing entity.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

// NotFoundf reports a missing entity with formatting.
func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports an order status change that the transition table
// does not allow, including attempts to leave a terminal state.
func InvalidTransition(msg string) error {
	return &Error{Kind: KindInvalidTransition, Message: msg}
}

// InvalidTransitionf reports an invalid transition with formatting.
func InvalidTransitionf(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a request whose actor lacks the required role.
func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Message: msg} }

// CouponInapplicable reports a coupon that cannot be applied, with a reason.
func CouponInapplicable(reason CouponReason, msg string) error {
	return &Error{Kind: KindCouponInapplicable, Reason: reason, Message: msg}
}

// Validation reports malformed input.
func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

// Validationf reports malformed input with formatting.
func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or KindInternal when err is not an
// application error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf extracts the coupon reason from err, if any.
func ReasonOf(err error) CouponReason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
