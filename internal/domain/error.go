package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient point balance")
	ErrAccountNotFound     = errors.New("point account not found")
	ErrUnknownService      = errors.New("unknown service identifier")
	ErrInvalidTransition   = errors.New("invalid purchase state transition")
	ErrPaymentFailed       = errors.New("payment not settled at provider")
	ErrPromoInvalid        = errors.New("promo code invalid")
	ErrPaymentGateway      = errors.New("payment gateway error")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	ErrLockNotAcquired     = errors.New("could not acquire account lock")

	// Infrastructure-layer errors surfaced by repositories
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction execution context")
)

// InsufficientBalanceError carries the shortfall so callers can prompt a top-up.
// errors.Is(err, ErrInsufficientBalance) matches it.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient point balance: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// PromoReason enumerates why a promo code was rejected. Handlers return the
// specific reason, never a generic "invalid code".
type PromoReason string

const (
	PromoNotFound      PromoReason = "not_found"
	PromoInactive      PromoReason = "inactive"
	PromoNotStarted    PromoReason = "not_started"
	PromoExpired       PromoReason = "expired"
	PromoExhausted     PromoReason = "exhausted"
	PromoUserExhausted PromoReason = "user_exhausted"
	PromoBelowMinimum  PromoReason = "below_minimum"
	PromoWrongPackage  PromoReason = "wrong_package"
)

type PromoInvalidError struct {
	Code   string
	Reason PromoReason
}

func (e *PromoInvalidError) Error() string {
	return fmt.Sprintf("promo code %q invalid: %s", e.Code, e.Reason)
}

func (e *PromoInvalidError) Is(target error) bool { return target == ErrPromoInvalid }

// PaymentGatewayError wraps a transport/provider failure. It is transient and
// retryable by the caller; it never implies the payment succeeded or failed.
type PaymentGatewayError struct {
	Op  string
	Err error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *PaymentGatewayError) Unwrap() error { return e.Err }

func (e *PaymentGatewayError) Is(target error) bool { return target == ErrPaymentGateway }
