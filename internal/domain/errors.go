package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind groups ledger errors by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindState
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a rejected ledger call. Every Error leaves state untouched.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so sentinels keep working when the message is specialised.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validationf(code, format string, args ...any) *Error {
	return newError(KindValidation, code, fmt.Sprintf(format, args...))
}

func NotFoundf(code, format string, args ...any) *Error {
	return newError(KindNotFound, code, fmt.Sprintf(format, args...))
}

func Statef(code, format string, args ...any) *Error {
	return newError(KindState, code, fmt.Sprintf(format, args...))
}

func Conflictf(code, format string, args ...any) *Error {
	return newError(KindConflict, code, fmt.Sprintf(format, args...))
}

func Unauthorizedf(code, format string, args ...any) *Error {
	return newError(KindAuthorization, code, fmt.Sprintf(format, args...))
}

var (
	ErrMemoTooLong       = newError(KindValidation, "memo_too_long", "memo has more than 256 bytes")
	ErrNonPositive       = newError(KindValidation, "non_positive_quantity", "quantity must be positive")
	ErrSymbolMismatch    = newError(KindValidation, "symbol_mismatch", "symbol precision mismatch")
	ErrSelfTransfer      = newError(KindValidation, "self_transfer", "cannot transfer to self")
	ErrExceedsSupply     = newError(KindValidation, "exceeds_supply", "quantity exceeds available supply")
	ErrPriceMismatch     = newError(KindValidation, "price_mismatch", "quantity differs from agreed price")
	ErrInvalidState      = newError(KindValidation, "invalid_state", "invalid enabled argument")
	ErrMissingAuthority  = newError(KindAuthorization, "missing_authority", "missing required authority")
	ErrSymbolNotFound    = newError(KindNotFound, "symbol_not_found", "token with symbol does not exist")
	ErrBalanceNotFound   = newError(KindNotFound, "balance_not_found", "no balance object found")
	ErrAccountNotFound   = newError(KindNotFound, "account_not_found", "account does not exist")
	ErrAgreementNotFound = newError(KindNotFound, "agreement_not_found", "agreement (payer-payee-service) not found")
	ErrInsufficientFunds = newError(KindState, "insufficient_funds", "overdrawn balance")
	ErrBalanceNotZero    = newError(KindState, "balance_not_zero", "cannot close because the balance is not zero")
	ErrAccountDisabled   = newError(KindState, "account_disabled", "account is not enabled")
	ErrAgreementInactive = newError(KindState, "agreement_inactive", "agreement is not active")
	ErrContractEnded     = newError(KindState, "contract_ended", "contract has ended")
	ErrTooEarly          = newError(KindState, "too_early", "cannot charge yet")
	ErrSymbolExists      = newError(KindConflict, "symbol_exists", "token with symbol already exists")
)

// TooEarlyError reports a charge attempted before its period elapsed.
type TooEarlyError struct {
	NextEligible  time.Time
	RemainingDays int64
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("cannot charge yet, %d days remaining", e.RemainingDays)
}

func (e *TooEarlyError) Unwrap() error {
	return ErrTooEarly
}

// KindOf returns the kind of a ledger error, KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine readable code of a ledger error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ValidateMemo rejects memos longer than MaxMemoBytes.
func ValidateMemo(memo string) error {
	if len(memo) > MaxMemoBytes {
		return ErrMemoTooLong
	}
	return nil
}
