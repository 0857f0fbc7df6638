package domain

import (
	"errors"
	"fmt"
)

// 错误类别，调用方通过 errors.Is 判断
var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("not found")
	ErrAccountClosed          = errors.New("account closed")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrLimitExceeded          = errors.New("limit exceeded")
	ErrForbidden              = errors.New("forbidden")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrTimeout                = errors.New("timeout")
	ErrDuplicateTransaction   = errors.New("duplicate transaction id")
)

// 具体错误
var (
	ErrInvalidAmount        = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrAmountPrecision      = fmt.Errorf("%w: amount has more decimal places than the currency allows", ErrValidation)
	ErrSameAccount          = fmt.Errorf("%w: source and destination are the same account", ErrValidation)
	ErrCurrencyMismatch     = fmt.Errorf("%w: currency mismatch", ErrValidation)
	ErrInvalidCurrency      = fmt.Errorf("%w: unknown currency code", ErrValidation)
	ErrInvalidAccountType   = fmt.Errorf("%w: unknown account type", ErrValidation)
	ErrInvalidTxType        = fmt.Errorf("%w: transaction type not allowed here", ErrValidation)
	ErrInvalidName          = fmt.Errorf("%w: account name must be 1-64 characters", ErrValidation)
	ErrInvalidPhone         = fmt.Errorf("%w: invalid phone number", ErrValidation)
	ErrInvalidTier          = fmt.Errorf("%w: unknown customer tier", ErrValidation)
	ErrMissingField         = fmt.Errorf("%w: required field missing", ErrValidation)
	ErrBelowMinimumBalance  = fmt.Errorf("%w: initial balance below the minimum for this account type", ErrValidation)
	ErrDuplicateAccountType = fmt.Errorf("%w: owner already holds the maximum number of active accounts of this type", ErrValidation)
	ErrBalanceNotZero       = fmt.Errorf("%w: account balance must be zero to close", ErrValidation)
	ErrNotReversible        = fmt.Errorf("%w: transaction cannot be reversed", ErrValidation)
	ErrInvalidTransition    = fmt.Errorf("%w: transaction is no longer pending", ErrValidation)
	ErrAccountNumberTaken   = fmt.Errorf("%w: account number already issued", ErrValidation)

	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrOwnerNotFound       = fmt.Errorf("owner %w", ErrNotFound)
)

// IsRetryable 只有超时与并发冲突可以整体重试
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConcurrentModification)
}

// IsBusinessRejection 业务规则拒绝，需要记录 failed 交易
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrAccountClosed) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrLimitExceeded)
}
