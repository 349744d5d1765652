package models

import (
	"errors"
	"fmt"
)

var (
	ErrUninitialized         = errors.New("pool not initialized")
	ErrAlreadyInitialized    = errors.New("pool already initialized")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientReserve   = errors.New("insufficient reserve")
	ErrArithmeticOverflow    = errors.New("arithmetic overflow")
	// ErrInvariantViolation signals a pricing bug or a corrupted record, never a user error.
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrSlippageExceeded   = errors.New("slippage tolerance exceeded")
	ErrUnauthorized       = errors.New("unauthorized transfer")
	ErrInsufficientFunds  = errors.New("insufficient funds")
)

// TransferError is returned by a transfer gateway when a leg cannot be moved.
type TransferError struct {
	Leg Leg
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s %d from %s to %s: %v",
		e.Leg.Kind, e.Leg.Amount, e.Leg.From, e.Leg.To, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ErrorCode maps an error to a stable machine-readable code.
func ErrorCode(err error) string {
	var terr *TransferError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUninitialized):
		return "uninitialized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrInsufficientReserve):
		return "insufficient_reserve"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.As(err, &terr):
		return "transfer_failed"
	default:
		return "internal"
	}
}
