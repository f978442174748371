package order

import (
	"errors"
	"fmt"
)

// Code is a machine-readable rejection reason.
type Code string

const (
	CodeMarketNotFound        Code = "MARKET_NOT_FOUND"
	CodeMarketInactive        Code = "MARKET_INACTIVE"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientShares    Code = "INSUFFICIENT_SHARES"
	CodeSlippageExceeded      Code = "SLIPPAGE_EXCEEDED"
	CodePriceBoundViolated    Code = "PRICE_BOUND_VIOLATED"
	CodeValidation            Code = "VALIDATION_ERROR"
	CodePositionLimitExceeded Code = "POSITION_LIMIT_EXCEEDED"
	CodeOrderNotFound         Code = "ORDER_NOT_FOUND"
	CodeOrderNotPending       Code = "ORDER_NOT_PENDING"
)

// Rejection is a terminal, typed refusal of a submission. A rejected
// submission never has ledger side effects.
type Rejection struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Reject builds a Rejection with a formatted message.
func Reject(code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// CodeOf returns the rejection code of err, or "" if err is not a rejection.
func CodeOf(err error) Code {
	if r, ok := AsRejection(err); ok {
		return r.Code
	}
	return ""
}
