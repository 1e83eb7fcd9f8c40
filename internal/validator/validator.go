// Package validator checks a candidate offer against a lot's current state.
//
// Validation is pure: the same input always yields the same result, and
// nothing outside the returned values is touched.
package validator

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/sanlk21/smartrice-bidding/internal/model"
)

const monetaryPrecision int32 = 2 // Amounts are quoted to the cent

var (
	ErrLotNotActive         = errors.New("lot not active")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrBelowMinimumPrice    = errors.New("below minimum price")
	ErrNotHigherThanCurrent = errors.New("not higher than current price")
	ErrIncrementTooSmall    = errors.New("increment too small")
)

// Code identifies the rule an offer failed. Codes match the bid record store's.
type Code string

const (
	CodeLotNotActive         Code = "LOT_NOT_ACTIVE"
	CodeInvalidAmount        Code = "INVALID_AMOUNT"
	CodeBelowMinimumPrice    Code = "BELOW_MINIMUM_PRICE"
	CodeNotHigherThanCurrent Code = "NOT_HIGHER_THAN_CURRENT"
	CodeIncrementTooSmall    Code = "INCREMENT_TOO_SMALL"
)

// Error is a single tagged validation failure with a message fit for display.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.err }

// Input is everything a rule may look at.
type Input struct {
	Amount           float64
	MinimumPrice     decimal.Decimal
	CurrentPrice     decimal.Decimal
	MinimumIncrement decimal.NullDecimal
	Status           model.LotStatus // Effective status, local expiry applied
}

// Validate runs the rules in order and returns the first failure, or the
// amount rounded to monetary precision.
func Validate(in Input) (decimal.Decimal, error) {
	if !in.Status.IsActive() {
		return decimal.Zero, fail(CodeLotNotActive, ErrLotNotActive, "bidding on this lot is closed")
	}

	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) {
		return decimal.Zero, fail(CodeInvalidAmount, ErrInvalidAmount, "enter a valid amount")
	}
	amount := decimal.NewFromFloat(in.Amount).Round(monetaryPrecision)
	if !amount.IsPositive() {
		return decimal.Zero, fail(CodeInvalidAmount, ErrInvalidAmount, "amount must be greater than zero")
	}

	if amount.LessThan(in.MinimumPrice.Round(monetaryPrecision)) {
		return decimal.Zero, fail(CodeBelowMinimumPrice, ErrBelowMinimumPrice,
			fmt.Sprintf("offer must be at least the minimum price of %s", in.MinimumPrice.StringFixed(monetaryPrecision)))
	}

	current := in.CurrentPrice.Round(monetaryPrecision)
	if !amount.GreaterThan(current) {
		return decimal.Zero, fail(CodeNotHigherThanCurrent, ErrNotHigherThanCurrent,
			fmt.Sprintf("offer must be higher than the current price of %s", current.StringFixed(monetaryPrecision)))
	}

	if in.MinimumIncrement.Valid {
		required := current.Add(in.MinimumIncrement.Decimal).Round(monetaryPrecision)
		if amount.LessThan(required) {
			return decimal.Zero, fail(CodeIncrementTooSmall, ErrIncrementTooSmall,
				fmt.Sprintf("offer must be at least %s (current price plus the minimum increment of %s)",
					required.StringFixed(monetaryPrecision), in.MinimumIncrement.Decimal.StringFixed(monetaryPrecision)))
		}
	}

	return amount, nil
}

// CodeOf returns the failure code carried by err, or "" if err is not a validation error.
func CodeOf(err error) Code {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Code
	}
	return ""
}

func fail(code Code, sentinel error, msg string) *Error {
	return &Error{Code: code, Message: msg, err: sentinel}
}
