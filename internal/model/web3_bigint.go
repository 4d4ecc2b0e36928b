package model

import (
	"errors"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")
	ErrTooManyDecimals   = errors.New("amount has more decimals than the token")
)

type Web3BigInt struct {
	Value   string `json:"value"`
	Decimal int    `json:"decimal"`
}

// ParseDecimalAmount turns a human amount like "1.5" into its smallest unit
// representation for a token with the given decimals.
func ParseDecimalAmount(amount string, decimals int) (*Web3BigInt, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, ErrTooManyDecimals
	}

	return &Web3BigInt{
		Value:   shifted.BigInt().String(),
		Decimal: decimals,
	}, nil
}

func (w *Web3BigInt) BigInt() (*big.Int, bool) {
	return new(big.Int).SetString(w.Value, 10)
}

func (w *Web3BigInt) Int64() (int64, bool) {
	amt, ok := new(big.Int).SetString(w.Value, 10)
	if !ok {
		return 0, false
	}

	return amt.Int64(), true
}

// String renders the amount in token units, e.g. "1.5".
func (w *Web3BigInt) String() string {
	num, ok := new(big.Int).SetString(w.Value, 10)
	if !ok {
		return "0"
	}
	return decimal.NewFromBigInt(num, -int32(w.Decimal)).String()
}

func (w *Web3BigInt) ToFloat() float64 {
	num := new(big.Int)
	num.SetString(w.Value, 10)

	floatNum := new(big.Float).SetInt(num)

	divisor := new(big.Float).SetFloat64(math.Pow(10, float64(w.Decimal)))

	floatNum.Quo(floatNum, divisor)

	result, _ := floatNum.Float64()
	return result
}

// Cmp compares the raw values, both sides must share the same decimals.
func (w *Web3BigInt) Cmp(number *Web3BigInt) int {
	num1 := new(big.Int)
	num1.SetString(w.Value, 10)

	num2 := new(big.Int)
	num2.SetString(number.Value, 10)

	return num1.Cmp(num2)
}

func (w *Web3BigInt) Add(number *Web3BigInt) *Web3BigInt {
	if w.Decimal != number.Decimal {
		return nil
	}

	num1 := new(big.Int)
	num1.SetString(w.Value, 10)

	num2 := new(big.Int)
	num2.SetString(number.Value, 10)

	result := new(big.Int)
	result.Add(num1, num2)

	return &Web3BigInt{
		Value:   result.String(),
		Decimal: w.Decimal,
	}
}

func (w *Web3BigInt) Sub(number *Web3BigInt) *Web3BigInt {
	if w.Decimal != number.Decimal {
		return nil
	}

	num1 := new(big.Int)
	num1.SetString(w.Value, 10)

	num2 := new(big.Int)
	num2.SetString(number.Value, 10)

	result := new(big.Int)
	result.Sub(num1, num2)

	return &Web3BigInt{
		Value:   result.String(),
		Decimal: w.Decimal,
	}
}
