// Package rate models an order's execution price as a ratio between the two
// token amounts of a swap. A price can be displayed in either orientation:
// MUL is output per input, DIV is input per output. All values are exact
// rationals in human-decimal units; rounding happens only at display time.
package rate

import (
	"fmt"
	"math/big"

	"github.com/alanyip/limitbot/internal/amount"
	"github.com/alanyip/limitbot/internal/domain"
)

// Kind selects the orientation of a displayed price.
type Kind string

const (
	// Mul expresses the price as output amount per unit of input.
	Mul Kind = "mul"
	// Div expresses the price as input amount per unit of output.
	Div Kind = "div"
)

// Toggle returns the opposite orientation.
func (k Kind) Toggle() Kind {
	if k == Mul {
		return Div
	}
	return Mul
}

// PriceFrom computes the price of a swap from its two human-decimal amounts
// in the given orientation.
func PriceFrom(input, output *big.Rat, kind Kind) (*big.Rat, error) {
	num, den := output, input
	if kind == Div {
		num, den = input, output
	}
	if den.Sign() == 0 {
		return nil, fmt.Errorf("rate: price from zero denominator: %w", domain.ErrDivisionByZero)
	}
	return new(big.Rat).Quo(num, den), nil
}

// Invert returns the reciprocal of a price.
func Invert(r *big.Rat) (*big.Rat, error) {
	if r.Sign() == 0 {
		return nil, fmt.Errorf("rate: invert zero: %w", domain.ErrDivisionByZero)
	}
	return new(big.Rat).Inv(r), nil
}

// ApplyTypedPrice derives the dependent amount from a typed price and the
// independent amount. It is the exact algebraic inverse of PriceFrom for the
// same orientation: deriving an amount and recomputing the price round-trips
// within display precision.
//
// independentIsInput says which side the independent amount sits on; the
// returned amount is the opposite side.
func ApplyTypedPrice(price, independent *big.Rat, kind Kind, independentIsInput bool) (*big.Rat, error) {
	if price.Sign() == 0 {
		return nil, fmt.Errorf("rate: apply zero price: %w", domain.ErrDivisionByZero)
	}
	mul := new(big.Rat).Mul
	quo := new(big.Rat).Quo
	switch {
	case kind == Mul && independentIsInput: // out = in * (out/in)
		return mul(independent, price), nil
	case kind == Mul: // in = out / (out/in)
		return quo(independent, price), nil
	case independentIsInput: // out = in / (in/out)
		return quo(independent, price), nil
	default: // in = out * (in/out)
		return mul(independent, price), nil
	}
}

// Display renders a price at the standard 6-significant-digit precision.
func Display(r *big.Rat) string {
	return amount.FormatSignificant(r, amount.DisplayDigits)
}

// Reorient re-expresses a displayed price string in the opposite orientation,
// returning the new typed value at display precision. Used when the user
// toggles the rate kind: the shown number flips to its reciprocal so the UI
// stays consistent in the new orientation.
func Reorient(typed string) (string, error) {
	r, err := amount.ParseDecimal(typed)
	if err != nil {
		return "", err
	}
	inv, err := Invert(r)
	if err != nil {
		return "", err
	}
	return Display(inv), nil
}
