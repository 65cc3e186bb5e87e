// Package amount converts between human-decimal token amounts and the
// fixed-point integer amounts used in on-chain payloads. Conversions are
// pure; display formatting rounds to a fixed number of significant digits
// while payload-bound values always keep full precision.
package amount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/alanyip/limitbot/internal/domain"
)

// DisplayDigits is the significant-digit precision used for UI echo.
const DisplayDigits = 6

// ParseDecimal parses a non-negative decimal string ("1000", "0.0005", ".5")
// into an exact rational. It rejects signs, exponents, and anything that is
// not a plain decimal number.
func ParseDecimal(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return nil, fmt.Errorf("amount: parse %q: %w", s, domain.ErrInvalidAmount)
	}
	dots := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c == '.':
			dots++
			if dots > 1 {
				return nil, fmt.Errorf("amount: parse %q: %w", s, domain.ErrInvalidAmount)
			}
		default:
			return nil, fmt.Errorf("amount: parse %q: %w", s, domain.ErrInvalidAmount)
		}
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("amount: parse %q: %w", s, domain.ErrInvalidAmount)
	}
	return r, nil
}

// ToFixedPoint scales a human-decimal amount by 10^decimals, truncating any
// excess fractional digits, and returns the fixed-point integer.
func ToFixedPoint(s string, decimals int) (*big.Int, error) {
	r, err := ParseDecimal(s)
	if err != nil {
		return nil, err
	}
	return RatToFixedPoint(r, decimals), nil
}

// RatToFixedPoint scales an exact rational by 10^decimals, truncating toward
// zero.
func RatToFixedPoint(r *big.Rat, decimals int) *big.Int {
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(pow10(decimals)))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

// FixedPointToRat is the exact inverse scaling of RatToFixedPoint.
func FixedPointToRat(fixed *big.Int, decimals int) *big.Rat {
	return new(big.Rat).SetFrac(new(big.Int).Set(fixed), pow10(decimals))
}

// ToDecimal renders a fixed-point integer as a full-precision decimal string.
func ToDecimal(fixed *big.Int, decimals int) string {
	neg := fixed.Sign() < 0
	s := new(big.Int).Abs(fixed).String()
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		s = s[:len(s)-decimals] + "." + s[len(s)-decimals:]
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "" {
		s = "0"
	}
	if neg {
		s = "-" + s
	}
	return s
}

// ToSignificant renders a fixed-point integer at display precision.
func ToSignificant(fixed *big.Int, decimals, sigFigs int) string {
	return FormatSignificant(FixedPointToRat(fixed, decimals), sigFigs)
}

// FormatSignificant renders a rational rounded to sigFigs significant digits,
// with trailing fractional zeros trimmed. Integer parts longer than sigFigs
// are kept whole rather than zeroed out.
func FormatSignificant(r *big.Rat, sigFigs int) string {
	if r.Sign() == 0 {
		return "0"
	}
	abs := new(big.Rat).Abs(r)

	intPart := new(big.Int).Quo(abs.Num(), abs.Denom())
	places := 0
	if intPart.Sign() > 0 {
		intDigits := len(intPart.String())
		if intDigits < sigFigs {
			places = sigFigs - intDigits
		}
	} else {
		// Count the leading zeros after the decimal point.
		lead := 0
		probe := new(big.Rat).Set(abs)
		ten := new(big.Rat).SetInt64(10)
		one := new(big.Rat).SetInt64(1)
		for probe.Cmp(one) < 0 {
			probe.Mul(probe, ten)
			lead++
		}
		places = sigFigs - 1 + lead
	}

	s := r.FloatString(places)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
