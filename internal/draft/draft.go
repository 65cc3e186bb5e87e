// Package draft holds the mutable state of an in-progress order entry
// session and projects it into consistent derived amounts. Exactly one
// amount-bearing field is user-sourced at a time; the other two are always
// recomputed from it, never stored.
package draft

import (
	"math/big"

	"github.com/alanyip/limitbot/internal/amount"
	"github.com/alanyip/limitbot/internal/domain"
	"github.com/alanyip/limitbot/internal/rate"
)

// Field names an amount-bearing field of the draft.
type Field string

const (
	FieldInput  Field = "input"
	FieldOutput Field = "output"
	FieldPrice  Field = "price"
)

// Side selects one of the two token slots.
type Side string

const (
	SideInput  Side = "input"
	SideOutput Side = "output"
)

// Session is the authoritative order-entry state for one user session.
// All mutations happen on discrete user events; the session is not safe for
// concurrent use.
type Session struct {
	inputToken  domain.Token
	outputToken domain.Token

	independent Field
	typedAmount string // attached to anchorField
	anchorField Field  // FieldInput or FieldOutput; amount anchor when price is typed
	typedPrice  string
	rateKind    rate.Kind
	slippageBps int64

	memoKey string
	memo    *Derived
}

// NewSession returns a fresh draft with the input amount as independent
// field and the MUL price orientation.
func NewSession() *Session {
	return &Session{
		independent: FieldInput,
		anchorField: FieldInput,
		rateKind:    rate.Mul,
		slippageBps: 50,
	}
}

// Accessors used by the validator, orchestrators, and UI echo.

func (s *Session) InputToken() domain.Token  { return s.inputToken }
func (s *Session) OutputToken() domain.Token { return s.outputToken }
func (s *Session) Independent() Field        { return s.independent }
func (s *Session) RateKind() rate.Kind       { return s.rateKind }
func (s *Session) SlippageBps() int64        { return s.slippageBps }

// TypedValue returns the raw string of the independent field.
func (s *Session) TypedValue() string {
	if s.independent == FieldPrice {
		return s.typedPrice
	}
	return s.typedAmount
}

// SetIndependentField records a user edit of one of the three fields. The
// edited field becomes independent. Editing an amount field discards the
// previously typed amount and re-anchors the price derivation to the edited
// side; editing the price keeps the last-typed amount as its anchor.
func (s *Session) SetIndependentField(field Field, value string) {
	s.invalidate()
	switch field {
	case FieldPrice:
		s.typedPrice = value
		s.independent = FieldPrice
	default:
		s.typedAmount = value
		s.anchorField = field
		s.independent = field
	}
}

// SelectToken sets the token on one side. Selecting the token already held
// by the opposite side swaps the two sides instead, so the draft can never
// hold identical tokens through selection.
func (s *Session) SelectToken(side Side, token domain.Token) {
	s.invalidate()
	if side == SideInput {
		if !s.outputToken.IsZero() && token.Equal(s.outputToken) {
			s.outputToken = s.inputToken
		}
		s.inputToken = token
		return
	}
	if !s.inputToken.IsZero() && token.Equal(s.inputToken) {
		s.inputToken = s.outputToken
	}
	s.outputToken = token
}

// SwitchTokens swaps the input and output tokens. The independent amount
// field follows its side so the user's last-typed amount stays attached to
// the token they typed it for.
func (s *Session) SwitchTokens() {
	s.invalidate()
	s.inputToken, s.outputToken = s.outputToken, s.inputToken
	s.anchorField = oppositeField(s.anchorField)
	if s.independent == FieldInput || s.independent == FieldOutput {
		s.independent = oppositeField(s.independent)
	}
}

// SetRateKind toggles the price orientation and re-seeds the typed price
// with the reciprocal of the currently displayed value, so the shown number
// stays consistent in the new orientation. Amounts are untouched.
func (s *Session) SetRateKind(kind rate.Kind) {
	if kind == s.rateKind {
		return
	}
	s.invalidate()
	if s.typedPrice != "" {
		if reoriented, err := rate.Reorient(s.typedPrice); err == nil {
			s.typedPrice = reoriented
		}
	}
	s.rateKind = kind
}

// ToggleRateKind flips the orientation.
func (s *Session) ToggleRateKind() {
	s.SetRateKind(s.rateKind.Toggle())
}

// SetSlippage stores the slippage tolerance verbatim. Slippage only affects
// the minimum-return calculation at submission time, never displayed amounts.
func (s *Session) SetSlippage(bps int64) {
	s.slippageBps = bps
}

// Reset clears the typed values after a successful submission while keeping
// the token selection, orientation, and slippage for the next order.
func (s *Session) Reset() {
	s.invalidate()
	s.typedAmount = ""
	s.typedPrice = ""
	s.independent = FieldInput
	s.anchorField = FieldInput
}

// Derived is the projection of the draft: fixed-point amounts for both sides
// and the execution price in the current orientation. Fields that cannot be
// derived (no market rate, nothing typed) are nil, never zero.
type Derived struct {
	Input  *big.Int
	Output *big.Int
	Price  *big.Rat
	Kind   rate.Kind
}

// PriceMul returns the execution price normalized to the MUL orientation
// (output per input), or nil when no price is derivable.
func (d Derived) PriceMul() *big.Rat {
	if d.Price == nil {
		return nil
	}
	if d.Kind == rate.Mul {
		return d.Price
	}
	inv, err := rate.Invert(d.Price)
	if err != nil {
		return nil
	}
	return inv
}

// Derive projects the draft into consistent amounts using the supplied
// market rate (output per input, human units; nil when unavailable). The
// projection is a pure function of the draft fields and the rate, memoized
// by its input tuple.
func (s *Session) Derive(marketRate *big.Rat) Derived {
	key := s.deriveKey(marketRate)
	if s.memo != nil && s.memoKey == key {
		return *s.memo
	}
	d := s.derive(marketRate)
	s.memoKey = key
	s.memo = &d
	return d
}

func (s *Session) derive(marketRate *big.Rat) Derived {
	d := Derived{Kind: s.rateKind}
	if s.inputToken.IsZero() || s.outputToken.IsZero() {
		return d
	}

	var inHuman, outHuman *big.Rat

	switch s.independent {
	case FieldInput, FieldOutput:
		typed, err := amount.ParseDecimal(s.typedAmount)
		if err != nil {
			return d
		}
		if s.independent == FieldInput {
			inHuman = typed
		} else {
			outHuman = typed
		}
		if marketRate != nil && marketRate.Sign() > 0 {
			if inHuman != nil {
				outHuman = new(big.Rat).Mul(inHuman, marketRate)
			} else {
				inHuman = new(big.Rat).Quo(outHuman, marketRate)
			}
			if p, err := rate.PriceFrom(inHuman, outHuman, s.rateKind); err == nil {
				d.Price = p
			}
		}

	case FieldPrice:
		price, err := amount.ParseDecimal(s.typedPrice)
		if err != nil || price.Sign() == 0 {
			return d
		}
		d.Price = price
		anchor, err := amount.ParseDecimal(s.typedAmount)
		if err != nil {
			break
		}
		dependent, err := rate.ApplyTypedPrice(price, anchor, s.rateKind, s.anchorField == FieldInput)
		if err != nil {
			break
		}
		if s.anchorField == FieldInput {
			inHuman, outHuman = anchor, dependent
		} else {
			inHuman, outHuman = dependent, anchor
		}
	}

	if inHuman != nil {
		d.Input = amount.RatToFixedPoint(inHuman, s.inputToken.Decimals)
	}
	if outHuman != nil {
		d.Output = amount.RatToFixedPoint(outHuman, s.outputToken.Decimals)
	}
	return d
}

func (s *Session) deriveKey(marketRate *big.Rat) string {
	mr := ""
	if marketRate != nil {
		mr = marketRate.RatString()
	}
	return s.inputToken.Address.Hex() + "|" + s.outputToken.Address.Hex() + "|" +
		string(s.independent) + "|" + string(s.anchorField) + "|" +
		s.typedAmount + "|" + s.typedPrice + "|" + string(s.rateKind) + "|" + mr
}

func (s *Session) invalidate() {
	s.memo = nil
	s.memoKey = ""
}

func oppositeField(f Field) Field {
	if f == FieldInput {
		return FieldOutput
	}
	return FieldInput
}
