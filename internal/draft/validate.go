package draft

import (
	"math/big"

	"github.com/alanyip/limitbot/internal/domain"
)

// Validate gates the submit action. It evaluates the blocking rules in order
// and returns the first applicable sentinel, or nil when the draft is
// submittable. Pure function of the session, its projection, and the current
// market rate.
func (s *Session) Validate(d Derived, marketRate *big.Rat) error {
	if s.inputToken.IsZero() || s.outputToken.IsZero() {
		return domain.ErrMissingToken
	}
	if s.inputToken.Equal(s.outputToken) {
		return domain.ErrIdenticalTokens
	}

	// The anchor side carries the user-typed amount; for price edits it is
	// the last-typed amount field.
	independent := d.Input
	dependent := d.Output
	if s.anchorField == FieldOutput {
		independent, dependent = d.Output, d.Input
	}
	if independent == nil || independent.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	if dependent == nil || marketRate == nil || marketRate.Sign() == 0 {
		return domain.ErrNoRoute
	}

	// The requested rate must sit at or above market in the maker's favor:
	// a lower output-per-input would make the order immediately fillable at
	// a loss for the owner.
	desired := d.PriceMul()
	if desired == nil {
		return domain.ErrNoRoute
	}
	if desired.Cmp(marketRate) < 0 {
		return domain.ErrPriceBelowMarket
	}
	return nil
}
