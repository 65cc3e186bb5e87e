package draft

import (
	"errors"
	"testing"

	"github.com/alanyip/limitbot/internal/domain"
)

func TestValidateMissingToken(t *testing.T) {
	s := NewSession()
	s.SetIndependentField(FieldInput, "1000")
	mr := rat(t, "1/2000")
	if err := s.Validate(s.Derive(mr), mr); !errors.Is(err, domain.ErrMissingToken) {
		t.Errorf("want ErrMissingToken, got %v", err)
	}

	s.SelectToken(SideInput, usdc)
	if err := s.Validate(s.Derive(mr), mr); !errors.Is(err, domain.ErrMissingToken) {
		t.Errorf("one token only: want ErrMissingToken, got %v", err)
	}
}

func TestValidateIdenticalTokens(t *testing.T) {
	// Token selection swaps on collision, so identical sides can only come
	// from outside construction. The rule still fires before any amount
	// check.
	s := NewSession()
	s.inputToken = usdc
	s.outputToken = usdc
	s.SetIndependentField(FieldInput, "1000")
	mr := rat(t, "1")
	if err := s.Validate(s.Derive(mr), mr); !errors.Is(err, domain.ErrIdenticalTokens) {
		t.Errorf("want ErrIdenticalTokens, got %v", err)
	}
}

func TestValidateInvalidAmount(t *testing.T) {
	mr := rat(t, "1/2000")
	for _, typed := range []string{"", "0", "abc"} {
		s := NewSession()
		s.SelectToken(SideInput, usdc)
		s.SelectToken(SideOutput, weth)
		s.SetIndependentField(FieldInput, typed)
		if err := s.Validate(s.Derive(mr), mr); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("typed %q: want ErrInvalidAmount, got %v", typed, err)
		}
	}
}

func TestValidateNoRoute(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldInput, "1000")

	if err := s.Validate(s.Derive(nil), nil); !errors.Is(err, domain.ErrNoRoute) {
		t.Errorf("nil market rate: want ErrNoRoute, got %v", err)
	}
}

func TestValidatePriceBelowMarket(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldInput, "1000")
	s.SetIndependentField(FieldPrice, "0.0004") // below market 0.0005

	mr := rat(t, "1/2000")
	if err := s.Validate(s.Derive(mr), mr); !errors.Is(err, domain.ErrPriceBelowMarket) {
		t.Errorf("want ErrPriceBelowMarket, got %v", err)
	}
}

func TestValidateAcceptsAtOrAboveMarket(t *testing.T) {
	mr := rat(t, "1/2000")
	for _, price := range []string{"0.0005", "0.0006"} {
		s := NewSession()
		s.SelectToken(SideInput, usdc)
		s.SelectToken(SideOutput, weth)
		s.SetIndependentField(FieldInput, "1000")
		s.SetIndependentField(FieldPrice, price)
		if err := s.Validate(s.Derive(mr), mr); err != nil {
			t.Errorf("price %s: want nil, got %v", price, err)
		}
	}
}

func TestValidateOutputAnchoredAmount(t *testing.T) {
	// With the output side anchored, a valid output amount passes the
	// amount rule even though the input is the derived side.
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldOutput, "0.5")
	s.SetIndependentField(FieldPrice, "0.0005")

	mr := rat(t, "1/2000")
	if err := s.Validate(s.Derive(mr), mr); err != nil {
		t.Errorf("want nil, got %v", err)
	}
}
