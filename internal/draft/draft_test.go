package draft

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyip/limitbot/internal/domain"
	"github.com/alanyip/limitbot/internal/rate"
)

var (
	usdc = domain.Token{
		Address:  common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Decimals: 6,
		Symbol:   "USDC",
	}
	weth = domain.Token{
		Address:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Decimals: 18,
		Symbol:   "WETH",
	}
	dai = domain.Token{
		Address:  common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
		Decimals: 18,
		Symbol:   "DAI",
	}
	ether = domain.Token{Decimals: 18, Symbol: "ETH", Native: true}
)

func rat(t *testing.T, s string) *big.Rat {
	t.Helper()
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		t.Fatalf("bad rational literal %q", s)
	}
	return r
}

func bigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad integer literal %q", s)
	}
	return n
}

func TestSelectTokenSwapsOnCollision(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)

	// Selecting the output token on the input side swaps the sides.
	s.SelectToken(SideInput, weth)
	if !s.InputToken().Equal(weth) || !s.OutputToken().Equal(usdc) {
		t.Errorf("expected swap, got input=%s output=%s", s.InputToken().Symbol, s.OutputToken().Symbol)
	}

	// And the same selecting the input token on the output side.
	s.SelectToken(SideOutput, weth)
	if !s.InputToken().Equal(usdc) || !s.OutputToken().Equal(weth) {
		t.Errorf("expected swap back, got input=%s output=%s", s.InputToken().Symbol, s.OutputToken().Symbol)
	}
}

func TestSelectTokenNoCollision(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SelectToken(SideOutput, dai)
	if !s.InputToken().Equal(usdc) || !s.OutputToken().Equal(dai) {
		t.Errorf("got input=%s output=%s", s.InputToken().Symbol, s.OutputToken().Symbol)
	}
}

func TestSwitchTokensIndependentFollowsSide(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldInput, "1000")

	s.SwitchTokens()

	if !s.InputToken().Equal(weth) || !s.OutputToken().Equal(usdc) {
		t.Fatalf("tokens did not swap")
	}
	if s.Independent() != FieldOutput {
		t.Errorf("independent = %s, want output", s.Independent())
	}
	if s.TypedValue() != "1000" {
		t.Errorf("typed value = %q, want %q", s.TypedValue(), "1000")
	}

	// The typed 1000 is now the output amount: deriving must scale it with
	// USDC's 6 decimals, not WETH's 18.
	d := s.Derive(rat(t, "2000"))
	if d.Output == nil || d.Output.Cmp(bigInt(t, "1000000000")) != 0 {
		t.Errorf("output = %v, want 1000000000", d.Output)
	}
}

func TestDeriveFromInputAndMarketRate(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldInput, "1000")

	d := s.Derive(rat(t, "1/2000")) // market: 0.0005 WETH per USDC

	if d.Input == nil || d.Input.Cmp(bigInt(t, "1000000000")) != 0 {
		t.Errorf("input = %v, want 1000000000", d.Input)
	}
	if d.Output == nil || d.Output.Cmp(bigInt(t, "500000000000000000")) != 0 {
		t.Errorf("output = %v, want 500000000000000000", d.Output)
	}
	if d.Price == nil || d.Price.Cmp(rat(t, "1/2000")) != 0 {
		t.Errorf("price = %v, want 1/2000", d.Price)
	}
}

func TestDeriveFromOutputAndMarketRate(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldOutput, "0.5")

	d := s.Derive(rat(t, "1/2000"))

	if d.Input == nil || d.Input.Cmp(bigInt(t, "1000000000")) != 0 {
		t.Errorf("input = %v, want 1000000000", d.Input)
	}
	if d.Output == nil || d.Output.Cmp(bigInt(t, "500000000000000000")) != 0 {
		t.Errorf("output = %v, want 500000000000000000", d.Output)
	}
}

func TestDeriveFromTypedPriceKeepsAmountAnchor(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldInput, "1000")
	s.SetIndependentField(FieldPrice, "0.0005")

	d := s.Derive(nil) // typed price needs no market rate

	if d.Input == nil || d.Input.Cmp(bigInt(t, "1000000000")) != 0 {
		t.Errorf("input = %v, want 1000000000", d.Input)
	}
	if d.Output == nil || d.Output.Cmp(bigInt(t, "500000000000000000")) != 0 {
		t.Errorf("output = %v, want 500000000000000000 (0.5 WETH)", d.Output)
	}
	if d.Price == nil || d.Price.Cmp(rat(t, "1/2000")) != 0 {
		t.Errorf("price = %v, want 1/2000", d.Price)
	}
}

func TestDeriveTypedPriceOutputAnchor(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldOutput, "0.5")
	s.SetIndependentField(FieldPrice, "0.0005")

	d := s.Derive(nil)

	// The output amount is anchored; the input is derived from the price.
	if d.Output == nil || d.Output.Cmp(bigInt(t, "500000000000000000")) != 0 {
		t.Errorf("output = %v, want 500000000000000000", d.Output)
	}
	if d.Input == nil || d.Input.Cmp(bigInt(t, "1000000000")) != 0 {
		t.Errorf("input = %v, want 1000000000", d.Input)
	}
}

func TestDeriveWithoutMarketRate(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldInput, "1000")

	d := s.Derive(nil)

	if d.Input == nil {
		t.Error("independent amount must still derive without a market rate")
	}
	if d.Output != nil || d.Price != nil {
		t.Errorf("dependent fields must be nil without a rate, got output=%v price=%v", d.Output, d.Price)
	}
}

func TestDeriveMemoized(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldInput, "1000")

	mr := rat(t, "1/2000")
	first := s.Derive(mr)
	second := s.Derive(mr)
	if first.Input != second.Input || first.Output != second.Output {
		t.Error("identical inputs must return the memoized projection")
	}

	// Any edit invalidates the memo.
	s.SetIndependentField(FieldInput, "2000")
	third := s.Derive(mr)
	if third.Input.Cmp(bigInt(t, "2000000000")) != 0 {
		t.Errorf("input after edit = %v, want 2000000000", third.Input)
	}
}

func TestToggleRateKindTwiceRestoresDisplay(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetIndependentField(FieldInput, "1000")
	s.SetIndependentField(FieldPrice, "0.0005")

	s.ToggleRateKind()
	if s.RateKind() != rate.Div {
		t.Fatalf("kind = %s, want div", s.RateKind())
	}
	if s.TypedValue() != "2000" {
		t.Errorf("reoriented price = %q, want %q", s.TypedValue(), "2000")
	}

	// The derived amounts are unchanged in the new orientation.
	d := s.Derive(nil)
	if d.Output == nil || d.Output.Cmp(bigInt(t, "500000000000000000")) != 0 {
		t.Errorf("output after toggle = %v, want 500000000000000000", d.Output)
	}

	s.ToggleRateKind()
	if s.TypedValue() != "0.0005" {
		t.Errorf("double toggle price = %q, want %q", s.TypedValue(), "0.0005")
	}
}

func TestResetKeepsTokensAndSlippage(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, usdc)
	s.SelectToken(SideOutput, weth)
	s.SetSlippage(125)
	s.SetIndependentField(FieldInput, "1000")
	s.SetIndependentField(FieldPrice, "0.0005")

	s.Reset()

	if !s.InputToken().Equal(usdc) || !s.OutputToken().Equal(weth) {
		t.Error("tokens must survive a reset")
	}
	if s.SlippageBps() != 125 {
		t.Errorf("slippage = %d, want 125", s.SlippageBps())
	}
	if s.TypedValue() != "" || s.Independent() != FieldInput {
		t.Errorf("typed state not cleared: %q / %s", s.TypedValue(), s.Independent())
	}
	d := s.Derive(rat(t, "1/2000"))
	if d.Input != nil || d.Output != nil {
		t.Error("amounts must be nil after reset")
	}
}

func TestNativeTokenEquality(t *testing.T) {
	s := NewSession()
	s.SelectToken(SideInput, ether)
	s.SelectToken(SideOutput, usdc)
	// Selecting native on the output collides with the native input and
	// swaps sides.
	s.SelectToken(SideOutput, domain.Token{Decimals: 18, Symbol: "ETH", Native: true})
	if !s.InputToken().Equal(usdc) || !s.OutputToken().Native {
		t.Errorf("expected swap, got input=%s output=%s", s.InputToken().Symbol, s.OutputToken().Symbol)
	}
}
