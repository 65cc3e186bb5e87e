package domain

import "github.com/ethereum/go-ethereum/common"

// Token identifies an ERC-20 (or the chain's native coin) in an order.
// Immutable once selected into a draft.
type Token struct {
	Address  common.Address
	Decimals int
	Symbol   string
	Native   bool // native coin rather than a wrapped ERC-20
}

// Equal reports whether two tokens refer to the same asset. Native coins
// compare by the native flag since their placeholder address may differ.
func (t Token) Equal(other Token) bool {
	if t.Native || other.Native {
		return t.Native == other.Native
	}
	return t.Address == other.Address
}

// IsZero reports whether the token has not been selected.
func (t Token) IsZero() bool {
	return !t.Native && t.Address == (common.Address{}) && t.Symbol == ""
}
