package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs raw transactions with a locally held key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner resolves the private key per KeyConfig and returns a Signer.
func NewSigner(cfg KeyConfig) (*Signer, error) {
	keyHex, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}
	return &Signer{
		privateKey: key,
		address:    ethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signing account.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs a transaction for the given chain.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign transaction: %w", err)
	}
	return signed, nil
}
