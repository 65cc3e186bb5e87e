package eth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyip/limitbot/internal/crypto"
	"github.com/alanyip/limitbot/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeBackend struct {
	nonce      uint64
	gasPrice   *big.Int
	estimate   uint64
	sendErr    error
	sent       *types.Transaction
	estimated  bool
	priceAsked bool
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	f.priceAsked = true
	return f.gasPrice, nil
}

func (f *fakeBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	f.estimated = true
	return f.estimate, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = tx
	return nil
}

func newTestDispatcher(t *testing.T, backend *fakeBackend) *Dispatcher {
	t.Helper()
	signer, err := crypto.NewSigner(crypto.KeyConfig{RawPrivateKey: testKeyHex})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(backend, signer, big.NewInt(1), logger)
}

func TestSendTransactionDefaults(t *testing.T) {
	backend := &fakeBackend{nonce: 7, gasPrice: big.NewInt(2_000_000_000), estimate: 100_000}
	d := newTestDispatcher(t, backend)

	handle, err := d.SendTransaction(context.Background(), domain.TxRequest{
		To:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Data: []byte{0x01},
	})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if handle.Hash == (common.Hash{}) {
		t.Error("no transaction hash returned")
	}
	if !backend.priceAsked || !backend.estimated {
		t.Error("defaults must come from the backend")
	}
	if got := backend.sent.Nonce(); got != 7 {
		t.Errorf("nonce = %d, want 7", got)
	}
	// Estimate padded by 15% headroom.
	if got := backend.sent.Gas(); got != 115_000 {
		t.Errorf("gas limit = %d, want 115000", got)
	}
	if backend.sent.GasPrice().Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Errorf("gas price = %s", backend.sent.GasPrice())
	}
	if backend.sent.Value().Sign() != 0 {
		t.Errorf("value = %s, want 0", backend.sent.Value())
	}
}

func TestSendTransactionOverridesWin(t *testing.T) {
	backend := &fakeBackend{gasPrice: big.NewInt(2_000_000_000), estimate: 100_000}
	d := newTestDispatcher(t, backend)

	_, err := d.SendTransaction(context.Background(), domain.TxRequest{
		To:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Value:    big.NewInt(5),
		GasPrice: big.NewInt(9_000_000_000),
		GasLimit: 321_000,
	})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if backend.priceAsked || backend.estimated {
		t.Error("overrides must skip backend suggestions")
	}
	if backend.sent.Gas() != 321_000 {
		t.Errorf("gas limit = %d, want override", backend.sent.Gas())
	}
	if backend.sent.GasPrice().Cmp(big.NewInt(9_000_000_000)) != 0 {
		t.Errorf("gas price = %s, want override", backend.sent.GasPrice())
	}
	if backend.sent.Value().Cmp(big.NewInt(5)) != 0 {
		t.Errorf("value = %s, want 5", backend.sent.Value())
	}
}

func TestSendTransactionRejectionWrapped(t *testing.T) {
	backend := &fakeBackend{gasPrice: big.NewInt(1), estimate: 21_000, sendErr: errors.New("nonce too low")}
	d := newTestDispatcher(t, backend)

	_, err := d.SendTransaction(context.Background(), domain.TxRequest{
		To: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	})
	if !errors.Is(err, domain.ErrTransactionRejected) {
		t.Errorf("want ErrTransactionRejected, got %v", err)
	}
}
