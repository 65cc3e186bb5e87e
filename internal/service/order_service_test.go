package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyip/limitbot/internal/domain"
	"github.com/alanyip/limitbot/internal/draft"
	"github.com/alanyip/limitbot/internal/exec"
)

const testTxHash = "0xabcdef0000000000000000000000000000000000000000000000000000000001"

var (
	testOwner  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	usdc       = domain.Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6, Symbol: "USDC"}
	weth       = domain.Token{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18, Symbol: "WETH"}
)

// fakeHistory is an in-memory OrderHistory with the same transition rules as
// the real store.
type fakeHistory struct {
	mu      sync.Mutex
	records map[string]domain.Order
	appends int
	failOn  error // next Append fails with this when set
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{records: make(map[string]domain.Order)}
}

func (f *fakeHistory) Append(_ context.Context, o domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		return f.failOn
	}
	f.records[o.ID] = o
	f.appends++
	return nil
}

func (f *fakeHistory) Patch(_ context.Context, id string, p domain.OrderPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Status.Terminal() {
		return domain.ErrInvalidTransition
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.CancelledTx != nil {
		rec.CancelledTx = *p.CancelledTx
	}
	rec.UpdatedAt = time.Now().UTC()
	f.records[id] = rec
	return nil
}

func (f *fakeHistory) Find(_ context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeHistory) ListOpen(_ context.Context, owner string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, rec := range f.records {
		if rec.Owner == owner && rec.Status == domain.OrderStatusOpen {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeHistory) ListByOwner(_ context.Context, owner string, _ domain.ListOpts) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, rec := range f.records {
		if rec.Owner == owner {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeHistory) ListTerminalBefore(_ context.Context, _ time.Time) ([]domain.Order, error) {
	return nil, nil
}

// fakePrices returns a fixed rate for every pair.
type fakePrices struct {
	rate *big.Rat
	err  error
}

func (f *fakePrices) CurrentMarketRate(_ context.Context, _, _ domain.Token) (*big.Rat, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rate, nil
}

// fakeDispatcher records sent requests and returns a fixed hash.
type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []domain.TxRequest
	err     error
	entered chan struct{} // signalled once on first entry when set
	block   chan struct{} // when set, SendTransaction waits until closed
}

func (f *fakeDispatcher) SendTransaction(_ context.Context, req domain.TxRequest) (domain.TxHandle, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.TxHandle{}, f.err
	}
	f.sent = append(f.sent, req)
	return domain.TxHandle{Hash: common.HexToHash(testTxHash)}, nil
}

func (f *fakeDispatcher) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeExecClient hands back canned submissions without real ABI packing.
type fakeExecClient struct {
	encodeErr  error
	emptyID    bool
	lastCancel struct {
		order  domain.Order
		exists bool
	}
}

func (f *fakeExecClient) EncodeSubmission(_ context.Context, req exec.SubmissionRequest) (exec.Submission, error) {
	if f.encodeErr != nil {
		return exec.Submission{}, f.encodeErr
	}
	witness := common.HexToAddress("0x7777777777777777777777777777777777777777")
	order := domain.Order{
		ID:           witness.Hex(),
		Kind:         req.Kind,
		Owner:        req.Owner.Hex(),
		InputToken:   req.InputToken,
		OutputToken:  req.OutputToken,
		InputAmount:  new(big.Int).Set(req.InputAmount),
		OutputAmount: new(big.Int).Set(req.OutputAmount),
		Handler:      "0x2222222222222222222222222222222222222222",
		Witness:      witness.Hex(),
		Data:         []byte{0x01},
	}
	if f.emptyID {
		order.ID = ""
		order.Witness = ""
	}
	return exec.Submission{
		Witness: witness,
		To:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Payload: []byte{0xca, 0xfe},
		Value:   big.NewInt(0),
		Order:   order,
	}, nil
}

func (f *fakeExecClient) CancelTx(_ context.Context, o domain.Order, existsOnChain bool) (domain.TxRequest, error) {
	f.lastCancel.order = o
	f.lastCancel.exists = existsOnChain
	return domain.TxRequest{
		To:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Data:  []byte{0xde, 0xad},
		Value: big.NewInt(0),
	}, nil
}

func (f *fakeExecClient) ChainID() *big.Int { return big.NewInt(1) }

func readySession(t *testing.T) *draft.Session {
	t.Helper()
	s := draft.NewSession()
	s.SelectToken(draft.SideInput, usdc)
	s.SelectToken(draft.SideOutput, weth)
	s.SetIndependentField(draft.FieldInput, "1000")
	s.SetIndependentField(draft.FieldPrice, "0.0005")
	return s
}

func marketRate(t *testing.T) *big.Rat {
	t.Helper()
	r, _ := new(big.Rat).SetString("1/2000")
	return r
}

func newService(h *fakeHistory, p *fakePrices, d *fakeDispatcher, c ExecutionClient) *OrderService {
	return NewOrderService(h, p, d, c, testOwner, testLogger)
}

func TestSubmitOrderSuccess(t *testing.T) {
	history := newFakeHistory()
	dispatcher := &fakeDispatcher{}
	session := readySession(t)
	svc := newService(history, &fakePrices{rate: marketRate(t)}, dispatcher, &fakeExecClient{})

	order, err := svc.SubmitOrder(context.Background(), session, domain.OrderKindLimit, nil)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	if dispatcher.sentCount() != 1 {
		t.Fatalf("dispatched %d transactions, want exactly 1", dispatcher.sentCount())
	}
	if history.appends != 1 {
		t.Fatalf("appended %d records, want exactly 1", history.appends)
	}
	if order.Status != domain.OrderStatusOpen {
		t.Errorf("status = %s, want open", order.Status)
	}
	if order.CreatedTxHash != testTxHash {
		t.Errorf("tx hash = %q, want lower-cased %q", order.CreatedTxHash, testTxHash)
	}
	if order.Owner != testOwner.Hex() {
		t.Errorf("owner = %s, want %s", order.Owner, testOwner.Hex())
	}

	// The session resets for the next order.
	if session.TypedValue() != "" {
		t.Errorf("session not reset, typed value %q", session.TypedValue())
	}
}

func TestSubmitOrderValidationFailureDispatchesNothing(t *testing.T) {
	history := newFakeHistory()
	dispatcher := &fakeDispatcher{}
	session := draft.NewSession() // no tokens selected
	svc := newService(history, &fakePrices{rate: marketRate(t)}, dispatcher, &fakeExecClient{})

	_, err := svc.SubmitOrder(context.Background(), session, domain.OrderKindLimit, nil)
	if !errors.Is(err, domain.ErrMissingToken) {
		t.Fatalf("want ErrMissingToken, got %v", err)
	}
	if dispatcher.sentCount() != 0 || history.appends != 0 {
		t.Error("validation failure must not dispatch or persist anything")
	}
}

func TestSubmitOrderDispatchRejectionLeavesHistoryUntouched(t *testing.T) {
	history := newFakeHistory()
	dispatcher := &fakeDispatcher{err: fmt.Errorf("%w: nonce too low", domain.ErrTransactionRejected)}
	svc := newService(history, &fakePrices{rate: marketRate(t)}, dispatcher, &fakeExecClient{})

	_, err := svc.SubmitOrder(context.Background(), readySession(t), domain.OrderKindLimit, nil)
	if !errors.Is(err, domain.ErrTransactionRejected) {
		t.Fatalf("want ErrTransactionRejected, got %v", err)
	}
	if history.appends != 0 {
		t.Error("rejected dispatch must not create a record")
	}
}

func TestSubmitOrderAppendFailureStillReturnsOrder(t *testing.T) {
	history := newFakeHistory()
	history.failOn = errors.New("connection refused")
	dispatcher := &fakeDispatcher{}
	svc := newService(history, &fakePrices{rate: marketRate(t)}, dispatcher, &fakeExecClient{})

	order, err := svc.SubmitOrder(context.Background(), readySession(t), domain.OrderKindLimit, nil)
	if err == nil {
		t.Fatal("append failure must surface")
	}
	// The transaction is on the wire; the caller still gets the order.
	if order.ID == "" || order.CreatedTxHash == "" {
		t.Error("order must be returned even when recording fails")
	}
	if dispatcher.sentCount() != 1 {
		t.Errorf("dispatched %d, want 1", dispatcher.sentCount())
	}
}

func TestSubmitOrderFallbackID(t *testing.T) {
	history := newFakeHistory()
	svc := newService(history, &fakePrices{rate: marketRate(t)}, &fakeDispatcher{}, &fakeExecClient{emptyID: true})

	order, err := svc.SubmitOrder(context.Background(), readySession(t), domain.OrderKindLimit, nil)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if order.ID == "" {
		t.Error("a witness-less submission still needs a history key")
	}
}

func TestSubmitOrderNilClient(t *testing.T) {
	svc := newService(newFakeHistory(), &fakePrices{rate: marketRate(t)}, &fakeDispatcher{}, nil)
	_, err := svc.SubmitOrder(context.Background(), readySession(t), domain.OrderKindLimit, nil)
	if !errors.Is(err, domain.ErrClientUnreachable) {
		t.Errorf("want ErrClientUnreachable, got %v", err)
	}
}

func TestSubmitOrderDuplicateInFlight(t *testing.T) {
	history := newFakeHistory()
	block := make(chan struct{})
	dispatcher := &fakeDispatcher{block: block, entered: make(chan struct{}, 1)}
	svc := newService(history, &fakePrices{rate: marketRate(t)}, dispatcher, &fakeExecClient{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.SubmitOrder(context.Background(), readySession(t), domain.OrderKindLimit, nil)
		firstDone <- err
	}()

	// Wait until the first call is parked inside the dispatcher, then the
	// duplicate must fail fast.
	select {
	case <-dispatcher.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never reached the dispatcher")
	}
	if _, err := svc.SubmitOrder(context.Background(), readySession(t), domain.OrderKindLimit, nil); !errors.Is(err, domain.ErrAlreadyInFlight) {
		t.Fatalf("duplicate submit: want ErrAlreadyInFlight, got %v", err)
	}

	close(block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if dispatcher.sentCount() != 1 {
		t.Errorf("dispatched %d, want 1", dispatcher.sentCount())
	}
}

func TestCancelOrderSuccess(t *testing.T) {
	history := newFakeHistory()
	open := domain.Order{
		ID:           "order-1",
		Kind:         domain.OrderKindLimit,
		Owner:        testOwner.Hex(),
		InputToken:   usdc,
		OutputToken:  weth,
		InputAmount:  big.NewInt(1_000_000_000),
		OutputAmount: big.NewInt(500_000_000),
		Handler:      "0x2222222222222222222222222222222222222222",
		Witness:      "0x7777777777777777777777777777777777777777",
		Data:         []byte{0x01},
		Status:       domain.OrderStatusOpen,
	}
	other := open
	other.ID = "order-2"
	if err := history.Append(context.Background(), open); err != nil {
		t.Fatal(err)
	}
	if err := history.Append(context.Background(), other); err != nil {
		t.Fatal(err)
	}

	client := &fakeExecClient{}
	svc := newService(history, &fakePrices{rate: marketRate(t)}, &fakeDispatcher{}, client)

	got, err := svc.CancelOrder(context.Background(), "order-1", nil)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.CancelledTx != testTxHash {
		t.Errorf("cancelled tx = %q, want lower-cased %q", got.CancelledTx, testTxHash)
	}
	if !client.lastCancel.exists {
		t.Error("complete record must cancel with existsOnChain=true")
	}
	// Amounts survive untouched.
	if got.InputAmount.Cmp(open.InputAmount) != 0 || got.OutputAmount.Cmp(open.OutputAmount) != 0 {
		t.Error("cancellation must not alter amounts")
	}

	// Only the targeted record transitions.
	rec, err := history.Find(context.Background(), "order-2")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.OrderStatusOpen {
		t.Errorf("unrelated record transitioned to %s", rec.Status)
	}
}

func TestCancelOrderIncompleteRecordStillAttempted(t *testing.T) {
	history := newFakeHistory()
	partial := domain.Order{
		ID:     "order-3",
		Owner:  testOwner.Hex(),
		Status: domain.OrderStatusOpen,
		// no handler, witness, or data
	}
	if err := history.Append(context.Background(), partial); err != nil {
		t.Fatal(err)
	}

	client := &fakeExecClient{}
	svc := newService(history, &fakePrices{rate: marketRate(t)}, &fakeDispatcher{}, client)

	if _, err := svc.CancelOrder(context.Background(), "order-3", nil); err != nil {
		t.Fatalf("incomplete record must still be attempted: %v", err)
	}
	if client.lastCancel.exists {
		t.Error("incomplete record must pass existsOnChain=false")
	}
}

func TestCancelOrderTerminalRejected(t *testing.T) {
	history := newFakeHistory()
	done := domain.Order{ID: "order-4", Owner: testOwner.Hex(), Status: domain.OrderStatusExecuted}
	if err := history.Append(context.Background(), done); err != nil {
		t.Fatal(err)
	}
	dispatcher := &fakeDispatcher{}
	svc := newService(history, &fakePrices{rate: marketRate(t)}, dispatcher, &fakeExecClient{})

	_, err := svc.CancelOrder(context.Background(), "order-4", nil)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
	if dispatcher.sentCount() != 0 {
		t.Error("terminal record must not dispatch a cancellation")
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	svc := newService(newFakeHistory(), &fakePrices{rate: marketRate(t)}, &fakeDispatcher{}, &fakeExecClient{})
	_, err := svc.CancelOrder(context.Background(), "missing", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestCancelOrderDefaultGasLimit(t *testing.T) {
	history := newFakeHistory()
	if err := history.Append(context.Background(), domain.Order{ID: "order-5", Owner: testOwner.Hex(), Status: domain.OrderStatusOpen}); err != nil {
		t.Fatal(err)
	}
	dispatcher := &fakeDispatcher{}
	svc := newService(history, &fakePrices{rate: marketRate(t)}, dispatcher, &fakeExecClient{})

	if _, err := svc.CancelOrder(context.Background(), "order-5", nil); err != nil {
		t.Fatal(err)
	}
	if got := dispatcher.sent[0].GasLimit; got != defaultCancelGasLimit {
		t.Errorf("gas limit = %d, want default %d", got, defaultCancelGasLimit)
	}

	if err := history.Append(context.Background(), domain.Order{ID: "order-6", Owner: testOwner.Hex(), Status: domain.OrderStatusOpen}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CancelOrder(context.Background(), "order-6", &TxOverrides{GasLimit: 300_000}); err != nil {
		t.Fatal(err)
	}
	if got := dispatcher.sent[1].GasLimit; got != 300_000 {
		t.Errorf("gas limit = %d, want override 300000", got)
	}
}

func TestListAndGet(t *testing.T) {
	history := newFakeHistory()
	open := domain.Order{ID: "order-7", Owner: testOwner.Hex(), Status: domain.OrderStatusOpen}
	done := domain.Order{ID: "order-8", Owner: testOwner.Hex(), Status: domain.OrderStatusExecuted}
	foreign := domain.Order{ID: "order-9", Owner: "0xother", Status: domain.OrderStatusOpen}
	for _, o := range []domain.Order{open, done, foreign} {
		if err := history.Append(context.Background(), o); err != nil {
			t.Fatal(err)
		}
	}
	svc := newService(history, &fakePrices{rate: marketRate(t)}, &fakeDispatcher{}, &fakeExecClient{})

	openOrders, err := svc.ListOpen(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(openOrders) != 1 || openOrders[0].ID != "order-7" {
		t.Errorf("ListOpen = %v", openOrders)
	}

	all, err := svc.ListHistory(context.Background(), domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("ListHistory returned %d records, want 2", len(all))
	}

	got, err := svc.GetOrder(context.Background(), "order-8")
	if err != nil || got.ID != "order-8" {
		t.Errorf("GetOrder = (%v, %v)", got.ID, err)
	}
	if _, err := svc.GetOrder(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing id: want ErrNotFound, got %v", err)
	}
}

func TestMarketRateTreatsNoRouteAsNil(t *testing.T) {
	session := readySession(t)

	svc := newService(newFakeHistory(), &fakePrices{err: domain.ErrNoRoute}, &fakeDispatcher{}, &fakeExecClient{})
	r, err := svc.MarketRate(context.Background(), session)
	if err != nil || r != nil {
		t.Errorf("ErrNoRoute: want (nil, nil), got (%v, %v)", r, err)
	}

	svc = newService(newFakeHistory(), &fakePrices{err: errors.New("redis down")}, &fakeDispatcher{}, &fakeExecClient{})
	if _, err := svc.MarketRate(context.Background(), session); err == nil {
		t.Error("unexpected price-source failures must propagate")
	}
}

func TestBlockingReason(t *testing.T) {
	session := readySession(t)
	svc := newService(newFakeHistory(), &fakePrices{rate: marketRate(t)}, &fakeDispatcher{}, &fakeExecClient{})
	if err := svc.BlockingReason(context.Background(), session); err != nil {
		t.Errorf("submittable draft: want nil, got %v", err)
	}

	svc = newService(newFakeHistory(), &fakePrices{err: domain.ErrNoRoute}, &fakeDispatcher{}, &fakeExecClient{})
	if err := svc.BlockingReason(context.Background(), session); !errors.Is(err, domain.ErrNoRoute) {
		t.Errorf("no rate: want ErrNoRoute, got %v", err)
	}
}
