// Package feed keeps the market-rate cache warm from an external price
// stream. The stream is the concrete stand-in for the price-source
// collaborator; the order path only ever reads the cache.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyip/limitbot/internal/amount"
	"github.com/alanyip/limitbot/internal/domain"
)

const (
	reconnectDelay = 2 * time.Second
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
)

// tickMessage is one rate update from the stream. Price is a decimal string
// in quote-per-base orientation.
type tickMessage struct {
	Type  string `json:"type"`
	Base  string `json:"base"`
	Quote string `json:"quote"`
	Price string `json:"price"`
	TS    int64  `json:"ts"`
}

// subscribeMessage requests updates for a set of pairs.
type subscribeMessage struct {
	Type  string   `json:"type"`
	Pairs []string `json:"pairs"`
}

// RateFeed subscribes to a websocket price stream and writes every tick
// into the rate cache. It reconnects with a fixed delay on disconnect.
type RateFeed struct {
	wsURL  string
	pairs  []string // "BASE/QUOTE"
	rates  domain.RateCache
	logger *slog.Logger
}

// NewRateFeed creates a feed for the given pairs.
func NewRateFeed(wsURL string, pairs []string, rates domain.RateCache, logger *slog.Logger) *RateFeed {
	return &RateFeed{
		wsURL:  wsURL,
		pairs:  pairs,
		rates:  rates,
		logger: logger.With(slog.String("component", "rate_feed")),
	}
}

// Run connects, subscribes, and pumps ticks into the cache until ctx is
// cancelled.
func (f *RateFeed) Run(ctx context.Context) error {
	if len(f.pairs) == 0 {
		f.logger.Info("no pairs configured, rate feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("rate feed disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *RateFeed) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", Pairs: f.pairs}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}

	f.logger.InfoContext(ctx, "rate feed connected",
		slog.String("url", f.wsURL),
		slog.Int("pairs", len(f.pairs)),
	)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}

		var tick tickMessage
		if err := json.Unmarshal(raw, &tick); err != nil {
			f.logger.Warn("rate feed: skipping malformed message",
				slog.String("error", err.Error()),
			)
			continue
		}
		if tick.Type != "tick" || tick.Base == "" || tick.Quote == "" {
			continue
		}

		r, err := amount.ParseDecimal(tick.Price)
		if err != nil || r.Sign() <= 0 {
			f.logger.Warn("rate feed: skipping bad price",
				slog.String("pair", tick.Base+"/"+tick.Quote),
				slog.String("price", tick.Price),
			)
			continue
		}

		ts := time.Unix(0, tick.TS)
		if tick.TS == 0 {
			ts = time.Now().UTC()
		}
		if err := f.rates.SetRate(ctx, tick.Base, tick.Quote, r, ts); err != nil {
			f.logger.Warn("rate feed: cache write failed",
				slog.String("pair", tick.Base+"/"+tick.Quote),
				slog.String("error", err.Error()),
			)
		}
	}
}
