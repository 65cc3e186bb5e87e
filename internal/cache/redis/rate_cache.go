package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyip/limitbot/internal/domain"
)

// RateCache implements domain.RateCache and domain.PriceSource using Redis
// hashes. Each pair's rate is stored at key "rate:{base}:{quote}" with
// fields "num", "den" (exact rational) and "ts" (Unix nanoseconds). Entries
// expire after the configured TTL so a dead feed cannot serve stale rates
// forever.
type RateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRateCache creates a RateCache backed by the given Client. A zero ttl
// disables expiry.
func NewRateCache(c *Client, ttl time.Duration) *RateCache {
	return &RateCache{rdb: c.Underlying(), ttl: ttl}
}

func rateKey(base, quote string) string {
	return "rate:" + base + ":" + quote
}

// SetRate stores the latest market rate for a pair.
func (rc *RateCache) SetRate(ctx context.Context, base, quote string, r *big.Rat, ts time.Time) error {
	key := rateKey(base, quote)
	fields := map[string]interface{}{
		"num": r.Num().String(),
		"den": r.Denom().String(),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate %s/%s: %w", base, quote, err)
	}
	if rc.ttl > 0 {
		if err := rc.rdb.Expire(ctx, key, rc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire rate %s/%s: %w", base, quote, err)
		}
	}
	return nil
}

// GetRate retrieves the latest market rate for a pair. It returns
// domain.ErrNotFound when no rate is cached.
func (rc *RateCache) GetRate(ctx context.Context, base, quote string) (*big.Rat, time.Time, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey(base, quote)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get rate %s/%s: %w", base, quote, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	num, okN := new(big.Int).SetString(vals["num"], 10)
	den, okD := new(big.Int).SetString(vals["den"], 10)
	if !okN || !okD || den.Sign() == 0 {
		return nil, time.Time{}, fmt.Errorf("redis: malformed rate %s/%s: %w", base, quote, domain.ErrNotFound)
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		tsNano = 0
	}
	return new(big.Rat).SetFrac(num, den), time.Unix(0, tsNano), nil
}

// CurrentMarketRate satisfies domain.PriceSource: the rate for input→output
// in output-per-input orientation, or domain.ErrNoRoute when the cache
// holds nothing for the pair.
func (rc *RateCache) CurrentMarketRate(ctx context.Context, input, output domain.Token) (*big.Rat, error) {
	r, _, err := rc.GetRate(ctx, input.Symbol, output.Symbol)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// The inverse orientation may be cached instead.
	inv, _, invErr := rc.GetRate(ctx, output.Symbol, input.Symbol)
	if invErr == nil && inv.Sign() != 0 {
		return new(big.Rat).Inv(inv), nil
	}
	return nil, domain.ErrNoRoute
}

var (
	_ domain.RateCache   = (*RateCache)(nil)
	_ domain.PriceSource = (*RateCache)(nil)
)
