package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/alanyip/limitbot/internal/crypto"
	"github.com/alanyip/limitbot/internal/feed"
	"github.com/alanyip/limitbot/internal/server"
	"github.com/alanyip/limitbot/internal/server/handler"
)

const openOrderLogInterval = 5 * time.Minute

// ServeMode runs the long-lived serve loop: the HTTP order API handles
// submissions and cancellations while the websocket rate feed keeps the
// cache current. Blocks until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering serve mode",
		slog.Int64("chain_id", a.cfg.Chain.ChainID),
		slog.String("owner", deps.Signer.Address().Hex()),
		slog.String("addr", a.cfg.Server.Addr),
	)

	srv := server.New(
		server.Config{Addr: a.cfg.Server.Addr},
		server.Handlers{
			Health: handler.NewHealthHandler(),
			Orders: handler.NewOrderHandler(deps.Orders, a.cfg.Order.DefaultSlippageBps, a.logger),
		},
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx)
	})

	g.Go(func() error {
		rateFeed := feed.NewRateFeed(a.cfg.Feed.WSURL, a.cfg.Feed.Pairs, deps.Rates, a.logger)
		return rateFeed.Run(ctx)
	})

	g.Go(func() error {
		return a.openOrderHeartbeat(ctx, deps)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openOrderHeartbeat periodically logs the open-order count so operators
// can watch the book without querying the database.
func (a *App) openOrderHeartbeat(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(openOrderLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			open, err := deps.Orders.ListOpen(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "open order listing failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "open order heartbeat",
				slog.Int("open_orders", len(open)),
			)
		}
	}
}

// ArchiveMode runs a single archival pass over terminal orders older than
// the configured cutoff, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.S3.ArchiveAfterDays)
	a.logger.InfoContext(ctx, "entering archive mode",
		slog.Time("cutoff", cutoff),
	)

	archived, err := deps.Archiver.ArchiveOrders(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive orders: %w", err)
	}

	a.logger.InfoContext(ctx, "archive pass complete",
		slog.Int64("archived", archived),
	)
	return nil
}

// KeygenMode writes an encrypted keyfile to wallet.encrypted_key_path. It
// encrypts wallet.private_key when one is configured, otherwise a freshly
// generated key. An existing file is never overwritten.
func (a *App) KeygenMode(ctx context.Context) error {
	keyHex := strings.TrimPrefix(a.cfg.Wallet.PrivateKey, "0x")
	if keyHex == "" {
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("app: generate key: %w", err)
		}
		keyHex = hex.EncodeToString(ethcrypto.FromECDSA(key))
	}

	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return fmt.Errorf("app: parse key: %w", err)
	}

	data, err := crypto.EncryptKey(keyHex, a.cfg.Wallet.KeyPassword)
	if err != nil {
		return fmt.Errorf("app: encrypt key: %w", err)
	}

	path := a.cfg.Wallet.EncryptedKeyPath
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("app: create keyfile %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("app: write keyfile %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("app: close keyfile %s: %w", path, err)
	}

	a.logger.InfoContext(ctx, "keyfile written",
		slog.String("path", path),
		slog.String("address", ethcrypto.PubkeyToAddress(key.PublicKey).Hex()),
	)
	return nil
}
