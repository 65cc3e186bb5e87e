package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyip/limitbot/internal/blob/s3"
	"github.com/alanyip/limitbot/internal/cache/redis"
	"github.com/alanyip/limitbot/internal/config"
	"github.com/alanyip/limitbot/internal/crypto"
	"github.com/alanyip/limitbot/internal/domain"
	"github.com/alanyip/limitbot/internal/eth"
	"github.com/alanyip/limitbot/internal/exec"
	"github.com/alanyip/limitbot/internal/service"
	"github.com/alanyip/limitbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate.
// Constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	History    domain.OrderHistory
	Rates      *redis.RateCache // RateCache + PriceSource
	Dispatcher domain.TxDispatcher
	ExecClient *exec.Client
	Signer     *crypto.Signer
	Orders     *service.OrderService
	Archiver   domain.Archiver
}

// Wire constructs the concrete dependency implementations for the
// configured mode and returns them with a cleanup function to be called on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL order history (all modes) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	history := postgres.NewHistoryStore(pgClient.Pool())
	deps.History = history

	if cfg.Mode == "archive" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3 health: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), history)
		return deps, cleanup, nil
	}

	// --- Redis market-rate cache ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Rates = redis.NewRateCache(redisClient, time.Duration(cfg.Redis.RateTTLSeconds)*time.Second)

	// --- Signer ---
	signer, err := crypto.NewSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	deps.Signer = signer

	// --- Chain backend + dispatcher ---
	backend, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: dial rpc: %w", err)
	}
	closers = append(closers, backend.Close)

	chainID := big.NewInt(cfg.Chain.ChainID)
	deps.Dispatcher = eth.NewDispatcher(backend, signer, chainID, logger)

	// --- Execution client ---
	handlers := map[domain.OrderKind]common.Address{}
	if cfg.Chain.LimitHandler != "" {
		handlers[domain.OrderKindLimit] = common.HexToAddress(cfg.Chain.LimitHandler)
	}
	if cfg.Chain.StopLimitHandler != "" {
		handlers[domain.OrderKindStopLimit] = common.HexToAddress(cfg.Chain.StopLimitHandler)
	}
	if cfg.Chain.StopLossHandler != "" {
		handlers[domain.OrderKindStopLoss] = common.HexToAddress(cfg.Chain.StopLossHandler)
	}

	execClient, err := exec.New(exec.Config{
		ChainID:         chainID,
		Core:            common.HexToAddress(cfg.Chain.CoreAddress),
		Handlers:        handlers,
		ExecutionFeeBps: cfg.Chain.ExecutionFeeBps,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: exec client: %w", err)
	}
	deps.ExecClient = execClient

	deps.Orders = service.NewOrderService(
		history, deps.Rates, deps.Dispatcher, execClient, signer.Address(), logger,
	)

	return deps, cleanup, nil
}
