package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/gavelhq/gavel/internal/blob/s3"
	"github.com/gavelhq/gavel/internal/cache/redis"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/crypto"
	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/lock"
	"github.com/gavelhq/gavel/internal/notify"
	"github.com/gavelhq/gavel/internal/oracle"
	"github.com/gavelhq/gavel/internal/rail"
	"github.com/gavelhq/gavel/internal/store/memory"
	"github.com/gavelhq/gavel/internal/store/postgres"
)

// devOperator is the marketplace operator identity used when no signing key
// is configured (standalone mode or oracle disabled).
var devOperator = common.HexToAddress("0x000000000000000000000000000000000000d011")

// defaultEscrowAccount holds escrowed funds on the ledger when the config
// does not name one.
var defaultEscrowAccount = common.HexToAddress("0x00000000000000000000000000000000000e5c01")

// Dependencies bundles every domain-level dependency the application needs
// to operate. It is constructed by Wire or WireStandalone and torn down by
// the returned cleanup function.
type Dependencies struct {
	Store    domain.MarketplaceStore
	Audit    domain.AuditStore
	Rail     domain.PaymentRail
	Oracle   domain.OwnershipOracle
	Locks    domain.LockManager
	Operator common.Address

	// Redis-backed extras; nil in standalone mode.
	StatusCache domain.StatusCache
	Bus         domain.EventBus
	RateLimiter domain.RateLimiter

	// Cold storage; nil unless archival is enabled.
	Archiver *s3blob.Archiver

	// Notifications.
	Notifier *notify.Notifier

	// Health probes for the backing services, keyed by dependency name.
	// Empty in standalone mode, where the health endpoint is liveness only.
	Health map[string]func(ctx context.Context) error

	// Standalone-mode seeding hooks; nil in serve mode.
	Registry *oracle.Registry
	DevFund  func(ctx context.Context, addr common.Address, amount int64) error
}

// escrowAccount resolves the ledger account holding escrowed funds.
func escrowAccount(cfg *config.Config) common.Address {
	if common.IsHexAddress(cfg.Market.EscrowAccount) {
		return common.HexToAddress(cfg.Market.EscrowAccount)
	}
	return defaultEscrowAccount
}

// Wire constructs the production dependency set: Postgres for state, Redis
// for locks, cache, and events, optionally an on-chain oracle and S3
// archival. It returns the dependencies together with a cleanup function
// that should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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

	pool := pgClient.Pool()
	marketplaceStore := postgres.NewMarketplaceStore(pool)
	auditStore := postgres.NewAuditStore(pool)
	balances := postgres.NewBalanceStore(pool)
	deps.Store = marketplaceStore
	deps.Audit = auditStore
	deps.Rail = rail.NewLedger(balances, escrowAccount(cfg), logger)
	deps.DevFund = balances.Deposit

	// --- Redis ---
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

	deps.Locks = redis.NewLockManager(redisClient)
	deps.StatusCache = redis.NewStatusCache(redisClient)
	deps.Bus = redis.NewEventBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	deps.Health = map[string]func(ctx context.Context) error{
		"postgres": pgClient.Ping,
		"redis":    redisClient.Ping,
	}

	// --- Ownership oracle ---
	if cfg.Oracle.Enabled {
		key, err := crypto.LoadECDSA(crypto.KeyConfig{
			RawPrivateKey:    cfg.Oracle.PrivateKey,
			EncryptedKeyPath: cfg.Oracle.EncryptedKeyPath,
			KeyPassword:      cfg.Oracle.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle key: %w", err)
		}

		eth, err := oracle.Dial(ctx, oracle.Config{
			RPCURL:         cfg.Oracle.RPCURL,
			Contract:       common.HexToAddress(cfg.Oracle.Contract),
			ChainID:        cfg.Oracle.ChainID,
			GasLimit:       cfg.Oracle.GasLimit,
			ReceiptTimeout: cfg.Oracle.ReceiptTimeout.Duration,
		}, key, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle: %w", err)
		}
		closers = append(closers, eth.Close)

		deps.Oracle = eth
		deps.Operator = eth.Operator()
	} else {
		// No chain configured: track ownership in memory so the engine still
		// verifies sellers and executes transfers.
		registry := oracle.NewRegistry()
		deps.Oracle = registry
		deps.Registry = registry
		deps.Operator = devOperator
	}

	// --- S3 cold storage ---
	if cfg.Archive.Enabled {
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

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), auditStore, marketplaceStore)
		deps.Health["s3"] = s3Client.Health
	}

	deps.Notifier = buildNotifier(cfg, logger)

	return deps, cleanup, nil
}

// WireStandalone constructs an all-in-memory dependency set for local
// development: memory store and ledger, process-local locks, and the
// in-memory ownership registry. There is no Redis, so status caching, event
// fan-out, and rate limiting are disabled.
func WireStandalone(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	balances := memory.NewBalances()
	registry := oracle.NewRegistry()

	deps := &Dependencies{
		Store:    memory.NewStore(),
		Audit:    memory.NewAuditStore(),
		Rail:     rail.NewLedger(balances, escrowAccount(cfg), logger),
		Oracle:   registry,
		Locks:    lock.NewLocal(),
		Operator: devOperator,
		Registry: registry,
		DevFund: func(ctx context.Context, addr common.Address, amount int64) error {
			balances.Deposit(addr, amount)
			return nil
		},
		Notifier: buildNotifier(cfg, logger),
	}

	return deps, func() {}, nil
}

// buildNotifier assembles the configured notification senders.
func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}
