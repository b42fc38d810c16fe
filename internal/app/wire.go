package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/cipherbet/cipherbet/internal/blob/s3"
	"github.com/cipherbet/cipherbet/internal/cache/redis"
	"github.com/cipherbet/cipherbet/internal/config"
	"github.com/cipherbet/cipherbet/internal/crypto"
	"github.com/cipherbet/cipherbet/internal/domain"
	"github.com/cipherbet/cipherbet/internal/fhe"
	"github.com/cipherbet/cipherbet/internal/ledger"
	"github.com/cipherbet/cipherbet/internal/notify"
	"github.com/cipherbet/cipherbet/internal/platform/relayer"
	"github.com/cipherbet/cipherbet/internal/service"
	"github.com/cipherbet/cipherbet/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Clients
	Signer  *crypto.Signer
	Ledger  *ledger.Client
	Relayer *relayer.Client

	// Stores and caches
	Bets        *postgres.BetStore
	RoundCache  domain.RoundCache
	SignalBus   *redis.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Liveness probes for the health endpoint.
	PostgresPing func(ctx context.Context) error
	RedisPing    func(ctx context.Context) error

	// Blob storage (archive mode only; nil otherwise)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Services
	Rounds  *service.RoundService
	Reveal  *service.RevealService
	Claims  *service.ClaimService
	Watcher *service.Watcher

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 returns true for modes that write to the cold-storage archive.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Wallet and signer ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex, cfg.Chain.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	deps.Signer = signer

	// --- Ledger client ---
	ledgerClient, err := ledger.New(ctx, ledger.Config{
		RPCURL:          cfg.Chain.RPCURL,
		ChainID:         cfg.Chain.ChainID,
		ContractAddress: cfg.Chain.ContractAddress,
		ConfirmTimeout:  cfg.Chain.ConfirmTimeout.Duration,
	}, signer)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	closers = append(closers, ledgerClient.Close)
	deps.Ledger = ledgerClient

	// --- Relayer client ---
	deps.Relayer = relayer.New(cfg.Relayer.BaseURL, cfg.Relayer.APIKey, cfg.Relayer.Timeout.Duration)

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
	deps.Bets = postgres.NewBetStore(pgClient.Pool())
	deps.PostgresPing = func(ctx context.Context) error { return pgClient.Pool().Ping(ctx) }

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

	deps.RoundCache = redis.NewRoundCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.RedisPing = redisClient.Ping

	// --- S3 blob storage (archive modes only) ---
	if needsS3(cfg.Mode) {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Services ---
	self := signer.Address().Hex()
	builder := fhe.NewInputBuilder(deps.Relayer, ledgerClient.ContractAddress())

	deps.Rounds = service.NewRoundService(
		ledgerClient, builder, deps.Bets, deps.RoundCache, deps.SignalBus, self, logger,
	)
	deps.Reveal = service.NewRevealService(
		ledgerClient, deps.Relayer, signer, deps.Bets, service.NewResultCache(),
		deps.SignalBus, ledgerClient.ContractAddress(),
		int64(cfg.Relayer.GrantDurationDays), logger,
	)
	deps.Claims = service.NewClaimService(
		ledgerClient, deps.Reveal, deps.Bets, deps.SignalBus, logger,
	)
	if cfg.Watcher.Enabled {
		deps.Watcher = service.NewWatcher(
			deps.Rounds, deps.LockManager, cfg.Watcher.PollInterval.Duration,
			cfg.Watcher.ResolveOwn, self, logger,
		)
	}

	// --- Notifications ---
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
