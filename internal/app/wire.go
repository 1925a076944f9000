package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/strikelab/strikebot/internal/blob/s3"
	"github.com/strikelab/strikebot/internal/cache/redis"
	"github.com/strikelab/strikebot/internal/config"
	"github.com/strikelab/strikebot/internal/coordinator"
	"github.com/strikelab/strikebot/internal/crypto"
	"github.com/strikelab/strikebot/internal/domain"
	"github.com/strikelab/strikebot/internal/executor"
	"github.com/strikelab/strikebot/internal/feed"
	"github.com/strikelab/strikebot/internal/marketstate"
	"github.com/strikelab/strikebot/internal/notify"
	"github.com/strikelab/strikebot/internal/platform/polymarket"
	"github.com/strikelab/strikebot/internal/recorder"
	"github.com/strikelab/strikebot/internal/signal"
	"github.com/strikelab/strikebot/internal/store/postgres"
)

// Dependencies bundles everything the run tree needs. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store       *marketstate.Store
	PriceFeed   *feed.PriceFeed
	OddsFeed    *feed.OddsFeed
	Coordinator *coordinator.Coordinator
	Recorder    *recorder.Recorder

	// Archiver is nil unless S3 is enabled.
	Archiver *s3blob.ShadowArchiver

	// InstanceLock is nil unless Redis is enabled; Run acquires it before
	// starting the loops.
	InstanceLock *redis.InstanceLock
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
	strat := &cfg.Strategy

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
	tradeStore := postgres.NewTradeStore(pool)
	shadowStore := postgres.NewShadowStore(pool)

	// --- Redis (optional) ---
	var bus domain.EventBus
	if cfg.Redis.Enabled {
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

		bus = redis.NewEventBus(redisClient)
		deps.InstanceLock = redis.NewInstanceLock(redisClient)
	}

	// --- S3 shadow archiver (optional) ---
	if cfg.S3.Enabled {
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

		deps.Archiver = s3blob.NewShadowArchiver(s3blob.NewWriter(s3Client), shadowStore, logger)
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
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Market state + feeds ---
	store := marketstate.NewStore(strat.PriceHistorySize, strat.OddsHistorySize, strat.Assets)
	deps.Store = store
	deps.PriceFeed = feed.NewPriceFeed(cfg.Binance.WsHost, strat.Assets, store, logger)
	deps.OddsFeed = feed.NewOddsFeed(cfg.Polymarket.WsHost, store, logger)

	// --- Order client (live mode only; dry-run never touches the network) ---
	var orders executor.OrderClient
	if !strat.DryRun {
		clob, err := wireOrderClient(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		orders = clob
	}

	exec := executor.New(orders, executor.Config{
		NotionalPerSide: strat.NotionalPerSide,
		MaxDailyLoss:    strat.MaxDailyLoss,
		OrderTimeout:    strat.OrderTimeout.Duration,
		DryRun:          strat.DryRun,
	}, bus, logger)

	// --- Signal engine ---
	engine := signal.NewEngine(signal.Params{
		EntryWindow:          strat.EntryWindow.Duration,
		ExecutionWindow:      strat.ExecutionWindow.Duration,
		MinUnderdogAsk:       strat.MinUnderdogAsk,
		MaxUnderdogAsk:       strat.MaxUnderdogAsk,
		TightnessThreshold:   strat.TightnessThreshold,
		TightnessCeiling:     strat.TightnessCeiling,
		MomentumThreshold:    strat.MomentumThreshold,
		MomentumHorizon:      strat.MomentumHorizon.Duration,
		OddsTrendHorizon:     strat.OddsTrendHorizon.Duration,
		OddsTrendEpsilon:     strat.OddsTrendEpsilon,
		VolatilityWindow:     strat.VolatilityWindow.Duration,
		VolatilityMultiplier: strat.VolatilityMultiplier,
		MinVolatility:        strat.MinVolatility,
		Staleness:            strat.StalenessThreshold.Duration,
	})

	// --- Discovery, oracle, recorder, coordinator ---
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, strat.Assets, logger)
	rec := recorder.New(tradeStore, shadowStore, bus, notifier, logger)
	deps.Recorder = rec

	deps.Coordinator = coordinator.New(coordinator.Config{
		TickInterval:       strat.TickInterval.Duration,
		DiscoveryInterval:  strat.DiscoveryInterval.Duration,
		ExecutionWindow:    strat.ExecutionWindow.Duration,
		MomentumHorizon:    strat.MomentumHorizon.Duration,
		VolatilityWindow:   strat.VolatilityWindow.Duration,
		TightnessThreshold: strat.TightnessThreshold,
	}, store, engine, gamma, exec, rec, deps.OddsFeed, gamma, logger)

	return deps, cleanup, nil
}

// wireOrderClient resolves the wallet key, builds the EIP-712 signer, and
// returns a CLOB client with L2 credentials (configured or freshly derived).
func wireOrderClient(ctx context.Context, cfg *config.Config) (*polymarket.ClobClient, error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: wallet key: %w", err)
	}

	signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
	if err != nil {
		return nil, fmt.Errorf("wire: signer: %w", err)
	}

	var hmac *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		hmac = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}

	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, hmac)
	if hmac == nil {
		if err := clob.DeriveAPIKey(ctx); err != nil {
			return nil, fmt.Errorf("wire: derive api key: %w", err)
		}
	}
	return clob, nil
}
