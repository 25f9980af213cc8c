package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/openoracle/internal/attestation"
	s3blob "github.com/alanyoungcy/openoracle/internal/blob/s3"
	"github.com/alanyoungcy/openoracle/internal/cache/redis"
	"github.com/alanyoungcy/openoracle/internal/config"
	"github.com/alanyoungcy/openoracle/internal/crypto"
	"github.com/alanyoungcy/openoracle/internal/domain"
	"github.com/alanyoungcy/openoracle/internal/ledger"
	"github.com/alanyoungcy/openoracle/internal/notify"
	"github.com/alanyoungcy/openoracle/internal/platform/coinbase"
	"github.com/alanyoungcy/openoracle/internal/platform/okx"
	"github.com/alanyoungcy/openoracle/internal/publisher"
	"github.com/alanyoungcy/openoracle/internal/service"
	"github.com/alanyoungcy/openoracle/internal/store/postgres"
)

// Publisher runs publish cycles. *publisher.Publisher satisfies it.
type Publisher interface {
	PublishCycle(ctx context.Context, assets []string) domain.CycleReport
}

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function. Publisher and Account
// are nil/empty in status mode.
type Dependencies struct {
	Account   string
	Venues    []string
	Publisher Publisher
	Recorder  *service.PublicationService

	// Optional.
	LockManager domain.LockManager
	Subscriber  domain.EventSubscriber
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(format string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf(format, err)
	}

	deps := &Dependencies{Venues: enabledVenues(cfg)}
	var recDeps service.PublicationDeps

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
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
			return fail("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("wire: postgres migrations: %w", err)
			}
		}

		recDeps.Store = pgClient.Publications()
		recDeps.Audit = pgClient.Audit()
	}

	// --- Redis ---
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
			return fail("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewEventBus(redisClient)
		recDeps.Prices = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		recDeps.Bus = bus
		deps.Subscriber = bus
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	if !cfg.NeedsLedger() {
		deps.Recorder = service.NewPublicationService(recDeps, logger)
		return deps, cleanup, nil
	}

	// --- S3 batch archive ---
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
			return fail("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		if err := s3Client.Health(ctx); err != nil {
			return fail("wire: s3: %w", err)
		}
		recDeps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), recDeps.Audit)
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
	if notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger); notifier.Enabled() {
		recDeps.Notifier = notifier
	}

	deps.Recorder = service.NewPublicationService(recDeps, logger)

	// --- Account and ledger ---
	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Account.PrivateKey,
		EncryptedKeyPath: cfg.Account.EncryptedKeyPath,
		KeyPassword:      cfg.Account.KeyPassword,
	}, cfg.Ledger.ChainID)
	if err != nil {
		return fail("wire: account: %w", err)
	}
	deps.Account = signer.Address().Hex()

	eth, err := ethclient.DialContext(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		return fail("wire: dial ledger: %w", err)
	}
	closers = append(closers, eth.Close)

	ledgerCfg := ledger.Config{
		Contract:       common.HexToAddress(cfg.Ledger.ContractAddress),
		WaitReceipt:    cfg.Ledger.WaitReceipt,
		ReceiptTimeout: cfg.Ledger.ReceiptTimeout.Duration,
	}
	if cfg.Ledger.MulticallAddress != "" {
		ledgerCfg.Multicall = common.HexToAddress(cfg.Ledger.MulticallAddress)
	}
	submitter, err := ledger.NewSubmitter(eth, signer, ledgerCfg, logger)
	if err != nil {
		return fail("wire: ledger: %w", err)
	}

	// --- Venues ---
	venues, err := buildVenues(cfg, logger)
	if err != nil {
		return fail("wire: venues: %w", err)
	}

	deps.Publisher = publisher.New(submitter, venues, publisher.Options{
		Mode: domain.SubmitMode(strings.ToLower(cfg.Publish.Mode)),
		Retry: publisher.RetryPolicy{
			MaxAttempts: cfg.Publish.MaxRetries,
			Delay:       cfg.Publish.RetryDelay.Duration,
		},
	}, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("account", deps.Account),
		slog.Any("venues", deps.Venues),
		slog.String("publish_mode", cfg.Publish.Mode),
		slog.Bool("postgres", cfg.Postgres.Enabled),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.Int("notify_senders", len(senders)),
	)

	return deps, cleanup, nil
}

// enabledVenues lists the configured venue names in publish order.
func enabledVenues(cfg *config.Config) []string {
	var names []string
	if cfg.OKX.Enabled {
		names = append(names, okx.Name)
	}
	if cfg.Coinbase.Enabled {
		names = append(names, coinbase.Name)
	}
	return names
}

// buildVenues creates the attestation sources of every enabled venue. OKX is
// published before Coinbase.
func buildVenues(cfg *config.Config, logger *slog.Logger) ([]publisher.Venue, error) {
	var venues []publisher.Venue

	if cfg.OKX.Enabled {
		identity, err := attestation.ParseIdentity(cfg.OKX.Publisher)
		if err != nil {
			return nil, fmt.Errorf("okx: %w", err)
		}
		venues = append(venues, publisher.Venue{
			Name:     okx.Name,
			Identity: identity,
			Source: okx.NewClient(okx.ClientConfig{
				BaseURL:         cfg.OKX.BaseURL,
				RateLimitPerMin: cfg.OKX.RateLimitPerMin,
				Logger:          logger,
			}),
		})
	}

	if cfg.Coinbase.Enabled {
		identity, err := attestation.ParseIdentity(cfg.Coinbase.Publisher)
		if err != nil {
			return nil, fmt.Errorf("coinbase: %w", err)
		}
		client, err := coinbase.NewClient(coinbase.ClientConfig{
			Auth: crypto.HMACAuth{
				Key:        cfg.Coinbase.APIKey,
				Secret:     cfg.Coinbase.APISecret,
				Passphrase: cfg.Coinbase.APIPassphrase,
			},
			BaseURL:         cfg.Coinbase.BaseURL,
			RateLimitPerMin: cfg.Coinbase.RateLimitPerMin,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		venues = append(venues, publisher.Venue{
			Name:     coinbase.Name,
			Identity: identity,
			Source:   client,
		})
	}

	return venues, nil
}
