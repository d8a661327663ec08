package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/crossarb/internal/blob/s3"
	"github.com/alanyoungcy/crossarb/internal/cache/redis"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/match"
	"github.com/alanyoungcy/crossarb/internal/metrics"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/platform/generic"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/spread"
	"github.com/alanyoungcy/crossarb/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Store, cache and archive fields are nil when their backend is disabled.
type Dependencies struct {
	// Collection and matching
	Sources    []domain.MarketSource
	Engine     *match.Engine
	Calculator *spread.Calculator
	Deduper    *spread.Deduper
	Metrics    *metrics.ScanMetrics

	// Stores
	OpportunityStore domain.OpportunityStore
	MatchLogStore    domain.MatchLogStore
	AuditStore       domain.AuditStore

	// Caches
	SnapshotCache domain.SnapshotCache
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Blob storage
	Archive domain.ReportArchive

	// Notifications
	Notifier *notify.Notifier

	// Health probes keyed by backend name.
	Checks map[string]handler.Check
}

// needsSources reports whether the mode runs scan cycles.
func needsSources(mode string) bool {
	return mode != "server"
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
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  map[string]handler.Check{},
	}

	// --- Platforms, matcher and calculator (scanning modes only) ---
	if needsSources(cfg.Mode) {
		sources, err := buildSources(cfg, logger)
		if err != nil {
			return fail("platforms", err)
		}
		deps.Sources = sources

		var manual *match.ManualTable
		if cfg.ManualMappingsPath != "" {
			manual, err = match.LoadManualTable(cfg.ManualMappingsPath)
			if err != nil {
				return fail("manual mappings", err)
			}
			logger.Info("manual mappings loaded",
				slog.String("path", cfg.ManualMappingsPath),
				slog.Int("mappings", manual.Len()),
			)
		}
		engine, err := match.NewEngine(matchConfig(cfg.Match), manual, logger)
		if err != nil {
			return fail("match engine", err)
		}
		deps.Engine = engine
		deps.Calculator = spread.NewCalculator(spreadConfig(cfg))
		deps.Deduper = spread.NewDeduper(cfg.Spread.Cooldown.Duration)
	}

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
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.MatchLogStore = postgres.NewMatchLogStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
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
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient, cfg.Scan.SnapshotTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.Scan.Lock {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archive = s3blob.NewReportArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), deps.AuditStore)
		deps.Checks["s3"] = s3Client.Health
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.MinSpreadBps, logger)

	return deps, cleanup, nil
}

// buildSources creates one client per enabled platform.
func buildSources(cfg *config.Config, logger *slog.Logger) ([]domain.MarketSource, error) {
	var sources []domain.MarketSource

	if p := cfg.Platforms.Polymarket; p.Enabled {
		opts := []polymarket.GammaOption{
			polymarket.WithPaging(p.PageSize, p.MaxPages),
			polymarket.WithMinOutcomes(p.MinOutcomes),
		}
		if p.RateLimit > 0 {
			opts = append(opts, polymarket.WithRateLimit(p.RateLimit, max(p.Burst, 1)))
		}
		sources = append(sources, polymarket.NewGammaClient(p.GammaHost, opts...))
	}

	if k := cfg.Platforms.Kalshi; k.Enabled {
		opts := []kalshi.ClientOption{kalshi.WithPaging(k.PageSize, k.MaxPages)}
		if k.RateLimit > 0 {
			opts = append(opts, kalshi.WithRateLimit(k.RateLimit, max(k.Burst, 1)))
		}
		client := kalshi.NewClient(k.BaseURL, k.APIKeyID, opts...)
		src := crypto.SecretSource{
			Inline:        k.RSAPrivateKey,
			EncryptedPath: k.EncryptedKeyPath,
			Password:      k.KeyPassword,
		}
		if src.Configured() {
			pemBytes, err := crypto.Load(src)
			if err != nil {
				return nil, fmt.Errorf("kalshi key: %w", err)
			}
			if err := client.SetRSAPrivateKey(pemBytes); err != nil {
				return nil, fmt.Errorf("kalshi key: %w", err)
			}
			logger.Info("kalshi request signing enabled")
		}
		sources = append(sources, client)
	}

	for _, v := range []struct {
		platform domain.Platform
		cfg      config.VenueConfig
	}{
		{domain.PlatformPredict, cfg.Platforms.Predict},
		{domain.PlatformProbable, cfg.Platforms.Probable},
		{domain.PlatformOpinion, cfg.Platforms.Opinion},
	} {
		if !v.cfg.Enabled {
			continue
		}
		sources = append(sources, generic.NewClient(generic.Config{
			Platform:    v.platform,
			BaseURL:     v.cfg.BaseURL,
			MarketsPath: v.cfg.MarketsPath,
			APIKey:      v.cfg.APIKey,
			RateLimit:   v.cfg.RateLimit,
			Burst:       v.cfg.Burst,
			MaxPages:    v.cfg.MaxPages,
			Timeout:     v.cfg.Timeout.Duration,
		}))
	}
	return sources, nil
}

func matchConfig(c config.MatchConfig) match.Config {
	mc := match.DefaultConfig()
	mc.MatchThreshold = c.MatchThreshold
	mc.KeywordScoreThreshold = c.KeywordScoreThreshold
	mc.PruneRatio = c.PruneRatio
	mc.PruneMinCorpus = c.PruneMinCorpus
	mc.Weights = match.Weights{
		Entity:     c.Weights.Entity,
		Numeric:    c.Weights.Numeric,
		Vocabulary: c.Weights.Vocabulary,
		String:     c.Weights.String,
	}
	mc.MaxCandidatesPerItem = c.MaxCandidatesPerItem
	if c.Workers > 0 {
		mc.Workers = c.Workers
	}
	mc.YearMin, mc.YearMax = c.YearMin, c.YearMax
	mc.NumericTolerance = c.NumericTolerance
	mc.LogicalMinGapPct = c.LogicalMinGapPct
	return mc
}

func spreadConfig(cfg *config.Config) spread.Config {
	sc := spread.DefaultConfig()
	sc.MinSpreadBps = cfg.Spread.MinSpreadBps
	sc.IntraPlatform = cfg.Spread.IntraPlatform
	sc.NegRiskMinOutcomes = cfg.Spread.NegRiskMinOutcomes
	sc.NegRiskMaxOutcomes = cfg.Spread.NegRiskMaxOutcomes
	sc.Logical = cfg.Spread.Logical
	sc.FeeBps = map[domain.Platform]float64{
		domain.PlatformPolymarket: cfg.Platforms.Polymarket.FeeBps,
		domain.PlatformKalshi:     cfg.Platforms.Kalshi.FeeBps,
		domain.PlatformPredict:    cfg.Platforms.Predict.FeeBps,
		domain.PlatformProbable:   cfg.Platforms.Probable.FeeBps,
		domain.PlatformOpinion:    cfg.Platforms.Opinion.FeeBps,
	}
	return sc
}
