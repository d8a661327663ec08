package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setBool(&cfg.Platforms.Polymarket.Enabled, "CROSSARB_POLYMARKET_ENABLED")
	setStr(&cfg.Platforms.Polymarket.GammaHost, "CROSSARB_POLYMARKET_GAMMA_HOST")
	setFloat64(&cfg.Platforms.Polymarket.FeeBps, "CROSSARB_POLYMARKET_FEE_BPS")

	// ── Kalshi ──
	setBool(&cfg.Platforms.Kalshi.Enabled, "CROSSARB_KALSHI_ENABLED")
	setStr(&cfg.Platforms.Kalshi.BaseURL, "CROSSARB_KALSHI_BASE_URL")
	setStr(&cfg.Platforms.Kalshi.APIKeyID, "CROSSARB_KALSHI_API_KEY_ID")
	setStr(&cfg.Platforms.Kalshi.RSAPrivateKey, "CROSSARB_KALSHI_RSA_PRIVATE_KEY")
	setStr(&cfg.Platforms.Kalshi.EncryptedKeyPath, "CROSSARB_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Platforms.Kalshi.KeyPassword, "CROSSARB_KALSHI_KEY_PASSWORD")
	setFloat64(&cfg.Platforms.Kalshi.FeeBps, "CROSSARB_KALSHI_FEE_BPS")

	// ── Generic venues ──
	for _, v := range []struct {
		prefix string
		cfg    *VenueConfig
	}{
		{"CROSSARB_PREDICT_", &cfg.Platforms.Predict},
		{"CROSSARB_PROBABLE_", &cfg.Platforms.Probable},
		{"CROSSARB_OPINION_", &cfg.Platforms.Opinion},
	} {
		setBool(&v.cfg.Enabled, v.prefix+"ENABLED")
		setStr(&v.cfg.BaseURL, v.prefix+"BASE_URL")
		setStr(&v.cfg.APIKey, v.prefix+"API_KEY")
		setFloat64(&v.cfg.FeeBps, v.prefix+"FEE_BPS")
	}

	// ── Match ──
	setFloat64(&cfg.Match.MatchThreshold, "CROSSARB_MATCH_THRESHOLD")
	setFloat64(&cfg.Match.KeywordScoreThreshold, "CROSSARB_MATCH_KEYWORD_SCORE_THRESHOLD")
	setInt(&cfg.Match.Workers, "CROSSARB_MATCH_WORKERS")
	setFloat64(&cfg.Match.LogicalMinGapPct, "CROSSARB_MATCH_LOGICAL_MIN_GAP_PCT")

	// ── Spread ──
	setFloat64(&cfg.Spread.MinSpreadBps, "CROSSARB_SPREAD_MIN_SPREAD_BPS")
	setBool(&cfg.Spread.IntraPlatform, "CROSSARB_SPREAD_INTRA_PLATFORM")
	setBool(&cfg.Spread.Logical, "CROSSARB_SPREAD_LOGICAL")
	setDuration(&cfg.Spread.Cooldown, "CROSSARB_SPREAD_COOLDOWN")

	// ── Scan ──
	setDuration(&cfg.Scan.Interval, "CROSSARB_SCAN_INTERVAL")
	setDuration(&cfg.Scan.FetchTimeout, "CROSSARB_SCAN_FETCH_TIMEOUT")
	setDuration(&cfg.Scan.MaxStale, "CROSSARB_SCAN_MAX_STALE")
	setBool(&cfg.Scan.Lock, "CROSSARB_SCAN_LOCK")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CROSSARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CROSSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "CROSSARB_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "CROSSARB_S3_PREFIX")
	setStr(&cfg.S3.ExportCron, "CROSSARB_S3_EXPORT_CRON")

	// ── Server ──
	setStr(&cfg.Server.Host, "CROSSARB_SERVER_HOST")
	setInt(&cfg.Server.Port, "CROSSARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CROSSARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CROSSARB_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimit, "CROSSARB_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinSpreadBps, "CROSSARB_NOTIFY_MIN_SPREAD_BPS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
	setStr(&cfg.ManualMappingsPath, "CROSSARB_MANUAL_MAPPINGS_PATH")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
