// Package config defines the top-level configuration for the crossarb scanner
// and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Platforms PlatformsConfig `toml:"platforms"`
	Match     MatchConfig     `toml:"match"`
	Spread    SpreadConfig    `toml:"spread"`
	Scan      ScanConfig      `toml:"scan"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`

	// ManualMappingsPath points at the TOML table of curated equivalences.
	// Empty means automatic matching only.
	ManualMappingsPath string `toml:"manual_mappings_path"`
}

// PlatformsConfig lists the venues markets are collected from.
type PlatformsConfig struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Predict    VenueConfig      `toml:"predict"`
	Probable   VenueConfig      `toml:"probable"`
	Opinion    VenueConfig      `toml:"opinion"`
}

// PolymarketConfig holds the Gamma API endpoint and paging limits.
type PolymarketConfig struct {
	Enabled   bool    `toml:"enabled"`
	GammaHost string  `toml:"gamma_host"`
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
	PageSize  int     `toml:"page_size"`
	MaxPages  int     `toml:"max_pages"`
	// MinOutcomes is the smallest event that is kept as one multi-outcome
	// record.
	MinOutcomes int     `toml:"min_outcomes"`
	FeeBps      float64 `toml:"fee_bps"`
}

// KalshiConfig holds Kalshi API credentials. Signing is optional; the public
// market listing works without it.
type KalshiConfig struct {
	Enabled  bool   `toml:"enabled"`
	BaseURL  string `toml:"base_url"`
	APIKeyID string `toml:"api_key_id"`
	// RSAPrivateKey is an inline PEM block, usually injected from the
	// environment. EncryptedKeyPath is a file sealed with crypto.Seal.
	RSAPrivateKey    string  `toml:"rsa_private_key"`
	EncryptedKeyPath string  `toml:"encrypted_key_path"`
	KeyPassword      string  `toml:"key_password"`
	RateLimit        float64 `toml:"rate_limit"`
	Burst            int     `toml:"burst"`
	PageSize         int     `toml:"page_size"`
	MaxPages         int     `toml:"max_pages"`
	FeeBps           float64 `toml:"fee_bps"`
}

// VenueConfig describes a venue served by the generic JSON adapter.
type VenueConfig struct {
	Enabled     bool     `toml:"enabled"`
	BaseURL     string   `toml:"base_url"`
	MarketsPath string   `toml:"markets_path"`
	APIKey      string   `toml:"api_key"`
	RateLimit   float64  `toml:"rate_limit"`
	Burst       int      `toml:"burst"`
	MaxPages    int      `toml:"max_pages"`
	Timeout     duration `toml:"timeout"`
	FeeBps      float64  `toml:"fee_bps"`
}

// MatchConfig tunes the matching engine.
type MatchConfig struct {
	MatchThreshold        float64       `toml:"match_threshold"`
	KeywordScoreThreshold float64       `toml:"keyword_score_threshold"`
	PruneRatio            float64       `toml:"document_frequency_prune_ratio"`
	PruneMinCorpus        int           `toml:"prune_min_corpus"`
	Weights               WeightsConfig `toml:"component_weights"`
	MaxCandidatesPerItem  int           `toml:"max_candidates_scored_per_item"`
	// Workers <= 0 means GOMAXPROCS.
	Workers          int     `toml:"workers"`
	YearMin          int     `toml:"year_min"`
	YearMax          int     `toml:"year_max"`
	NumericTolerance float64 `toml:"numeric_tolerance"`
	LogicalMinGapPct float64 `toml:"logical_min_gap_pct"`
}

// WeightsConfig holds the pairwise score component weights.
type WeightsConfig struct {
	Entity     float64 `toml:"entity"`
	Numeric    float64 `toml:"numeric"`
	Vocabulary float64 `toml:"vocabulary"`
	String     float64 `toml:"string"`
}

// SpreadConfig controls which spreads are reported.
type SpreadConfig struct {
	MinSpreadBps       float64  `toml:"min_spread_bps"`
	IntraPlatform      bool     `toml:"intra_platform"`
	NegRiskMinOutcomes int      `toml:"negrisk_min_outcomes"`
	NegRiskMaxOutcomes int      `toml:"negrisk_max_outcomes"`
	Logical            bool     `toml:"logical"`
	Cooldown           duration `toml:"cooldown"`
}

// ScanConfig holds the scan loop parameters.
type ScanConfig struct {
	Interval     duration `toml:"interval"`
	FetchTimeout duration `toml:"fetch_timeout"`
	// MaxStale bounds how old a cached snapshot may be when a platform
	// fetch fails. Zero disables the fallback.
	MaxStale    duration `toml:"max_stale"`
	SnapshotTTL duration `toml:"snapshot_ttl"`
	Lock        bool     `toml:"lock"`
	LockKey     string   `toml:"lock_key"`
	LockTTL     duration `toml:"lock_ttl"`
	Channel     string   `toml:"channel"`
	Stream      string   `toml:"stream"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	// ExportCron schedules the daily opportunity export. Empty disables it.
	ExportCron string `toml:"export_cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   float64  `toml:"rate_limit"`
	Burst       int      `toml:"burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MinSpreadBps filters opportunity alerts; it may be stricter than
	// spread.min_spread_bps.
	MinSpreadBps float64 `toml:"min_spread_bps"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in crossarb.example.toml.
func Defaults() Config {
	return Config{
		Platforms: PlatformsConfig{
			Polymarket: PolymarketConfig{
				Enabled:     true,
				GammaHost:   "https://gamma-api.polymarket.com",
				RateLimit:   5,
				Burst:       5,
				PageSize:    100,
				MaxPages:    20,
				MinOutcomes: 3,
			},
			Kalshi: KalshiConfig{
				Enabled:   true,
				BaseURL:   "https://api.elections.kalshi.com/trade-api/v2",
				RateLimit: 10,
				Burst:     10,
				PageSize:  1000,
				MaxPages:  10,
			},
			Predict: VenueConfig{
				BaseURL:  "https://api.predict.fun",
				MaxPages: 10,
				Timeout:  duration{15 * time.Second},
			},
			Probable: VenueConfig{
				BaseURL:  "https://api.probable.markets",
				MaxPages: 10,
				Timeout:  duration{15 * time.Second},
			},
			Opinion: VenueConfig{
				BaseURL:  "https://openapi.opinion.trade",
				MaxPages: 10,
				Timeout:  duration{15 * time.Second},
			},
		},
		Match: MatchConfig{
			MatchThreshold:        0.5,
			KeywordScoreThreshold: 0.15,
			PruneRatio:            0.20,
			PruneMinCorpus:        20,
			Weights: WeightsConfig{
				Entity:     0.40,
				Numeric:    0.30,
				Vocabulary: 0.20,
				String:     0.10,
			},
			MaxCandidatesPerItem: 20,
			YearMin:              2012,
			YearMax:              2099,
			NumericTolerance:     0.001,
			LogicalMinGapPct:     10,
		},
		Spread: SpreadConfig{
			MinSpreadBps:       200,
			IntraPlatform:      true,
			NegRiskMinOutcomes: 3,
			NegRiskMaxOutcomes: 10,
			Logical:            true,
			Cooldown:           duration{10 * time.Minute},
		},
		Scan: ScanConfig{
			Interval:     duration{60 * time.Second},
			FetchTimeout: duration{30 * time.Second},
			MaxStale:     duration{10 * time.Minute},
			SnapshotTTL:  duration{30 * time.Minute},
			LockKey:      "scan-cycle",
			LockTTL:      duration{5 * time.Minute},
			Channel:      "opportunities",
			Stream:       "opportunities",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "crossarb",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-data",
			ForcePathStyle: true,
			ExportCron:     "15 0 * * *",
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   20,
			Burst:       40,
		},
		Notify: NotifyConfig{
			Events:       []string{"opportunity", "cycle_failed", "platform_down"},
			MinSpreadBps: 200,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":   true,
	"once":   true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validEvents enumerates the notification event names.
var validEvents = map[string]bool{
	"opportunity":   true,
	"cycle_failed":  true,
	"platform_down": true,
	"startup":       true,
}

// EnabledPlatforms returns the names of the enabled venues in a fixed order.
func (c *Config) EnabledPlatforms() []string {
	var out []string
	if c.Platforms.Polymarket.Enabled {
		out = append(out, "polymarket")
	}
	if c.Platforms.Kalshi.Enabled {
		out = append(out, "kalshi")
	}
	for _, v := range c.venues() {
		if v.cfg.Enabled {
			out = append(out, v.name)
		}
	}
	return out
}

type namedVenue struct {
	name string
	cfg  VenueConfig
}

func (c *Config) venues() []namedVenue {
	return []namedVenue{
		{"predict", c.Platforms.Predict},
		{"probable", c.Platforms.Probable},
		{"opinion", c.Platforms.Opinion},
	}
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	// Mode
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, once, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Platforms. Only the API-only mode can run without a venue.
	scans := mode != "server"
	enabled := c.EnabledPlatforms()
	if scans && len(enabled) < 1 {
		errs = append(errs, "platforms: at least one platform must be enabled for mode "+c.Mode)
	}
	if p := c.Platforms.Polymarket; p.Enabled && p.GammaHost == "" {
		errs = append(errs, "platforms.polymarket: gamma_host must not be empty")
	}
	if k := c.Platforms.Kalshi; k.Enabled {
		if k.BaseURL == "" {
			errs = append(errs, "platforms.kalshi: base_url must not be empty")
		}
		if k.EncryptedKeyPath != "" && k.KeyPassword == "" {
			errs = append(errs, "platforms.kalshi: key_password is required when encrypted_key_path is set")
		}
		if (k.RSAPrivateKey != "" || k.EncryptedKeyPath != "") && k.APIKeyID == "" {
			errs = append(errs, "platforms.kalshi: api_key_id is required when a private key is configured")
		}
	}
	for _, v := range c.venues() {
		if v.cfg.Enabled && v.cfg.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("platforms.%s: base_url must not be empty", v.name))
		}
	}
	fees := []struct {
		name string
		bps  float64
	}{
		{"polymarket", c.Platforms.Polymarket.FeeBps},
		{"kalshi", c.Platforms.Kalshi.FeeBps},
	}
	for _, v := range c.venues() {
		fees = append(fees, struct {
			name string
			bps  float64
		}{v.name, v.cfg.FeeBps})
	}
	for _, f := range fees {
		if f.bps < 0 || f.bps >= 10_000 {
			errs = append(errs, fmt.Sprintf("platforms.%s: fee_bps must be in [0, 10000), got %v", f.name, f.bps))
		}
	}

	// Match
	m := c.Match
	if m.MatchThreshold < 0 || m.MatchThreshold > 1 {
		errs = append(errs, fmt.Sprintf("match: match_threshold must be in [0,1], got %v", m.MatchThreshold))
	}
	if m.KeywordScoreThreshold < 0 || m.KeywordScoreThreshold > 1 {
		errs = append(errs, fmt.Sprintf("match: keyword_score_threshold must be in [0,1], got %v", m.KeywordScoreThreshold))
	}
	if m.PruneRatio <= 0 || m.PruneRatio > 1 {
		errs = append(errs, fmt.Sprintf("match: document_frequency_prune_ratio must be in (0,1], got %v", m.PruneRatio))
	}
	w := m.Weights
	if w.Entity < 0 || w.Numeric < 0 || w.Vocabulary < 0 || w.String < 0 {
		errs = append(errs, "match: component_weights must not be negative")
	}
	if sum := w.Entity + w.Numeric + w.Vocabulary + w.String; math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("match: component_weights must sum to 1, got %.4f", sum))
	}
	if m.MaxCandidatesPerItem < 1 {
		errs = append(errs, "match: max_candidates_scored_per_item must be >= 1")
	}
	if m.YearMin > m.YearMax {
		errs = append(errs, fmt.Sprintf("match: year_min %d exceeds year_max %d", m.YearMin, m.YearMax))
	}
	if m.LogicalMinGapPct < 0 {
		errs = append(errs, fmt.Sprintf("match: logical_min_gap_pct must not be negative, got %v", m.LogicalMinGapPct))
	}

	// Spread
	if c.Spread.MinSpreadBps < 0 {
		errs = append(errs, "spread: min_spread_bps must be >= 0")
	}
	if c.Spread.NegRiskMinOutcomes < 3 || c.Spread.NegRiskMinOutcomes > c.Spread.NegRiskMaxOutcomes {
		errs = append(errs, fmt.Sprintf("spread: negrisk outcome bounds must satisfy 3 <= min <= max, got %d..%d",
			c.Spread.NegRiskMinOutcomes, c.Spread.NegRiskMaxOutcomes))
	}
	if c.Spread.Cooldown.Duration < 0 {
		errs = append(errs, "spread: cooldown must not be negative")
	}

	// Scan
	if scans {
		if c.Scan.Interval.Duration <= 0 {
			errs = append(errs, "scan: interval must be > 0")
		}
		if c.Scan.FetchTimeout.Duration <= 0 {
			errs = append(errs, "scan: fetch_timeout must be > 0")
		}
	}
	if c.Scan.Lock {
		if !c.Redis.Enabled {
			errs = append(errs, "scan: lock requires redis.enabled")
		}
		if c.Scan.LockTTL.Duration <= 0 {
			errs = append(errs, "scan: lock_ttl must be > 0 when lock is set")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			errs = append(errs, "s3: access_key and secret_key must be set together")
		}
		if c.S3.ExportCron != "" && !c.Postgres.Enabled {
			errs = append(errs, "s3: export_cron requires postgres.enabled")
		}
		if n := len(strings.Fields(c.S3.ExportCron)); c.S3.ExportCron != "" && n != 5 {
			errs = append(errs, fmt.Sprintf("s3: export_cron must have 5 fields, got %d", n))
		}
	}

	// Server
	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
			errs = append(errs, "server: burst must be >= 1 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if !validEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
