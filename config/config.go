package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup. Reward and rate values only seed the
// settings document; the stored document wins once an admin has edited it.
type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	GatewayToken   string
	AllowedOrigins []string
	AdminUIDs      []string

	AuthServiceURL    string
	AuthServiceToken  string
	IdentitySyncURL   string
	IdentitySyncPath  string
	IdentitySyncToken string

	DailyAdViewLimit            int64
	CoinToUSDRate               float64
	ReferralCommissionPercent   float64
	AdWatchRewardCoins          int64
	WhatsappRewardCoins         int64
	YoutubeSubscribeRewardCoins int64
	YoutubePromotionRewardCoins int64

	StoreMaxRetries   int
	ReconcileInterval time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string
	CDNBaseURL        string

	LogLevel string
}

// Load reads .env (if present) and the process environment.
// The returned bool reports whether a .env file was found.
func Load() (*Config, bool, error) {
	foundDotenv := godotenv.Load() == nil
	cfg, err := FromEnv(os.Getenv)
	return cfg, foundDotenv, err
}

// FromEnv builds a Config from a lookup function so tests can supply values.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	cfg := &Config{
		Port:           p.str("PORT", "5200"),
		DatabaseURL:    p.str("DATABASE_URL", ""),
		RedisURL:       p.str("REDIS_URL", ""),
		GatewayToken:   p.str("GATEWAY_TOKEN", ""),
		AllowedOrigins: p.list("ALLOWED_ORIGINS", "http://localhost:3000"),
		AdminUIDs:      p.list("ADMIN_UIDS", ""),

		AuthServiceURL:    p.str("AUTH_SERVICE_URL", ""),
		AuthServiceToken:  p.str("AUTH_SERVICE_TOKEN", ""),
		IdentitySyncURL:   p.str("IDENTITY_SYNC_URL", ""),
		IdentitySyncPath:  p.str("IDENTITY_SYNC_PATH", "/api/v1/public/profiles"),
		IdentitySyncToken: p.str("IDENTITY_SYNC_TOKEN", ""),

		DailyAdViewLimit:            p.int64("DAILY_AD_VIEW_LIMIT", 500),
		CoinToUSDRate:               p.float("COIN_TO_USD_RATE", 0.00001),
		ReferralCommissionPercent:   p.float("REFERRAL_COMMISSION_PERCENT", 5),
		AdWatchRewardCoins:          p.int64("AD_WATCH_REWARD_COINS", 10),
		WhatsappRewardCoins:         p.int64("WHATSAPP_REWARD_COINS", 20),
		YoutubeSubscribeRewardCoins: p.int64("YOUTUBE_SUBSCRIBE_REWARD_COINS", 20),
		YoutubePromotionRewardCoins: p.int64("YOUTUBE_PROMOTION_REWARD_COINS", 25000),

		StoreMaxRetries:   int(p.int64("STORE_MAX_RETRIES", 25)),
		ReconcileInterval: p.duration("RECONCILE_INTERVAL", 5*time.Minute),

		R2AccountID:       p.str("CLOUDFLARE_ACCOUNT_ID", ""),
		R2AccessKeyID:     p.str("R2_ACCESS_KEY_ID", ""),
		R2AccessKeySecret: p.str("R2_ACCESS_KEY_SECRET", ""),
		R2Bucket:          p.str("R2_BUCKET_NAME", ""),
		CDNBaseURL:        p.str("CDN_BASE_URL", ""),

		LogLevel: p.str("LOG_LEVEL", "info"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.GatewayToken == "" {
		return nil, fmt.Errorf("GATEWAY_TOKEN is not set")
	}
	if cfg.DailyAdViewLimit <= 0 {
		return nil, fmt.Errorf("DAILY_AD_VIEW_LIMIT must be positive")
	}
	if cfg.CoinToUSDRate <= 0 {
		return nil, fmt.Errorf("COIN_TO_USD_RATE must be positive")
	}
	if cfg.ReferralCommissionPercent < 0 || cfg.ReferralCommissionPercent > 100 {
		return nil, fmt.Errorf("REFERRAL_COMMISSION_PERCENT must be between 0 and 100")
	}
	return cfg, nil
}

// ReceiptsEnabled reports whether R2 credentials were supplied.
func (c *Config) ReceiptsEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2Bucket != ""
}

type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) list(key, def string) []string {
	var out []string
	for _, item := range strings.Split(p.str(key, def), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (p *parser) int64(key string, def int64) int64 {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v
}
