package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
	"github.com/joho/godotenv"

	"github.com/web3-frozen/wallet-telemetry/internal/wallet"
)

type Config struct {
	Port     string
	LogLevel slog.Level

	BotToken       string
	ChatID         int64
	AllowedUserIDs []int64

	APIURLs           []string
	MainWalletAddress string
	MainWalletName    string
	PriceSymbol       string
	FiatCurrency      string

	ReportHour   int
	ReportMinute int
	Location     *time.Location
	AutoArm      bool
	FireOnArm    bool

	StatsFile string
	TotalMode wallet.TotalMode

	HTTPTimeout     time.Duration
	HTTPRetryMax    int
	SourceRateLimit float64

	RedisURL      string
	RedisPassword string

	MQTTBroker      string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	OTelEndpoint string

	// problems collects malformed values found while loading.
	problems []string
}

// Load reads the environment, after merging a .env file when present.
// Variables already set in the environment win over the file.
func Load() Config {
	if err := godotenv.Load(envOr("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load env file", "error", err)
	}

	cfg := Config{
		Port:              envOr("PORT", "8080"),
		BotToken:          os.Getenv("BOT_TOKEN"),
		MainWalletAddress: strings.TrimSpace(os.Getenv("MAIN_WALLET_ADDRESS")),
		MainWalletName:    envOr("MAIN_WALLET_NAME", "🟢 Main wallet 🟢"),
		PriceSymbol:       strings.ToUpper(envOr("PRICE_SYMBOL", "TRX")),
		FiatCurrency:      strings.ToUpper(envOr("FIAT_CURRENCY", "RUB")),
		StatsFile:         envOr("STATS_FILE", "trx_stats.json"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		MQTTBroker:        os.Getenv("MQTT_BROKER"),
		MQTTUsername:      os.Getenv("MQTT_USERNAME"),
		MQTTPassword:      os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix:   envOr("MQTT_TOPIC_PREFIX", "wallet_telemetry"),
		OTelEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		APIURLs:           splitList(os.Getenv("API_URLS")),
	}

	cfg.LogLevel = cfg.parseLevel("LOG_LEVEL", "info")
	cfg.AllowedUserIDs = cfg.parseIDs("ALLOWED_USER_IDS")
	if v := strings.TrimSpace(os.Getenv("CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			cfg.problem("CHAT_ID %q is not an integer", v)
		}
		cfg.ChatID = id
	}
	cfg.ReportHour, cfg.ReportMinute = cfg.parseClock("REPORT_TIME", "12:20")
	tz := envOr("REPORT_TIMEZONE", "Europe/Moscow")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		cfg.problem("REPORT_TIMEZONE %q: %v", tz, err)
		loc = time.UTC
	}
	cfg.Location = loc

	mode, err := wallet.ParseTotalMode(envOr("LEDGER_TOTAL_MODE", string(wallet.TotalSum)))
	if err != nil {
		cfg.problem("LEDGER_TOTAL_MODE: %v", err)
		mode = wallet.TotalSum
	}
	cfg.TotalMode = mode

	cfg.AutoArm = cfg.parseBool("AUTO_ARM", true)
	cfg.FireOnArm = cfg.parseBool("FIRE_ON_ARM", false)
	cfg.HTTPTimeout = cfg.parseDuration("HTTP_TIMEOUT", 30*time.Second)
	cfg.HTTPRetryMax = cfg.parseInt("HTTP_RETRY_MAX", 5)
	cfg.SourceRateLimit = cfg.parseFloat("SOURCE_RATE_LIMIT", 5)

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

// Validate reports every missing required setting and every malformed value.
func (c Config) Validate() error {
	var errs []error
	for _, p := range c.problems {
		errs = append(errs, errors.New(p))
	}
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.ChatID == 0 {
		errs = append(errs, errors.New("CHAT_ID is required"))
	}
	if len(c.AllowedUserIDs) == 0 {
		errs = append(errs, errors.New("ALLOWED_USER_IDS is required"))
	}
	if len(c.APIURLs) == 0 {
		errs = append(errs, errors.New("API_URLS is required"))
	}
	if c.MainWalletAddress == "" {
		errs = append(errs, errors.New("MAIN_WALLET_ADDRESS is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) problem(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

func (c *Config) parseIDs(key string) []int64 {
	var ids []int64
	for _, s := range splitList(os.Getenv(key)) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.problem("%s: %q is not an integer", key, s)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (c *Config) parseClock(key, fallback string) (int, int) {
	v := envOr(key, fallback)
	t, err := time.Parse("15:04", v)
	if err != nil {
		c.problem("%s %q is not HH:MM", key, v)
		t, _ = time.Parse("15:04", fallback)
	}
	return t.Hour(), t.Minute()
}

func (c *Config) parseLevel(key, fallback string) slog.Level {
	var lvl slog.Level
	v := envOr(key, fallback)
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		c.problem("%s %q: %v", key, v, err)
		return slog.LevelInfo
	}
	return lvl
}

func (c *Config) parseBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.problem("%s %q is not a boolean", key, v)
		return fallback
	}
	return b
}

func (c *Config) parseInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		c.problem("%s %q is not a non-negative integer", key, v)
		return fallback
	}
	return n
}

func (c *Config) parseFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		c.problem("%s %q is not a non-negative number", key, v)
		return fallback
	}
	return f
}

func (c *Config) parseDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		c.problem("%s %q is not a positive duration", key, v)
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL", "https://app.infisical.com")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"BOT_TOKEN":      &cfg.BotToken,
		"REDIS_PASSWORD": &cfg.RedisPassword,
		"MQTT_PASSWORD":  &cfg.MQTTPassword,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
