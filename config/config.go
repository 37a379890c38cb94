package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL  string
	DBPath       string
	ListenAddr   string
	PublicURL    string
	SecretsKey   string
	LogLevel     string
	Scheduler    SchedulerConfig
	Sync         SyncConfig
	Marketplaces map[string]*MarketplaceConfig
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type SyncConfig struct {
	PriceWindowDays int // synthetic run length when no overrides exist
	PullWindowDays  int // remote booking pull horizon
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

// MarketplaceConfig describes one remote classifieds marketplace, loaded from
// config/marketplaces/*.yaml. OAuth client credentials come from the
// environment, keyed by the marketplace id (e.g. AVITEX_CLIENT_ID).
type MarketplaceConfig struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	BaseURL      string            `yaml:"base_url"`
	AuthorizeURL string            `yaml:"authorize_url"`
	RateLimitMS  int               `yaml:"rate_limit_ms"`
	Endpoints    map[string]string `yaml:"endpoints"`

	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "staysync.db"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8080"),
		SecretsKey:  os.Getenv("SECRETS_KEY"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SYNC_CRON"),
		},
		Sync: SyncConfig{
			PriceWindowDays: getEnvInt("PRICE_WINDOW_DAYS", 90),
			PullWindowDays:  getEnvInt("PULL_WINDOW_DAYS", 365),
			MaxRetries:      getEnvInt("SYNC_MAX_RETRIES", 3),
			RetryBaseDelay:  time.Duration(getEnvInt("SYNC_RETRY_BASE_MS", 1000)) * time.Millisecond,
		},
		Marketplaces: make(map[string]*MarketplaceConfig),
	}

	if interval := os.Getenv("SYNC_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadMarketplaceConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadMarketplaceConfigs() error {
	configDir := "config/marketplaces"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var mp MarketplaceConfig
		if err := yaml.Unmarshal(data, &mp); err != nil {
			return err
		}

		prefix := strings.ToUpper(mp.ID)
		mp.ClientID = os.Getenv(prefix + "_CLIENT_ID")
		mp.ClientSecret = os.Getenv(prefix + "_CLIENT_SECRET")

		c.Marketplaces[mp.ID] = &mp
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
