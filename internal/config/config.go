package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/oracle/internal/domain"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	HTTPPort    string
	DatabaseURL string
	EthRPCURL   string
	TokensFile  string

	Owner            domain.Address
	ExpirationPeriod uint64 // seconds
	Sources          []domain.Address
	// APIKeys maps a bearer key to the caller identity it authenticates.
	APIKeys map[string]domain.Address

	CoinGeckoURL   string
	CoinGeckoRate  time.Duration
	FeederInterval time.Duration
	FeederAddress  domain.Address
	FeederSymbols  map[string]string // oracle symbol -> CoinGecko ID
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		HTTPPort:         envOrDefault("HTTP_PORT", "8080"),
		DatabaseURL:      envOrDefault("DATABASE_URL", ""),
		EthRPCURL:        envOrDefault("ETH_RPC_URL", ""),
		TokensFile:       envOrDefault("TOKENS_FILE", ""),
		Owner:            envAddress("OWNER_ADDRESS"),
		ExpirationPeriod: envOrDefaultUint("PRICE_EXPIRATION_PERIOD", 1800),
		Sources:          envAddressList("PRICE_SOURCES"),
		APIKeys:          envAPIKeys("API_KEYS"),
		CoinGeckoURL:     envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoRate:    envOrDefaultDuration("COINGECKO_RATE", 6*time.Second),
		FeederInterval:   envOrDefaultDuration("FEEDER_INTERVAL", 5*time.Minute),
		FeederAddress:    envAddress("FEEDER_ADDRESS"),
		FeederSymbols:    envPairs("FEEDER_SYMBOLS", "FTM/USD=fantom"),
	}
}

// FeederEnabled reports whether the built-in CoinGecko source should run.
func (c Config) FeederEnabled() bool {
	return !domain.IsUnset(c.FeederAddress) && len(c.FeederSymbols) > 0
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultUint(key string, defaultVal uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			slog.Warn("invalid unsigned env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envAddress(key string) domain.Address {
	v := os.Getenv(key)
	if v == "" {
		return domain.Address{}
	}
	addr, err := domain.ParseAddress(v)
	if err != nil {
		slog.Warn("invalid address env var, ignoring", "key", key, "value", v)
		return domain.Address{}
	}
	return addr
}

func envAddressList(key string) []domain.Address {
	return lo.FilterMap(splitCSV(os.Getenv(key)), func(s string, _ int) (domain.Address, bool) {
		addr, err := domain.ParseAddress(s)
		if err != nil {
			slog.Warn("invalid address in list, skipping", "key", key, "value", s)
			return domain.Address{}, false
		}
		return addr, true
	})
}

// envAPIKeys parses "key1=0xabc,key2=0xdef".
func envAPIKeys(key string) map[string]domain.Address {
	keys := make(map[string]domain.Address)
	for k, v := range envPairs(key, "") {
		addr, err := domain.ParseAddress(v)
		if err != nil {
			slog.Warn("invalid API key identity, skipping", "key", key, "address", v)
			continue
		}
		keys[k] = addr
	}
	return keys
}

func envPairs(key, defaultVal string) map[string]string {
	pairs := make(map[string]string)
	for _, item := range splitCSV(envOrDefault(key, defaultVal)) {
		k, v, ok := strings.Cut(item, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			slog.Warn("malformed key=value pair, skipping", "key", key, "item", item)
			continue
		}
		pairs[k] = v
	}
	return pairs
}

func splitCSV(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))
}
