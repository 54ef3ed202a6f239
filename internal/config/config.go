package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMarketURL   = "https://market.adex.network/campaigns?all"
	DefaultTargetAsset = "0x89d24A6b4CcB1B6fAA2625fE562bDD9a23260359" // DAI

	// The refresh schedule has one second resolution.
	minRefreshIntervalMS = 1000
)

type Config struct {
	// Market source
	MarketURL           string `yaml:"market_url"`
	TargetAsset         string `yaml:"target_asset"`
	RefreshIntervalMS   int    `yaml:"refresh_interval_ms"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`

	// Server Configuration
	ListenPort          int      `yaml:"listen_port"`
	ListenAddr          string   `yaml:"listen_addr"`
	CORSAllowedOrigins  []string `yaml:"cors_allowed_origins"`
	BroadcastBufferSize int      `yaml:"broadcast_buffer_size"`
	WSClientBufferSize  int      `yaml:"ws_client_buffer_size"`

	// Logging Configuration
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() *Config {
	return &Config{
		MarketURL:           DefaultMarketURL,
		TargetAsset:         DefaultTargetAsset,
		RefreshIntervalMS:   30000,
		FetchTimeoutSeconds: 20,
		ListenPort:          8080,
		ListenAddr:          "0.0.0.0",
		CORSAllowedOrigins:  []string{"http://localhost:3000"},
		BroadcastBufferSize: 64,
		WSClientBufferSize:  16,
		LogLevel:            "info",
	}
}

// NewConfig creates a new config from environment variables or defaults
func NewConfig() *Config {
	return applyEnv(defaultConfig())
}

// Load reads an optional YAML file and then applies environment variable
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(base *Config) *Config {
	corsOrigins := getEnv("CORS_ALLOWED_ORIGINS", strings.Join(base.CORSAllowedOrigins, ","))
	return &Config{
		MarketURL:           getEnv("MARKET_URL", base.MarketURL),
		TargetAsset:         strings.TrimSpace(getEnv("TARGET_ASSET", base.TargetAsset)),
		RefreshIntervalMS:   getEnvInt("REFRESH_INTERVAL_MS", base.RefreshIntervalMS),
		FetchTimeoutSeconds: getEnvInt("FETCH_TIMEOUT_SECONDS", base.FetchTimeoutSeconds),
		ListenPort:          getEnvInt("LISTEN_PORT", base.ListenPort),
		ListenAddr:          getEnv("LISTEN_ADDR", base.ListenAddr),
		CORSAllowedOrigins:  splitCSV(corsOrigins),
		BroadcastBufferSize: getEnvInt("BROADCAST_BUFFER_SIZE", base.BroadcastBufferSize),
		WSClientBufferSize:  getEnvInt("WS_CLIENT_BUFFER_SIZE", base.WSClientBufferSize),
		LogLevel:            getEnv("LOG_LEVEL", base.LogLevel),
	}
}

// RefreshInterval is the period between two market fetches.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

// FetchTimeout bounds a single market fetch.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks the configuration for validity
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port: %d", c.ListenPort)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if strings.TrimSpace(c.MarketURL) == "" {
		return fmt.Errorf("market URL cannot be empty")
	}
	if u, err := url.ParseRequestURI(c.MarketURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid market URL: %q", c.MarketURL)
	}
	if !common.IsHexAddress(c.TargetAsset) {
		return fmt.Errorf("target asset must be a hex token address: %q", c.TargetAsset)
	}
	if c.RefreshIntervalMS < minRefreshIntervalMS {
		return fmt.Errorf("refresh interval must be at least %dms: %d", minRefreshIntervalMS, c.RefreshIntervalMS)
	}
	if c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch timeout must be positive: %d", c.FetchTimeoutSeconds)
	}
	if c.BroadcastBufferSize <= 0 {
		return fmt.Errorf("broadcast buffer size must be positive: %d", c.BroadcastBufferSize)
	}
	if c.WSClientBufferSize <= 0 {
		return fmt.Errorf("websocket client buffer size must be positive: %d", c.WSClientBufferSize)
	}
	if len(c.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("at least one CORS allowed origin must be specified")
	}
	return nil
}
