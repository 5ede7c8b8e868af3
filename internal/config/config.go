// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

// EnvPrefix - префикс переменных окружения, например RAYDIUM_WATCHER_RPC_LIST.
const EnvPrefix = "RAYDIUM_WATCHER"

type Config struct {
	RPCList      []string `mapstructure:"rpc_list"`
	WebSocketURL string   `mapstructure:"websocket_url"`
	Commitment   string   `mapstructure:"commitment"`

	MigrationProgram string `mapstructure:"migration_program"`
	LiquidityProgram string `mapstructure:"liquidity_program"`
	InitMarker       string `mapstructure:"init_marker"`
	ReferenceMint    string `mapstructure:"reference_mint"`
	MintADecimals    uint8  `mapstructure:"mint_a_decimals"`
	MintBDecimals    uint8  `mapstructure:"mint_b_decimals"`

	ListenerMode     string        `mapstructure:"listener_mode"`
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout"`

	DefaultFeeBps uint16        `mapstructure:"default_fee_bps"`
	ReservesTTL   time.Duration `mapstructure:"reserves_ttl"`
	PoolKeyTTL    time.Duration `mapstructure:"pool_key_ttl"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	LRUSize       int           `mapstructure:"lru_size"`

	CacheBackend string `mapstructure:"cache_backend"`
	RedisURL     string `mapstructure:"redis_url"`

	RaydiumAPIURL string  `mapstructure:"raydium_api_url"`
	APIRateLimit  float64 `mapstructure:"api_rate_limit"`

	HTTPAddr       string  `mapstructure:"http_addr"`
	QuoteRateLimit float64 `mapstructure:"quote_rate_limit"`

	Retries    int           `mapstructure:"retries"`
	RPCTimeout time.Duration `mapstructure:"rpc_timeout"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultCommitment       = "confirmed"
	DefaultMigrationProgram = "39azUYFWPz3VHgKCf3VChUwbpURdCHRxjWVowf5jUJjg"
	DefaultLiquidityProgram = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	DefaultInitMarker       = "initialize2"
	DefaultReferenceMint    = "So11111111111111111111111111111111111111112"
	DefaultMintADecimals    = 9
	DefaultMintBDecimals    = 6
	DefaultListenerMode     = "oneshot"
	DefaultFeeBps           = 25
	DefaultReservesTTL      = 5 * time.Second
	DefaultLockTTL          = 10 * time.Second
	DefaultLRUSize          = 1024
	DefaultCacheBackend     = "redis"
	DefaultRedisURL         = "redis://localhost:6379/0"
	DefaultRaydiumAPIURL    = "https://api-v3.raydium.io"
	DefaultAPIRateLimit     = 5.0
	DefaultHTTPAddr         = ":8080"
	DefaultQuoteRateLimit   = 20.0
	DefaultRetries          = 3
	DefaultRPCTimeout       = 10 * time.Second
	DefaultLogFile          = "logs/raydium-watcher.log"
)

// LoadConfig читает конфигурацию из файла (JSON/YAML/TOML по расширению) и
// переменных окружения. Пустой path - только окружение и значения по умолчанию.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"rpc_list":          []string{},
		"websocket_url":     "",
		"commitment":        DefaultCommitment,
		"migration_program": DefaultMigrationProgram,
		"liquidity_program": DefaultLiquidityProgram,
		"init_marker":       DefaultInitMarker,
		"reference_mint":    DefaultReferenceMint,
		"mint_a_decimals":   DefaultMintADecimals,
		"mint_b_decimals":   DefaultMintBDecimals,
		"listener_mode":     DefaultListenerMode,
		"discovery_timeout": time.Duration(0),
		"default_fee_bps":   DefaultFeeBps,
		"reserves_ttl":      DefaultReservesTTL,
		"pool_key_ttl":      time.Duration(0),
		"lock_ttl":          DefaultLockTTL,
		"lru_size":          DefaultLRUSize,
		"cache_backend":     DefaultCacheBackend,
		"redis_url":         DefaultRedisURL,
		"raydium_api_url":   DefaultRaydiumAPIURL,
		"api_rate_limit":    DefaultAPIRateLimit,
		"http_addr":         DefaultHTTPAddr,
		"quote_rate_limit":  DefaultQuoteRateLimit,
		"retries":           DefaultRetries,
		"rpc_timeout":       DefaultRPCTimeout,
		"debug_logging":     false,
		"log_file":          DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	loadEnvironmentVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.RPCList = cleanList(cfg.RPCList)
	cfg.ListenerMode = strings.ToLower(strings.TrimSpace(cfg.ListenerMode))
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))

	return &cfg, validateConfig(&cfg)
}

// loadEnvironmentVariables включает переопределение любого ключа через окружение.
func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// cleanList разбирает списки вида "a, b" из окружения.
func cleanList(list []string) []string {
	var out []string
	for _, item := range list {
		for _, part := range strings.Split(item, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if cfg.WebSocketURL != "" {
		if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
			return fmt.Errorf("invalid WebSocket URL %q: %w", cfg.WebSocketURL, err)
		}
	}
	if err := validateURLWithCache(cfg.RaydiumAPIURL, "http"); err != nil {
		return fmt.Errorf("invalid raydium_api_url: %w", err)
	}

	switch cfg.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("unknown commitment %q", cfg.Commitment)
	}
	switch cfg.ListenerMode {
	case "oneshot", "active":
	default:
		return fmt.Errorf("unknown listener_mode %q", cfg.ListenerMode)
	}
	switch cfg.CacheBackend {
	case "memory":
	case "redis":
		if err := validateURLWithCache(cfg.RedisURL, "redis"); err != nil {
			return fmt.Errorf("invalid redis_url: %w", err)
		}
	default:
		return fmt.Errorf("unknown cache_backend %q", cfg.CacheBackend)
	}

	for name, value := range map[string]string{
		"migration_program": cfg.MigrationProgram,
		"liquidity_program": cfg.LiquidityProgram,
		"reference_mint":    cfg.ReferenceMint,
	} {
		if _, err := solana.PublicKeyFromBase58(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	if strings.TrimSpace(cfg.InitMarker) == "" {
		return errors.New("init_marker is empty")
	}

	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.DefaultFeeBps > 10000 {
		return errors.New("invalid default_fee_bps")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	if cfg.LRUSize < 0 {
		return errors.New("invalid lru_size")
	}
	if cfg.APIRateLimit < 0 || cfg.QuoteRateLimit < 0 {
		return errors.New("invalid rate limit")
	}
	for name, d := range map[string]time.Duration{
		"discovery_timeout": cfg.DiscoveryTimeout,
		"reserves_ttl":      cfg.ReservesTTL,
		"pool_key_ttl":      cfg.PoolKeyTTL,
		"lock_ttl":          cfg.LockTTL,
		"rpc_timeout":       cfg.RPCTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("invalid %s", name)
		}
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL + "|" + protocol); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL+"|"+protocol, parsed)
	return nil
}

// MigrationProgramID - программа, на логи которой подписывается discovery.
func (c *Config) MigrationProgramID() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.MigrationProgram)
}

// LiquidityProgramID - программа AMM v4.
func (c *Config) LiquidityProgramID() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.LiquidityProgram)
}

// ReferenceMintKey - опорный актив котировок.
func (c *Config) ReferenceMintKey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ReferenceMint)
}
