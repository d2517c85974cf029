// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// SessionBackend определяет тип хранилища сессий
type SessionBackend string

const (
	SessionBackendMemory SessionBackend = "memory"
	SessionBackendFile   SessionBackend = "file"
	SessionBackendRedis  SessionBackend = "redis"
)

type Config struct {
	TelegramToken    string   `mapstructure:"telegram_token"`
	ChannelID        int64    `mapstructure:"channel_id"`
	RPCList          []string `mapstructure:"rpc_list"`
	JupiterURL       string   `mapstructure:"jupiter_url"`
	DexScreenerURL   string   `mapstructure:"dexscreener_url"`
	RenderServiceURL string   `mapstructure:"render_service_url"`
	PostgresURL      string   `mapstructure:"postgres_url"`
	SessionBackend   string   `mapstructure:"session_backend"`
	SessionFilePath  string   `mapstructure:"session_file_path"`
	RedisAddr        string   `mapstructure:"redis_addr"`
	SlippageBps      int      `mapstructure:"slippage_bps"`
	FeeReserveSOL    float64  `mapstructure:"fee_reserve_sol"`
	PostInterval     int      `mapstructure:"post_interval"`
	Retries          int      `mapstructure:"retries"`
	DebugLogging     bool     `mapstructure:"debug_logging"`
}

const (
	DefaultJupiterURL     = "https://public.jupiterapi.com"
	DefaultDexScreenerURL = "https://api.dexscreener.com/latest/dex"
	DefaultRPCURL         = "https://api.mainnet-beta.solana.com"
	DefaultSlippageBps    = 100
	DefaultFeeReserveSOL  = 0.005
	DefaultPostInterval   = 60
	DefaultRetries        = 2

	// MaxSubmitRetries ограничивает повторы только на этапе отправки транзакции.
	MaxSubmitRetries = 2
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"rpc_list":          []string{DefaultRPCURL},
		"jupiter_url":       DefaultJupiterURL,
		"dexscreener_url":   DefaultDexScreenerURL,
		"session_backend":   string(SessionBackendFile),
		"session_file_path": "sessions.json",
		"slippage_bps":      DefaultSlippageBps,
		"fee_reserve_sol":   DefaultFeeReserveSOL,
		"post_interval":     DefaultPostInterval,
		"retries":           DefaultRetries,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.TelegramToken == "" {
		return errors.New("missing telegram_token in configuration")
	}
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if err := validateURL(cfg.JupiterURL, "http"); err != nil {
		return errors.New("invalid Jupiter URL")
	}
	if err := validateURL(cfg.DexScreenerURL, "http"); err != nil {
		return errors.New("invalid DexScreener URL")
	}
	if cfg.RenderServiceURL != "" {
		if err := validateURL(cfg.RenderServiceURL, "http"); err != nil {
			return errors.New("invalid render service URL")
		}
	}
	switch SessionBackend(cfg.SessionBackend) {
	case SessionBackendMemory, SessionBackendFile:
	case SessionBackendRedis:
		if cfg.RedisAddr == "" {
			return errors.New("redis_addr is required for redis session backend")
		}
	default:
		return errors.New("invalid session_backend")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.SlippageBps <= 0 || cfg.SlippageBps > 10000 {
		return errors.New("invalid slippage_bps")
	}
	if cfg.FeeReserveSOL < 0 {
		return errors.New("invalid fee_reserve_sol")
	}
	if cfg.PostInterval <= 0 {
		return errors.New("invalid post_interval")
	}
	if cfg.Retries < 0 || cfg.Retries > MaxSubmitRetries {
		return errors.New("invalid retries count")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("SOLANA_WALLET_BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envToken := v.GetString("TELEGRAM_TOKEN")
	if envToken != "" {
		cfg.TelegramToken = envToken
	}

	if envChannel := v.GetInt64("CHANNEL_ID"); envChannel != 0 {
		cfg.ChannelID = envChannel
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}

	if envPostgres := v.GetString("POSTGRES_URL"); envPostgres != "" {
		cfg.PostgresURL = envPostgres
	}
	if envRedis := v.GetString("REDIS_ADDR"); envRedis != "" {
		cfg.RedisAddr = envRedis
	}
	return nil
}
