// ======================================
// File: internal/config/config_test.go
// ======================================
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, "telegram_token: \"123:abc\"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.TelegramToken)
	assert.Equal(t, []string{DefaultRPCURL}, cfg.RPCList)
	assert.Equal(t, DefaultJupiterURL, cfg.JupiterURL)
	assert.Equal(t, DefaultDexScreenerURL, cfg.DexScreenerURL)
	assert.Equal(t, string(SessionBackendFile), cfg.SessionBackend)
	assert.Equal(t, "sessions.json", cfg.SessionFilePath)
	assert.Equal(t, DefaultSlippageBps, cfg.SlippageBps)
	assert.Equal(t, DefaultFeeReserveSOL, cfg.FeeReserveSOL)
	assert.Equal(t, DefaultPostInterval, cfg.PostInterval)
	assert.Equal(t, DefaultRetries, cfg.Retries)
}

func TestLoadConfigFileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
telegram_token: "123:abc"
channel_id: -1001234567890
rpc_list:
  - "https://rpc-one.example.com"
  - "https://rpc-two.example.com"
session_backend: "redis"
redis_addr: "localhost:6379"
slippage_bps: 250
post_interval: 300
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(-1001234567890), cfg.ChannelID)
	assert.Equal(t, []string{"https://rpc-one.example.com", "https://rpc-two.example.com"}, cfg.RPCList)
	assert.Equal(t, string(SessionBackendRedis), cfg.SessionBackend)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 250, cfg.SlippageBps)
	assert.Equal(t, 300, cfg.PostInterval)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "telegram_token: \"file-token\"\n")
	t.Setenv("SOLANA_WALLET_BOT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("SOLANA_WALLET_BOT_RPC_LIST", " https://a.example.com , https://b.example.com ")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.TelegramToken)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.RPCList)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing token",
			content: "slippage_bps: 100\n",
			wantErr: "telegram_token",
		},
		{
			name: "bad rpc scheme",
			content: `
telegram_token: "123:abc"
rpc_list:
  - "ftp://rpc.example.com"
`,
			wantErr: "RPC URL",
		},
		{
			name: "redis backend without addr",
			content: `
telegram_token: "123:abc"
session_backend: "redis"
`,
			wantErr: "redis_addr",
		},
		{
			name: "unknown session backend",
			content: `
telegram_token: "123:abc"
session_backend: "etcd"
`,
			wantErr: "session_backend",
		},
		{
			name: "slippage out of range",
			content: `
telegram_token: "123:abc"
slippage_bps: 20000
`,
			wantErr: "slippage_bps",
		},
		{
			name: "zero post interval",
			content: `
telegram_token: "123:abc"
post_interval: 0
`,
			wantErr: "post_interval",
		},
		{
			name: "too many retries",
			content: `
telegram_token: "123:abc"
retries: 5
`,
			wantErr: "retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
