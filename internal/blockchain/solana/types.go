// ==========================================
// File: internal/blockchain/solana/types.go
// ==========================================
package solana

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	maxRetries          = 3
	retryDelay          = 500 * time.Millisecond
	defaultTimeout      = 10 * time.Second
	confirmPollInterval = 500 * time.Millisecond
	confirmTimeout      = 30 * time.Second
)

// ClientInterface определяет операции с блокчейном, нужные торговому сервису.
type ClientInterface interface {
	GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (*TokenBalance, error)
	GetRecentBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	WaitForConfirmation(ctx context.Context, signature solana.Signature) error
	AccountExists(ctx context.Context, pubkey solana.PublicKey) (bool, error)
	GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
}

// Client — клиент Solana поверх пула RPC узлов с round-robin ротацией.
type Client struct {
	rpcClients []*RPCClient
	currIndex  int
	mutex      sync.Mutex
	logger     *zap.Logger
}

// RPCClient оборачивает одно RPC соединение вместе с его состоянием.
type RPCClient struct {
	Client  *rpc.Client
	URL     string
	active  bool
	mutex   sync.RWMutex
	metrics *RPCMetrics
}

// RPCMetrics накапливает статистику запросов одного узла.
type RPCMetrics struct {
	mutex        sync.RWMutex
	successCount uint64
	errorCount   uint64
	latency      time.Duration
}

// TokenBalance — баланс SPL токен-аккаунта в базовых единицах и с учётом decimals.
type TokenBalance struct {
	Amount   uint64
	Decimals uint8
	UIAmount float64
}

var _ ClientInterface = (*Client)(nil)
