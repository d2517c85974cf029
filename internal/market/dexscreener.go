// ======================================
// File: internal/market/dexscreener.go
// ======================================
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	rateLimit   = 300 // requests per minute
	solanaChain = "solana"
)

// ErrTokenNotFound возвращается, когда DexScreener не знает ни одной пары токена.
var ErrTokenNotFound = errors.New("token not found")

// Token — агрегированные рыночные данные токена из лучшей (по ликвидности) пары.
type Token struct {
	Address      string
	Symbol       string
	Name         string
	PriceUSD     float64
	Volume24h    float64
	Change24h    float64
	LiquidityUSD float64
	FDV          float64
	DexID        string
}

// LookupService определяет интерфейс получения рыночных данных токена.
type LookupService interface {
	Lookup(ctx context.Context, tokenAddress string) (*Token, error)
}

// DexScreenerResponse представляет основную структуру ответа
type DexScreenerResponse struct {
	SchemaVersion string     `json:"schemaVersion"`
	Pairs         []PairInfo `json:"pairs"`
}

// PairInfo содержит информацию о паре
type PairInfo struct {
	ChainId     string        `json:"chainId"`
	DexId       string        `json:"dexId"`
	PairAddress string        `json:"pairAddress"`
	BaseToken   TokenInfo     `json:"baseToken"`
	QuoteToken  TokenInfo     `json:"quoteToken"`
	PriceNative string        `json:"priceNative"`
	PriceUsd    string        `json:"priceUsd"`
	Volume      VolumeInfo    `json:"volume"`
	PriceChange ChangeInfo    `json:"priceChange"`
	Liquidity   LiquidityInfo `json:"liquidity"`
	FDV         float64       `json:"fdv"`
}

// TokenInfo содержит информацию о токене
type TokenInfo struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// VolumeInfo содержит объёмы торгов по окнам
type VolumeInfo struct {
	H24 float64 `json:"h24"`
	H6  float64 `json:"h6"`
	H1  float64 `json:"h1"`
}

// ChangeInfo содержит изменение цены по окнам
type ChangeInfo struct {
	H24 float64 `json:"h24"`
	H6  float64 `json:"h6"`
	H1  float64 `json:"h1"`
}

// LiquidityInfo содержит информацию о ликвидности
type LiquidityInfo struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// Service представляет сервис для работы с DexScreener API
type Service struct {
	baseURL     string
	client      *http.Client
	logger      *zap.Logger
	rateLimiter *time.Ticker
	mu          sync.Mutex
}

// NewService создает новый экземпляр сервиса
func NewService(baseURL string, logger *zap.Logger) *Service {
	return &Service{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:      logger.Named("dexscreener"),
		rateLimiter: time.NewTicker(time.Minute / rateLimit),
	}
}

// Lookup возвращает рыночные данные токена из его самой ликвидной пары в сети Solana.
func (s *Service) Lookup(ctx context.Context, tokenAddress string) (*Token, error) {
	url := fmt.Sprintf("%s/tokens/%s", s.baseURL, tokenAddress)

	response, err := s.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get token pairs: %w", err)
	}

	// Ищем пару с наибольшей ликвидностью
	var bestPair *PairInfo
	maxLiquidity := -1.0

	for i := range response.Pairs {
		pair := &response.Pairs[i]

		if pair.ChainId != solanaChain {
			continue
		}

		if pair.Liquidity.USD > maxLiquidity {
			maxLiquidity = pair.Liquidity.USD
			bestPair = pair
		}
	}

	if bestPair == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, tokenAddress)
	}

	token := &Token{
		Address:      tokenAddress,
		Symbol:       bestPair.BaseToken.Symbol,
		Name:         bestPair.BaseToken.Name,
		Volume24h:    bestPair.Volume.H24,
		Change24h:    bestPair.PriceChange.H24,
		LiquidityUSD: bestPair.Liquidity.USD,
		FDV:          bestPair.FDV,
		DexID:        bestPair.DexId,
	}
	if bestPair.PriceUsd != "" {
		price, err := strconv.ParseFloat(bestPair.PriceUsd, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for token %s: %w", bestPair.PriceUsd, tokenAddress, err)
		}
		token.PriceUSD = price
	}

	s.logger.Debug("found token pair",
		zap.String("token", tokenAddress),
		zap.String("symbol", token.Symbol),
		zap.String("dex", token.DexID),
		zap.Float64("liquidity_usd", token.LiquidityUSD))

	return token, nil
}

// doRequest выполняет HTTP запрос с учетом rate limit
func (s *Service) doRequest(ctx context.Context, url string) (*DexScreenerResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.rateLimiter.C:
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var response DexScreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &response, nil
}

var _ LookupService = (*Service)(nil)
