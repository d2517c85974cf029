// ==================================
// File: internal/jupiter/client.go
// ==================================
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// WSOLMint — mint обёрнутого SOL, вход/выход любого свопа против SOL.
	WSOLMint = "So11111111111111111111111111111111111111112"
	// DelegateAuthority — program authority агрегатора, которому кошелёк
	// делегирует списание токенов при продаже.
	DelegateAuthority = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"

	computeUnitPriceMicroLamports = 1000
)

var (
	// ErrNoRoute — агрегатор не нашёл маршрут обмена для пары.
	ErrNoRoute = errors.New("no swap route found")
	// ErrServiceUnavailable — агрегатор недоступен или вернул 5xx.
	ErrServiceUnavailable = errors.New("swap service unavailable")
)

// Quote — котировка свопа. Raw хранит нетронутый ответ агрегатора:
// он передаётся обратно в /swap как есть.
type Quote struct {
	ID             string
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	MinOutAmount   uint64
	PriceImpactPct float64
	Raw            json.RawMessage
}

// SwapService определяет интерфейс агрегатора свопов.
type SwapService interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error)
	BuildSwapTransaction(ctx context.Context, quote *Quote, userPubkey solana.PublicKey) (*solana.Transaction, error)
}

// Client — HTTP клиент публичного Jupiter API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient создает новый экземпляр клиента Jupiter.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.Named("jupiter"),
	}
}

type quoteResponse struct {
	InputMint            string `json:"inputMint"`
	OutputMint           string `json:"outputMint"`
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	PriceImpactPct       string `json:"priceImpactPct"`
	ErrorCode            string `json:"errorCode"`
	Error                string `json:"error"`
}

// GetQuote запрашивает котировку обмена amount базовых единиц inputMint на outputMint.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))

	reqURL := c.baseURL + "/quote?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quote response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn("Quote service error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || parsed.ErrorCode != "" || parsed.Error != "" {
		if isNoRoute(resp.StatusCode, &parsed) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, inputMint, outputMint)
		}
		return nil, fmt.Errorf("%w: status %d, error %q", ErrServiceUnavailable, resp.StatusCode, parsed.Error)
	}

	quote := &Quote{
		ID:         uuid.New().String(),
		InputMint:  parsed.InputMint,
		OutputMint: parsed.OutputMint,
		Raw:        json.RawMessage(body),
	}
	if quote.InAmount, err = strconv.ParseUint(parsed.InAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid inAmount %q: %w", parsed.InAmount, err)
	}
	if quote.OutAmount, err = strconv.ParseUint(parsed.OutAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid outAmount %q: %w", parsed.OutAmount, err)
	}
	if parsed.OtherAmountThreshold != "" {
		if quote.MinOutAmount, err = strconv.ParseUint(parsed.OtherAmountThreshold, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid otherAmountThreshold %q: %w", parsed.OtherAmountThreshold, err)
		}
	}
	if parsed.PriceImpactPct != "" {
		if quote.PriceImpactPct, err = strconv.ParseFloat(parsed.PriceImpactPct, 64); err != nil {
			return nil, fmt.Errorf("invalid priceImpactPct %q: %w", parsed.PriceImpactPct, err)
		}
	}

	c.logger.Debug("Received quote",
		zap.String("quote_id", quote.ID),
		zap.String("input_mint", quote.InputMint),
		zap.String("output_mint", quote.OutputMint),
		zap.Uint64("in_amount", quote.InAmount),
		zap.Uint64("out_amount", quote.OutAmount))

	return quote, nil
}

func isNoRoute(status int, resp *quoteResponse) bool {
	if strings.Contains(resp.ErrorCode, "COULD_NOT_FIND_ANY_ROUTE") {
		return true
	}
	msg := strings.ToLower(resp.Error)
	if strings.Contains(msg, "no route") || strings.Contains(msg, "route not found") {
		return true
	}
	return status == http.StatusNotFound
}

type swapRequest struct {
	QuoteResponse                 json.RawMessage `json:"quoteResponse"`
	UserPublicKey                 string          `json:"userPublicKey"`
	WrapAndUnwrapSol              bool            `json:"wrapAndUnwrapSol"`
	ComputeUnitPriceMicroLamports int             `json:"computeUnitPriceMicroLamports"`
	DynamicComputeUnitLimit       bool            `json:"dynamicComputeUnitLimit"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	Error           string `json:"error"`
}

// BuildSwapTransaction обменивает котировку на готовую к подписи транзакцию.
func (c *Client) BuildSwapTransaction(ctx context.Context, quote *Quote, userPubkey solana.PublicKey) (*solana.Transaction, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:                 quote.Raw,
		UserPublicKey:                 userPubkey.String(),
		WrapAndUnwrapSol:              true,
		ComputeUnitPriceMicroLamports: computeUnitPriceMicroLamports,
		DynamicComputeUnitLimit:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read swap response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Swap service error",
			zap.String("quote_id", quote.ID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var parsed swapResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, parsed.Error)
	}
	if parsed.SwapTransaction == "" {
		return nil, fmt.Errorf("%w: empty swap transaction", ErrServiceUnavailable)
	}

	txBytes, err := base64.StdEncoding.DecodeString(parsed.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, fmt.Errorf("parse swap transaction: %w", err)
	}

	return tx, nil
}

var _ SwapService = (*Client)(nil)
