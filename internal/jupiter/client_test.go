// =======================================
// File: internal/jupiter/client_test.go
// =======================================
package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const quoteBody = `{
  "inputMint": "So11111111111111111111111111111111111111112",
  "outputMint": "MintBBB",
  "inAmount": "100000000",
  "outAmount": "4242424242",
  "otherAmountThreshold": "4200000000",
  "priceImpactPct": "0.12",
  "routePlan": [{"swapInfo": {"ammKey": "amm-1"}}]
}`

func TestGetQuoteParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, WSOLMint, q.Get("inputMint"))
		assert.Equal(t, "MintBBB", q.Get("outputMint"))
		assert.Equal(t, "100000000", q.Get("amount"))
		assert.Equal(t, "100", q.Get("slippageBps"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(quoteBody))
	}))
	defer server.Close()

	c := NewClient(server.URL, zaptest.NewLogger(t))
	quote, err := c.GetQuote(context.Background(), WSOLMint, "MintBBB", 100_000_000, 100)
	require.NoError(t, err)

	assert.NotEmpty(t, quote.ID)
	assert.Equal(t, WSOLMint, quote.InputMint)
	assert.Equal(t, "MintBBB", quote.OutputMint)
	assert.Equal(t, uint64(100_000_000), quote.InAmount)
	assert.Equal(t, uint64(4_242_424_242), quote.OutAmount)
	assert.Equal(t, uint64(4_200_000_000), quote.MinOutAmount)
	assert.Equal(t, 0.12, quote.PriceImpactPct)
	assert.JSONEq(t, quoteBody, string(quote.Raw))
}

func TestGetQuoteNoRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode": "COULD_NOT_FIND_ANY_ROUTE", "error": "Could not find any route"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, zaptest.NewLogger(t))
	_, err := c.GetQuote(context.Background(), WSOLMint, "MintBBB", 1, 100)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestGetQuoteServiceDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, zaptest.NewLogger(t))
	_, err := c.GetQuote(context.Background(), WSOLMint, "MintBBB", 1, 100)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestBuildSwapTransactionRoundTrip(t *testing.T) {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	// Собираем минимальную валидную транзакцию, которую вернёт "агрегатор"
	inst := solana.NewInstruction(
		solana.SystemProgramID,
		[]*solana.AccountMeta{solana.Meta(payer.PublicKey()).WRITE().SIGNER()},
		[]byte{0},
	)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		solana.Hash{},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	txBytes, err := tx.MarshalBinary()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, payer.PublicKey().String(), req["userPublicKey"])
		assert.Equal(t, true, req["wrapAndUnwrapSol"])
		assert.Equal(t, float64(1000), req["computeUnitPriceMicroLamports"])
		assert.Equal(t, true, req["dynamicComputeUnitLimit"])
		// Котировка уходит в /swap нетронутой
		quoteResp, ok := req["quoteResponse"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "MintBBB", quoteResp["outputMint"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"swapTransaction": base64.StdEncoding.EncodeToString(txBytes),
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, zaptest.NewLogger(t))
	quote := &Quote{
		ID:  "q-test",
		Raw: json.RawMessage(quoteBody),
	}
	got, err := c.BuildSwapTransaction(context.Background(), quote, payer.PublicKey())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, payer.PublicKey(), got.Message.AccountKeys[0])
}

func TestBuildSwapTransactionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, zaptest.NewLogger(t))
	_, err := c.BuildSwapTransaction(context.Background(), &Quote{Raw: json.RawMessage(`{}`)}, solana.PublicKey{})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
