// ====================================
// File: internal/trade/service_test.go
// ====================================
package trade

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	chain "github.com/pumpscience/solana-wallet-bot/internal/blockchain/solana"
	"github.com/pumpscience/solana-wallet-bot/internal/jupiter"
	"github.com/pumpscience/solana-wallet-bot/internal/logger"
	"github.com/pumpscience/solana-wallet-bot/internal/market"
	"github.com/pumpscience/solana-wallet-bot/internal/session"
	"github.com/pumpscience/solana-wallet-bot/internal/wallet"
)

const (
	testMint  = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	testUser  = int64(1001)
	testChat  = int64(2002)
	solAmount = 0.1
)

// --- моки зависимостей ---

type mockChain struct {
	balance         uint64
	balanceErr      error
	tokenBalance    *chain.TokenBalance
	tokenBalanceErr error
	decimals        uint8
	accountExists   bool
	sendFailures    int
	sendErr         error
	sentTxs         []*solana.Transaction
	confirmed       []solana.Signature
	createdAccounts int
}

func (m *mockChain) GetBalance(context.Context, solana.PublicKey) (uint64, error) {
	return m.balance, m.balanceErr
}

func (m *mockChain) GetTokenBalance(context.Context, solana.PublicKey, solana.PublicKey) (*chain.TokenBalance, error) {
	if m.tokenBalanceErr != nil {
		return nil, m.tokenBalanceErr
	}
	if m.tokenBalance == nil {
		return &chain.TokenBalance{}, nil
	}
	return m.tokenBalance, nil
}

func (m *mockChain) GetRecentBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, nil
}

func (m *mockChain) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if m.sendFailures > 0 {
		m.sendFailures--
		return solana.Signature{}, errors.New("node timeout")
	}
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	m.sentTxs = append(m.sentTxs, tx)
	var sig solana.Signature
	sig[0] = byte(len(m.sentTxs))
	return sig, nil
}

func (m *mockChain) WaitForConfirmation(_ context.Context, sig solana.Signature) error {
	m.confirmed = append(m.confirmed, sig)
	return nil
}

func (m *mockChain) AccountExists(context.Context, solana.PublicKey) (bool, error) {
	if !m.accountExists {
		m.createdAccounts++
	}
	return m.accountExists, nil
}

func (m *mockChain) GetMintDecimals(context.Context, solana.PublicKey) (uint8, error) {
	return m.decimals, nil
}

type mockMarket struct {
	token *market.Token
	err   error
	calls int
}

func (m *mockMarket) Lookup(_ context.Context, address string) (*market.Token, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.token != nil {
		return m.token, nil
	}
	return &market.Token{Address: address, Symbol: "TST", Name: "Test Token", PriceUSD: 0.5}, nil
}

type mockSwap struct {
	quoteErr   error
	swapErr    error
	quotes     []*jupiter.Quote
	outAmount  uint64
	quoteCalls int
	swapCalls  int
}

func (m *mockSwap) GetQuote(_ context.Context, inputMint, outputMint string, amount uint64, _ int) (*jupiter.Quote, error) {
	m.quoteCalls++
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	q := &jupiter.Quote{
		ID:         fmt.Sprintf("quote-%d", m.quoteCalls),
		InputMint:  inputMint,
		OutputMint: outputMint,
		InAmount:   amount,
		OutAmount:  m.outAmount,
	}
	m.quotes = append(m.quotes, q)
	return q, nil
}

func (m *mockSwap) BuildSwapTransaction(_ context.Context, _ *jupiter.Quote, userPubkey solana.PublicKey) (*solana.Transaction, error) {
	m.swapCalls++
	if m.swapErr != nil {
		return nil, m.swapErr
	}
	inst := solana.NewInstruction(
		solana.SystemProgramID,
		[]*solana.AccountMeta{solana.Meta(userPubkey).WRITE().SIGNER()},
		[]byte{0},
	)
	return solana.NewTransaction(
		[]solana.Instruction{inst},
		solana.Hash{},
		solana.TransactionPayer(userPubkey),
	)
}

// --- вспомогательное окружение ---

type env struct {
	store  *session.MemoryStore
	chain  *mockChain
	market *mockMarket
	swap   *mockSwap
	svc    *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:  session.NewMemoryStore(),
		chain:  &mockChain{balance: 1_000_000_000, decimals: 6, accountExists: true},
		market: &mockMarket{},
		swap:   &mockSwap{outAmount: 5_000_000},
	}
	e.svc = NewService(e.store, e.chain, e.market, e.swap, 100, 0.005, 2,
		&logger.Logger{Logger: zaptest.NewLogger(t)})
	return e
}

func (e *env) seedSession(t *testing.T, mutate func(*session.Session)) *session.Session {
	t.Helper()
	w, err := wallet.Generate()
	require.NoError(t, err)
	s := session.New(testUser, testChat)
	s.WalletPubkey = w.PublicKey.String()
	s.WalletSecret = w.Secret()
	if mutate != nil {
		mutate(s)
	}
	require.NoError(t, e.store.Put(context.Background(), s))
	return s
}

func (e *env) currentSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := e.store.Get(context.Background(), testUser)
	require.NoError(t, err)
	return s
}

// --- тесты ---

func TestIsValidTokenAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{name: "known mint", address: testMint, want: true},
		{name: "wsol mint", address: jupiter.WSOLMint, want: true},
		{name: "too short", address: "abc", want: false},
		{name: "too long", address: testMint + testMint, want: false},
		{name: "bad characters", address: "0OIl!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!", want: false},
		{name: "empty", address: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidTokenAddress(tt.address))
		})
	}
}

func TestStartActionMovesToAwaitingAddress(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, nil)

	info, err := e.svc.StartAction(context.Background(), testUser, session.ActionBuy)
	require.NoError(t, err)
	assert.Equal(t, 1.0, info.BalanceSOL)

	s := e.currentSession(t)
	assert.Equal(t, session.FlowAwaitingTokenAddress, s.Flow)
	assert.Equal(t, session.ActionBuy, s.Action)
}

func TestStartActionWithoutSession(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.StartAction(context.Background(), testUser, session.ActionBuy)
	require.Error(t, err)
	assert.Equal(t, ReasonSessionInconsistent, ReasonOf(err))
}

func TestStartActionEmptyWalletStaysIdle(t *testing.T) {
	e := newEnv(t)
	e.chain.balance = 0
	e.seedSession(t, nil)

	_, err := e.svc.StartAction(context.Background(), testUser, session.ActionBuy)
	require.Error(t, err)
	assert.Equal(t, ReasonInsufficientBalance, ReasonOf(err))

	// Сценарий не начался: сессия осталась в покое без выбранного действия
	s := e.currentSession(t)
	assert.Equal(t, session.FlowIdle, s.Flow)
	assert.Equal(t, session.ActionNone, s.Action)
}

func TestStartActionBalanceCheckFailureStaysIdle(t *testing.T) {
	e := newEnv(t)
	e.chain.balanceErr = errors.New("rpc down")
	e.seedSession(t, nil)

	_, err := e.svc.StartAction(context.Background(), testUser, session.ActionSell)
	require.Error(t, err)
	assert.Equal(t, ReasonInsufficientBalance, ReasonOf(err))
	assert.Equal(t, session.FlowIdle, e.currentSession(t).Flow)
}

func TestHandleTextRejectsMalformedAddress(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, func(s *session.Session) { s.BeginAction(session.ActionBuy) })

	_, err := e.svc.HandleText(context.Background(), testUser, "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ReasonInvalidAddress, ReasonOf(err))

	// Диалог остаётся в ожидании адреса
	assert.Equal(t, session.FlowAwaitingTokenAddress, e.currentSession(t).Flow)
}

func TestHandleTextAcceptsAddress(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, func(s *session.Session) { s.BeginAction(session.ActionBuy) })

	out, err := e.svc.HandleText(context.Background(), testUser, testMint)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmountPrompt, out.Kind)
	assert.Equal(t, session.ActionBuy, out.Action)
	assert.Equal(t, "TST", out.Token.Symbol)

	s := e.currentSession(t)
	assert.Equal(t, session.FlowAwaitingAmount, s.Flow)
	assert.Equal(t, testMint, s.TokenAddress)
}

func TestHandleTextUnknownToken(t *testing.T) {
	e := newEnv(t)
	e.market.err = market.ErrTokenNotFound
	e.seedSession(t, func(s *session.Session) { s.BeginAction(session.ActionBuy) })

	_, err := e.svc.HandleText(context.Background(), testUser, testMint)
	require.Error(t, err)
	assert.Equal(t, ReasonTokenNotFound, ReasonOf(err))
	assert.Equal(t, session.FlowAwaitingTokenAddress, e.currentSession(t).Flow)
}

func TestHandleTextAmountValidation(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason Reason
	}{
		{name: "not a number", input: "lots", reason: ReasonInvalidAmount},
		{name: "negative", input: "-1", reason: ReasonInvalidAmount},
		{name: "zero", input: "0", reason: ReasonInvalidAmount},
		{name: "infinity", input: "Inf", reason: ReasonInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.seedSession(t, func(s *session.Session) {
				s.BeginAction(session.ActionBuy)
				s.TokenAddress = testMint
				s.Flow = session.FlowAwaitingAmount
			})

			_, err := e.svc.HandleText(context.Background(), testUser, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.reason, ReasonOf(err))
			assert.Equal(t, session.FlowAwaitingAmount, e.currentSession(t).Flow)
		})
	}
}

func TestBuyPreviewBalanceChecks(t *testing.T) {
	tests := []struct {
		name    string
		balance uint64
		reason  Reason
	}{
		{name: "below amount", balance: 50_000_000, reason: ReasonInsufficientBalance},
		{name: "amount but not fees", balance: 101_000_000, reason: ReasonInsufficientForFees},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.chain.balance = tt.balance
			e.seedSession(t, func(s *session.Session) {
				s.BeginAction(session.ActionBuy)
				s.TokenAddress = testMint
				s.Flow = session.FlowAwaitingAmount
			})

			_, err := e.svc.HandleText(context.Background(), testUser, "0.1")
			require.Error(t, err)
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestBuyPreviewHappyPath(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionBuy)
		s.TokenAddress = testMint
		s.Flow = session.FlowAwaitingAmount
	})

	out, err := e.svc.HandleText(context.Background(), testUser, "0.1")
	require.NoError(t, err)
	require.Equal(t, OutcomePreview, out.Kind)
	require.NotNil(t, out.Preview)

	assert.Equal(t, solAmount, out.Preview.AmountIn)
	// 5_000_000 базовых единиц при 6 знаках = 5 токенов
	assert.Equal(t, 5.0, out.Preview.EstimatedOut)
	assert.NotEmpty(t, out.Preview.QuoteID)

	s := e.currentSession(t)
	assert.Equal(t, session.FlowAwaitingConfirmation, s.Flow)
	assert.Equal(t, out.Preview.QuoteID, s.QuoteID)
	assert.Equal(t, solAmount, s.Amount)
}

func TestSellPreviewRequiresTokenBalance(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionSell)
		s.TokenAddress = testMint
		s.Flow = session.FlowAwaitingAmount
	})

	_, err := e.svc.HandleText(context.Background(), testUser, "5")
	require.Error(t, err)
	assert.Equal(t, ReasonNoTokenBalance, ReasonOf(err))
}

func TestSellPreviewRejectsOversell(t *testing.T) {
	e := newEnv(t)
	e.chain.tokenBalance = &chain.TokenBalance{Amount: 3_000_000, Decimals: 6, UIAmount: 3}
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionSell)
		s.TokenAddress = testMint
		s.Flow = session.FlowAwaitingAmount
	})

	_, err := e.svc.HandleText(context.Background(), testUser, "5")
	require.Error(t, err)
	assert.Equal(t, ReasonInsufficientBalance, ReasonOf(err))
}

func TestSellPercentHalvesBalance(t *testing.T) {
	e := newEnv(t)
	e.chain.tokenBalance = &chain.TokenBalance{Amount: 8_000_000, Decimals: 6, UIAmount: 8}
	e.swap.outAmount = 200_000_000 // 0.2 SOL
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionSell)
		s.TokenAddress = testMint
		s.Flow = session.FlowAwaitingAmount
	})

	out, err := e.svc.SellPercent(context.Background(), testUser, 50)
	require.NoError(t, err)
	require.Equal(t, OutcomePreview, out.Kind)
	assert.Equal(t, 4.0, out.Preview.AmountIn)
	assert.Equal(t, 0.2, out.Preview.EstimatedOut)
}

func TestSellPercentOutsideSellFlow(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, func(s *session.Session) { s.BeginAction(session.ActionBuy) })

	_, err := e.svc.SellPercent(context.Background(), testUser, 100)
	require.Error(t, err)
	assert.Equal(t, ReasonSessionInconsistent, ReasonOf(err))
}

func TestNoRouteBecomesTypedError(t *testing.T) {
	e := newEnv(t)
	e.swap.quoteErr = jupiter.ErrNoRoute
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionBuy)
		s.TokenAddress = testMint
		s.Flow = session.FlowAwaitingAmount
	})

	_, err := e.svc.HandleText(context.Background(), testUser, "0.1")
	require.Error(t, err)
	assert.Equal(t, ReasonNoRoute, ReasonOf(err))
}

func TestConfirmRejectsStaleQuote(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionBuy)
		s.TokenAddress = testMint
		s.Amount = solAmount
		s.QuoteID = "quote-current"
		s.Flow = session.FlowAwaitingConfirmation
	})

	_, err := e.svc.Confirm(context.Background(), testUser, "quote-stale")
	require.Error(t, err)
	assert.Equal(t, ReasonSessionInconsistent, ReasonOf(err))

	// Ошибка описывает состояние на момент подтверждения, а не после сброса
	assert.Contains(t, err.Error(), string(session.FlowAwaitingConfirmation))
	assert.Contains(t, err.Error(), "quote-current")

	// Рассогласование сбрасывает диалог
	s := e.currentSession(t)
	assert.Equal(t, session.FlowIdle, s.Flow)
	assert.Empty(t, s.QuoteID)
}

func TestConfirmBuyExecutesTrade(t *testing.T) {
	e := newEnv(t)
	e.chain.accountExists = false // ATA покупаемого токена ещё не создан
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionBuy)
		s.TokenAddress = testMint
		s.Amount = solAmount
		s.QuoteID = "quote-ok"
		s.Flow = session.FlowAwaitingConfirmation
	})

	result, err := e.svc.Confirm(context.Background(), testUser, "quote-ok")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.Signature)
	assert.Equal(t, session.ActionBuy, result.Action)
	assert.Equal(t, testMint, result.TokenAddress)
	assert.Equal(t, solAmount, result.AmountIn)

	// Создание ATA + сам своп
	assert.Equal(t, 1, e.chain.createdAccounts)
	assert.Len(t, e.chain.sentTxs, 2)
	assert.Len(t, e.chain.confirmed, 2)
	// Исполнение шло по свежей котировке
	assert.Equal(t, 1, e.swap.quoteCalls)
	assert.Equal(t, 1, e.swap.swapCalls)

	assert.Equal(t, session.FlowIdle, e.currentSession(t).Flow)
}

func TestConfirmSellApprovesDelegate(t *testing.T) {
	e := newEnv(t)
	e.chain.tokenBalance = &chain.TokenBalance{Amount: 8_000_000, Decimals: 6, UIAmount: 8}
	e.swap.outAmount = 150_000_000
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionSell)
		s.TokenAddress = testMint
		s.Amount = 4
		s.QuoteID = "quote-sell"
		s.Flow = session.FlowAwaitingConfirmation
	})

	result, err := e.svc.Confirm(context.Background(), testUser, "quote-sell")
	require.NoError(t, err)

	assert.Equal(t, session.ActionSell, result.Action)
	assert.Equal(t, 0.15, result.EstimatedOut)
	// Approve + своп
	require.Len(t, e.chain.sentTxs, 2)

	approveTx := e.chain.sentTxs[0]
	require.NotEmpty(t, approveTx.Message.Instructions)
	programID, err := approveTx.Message.Program(approveTx.Message.Instructions[0].ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, solana.TokenProgramID, programID)
}

func TestConfirmFailureResetsSession(t *testing.T) {
	e := newEnv(t)
	e.swap.quoteErr = jupiter.ErrServiceUnavailable
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionBuy)
		s.TokenAddress = testMint
		s.Amount = solAmount
		s.QuoteID = "quote-fail"
		s.Flow = session.FlowAwaitingConfirmation
	})

	_, err := e.svc.Confirm(context.Background(), testUser, "quote-fail")
	require.Error(t, err)
	assert.Equal(t, ReasonServiceUnavailable, ReasonOf(err))
	assert.Equal(t, session.FlowIdle, e.currentSession(t).Flow)
}

func TestConfirmRetriesSubmission(t *testing.T) {
	e := newEnv(t)
	e.chain.sendFailures = 1 // первая отправка падает, повтор проходит
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionBuy)
		s.TokenAddress = testMint
		s.Amount = solAmount
		s.QuoteID = "quote-retry"
		s.Flow = session.FlowAwaitingConfirmation
	})

	result, err := e.svc.Confirm(context.Background(), testUser, "quote-retry")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Signature)
}

func TestCancelResetsFlow(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, func(s *session.Session) {
		s.BeginAction(session.ActionSell)
		s.TokenAddress = testMint
		s.Flow = session.FlowAwaitingConfirmation
		s.QuoteID = "quote-x"
	})

	require.NoError(t, e.svc.Cancel(context.Background(), testUser))

	s := e.currentSession(t)
	assert.Equal(t, session.FlowIdle, s.Flow)
	assert.Equal(t, session.ActionNone, s.Action)
	assert.True(t, s.HasWallet())
}

func TestIdleAddressShowsTokenCard(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, nil)

	out, err := e.svc.HandleText(context.Background(), testUser, testMint)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTokenInfo, out.Kind)
	assert.Equal(t, "TST", out.Token.Symbol)
}

func TestIdleChatterIsIgnored(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, nil)

	out, err := e.svc.HandleText(context.Background(), testUser, "hello bot")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, out.Kind)
}

func TestWalletOverview(t *testing.T) {
	e := newEnv(t)
	e.chain.balance = 2_500_000_000
	s := e.seedSession(t, nil)

	info, err := e.svc.WalletOverview(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, s.WalletPubkey, info.Address)
	assert.Equal(t, 2.5, info.BalanceSOL)
}

func TestEnterAmountForDeepLink(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, nil)

	out, err := e.svc.EnterAmountFor(context.Background(), testUser, session.ActionBuy, testMint)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmountPrompt, out.Kind)

	s := e.currentSession(t)
	assert.Equal(t, session.FlowAwaitingAmount, s.Flow)
	assert.Equal(t, session.ActionBuy, s.Action)
	assert.Equal(t, testMint, s.TokenAddress)
}
