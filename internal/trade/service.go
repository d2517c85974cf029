// ===============================
// File: internal/trade/service.go
// ===============================
package trade

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	chain "github.com/pumpscience/solana-wallet-bot/internal/blockchain/solana"
	"github.com/pumpscience/solana-wallet-bot/internal/jupiter"
	"github.com/pumpscience/solana-wallet-bot/internal/logger"
	"github.com/pumpscience/solana-wallet-bot/internal/market"
	"github.com/pumpscience/solana-wallet-bot/internal/session"
)

const (
	lamportsPerSOL = 1_000_000_000

	// Границы длины base58-адреса Solana.
	minAddressLen = 32
	maxAddressLen = 44
)

// OutcomeKind описывает, что слой представления должен показать пользователю.
type OutcomeKind int

const (
	OutcomeNone        OutcomeKind = iota
	OutcomeTokenInfo               // карточка токена с кнопками действий
	OutcomeAmountPrompt            // запрос суммы сделки
	OutcomePreview                 // карточка подтверждения сделки
)

// Outcome — результат шага диалога.
type Outcome struct {
	Kind    OutcomeKind
	Action  session.Action
	Token   *market.Token
	Preview *Preview
}

// Preview — данные карточки подтверждения. Котировка в ней оценочная:
// при исполнении запрашивается свежая.
type Preview struct {
	QuoteID        string
	Action         session.Action
	Token          *market.Token
	AmountIn       float64 // SOL для покупки, токены для продажи
	EstimatedOut   float64 // токены для покупки, SOL для продажи
	PriceImpactPct float64
}

// Result — итог исполненной сделки.
type Result struct {
	Signature    string
	Action       session.Action
	TokenAddress string
	TokenSymbol  string
	AmountIn     float64
	EstimatedOut float64
}

// WalletInfo — сводка кошелька для карточки "My Wallet".
type WalletInfo struct {
	Address    string
	BalanceSOL float64
}

// Service управляет торговым диалогом: валидация ввода, котировки,
// подтверждение и исполнение сделок.
type Service struct {
	store         session.Store
	chain         chain.ClientInterface
	market        market.LookupService
	swap          jupiter.SwapService
	slippageBps   int
	feeReserveSOL float64
	submitRetries int
	logger        *logger.Logger
}

// NewService создает торговый сервис с внедрёнными зависимостями.
func NewService(
	store session.Store,
	chainClient chain.ClientInterface,
	marketSvc market.LookupService,
	swapSvc jupiter.SwapService,
	slippageBps int,
	feeReserveSOL float64,
	submitRetries int,
	log *logger.Logger,
) *Service {
	return &Service{
		store:         store,
		chain:         chainClient,
		market:        marketSvc,
		swap:          swapSvc,
		slippageBps:   slippageBps,
		feeReserveSOL: feeReserveSOL,
		submitRetries: submitRetries,
		logger:        log,
	}
}

// IsValidTokenAddress проверяет, похожа ли строка на адрес Solana.
func IsValidTokenAddress(s string) bool {
	if len(s) < minAddressLen || len(s) > maxAddressLen {
		return false
	}
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

func (s *Service) loadSession(ctx context.Context, userID int64) (*session.Session, error) {
	sess, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, newError(ReasonSessionInconsistent, "trade.loadSession", err)
		}
		return nil, newError(ReasonServiceUnavailable, "trade.loadSession", err)
	}
	if !sess.HasWallet() {
		return nil, newError(ReasonSessionInconsistent, "trade.loadSession",
			fmt.Errorf("user %d has no wallet", userID))
	}
	return sess, nil
}

// WalletOverview возвращает адрес и SOL-баланс кошелька пользователя.
func (s *Service) WalletOverview(ctx context.Context, userID int64) (*WalletInfo, error) {
	const op = "trade.WalletOverview"

	sess, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	pubkey, err := solana.PublicKeyFromBase58(sess.WalletPubkey)
	if err != nil {
		return nil, newError(ReasonSessionInconsistent, op, err)
	}
	lamports, err := s.chain.GetBalance(ctx, pubkey)
	if err != nil {
		return nil, newError(ReasonServiceUnavailable, op, err)
	}
	return &WalletInfo{
		Address:    sess.WalletPubkey,
		BalanceSOL: float64(lamports) / lamportsPerSOL,
	}, nil
}

// InspectToken возвращает рыночную карточку токена по адресу.
func (s *Service) InspectToken(ctx context.Context, address string) (*market.Token, error) {
	const op = "trade.InspectToken"

	if !IsValidTokenAddress(address) {
		return nil, newError(ReasonInvalidAddress, op, fmt.Errorf("malformed address %q", address))
	}
	token, err := s.market.Lookup(ctx, address)
	if err != nil {
		if errors.Is(err, market.ErrTokenNotFound) {
			return nil, newError(ReasonTokenNotFound, op, err)
		}
		return nil, newError(ReasonServiceUnavailable, op, err)
	}
	return token, nil
}

// StartAction начинает торговый сценарий: бот ждёт адрес токена.
// Пустой кошелёк к сделке не допускается: диалог остаётся в покое,
// а пользователю возвращается отказ по балансу.
func (s *Service) StartAction(ctx context.Context, userID int64, action session.Action) (*WalletInfo, error) {
	const op = "trade.StartAction"

	sess, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	pubkey, err := solana.PublicKeyFromBase58(sess.WalletPubkey)
	if err != nil {
		return nil, newError(ReasonSessionInconsistent, op, err)
	}
	lamports, err := s.chain.GetBalance(ctx, pubkey)
	if err != nil {
		return nil, newError(ReasonInsufficientBalance, op,
			fmt.Errorf("balance check failed: %w", err))
	}
	if lamports == 0 {
		return nil, newError(ReasonInsufficientBalance, op,
			fmt.Errorf("wallet %s is empty", sess.WalletPubkey))
	}

	sess.BeginAction(action)
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, newError(ReasonServiceUnavailable, op, err)
	}
	s.logger.WithUser(userID).Info("Trade flow started",
		zap.String("action", string(action)))
	return &WalletInfo{
		Address:    sess.WalletPubkey,
		BalanceSOL: float64(lamports) / lamportsPerSOL,
	}, nil
}

// EnterAmountFor переводит диалог сразу к запросу суммы для известного токена.
// Используется кнопками на карточке токена и deep-link из /start.
func (s *Service) EnterAmountFor(ctx context.Context, userID int64, action session.Action, address string) (*Outcome, error) {
	const op = "trade.EnterAmountFor"

	sess, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !IsValidTokenAddress(address) {
		return nil, newError(ReasonInvalidAddress, op, fmt.Errorf("malformed address %q", address))
	}
	token, err := s.InspectToken(ctx, address)
	if err != nil {
		return nil, err
	}

	sess.BeginAction(action)
	sess.TokenAddress = address
	sess.Flow = session.FlowAwaitingAmount
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, newError(ReasonServiceUnavailable, op, err)
	}
	return &Outcome{Kind: OutcomeAmountPrompt, Action: action, Token: token}, nil
}

// HandleText обрабатывает свободный текст пользователя согласно текущему этапу диалога.
func (s *Service) HandleText(ctx context.Context, userID int64, text string) (*Outcome, error) {
	sess, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)

	switch sess.Flow {
	case session.FlowAwaitingTokenAddress:
		return s.handleTokenAddress(ctx, sess, text)
	case session.FlowAwaitingAmount:
		return s.handleAmount(ctx, sess, text)
	default:
		// Вне сценария адрес токена показывает его карточку
		if IsValidTokenAddress(text) {
			token, err := s.InspectToken(ctx, text)
			if err != nil {
				return nil, err
			}
			return &Outcome{Kind: OutcomeTokenInfo, Token: token}, nil
		}
		return &Outcome{Kind: OutcomeNone}, nil
	}
}

func (s *Service) handleTokenAddress(ctx context.Context, sess *session.Session, text string) (*Outcome, error) {
	const op = "trade.handleTokenAddress"

	if !IsValidTokenAddress(text) {
		// Сессия остаётся в ожидании адреса: пользователь может повторить ввод
		return nil, newError(ReasonInvalidAddress, op, fmt.Errorf("malformed address %q", text))
	}
	token, err := s.InspectToken(ctx, text)
	if err != nil {
		return nil, err
	}

	sess.TokenAddress = text
	sess.Flow = session.FlowAwaitingAmount
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, newError(ReasonServiceUnavailable, op, err)
	}
	return &Outcome{Kind: OutcomeAmountPrompt, Action: sess.Action, Token: token}, nil
}

func (s *Service) handleAmount(ctx context.Context, sess *session.Session, text string) (*Outcome, error) {
	const op = "trade.handleAmount"

	amount, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, newError(ReasonInvalidAmount, op, fmt.Errorf("malformed amount %q", text))
	}
	return s.buildPreview(ctx, sess, amount)
}

// SellPercent строит подтверждение продажи доли текущего токен-баланса.
func (s *Service) SellPercent(ctx context.Context, userID int64, percent int) (*Outcome, error) {
	const op = "trade.SellPercent"

	if percent <= 0 || percent > 100 {
		return nil, newError(ReasonInvalidAmount, op, fmt.Errorf("percent %d out of range", percent))
	}

	sess, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess.Action != session.ActionSell || sess.TokenAddress == "" ||
		(sess.Flow != session.FlowAwaitingAmount && sess.Flow != session.FlowAwaitingConfirmation) {
		return nil, newError(ReasonSessionInconsistent, op,
			fmt.Errorf("flow %q action %q", sess.Flow, sess.Action))
	}

	owner, mint, err := sessionKeys(sess)
	if err != nil {
		return nil, newError(ReasonSessionInconsistent, op, err)
	}
	balance, err := s.chain.GetTokenBalance(ctx, owner, mint)
	if err != nil {
		return nil, newError(ReasonServiceUnavailable, op, err)
	}
	if balance.Amount == 0 {
		return nil, newError(ReasonNoTokenBalance, op,
			fmt.Errorf("no balance for token %s", sess.TokenAddress))
	}

	amount := balance.UIAmount * float64(percent) / 100
	return s.buildPreview(ctx, sess, amount)
}

// buildPreview проверяет балансы, запрашивает котировку и переводит сессию
// в ожидание подтверждения.
func (s *Service) buildPreview(ctx context.Context, sess *session.Session, amount float64) (*Outcome, error) {
	const op = "trade.buildPreview"

	owner, mint, err := sessionKeys(sess)
	if err != nil {
		return nil, newError(ReasonSessionInconsistent, op, err)
	}

	var quote *jupiter.Quote
	var estimatedOut float64

	switch sess.Action {
	case session.ActionBuy:
		lamports := uint64(math.Round(amount * lamportsPerSOL))
		if lamports == 0 {
			return nil, newError(ReasonInvalidAmount, op, fmt.Errorf("amount %f too small", amount))
		}
		balance, err := s.chain.GetBalance(ctx, owner)
		if err != nil {
			return nil, newError(ReasonServiceUnavailable, op, err)
		}
		reserve := uint64(math.Round(s.feeReserveSOL * lamportsPerSOL))
		if balance < lamports {
			return nil, newError(ReasonInsufficientBalance, op,
				fmt.Errorf("balance %d lamports, need %d", balance, lamports))
		}
		if balance < lamports+reserve {
			return nil, newError(ReasonInsufficientForFees, op,
				fmt.Errorf("balance %d lamports, need %d plus fee reserve %d", balance, lamports, reserve))
		}

		quote, err = s.getQuote(ctx, jupiter.WSOLMint, sess.TokenAddress, lamports)
		if err != nil {
			return nil, err
		}
		decimals, err := s.chain.GetMintDecimals(ctx, mint)
		if err != nil {
			return nil, newError(ReasonServiceUnavailable, op, err)
		}
		estimatedOut = float64(quote.OutAmount) / math.Pow10(int(decimals))

	case session.ActionSell:
		balance, err := s.chain.GetTokenBalance(ctx, owner, mint)
		if err != nil {
			return nil, newError(ReasonServiceUnavailable, op, err)
		}
		if balance.Amount == 0 {
			return nil, newError(ReasonNoTokenBalance, op,
				fmt.Errorf("no balance for token %s", sess.TokenAddress))
		}
		if amount > balance.UIAmount {
			return nil, newError(ReasonInsufficientBalance, op,
				fmt.Errorf("have %f tokens, asked to sell %f", balance.UIAmount, amount))
		}
		solBalance, err := s.chain.GetBalance(ctx, owner)
		if err != nil {
			return nil, newError(ReasonServiceUnavailable, op, err)
		}
		reserve := uint64(math.Round(s.feeReserveSOL * lamportsPerSOL))
		if solBalance < reserve {
			return nil, newError(ReasonInsufficientForFees, op,
				fmt.Errorf("balance %d lamports below fee reserve %d", solBalance, reserve))
		}

		baseUnits := tokensToBaseUnits(amount, balance.Decimals)
		if baseUnits == 0 {
			return nil, newError(ReasonInvalidAmount, op, fmt.Errorf("amount %f too small", amount))
		}
		quote, err = s.getQuote(ctx, sess.TokenAddress, jupiter.WSOLMint, baseUnits)
		if err != nil {
			return nil, err
		}
		estimatedOut = float64(quote.OutAmount) / lamportsPerSOL

	default:
		return nil, newError(ReasonSessionInconsistent, op,
			fmt.Errorf("no action selected in flow %q", sess.Flow))
	}

	token, err := s.market.Lookup(ctx, sess.TokenAddress)
	if err != nil {
		// Карточка без рыночных данных лучше сорванного диалога
		s.logger.Warn("Token lookup failed for preview",
			zap.String("token", sess.TokenAddress),
			zap.Error(err))
		token = &market.Token{Address: sess.TokenAddress}
	}

	sess.Amount = amount
	sess.QuoteID = quote.ID
	sess.Flow = session.FlowAwaitingConfirmation
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, newError(ReasonServiceUnavailable, op, err)
	}

	return &Outcome{
		Kind:   OutcomePreview,
		Action: sess.Action,
		Token:  token,
		Preview: &Preview{
			QuoteID:        quote.ID,
			Action:         sess.Action,
			Token:          token,
			AmountIn:       amount,
			EstimatedOut:   estimatedOut,
			PriceImpactPct: quote.PriceImpactPct,
		},
	}, nil
}

func (s *Service) getQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (*jupiter.Quote, error) {
	const op = "trade.getQuote"

	quote, err := s.swap.GetQuote(ctx, inputMint, outputMint, amount, s.slippageBps)
	if err != nil {
		if errors.Is(err, jupiter.ErrNoRoute) {
			return nil, newError(ReasonNoRoute, op, err)
		}
		return nil, newError(ReasonServiceUnavailable, op, err)
	}
	return quote, nil
}

// Confirm исполняет подтверждённую сделку. quoteID должен совпадать с котировкой,
// показанной в карточке подтверждения: устаревшие кнопки отклоняются.
func (s *Service) Confirm(ctx context.Context, userID int64, quoteID string) (*Result, error) {
	const op = "trade.Confirm"

	sess, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess.Flow != session.FlowAwaitingConfirmation || quoteID == "" || sess.QuoteID != quoteID {
		staleFlow, staleQuote := sess.Flow, sess.QuoteID
		// Любое рассогласование сбрасывает диалог в исходное состояние
		sess.Reset()
		if putErr := s.store.Put(ctx, sess); putErr != nil {
			s.logger.Warn("Failed to reset inconsistent session",
				zap.Int64("user_id", userID),
				zap.Error(putErr))
		}
		return nil, newError(ReasonSessionInconsistent, op,
			fmt.Errorf("flow %q, quote %q vs %q", staleFlow, staleQuote, quoteID))
	}

	sess.Flow = session.FlowExecuting
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, newError(ReasonServiceUnavailable, op, err)
	}

	result, execErr := s.execute(ctx, sess)

	// Сессия возвращается в покой независимо от исхода сделки
	sess.Reset()
	if err := s.store.Put(ctx, sess); err != nil {
		s.logger.LogError("Failed to reset session after trade", err,
			zap.Int64("user_id", userID))
	}

	if execErr != nil {
		return nil, execErr
	}
	return result, nil
}

// Cancel прерывает текущий сценарий и возвращает сессию в покой.
func (s *Service) Cancel(ctx context.Context, userID int64) error {
	const op = "trade.Cancel"

	sess, err := s.loadSession(ctx, userID)
	if err != nil {
		return err
	}
	sess.Reset()
	if err := s.store.Put(ctx, sess); err != nil {
		return newError(ReasonServiceUnavailable, op, err)
	}
	return nil
}

func sessionKeys(sess *session.Session) (owner, mint solana.PublicKey, err error) {
	owner, err = solana.PublicKeyFromBase58(sess.WalletPubkey)
	if err != nil {
		return owner, mint, fmt.Errorf("invalid wallet pubkey: %w", err)
	}
	mint, err = solana.PublicKeyFromBase58(sess.TokenAddress)
	if err != nil {
		return owner, mint, fmt.Errorf("invalid token address: %w", err)
	}
	return owner, mint, nil
}

// tokensToBaseUnits переводит человеко-читаемое количество токенов в базовые единицы.
func tokensToBaseUnits(amount float64, decimals uint8) uint64 {
	return uint64(math.Round(amount * math.Pow10(int(decimals))))
}
