// ===============================
// File: internal/trade/execute.go
// ===============================
package trade

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/pumpscience/solana-wallet-bot/internal/jupiter"
	"github.com/pumpscience/solana-wallet-bot/internal/session"
	"github.com/pumpscience/solana-wallet-bot/internal/wallet"
)

// execute исполняет подтверждённую сделку: проверяет балансы ещё раз,
// готовит токен-аккаунты, запрашивает свежую котировку, подписывает
// и отправляет транзакцию обмена.
func (s *Service) execute(ctx context.Context, sess *session.Session) (*Result, error) {
	const op = "trade.execute"

	w, err := wallet.Restore(sess)
	if err != nil {
		return nil, newError(ReasonSessionInconsistent, op, err)
	}
	owner, mint, err := sessionKeys(sess)
	if err != nil {
		return nil, newError(ReasonSessionInconsistent, op, err)
	}

	// У операции единый correlation id: по нему собираются все шаги сделки
	log := s.logger.WithOperation("execute_trade").With(
		zap.Int64("user_id", sess.UserID),
		zap.String("action", string(sess.Action)),
		zap.String("token", sess.TokenAddress),
		zap.Float64("amount", sess.Amount))
	log.Info("Executing trade")

	var inputMint, outputMint string
	var baseAmount uint64

	switch sess.Action {
	case session.ActionBuy:
		lamports := uint64(math.Round(sess.Amount * lamportsPerSOL))
		reserve := uint64(math.Round(s.feeReserveSOL * lamportsPerSOL))

		balance, err := s.chain.GetBalance(ctx, owner)
		if err != nil {
			return nil, newError(ReasonServiceUnavailable, op, err)
		}
		if balance < lamports+reserve {
			return nil, newError(ReasonInsufficientForFees, op,
				fmt.Errorf("balance %d lamports, need %d plus fee reserve %d", balance, lamports, reserve))
		}

		// Токен-аккаунт для покупаемого токена должен существовать до свопа
		if err := s.ensureTokenAccount(ctx, w, mint); err != nil {
			return nil, err
		}

		inputMint, outputMint, baseAmount = jupiter.WSOLMint, sess.TokenAddress, lamports

	case session.ActionSell:
		tokenBalance, err := s.chain.GetTokenBalance(ctx, owner, mint)
		if err != nil {
			return nil, newError(ReasonServiceUnavailable, op, err)
		}
		if tokenBalance.Amount == 0 {
			return nil, newError(ReasonNoTokenBalance, op,
				fmt.Errorf("no balance for token %s", sess.TokenAddress))
		}
		baseAmount = tokensToBaseUnits(sess.Amount, tokenBalance.Decimals)
		if baseAmount > tokenBalance.Amount {
			baseAmount = tokenBalance.Amount
		}
		if baseAmount == 0 {
			return nil, newError(ReasonInvalidAmount, op,
				fmt.Errorf("amount %f below one base unit", sess.Amount))
		}

		solBalance, err := s.chain.GetBalance(ctx, owner)
		if err != nil {
			return nil, newError(ReasonServiceUnavailable, op, err)
		}
		if solBalance < uint64(math.Round(s.feeReserveSOL*lamportsPerSOL)) {
			return nil, newError(ReasonInsufficientForFees, op,
				fmt.Errorf("balance %d lamports below fee reserve", solBalance))
		}

		if err := s.approveDelegate(ctx, w, mint, baseAmount); err != nil {
			return nil, err
		}

		inputMint, outputMint = sess.TokenAddress, jupiter.WSOLMint

	default:
		return nil, newError(ReasonSessionInconsistent, op,
			fmt.Errorf("unexpected action %q", sess.Action))
	}

	// Котировка из карточки подтверждения могла устареть: исполняем по свежей
	quote, err := s.getQuote(ctx, inputMint, outputMint, baseAmount)
	if err != nil {
		return nil, err
	}

	tx, err := s.swap.BuildSwapTransaction(ctx, quote, w.PublicKey)
	if err != nil {
		if errors.Is(err, jupiter.ErrServiceUnavailable) {
			return nil, newError(ReasonServiceUnavailable, op, err)
		}
		return nil, newError(ReasonExecutionFailed, op, err)
	}
	if err := w.SignTransaction(tx); err != nil {
		return nil, newError(ReasonExecutionFailed, op, err)
	}

	sig, err := s.submitWithRetry(ctx, tx)
	if err != nil {
		return nil, newError(ReasonExecutionFailed, op, err)
	}
	if err := s.chain.WaitForConfirmation(ctx, sig); err != nil {
		return nil, newError(ReasonExecutionFailed, op, err)
	}

	s.logger.WithTransaction(sig.String()).Info("Trade executed",
		zap.Int64("user_id", sess.UserID),
		zap.Uint64("out_amount", quote.OutAmount),
		zap.Uint64("min_out_amount", quote.MinOutAmount))

	result := &Result{
		Signature:    sig.String(),
		Action:       sess.Action,
		TokenAddress: sess.TokenAddress,
		AmountIn:     sess.Amount,
	}
	if sess.Action == session.ActionBuy {
		decimals, err := s.chain.GetMintDecimals(ctx, mint)
		if err == nil {
			result.EstimatedOut = float64(quote.OutAmount) / math.Pow10(int(decimals))
		}
	} else {
		result.EstimatedOut = float64(quote.OutAmount) / lamportsPerSOL
	}
	if token, err := s.market.Lookup(ctx, sess.TokenAddress); err == nil {
		result.TokenSymbol = token.Symbol
	}
	return result, nil
}

// ensureTokenAccount создаёт ассоциированный токен-аккаунт, если его ещё нет.
func (s *Service) ensureTokenAccount(ctx context.Context, w *wallet.Wallet, mint solana.PublicKey) error {
	const op = "trade.ensureTokenAccount"

	ata, err := w.GetATA(mint)
	if err != nil {
		return newError(ReasonAccountCreationFailed, op, err)
	}
	exists, err := s.chain.AccountExists(ctx, ata)
	if err != nil {
		return newError(ReasonServiceUnavailable, op, err)
	}
	if exists {
		return nil
	}

	inst, err := w.CreateAssociatedTokenAccountIdempotentInstruction(mint)
	if err != nil {
		return newError(ReasonAccountCreationFailed, op, err)
	}
	if err := s.sendInstruction(ctx, w, inst); err != nil {
		return newError(ReasonAccountCreationFailed, op, err)
	}

	s.logger.Debug("Created associated token account",
		zap.String("mint", mint.String()),
		zap.String("ata", ata.String()))
	return nil
}

// approveDelegate выдаёт агрегатору право списать baseAmount токенов при продаже.
func (s *Service) approveDelegate(ctx context.Context, w *wallet.Wallet, mint solana.PublicKey, baseAmount uint64) error {
	const op = "trade.approveDelegate"

	delegate, err := solana.PublicKeyFromBase58(jupiter.DelegateAuthority)
	if err != nil {
		return newError(ReasonApprovalFailed, op, err)
	}
	inst, err := w.ApproveInstruction(mint, delegate, baseAmount)
	if err != nil {
		return newError(ReasonApprovalFailed, op, err)
	}
	if err := s.sendInstruction(ctx, w, inst); err != nil {
		return newError(ReasonApprovalFailed, op, err)
	}

	s.logger.Debug("Approved delegate for sell",
		zap.String("mint", mint.String()),
		zap.Uint64("amount", baseAmount))
	return nil
}

// sendInstruction собирает, подписывает и отправляет транзакцию
// из одной инструкции, дожидаясь подтверждения.
func (s *Service) sendInstruction(ctx context.Context, w *wallet.Wallet, inst solana.Instruction) error {
	blockhash, err := s.chain.GetRecentBlockhash(ctx)
	if err != nil {
		return err
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		blockhash,
		solana.TransactionPayer(w.PublicKey),
	)
	if err != nil {
		return err
	}
	if err := w.SignTransaction(tx); err != nil {
		return err
	}
	sig, err := s.submitWithRetry(ctx, tx)
	if err != nil {
		return err
	}
	return s.chain.WaitForConfirmation(ctx, sig)
}

// submitWithRetry отправляет транзакцию с экспоненциальным бэкоффом.
func (s *Service) submitWithRetry(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return backoff.Retry(ctx, func() (solana.Signature, error) {
		sig, err := s.chain.SendTransaction(ctx, tx)
		if err != nil {
			if ctx.Err() != nil {
				return solana.Signature{}, backoff.Permanent(err)
			}
			return solana.Signature{}, err
		}
		return sig, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(s.submitRetries)+1),
	)
}
