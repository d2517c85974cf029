// ===============================
// File: internal/bot/handlers.go
// ===============================
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/pumpscience/solana-wallet-bot/internal/session"
	"github.com/pumpscience/solana-wallet-bot/internal/trade"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic while handling update", zap.Any("panic", r))
		}
	}()

	switch {
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		b.handleText(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

// ensureSession гарантирует, что у пользователя есть сессия с кошельком.
func (b *Bot) ensureSession(ctx context.Context, userID, chatID int64) (*session.Session, bool) {
	sess, _, err := b.provisioner.GetOrCreate(ctx, userID, chatID)
	if err != nil {
		b.logger.Error("Failed to provision wallet",
			zap.Int64("user_id", userID),
			zap.Error(err))
		b.send(chatID, "❌ An unexpected error occurred. Please try again - "+brand, nil)
		return nil, false
	}
	return sess, true
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	sess, ok := b.ensureSession(ctx, userID, chatID)
	if !ok {
		return
	}

	switch msg.Command() {
	case "start":
		// Deep-link вида /start buy_<адрес> сразу ведёт к вводу суммы
		if payload := msg.CommandArguments(); payload != "" {
			if b.handleDeepLink(ctx, userID, chatID, payload) {
				return
			}
		}
		b.send(chatID, FormatWelcome(sess.WalletPubkey), nil)
		menu := mainMenuKeyboard()
		b.send(chatID, FormatMainMenu(), &menu)
	case "wallet":
		b.sendWalletInfo(ctx, userID, chatID)
	case "help":
		b.send(chatID, FormatTradeInstructions(sess.WalletPubkey), nil)
	default:
		menu := mainMenuKeyboard()
		b.send(chatID, FormatMainMenu(), &menu)
	}
}

// handleDeepLink разбирает payload формата <действие>_<адрес токена>.
func (b *Bot) handleDeepLink(ctx context.Context, userID, chatID int64, payload string) bool {
	parts := strings.SplitN(payload, "_", 2)
	if len(parts) != 2 {
		return false
	}

	var action session.Action
	switch parts[0] {
	case "buy":
		action = session.ActionBuy
	case "sell":
		action = session.ActionSell
	default:
		return false
	}

	out, err := b.trade.EnterAmountFor(ctx, userID, action, parts[1])
	if err != nil {
		b.renderTradeError(chatID, err, parts[1], action)
		return true
	}
	b.renderOutcome(ctx, userID, chatID, out)
	return true
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	sess, ok := b.ensureSession(ctx, userID, chatID)
	if !ok {
		return
	}

	out, err := b.trade.HandleText(ctx, userID, msg.Text)
	if err != nil {
		b.renderTradeError(chatID, err, strings.TrimSpace(msg.Text), sess.Action)
		return
	}
	b.renderOutcome(ctx, userID, chatID, out)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Телеграм ждёт ответа на каждый callback, иначе кнопка "крутится"
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err))
	}
	if cb.Message == nil {
		return
	}

	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	sess, ok := b.ensureSession(ctx, userID, chatID)
	if !ok {
		return
	}

	data := cb.Data
	switch {
	case data == callbackBuy:
		b.startTradeFlow(ctx, sess, chatID, session.ActionBuy)
	case data == callbackSell:
		b.startTradeFlow(ctx, sess, chatID, session.ActionSell)
	case data == callbackMyWallet:
		b.sendWalletInfo(ctx, userID, chatID)
	case data == callbackHelp:
		b.send(chatID, FormatTradeInstructions(sess.WalletPubkey), nil)
	case data == callbackRefresh:
		menu := mainMenuKeyboard()
		b.send(chatID, FormatMainMenu(), &menu)
	case data == callbackSell50:
		b.sellPercent(ctx, userID, chatID, 50)
	case data == callbackSell100:
		b.sellPercent(ctx, userID, chatID, 100)
	case strings.HasPrefix(data, callbackBuyToken):
		b.enterAmount(ctx, userID, chatID, session.ActionBuy, strings.TrimPrefix(data, callbackBuyToken))
	case strings.HasPrefix(data, callbackSellToken):
		b.enterAmount(ctx, userID, chatID, session.ActionSell, strings.TrimPrefix(data, callbackSellToken))
	case strings.HasPrefix(data, callbackEnterAmt):
		action := sess.Action
		if action == session.ActionNone {
			action = session.ActionBuy
		}
		b.enterAmount(ctx, userID, chatID, action, strings.TrimPrefix(data, callbackEnterAmt))
	case strings.HasPrefix(data, callbackConfirm):
		b.confirmTrade(ctx, userID, chatID, sess.Action, strings.TrimPrefix(data, callbackConfirm))
	case data == callbackCancel:
		b.cancelTrade(ctx, userID, chatID)
	default:
		b.logger.Debug("Unknown callback", zap.String("data", data))
	}
}

func (b *Bot) startTradeFlow(ctx context.Context, sess *session.Session, chatID int64, action session.Action) {
	info, err := b.trade.StartAction(ctx, sess.UserID, action)
	if err != nil {
		// Пустой кошелёк: сценарий не начинается, показываем карточку пополнения
		if trade.ReasonOf(err) == trade.ReasonInsufficientBalance {
			b.send(chatID, FormatInsufficientBalance(0, sess.WalletPubkey), nil)
			return
		}
		b.renderTradeError(chatID, err, "", action)
		return
	}
	b.send(chatID, FormatWalletInfo(info.BalanceSOL, info.Address), nil)
	b.send(chatID, FormatEnterTokenAddress(action), nil)
}

func (b *Bot) enterAmount(ctx context.Context, userID, chatID int64, action session.Action, address string) {
	out, err := b.trade.EnterAmountFor(ctx, userID, action, address)
	if err != nil {
		b.renderTradeError(chatID, err, address, action)
		return
	}
	b.renderOutcome(ctx, userID, chatID, out)
}

func (b *Bot) sellPercent(ctx context.Context, userID, chatID int64, percent int) {
	out, err := b.trade.SellPercent(ctx, userID, percent)
	if err != nil {
		b.renderTradeError(chatID, err, "", session.ActionSell)
		return
	}
	b.renderOutcome(ctx, userID, chatID, out)
}

func (b *Bot) confirmTrade(ctx context.Context, userID, chatID int64, action session.Action, quoteID string) {
	b.send(chatID, "🔄 Executing trade, please wait...", nil)

	result, err := b.trade.Confirm(ctx, userID, quoteID)
	if err != nil {
		b.renderTradeError(chatID, err, "", action)
		return
	}

	sess, ok := b.ensureSession(ctx, userID, chatID)
	if !ok {
		return
	}
	b.send(chatID, FormatTradeSuccess(result, sess.WalletPubkey), nil)
	menu := mainMenuKeyboard()
	b.send(chatID, FormatMainMenu(), &menu)
}

func (b *Bot) cancelTrade(ctx context.Context, userID, chatID int64) {
	if err := b.trade.Cancel(ctx, userID); err != nil {
		b.renderTradeError(chatID, err, "", session.ActionNone)
		return
	}
	menu := mainMenuKeyboard()
	b.send(chatID, FormatCancelled(), &menu)
}

func (b *Bot) sendWalletInfo(ctx context.Context, userID, chatID int64) {
	info, err := b.trade.WalletOverview(ctx, userID)
	if err != nil {
		b.renderTradeError(chatID, err, "", session.ActionNone)
		return
	}
	if info.BalanceSOL == 0 {
		b.send(chatID, FormatInsufficientBalance(info.BalanceSOL, info.Address), nil)
		return
	}
	b.send(chatID, FormatWalletInfo(info.BalanceSOL, info.Address), nil)
}

// renderOutcome переводит результат шага диалога в сообщение с клавиатурой.
func (b *Bot) renderOutcome(ctx context.Context, userID, chatID int64, out *trade.Outcome) {
	switch out.Kind {
	case trade.OutcomeTokenInfo:
		keyboard := tokenCardKeyboard(out.Token.Address)
		b.send(chatID, FormatTokenInfo(out.Token), &keyboard)
	case trade.OutcomeAmountPrompt:
		b.send(chatID, FormatTokenInfo(out.Token), nil)
		if out.Action == session.ActionSell {
			keyboard := sellAmountKeyboard()
			b.send(chatID, FormatAmountPrompt(out.Action, out.Token), &keyboard)
		} else {
			b.send(chatID, FormatAmountPrompt(out.Action, out.Token), nil)
		}
	case trade.OutcomePreview:
		balance := 0.0
		if info, err := b.trade.WalletOverview(ctx, userID); err == nil {
			balance = info.BalanceSOL
		}
		keyboard := confirmationKeyboard(out.Preview.QuoteID)
		b.send(chatID, FormatTradeSummary(out.Preview, balance, b.cfg.SlippageBps), &keyboard)
	default:
		menu := mainMenuKeyboard()
		b.send(chatID, FormatMainMenu(), &menu)
	}
}

// renderTradeError показывает пользователю текст, подобранный по категории отказа
// и направлению сделки: для продажи не хватает токенов, для покупки — SOL.
func (b *Bot) renderTradeError(chatID int64, err error, enteredText string, action session.Action) {
	reason := trade.ReasonOf(err)

	b.logger.Warn("Trade operation failed",
		zap.Int64("chat_id", chatID),
		zap.String("reason", string(reason)),
		zap.String("action", string(action)),
		zap.Error(err))

	if reason == trade.ReasonTokenNotFound && enteredText != "" {
		b.send(chatID, FormatTokenNotFound(enteredText), nil)
		return
	}
	b.send(chatID, FormatTradeFailure(reason, action), nil)
}
