// ===============================
// File: internal/bot/keyboard.go
// ===============================
package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Данные callback-кнопок. Параметризованные колбэки несут полезную
// нагрузку после двоеточия.
const (
	callbackBuy       = "buy"
	callbackSell      = "sell"
	callbackMyWallet  = "my_wallet"
	callbackHelp      = "help"
	callbackRefresh   = "refresh"
	callbackSell50    = "sell_50"
	callbackSell100   = "sell_100"
	callbackCancel    = "cancel_trade"
	callbackConfirm   = "confirm_trade:" // confirm_trade:<quote_id>
	callbackEnterAmt  = "enter_amount:"  // enter_amount:<token_address>
	callbackBuyToken  = "buy_token:"     // buy_token:<token_address>
	callbackSellToken = "sell_token:"    // sell_token:<token_address>
)

// mainMenuKeyboard — кнопки главного меню.
func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛒 Buy", callbackBuy),
			tgbotapi.NewInlineKeyboardButtonData("💰 Sell", callbackSell),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👛 My Wallet", callbackMyWallet),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❓ Help", callbackHelp),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", callbackRefresh),
		),
	)
}

// tokenCardKeyboard — кнопки действий на карточке токена.
func tokenCardKeyboard(address string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛒 Buy", callbackBuyToken+address),
			tgbotapi.NewInlineKeyboardButtonData("💰 Sell", callbackSellToken+address),
		),
	)
}

// sellAmountKeyboard — быстрые доли продажи на шаге ввода суммы.
func sellAmountKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Sell 50%", callbackSell50),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Sell 100%", callbackSell100),
		),
	)
}

// confirmationKeyboard — подтверждение сделки, привязанное к котировке.
func confirmationKeyboard(quoteID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", callbackConfirm+quoteID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", callbackCancel),
		),
	)
}
