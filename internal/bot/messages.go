// ===============================
// File: internal/bot/messages.go
// ===============================
package bot

import (
	"fmt"
	"strconv"

	"github.com/pumpscience/solana-wallet-bot/internal/market"
	"github.com/pumpscience/solana-wallet-bot/internal/session"
	"github.com/pumpscience/solana-wallet-bot/internal/trade"
)

// Форматирование сообщений вынесено в чистые функции: ни одна из них
// не ходит в сеть и не меняет состояние, что позволяет проверять тексты
// напрямую в тестах.

const brand = "Pump Science Wallet"

// formatNumber печатает число без хвостовых нулей, как это делает интерфейс бота.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatWelcome — приветствие нового пользователя с данными созданного кошелька.
func FormatWelcome(walletAddress string) string {
	return fmt.Sprintf(`⭐ Welcome to %s!

Your Solana wallet has been created:
🔑 Address: `+"`%s`"+`
🔍 View on Solscan: https://solscan.io/account/%s

To start trading:
1️⃣ Copy your wallet address above
2️⃣ Send SOL to start trading
3️⃣ Use the menu below to trade tokens`, brand, walletAddress, walletAddress)
}

// FormatMainMenu — заголовок главного меню.
func FormatMainMenu() string {
	return fmt.Sprintf("🚀 Welcome to %s! Choose an option:", brand)
}

// FormatTradeInstructions — инструкция перед вводом адреса токена.
func FormatTradeInstructions(walletAddress string) string {
	return fmt.Sprintf(`💸 Trade Instructions - %s

Your trading wallet:
🔑 Address: `+"`%s`"+`
🔍 View on Solscan: https://solscan.io/account/%s

To execute a trade on Solana Mainnet:
1️⃣ Enter the token's contract address
2️⃣ Choose the amount to trade
3️⃣ Confirm the transaction`, brand, walletAddress, walletAddress)
}

// FormatWalletInfo — карточка кошелька с балансом.
func FormatWalletInfo(balanceSOL float64, walletAddress string) string {
	return fmt.Sprintf(`🔍 Wallet Information - %s

💰 Balance: %s SOL
🔑 Address: `+"`%s`"+`
🔍 View on Solscan: https://solscan.io/account/%s`,
		brand, formatNumber(balanceSOL), walletAddress, walletAddress)
}

// FormatInsufficientBalance — баланс слишком мал даже для начала сделки.
func FormatInsufficientBalance(balanceSOL float64, walletAddress string) string {
	return fmt.Sprintf(`❌ Insufficient Balance - %s

💰 Current Balance: %s SOL
🔑 Wallet Address: `+"`%s`"+`
🔍 View on Solscan: https://solscan.io/account/%s

To trade on Solana Mainnet:
1️⃣ Copy your wallet address above
2️⃣ Send SOL to this address
3️⃣ Wait for transaction confirmation

Try again after adding funds.`, brand, formatNumber(balanceSOL), walletAddress, walletAddress)
}

// FormatTokenInfo — рыночная карточка токена.
func FormatTokenInfo(token *market.Token) string {
	return fmt.Sprintf(`🔍 Token Information - %s

📊 Symbol: %s
💲 Price: $%s
💰 Market Cap: $%s
📈 24h Volume: $%s
📊 Price Change 24h: %s%%

💧 Liquidity: $%s
🏦 Dex: %s

🔑 Contract Address: `+"`%s`",
		brand,
		token.Symbol,
		formatNumber(token.PriceUSD),
		formatNumber(token.FDV),
		formatNumber(token.Volume24h),
		formatNumber(token.Change24h),
		formatNumber(token.LiquidityUSD),
		token.DexID,
		token.Address)
}

// FormatEnterTokenAddress — запрос адреса токена для выбранного действия.
func FormatEnterTokenAddress(action session.Action) string {
	verb := "buy"
	if action == session.ActionSell {
		verb = "sell"
	}
	return fmt.Sprintf("🔑 Enter the contract address of the token you want to %s:", verb)
}

// FormatAmountPrompt — запрос суммы сделки.
func FormatAmountPrompt(action session.Action, token *market.Token) string {
	if action == session.ActionSell {
		return fmt.Sprintf("💸 Enter the amount of %s tokens to sell, or pick a shortcut below:", token.Symbol)
	}
	return fmt.Sprintf("💸 Enter the amount of SOL to spend on %s:", token.Symbol)
}

// FormatTradeSummary — карточка подтверждения сделки.
func FormatTradeSummary(p *trade.Preview, walletBalanceSOL float64, slippageBps int) string {
	inputToken := "SOL"
	outputToken := "Token"
	if p.Action == session.ActionSell {
		inputToken = "Token"
		outputToken = "SOL"
	}
	return fmt.Sprintf(`💱 *Trade Summary*

*Input:* %s %s
*Expected Output:* %s %s
*Price Impact:* %.2f%%
*Slippage Tolerance:* %s%%

💰 *Wallet Balance:* %.4f SOL

Please confirm if you want to proceed with this trade.`,
		formatNumber(p.AmountIn), inputToken,
		formatNumber(p.EstimatedOut), outputToken,
		p.PriceImpactPct,
		formatNumber(float64(slippageBps)/100),
		walletBalanceSOL)
}

// FormatTradeSuccess — итог успешной сделки.
func FormatTradeSuccess(r *trade.Result, walletAddress string) string {
	return fmt.Sprintf(`🎉 Trade Successful - %s

💫 Transaction Details:
📍 Status: Confirmed
🔗 Network: Solana Mainnet
💰 Amount: %s %s

🔍 View Transaction:
https://solscan.io/tx/%s

⚡ Transaction Hash:
`+"`%s`"+`

👛 Wallet Information:
🔑 Address: `+"`%s`"+`
🔍 View Wallet: https://solscan.io/account/%s`,
		brand,
		formatNumber(r.AmountIn), amountUnit(r.Action),
		r.Signature, r.Signature,
		walletAddress, walletAddress)
}

func amountUnit(action session.Action) string {
	if action == session.ActionSell {
		return "tokens"
	}
	return "SOL"
}

// FormatTokenNotFound — токен не найден ни на одной площадке.
func FormatTokenNotFound(address string) string {
	return fmt.Sprintf(`❌ Token Not Found - %s

🔍 The token at address `+"`%s`"+` was not found on any supported DEX.

Please verify:
1️⃣ The token address is correct
2️⃣ The token is traded on Jupiter/Raydium
3️⃣ The token has active liquidity`, brand, address)
}

// FormatInvalidAddress — строка не похожа на адрес Solana.
func FormatInvalidAddress() string {
	return fmt.Sprintf(`❌ Invalid Address - %s

Please provide a valid Solana token address:
1️⃣ Should be 32-44 characters long
2️⃣ Contains only base58 characters
3️⃣ No special characters or spaces`, brand)
}

// FormatServiceUnavailable — внешний сервис недоступен.
func FormatServiceUnavailable() string {
	return fmt.Sprintf(`❌ Service Temporarily Unavailable - %s

We're experiencing issues with our price feed.
Please try again in a few minutes.

If the issue persists, check:
1️⃣ Network connectivity
2️⃣ Token liquidity status
3️⃣ DEX API availability`, brand)
}

// FormatCancelled — сценарий прерван пользователем.
func FormatCancelled() string {
	return "❌ Trade cancelled. Use the menu below to start a new one."
}

// FormatTradeFailure подбирает текст по категории отказа торговой операции.
func FormatTradeFailure(reason trade.Reason, action session.Action) string {
	switch reason {
	case trade.ReasonInvalidAddress:
		return FormatInvalidAddress()
	case trade.ReasonInvalidAmount:
		return "❌ Invalid trade amount. Please try a different amount."
	case trade.ReasonInsufficientBalance:
		if action == session.ActionSell {
			return "❌ Insufficient token balance for the trade."
		}
		return "❌ Insufficient SOL balance for the trade."
	case trade.ReasonInsufficientForFees:
		return "❌ Insufficient balance for trade and fees."
	case trade.ReasonNoTokenBalance:
		return "❌ No tokens found in your wallet to sell"
	case trade.ReasonNoRoute:
		return "❌ No trading route found. This pair might not be tradeable."
	case trade.ReasonServiceUnavailable:
		return FormatServiceUnavailable()
	case trade.ReasonApprovalFailed:
		return "❌ Failed to approve token spending. Please try again."
	case trade.ReasonAccountCreationFailed:
		return "❌ Failed to prepare token account. Please try again."
	case trade.ReasonSessionInconsistent:
		return "❌ This action is no longer valid. Please restart the bot with /start"
	default:
		return "❌ Trade failed. Please try again."
	}
}
