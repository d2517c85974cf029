// ==========================
// File: internal/bot/bot.go
// ==========================
package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/pumpscience/solana-wallet-bot/internal/config"
	"github.com/pumpscience/solana-wallet-bot/internal/trade"
	"github.com/pumpscience/solana-wallet-bot/internal/wallet"
)

const updateQueueSize = 16

// Bot обслуживает Telegram-диалоги поверх long polling.
// Апдейты одного чата обрабатываются строго последовательно,
// разные чаты — параллельно.
type Bot struct {
	api         *tgbotapi.BotAPI
	provisioner *wallet.Provisioner
	trade       *trade.Service
	cfg         *config.Config
	logger      *zap.Logger

	mu     sync.Mutex
	queues map[int64]chan tgbotapi.Update
	wg     sync.WaitGroup
}

// New создает бота и проверяет токен обращением к Telegram API.
func New(cfg *config.Config, provisioner *wallet.Provisioner, tradeSvc *trade.Service, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	api.Debug = cfg.DebugLogging

	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))

	return &Bot{
		api:         api,
		provisioner: provisioner,
		trade:       tradeSvc,
		cfg:         cfg,
		logger:      logger.Named("bot"),
	}, nil
}

// API возвращает низкоуровневый клиент Telegram для смежных компонентов.
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}

// Start запускает цикл получения апдейтов и блокируется до отмены контекста.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	b.queues = make(map[int64]chan tgbotapi.Update)
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.drainQueues()
			b.logger.Info("Bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				b.drainQueues()
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch направляет апдейт в очередь его чата, создавая воркер при первом обращении.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	chatID := chatIDOf(update)
	if chatID == 0 {
		return
	}

	b.mu.Lock()
	queue, ok := b.queues[chatID]
	if !ok {
		queue = make(chan tgbotapi.Update, updateQueueSize)
		b.queues[chatID] = queue
		b.wg.Add(1)
		go b.worker(ctx, queue)
	}
	b.mu.Unlock()

	select {
	case queue <- update:
	default:
		// Переполненная очередь чата: пользователь шлёт быстрее, чем бот отвечает
		b.logger.Warn("Dropping update, chat queue is full", zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) worker(ctx context.Context, queue <-chan tgbotapi.Update) {
	defer b.wg.Done()
	for update := range queue {
		b.handleUpdate(ctx, update)
	}
}

func (b *Bot) drainQueues() {
	b.mu.Lock()
	for _, queue := range b.queues {
		close(queue)
	}
	b.queues = make(map[int64]chan tgbotapi.Update)
	b.mu.Unlock()
	b.wg.Wait()
}

func chatIDOf(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID
	default:
		return 0
	}
}

// send отправляет Markdown-сообщение, опционально с inline-клавиатурой.
func (b *Bot) send(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}
