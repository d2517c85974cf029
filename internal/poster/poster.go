// ===============================
// File: internal/poster/poster.go
// ===============================
package poster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/pumpscience/solana-wallet-bot/internal/jupiter"
	"github.com/pumpscience/solana-wallet-bot/internal/market"
	"github.com/pumpscience/solana-wallet-bot/internal/storage"
	"github.com/pumpscience/solana-wallet-bot/internal/storage/models"
)

// Publisher доставляет изображение в канал.
type Publisher interface {
	PublishPhoto(channelID int64, caption string, png []byte) (messageID int, err error)
}

// TelegramPublisher публикует изображения через Bot API.
type TelegramPublisher struct {
	api *tgbotapi.BotAPI
}

func NewTelegramPublisher(api *tgbotapi.BotAPI) *TelegramPublisher {
	return &TelegramPublisher{api: api}
}

func (p *TelegramPublisher) PublishPhoto(channelID int64, caption string, png []byte) (int, error) {
	photo := tgbotapi.NewPhoto(channelID, tgbotapi.FileBytes{
		Name:  "card.png",
		Bytes: png,
	})
	photo.Caption = caption
	msg, err := p.api.Send(photo)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// Poster периодически публикует рыночную карточку в канал.
// Это владеемый ресурс: жизненным циклом управляют Start и Stop,
// глобального состояния у постера нет.
type Poster struct {
	publisher Publisher
	renderer  Renderer
	market    market.LookupService
	store     storage.Storage // может быть nil
	channelID int64
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// ErrAlreadyRunning возвращается повторным вызовом Start без Stop.
var ErrAlreadyRunning = errors.New("poster already running")

// New создает постер канала. store опционален: без него публикации не журналируются.
func New(
	publisher Publisher,
	renderer Renderer,
	marketSvc market.LookupService,
	store storage.Storage,
	channelID int64,
	interval time.Duration,
	logger *zap.Logger,
) *Poster {
	return &Poster{
		publisher: publisher,
		renderer:  renderer,
		market:    marketSvc,
		store:     store,
		channelID: channelID,
		interval:  interval,
		logger:    logger.Named("poster"),
	}
}

// Start запускает цикл публикаций. Первая публикация выполняется сразу.
func (p *Poster) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.running = true
	p.mu.Unlock()

	p.logger.Info("Channel poster started",
		zap.Int64("channel_id", p.channelID),
		zap.Duration("interval", p.interval))

	go p.run(ctx)
	return nil
}

// Stop останавливает цикл и дожидается завершения текущей публикации.
func (p *Poster) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Channel poster stopped")
}

func (p *Poster) run(ctx context.Context) {
	defer close(p.done)

	p.postOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Публикации не перекрываются: следующая начинается
			// только после завершения предыдущей
			p.postOnce(ctx)
		}
	}
}

// postOnce готовит и отправляет одну публикацию.
func (p *Poster) postOnce(ctx context.Context) {
	tokenAddress, templateID, title := p.resolveTemplate(ctx)

	token, err := p.market.Lookup(ctx, tokenAddress)
	if err != nil {
		p.recordPost(ctx, templateID, 0, models.PostStatusFailed, fmt.Sprintf("lookup: %v", err))
		p.logger.Warn("Failed to fetch market data for post",
			zap.String("token", tokenAddress),
			zap.Error(err))
		return
	}

	png, err := p.renderer.Render(ctx, &CardData{
		Title:       title,
		Token:       token,
		GeneratedAt: time.Now().UTC(),
	})
	if err != nil {
		p.recordPost(ctx, templateID, 0, models.PostStatusFailed, fmt.Sprintf("render: %v", err))
		p.logger.Error("Failed to render channel card", zap.Error(err))
		return
	}

	caption := fmt.Sprintf("%s — $%.6f (%+.2f%% 24h)", token.Symbol, token.PriceUSD, token.Change24h)
	messageID, err := p.publisher.PublishPhoto(p.channelID, caption, png)
	if err != nil {
		p.recordPost(ctx, templateID, 0, models.PostStatusFailed, fmt.Sprintf("publish: %v", err))
		p.logger.Error("Failed to publish channel card", zap.Error(err))
		return
	}

	p.recordPost(ctx, templateID, messageID, models.PostStatusSent, "")
	p.logger.Debug("Published channel card",
		zap.Int("message_id", messageID),
		zap.String("token", token.Symbol))
}

// resolveTemplate выбирает активный шаблон, либо публикует карточку SOL по умолчанию.
func (p *Poster) resolveTemplate(ctx context.Context) (tokenAddress string, templateID uint, title string) {
	tokenAddress = jupiter.WSOLMint
	title = "Market Update"

	if p.store == nil {
		return tokenAddress, 0, title
	}
	template, err := p.store.ActiveTemplate(ctx)
	if err != nil {
		p.logger.Debug("No active template, using defaults", zap.Error(err))
		return tokenAddress, 0, title
	}
	if template.TokenAddress != "" {
		tokenAddress = template.TokenAddress
	}
	if template.Name != "" {
		title = template.Name
	}
	return tokenAddress, template.ID, title
}

func (p *Poster) recordPost(ctx context.Context, templateID uint, messageID int, status, errMsg string) {
	if p.store == nil {
		return
	}
	post := &models.Post{
		TemplateID: templateID,
		ChannelID:  p.channelID,
		MessageID:  messageID,
		Status:     status,
		Error:      errMsg,
	}
	if err := p.store.SavePost(ctx, post); err != nil {
		p.logger.Warn("Failed to record post", zap.Error(err))
	}
}
