// ==================================
// File: internal/wallet/provisioner.go
// ==================================
package wallet

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pumpscience/solana-wallet-bot/internal/session"
)

// Mirror получает копию публичных данных кошелька для внешнего учёта
// (например, дашборда). Приватный ключ туда не попадает.
type Mirror interface {
	RecordWallet(ctx context.Context, userID int64, pubkey string) error
}

// Provisioner выдаёт каждому пользователю ровно один кастодиальный кошелёк.
type Provisioner struct {
	store  session.Store
	mirror Mirror // может быть nil
	logger *zap.Logger
}

// NewProvisioner создаёт провижинер поверх хранилища сессий.
// mirror опционален и может быть nil.
func NewProvisioner(store session.Store, mirror Mirror, logger *zap.Logger) *Provisioner {
	return &Provisioner{store: store, mirror: mirror, logger: logger}
}

// GetOrCreate возвращает сессию пользователя с привязанным кошельком.
// Повторные вызовы идемпотентны: существующий кошелёк никогда не заменяется.
func (p *Provisioner) GetOrCreate(ctx context.Context, userID, chatID int64) (*session.Session, *Wallet, error) {
	s, err := p.store.Get(ctx, userID)
	switch {
	case err == nil:
		if s.HasWallet() {
			w, err := FromSecret(s.WalletSecret)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to restore wallet for user %d: %w", userID, err)
			}
			s.ChatID = chatID
			return s, w, nil
		}
	case errors.Is(err, session.ErrNotFound):
		s = session.New(userID, chatID)
	default:
		return nil, nil, fmt.Errorf("failed to load session for user %d: %w", userID, err)
	}

	w, err := Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate wallet for user %d: %w", userID, err)
	}
	s.ChatID = chatID
	s.WalletPubkey = w.PublicKey.String()
	s.WalletSecret = w.Secret()

	if err := p.store.Put(ctx, s); err != nil {
		return nil, nil, fmt.Errorf("failed to persist wallet for user %d: %w", userID, err)
	}
	p.logger.Info("Created wallet for user",
		zap.Int64("user_id", userID),
		zap.String("pubkey", s.WalletPubkey))

	if p.mirror != nil {
		if err := p.mirror.RecordWallet(ctx, userID, s.WalletPubkey); err != nil {
			// Зеркалирование не критично для работы бота
			p.logger.Warn("Failed to mirror wallet record",
				zap.Int64("user_id", userID),
				zap.Error(err))
		}
	}
	return s, w, nil
}

// Restore возвращает кошелёк из уже загруженной сессии.
func Restore(s *session.Session) (*Wallet, error) {
	if !s.HasWallet() {
		return nil, fmt.Errorf("session for user %d has no wallet", s.UserID)
	}
	return FromSecret(s.WalletSecret)
}
