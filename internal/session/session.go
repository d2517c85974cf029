// ==================================
// File: internal/session/session.go
// ==================================
package session

import (
	"context"
	"errors"
	"time"
)

// Flow описывает этап диалога торгового сценария.
type Flow string

const (
	FlowIdle                 Flow = "idle"
	FlowAwaitingTokenAddress Flow = "awaiting_token_address"
	FlowAwaitingAmount       Flow = "awaiting_amount"
	FlowAwaitingConfirmation Flow = "awaiting_confirmation"
	FlowExecuting            Flow = "executing"
)

// Action — направление сделки, выбранное пользователем.
type Action string

const (
	ActionNone Action = ""
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ErrNotFound возвращается хранилищем, когда сессия пользователя отсутствует.
var ErrNotFound = errors.New("session: not found")

// Session хранит состояние диалога и кастодиальный ключ одного пользователя.
type Session struct {
	UserID       int64     `json:"user_id"`
	ChatID       int64     `json:"chat_id"`
	WalletPubkey string    `json:"wallet_pubkey"`
	WalletSecret string    `json:"wallet_secret"`
	Flow         Flow      `json:"flow"`
	Action       Action    `json:"action"`
	TokenAddress string    `json:"token_address,omitempty"`
	Amount       float64   `json:"amount,omitempty"`
	QuoteID      string    `json:"quote_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New создаёт сессию в исходном состоянии.
func New(userID, chatID int64) *Session {
	return &Session{
		UserID:    userID,
		ChatID:    chatID,
		Flow:      FlowIdle,
		UpdatedAt: time.Now().UTC(),
	}
}

// BeginAction переводит сессию в начало торгового сценария,
// сбрасывая остатки предыдущего диалога.
func (s *Session) BeginAction(action Action) {
	s.Action = action
	s.Flow = FlowAwaitingTokenAddress
	s.TokenAddress = ""
	s.Amount = 0
	s.QuoteID = ""
	s.UpdatedAt = time.Now().UTC()
}

// Reset возвращает сессию в состояние покоя. Кошелёк сохраняется.
func (s *Session) Reset() {
	s.Flow = FlowIdle
	s.Action = ActionNone
	s.TokenAddress = ""
	s.Amount = 0
	s.QuoteID = ""
	s.UpdatedAt = time.Now().UTC()
}

// HasWallet сообщает, привязан ли к сессии кошелёк.
func (s *Session) HasWallet() bool {
	return s.WalletSecret != ""
}

// Store — подключаемое хранилище сессий.
// Реализации: MemoryStore, FileStore, RedisStore.
type Store interface {
	// Get возвращает сессию пользователя или ErrNotFound.
	Get(ctx context.Context, userID int64) (*Session, error)
	// Put сохраняет сессию (создаёт или перезаписывает).
	Put(ctx context.Context, s *Session) error
	// Delete удаляет сессию пользователя. Отсутствие сессии не является ошибкой.
	Delete(ctx context.Context, userID int64) error
	// All возвращает все известные сессии.
	All(ctx context.Context) ([]*Session, error)
	// Close освобождает ресурсы хранилища.
	Close() error
}
