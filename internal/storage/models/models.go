// =======================================
// File: internal/storage/models/models.go
// =======================================
package models

import "time"

// WalletRecord — публичное зеркало выданного кошелька для дашборда.
// Приватные ключи сюда не пишутся: они живут только в хранилище сессий.
type WalletRecord struct {
	ID             uint      `gorm:"primaryKey"`
	TelegramUserID int64     `gorm:"uniqueIndex;not null"`
	PublicKey      string    `gorm:"size:64;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// Template описывает шаблон карточки для публикаций в канал.
type Template struct {
	ID            uint      `gorm:"primaryKey"`
	Name          string    `gorm:"size:128;not null"`
	TokenAddress  string    `gorm:"size:64"`
	BackgroundURL string    `gorm:"size:512"`
	Active        bool      `gorm:"default:true"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// Post — журнал публикаций в канал.
type Post struct {
	ID         uint      `gorm:"primaryKey"`
	TemplateID uint      `gorm:"index"`
	ChannelID  int64     `gorm:"not null"`
	MessageID  int       `gorm:""`
	Status     string    `gorm:"size:32;not null"`
	Error      string    `gorm:"size:512"`
	PostedAt   time.Time `gorm:"autoCreateTime"`
}

const (
	PostStatusSent   = "sent"
	PostStatusFailed = "failed"
)
