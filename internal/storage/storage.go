// =================================
// File: internal/storage/storage.go
// =================================
package storage

import (
	"context"
	"errors"

	"github.com/pumpscience/solana-wallet-bot/internal/storage/models"
)

// ErrNotFound возвращается, когда запрошенная запись отсутствует.
var ErrNotFound = errors.New("storage: not found")

// Storage определяет интерфейс хранилища данных дашборда:
// зеркало кошельков, шаблоны карточек и журнал публикаций.
// Чтение накопленных данных остаётся за самим дашбордом,
// бот только пишет.
type Storage interface {
	RunMigrations() error

	RecordWallet(ctx context.Context, telegramUserID int64, publicKey string) error

	SaveTemplate(ctx context.Context, template *models.Template) error
	ActiveTemplate(ctx context.Context) (*models.Template, error)

	SavePost(ctx context.Context, post *models.Post) error

	Close() error
}
