// =================================
// File: internal/poster/renderer.go
// =================================
package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pumpscience/solana-wallet-bot/internal/market"
)

// CardData — данные карточки, из которых рендерится изображение публикации.
type CardData struct {
	Title       string        `json:"title"`
	Token       *market.Token `json:"token"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// Renderer превращает данные карточки в PNG.
type Renderer interface {
	Render(ctx context.Context, data *CardData) ([]byte, error)
}

// HTTPRenderer делегирует отрисовку внешнему render-сервису.
type HTTPRenderer struct {
	url    string
	client *http.Client
}

// NewHTTPRenderer создаёт рендерер поверх внешнего сервиса.
func NewHTTPRenderer(url string) *HTTPRenderer {
	return &HTTPRenderer{
		url: url,
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, data *CardData) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal card data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("render service returned %d: %s", resp.StatusCode, string(body))
	}

	png, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rendered image: %w", err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("render service returned empty image")
	}
	return png, nil
}
