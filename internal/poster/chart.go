// ==============================
// File: internal/poster/chart.go
// ==============================
package poster

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
)

// ChartRenderer рисует карточку локально, без внешнего render-сервиса.
// Используется, когда render_service_url не задан.
type ChartRenderer struct{}

// NewChartRenderer создает локальный рендерер карточек.
func NewChartRenderer() *ChartRenderer {
	return &ChartRenderer{}
}

const trendPoints = 24

// Render строит часовой тренд цены из текущей цены и суточного изменения.
func (r *ChartRenderer) Render(_ context.Context, data *CardData) ([]byte, error) {
	token := data.Token
	if token == nil {
		return nil, fmt.Errorf("card data has no token")
	}

	xValues := make([]float64, trendPoints)
	yValues := make([]float64, trendPoints)

	// Восстанавливаем линейный путь от цены сутки назад к текущей
	startPrice := token.PriceUSD
	if token.Change24h != 0 {
		startPrice = token.PriceUSD / (1 + token.Change24h/100)
	}
	for i := 0; i < trendPoints; i++ {
		xValues[i] = float64(i)
		yValues[i] = startPrice + (token.PriceUSD-startPrice)*float64(i)/float64(trendPoints-1)
	}

	strokeColor := chart.ColorGreen
	if token.Change24h < 0 {
		strokeColor = chart.ColorRed
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s  $%.6f  (%+.2f%% 24h)", token.Symbol, token.PriceUSD, token.Change24h),
		Width:  1200,
		Height: 600,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("-%.0fh", float64(trendPoints-1)-v.(float64))
			},
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("$%.6f", v.(float64))
			},
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    token.Symbol,
				XValues: xValues,
				YValues: yValues,
				Style: chart.Style{
					StrokeColor: strokeColor,
					StrokeWidth: 3,
				},
			},
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render market card: %w", err)
	}
	return buffer.Bytes(), nil
}
