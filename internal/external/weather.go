package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// WeatherConfig names the provider used for the morning greeting's
// weather line. No ecosystem weather client appears anywhere in the
// example pack, so this collaborator stays on net/http (see DESIGN.md).
type WeatherConfig struct {
	APIURL string
	APIKey string
	City   string
}

// HTTPWeather fetches current conditions. Grounded on
// original_source/care/scheduler.py's _fetch_weather: a missing API
// key returns the fixed placeholder "（未配置天气 API）", and any
// transport/parse failure returns "" rather than erroring.
type HTTPWeather struct {
	cfg    WeatherConfig
	client *http.Client
	logger *zap.Logger
}

func NewHTTPWeather(cfg WeatherConfig, logger *zap.Logger) *HTTPWeather {
	return &HTTPWeather{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

type weatherResponse struct {
	Results []struct {
		Now struct {
			Text        string `json:"text"`
			Temperature string `json:"temperature"`
		} `json:"now"`
	} `json:"results"`
}

func (w *HTTPWeather) Now(ctx context.Context) string {
	if w.cfg.APIKey == "" {
		return "（未配置天气 API）"
	}

	u, err := url.Parse(w.cfg.APIURL)
	if err != nil {
		w.logger.Warn("weather API URL invalid", zap.Error(err))
		return ""
	}
	q := u.Query()
	q.Set("key", w.cfg.APIKey)
	q.Set("location", w.cfg.City)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		w.logger.Warn("weather request build failed", zap.Error(err))
		return ""
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("weather API failed", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.logger.Warn("weather API failed", zap.Int("status", resp.StatusCode))
		return ""
	}

	var data weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || len(data.Results) == 0 {
		w.logger.Warn("weather API failed", zap.Error(err))
		return ""
	}

	now := data.Results[0].Now
	return fmt.Sprintf("%s，%s°C", now.Text, now.Temperature)
}
