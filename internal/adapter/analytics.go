package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"hfbpo/internal/reward"
	"hfbpo/pkg/errors"
	"hfbpo/pkg/logger"
)

// AnalyticsClient fetches per-video engagement metrics from the analytics
// backend.
type AnalyticsClient struct {
	baseURL    string
	channel    string
	httpClient *http.Client
	logger     *zap.Logger
}

// videoAnalyticsResponse mirrors the backend payload. Older deployments send
// avg_view_percentage instead of avgViewPercentage.
type videoAnalyticsResponse struct {
	Views                  int64   `json:"views"`
	Impressions            int64   `json:"impressions"`
	Likes                  int64   `json:"likes"`
	Comments               int64   `json:"comments"`
	Shares                 int64   `json:"shares"`
	AvgViewPercentage      float64 `json:"avgViewPercentage"`
	AvgViewPercentageSnake float64 `json:"avg_view_percentage"`
	SubscribersGained      int64   `json:"subscribersGained"`
	SubscribersLost        int64   `json:"subscribersLost"`
	SentimentMean          float64 `json:"sentimentMean"`
}

// NewAnalyticsClient creates a client for the given analytics backend and
// channel name.
func NewAnalyticsClient(baseURL, channel string) *AnalyticsClient {
	return &AnalyticsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		channel: channel,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.Get(),
	}
}

// FetchVideoMetrics returns the engagement metrics for one video. Missing
// fields default to zero; CTR is derived from impressions when present.
func (c *AnalyticsClient) FetchVideoMetrics(ctx context.Context, videoID string) (reward.Metrics, error) {
	url := fmt.Sprintf("%s/api/analytics/video/%s/full", c.baseURL, videoID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return reward.Metrics{}, fmt.Errorf("failed to create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("channelName", c.channel)
	req.URL.RawQuery = q.Encode()

	c.logger.Debug("Fetching video analytics",
		zap.String("video_id", videoID),
		zap.String("channel", c.channel),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return reward.Metrics{}, errors.NewExternalService("analytics", 1, true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return reward.Metrics{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Analytics API error",
			zap.Int("status_code", resp.StatusCode),
			zap.String("video_id", videoID),
			zap.String("response_body", string(body)),
		)
		return reward.Metrics{}, errors.NewExternalService("analytics", 1, resp.StatusCode >= 500,
			fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)))
	}

	var raw videoAnalyticsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return reward.Metrics{}, fmt.Errorf("failed to decode response: %w", err)
	}

	avgWatch := raw.AvgViewPercentage
	if avgWatch == 0 {
		avgWatch = raw.AvgViewPercentageSnake
	}

	metrics := reward.Metrics{
		Views:                  raw.Views,
		Likes:                  raw.Likes,
		Comments:               raw.Comments,
		Shares:                 raw.Shares,
		AverageWatchPercentage: avgWatch,
		SubscribersGained:      raw.SubscribersGained,
		SentimentMean:          raw.SentimentMean,
	}
	if raw.Impressions > 0 {
		metrics.CTR = float64(raw.Views) / float64(raw.Impressions)
	}
	return metrics, nil
}
