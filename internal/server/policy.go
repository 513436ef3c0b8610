package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hfbpo/internal/bandit"
	"hfbpo/internal/reward"
)

type policyDetail struct {
	VideoID        string         `json:"video_id"`
	CombinationKey string         `json:"combination_key"`
	Reward         float64        `json:"reward"`
	Metrics        metricsPayload `json:"metrics"`
}

type metricsPayload struct {
	Views                  int64   `json:"views"`
	Likes                  int64   `json:"likes"`
	Comments               int64   `json:"comments"`
	Shares                 int64   `json:"shares"`
	AverageWatchPercentage float64 `json:"average_watch_percentage"`
	SubscribersGained      int64   `json:"subscribers_gained"`
	CTR                    float64 `json:"ctr"`
}

// handleUpdatePolicy runs the feedback loop: for each pending video old
// enough to have stable analytics, fetch metrics, compute the reward, fold
// it into the bandit and mark the video done. Videos without a combination
// key are skipped for good; videos without metrics stay pending for the
// next run.
func (s *Server) handleUpdatePolicy(c *gin.Context) {
	if s.videoLog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "video log not configured"})
		return
	}
	if s.analytics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics client not configured"})
		return
	}

	ctx := c.Request.Context()
	pending, err := s.videoLog.Pending(ctx, s.pendingMinAge)
	if err != nil {
		s.logger.Error("Failed to list pending videos", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pending videos"})
		return
	}

	details := make([]policyDetail, 0, len(pending))
	for _, record := range pending {
		if record.CombinationKey == "" {
			s.logger.Warn("Skipping video without combination key", zap.String("video_id", record.VideoID))
			if err := s.videoLog.MarkSkipped(ctx, record.ID, "no combination key"); err != nil {
				s.logger.Error("Failed to mark video skipped",
					zap.String("video_id", record.VideoID), zap.Error(err))
			}
			continue
		}

		metrics, err := s.analytics.FetchVideoMetrics(ctx, record.VideoID)
		if err != nil {
			s.logger.Warn("Skipping video without metrics",
				zap.String("video_id", record.VideoID), zap.Error(err))
			continue
		}

		value, _ := s.calculator.Calculate(metrics)
		if _, err := s.applier.Apply(ctx, bandit.RewardRecord{
			CombinationKey: record.CombinationKey,
			Reward:         value,
		}); err != nil {
			s.logger.Error("Failed to apply reward",
				zap.String("video_id", record.VideoID),
				zap.String("combination_key", record.CombinationKey),
				zap.Error(err))
			continue
		}
		if err := s.videoLog.MarkDone(ctx, record.ID, value); err != nil {
			// Reward already applied; the row stays pending and the next
			// run applies it again
			s.logger.Error("Failed to mark video done",
				zap.String("video_id", record.VideoID), zap.Error(err))
		}

		details = append(details, policyDetail{
			VideoID:        record.VideoID,
			CombinationKey: record.CombinationKey,
			Reward:         round4(value),
			Metrics:        newMetricsPayload(metrics),
		})
		s.logger.Info("Processed video feedback",
			zap.String("video_id", record.VideoID),
			zap.String("combination_key", record.CombinationKey),
			zap.Float64("reward", value))
	}

	c.JSON(http.StatusOK, gin.H{
		"processed_count": len(details),
		"details":         details,
	})
}

func newMetricsPayload(m reward.Metrics) metricsPayload {
	return metricsPayload{
		Views:                  m.Views,
		Likes:                  m.Likes,
		Comments:               m.Comments,
		Shares:                 m.Shares,
		AverageWatchPercentage: m.AverageWatchPercentage,
		SubscribersGained:      m.SubscribersGained,
		CTR:                    m.CTR,
	}
}
