package server

import (
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hfbpo/internal/bandit"
	"hfbpo/internal/reward"
	"hfbpo/pkg/errors"
)

type generateRequest struct {
	Topic string `json:"topic"`
}

type generateResponse struct {
	Prompt          string  `json:"prompt"`
	CombinationKey  string  `json:"combination_key"`
	Place           string  `json:"place"`
	Verb            string  `json:"verb"`
	Scenario        string  `json:"scenario"`
	EstimatedReward float64 `json:"estimated_reward"`
	CandidatesCount int     `json:"candidates_count"`
}

type rewardRequest struct {
	CombinationKey string  `json:"combination_key" binding:"required"`
	Reward         float64 `json:"reward" binding:"gte=0,lte=1"`
}

type rewardResponse struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	CombinationKey string   `json:"combination_key"`
	NewAlpha       *float64 `json:"new_alpha"`
	NewBeta        *float64 `json:"new_beta"`
}

type batchRewardItem struct {
	CombinationKey string  `json:"combination_key"`
	Reward         float64 `json:"reward"`
}

// Item rewards are deliberately unvalidated at bind time; the applier
// rejects bad records one by one so a single bad item cannot fail the batch.
type batchRewardRequest struct {
	Rewards []batchRewardItem `json:"rewards"`
}

type batchRewardResponse struct {
	Success      bool     `json:"success"`
	UpdatedCount int      `json:"updated_count"`
	Failed       []string `json:"failed"`
}

type calculateRewardRequest struct {
	Views                  int64    `json:"views" binding:"gte=0"`
	Likes                  int64    `json:"likes" binding:"gte=0"`
	Comments               int64    `json:"comments" binding:"gte=0"`
	Shares                 int64    `json:"shares" binding:"gte=0"`
	AverageWatchPercentage float64  `json:"average_watch_percentage" binding:"gte=0"`
	SubscribersGained      int64    `json:"subscribers_gained" binding:"gte=0"`
	CTR                    *float64 `json:"ctr" binding:"omitempty,gte=0"`
}

type calculateRewardResponse struct {
	Reward    float64            `json:"reward"`
	Breakdown map[string]float64 `json:"breakdown"`
}

type logVideoRequest struct {
	VideoID        string `json:"video_id" binding:"required"`
	Prompt         string `json:"prompt" binding:"required"`
	CombinationKey string `json:"combination_key"`
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     serviceName,
		"version":     serviceVersion,
		"description": "Human Feedback Bandit Prompt Optimization",
		"endpoints": gin.H{
			"POST /generate":         "generate a prompt for a topic",
			"GET /generate":          "generate a prompt for a topic (query param)",
			"POST /reward":           "apply one reward update",
			"POST /batch-reward":     "apply reward updates in bulk",
			"POST /calculate-reward": "convert engagement metrics to a reward",
			"GET /stats":             "top combinations and learning state",
			"GET /arms":              "all learned combination keys",
			"POST /videos":           "log a published video for the feedback loop",
			"POST /update-policy":    "run the analytics feedback loop",
			"GET /health":            "liveness probe",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.registry.Count(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to count arms", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"arms":         count,
		"graph_places": s.graphStats.Places,
	})
}

func (s *Server) handleGenerateGet(c *gin.Context) {
	s.generate(c, c.Query("topic"))
}

func (s *Server) handleGeneratePost(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.generate(c, req.Topic)
}

func (s *Server) generate(c *gin.Context, topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" && s.generator.FixedTopic() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	result, err := s.generator.Generate(c.Request.Context(), topic)
	if err != nil {
		if errors.IsErrorType(err, errors.ErrorTypeRetrieval) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("Failed to generate prompt", zap.String("topic", topic), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate prompt"})
		return
	}

	c.JSON(http.StatusOK, generateResponse{
		Prompt:          result.Prompt,
		CombinationKey:  result.CombinationKey,
		Place:           result.Place,
		Verb:            result.Verb,
		Scenario:        result.Scenario,
		EstimatedReward: result.EstimatedReward,
		CandidatesCount: result.CandidatesCount,
	})
}

func (s *Server) handleReward(c *gin.Context) {
	var req rewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	arm, err := s.applier.Apply(c.Request.Context(), bandit.RewardRecord{
		CombinationKey: req.CombinationKey,
		Reward:         req.Reward,
	})
	if err != nil {
		status := http.StatusBadRequest
		if !errors.IsErrorType(err, errors.ErrorTypeReward) && !errors.IsErrorType(err, errors.ErrorTypeArm) {
			status = http.StatusInternalServerError
			s.logger.Error("Failed to apply reward", zap.String("combination_key", req.CombinationKey), zap.Error(err))
		}
		c.JSON(status, rewardResponse{
			Success:        false,
			Message:        err.Error(),
			CombinationKey: req.CombinationKey,
		})
		return
	}

	c.JSON(http.StatusOK, rewardResponse{
		Success:        true,
		Message:        fmt.Sprintf("reward %g applied", req.Reward),
		CombinationKey: req.CombinationKey,
		NewAlpha:       &arm.Alpha,
		NewBeta:        &arm.Beta,
	})
}

func (s *Server) handleBatchReward(c *gin.Context) {
	var req batchRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records := make([]bandit.RewardRecord, len(req.Rewards))
	for i, item := range req.Rewards {
		records[i] = bandit.RewardRecord{CombinationKey: item.CombinationKey, Reward: item.Reward}
	}

	result := s.applier.ApplyBatch(c.Request.Context(), records)
	failed := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		failed = append(failed, fmt.Sprintf("%s: %s", f.CombinationKey, f.Reason))
	}

	c.JSON(http.StatusOK, batchRewardResponse{
		Success:      len(failed) == 0,
		UpdatedCount: result.UpdatedCount,
		Failed:       failed,
	})
}

func (s *Server) handleCalculateReward(c *gin.Context) {
	var req calculateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m := reward.Metrics{
		Views:                  req.Views,
		Likes:                  req.Likes,
		Comments:               req.Comments,
		Shares:                 req.Shares,
		AverageWatchPercentage: req.AverageWatchPercentage,
		SubscribersGained:      req.SubscribersGained,
	}
	if req.CTR != nil {
		m.CTR = *req.CTR
	} else {
		// Without click data the engagement rate stands in for CTR
		m.CTR = m.EngagementRate()
	}

	total, breakdown := s.calculator.Calculate(m)
	rounded := make(map[string]float64, len(breakdown))
	for name, value := range breakdown {
		rounded[name] = round4(value)
	}

	c.JSON(http.StatusOK, calculateRewardResponse{
		Reward:    round4(total),
		Breakdown: rounded,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := s.registry.Count(ctx)
	if err != nil {
		s.logger.Error("Failed to count arms", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read registry"})
		return
	}
	top, err := s.registry.Snapshot(ctx, 10)
	if err != nil {
		s.logger.Error("Failed to snapshot arms", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read registry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_learned_combinations": count,
		"retriever_stats":            s.graphStats,
		"top_10":                     top,
	})
}

func (s *Server) handleArms(c *gin.Context) {
	keys, err := s.registry.Keys(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list arms", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read registry"})
		return
	}

	resp := gin.H{
		"total_arms":   len(keys),
		"combinations": keys,
	}
	if topic := s.generator.FixedTopic(); topic != "" {
		resp["fixed_topic"] = topic
		resp["pinned_candidates"] = len(s.generator.PinnedKeys())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLogVideo(c *gin.Context) {
	if s.videoLog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "video log not configured"})
		return
	}

	var req logVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := s.videoLog.Log(c.Request.Context(), req.VideoID, req.Prompt, req.CombinationKey)
	if err != nil {
		s.logger.Error("Failed to log video", zap.String("video_id", req.VideoID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log video"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": record.ID})
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
