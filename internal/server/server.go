// Package server exposes the prompt engine over HTTP.
package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hfbpo/internal/bandit"
	"hfbpo/internal/ledger"
	"hfbpo/internal/modgraph"
	"hfbpo/internal/promptgen"
	"hfbpo/internal/reward"
	"hfbpo/pkg/logger"
)

const (
	serviceName    = "HFBPO"
	serviceVersion = "1.1.0"

	defaultPendingMinAge = 6 * time.Hour
)

// Generator produces prompts for topics.
type Generator interface {
	Generate(ctx context.Context, topic string) (promptgen.Result, error)
	FixedTopic() string
	PinnedKeys() []string
}

// AnalyticsSource reports engagement metrics for published videos.
type AnalyticsSource interface {
	FetchVideoMetrics(ctx context.Context, videoID string) (reward.Metrics, error)
}

// VideoLog tracks published videos awaiting feedback.
type VideoLog interface {
	Log(ctx context.Context, videoID, prompt, combinationKey string) (*ledger.VideoRecord, error)
	Pending(ctx context.Context, minAge time.Duration) ([]*ledger.VideoRecord, error)
	MarkDone(ctx context.Context, id string, reward float64) error
	MarkSkipped(ctx context.Context, id, reason string) error
}

// Deps carries the server's collaborators. Analytics and VideoLog are
// optional; the feedback endpoints report 503 while they are absent.
type Deps struct {
	Generator     Generator
	Registry      bandit.Registry
	Applier       *bandit.Applier
	Calculator    *reward.Calculator
	Analytics     AnalyticsSource
	VideoLog      VideoLog
	GraphStats    modgraph.Stats
	PendingMinAge time.Duration
}

// Server handles the HTTP API.
type Server struct {
	generator     Generator
	registry      bandit.Registry
	applier       *bandit.Applier
	calculator    *reward.Calculator
	analytics     AnalyticsSource
	videoLog      VideoLog
	graphStats    modgraph.Stats
	pendingMinAge time.Duration
	logger        *zap.Logger
}

// New creates a server from its dependencies.
func New(deps Deps) *Server {
	minAge := deps.PendingMinAge
	if minAge <= 0 {
		minAge = defaultPendingMinAge
	}
	return &Server{
		generator:     deps.Generator,
		registry:      deps.Registry,
		applier:       deps.Applier,
		calculator:    deps.Calculator,
		analytics:     deps.Analytics,
		videoLog:      deps.VideoLog,
		graphStats:    deps.GraphStats,
		pendingMinAge: minAge,
		logger:        logger.Get(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(s.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/", s.handleIndex)
	router.GET("/health", s.handleHealth)

	router.GET("/generate", s.handleGenerateGet)
	router.POST("/generate", s.handleGeneratePost)

	router.POST("/reward", s.handleReward)
	router.POST("/batch-reward", s.handleBatchReward)
	router.POST("/calculate-reward", s.handleCalculateReward)

	router.GET("/stats", s.handleStats)
	router.GET("/arms", s.handleArms)

	router.POST("/videos", s.handleLogVideo)
	router.POST("/update-policy", s.handleUpdatePolicy)

	return router
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
