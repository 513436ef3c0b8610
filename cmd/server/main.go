package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"hfbpo/internal/adapter"
	"hfbpo/internal/bandit"
	"hfbpo/internal/ledger"
	"hfbpo/internal/modgraph"
	"hfbpo/internal/promptgen"
	"hfbpo/internal/retrieval"
	"hfbpo/internal/reward"
	"hfbpo/internal/server"
	"hfbpo/pkg/config"
	"hfbpo/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Neo4j driver, shared by the graph source and the arm registry when
	// either is configured against it
	var driver neo4j.DriverWithContext
	if cfg.NeedsNeo4j() {
		driver, err = neo4j.NewDriverWithContext(
			cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		)
		if err != nil {
			log.Fatal("Failed to create Neo4j driver", zap.Error(err))
		}
		defer driver.Close(ctx)

		if err := driver.VerifyConnectivity(ctx); err != nil {
			log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
		}
	}

	// Load the modifier graph
	var graph *modgraph.Graph
	switch cfg.GraphSource {
	case "neo4j":
		graph, err = modgraph.NewNeo4jSource(driver).Load(ctx)
	default:
		graph, err = modgraph.LoadFile(cfg.GraphSnapshotPath)
	}
	if err != nil {
		log.Fatal("Failed to load modifier graph",
			zap.String("source", cfg.GraphSource), zap.Error(err))
	}
	stats := graph.Stats()
	log.Info("Modifier graph loaded",
		zap.Int("places", stats.Places),
		zap.Int("verbs", stats.Verbs),
		zap.Int("scenarios", stats.Scenarios),
	)

	// Open the arm registry
	var registry bandit.Registry
	switch cfg.ArmStore {
	case "badger":
		registry, err = bandit.NewBadgerStore(bandit.BadgerStoreOptions{Dir: cfg.BadgerDir})
	case "neo4j":
		registry = bandit.NewNeo4jStore(driver)
	default:
		registry, err = bandit.NewMemoryStore(cfg.ArmStatePath)
	}
	if err != nil {
		log.Fatal("Failed to open arm registry",
			zap.String("store", cfg.ArmStore), zap.Error(err))
	}
	defer registry.Close()

	// Collaborator clients
	openaiClient := adapter.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.PromptModel)
	var writer promptgen.PromptWriter
	if cfg.OpenAIAPIKey != "" {
		writer = openaiClient
	} else {
		log.Warn("OPENAI_API_KEY not set; prompts fall back to the template")
	}

	var analytics server.AnalyticsSource
	if cfg.AnalyticsBaseURL != "" {
		analytics = adapter.NewAnalyticsClient(cfg.AnalyticsBaseURL, cfg.AnalyticsChannel)
	}

	// Publication ledger
	videoLog, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		log.Fatal("Failed to open video ledger",
			zap.String("path", cfg.LedgerPath), zap.Error(err))
	}
	defer videoLog.Close()

	// Engine
	retriever := retrieval.NewRetriever(graph, openaiClient, retrieval.Options{
		TopPlaces:       cfg.TopPlaces,
		MaxCandidates:   cfg.MaxCandidates,
		SimilarityFloor: cfg.SimilarityFloor,
	})
	selector := bandit.NewSelector(registry)
	applier := bandit.NewApplier(registry, false)
	calculator := reward.New(reward.Options{
		CTRWeight:        cfg.CTRWeight,
		WatchWeight:      cfg.WatchWeight,
		EngagementWeight: cfg.EngagementWeight,
		GrowthWeight:     cfg.GrowthWeight,
		SentimentWeight:  cfg.SentimentWeight,
		CTRTarget:        cfg.CTRTarget,
		EngagementTarget: cfg.EngagementTarget,
		GrowthTarget:     cfg.GrowthTarget,
	})

	generator := promptgen.New(retriever, selector, writer, promptgen.Options{FixedTopic: cfg.FixedTopic})
	if cfg.FixedTopic != "" {
		if err := generator.Warm(ctx); err != nil {
			log.Fatal("Failed to warm fixed topic",
				zap.String("topic", cfg.FixedTopic), zap.Error(err))
		}
		log.Info("Fixed topic warmed",
			zap.String("topic", cfg.FixedTopic),
			zap.Int("pinned_candidates", len(generator.PinnedKeys())),
		)
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(server.Deps{
		Generator:     generator,
		Registry:      registry,
		Applier:       applier,
		Calculator:    calculator,
		Analytics:     analytics,
		VideoLog:      videoLog,
		GraphStats:    stats,
		PendingMinAge: cfg.PendingMinAge,
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	// Graceful shutdown
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
