package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Modifier graph
	GraphSource       string // "file" or "neo4j"
	GraphSnapshotPath string

	// Neo4j (graph source and/or arm store)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Arm registry
	ArmStore     string // "memory", "badger" or "neo4j"
	ArmStatePath string // optional JSON mirror for the memory store
	BadgerDir    string

	// OpenAI
	OpenAIAPIKey   string
	OpenAIBaseURL  string // optional, for proxies
	EmbeddingModel string
	PromptModel    string

	// Generation
	FixedTopic string // when set, candidates are pinned at startup

	// Retrieval
	TopPlaces       int
	MaxCandidates   int
	SimilarityFloor float64

	// Reward signals
	CTRWeight        float64
	WatchWeight      float64
	EngagementWeight float64
	GrowthWeight     float64
	SentimentWeight  float64 // 0 disables the sentiment signal
	CTRTarget        float64
	EngagementTarget float64
	GrowthTarget     float64

	// Feedback loop
	AnalyticsBaseURL string
	AnalyticsChannel string
	LedgerPath       string
	PendingMinAge    time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		GraphSource:       getEnv("GRAPH_SOURCE", "file"),
		GraphSnapshotPath: getEnv("GRAPH_SNAPSHOT_PATH", "data/modifier_graph.json"),
		Neo4jURI:          getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:         getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:     getEnv("NEO4J_PASSWORD", "password"),
		ArmStore:          getEnv("ARM_STORE", "memory"),
		ArmStatePath:      getEnv("ARM_STATE_PATH", ""),
		BadgerDir:         getEnv("BADGER_DIR", "data/arms"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		PromptModel:       getEnv("PROMPT_MODEL", "gpt-4o-mini"),
		FixedTopic:        getEnv("FIXED_TOPIC", ""),
		TopPlaces:         getEnvInt("RETRIEVAL_TOP_PLACES", 10),
		MaxCandidates:     getEnvInt("RETRIEVAL_MAX_CANDIDATES", 75),
		SimilarityFloor:   getEnvFloat("RETRIEVAL_SIMILARITY_FLOOR", 0.0),
		CTRWeight:         getEnvFloat("REWARD_W_CTR", 0.20),
		WatchWeight:       getEnvFloat("REWARD_W_WATCH", 0.40),
		EngagementWeight:  getEnvFloat("REWARD_W_ENGAGEMENT", 0.20),
		GrowthWeight:      getEnvFloat("REWARD_W_GROWTH", 0.20),
		SentimentWeight:   getEnvFloat("REWARD_W_SENTIMENT", 0),
		CTRTarget:         getEnvFloat("CTR_TARGET", 0.05),
		EngagementTarget:  getEnvFloat("ENGAGEMENT_TARGET", 0.10),
		GrowthTarget:      getEnvFloat("GROWTH_TARGET", 10),
		AnalyticsBaseURL:  getEnv("ANALYTICS_BASE_URL", ""),
		AnalyticsChannel:  getEnv("ANALYTICS_CHANNEL", "ATT"),
		LedgerPath:        getEnv("LEDGER_PATH", "data/video_log.db"),
		PendingMinAge:     getEnvDuration("PENDING_MIN_AGE", 6*time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.GraphSource {
	case "file", "neo4j":
	default:
		return fmt.Errorf("GRAPH_SOURCE must be file or neo4j, got %q", c.GraphSource)
	}
	switch c.ArmStore {
	case "memory", "badger", "neo4j":
	default:
		return fmt.Errorf("ARM_STORE must be memory, badger or neo4j, got %q", c.ArmStore)
	}
	if c.GraphSource == "file" && c.GraphSnapshotPath == "" {
		return fmt.Errorf("GRAPH_SNAPSHOT_PATH is required when GRAPH_SOURCE=file")
	}
	if c.NeedsNeo4j() {
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required")
		}
		if c.Neo4jUser == "" {
			return fmt.Errorf("NEO4J_USER is required")
		}
		if c.Neo4jPassword == "" {
			return fmt.Errorf("NEO4J_PASSWORD is required")
		}
	}
	if c.ArmStore == "badger" && c.BadgerDir == "" {
		return fmt.Errorf("BADGER_DIR is required when ARM_STORE=badger")
	}
	if c.TopPlaces <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_PLACES must be positive")
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("RETRIEVAL_MAX_CANDIDATES must be positive")
	}
	for name, w := range map[string]float64{
		"REWARD_W_CTR":        c.CTRWeight,
		"REWARD_W_WATCH":      c.WatchWeight,
		"REWARD_W_ENGAGEMENT": c.EngagementWeight,
		"REWARD_W_GROWTH":     c.GrowthWeight,
		"REWARD_W_SENTIMENT":  c.SentimentWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	// OpenAI key is optional in development; the generator falls back to templates
	return nil
}

// NeedsNeo4j returns true if any component is configured against Neo4j
func (c *Config) NeedsNeo4j() bool {
	return c.GraphSource == "neo4j" || c.ArmStore == "neo4j"
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
