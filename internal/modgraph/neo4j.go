package modgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"hfbpo/pkg/logger"
)

// Neo4jSource loads modifier graphs from Neo4j and pushes snapshots into it.
// Places connect to verbs via USES_VERB and to scenarios via SETS_SCENE;
// co-occurrence weights live on the relationships.
type Neo4jSource struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jSource creates a graph source backed by the given driver.
func NewNeo4jSource(driver neo4j.DriverWithContext) *Neo4jSource {
	return &Neo4jSource{
		driver: driver,
		logger: logger.Get(),
	}
}

// Load reads the whole graph and validates it.
func (s *Neo4jSource) Load(ctx context.Context) (*Graph, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	version, err := s.loadVersion(ctx, session)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*Place)

	result, err := session.Run(ctx, `
		MATCH (p:Place)
		RETURN p.name AS name, p.embedding AS embedding
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query places: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		name, _ := record.Get("name")
		nameStr, ok := name.(string)
		if !ok || nameStr == "" {
			continue
		}
		byName[nameStr] = &Place{
			Name:      nameStr,
			Embedding: toFloat32Slice(record, "embedding"),
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read places: %w", err)
	}

	if err := s.loadEdges(ctx, session, "USES_VERB", "Verb", byName, func(p *Place, e Edge) {
		p.Verbs = append(p.Verbs, e)
	}); err != nil {
		return nil, err
	}
	if err := s.loadEdges(ctx, session, "SETS_SCENE", "Scenario", byName, func(p *Place, e Edge) {
		p.Scenarios = append(p.Scenarios, e)
	}); err != nil {
		return nil, err
	}

	places := make([]*Place, 0, len(byName))
	for _, p := range byName {
		places = append(places, p)
	}

	graph, err := NewGraph(version, places)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loaded modifier graph from Neo4j",
		zap.String("version", version),
		zap.Int("places", graph.Stats().Places),
		zap.Int("verbs", graph.Stats().Verbs),
		zap.Int("scenarios", graph.Stats().Scenarios),
	)
	return graph, nil
}

func (s *Neo4jSource) loadVersion(ctx context.Context, session neo4j.SessionWithContext) (string, error) {
	result, err := session.Run(ctx, `
		MATCH (m:GraphMeta {id: 'modifier_graph'})
		RETURN m.version AS version
		LIMIT 1
	`, nil)
	if err != nil {
		return "", fmt.Errorf("failed to query graph metadata: %w", err)
	}
	if result.Next(ctx) {
		if v, ok := result.Record().Get("version"); ok {
			if str, ok := v.(string); ok {
				return str, nil
			}
		}
	}
	if err := result.Err(); err != nil {
		return "", fmt.Errorf("failed to read graph metadata: %w", err)
	}
	return "", nil
}

func (s *Neo4jSource) loadEdges(
	ctx context.Context,
	session neo4j.SessionWithContext,
	relType, wordLabel string,
	byName map[string]*Place,
	attach func(*Place, Edge),
) error {
	query := fmt.Sprintf(`
		MATCH (p:Place)-[r:%s]->(w:%s)
		RETURN p.name AS place, w.name AS word, r.weight AS weight
	`, relType, wordLabel)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("failed to query %s edges: %w", relType, err)
	}
	for result.Next(ctx) {
		record := result.Record()
		placeName := recordString(record, "place")
		word := recordString(record, "word")
		weight := recordInt(record, "weight")
		p, ok := byName[placeName]
		if !ok || word == "" {
			continue
		}
		attach(p, Edge{Word: word, Weight: weight})
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to read %s edges: %w", relType, err)
	}
	return nil
}

// Push uploads a snapshot into Neo4j. All statements use MERGE so repeated
// pushes converge instead of duplicating nodes.
func (s *Neo4jSource) Push(ctx context.Context, snapshot *Snapshot) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	statements := []struct {
		query  string
		params map[string]interface{}
	}{
		{
			query: `
				UNWIND $places AS row
				MERGE (p:Place {name: row.name})
				SET p.embedding = row.embedding
			`,
			params: map[string]interface{}{"places": wordParams(snapshot.Places, true)},
		},
		{
			query: `
				UNWIND $words AS row
				MERGE (v:Verb {name: row.name})
			`,
			params: map[string]interface{}{"words": wordParams(snapshot.Verbs, false)},
		},
		{
			query: `
				UNWIND $words AS row
				MERGE (s:Scenario {name: row.name})
			`,
			params: map[string]interface{}{"words": wordParams(snapshot.Scenarios, false)},
		},
		{
			query: `
				UNWIND $edges AS row
				MATCH (p:Place {name: row.place})
				MATCH (v:Verb {name: row.word})
				MERGE (p)-[r:USES_VERB]->(v)
				SET r.weight = row.weight
			`,
			params: map[string]interface{}{"edges": edgeParams(snapshot.VerbEdges)},
		},
		{
			query: `
				UNWIND $edges AS row
				MATCH (p:Place {name: row.place})
				MATCH (s:Scenario {name: row.word})
				MERGE (p)-[r:SETS_SCENE]->(s)
				SET r.weight = row.weight
			`,
			params: map[string]interface{}{"edges": edgeParams(snapshot.ScenarioEdges)},
		},
		{
			query: `
				MERGE (m:GraphMeta {id: 'modifier_graph'})
				SET m.version = $version,
				    m.built_at = $builtAt,
				    m.embedding_model = $model
			`,
			params: map[string]interface{}{
				"version": snapshot.Version,
				"builtAt": snapshot.BuiltAt.Format("2006-01-02T15:04:05Z07:00"),
				"model":   snapshot.EmbeddingModel,
			},
		},
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt.query, stmt.params); err != nil {
			return fmt.Errorf("failed to push graph: %w", err)
		}
	}

	s.logger.Info("Pushed modifier graph to Neo4j",
		zap.String("version", snapshot.Version),
		zap.Int("places", len(snapshot.Places)),
		zap.Int("verb_edges", len(snapshot.VerbEdges)),
		zap.Int("scenario_edges", len(snapshot.ScenarioEdges)),
	)
	return nil
}

// Helper functions

func wordParams(words []SnapshotWord, withEmbedding bool) []map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(words))
	for _, w := range words {
		row := map[string]interface{}{"name": w.Name}
		if withEmbedding {
			emb := make([]float64, len(w.Embedding))
			for i, v := range w.Embedding {
				emb[i] = float64(v)
			}
			row["embedding"] = emb
		}
		params = append(params, row)
	}
	return params
}

func edgeParams(edges []SnapshotEdge) []map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(edges))
	for _, e := range edges {
		params = append(params, map[string]interface{}{
			"place":  e.Place,
			"word":   e.Word,
			"weight": e.Weight,
		})
	}
	return params
}

func recordString(record *neo4j.Record, key string) string {
	if val, ok := record.Get(key); ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func recordInt(record *neo4j.Record, key string) int {
	if val, ok := record.Get(key); ok {
		switch v := val.(type) {
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

func toFloat32Slice(record *neo4j.Record, key string) []float32 {
	val, ok := record.Get(key)
	if !ok {
		return nil
	}
	list, ok := val.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, item := range list {
		if f, ok := item.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}
