package modgraph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is the on-disk form of a modifier graph, produced by the builder
// and consumed at startup. Verb and scenario embeddings are retained for
// provenance; serving only needs the place embeddings.
type Snapshot struct {
	Version        string         `json:"version"`
	BuiltAt        time.Time      `json:"built_at"`
	EmbeddingModel string         `json:"embedding_model"`
	Dimensions     int            `json:"dimensions"`
	Counts         SnapshotCounts `json:"counts"`
	Places         []SnapshotWord `json:"places"`
	Verbs          []SnapshotWord `json:"verbs"`
	Scenarios      []SnapshotWord `json:"scenarios"`
	VerbEdges      []SnapshotEdge `json:"verb_edges"`
	ScenarioEdges  []SnapshotEdge `json:"scenario_edges"`
}

// SnapshotCounts summarizes snapshot contents in the header.
type SnapshotCounts struct {
	Places        int `json:"places"`
	Verbs         int `json:"verbs"`
	Scenarios     int `json:"scenarios"`
	VerbEdges     int `json:"verb_edges"`
	ScenarioEdges int `json:"scenario_edges"`
}

// SnapshotWord is a named node with an optional embedding.
type SnapshotWord struct {
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// SnapshotEdge is a weighted place-to-word edge.
type SnapshotEdge struct {
	Place  string `json:"place"`
	Word   string `json:"word"`
	Weight int    `json:"weight"`
}

// Graph assembles and validates the runtime graph from the snapshot.
func (s *Snapshot) Graph() (*Graph, error) {
	byName := make(map[string]*Place, len(s.Places))
	places := make([]*Place, 0, len(s.Places))
	for _, w := range s.Places {
		p := &Place{Name: w.Name, Embedding: w.Embedding}
		byName[w.Name] = p
		places = append(places, p)
	}

	for _, e := range s.VerbEdges {
		p, ok := byName[e.Place]
		if !ok {
			return nil, fmt.Errorf("verb edge references unknown place %q", e.Place)
		}
		p.Verbs = append(p.Verbs, Edge{Word: e.Word, Weight: e.Weight})
	}
	for _, e := range s.ScenarioEdges {
		p, ok := byName[e.Place]
		if !ok {
			return nil, fmt.Errorf("scenario edge references unknown place %q", e.Place)
		}
		p.Scenarios = append(p.Scenarios, Edge{Word: e.Word, Weight: e.Weight})
	}

	return NewGraph(s.Version, places)
}

// WriteFile writes the snapshot as indented JSON, creating parent directories.
// The write goes through a temp file and rename so readers never observe a
// partial snapshot.
func (s *Snapshot) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot reads a snapshot file without assembling the graph.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return &s, nil
}

// LoadFile reads a snapshot file and assembles the runtime graph.
func LoadFile(path string) (*Graph, error) {
	s, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return s.Graph()
}
