package modgraph

import (
	"path/filepath"
	"testing"
	"time"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Version:        "snap-1",
		BuiltAt:        time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		EmbeddingModel: "text-embedding-3-small",
		Dimensions:     2,
		Places: []SnapshotWord{
			{Name: "beach", Embedding: []float32{1, 0}},
			{Name: "castle", Embedding: []float32{0, 1}},
		},
		Verbs: []SnapshotWord{
			{Name: "crane up", Embedding: []float32{0.5, 0.5}},
			{Name: "pan", Embedding: []float32{0.1, 0.9}},
		},
		Scenarios: []SnapshotWord{
			{Name: "majestic", Embedding: []float32{0.2, 0.8}},
			{Name: "sunny", Embedding: []float32{0.9, 0.1}},
		},
		VerbEdges: []SnapshotEdge{
			{Place: "beach", Word: "pan", Weight: 3},
			{Place: "castle", Word: "crane up", Weight: 2},
		},
		ScenarioEdges: []SnapshotEdge{
			{Place: "beach", Word: "sunny", Weight: 2},
			{Place: "castle", Word: "majestic", Weight: 1},
		},
	}
}

func TestSnapshotGraph(t *testing.T) {
	g, err := testSnapshot().Graph()
	if err != nil {
		t.Fatalf("Graph() failed: %v", err)
	}

	if g.Version() != "snap-1" {
		t.Errorf("Version = %q, want snap-1", g.Version())
	}

	beach, ok := g.Place("beach")
	if !ok {
		t.Fatal("beach not assembled")
	}
	if len(beach.Verbs) != 1 || beach.Verbs[0].Word != "pan" || beach.Verbs[0].Weight != 3 {
		t.Errorf("beach verbs = %v, want [pan/3]", beach.Verbs)
	}
	if len(beach.Scenarios) != 1 || beach.Scenarios[0].Word != "sunny" {
		t.Errorf("beach scenarios = %v, want [sunny/2]", beach.Scenarios)
	}
}

func TestSnapshotGraphUnknownPlace(t *testing.T) {
	s := testSnapshot()
	s.VerbEdges = append(s.VerbEdges, SnapshotEdge{Place: "volcano", Word: "pan", Weight: 1})
	if _, err := s.Graph(); err == nil {
		t.Fatal("expected error for edge referencing unknown place")
	}
}

func TestSnapshotFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph", "snapshot.json")

	if err := testSnapshot().WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	loaded, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if loaded.Version != "snap-1" {
		t.Errorf("Version = %q, want snap-1", loaded.Version)
	}
	if len(loaded.Places) != 2 || len(loaded.VerbEdges) != 2 {
		t.Errorf("snapshot contents lost: %d places, %d verb edges", len(loaded.Places), len(loaded.VerbEdges))
	}

	g, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if g.Stats().Places != 2 {
		t.Errorf("Places = %d, want 2", g.Stats().Places)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing snapshot")
	}
}
