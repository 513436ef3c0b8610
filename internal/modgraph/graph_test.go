package modgraph

import (
	"testing"

	"hfbpo/pkg/errors"
)

func testPlaces() []*Place {
	return []*Place{
		{
			Name:      "beach",
			Embedding: []float32{1, 0},
			Verbs:     []Edge{{Word: "pan", Weight: 3}, {Word: "dolly in", Weight: 1}},
			Scenarios: []Edge{{Word: "sunny", Weight: 2}},
		},
		{
			Name:      "castle",
			Embedding: []float32{0, 1},
			Verbs:     []Edge{{Word: "crane up", Weight: 2}},
			Scenarios: []Edge{{Word: "majestic", Weight: 2}, {Word: "sunny", Weight: 1}},
		},
		{
			Name:      "cafe",
			Embedding: []float32{0.6, 0.8},
			Verbs:     []Edge{{Word: "pan", Weight: 1}},
			Scenarios: []Edge{{Word: "cozy", Weight: 4}},
		},
	}
}

func TestNewGraphStats(t *testing.T) {
	g, err := NewGraph("v1", testPlaces())
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}

	stats := g.Stats()
	if stats.Places != 3 {
		t.Errorf("Places = %d, want 3", stats.Places)
	}
	if stats.Verbs != 3 {
		t.Errorf("Verbs = %d, want 3 distinct", stats.Verbs)
	}
	if stats.Scenarios != 3 {
		t.Errorf("Scenarios = %d, want 3 distinct", stats.Scenarios)
	}
	if g.Version() != "v1" {
		t.Errorf("Version = %q, want v1", g.Version())
	}
}

func TestNewGraphValidation(t *testing.T) {
	tests := []struct {
		name   string
		places []*Place
	}{
		{"empty graph", nil},
		{"missing embedding", []*Place{{
			Name:      "beach",
			Verbs:     []Edge{{Word: "pan", Weight: 1}},
			Scenarios: []Edge{{Word: "sunny", Weight: 1}},
		}}},
		{"zero embedding", []*Place{{
			Name:      "beach",
			Embedding: []float32{0, 0},
			Verbs:     []Edge{{Word: "pan", Weight: 1}},
			Scenarios: []Edge{{Word: "sunny", Weight: 1}},
		}}},
		{"no verb edges", []*Place{{
			Name:      "beach",
			Embedding: []float32{1, 0},
			Scenarios: []Edge{{Word: "sunny", Weight: 1}},
		}}},
		{"no scenario edges", []*Place{{
			Name:      "beach",
			Embedding: []float32{1, 0},
			Verbs:     []Edge{{Word: "pan", Weight: 1}},
		}}},
		{"zero weight edge", []*Place{{
			Name:      "beach",
			Embedding: []float32{1, 0},
			Verbs:     []Edge{{Word: "pan", Weight: 0}},
			Scenarios: []Edge{{Word: "sunny", Weight: 1}},
		}}},
		{"duplicate place", []*Place{
			{Name: "beach", Embedding: []float32{1, 0}, Verbs: []Edge{{Word: "pan", Weight: 1}}, Scenarios: []Edge{{Word: "sunny", Weight: 1}}},
			{Name: "beach", Embedding: []float32{0, 1}, Verbs: []Edge{{Word: "pan", Weight: 1}}, Scenarios: []Edge{{Word: "sunny", Weight: 1}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph("v1", tt.places)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.IsErrorType(err, errors.ErrorTypeDataIntegrity) {
				t.Errorf("error type = %v, want data_integrity", err)
			}
		})
	}
}

func TestNearestPlaces(t *testing.T) {
	g, err := NewGraph("v1", testPlaces())
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}

	matches := g.NearestPlaces([]float32{1, 0}, 2)
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Place.Name != "beach" {
		t.Errorf("top match = %q, want beach", matches[0].Place.Name)
	}
	if matches[1].Place.Name != "cafe" {
		t.Errorf("second match = %q, want cafe", matches[1].Place.Name)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("matches not ordered by similarity")
	}

	// k beyond the graph size returns everything
	all := g.NearestPlaces([]float32{1, 0}, 10)
	if len(all) != 3 {
		t.Errorf("got %d matches, want 3", len(all))
	}

	if got := g.NearestPlaces([]float32{1, 0}, 0); got != nil {
		t.Errorf("k=0 should return nil, got %v", got)
	}
}

func TestNearestPlacesTieBreaksByName(t *testing.T) {
	places := []*Place{
		{Name: "zoo", Embedding: []float32{1, 0}, Verbs: []Edge{{Word: "pan", Weight: 1}}, Scenarios: []Edge{{Word: "busy", Weight: 1}}},
		{Name: "aquarium", Embedding: []float32{1, 0}, Verbs: []Edge{{Word: "pan", Weight: 1}}, Scenarios: []Edge{{Word: "calm", Weight: 1}}},
	}
	g, err := NewGraph("v1", places)
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}

	matches := g.NearestPlaces([]float32{1, 0}, 2)
	if matches[0].Place.Name != "aquarium" || matches[1].Place.Name != "zoo" {
		t.Errorf("tie not broken by name: %q, %q", matches[0].Place.Name, matches[1].Place.Name)
	}
}

func TestEdgesSortedByWeight(t *testing.T) {
	g, err := NewGraph("v1", testPlaces())
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}

	beach, ok := g.Place("beach")
	if !ok {
		t.Fatal("beach not found")
	}
	if beach.Verbs[0].Word != "pan" || beach.Verbs[1].Word != "dolly in" {
		t.Errorf("verb edges not sorted by weight: %v", beach.Verbs)
	}
}
