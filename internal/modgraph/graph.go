// Package modgraph holds the modifier graph: place nodes with embeddings,
// connected to the camera verbs and scenarios they co-occur with in the
// annotation corpus. The graph is built offline and immutable while serving.
package modgraph

import (
	"sort"

	"hfbpo/pkg/errors"
	"hfbpo/pkg/vector"
)

// Edge connects a place to a verb or scenario with a co-occurrence weight.
type Edge struct {
	Word   string
	Weight int
}

// Place is a graph node with its embedding and neighboring modifiers.
type Place struct {
	Name      string
	Embedding []float32
	Verbs     []Edge
	Scenarios []Edge
}

// PlaceMatch pairs a place with its similarity to a query embedding.
type PlaceMatch struct {
	Place      *Place
	Similarity float64
}

// Stats summarizes graph size.
type Stats struct {
	Places    int `json:"places"`
	Verbs     int `json:"verbs"`
	Scenarios int `json:"scenarios"`
}

// Graph is an immutable modifier graph. Mutation happens by building a new
// graph and swapping the pointer, so reads need no locking.
type Graph struct {
	version string
	places  []*Place
	byName  map[string]*Place
	stats   Stats
}

// NewGraph validates the places and assembles a graph. Every place must carry
// a non-zero embedding and at least one verb and one scenario edge; anything
// less is corrupt upstream data and rejected outright.
func NewGraph(version string, places []*Place) (*Graph, error) {
	if len(places) == 0 {
		return nil, errors.ErrGraphEmpty
	}

	verbs := make(map[string]struct{})
	scenarios := make(map[string]struct{})

	for _, p := range places {
		if p.Name == "" {
			return nil, errors.NewDataIntegrity("place", "empty name")
		}
		if len(p.Embedding) == 0 || vector.Norm(p.Embedding) == 0 {
			return nil, errors.NewDataIntegrity(p.Name, "missing embedding")
		}
		if len(p.Verbs) == 0 {
			return nil, errors.NewDataIntegrity(p.Name, "no verb edges")
		}
		if len(p.Scenarios) == 0 {
			return nil, errors.NewDataIntegrity(p.Name, "no scenario edges")
		}
		for _, e := range p.Verbs {
			if e.Word == "" || e.Weight < 1 {
				return nil, errors.NewDataIntegrity(p.Name, "invalid verb edge")
			}
			verbs[e.Word] = struct{}{}
		}
		for _, e := range p.Scenarios {
			if e.Word == "" || e.Weight < 1 {
				return nil, errors.NewDataIntegrity(p.Name, "invalid scenario edge")
			}
			scenarios[e.Word] = struct{}{}
		}
	}

	sorted := make([]*Place, len(places))
	copy(sorted, places)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	byName := make(map[string]*Place, len(sorted))
	for _, p := range sorted {
		if _, dup := byName[p.Name]; dup {
			return nil, errors.NewDataIntegrity(p.Name, "duplicate place")
		}
		byName[p.Name] = p
		sortEdges(p.Verbs)
		sortEdges(p.Scenarios)
	}

	return &Graph{
		version: version,
		places:  sorted,
		byName:  byName,
		stats: Stats{
			Places:    len(sorted),
			Verbs:     len(verbs),
			Scenarios: len(scenarios),
		},
	}, nil
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		return edges[i].Word < edges[j].Word
	})
}

// Version returns the snapshot version the graph was loaded from.
func (g *Graph) Version() string {
	return g.version
}

// Stats returns distinct node counts.
func (g *Graph) Stats() Stats {
	return g.stats
}

// Place looks up a place by name.
func (g *Graph) Place(name string) (*Place, bool) {
	p, ok := g.byName[name]
	return p, ok
}

// NearestPlaces returns up to k places ordered by cosine similarity to the
// query embedding, descending. Equal similarities order by name so results
// stay stable across calls.
func (g *Graph) NearestPlaces(embedding []float32, k int) []PlaceMatch {
	if k <= 0 {
		return nil
	}

	matches := make([]PlaceMatch, 0, len(g.places))
	for _, p := range g.places {
		matches = append(matches, PlaceMatch{
			Place:      p,
			Similarity: vector.CosineSimilarity(embedding, p.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Place.Name < matches[j].Place.Name
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k]
}
