package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"hfbpo/internal/bandit"
	"hfbpo/internal/modgraph"
	"hfbpo/pkg/errors"
	"hfbpo/pkg/logger"
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Candidate is one (place, verb, scenario) combination proposed for a topic.
type Candidate struct {
	Place           string
	Verb            string
	Scenario        string
	Key             string
	PlaceSimilarity float64
	EdgeWeight      int
}

// Options tune how wide the candidate search casts.
type Options struct {
	TopPlaces       int
	MaxCandidates   int
	SimilarityFloor float64
}

// DefaultOptions returns the standard search width.
func DefaultOptions() Options {
	return Options{
		TopPlaces:       10,
		MaxCandidates:   75,
		SimilarityFloor: 0.0,
	}
}

// Retriever proposes candidate combinations for a topic by embedding it,
// finding the nearest places, and crossing their verb and scenario neighbors.
type Retriever struct {
	graph    *modgraph.Graph
	embedder Embedder
	opts     Options
	logger   *zap.Logger
}

// NewRetriever creates a retriever over an immutable graph. Zero option
// fields fall back to the defaults.
func NewRetriever(graph *modgraph.Graph, embedder Embedder, opts Options) *Retriever {
	defaults := DefaultOptions()
	if opts.TopPlaces <= 0 {
		opts.TopPlaces = defaults.TopPlaces
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaults.MaxCandidates
	}

	return &Retriever{
		graph:    graph,
		embedder: embedder,
		opts:     opts,
		logger:   logger.Get(),
	}
}

// Stats reports the size of the underlying graph.
func (r *Retriever) Stats() modgraph.Stats {
	return r.graph.Stats()
}

// Retrieve returns candidates for the topic, ordered by place similarity
// descending, then combined edge weight descending, then key ascending.
// maxCandidates <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, topic string, maxCandidates int) ([]Candidate, error) {
	if maxCandidates <= 0 {
		maxCandidates = r.opts.MaxCandidates
	}

	embedding, err := r.embedder.Embed(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to embed topic: %w", err)
	}

	matches := r.graph.NearestPlaces(embedding, r.opts.TopPlaces)

	seen := make(map[string]struct{})
	candidates := make([]Candidate, 0)
	for _, match := range matches {
		if match.Similarity < r.opts.SimilarityFloor {
			continue
		}
		for _, verb := range match.Place.Verbs {
			for _, scenario := range match.Place.Scenarios {
				key := bandit.MakeKey(match.Place.Name, verb.Word, scenario.Word)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				candidates = append(candidates, Candidate{
					Place:           match.Place.Name,
					Verb:            verb.Word,
					Scenario:        scenario.Word,
					Key:             key,
					PlaceSimilarity: match.Similarity,
					EdgeWeight:      verb.Weight + scenario.Weight,
				})
			}
		}
	}

	if len(candidates) == 0 {
		return nil, errors.NewEmptyCandidateSet(topic)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].PlaceSimilarity != candidates[j].PlaceSimilarity {
			return candidates[i].PlaceSimilarity > candidates[j].PlaceSimilarity
		}
		if candidates[i].EdgeWeight != candidates[j].EdgeWeight {
			return candidates[i].EdgeWeight > candidates[j].EdgeWeight
		}
		return candidates[i].Key < candidates[j].Key
	})

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	r.logger.Debug("Retrieved candidates",
		zap.String("topic", topic),
		zap.Int("places_considered", len(matches)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// Keys extracts the combination keys of a candidate list, preserving order.
func Keys(candidates []Candidate) []string {
	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = c.Key
	}
	return keys
}
