package bandit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"hfbpo/pkg/logger"
)

// Selection is the outcome of one Thompson Sampling round.
type Selection struct {
	Key             string  `json:"key"`
	Place           string  `json:"place"`
	Verb            string  `json:"verb"`
	Scenario        string  `json:"scenario"`
	Arm             Arm     `json:"arm"`
	EstimatedReward float64 `json:"estimated_reward"`
	CandidatesCount int     `json:"candidates_considered"`
}

// Selector picks one combination from a candidate set by sampling each
// arm's Beta posterior and taking the maximum draw. Unseen combinations
// are registered with a uniform prior before sampling, so exploration
// never requires pre-seeding the registry.
type Selector struct {
	registry Registry
	logger   *zap.Logger

	mu  sync.Mutex
	src rand.Source
}

// NewSelector creates a selector with a randomly seeded sampling source.
func NewSelector(registry Registry) *Selector {
	return NewSelectorWithSource(registry, rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewSelectorWithSource creates a selector with a fixed sampling source,
// which makes selections reproducible.
func NewSelectorWithSource(registry Registry, src rand.Source) *Selector {
	return &Selector{
		registry: registry,
		logger:   logger.Get(),
		src:      src,
	}
}

// Select runs one Thompson Sampling round over the given combination keys
// and returns the winner. Ties on the sampled value go to the lower key.
func (s *Selector) Select(ctx context.Context, keys []string) (Selection, error) {
	if len(keys) == 0 {
		return Selection{}, fmt.Errorf("no candidate keys to select from")
	}

	arms := make([]Arm, len(keys))
	for i, key := range keys {
		arm, err := s.registry.GetOrCreate(ctx, key)
		if err != nil {
			return Selection{}, fmt.Errorf("failed to load arm %q: %w", key, err)
		}
		arms[i] = arm
	}

	s.mu.Lock()
	bestIdx := 0
	bestSample := distuv.Beta{Alpha: arms[0].Alpha, Beta: arms[0].Beta, Src: s.src}.Rand()
	for i := 1; i < len(arms); i++ {
		sample := distuv.Beta{Alpha: arms[i].Alpha, Beta: arms[i].Beta, Src: s.src}.Rand()
		if sample > bestSample || (sample == bestSample && keys[i] < keys[bestIdx]) {
			bestIdx = i
			bestSample = sample
		}
	}
	s.mu.Unlock()

	winner := Selection{
		Key:             keys[bestIdx],
		Arm:             arms[bestIdx],
		EstimatedReward: arms[bestIdx].MeanReward(),
		CandidatesCount: len(keys),
	}
	if place, verb, scenario, ok := SplitKey(winner.Key); ok {
		winner.Place = place
		winner.Verb = verb
		winner.Scenario = scenario
	}

	s.logger.Debug("Selected combination",
		zap.String("key", winner.Key),
		zap.Float64("estimated_reward", winner.EstimatedReward),
		zap.Int("candidates", winner.CandidatesCount),
	)
	return winner, nil
}
