package promptgen

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"hfbpo/internal/bandit"
	"hfbpo/internal/retrieval"
	"hfbpo/pkg/logger"
)

// CandidateSource proposes combinations for a topic.
type CandidateSource interface {
	Retrieve(ctx context.Context, topic string, maxCandidates int) ([]retrieval.Candidate, error)
}

// Selector picks one combination from a candidate key set.
type Selector interface {
	Select(ctx context.Context, keys []string) (bandit.Selection, error)
}

// PromptWriter rewrites a selected combination into a final video prompt.
type PromptWriter interface {
	WritePrompt(ctx context.Context, topic, place, verb, scenario string) (string, error)
}

// Result is one generated prompt with its provenance.
type Result struct {
	Prompt          string
	CombinationKey  string
	Place           string
	Verb            string
	Scenario        string
	EstimatedReward float64
	CandidatesCount int
}

// Options configure the generator.
type Options struct {
	// FixedTopic pins the candidate set at warm-up so requests skip
	// per-request retrieval. Empty means dynamic retrieval per request.
	FixedTopic string
}

// Generator runs the retrieve, select, rewrite pipeline.
type Generator struct {
	source   CandidateSource
	selector Selector
	writer   PromptWriter
	opts     Options
	logger   *zap.Logger

	mu         sync.RWMutex
	pinnedKeys []string
}

// New creates a generator. writer may be nil, in which case every prompt
// uses the deterministic fallback template.
func New(source CandidateSource, selector Selector, writer PromptWriter, opts Options) *Generator {
	return &Generator{
		source:   source,
		selector: selector,
		writer:   writer,
		opts:     opts,
		logger:   logger.Get(),
	}
}

// FixedTopic returns the pinned topic, or empty in dynamic mode.
func (g *Generator) FixedTopic() string {
	return g.opts.FixedTopic
}

// PinnedKeys returns the warm-up candidate keys in fixed-topic mode.
func (g *Generator) PinnedKeys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pinnedKeys
}

// Warm pre-retrieves the candidate set for the fixed topic. A no-op in
// dynamic mode.
func (g *Generator) Warm(ctx context.Context) error {
	if g.opts.FixedTopic == "" {
		return nil
	}

	candidates, err := g.source.Retrieve(ctx, g.opts.FixedTopic, 0)
	if err != nil {
		return fmt.Errorf("failed to warm fixed topic %q: %w", g.opts.FixedTopic, err)
	}

	keys := retrieval.Keys(candidates)
	g.mu.Lock()
	g.pinnedKeys = keys
	g.mu.Unlock()

	g.logger.Info("Pinned fixed-topic candidates",
		zap.String("topic", g.opts.FixedTopic),
		zap.Int("combinations", len(keys)),
	)
	return nil
}

// Generate produces one prompt for the topic. In fixed-topic mode the topic
// may be empty; a non-empty topic still steers the rewrite while selection
// runs over the pinned candidates.
func (g *Generator) Generate(ctx context.Context, topic string) (Result, error) {
	useTopic := topic
	if useTopic == "" {
		useTopic = g.opts.FixedTopic
	}
	if useTopic == "" {
		return Result{}, fmt.Errorf("topic is required")
	}

	keys := g.PinnedKeys()
	if len(keys) == 0 {
		candidates, err := g.source.Retrieve(ctx, useTopic, 0)
		if err != nil {
			return Result{}, err
		}
		keys = retrieval.Keys(candidates)
	}

	selection, err := g.selector.Select(ctx, keys)
	if err != nil {
		return Result{}, fmt.Errorf("failed to select combination: %w", err)
	}

	prompt := g.writePrompt(ctx, useTopic, selection)

	g.logger.Info("Generated prompt",
		zap.String("topic", useTopic),
		zap.String("combination_key", selection.Key),
		zap.Int("candidates", selection.CandidatesCount),
	)
	return Result{
		Prompt:          prompt,
		CombinationKey:  selection.Key,
		Place:           selection.Place,
		Verb:            selection.Verb,
		Scenario:        selection.Scenario,
		EstimatedReward: selection.EstimatedReward,
		CandidatesCount: selection.CandidatesCount,
	}, nil
}

func (g *Generator) writePrompt(ctx context.Context, topic string, selection bandit.Selection) string {
	if g.writer == nil {
		return fallbackPrompt(topic, selection)
	}

	prompt, err := g.writer.WritePrompt(ctx, topic, selection.Place, selection.Verb, selection.Scenario)
	if err != nil {
		g.logger.Warn("Prompt writer failed, using fallback template",
			zap.Error(err),
			zap.String("combination_key", selection.Key),
		)
		return fallbackPrompt(topic, selection)
	}
	return prompt
}

func fallbackPrompt(topic string, selection bandit.Selection) string {
	return fmt.Sprintf("A %s scene in %s, camera %s. Topic: %s",
		selection.Scenario, selection.Place, selection.Verb, topic)
}
