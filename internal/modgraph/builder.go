package modgraph

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hfbpo/pkg/logger"
)

// AnnotationRow is one labeled sentence from the annotation corpus: the
// sentence's topic plus the places, camera verbs and scenarios tagged in it.
type AnnotationRow struct {
	Topic     string
	Places    []string
	Verbs     []string
	Scenarios []string
}

// valid reports whether the row contributes to the graph. Rows missing any
// of the three modifier lists carry no complete combinations.
func (r AnnotationRow) valid() bool {
	return len(r.Places) > 0 && len(r.Verbs) > 0 && len(r.Scenarios) > 0
}

// BuildOptions configure snapshot construction.
type BuildOptions struct {
	EmbeddingModel string
	Concurrency    int // parallel embedding requests, defaults to 8
}

// Embedder produces embeddings for graph words.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Builder accumulates co-occurrence edges from annotation rows and embeds
// every distinct word once.
type Builder struct {
	embedder Embedder
	opts     BuildOptions
	logger   *zap.Logger
}

// NewBuilder creates a snapshot builder.
func NewBuilder(embedder Embedder, opts BuildOptions) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Builder{
		embedder: embedder,
		opts:     opts,
		logger:   logger.Get(),
	}
}

// Build constructs a snapshot from the rows. Each row in which a place
// co-occurs with a verb (or scenario) increments that edge's weight by one,
// so weights count co-occurrences across the whole corpus.
func (b *Builder) Build(ctx context.Context, rows []AnnotationRow) (*Snapshot, error) {
	placeSet := make(map[string]struct{})
	verbSet := make(map[string]struct{})
	scenarioSet := make(map[string]struct{})
	verbWeights := make(map[string]map[string]int)
	scenarioWeights := make(map[string]map[string]int)

	valid := 0
	for _, row := range rows {
		row = trimRow(row)
		if !row.valid() {
			continue
		}
		valid++

		for _, p := range row.Places {
			placeSet[p] = struct{}{}
			if verbWeights[p] == nil {
				verbWeights[p] = make(map[string]int)
			}
			if scenarioWeights[p] == nil {
				scenarioWeights[p] = make(map[string]int)
			}
			for _, v := range row.Verbs {
				verbSet[v] = struct{}{}
				verbWeights[p][v]++
			}
			for _, s := range row.Scenarios {
				scenarioSet[s] = struct{}{}
				scenarioWeights[p][s]++
			}
		}
	}

	if valid == 0 {
		return nil, fmt.Errorf("no valid annotation rows: each row needs places, verbs and scenarios")
	}

	b.logger.Info("Building modifier graph",
		zap.Int("rows", len(rows)),
		zap.Int("valid_rows", valid),
		zap.Int("places", len(placeSet)),
		zap.Int("verbs", len(verbSet)),
		zap.Int("scenarios", len(scenarioSet)),
	)

	places, err := b.embedAll(ctx, sortedKeys(placeSet))
	if err != nil {
		return nil, err
	}
	verbs, err := b.embedAll(ctx, sortedKeys(verbSet))
	if err != nil {
		return nil, err
	}
	scenarios, err := b.embedAll(ctx, sortedKeys(scenarioSet))
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Version:        uuid.New().String(),
		BuiltAt:        time.Now().UTC(),
		EmbeddingModel: b.opts.EmbeddingModel,
		Places:         places,
		Verbs:          verbs,
		Scenarios:      scenarios,
		VerbEdges:      flattenEdges(verbWeights),
		ScenarioEdges:  flattenEdges(scenarioWeights),
	}
	if len(places) > 0 {
		snapshot.Dimensions = len(places[0].Embedding)
	}
	snapshot.Counts = SnapshotCounts{
		Places:        len(snapshot.Places),
		Verbs:         len(snapshot.Verbs),
		Scenarios:     len(snapshot.Scenarios),
		VerbEdges:     len(snapshot.VerbEdges),
		ScenarioEdges: len(snapshot.ScenarioEdges),
	}
	return snapshot, nil
}

// embedAll embeds each word with bounded concurrency. Results land in the
// slot matching their word, so no ordering is lost to scheduling.
func (b *Builder) embedAll(ctx context.Context, words []string) ([]SnapshotWord, error) {
	out := make([]SnapshotWord, len(words))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i, word := range words {
		g.Go(func() error {
			emb, err := b.embedder.Embed(gctx, word)
			if err != nil {
				return fmt.Errorf("failed to embed %q: %w", word, err)
			}
			out[i] = SnapshotWord{Name: word, Embedding: emb}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func trimRow(r AnnotationRow) AnnotationRow {
	return AnnotationRow{
		Topic:     strings.TrimSpace(r.Topic),
		Places:    trimWords(r.Places),
		Verbs:     trimWords(r.Verbs),
		Scenarios: trimWords(r.Scenarios),
	}
}

func trimWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flattenEdges(weights map[string]map[string]int) []SnapshotEdge {
	var edges []SnapshotEdge
	for place, words := range weights {
		for word, weight := range words {
			edges = append(edges, SnapshotEdge{Place: place, Word: word, Weight: weight})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Place != edges[j].Place {
			return edges[i].Place < edges[j].Place
		}
		return edges[i].Word < edges[j].Word
	})
	return edges
}

// ReadAnnotationsCSV reads annotation rows from a CSV file with columns
// topic, places, verbs and scenarios. The three list columns hold JSON
// string arrays. Rows that fail to parse are skipped with a warning.
func ReadAnnotationsCSV(path string) ([]AnnotationRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open annotations: %w", err)
	}
	defer f.Close()

	log := logger.Get()
	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"topic", "places", "verbs", "scenarios"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV missing required column %q", required)
		}
	}

	var rows []AnnotationRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Warn("Skipping malformed CSV row", zap.Int("line", line), zap.Error(err))
			continue
		}

		row := AnnotationRow{Topic: record[cols["topic"]]}
		ok := true
		for _, col := range []struct {
			name string
			dst  *[]string
		}{
			{"places", &row.Places},
			{"verbs", &row.Verbs},
			{"scenarios", &row.Scenarios},
		} {
			if err := parseWordList(record[cols[col.name]], col.dst); err != nil {
				log.Warn("Skipping row with malformed word list",
					zap.Int("line", line),
					zap.String("column", col.name),
					zap.Error(err),
				)
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func parseWordList(cell string, dst *[]string) error {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(cell), dst)
}
