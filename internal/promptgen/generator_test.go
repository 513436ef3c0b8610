package promptgen

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfbpo/internal/bandit"
	"hfbpo/internal/retrieval"
	"hfbpo/pkg/errors"
)

// Mock implementations for testing

type mockSource struct {
	candidates []retrieval.Candidate
	err        error
	calls      int
	lastTopic  string
}

func (m *mockSource) Retrieve(_ context.Context, topic string, _ int) ([]retrieval.Candidate, error) {
	m.calls++
	m.lastTopic = topic
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

type mockSelector struct {
	selection bandit.Selection
	err       error
	gotKeys   []string
}

func (m *mockSelector) Select(_ context.Context, keys []string) (bandit.Selection, error) {
	m.gotKeys = keys
	if m.err != nil {
		return bandit.Selection{}, m.err
	}
	return m.selection, nil
}

type mockWriter struct {
	prompt   string
	err      error
	gotTopic string
	gotPlace string
}

func (m *mockWriter) WritePrompt(_ context.Context, topic, place, _, _ string) (string, error) {
	m.gotTopic = topic
	m.gotPlace = place
	if m.err != nil {
		return "", m.err
	}
	return m.prompt, nil
}

func testCandidates() []retrieval.Candidate {
	return []retrieval.Candidate{
		{Place: "beach", Verb: "pan", Scenario: "sunset", Key: "beach|pan|sunset"},
		{Place: "castle", Verb: "tilt", Scenario: "night", Key: "castle|tilt|night"},
	}
}

func testSelection() bandit.Selection {
	return bandit.Selection{
		Key:             "beach|pan|sunset",
		Place:           "beach",
		Verb:            "pan",
		Scenario:        "sunset",
		EstimatedReward: 0.5,
		CandidatesCount: 2,
	}
}

func TestGenerateWithWriter(t *testing.T) {
	source := &mockSource{candidates: testCandidates()}
	selector := &mockSelector{selection: testSelection()}
	writer := &mockWriter{prompt: "Golden light washes over the beach as the camera pans. Topic: surfing dogs"}

	gen := New(source, selector, writer, Options{})
	result, err := gen.Generate(context.Background(), "surfing dogs")
	require.NoError(t, err)

	assert.Equal(t, writer.prompt, result.Prompt)
	assert.Equal(t, "beach|pan|sunset", result.CombinationKey)
	assert.Equal(t, "beach", result.Place)
	assert.Equal(t, "pan", result.Verb)
	assert.Equal(t, "sunset", result.Scenario)
	assert.Equal(t, 0.5, result.EstimatedReward)
	assert.Equal(t, 2, result.CandidatesCount)

	assert.Equal(t, []string{"beach|pan|sunset", "castle|tilt|night"}, selector.gotKeys)
	assert.Equal(t, "surfing dogs", writer.gotTopic)
	assert.Equal(t, "beach", writer.gotPlace)
}

func TestGenerateFallbackOnWriterError(t *testing.T) {
	source := &mockSource{candidates: testCandidates()}
	selector := &mockSelector{selection: testSelection()}
	writer := &mockWriter{err: fmt.Errorf("llm unavailable")}

	gen := New(source, selector, writer, Options{})
	result, err := gen.Generate(context.Background(), "surfing dogs")
	require.NoError(t, err)

	assert.Equal(t, "A sunset scene in beach, camera pan. Topic: surfing dogs", result.Prompt)
}

func TestGenerateWithoutWriter(t *testing.T) {
	source := &mockSource{candidates: testCandidates()}
	selector := &mockSelector{selection: testSelection()}

	gen := New(source, selector, nil, Options{})
	result, err := gen.Generate(context.Background(), "surfing dogs")
	require.NoError(t, err)

	assert.Equal(t, "A sunset scene in beach, camera pan. Topic: surfing dogs", result.Prompt)
}

func TestGenerateRequiresTopic(t *testing.T) {
	gen := New(&mockSource{}, &mockSelector{}, nil, Options{})

	_, err := gen.Generate(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic is required")
}

func TestGenerateRetrievalErrorKeepsType(t *testing.T) {
	source := &mockSource{err: errors.NewEmptyCandidateSet("obscure topic")}
	gen := New(source, &mockSelector{}, nil, Options{})

	_, err := gen.Generate(context.Background(), "obscure topic")
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeRetrieval))
}

func TestGenerateSelectorError(t *testing.T) {
	source := &mockSource{candidates: testCandidates()}
	selector := &mockSelector{err: fmt.Errorf("registry down")}

	gen := New(source, selector, nil, Options{})
	_, err := gen.Generate(context.Background(), "surfing dogs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to select combination")
}

func TestFixedTopicPinsCandidates(t *testing.T) {
	source := &mockSource{candidates: testCandidates()}
	selector := &mockSelector{selection: testSelection()}
	writer := &mockWriter{prompt: "styled"}

	gen := New(source, selector, writer, Options{FixedTopic: "surfing dogs"})
	require.NoError(t, gen.Warm(context.Background()))
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, []string{"beach|pan|sunset", "castle|tilt|night"}, gen.PinnedKeys())

	// Topic may be omitted; selection runs over the pinned set
	result, err := gen.Generate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, "beach|pan|sunset", result.CombinationKey)
	assert.Equal(t, "surfing dogs", writer.gotTopic)

	// A custom topic steers the rewrite but still uses pinned candidates
	_, err = gen.Generate(context.Background(), "snowboarding cats")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, "snowboarding cats", writer.gotTopic)
}

func TestFixedTopicWithoutWarmFallsBackToRetrieval(t *testing.T) {
	source := &mockSource{candidates: testCandidates()}
	selector := &mockSelector{selection: testSelection()}

	gen := New(source, selector, nil, Options{FixedTopic: "surfing dogs"})

	_, err := gen.Generate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, "surfing dogs", source.lastTopic)
}

func TestWarmDynamicModeIsNoop(t *testing.T) {
	source := &mockSource{}
	gen := New(source, &mockSelector{}, nil, Options{})

	require.NoError(t, gen.Warm(context.Background()))
	assert.Equal(t, 0, source.calls)
}

func TestWarmPropagatesRetrievalError(t *testing.T) {
	source := &mockSource{err: fmt.Errorf("graph offline")}
	gen := New(source, &mockSelector{}, nil, Options{FixedTopic: "surfing dogs"})

	err := gen.Warm(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to warm fixed topic")
}
