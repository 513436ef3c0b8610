package bandit

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeededSelector(t *testing.T, seed uint64) (*Selector, *MemoryStore) {
	store, err := NewMemoryStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewSelectorWithSource(store, rand.NewPCG(seed, seed)), store
}

func TestSelectEmptyKeys(t *testing.T) {
	selector, _ := newSeededSelector(t, 1)

	_, err := selector.Select(context.Background(), nil)
	assert.Error(t, err)
}

func TestSelectSingleKey(t *testing.T) {
	selector, _ := newSeededSelector(t, 1)

	sel, err := selector.Select(context.Background(), []string{"beach|pan|sunset"})
	require.NoError(t, err)
	assert.Equal(t, "beach|pan|sunset", sel.Key)
	assert.Equal(t, "beach", sel.Place)
	assert.Equal(t, "pan", sel.Verb)
	assert.Equal(t, "sunset", sel.Scenario)
	assert.Equal(t, 1, sel.CandidatesCount)
	assert.Equal(t, 0.5, sel.EstimatedReward)
}

func TestSelectDeterministicWithSeed(t *testing.T) {
	keys := []string{
		"beach|pan|sunset",
		"castle|tilt|night",
		"cafe|zoom|morning",
		"forest|dolly|fog",
	}

	first, _ := newSeededSelector(t, 42)
	second, _ := newSeededSelector(t, 42)

	selA, err := first.Select(context.Background(), keys)
	require.NoError(t, err)
	selB, err := second.Select(context.Background(), keys)
	require.NoError(t, err)

	assert.Equal(t, selA.Key, selB.Key)
}

func TestSelectCreatesUnseenArms(t *testing.T) {
	selector, store := newSeededSelector(t, 7)
	keys := []string{"beach|pan|sunset", "castle|tilt|night", "cafe|zoom|morning"}

	sel, err := selector.Select(context.Background(), keys)
	require.NoError(t, err)
	assert.Contains(t, keys, sel.Key)
	assert.Equal(t, 3, sel.CandidatesCount)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, key := range keys {
		arm, found, err := store.Get(context.Background(), key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 1.0, arm.Alpha)
		assert.Equal(t, 1.0, arm.Beta)
	}
}

func TestSelectPrefersDominantArm(t *testing.T) {
	selector, store := newSeededSelector(t, 99)
	ctx := context.Background()

	// Beta(21, 1) against Beta(1, 21): the strong arm wins essentially always
	for i := 0; i < 20; i++ {
		_, err := store.Update(ctx, "good|good|good", 1.0)
		require.NoError(t, err)
		_, err = store.Update(ctx, "bad|bad|bad", 0.0)
		require.NoError(t, err)
	}

	keys := []string{"bad|bad|bad", "good|good|good"}
	for i := 0; i < 100; i++ {
		sel, err := selector.Select(ctx, keys)
		require.NoError(t, err)
		assert.Equal(t, "good|good|good", sel.Key)
	}
}

func TestSelectReportsPosteriorMean(t *testing.T) {
	selector, store := newSeededSelector(t, 99)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := store.Update(ctx, "good|good|good", 1.0)
		require.NoError(t, err)
	}

	sel, err := selector.Select(ctx, []string{"good|good|good", "bad|bad|bad"})
	require.NoError(t, err)
	require.Equal(t, "good|good|good", sel.Key)

	// Posterior mean of Beta(21, 1), not the sampled value
	assert.InDelta(t, 21.0/22.0, sel.EstimatedReward, 1e-9)
	assert.InDelta(t, 21.0, sel.Arm.Alpha, 1e-9)
	assert.Equal(t, 20, sel.Arm.PullCount)
}

func TestSelectDoesNotMutatePosteriors(t *testing.T) {
	selector, store := newSeededSelector(t, 3)
	ctx := context.Background()

	_, err := store.Update(ctx, "beach|pan|sunset", 0.8)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := selector.Select(ctx, []string{"beach|pan|sunset", "castle|tilt|night"})
		require.NoError(t, err)
	}

	arm, _, err := store.Get(ctx, "beach|pan|sunset")
	require.NoError(t, err)
	assert.InDelta(t, 1.8, arm.Alpha, 1e-9)
	assert.Equal(t, 1, arm.PullCount)
}
