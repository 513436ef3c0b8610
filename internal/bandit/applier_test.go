package bandit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfbpo/pkg/errors"
)

func newTestApplier(t *testing.T, strict bool) (*Applier, *MemoryStore) {
	store, err := NewMemoryStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewApplier(store, strict), store
}

func TestApplierApply(t *testing.T) {
	applier, _ := newTestApplier(t, false)

	arm, err := applier.Apply(context.Background(), RewardRecord{
		CombinationKey: "beach|pan|sunset",
		Reward:         0.72,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.72, arm.Alpha, 1e-9)
	assert.InDelta(t, 1.28, arm.Beta, 1e-9)
	assert.Equal(t, 1, arm.PullCount)
}

func TestApplierRejectsEmptyKey(t *testing.T) {
	applier, _ := newTestApplier(t, false)

	_, err := applier.Apply(context.Background(), RewardRecord{Reward: 0.5})
	assert.Error(t, err)
}

func TestApplierRejectsInvalidReward(t *testing.T) {
	applier, store := newTestApplier(t, false)

	_, err := applier.Apply(context.Background(), RewardRecord{
		CombinationKey: "beach|pan|sunset",
		Reward:         1.5,
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeReward))

	_, found, err := store.Get(context.Background(), "beach|pan|sunset")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestApplierStrictMode(t *testing.T) {
	applier, store := newTestApplier(t, true)
	ctx := context.Background()

	_, err := applier.Apply(ctx, RewardRecord{CombinationKey: "beach|pan|sunset", Reward: 0.5})
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeArm))

	_, err = store.GetOrCreate(ctx, "beach|pan|sunset")
	require.NoError(t, err)

	arm, err := applier.Apply(ctx, RewardRecord{CombinationKey: "beach|pan|sunset", Reward: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, arm.PullCount)
}

func TestApplierAutoCreatesInLenientMode(t *testing.T) {
	applier, _ := newTestApplier(t, false)

	arm, err := applier.Apply(context.Background(), RewardRecord{
		CombinationKey: "castle|tilt|night",
		Reward:         1.0,
	})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, arm.Alpha, 1e-9)
	assert.InDelta(t, 1.0, arm.Beta, 1e-9)
}

func TestApplyBatchIsolatesFailures(t *testing.T) {
	applier, store := newTestApplier(t, false)

	records := []RewardRecord{
		{CombinationKey: "beach|pan|sunset", Reward: 0.8},
		{CombinationKey: "castle|tilt|night", Reward: 1.5},
		{CombinationKey: "cafe|zoom|morning", Reward: 0.3},
		{CombinationKey: "", Reward: 0.5},
	}

	result := applier.ApplyBatch(context.Background(), records)
	assert.Equal(t, 2, result.UpdatedCount)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "castle|tilt|night", result.Failures[0].CombinationKey)
	assert.NotEmpty(t, result.Failures[0].Reason)
	assert.Equal(t, "", result.Failures[1].CombinationKey)

	// Siblings of failing records still landed
	arm, found, err := store.Get(context.Background(), "cafe|zoom|morning")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, arm.PullCount)
}

func TestApplyBatchEmpty(t *testing.T) {
	applier, _ := newTestApplier(t, false)

	result := applier.ApplyBatch(context.Background(), nil)
	assert.Equal(t, 0, result.UpdatedCount)
	assert.Empty(t, result.Failures)
}
