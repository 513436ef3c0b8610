package bandit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hfbpo/pkg/errors"
	"hfbpo/pkg/logger"
)

// RewardRecord pairs a combination key with a computed reward value.
type RewardRecord struct {
	CombinationKey string  `json:"combination_key"`
	Reward         float64 `json:"reward"`
}

// BatchFailure describes one record that could not be applied.
type BatchFailure struct {
	CombinationKey string `json:"combination_key"`
	Reason         string `json:"reason"`
}

// BatchResult summarizes a batch application.
type BatchResult struct {
	UpdatedCount int            `json:"updated_count"`
	Failures     []BatchFailure `json:"failures"`
}

// Applier folds reward feedback into the arm registry. In strict mode
// rewards for combinations that were never selected are rejected instead
// of creating a fresh arm.
type Applier struct {
	registry Registry
	strict   bool
	logger   *zap.Logger
}

// NewApplier creates an applier over the given registry.
func NewApplier(registry Registry, strict bool) *Applier {
	return &Applier{
		registry: registry,
		strict:   strict,
		logger:   logger.Get(),
	}
}

// Apply validates the record and updates its arm. Unknown combinations are
// created with a uniform prior unless the applier is strict.
func (a *Applier) Apply(ctx context.Context, record RewardRecord) (Arm, error) {
	if record.CombinationKey == "" {
		return Arm{}, fmt.Errorf("combination key is required")
	}
	if err := ValidateReward(record.CombinationKey, record.Reward); err != nil {
		return Arm{}, err
	}

	if a.strict {
		_, found, err := a.registry.Get(ctx, record.CombinationKey)
		if err != nil {
			return Arm{}, err
		}
		if !found {
			return Arm{}, errors.NewUnknownArm(record.CombinationKey)
		}
	}

	arm, err := a.registry.Update(ctx, record.CombinationKey, record.Reward)
	if err != nil {
		return Arm{}, err
	}

	a.logger.Info("Applied reward",
		zap.String("key", arm.Key),
		zap.Float64("reward", record.Reward),
		zap.Float64("alpha", arm.Alpha),
		zap.Float64("beta", arm.Beta),
		zap.Int("pulls", arm.PullCount),
	)
	return arm, nil
}

// ApplyBatch applies each record independently. A failing record is
// reported in the result and never aborts its siblings.
func (a *Applier) ApplyBatch(ctx context.Context, records []RewardRecord) BatchResult {
	result := BatchResult{Failures: make([]BatchFailure, 0)}
	for _, record := range records {
		if _, err := a.Apply(ctx, record); err != nil {
			result.Failures = append(result.Failures, BatchFailure{
				CombinationKey: record.CombinationKey,
				Reason:         err.Error(),
			})
			continue
		}
		result.UpdatedCount++
	}

	a.logger.Info("Applied reward batch",
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", len(result.Failures)),
	)
	return result
}
