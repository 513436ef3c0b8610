package bandit

import (
	"context"
	"sort"
)

// Registry stores bandit arms and mutates them atomically. Updates to one
// key are linearizable; different keys never contend.
type Registry interface {
	// Get returns the arm for key without creating it.
	Get(ctx context.Context, key string) (Arm, bool, error)
	// GetOrCreate returns the arm for key, creating the uniform-prior arm
	// if none exists. Concurrent calls for one key converge on a single arm.
	GetOrCreate(ctx context.Context, key string) (Arm, error)
	// Update validates the reward and atomically folds it into the arm,
	// creating the arm first when the key is new. A failed update leaves
	// the prior state intact.
	Update(ctx context.Context, key string, reward float64) (Arm, error)
	// Snapshot returns up to topN arms ordered by posterior mean descending,
	// pull count descending, then key ascending.
	Snapshot(ctx context.Context, topN int) ([]ArmStat, error)
	// Count returns the number of arms.
	Count(ctx context.Context) (int, error)
	// Keys returns all combination keys in ascending order.
	Keys(ctx context.Context) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// ArmStat is one row of a registry snapshot.
type ArmStat struct {
	Key        string  `json:"key"`
	Place      string  `json:"place"`
	Verb       string  `json:"verb"`
	Scenario   string  `json:"scenario"`
	Alpha      float64 `json:"alpha"`
	Beta       float64 `json:"beta"`
	PullCount  int     `json:"pulls"`
	MeanReward float64 `json:"mean_reward"`
}

func newArmStat(a Arm) ArmStat {
	place, verb, scenario, _ := SplitKey(a.Key)
	return ArmStat{
		Key:        a.Key,
		Place:      place,
		Verb:       verb,
		Scenario:   scenario,
		Alpha:      a.Alpha,
		Beta:       a.Beta,
		PullCount:  a.PullCount,
		MeanReward: a.MeanReward(),
	}
}

// topStats orders stats by mean reward descending, pull count descending,
// key ascending, and truncates to topN. All backends share this so snapshot
// ordering never depends on the storage engine.
func topStats(stats []ArmStat, topN int) []ArmStat {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].MeanReward != stats[j].MeanReward {
			return stats[i].MeanReward > stats[j].MeanReward
		}
		if stats[i].PullCount != stats[j].PullCount {
			return stats[i].PullCount > stats[j].PullCount
		}
		return stats[i].Key < stats[j].Key
	})
	if topN >= 0 && topN < len(stats) {
		stats = stats[:topN]
	}
	return stats
}
