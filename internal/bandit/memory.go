package bandit

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"hfbpo/pkg/errors"
	"hfbpo/pkg/logger"
)

const shardCount = 32

// MemoryStore is the default arm registry: a map sharded by key hash so
// updates to different combinations never touch the same lock. With a state
// path configured, every update is mirrored to a JSON file and reloaded on
// startup, keeping learned weights across restarts.
type MemoryStore struct {
	shards    [shardCount]*memoryShard
	statePath string
	stateMu   sync.Mutex // serializes state file writes
	logger    *zap.Logger
}

type memoryShard struct {
	mu   sync.RWMutex
	arms map[string]Arm
}

// memoryStateEntry is the state file row. Older files carrying only alpha
// and beta load with zero pulls.
type memoryStateEntry struct {
	Alpha       float64   `json:"alpha"`
	Beta        float64   `json:"beta"`
	Pulls       int       `json:"pulls,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// NewMemoryStore creates a memory registry. An empty statePath disables
// persistence.
func NewMemoryStore(statePath string) (*MemoryStore, error) {
	s := &MemoryStore{
		statePath: statePath,
		logger:    logger.Get(),
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{arms: make(map[string]Arm)}
	}

	if statePath != "" {
		if err := s.loadState(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Get returns the arm for key without creating it.
func (s *MemoryStore) Get(_ context.Context, key string) (Arm, bool, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	arm, ok := sh.arms[key]
	sh.mu.RUnlock()
	return arm, ok, nil
}

// GetOrCreate returns the arm for key, creating Beta(1, 1) if unseen.
func (s *MemoryStore) GetOrCreate(_ context.Context, key string) (Arm, error) {
	sh := s.shard(key)

	sh.mu.RLock()
	arm, ok := sh.arms[key]
	sh.mu.RUnlock()
	if ok {
		return arm, nil
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	// Another goroutine may have created it between the locks
	if arm, ok := sh.arms[key]; ok {
		return arm, nil
	}
	arm = NewArm(key)
	sh.arms[key] = arm
	return arm, nil
}

// Update folds the reward into the arm, creating it first when unseen.
func (s *MemoryStore) Update(_ context.Context, key string, reward float64) (Arm, error) {
	if err := ValidateReward(key, reward); err != nil {
		return Arm{}, err
	}

	sh := s.shard(key)
	sh.mu.Lock()
	arm, ok := sh.arms[key]
	if !ok {
		arm = NewArm(key)
	}
	arm = arm.applyReward(reward, nowUTC())
	sh.arms[key] = arm
	sh.mu.Unlock()

	if s.statePath != "" {
		if err := s.saveState(); err != nil {
			// The in-memory update already happened; the mirror is best-effort
			s.logger.Warn("Failed to persist arm state", zap.Error(err))
		}
	}
	return arm, nil
}

// Snapshot returns the top arms by posterior mean.
func (s *MemoryStore) Snapshot(_ context.Context, topN int) ([]ArmStat, error) {
	stats := make([]ArmStat, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, arm := range sh.arms {
			stats = append(stats, newArmStat(arm))
		}
		sh.mu.RUnlock()
	}
	return topStats(stats, topN), nil
}

// Count returns the number of arms.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	count := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		count += len(sh.arms)
		sh.mu.RUnlock()
	}
	return count, nil
}

// Keys returns all combination keys sorted ascending.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	keys := make([]string, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for key := range sh.arms {
			keys = append(keys, key)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys, nil
}

// Close flushes the state mirror one last time.
func (s *MemoryStore) Close() error {
	if s.statePath == "" {
		return nil
	}
	return s.saveState()
}

func (s *MemoryStore) loadState() error {
	data, err := os.ReadFile(s.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewStorageFailed("memory", "load state", err)
	}

	var entries map[string]memoryStateEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.NewStorageFailed("memory", "decode state", err)
	}

	for key, e := range entries {
		if e.Alpha <= 0 || e.Beta <= 0 {
			continue
		}
		sh := s.shard(key)
		sh.arms[key] = Arm{
			Key:         key,
			Alpha:       e.Alpha,
			Beta:        e.Beta,
			PullCount:   e.Pulls,
			LastUpdated: e.LastUpdated,
		}
	}

	s.logger.Info("Loaded arm state",
		zap.String("path", s.statePath),
		zap.Int("arms", len(entries)),
	)
	return nil
}

// saveState writes the whole registry through a temp file and rename so a
// crash mid-write never corrupts the mirror.
func (s *MemoryStore) saveState() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	entries := make(map[string]memoryStateEntry)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for key, arm := range sh.arms {
			entries[key] = memoryStateEntry{
				Alpha:       arm.Alpha,
				Beta:        arm.Beta,
				Pulls:       arm.PullCount,
				LastUpdated: arm.LastUpdated,
			}
		}
		sh.mu.RUnlock()
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.NewStorageFailed("memory", "encode state", err)
	}

	dir := filepath.Dir(s.statePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewStorageFailed("memory", "create state dir", err)
	}
	tmp, err := os.CreateTemp(dir, ".arms-*.json")
	if err != nil {
		return errors.NewStorageFailed("memory", "create temp state", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.NewStorageFailed("memory", "write state", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.NewStorageFailed("memory", "close state", err)
	}
	if err := os.Rename(tmp.Name(), s.statePath); err != nil {
		os.Remove(tmp.Name())
		return errors.NewStorageFailed("memory", "replace state", err)
	}
	return nil
}

var _ Registry = (*MemoryStore)(nil)
