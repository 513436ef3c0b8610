package bandit

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"hfbpo/pkg/errors"
	"hfbpo/pkg/logger"
)

// Neo4jStore keeps arms as (:Arm {key}) nodes. Each mutation is a single
// MERGE statement, so the database serializes concurrent updates per key.
// The driver is shared with other components; the caller owns its lifecycle.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore creates an arm registry backed by the given driver.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{
		driver: driver,
		logger: logger.Get(),
	}
}

// Get returns the arm for key without creating it.
func (s *Neo4jStore) Get(ctx context.Context, key string) (Arm, bool, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Arm {key: $key})
		RETURN a.key AS key, a.alpha AS alpha, a.beta AS beta,
		       a.pulls AS pulls, a.last_updated AS last_updated
	`, map[string]interface{}{"key": key})
	if err != nil {
		return Arm{}, false, errors.NewStorageFailed("neo4j", "get", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return Arm{}, false, errors.NewStorageFailed("neo4j", "get", err)
		}
		return Arm{}, false, nil
	}
	return armFromRecord(result.Record()), true, nil
}

// GetOrCreate returns the arm for key, creating Beta(1, 1) if unseen.
func (s *Neo4jStore) GetOrCreate(ctx context.Context, key string) (Arm, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MERGE (a:Arm {key: $key})
		ON CREATE SET a.alpha = 1.0,
		              a.beta = 1.0,
		              a.pulls = 0,
		              a.created_at = datetime()
		RETURN a.key AS key, a.alpha AS alpha, a.beta AS beta,
		       a.pulls AS pulls, a.last_updated AS last_updated
	`, map[string]interface{}{"key": key})
	if err != nil {
		return Arm{}, errors.NewStorageFailed("neo4j", "get_or_create", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return Arm{}, errors.NewStorageFailed("neo4j", "get_or_create", err)
	}
	return armFromRecord(record), nil
}

// Update folds the reward into the arm, creating it first when unseen.
func (s *Neo4jStore) Update(ctx context.Context, key string, reward float64) (Arm, error) {
	if err := ValidateReward(key, reward); err != nil {
		return Arm{}, err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MERGE (a:Arm {key: $key})
		ON CREATE SET a.alpha = 1.0,
		              a.beta = 1.0,
		              a.pulls = 0,
		              a.created_at = datetime()
		SET a.alpha = a.alpha + $reward,
		    a.beta = a.beta + (1.0 - $reward),
		    a.pulls = a.pulls + 1,
		    a.last_updated = datetime()
		RETURN a.key AS key, a.alpha AS alpha, a.beta AS beta,
		       a.pulls AS pulls, a.last_updated AS last_updated
	`, map[string]interface{}{"key": key, "reward": reward})
	if err != nil {
		return Arm{}, errors.NewStorageFailed("neo4j", "update", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return Arm{}, errors.NewStorageFailed("neo4j", "update", err)
	}

	arm := armFromRecord(record)
	s.logger.Debug("Updated arm",
		zap.String("key", key),
		zap.Float64("alpha", arm.Alpha),
		zap.Float64("beta", arm.Beta),
	)
	return arm, nil
}

// Snapshot returns the top arms by posterior mean.
func (s *Neo4jStore) Snapshot(ctx context.Context, topN int) ([]ArmStat, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Arm)
		RETURN a.key AS key, a.alpha AS alpha, a.beta AS beta,
		       a.pulls AS pulls, a.last_updated AS last_updated
	`, nil)
	if err != nil {
		return nil, errors.NewStorageFailed("neo4j", "snapshot", err)
	}

	stats := make([]ArmStat, 0)
	for result.Next(ctx) {
		stats = append(stats, newArmStat(armFromRecord(result.Record())))
	}
	if err := result.Err(); err != nil {
		return nil, errors.NewStorageFailed("neo4j", "snapshot", err)
	}
	return topStats(stats, topN), nil
}

// Count returns the number of arms.
func (s *Neo4jStore) Count(ctx context.Context) (int, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (a:Arm) RETURN count(a) AS count`, nil)
	if err != nil {
		return 0, errors.NewStorageFailed("neo4j", "count", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, errors.NewStorageFailed("neo4j", "count", err)
	}
	if val, ok := record.Get("count"); ok {
		if n, ok := val.(int64); ok {
			return int(n), nil
		}
	}
	return 0, nil
}

// Keys returns all combination keys sorted ascending.
func (s *Neo4jStore) Keys(ctx context.Context) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (a:Arm) RETURN a.key AS key ORDER BY key`, nil)
	if err != nil {
		return nil, errors.NewStorageFailed("neo4j", "keys", err)
	}

	keys := make([]string, 0)
	for result.Next(ctx) {
		if val, ok := result.Record().Get("key"); ok {
			if key, ok := val.(string); ok {
				keys = append(keys, key)
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, errors.NewStorageFailed("neo4j", "keys", err)
	}
	return keys, nil
}

// Close is a no-op; the shared driver is closed by its owner.
func (s *Neo4jStore) Close() error {
	return nil
}

func armFromRecord(record *neo4j.Record) Arm {
	arm := Arm{}
	if val, ok := record.Get("key"); ok {
		if key, ok := val.(string); ok {
			arm.Key = key
		}
	}
	if val, ok := record.Get("alpha"); ok {
		if f, ok := val.(float64); ok {
			arm.Alpha = f
		}
	}
	if val, ok := record.Get("beta"); ok {
		if f, ok := val.(float64); ok {
			arm.Beta = f
		}
	}
	if val, ok := record.Get("pulls"); ok {
		if n, ok := val.(int64); ok {
			arm.PullCount = int(n)
		}
	}
	if val, ok := record.Get("last_updated"); ok {
		if t, ok := val.(time.Time); ok {
			arm.LastUpdated = t
		}
	}
	return arm
}

var _ Registry = (*Neo4jStore)(nil)
