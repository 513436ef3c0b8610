package bandit

import (
	"context"
	"math"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// TestNeo4jStore requires a running Neo4j instance on localhost
func TestNeo4jStore_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := neo4j.NewDriverWithContext("bolt://localhost:7687", neo4j.BasicAuth("neo4j", "password", ""))
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		t.Fatalf("Neo4j not reachable: %v", err)
	}

	// Clean up arms written by this test
	defer func() {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, `MATCH (a:Arm) WHERE a.key STARTS WITH 'it-' DETACH DELETE a`, nil)
	}()

	store := NewNeo4jStore(driver)

	arm, err := store.GetOrCreate(ctx, "it-beach|pan|sunset")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if arm.Alpha != 1.0 || arm.Beta != 1.0 || arm.PullCount != 0 {
		t.Errorf("fresh arm = %+v, want Beta(1,1) with 0 pulls", arm)
	}

	arm, err = store.Update(ctx, "it-beach|pan|sunset", 0.72)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if math.Abs(arm.Alpha-1.72) > 1e-9 || math.Abs(arm.Beta-1.28) > 1e-9 {
		t.Errorf("updated arm = %+v, want alpha 1.72 beta 1.28", arm)
	}
	if arm.PullCount != 1 {
		t.Errorf("pulls = %d, want 1", arm.PullCount)
	}
	if arm.LastUpdated.IsZero() {
		t.Error("last_updated not set")
	}

	// Update on an unseen key creates it with the uniform prior first
	arm, err = store.Update(ctx, "it-castle|tilt|night", 1.0)
	if err != nil {
		t.Fatalf("Update on unseen key failed: %v", err)
	}
	if math.Abs(arm.Alpha-2.0) > 1e-9 {
		t.Errorf("alpha = %v, want 2.0", arm.Alpha)
	}

	if _, err := store.Update(ctx, "it-beach|pan|sunset", 1.5); err == nil {
		t.Error("expected invalid reward to be rejected")
	}

	_, found, err := store.Get(ctx, "it-missing|x|y")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("unexpected arm for unseen key")
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	var mine []string
	for _, key := range keys {
		if key == "it-beach|pan|sunset" || key == "it-castle|tilt|night" {
			mine = append(mine, key)
		}
	}
	if len(mine) != 2 {
		t.Errorf("keys = %v, want both test arms present", keys)
	}

	stats, err := store.Snapshot(ctx, -1)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(stats) < 2 {
		t.Errorf("snapshot has %d arms, want at least 2", len(stats))
	}
}
