package main

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"

	"hfbpo/internal/modgraph"
)

func newPushCommand() *cobra.Command {
	var (
		uri      string
		user     string
		password string
	)

	cmd := &cobra.Command{
		Use:   "push <snapshot>",
		Short: "Load a snapshot into Neo4j",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("Neo4j password is required (--password or NEO4J_PASSWORD)")
			}

			snapshot, err := modgraph.ReadSnapshot(args[0])
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
			if _, err := snapshot.Graph(); err != nil {
				return fmt.Errorf("refusing to push invalid snapshot: %w", err)
			}

			ctx := cmd.Context()
			driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
			if err != nil {
				return fmt.Errorf("failed to create Neo4j driver: %w", err)
			}
			defer driver.Close(ctx)

			if err := driver.VerifyConnectivity(ctx); err != nil {
				return fmt.Errorf("failed to reach Neo4j: %w", err)
			}

			if err := modgraph.NewNeo4jSource(driver).Push(ctx, snapshot); err != nil {
				return fmt.Errorf("failed to push snapshot: %w", err)
			}

			c := snapshot.Counts
			fmt.Fprintf(cmd.OutOrStdout(),
				"Pushed %s to %s: %d places, %d verbs, %d scenarios\n",
				snapshot.Version, uri, c.Places, c.Verbs, c.Scenarios)
			return nil
		},
	}

	cmd.Flags().StringVar(&uri, "uri", envOr("NEO4J_URI", "bolt://localhost:7687"), "Neo4j connection URI")
	cmd.Flags().StringVar(&user, "user", envOr("NEO4J_USER", "neo4j"), "Neo4j user")
	cmd.Flags().StringVar(&password, "password", envOr("NEO4J_PASSWORD", ""), "Neo4j password")

	return cmd
}
