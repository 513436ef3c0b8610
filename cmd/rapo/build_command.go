package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hfbpo/internal/adapter"
	"hfbpo/internal/modgraph"
)

func newBuildCommand() *cobra.Command {
	var (
		csvPath     string
		outPath     string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a modifier graph snapshot from an annotations CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := os.Getenv("OPENAI_API_KEY")
			if apiKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required to embed graph words")
			}
			embeddingModel := envOr("EMBEDDING_MODEL", "text-embedding-3-small")

			rows, err := modgraph.ReadAnnotationsCSV(csvPath)
			if err != nil {
				return fmt.Errorf("failed to read annotations: %w", err)
			}

			embedder := adapter.NewOpenAIClient(apiKey, os.Getenv("OPENAI_BASE_URL"), embeddingModel, "")
			builder := modgraph.NewBuilder(embedder, modgraph.BuildOptions{
				EmbeddingModel: embeddingModel,
				Concurrency:    concurrency,
			})

			snapshot, err := builder.Build(cmd.Context(), rows)
			if err != nil {
				return fmt.Errorf("failed to build graph: %w", err)
			}

			if err := snapshot.WriteFile(outPath); err != nil {
				return fmt.Errorf("failed to write snapshot: %w", err)
			}

			c := snapshot.Counts
			fmt.Fprintf(cmd.OutOrStdout(),
				"Wrote %s: %d places, %d verbs, %d scenarios, %d edges\n",
				outPath, c.Places, c.Verbs, c.Scenarios, c.VerbEdges+c.ScenarioEdges)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "data/annotations.csv", "annotations CSV to read")
	cmd.Flags().StringVar(&outPath, "out", "data/modifier_graph.json", "snapshot file to write")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "parallel embedding requests")

	return cmd
}
