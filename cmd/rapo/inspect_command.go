package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"hfbpo/internal/modgraph"
)

func newInspectCommand() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Validate a snapshot and show its best-connected places",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := modgraph.ReadSnapshot(args[0])
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
			if _, err := snapshot.Graph(); err != nil {
				return fmt.Errorf("snapshot is not a valid graph: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:   %s\n", snapshot.Version)
			fmt.Fprintf(out, "Model:     %s (%d dims)\n", snapshot.EmbeddingModel, snapshot.Dimensions)
			fmt.Fprintf(out, "Built:     %s\n", snapshot.BuiltAt.Format(time.RFC3339))
			c := snapshot.Counts
			fmt.Fprintf(out, "Contents:  %d places, %d verbs, %d scenarios, %d edges\n\n",
				c.Places, c.Verbs, c.Scenarios, c.VerbEdges+c.ScenarioEdges)

			fmt.Fprintln(out, renderPlaceTable(snapshot, top))
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "number of places to list")

	return cmd
}

type placeDegree struct {
	name        string
	verbEdges   int
	sceneEdges  int
	totalWeight int
}

// renderPlaceTable ranks places by edge count, heaviest first.
func renderPlaceTable(s *modgraph.Snapshot, top int) string {
	byPlace := make(map[string]*placeDegree, len(s.Places))
	degree := func(name string) *placeDegree {
		d, ok := byPlace[name]
		if !ok {
			d = &placeDegree{name: name}
			byPlace[name] = d
		}
		return d
	}
	for _, e := range s.VerbEdges {
		d := degree(e.Place)
		d.verbEdges++
		d.totalWeight += e.Weight
	}
	for _, e := range s.ScenarioEdges {
		d := degree(e.Place)
		d.sceneEdges++
		d.totalWeight += e.Weight
	}

	ranked := make([]*placeDegree, 0, len(byPlace))
	for _, d := range byPlace {
		ranked = append(ranked, d)
	}
	sort.Slice(ranked, func(i, j int) bool {
		di, dj := ranked[i], ranked[j]
		if di.verbEdges+di.sceneEdges != dj.verbEdges+dj.sceneEdges {
			return di.verbEdges+di.sceneEdges > dj.verbEdges+dj.sceneEdges
		}
		return di.name < dj.name
	})
	if top >= 0 && len(ranked) > top {
		ranked = ranked[:top]
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Place", "Verb edges", "Scene edges", "Total weight"})
	for _, d := range ranked {
		tw.AppendRow(table.Row{d.name, d.verbEdges, d.sceneEdges, d.totalWeight})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
