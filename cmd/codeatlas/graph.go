package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeatlas-dev/codeatlas"
	"github.com/codeatlas-dev/codeatlas/internal/ccm"
	"github.com/codeatlas-dev/codeatlas/internal/config"
	"github.com/codeatlas-dev/codeatlas/internal/graph"
)

var (
	flagGraphOutput string
	flagScript      string
)

var graphCmd = &cobra.Command{
	Use:   "graph <ccm.json>",
	Short: "Convert a canonical model document into a dependency graph",
	Long:  "Reads a canonical model JSON file, validates it, and writes a visualization graph: package hierarchy, merged weighted edges, and complexity buckets.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().StringVarP(&flagGraphOutput, "output", "o", "graph.json", "output file path")
	graphCmd.Flags().StringVar(&flagScript, "script", "", "Risor script overriding the complexity score")
}

func runGraph(cmd *cobra.Command, args []string) error {
	start := time.Now()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	var doc ccm.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}

	cfg := config.Default()
	if flagConfig != "" {
		if cfg, err = config.Load(flagConfig); err != nil {
			return err
		}
	}
	policy, err := graphPolicy(cfg)
	if err != nil {
		return err
	}
	if flagScript != "" {
		src, err := os.ReadFile(flagScript)
		if err != nil {
			return fmt.Errorf("reading complexity script: %w", err)
		}
		policy.ScriptSource = string(src)
	}

	g, err := codeatlas.Graph(cmd.Context(), &doc, policy)
	if err != nil {
		if errors.Is(err, codeatlas.ErrSchema) {
			return fmt.Errorf("document failed validation: %w", err)
		}
		return err
	}
	if err := writeJSON(flagGraphOutput, g); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Converted in %s: %d nodes, %d edges, %d packages\n",
		time.Since(start).Round(time.Millisecond),
		g.Statistics.TotalNodes,
		g.Statistics.TotalEdges,
		g.Statistics.TotalPackages,
	)
	fmt.Fprintf(os.Stderr, "Output: %s\n", flagGraphOutput)
	return nil
}

func graphPolicy(cfg *config.Config) (graph.Policy, error) {
	policy := graph.DefaultPolicy()
	policy.LowMax = cfg.Complexity.LowMax
	policy.MediumMax = cfg.Complexity.MediumMax
	policy.HighMax = cfg.Complexity.HighMax
	policy.NestedWeight = cfg.Complexity.NestedWeight
	if cfg.Complexity.Script != "" {
		src, err := os.ReadFile(cfg.Complexity.Script)
		if err != nil {
			return graph.Policy{}, fmt.Errorf("reading complexity script: %w", err)
		}
		policy.ScriptSource = string(src)
	}
	return policy, nil
}
