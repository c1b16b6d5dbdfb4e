// Command hnswlite is a small operator CLI over the durable backing: create
// an index file, add or remove vectors, run a top-k query, and inspect or
// snapshot its contents. It is a thin client over the library, not a
// replacement for embedding the package directly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/liliang-cn/hnswlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hnswlite",
		Short: "Inspect and operate on an hnswlite durable index file",
	}
	root.AddCommand(
		newInitCmd(),
		newAddCmd(),
		newSearchCmd(),
		newRemoveCmd(),
		newStatsCmd(),
		newExportCmd(),
		newImportCmd(),
	)
	return root
}

func newInitCmd() *cobra.Command {
	var dimension int
	var distance string
	var m, efConstruction int

	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Create a durable index file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := hnswlite.DefaultParameters(distance)
			if m > 0 {
				params.M = m
			}
			if efConstruction > 0 {
				params.EfConstruction = efConstruction
			}
			engine, err := hnswlite.OpenDurable(args[0], dimension, params)
			if err != nil {
				return err
			}
			defer engine.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s (dimension=%d, distance=%s, M=%d)\n", args[0], dimension, distance, params.M)
			return nil
		},
	}
	cmd.Flags().IntVar(&dimension, "dim", 0, "vector dimension (required)")
	cmd.Flags().StringVar(&distance, "distance", "euclidean", "distance kernel for this run: euclidean, cosine, dotproduct (not stored in the file; other commands use euclidean)")
	cmd.Flags().IntVar(&m, "m", 0, "override target degree M for this run (not stored in the file)")
	cmd.Flags().IntVar(&efConstruction, "ef-construction", 0, "override efConstruction for this run (not stored in the file)")
	cmd.MarkFlagRequired("dim")
	return cmd
}

func newAddCmd() *cobra.Command {
	var idText, vectorText string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add or replace a vector in a durable index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vector, err := parseVector(vectorText)
			if err != nil {
				return err
			}
			engine, err := hnswlite.OpenDurable(args[0], len(vector), hnswlite.DefaultParameters("euclidean"))
			if err != nil {
				return err
			}
			defer engine.Close()

			id, err := resolveID(idText)
			if err != nil {
				return err
			}
			if err := engine.Add(context.Background(), id, vector); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&idText, "id", "", "node id (UUID); a fresh one is generated if omitted")
	cmd.Flags().StringVar(&vectorText, "vector", "", "comma-separated float32 components (required)")
	cmd.MarkFlagRequired("vector")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var vectorText string
	var k, ef int

	cmd := &cobra.Command{
		Use:   "search <path>",
		Short: "Run a top-k query against a durable index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vector, err := parseVector(vectorText)
			if err != nil {
				return err
			}
			engine, err := hnswlite.OpenDurable(args[0], len(vector), hnswlite.DefaultParameters("euclidean"))
			if err != nil {
				return err
			}
			defer engine.Close()

			results, err := engine.TopK(context.Background(), vector, k, ef)
			if err != nil {
				return err
			}
			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s  distance=%.6f\n", i+1, r.ID, r.Distance)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&vectorText, "vector", "", "comma-separated float32 query vector (required)")
	cmd.Flags().IntVar(&k, "k", 10, "number of results")
	cmd.Flags().IntVar(&ef, "ef", 0, "candidate-list size; below k it becomes max(k, 50), the default efSearch")
	cmd.MarkFlagRequired("vector")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var idText string
	cmd := &cobra.Command{
		Use:   "remove <path>",
		Short: "Remove a vector by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := hnswlite.ParseNodeID(idText)
			if err != nil {
				return fmt.Errorf("invalid --id: %w", err)
			}
			engine, err := hnswlite.OpenDurable(args[0], 1, hnswlite.DefaultParameters("euclidean"))
			if err != nil {
				return err
			}
			defer engine.Close()
			if err := engine.Remove(context.Background(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&idText, "id", "", "node id to remove (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <path>",
		Short: "Print node count, dimension, and the default parameters the CLI opens a durable index with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := hnswlite.OpenDurable(args[0], 1, hnswlite.DefaultParameters("euclidean"))
			if err != nil {
				return err
			}
			defer engine.Close()

			state, err := engine.ExportState(context.Background())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if info, statErr := os.Stat(args[0]); statErr == nil {
				fmt.Fprintf(out, "file size:  %s\n", humanize.Bytes(uint64(info.Size())))
			}
			fmt.Fprintf(out, "nodes:      %s\n", humanize.Comma(int64(len(state.Nodes))))
			dimension := state.VectorDimension
			if len(state.Nodes) > 0 {
				dimension = len(state.Nodes[0].Vector)
			}
			fmt.Fprintf(out, "dimension:  %d\n", dimension)
			fmt.Fprintf(out, "distance:   %s\n", state.Parameters.Distance)
			fmt.Fprintf(out, "M / Mmax0:  %d / %d\n", state.Parameters.M, state.Parameters.Mmax0)
			if state.EntryPointID != "" {
				fmt.Fprintf(out, "entryPoint: %s\n", state.EntryPointID)
			} else {
				fmt.Fprintln(out, "entryPoint: (none)")
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Write the index's full state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := hnswlite.OpenDurable(args[0], 1, hnswlite.DefaultParameters("euclidean"))
			if err != nil {
				return err
			}
			defer engine.Close()
			state, err := engine.ExportState(context.Background())
			if err != nil {
				return err
			}
			if len(state.Nodes) > 0 {
				state.VectorDimension = len(state.Nodes[0].Vector)
			}
			data, err := json.Marshal(state)
			if err != nil {
				return err
			}
			if out == "" {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file; stdout if omitted")
	return cmd
}

func newImportCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Replace the index's contents from a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(in)
			if err != nil {
				return err
			}
			var probe struct {
				VectorDimension int `json:"vectorDimension"`
			}
			if err := json.Unmarshal(data, &probe); err != nil {
				return fmt.Errorf("parse snapshot: %w", err)
			}
			engine, err := hnswlite.OpenDurable(args[0], probe.VectorDimension, hnswlite.DefaultParameters("euclidean"))
			if err != nil {
				return err
			}
			defer engine.Close()
			if err := engine.ImportJSON(context.Background(), data); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "import complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "input file; stdin if omitted")
	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		if isatty.IsTerminal(os.Stdin.Fd()) {
			return nil, fmt.Errorf("no --in file given and stdin is a terminal")
		}
		return os.ReadFile("/dev/stdin")
	}
	return os.ReadFile(path)
}

func resolveID(text string) (hnswlite.NodeID, error) {
	if text == "" {
		return hnswlite.NewNodeID(), nil
	}
	return hnswlite.ParseNodeID(text)
}

func parseVector(text string) (hnswlite.Vector, error) {
	parts := strings.Split(text, ",")
	out := make(hnswlite.Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
