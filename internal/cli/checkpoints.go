package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avollmer/sitegraft/internal/checkpoint"
	"github.com/avollmer/sitegraft/internal/config"
	"github.com/avollmer/sitegraft/internal/pipeline"
	"github.com/avollmer/sitegraft/internal/store"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect or clean up migration checkpoints",
	Long: `Checkpoints record completed phases per source so interrupted
migrations can resume. These commands talk to the state store directly and
work while the server is down.`,
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list [source]",
	Short: "List checkpoints, optionally filtered by source",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckpointsList,
}

var checkpointsCleanupCmd = &cobra.Command{
	Use:   "cleanup <source>",
	Short: "Delete all checkpoints for a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointsCleanup,
}

func init() {
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsCleanupCmd)
	rootCmd.AddCommand(checkpointsCmd)
}

// openCheckpoints connects to the state store the same way the server does.
func openCheckpoints(ctx context.Context) *checkpoint.Store {
	cfg := config.Load()
	st := store.Open(ctx, store.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, nil)
	return checkpoint.NewStore(st, pipeline.Phases, nil)
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cps := openCheckpoints(ctx)

	if len(args) == 1 {
		progress := cps.GetProgress(ctx, args[0])
		fmt.Printf("Source: %s\n", args[0])
		fmt.Printf("  Progress: %d%%\n", progress.Percentage)
		fmt.Printf("  Resumable: %v\n", progress.CanResume)
		if progress.LastCompletedPhase != "" {
			fmt.Printf("  Last completed: %s\n", progress.LastCompletedPhase)
		}
		if progress.NextPhase != "" {
			fmt.Printf("  Next phase: %s\n", progress.NextPhase)
		}
		for _, phase := range progress.CompletedPhases {
			fmt.Printf("  ✓ %s\n", phase)
		}
		return nil
	}

	checkpoints := cps.List(ctx)
	if len(checkpoints) == 0 {
		fmt.Println("No checkpoints found")
		return nil
	}

	fmt.Printf("%-40s %-10s %s\n", "SOURCE", "PHASE", "TIMESTAMP")
	fmt.Println("----------------------------------------------------------------------")
	for _, cp := range checkpoints {
		fmt.Printf("%-40s %-10s %s\n", cp.SourceURL, cp.Phase, cp.Timestamp)
	}
	return nil
}

func runCheckpointsCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cps := openCheckpoints(ctx)

	cps.Cleanup(ctx, args[0])
	fmt.Printf("Checkpoints for %s removed\n", args[0])
	return nil
}
