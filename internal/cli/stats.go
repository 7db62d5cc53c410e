package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/avollmer/sitegraft/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	snap, err := api.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Printf("Uptime: %s\n", time.Duration(snap.UptimeSeconds*float64(time.Second)).Round(time.Second))
	fmt.Printf("Jobs:   %d started, %d finished\n", snap.JobsStarted, snap.JobsFinished)

	if len(snap.Phases) > 0 {
		fmt.Println("\nPhase timings:")
		printOps(snap.Phases)
	}
	if len(snap.Operations) > 0 {
		fmt.Println("\nOperations:")
		printOps(snap.Operations)
	}
	return nil
}

func printOps(ops map[string]metrics.OperationSnapshot) {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("  %-16s %8s %10s %10s %10s\n", "NAME", "COUNT", "AVG(ms)", "MIN(ms)", "MAX(ms)")
	for _, name := range names {
		op := ops[name]
		fmt.Printf("  %-16s %8d %10.1f %10d %10d\n",
			name, op.Count, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	}
}
