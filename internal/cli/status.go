package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the final report of a migration job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	report, err := api.GetReport(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get report: %w", err)
	}

	fmt.Printf("Report for job %s\n", report.JobID)
	fmt.Printf("  Source: %s\n", report.Source)
	fmt.Printf("  Status: %s\n", report.Status)
	fmt.Printf("  Completion: %d%%\n", report.CompletionPercentage)
	fmt.Printf("  Completed phases: %d/%d\n", len(report.CompletedPhases), len(report.Phases))

	if len(report.FailedPhases) > 0 {
		fmt.Printf("\nFailed phases (%d):\n", len(report.FailedPhases))
		for phase, cause := range report.FailedPhases {
			fmt.Printf("  ✗ %s: %s\n", phase, cause)
		}
	}
	if len(report.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(report.Warnings))
		for _, warning := range report.Warnings {
			fmt.Printf("  • %s\n", warning)
		}
	}
	return nil
}
