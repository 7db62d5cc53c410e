package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect migration jobs",
	Long: `List all migration jobs or inspect a specific job by ID.

Examples:
  sitegraft jobs           # List all jobs
  sitegraft jobs ab12cd34  # Show details for one job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := api.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-12s %-9s %-30s %s\n", "ID", "STATUS", "PROGRESS", "SOURCE", "STARTED")
	fmt.Println("---------------------------------------------------------------------------")

	for _, job := range jobs {
		source := job.Source
		if len(source) > 30 {
			source = source[:27] + "..."
		}
		fmt.Printf("%-10s %-12s %7d%%  %-30s %s\n",
			job.ID, job.Status, job.Percent, source, job.StartedAt.Format("15:04:05"))
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := api.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Source: %s\n", job.Source)
	fmt.Printf("  Mode: %s\n", job.Mode)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Progress: %d%%\n", job.Percent)
	fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Second))
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}

	if len(job.Phases) > 0 {
		fmt.Println("\nPhases:")
		for _, phase := range job.Phases {
			marker := " "
			switch phase.Status {
			case "done":
				marker = "✓"
			case "failed":
				marker = "✗"
			case "active":
				marker = "▸"
			}
			line := fmt.Sprintf("  %s %-10s", marker, phase.Name)
			if phase.Detail != "" {
				line += "  " + phase.Detail
			}
			fmt.Println(line)
		}
	}
	return nil
}
