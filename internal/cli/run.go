package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avollmer/sitegraft/internal/pipeline"
)

var (
	runMode  string
	runPlain bool
)

var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Start a migration job",
	Long: `Start migrating a source site into the target CMS.

Examples:
  sitegraft run https://example.com
  sitegraft run "a small bakery with a menu and contact page" --mode description
  sitegraft run https://example.com --plain   # no progress UI`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", pipeline.ModeURL, "source mode: url or description")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "print status lines instead of the progress UI")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	source := args[0]
	if runMode == pipeline.ModeDescription {
		// descriptions may live in a local Markdown file
		if raw, err := os.ReadFile(source); err == nil {
			source = string(raw)
		}
	}

	job, err := api.StartJob(ctx, source, runMode)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}

	fmt.Printf("Job %s started\n", job.ID)
	if runPlain {
		return followPlain(ctx, job.ID)
	}
	return RunJobProgress(api, job)
}

// followPlain streams progress events as plain log lines.
func followPlain(ctx context.Context, jobID string) error {
	return api.StreamEvents(ctx, jobID, func(event pipeline.Event) {
		switch event.Type {
		case pipeline.EventProgress:
			fmt.Printf("[%3d%%] %-10s %s %s\n", event.Percent, event.Phase, event.Status, event.Detail)
		case pipeline.EventComplete:
			fmt.Printf("[%3d%%] finished: %s\n", event.Percent, event.Message)
		case pipeline.EventError:
			fmt.Printf("error: %s\n", event.Message)
		}
	})
}
