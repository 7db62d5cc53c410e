package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var resumePlain bool

var resumeCmd = &cobra.Command{
	Use:   "resume <source>",
	Short: "Resume an interrupted migration",
	Long: `Resume a migration from its last completed phase. A migration can be
resumed once its analysis phase has been checkpointed; earlier phases are
cheap enough to redo with a fresh run.

Example:
  sitegraft resume https://example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumePlain, "plain", false, "print status lines instead of the progress UI")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	source := args[0]

	progress, err := api.GetProgress(ctx, source)
	if err != nil {
		return fmt.Errorf("check progress: %w", err)
	}
	if !progress.CanResume {
		return fmt.Errorf("nothing to resume for %s: run 'sitegraft run %s' instead", source, source)
	}

	fmt.Printf("Resuming from %q (%d%% done, next phase: %s)\n",
		progress.LastCompletedPhase, progress.Percentage, progress.NextPhase)

	job, err := api.Resume(ctx, source)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	fmt.Printf("Job %s started\n", job.ID)
	if resumePlain {
		return followPlain(ctx, job.ID)
	}
	return RunJobProgress(api, job)
}
