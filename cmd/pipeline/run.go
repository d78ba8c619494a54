package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one pipeline run and wait for it to finish",
	Long:  `Runs research -> planning -> writing -> review -> publishing once, printing the run outcome. Fails if another run is already in flight.`,
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	app, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	run, err := app.coordinator.Execute(cmd.Context(), "cli")
	if err != nil {
		return err
	}

	fmt.Printf("run %s finished: %s\n", run.ID, run.Status)
	fmt.Printf("  sources researched: %d\n", run.Counts.SourcesResearched)
	fmt.Printf("  tasks planned:      %d\n", run.Counts.TasksPlanned)
	fmt.Printf("  articles written:   %d\n", run.Counts.ArticlesWritten)
	fmt.Printf("  articles approved:  %d\n", run.Counts.ArticlesApproved)
	fmt.Printf("  articles published: %d\n", run.Counts.ArticlesPublished)
	fmt.Printf("  tokens used:        %d\n", run.TotalTokensUsed)
	fmt.Printf("  cost:               $%.4f\n", run.TotalCostUSD)
	if len(run.ErrorLog) > 0 {
		fmt.Printf("  errors:\n")
		for _, e := range run.ErrorLog {
			fmt.Printf("    [%s] %s\n", e.Stage, e.Message)
		}
	}
	return nil
}
