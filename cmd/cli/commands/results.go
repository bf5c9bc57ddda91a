package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shipsure/shipsure/pkg/types"
)

// GetResultsCmd returns the results command
func GetResultsCmd() *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results [job-id]",
		Short: "Fetch the results of a completed analysis job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, _ := cmd.Flags().GetBool("latest")

			var result *types.AggregateResult
			var err error
			switch {
			case latest && len(args) > 0:
				return fmt.Errorf("either a job id or --latest, not both")
			case latest:
				result, err = apiClient.GetLatestResults(context.Background())
			case len(args) == 1:
				result, err = apiClient.GetJobResults(context.Background(), args[0])
			default:
				return fmt.Errorf("a job id or --latest is required")
			}
			if err != nil {
				return fmt.Errorf("error fetching results: %w", err)
			}

			return printJSON(cmd, result)
		},
	}

	resultsCmd.Flags().BoolP("latest", "l", false, "Fetch the most recently completed results")
	return resultsCmd
}
