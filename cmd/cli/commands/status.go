package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// GetStatusCmd returns the status command
func GetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of an analysis job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := apiClient.GetJobStatus(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("error fetching job status: %w", err)
			}
			return printJSON(cmd, job)
		},
	}
}
