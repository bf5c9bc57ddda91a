package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// pullOutput represents the filtered output for a pull request
type pullOutput struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	State   string `json:"state"`
	User    string `json:"user"`
	HTMLURL string `json:"html_url"`
}

// GetPullsCmd returns the pulls command
func GetPullsCmd() *cobra.Command {
	pullsCmd := &cobra.Command{
		Use:   "pulls <owner> <repo>",
		Short: "List pull requests for a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tokenFromFlagOrEnv(cmd, flagToken, envGitHubToken)
			if err != nil {
				return err
			}
			state, _ := cmd.Flags().GetString("state")

			pulls, err := apiClient.GetPullRequests(context.Background(), token, args[0], args[1], state)
			if err != nil {
				return fmt.Errorf("error fetching pull requests: %w", err)
			}

			output := make([]pullOutput, len(pulls))
			for i, pull := range pulls {
				output[i] = pullOutput{
					Number:  pull.Number,
					Title:   pull.Title,
					State:   pull.State,
					User:    pull.User,
					HTMLURL: pull.HTMLURL,
				}
			}

			return printJSON(cmd, output)
		},
	}

	pullsCmd.Flags().StringP(flagToken, "t", "", "GitHub token (env: GITHUB_TOKEN)")
	pullsCmd.Flags().String("state", "open", "Pull request state filter (open, closed, all)")
	return pullsCmd
}
