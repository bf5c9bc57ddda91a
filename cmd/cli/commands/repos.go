package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// repoOutput represents the filtered output for a repository
type repoOutput struct {
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	UpdatedAt   string `json:"updated_at"`
}

// GetReposCmd returns the repos command
func GetReposCmd() *cobra.Command {
	reposCmd := &cobra.Command{
		Use:   "repos",
		Short: "List repositories visible to your GitHub token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := tokenFromFlagOrEnv(cmd, flagToken, envGitHubToken)
			if err != nil {
				return err
			}

			repositories, err := apiClient.GetRepositories(context.Background(), token)
			if err != nil {
				return fmt.Errorf("error fetching repositories: %w", err)
			}

			output := make([]repoOutput, len(repositories))
			for i, repo := range repositories {
				output[i] = repoOutput{
					FullName:    repo.FullName,
					Description: repo.Description,
					Private:     repo.Private,
					UpdatedAt:   repo.UpdatedAt,
				}
			}

			return printJSON(cmd, output)
		},
	}

	reposCmd.Flags().StringP(flagToken, "t", "", "GitHub token (env: GITHUB_TOKEN)")
	return reposCmd
}
