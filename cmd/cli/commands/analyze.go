package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shipsure/shipsure/pkg/types"
)

// watchInterval is how often --watch polls the job status
var watchInterval = 5 * time.Second

// GetAnalyzeCmd returns the analyze command
func GetAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze <owner> <repo>",
		Short: "Submit pull requests for risk analysis",
		Long: `Submit one or more pull requests for automated risk analysis. The server
requests unit test generation, runs the generated tests in a sandbox, and
scores each pull request. Use --watch to follow the job until it finishes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prNumbers, _ := cmd.Flags().GetIntSlice("pr")
			if len(prNumbers) == 0 {
				return fmt.Errorf("at least one --pr is required")
			}

			githubToken, err := tokenFromFlagOrEnv(cmd, flagToken, envGitHubToken)
			if err != nil {
				return err
			}
			sandboxKey, err := tokenFromFlagOrEnv(cmd, "sandbox-key", envSandboxAPIKey)
			if err != nil {
				return err
			}
			openaiKey, err := tokenFromFlagOrEnv(cmd, "openai-key", envOpenAIAPIKey)
			if err != nil {
				return err
			}

			req := &types.AnalyzeRequest{
				Credentials: types.Credentials{
					GitHubToken:   githubToken,
					SandboxAPIKey: sandboxKey,
					OpenAIAPIKey:  openaiKey,
				},
				Owner:     args[0],
				Repo:      args[1],
				PRNumbers: prNumbers,
			}

			accepted, err := apiClient.SubmitAnalysis(context.Background(), req)
			if err != nil {
				return fmt.Errorf("error submitting analysis: %w", err)
			}

			watch, _ := cmd.Flags().GetBool("watch")
			if !watch {
				return printJSON(cmd, accepted)
			}

			cmd.Printf("Job %s submitted, watching...\n", accepted.JobID)
			return watchJob(cmd, accepted.JobID)
		},
	}

	analyzeCmd.Flags().IntSlice("pr", nil, "Pull request number to analyze (repeatable)")
	analyzeCmd.Flags().StringP(flagToken, "t", "", "GitHub token (env: GITHUB_TOKEN)")
	analyzeCmd.Flags().String("sandbox-key", "", "Sandbox API key (env: SANDBOX_API_KEY)")
	analyzeCmd.Flags().String("openai-key", "", "OpenAI API key (env: OPENAI_API_KEY)")
	analyzeCmd.Flags().BoolP("watch", "w", false, "Poll the job until it finishes, then print the results")
	return analyzeCmd
}

// watchJob polls the job status until it reaches a terminal state and then
// prints the persisted results
func watchJob(cmd *cobra.Command, jobID string) error {
	lastMessage := ""
	for {
		job, err := apiClient.GetJobStatus(context.Background(), jobID)
		if err != nil {
			return fmt.Errorf("error fetching job status: %w", err)
		}

		if job.Message != lastMessage {
			cmd.Printf("[%3d%%] %s: %s\n", job.Progress, job.Status, job.Message)
			lastMessage = job.Message
		}

		if job.Status.Terminal() {
			if job.Status == types.JobStatusError {
				return fmt.Errorf("job failed: %s", job.Message)
			}
			break
		}
		time.Sleep(watchInterval)
	}

	result, err := apiClient.GetJobResults(context.Background(), jobID)
	if err != nil {
		return fmt.Errorf("error fetching results: %w", err)
	}
	return printJSON(cmd, result)
}
