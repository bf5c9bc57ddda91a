// Package commands implements the CLI subcommands.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shipsure/shipsure/pkg/api/v1/client"
	"github.com/shipsure/shipsure/pkg/api/v1/routes"
)

// flag names
const (
	flagServerAddress = "server-address"
	flagToken         = "token"
)

// environment variable names
const (
	envServerAddress = "SHIPSURE_SERVER_ADDRESS"
	envGitHubToken   = "GITHUB_TOKEN"
	envSandboxAPIKey = "SANDBOX_API_KEY"
	envOpenAIAPIKey  = "OPENAI_API_KEY"
)

var (
	// apiClient is the shared API client instance; tests replace it
	apiClient client.Client
	// serverAddress holds the target API server address. Flag parsing sets this.
	serverAddress string
)

// initClient initializes the API client
func initClient() error {
	var err error
	opts := client.DefaultOptions()
	opts.BaseURL = serverAddress

	apiClient, err = client.NewClient(opts)
	return err
}

func init() {
	// Set a basic default for the flag. PersistentPreRunE handles the env var override.
	RootCmd.PersistentFlags().StringVarP(&serverAddress, flagServerAddress, "s", routes.DefaultBaseURL,
		fmt.Sprintf("Address of the analysis API server (env: %s)", envServerAddress))

	RootCmd.AddCommand(GetReposCmd())
	RootCmd.AddCommand(GetPullsCmd())
	RootCmd.AddCommand(GetAnalyzeCmd())
	RootCmd.AddCommand(GetStatusCmd())
	RootCmd.AddCommand(GetResultsCmd())
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "shipsure",
	Short: "ShipSure CLI - analyze pull request risk before merging",
	Long: `ShipSure CLI submits pull requests for automated risk analysis and
retrieves job status and results from the ShipSure API server.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Flag > env var > default.
		if !cmd.Flags().Changed(flagServerAddress) {
			if envAddr := os.Getenv(envServerAddress); envAddr != "" {
				serverAddress = envAddr
			}
		}

		if serverAddress == "" {
			return fmt.Errorf("server address cannot be empty")
		}
		if apiClient != nil {
			// Already injected (tests).
			return nil
		}
		return initClient()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return RootCmd.Execute()
}

// printJSON pretty prints v on the command's output stream
func printJSON(cmd *cobra.Command, v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	cmd.Println(string(prettyJSON))
	return nil
}

// tokenFromFlagOrEnv resolves a secret from a flag, falling back to the
// given environment variable
func tokenFromFlagOrEnv(cmd *cobra.Command, flag, envVar string) (string, error) {
	value, _ := cmd.Flags().GetString(flag)
	if value == "" {
		value = os.Getenv(envVar)
	}
	if value == "" {
		return "", fmt.Errorf("--%s flag or %s environment variable is required", flag, envVar)
	}
	return value, nil
}
