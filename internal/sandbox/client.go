// Package sandbox is the adapter for the remote code-execution service that
// runs generated tests against a pull request inside an isolated workspace.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shipsure/shipsure/config"
	"github.com/shipsure/shipsure/internal/faults"
	"github.com/shipsure/shipsure/pkg/types"
)

const (
	defaultAPIURL = "https://app.daytona.io/api"
	serviceName   = "sandbox"

	// executionTimeout bounds one RunTests call. Cloning the repository,
	// applying the companion branch and running the suite can take minutes.
	executionTimeout = 10 * time.Minute
)

// Client is a client for the sandbox execution API
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewClient creates a sandbox client. The base URL can be overridden with
// SANDBOX_API_URL.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, &faults.ConfigurationError{Field: "sandbox api key"}
	}

	return &Client{
		apiKey: apiKey,
		apiURL: strings.TrimRight(config.GetEnv(config.EnvSandboxAPIURL, defaultAPIURL), "/"),
		httpClient: &http.Client{
			Timeout: executionTimeout,
		},
	}, nil
}

type runTestsRequest struct {
	Owner             string `json:"owner"`
	Repo              string `json:"repo"`
	SourcePullRequest int    `json:"sourcePullRequest"`
	TestsPullRequest  int    `json:"testsPullRequest"`
}

// RunTests executes the companion pull request's generated tests against the
// source pull request in an isolated workspace. The call blocks until the
// execution finishes or the client timeout elapses.
func (c *Client) RunTests(ctx context.Context, owner, repo string, sourcePR, testsPR int) (*types.TestExecution, error) {
	payload, err := json.Marshal(runTestsRequest{
		Owner:             owner,
		Repo:              repo,
		SourcePullRequest: sourcePR,
		TestsPullRequest:  testsPR,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}

	url := c.apiURL + "/test-executions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &faults.UpstreamError{Service: serviceName, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &faults.UpstreamError{Service: serviceName, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &faults.UpstreamError{
			Service: serviceName,
			Err:     fmt.Errorf("authentication failed (status %d)", resp.StatusCode),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &faults.UpstreamError{
			Service: serviceName,
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var execution types.TestExecution
	if err := json.Unmarshal(body, &execution); err != nil {
		return nil, &faults.UpstreamError{Service: serviceName, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return &execution, nil
}
