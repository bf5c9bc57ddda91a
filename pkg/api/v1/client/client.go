// Package client provides the API client for the analysis server
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/shipsure/shipsure/pkg/api/v1/routes"
	"github.com/shipsure/shipsure/pkg/types"
)

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// Client is the interface for the API client
type Client interface {
	// Health Check
	HealthCheck(ctx context.Context) (map[string]string, error)

	// Repository Endpoints
	GetRepositories(ctx context.Context, token string) ([]types.Repository, error)
	GetPullRequests(ctx context.Context, token, owner, repo, state string) ([]types.PullRequest, error)

	// Analysis Endpoints
	SubmitAnalysis(ctx context.Context, req *types.AnalyzeRequest) (*types.AnalyzeAccepted, error)
	GetJobStatus(ctx context.Context, jobID string) (*types.Job, error)
	GetJobResults(ctx context.Context, jobID string) (*types.AggregateResult, error)
	GetLatestResults(ctx context.Context) (*types.AggregateResult, error)
}

var _ Client = &APIClient{}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: routes.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL string
	timeout time.Duration
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	// Validate the base URL
	_, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &APIClient{
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
	}, nil
}

// envelope mirrors the server's response wrapper with the payload left raw
type envelope struct {
	Slug  string          `json:"slug"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

// createAgent creates a new Fiber Agent for the given method and endpoint
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string, body interface{}) (*fiber.Agent, error) {
	fullURL := c.baseURL + endpoint

	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	// Set timeout from context or client default
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}

	agent.Set("Content-Type", "application/json")
	agent.Set("Accept", "application/json")

	if body != nil {
		agent.JSON(body)
	}

	return agent, nil
}

// doRequest sends the HTTP request and decodes the enveloped payload into v
func (c *APIClient) doRequest(agent *fiber.Agent, v interface{}) error {
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending request: %w", errs[0])
	}

	if statusCode < 200 || statusCode >= 300 {
		// Prefer the server's error message when the body is an envelope.
		var env envelope
		if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
			return &fiber.Error{Code: statusCode, Message: env.Error}
		}
		return &fiber.Error{
			Code:    statusCode,
			Message: string(body),
		}
	}

	if v == nil || len(body) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("error decoding response data: %w", err)
		}
		return nil
	}

	// Unwrapped responses, e.g. the health check.
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// executeRequest creates an agent, sends the request, and processes the response
func (c *APIClient) executeRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	agent, err := c.createAgent(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	return c.doRequest(agent, response)
}

// HealthCheck checks the health of the API server
func (c *APIClient) HealthCheck(ctx context.Context) (map[string]string, error) {
	var response map[string]string
	err := c.executeRequest(ctx, http.MethodGet, routes.HealthCheckURL(), nil, &response)
	return response, err
}

// GetRepositories lists repositories visible to the token
func (c *APIClient) GetRepositories(ctx context.Context, token string) ([]types.Repository, error) {
	query := url.Values{}
	query.Set("token", token)

	var repositories []types.Repository
	err := c.executeRequest(ctx, http.MethodGet, routes.GetRepositoriesURL(query), nil, &repositories)
	return repositories, err
}

// GetPullRequests lists pull requests for one repository
func (c *APIClient) GetPullRequests(ctx context.Context, token, owner, repo, state string) ([]types.PullRequest, error) {
	query := url.Values{}
	query.Set("token", token)
	if state != "" {
		query.Set("state", state)
	}

	var pulls []types.PullRequest
	err := c.executeRequest(ctx, http.MethodGet, routes.GetPullRequestsURL(owner, repo, query), nil, &pulls)
	return pulls, err
}

// SubmitAnalysis submits a new analysis job
func (c *APIClient) SubmitAnalysis(ctx context.Context, req *types.AnalyzeRequest) (*types.AnalyzeAccepted, error) {
	var accepted types.AnalyzeAccepted
	if err := c.executeRequest(ctx, http.MethodPost, routes.SubmitAnalysisURL(), req, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// GetJobStatus returns the current status of a job
func (c *APIClient) GetJobStatus(ctx context.Context, jobID string) (*types.Job, error) {
	var job types.Job
	if err := c.executeRequest(ctx, http.MethodGet, routes.GetJobStatusURL(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobResults returns the aggregate result of a completed job
func (c *APIClient) GetJobResults(ctx context.Context, jobID string) (*types.AggregateResult, error) {
	var result types.AggregateResult
	if err := c.executeRequest(ctx, http.MethodGet, routes.GetJobResultsURL(jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLatestResults returns the most recently persisted aggregate result
func (c *APIClient) GetLatestResults(ctx context.Context) (*types.AggregateResult, error) {
	var result types.AggregateResult
	if err := c.executeRequest(ctx, http.MethodGet, routes.GetLatestResultsURL(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
