// Package client provides unit tests for the analysis API client.
//
// The tests use httptest to create a mock server that simulates the API,
// allowing the client to be tested without requiring an actual API server.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsure/shipsure/pkg/types"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		opts    *Options
		wantErr bool
	}{
		{
			name:    "nil options uses defaults",
			opts:    nil,
			wantErr: false,
		},
		{
			name: "custom options",
			opts: &Options{
				BaseURL: "http://example.com:9999",
				Timeout: 5 * time.Second,
			},
			wantErr: false,
		},
		{
			name: "invalid base URL",
			opts: &Options{
				BaseURL: "://not-a-url",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, client)
		})
	}
}

// newServerAndClient starts a mock API server from the given handler map
// keyed by "METHOD path".
func newServerAndClient(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, Client) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := routes[r.Method+" "+r.URL.Path]; ok {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	apiClient, err := NewClient(&Options{BaseURL: server.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return server, apiClient
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, slug string, errMsg string, data interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
		"slug":  slug,
		"error": errMsg,
		"data":  data,
	}))
}

func TestHealthCheck(t *testing.T) {
	_, apiClient := newServerAndClient(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		},
	})

	health, err := apiClient.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])
}

func TestGetRepositories(t *testing.T) {
	_, apiClient := newServerAndClient(t, map[string]http.HandlerFunc{
		"GET /api/v1/repos": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "ghp_test", r.URL.Query().Get("token"))
			writeEnvelope(t, w, http.StatusOK, "success", "", []types.Repository{
				{ID: 1, Name: "widgets", FullName: "octo/widgets"},
			})
		},
	})

	repositories, err := apiClient.GetRepositories(context.Background(), "ghp_test")
	require.NoError(t, err)
	require.Len(t, repositories, 1)
	assert.Equal(t, "octo/widgets", repositories[0].FullName)
}

func TestGetPullRequests(t *testing.T) {
	_, apiClient := newServerAndClient(t, map[string]http.HandlerFunc{
		"GET /api/v1/repos/octo/widgets/pulls": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "open", r.URL.Query().Get("state"))
			writeEnvelope(t, w, http.StatusOK, "success", "", []types.PullRequest{
				{Number: 7, Title: "Fix login", State: "open"},
			})
		},
	})

	pulls, err := apiClient.GetPullRequests(context.Background(), "ghp_test", "octo", "widgets", "open")
	require.NoError(t, err)
	require.Len(t, pulls, 1)
	assert.Equal(t, 7, pulls[0].Number)
}

func TestSubmitAnalysis(t *testing.T) {
	_, apiClient := newServerAndClient(t, map[string]http.HandlerFunc{
		"POST /api/v1/analyses": func(w http.ResponseWriter, r *http.Request) {
			var req types.AnalyzeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "octo", req.Owner)
			assert.Equal(t, []int{7, 9}, req.PRNumbers)

			writeEnvelope(t, w, http.StatusAccepted, "success", "", types.AnalyzeAccepted{
				JobID:  "octo_widgets_1700000000",
				Status: types.JobStatusStarted,
			})
		},
	})

	accepted, err := apiClient.SubmitAnalysis(context.Background(), &types.AnalyzeRequest{
		Credentials: types.Credentials{GitHubToken: "a", SandboxAPIKey: "b", OpenAIAPIKey: "c"},
		Owner:       "octo",
		Repo:        "widgets",
		PRNumbers:   []int{7, 9},
	})
	require.NoError(t, err)
	assert.Equal(t, "octo_widgets_1700000000", accepted.JobID)
	assert.Equal(t, types.JobStatusStarted, accepted.Status)
}

func TestGetJobStatus(t *testing.T) {
	_, apiClient := newServerAndClient(t, map[string]http.HandlerFunc{
		"GET /api/v1/analyses/octo_widgets_1/status": func(w http.ResponseWriter, _ *http.Request) {
			writeEnvelope(t, w, http.StatusOK, "success", "", types.Job{
				ID:       "octo_widgets_1",
				Status:   types.JobStatusProcessing,
				Progress: 45,
				Message:  "Processing PR #7 (1/2)...",
			})
		},
	})

	job, err := apiClient.GetJobStatus(context.Background(), "octo_widgets_1")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusProcessing, job.Status)
	assert.Equal(t, 45, job.Progress)
}

func TestGetJobStatusNotFound(t *testing.T) {
	_, apiClient := newServerAndClient(t, map[string]http.HandlerFunc{
		"GET /api/v1/analyses/nope/status": func(w http.ResponseWriter, _ *http.Request) {
			writeEnvelope(t, w, http.StatusNotFound, "not-found", "unknown job: nope", nil)
		},
	})

	_, err := apiClient.GetJobStatus(context.Background(), "nope")
	require.Error(t, err)

	var fiberErr *fiber.Error
	require.ErrorAs(t, err, &fiberErr)
	assert.Equal(t, http.StatusNotFound, fiberErr.Code)
	assert.Equal(t, "unknown job: nope", fiberErr.Message)
}

func TestGetJobResults(t *testing.T) {
	_, apiClient := newServerAndClient(t, map[string]http.HandlerFunc{
		"GET /api/v1/analyses/octo_widgets_1/results": func(w http.ResponseWriter, _ *http.Request) {
			writeEnvelope(t, w, http.StatusOK, "success", "", types.AggregateResult{
				Repository: "octo/widgets",
				PullRequests: []types.PullRequestResult{
					{Number: 7, Title: "Fix login", Risk: 35, Confidence: 80},
				},
			})
		},
	})

	result, err := apiClient.GetJobResults(context.Background(), "octo_widgets_1")
	require.NoError(t, err)
	assert.Equal(t, "octo/widgets", result.Repository)
	require.Len(t, result.PullRequests, 1)
	assert.Equal(t, 35, result.PullRequests[0].Risk)
}

func TestGetLatestResults(t *testing.T) {
	_, apiClient := newServerAndClient(t, map[string]http.HandlerFunc{
		"GET /api/v1/analyses/latest/results": func(w http.ResponseWriter, _ *http.Request) {
			writeEnvelope(t, w, http.StatusOK, "success", "", types.AggregateResult{
				Repository: "octo/gadgets",
			})
		},
	})

	result, err := apiClient.GetLatestResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octo/gadgets", result.Repository)
}
