package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsure/shipsure/internal/api/v1/handlers"
	"github.com/shipsure/shipsure/internal/api/v1/services"
	"github.com/shipsure/shipsure/internal/jobs"
	"github.com/shipsure/shipsure/internal/orchestrator"
	"github.com/shipsure/shipsure/internal/pipeline"
	"github.com/shipsure/shipsure/pkg/api/v1/routes"
	"github.com/shipsure/shipsure/pkg/types"
)

// stubHosting satisfies orchestrator.CompanionService with prior test
// coverage elsewhere; here it only needs to let jobs finish.
type stubHosting struct{}

func (stubHosting) FindTestCompanion(context.Context, string, string, int) (int, bool, error) {
	return 200, true, nil
}

func (stubHosting) HasPendingTestGenerationRequest(context.Context, string, string, int) (bool, error) {
	return false, nil
}

func (stubHosting) RequestTestGeneration(context.Context, string, string, int, bool) (string, error) {
	return "handle", nil
}

type stubProcessor struct{}

func (stubProcessor) Assemble(_ context.Context, owner, repo string, number int) (*pipeline.Artifacts, error) {
	return &pipeline.Artifacts{
		Info: &types.PullRequestInfo{
			Number:  number,
			Title:   fmt.Sprintf("PR %d", number),
			HTMLURL: fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, number),
		},
	}, nil
}

func (stubProcessor) RunRemoteTests(context.Context, string, string, int, int) (*types.TestExecution, error) {
	return &types.TestExecution{Status: "completed", Output: "2 passed"}, nil
}

type stubScorer struct{}

func (stubScorer) Score(context.Context, *pipeline.Artifacts, *types.TestExecution) *types.RiskRecord {
	return &types.RiskRecord{Risk: 35, Confidence: 80, Reasoning: "low risk"}
}

type stubBrowse struct{}

func (stubBrowse) ListRepositories(context.Context) ([]types.Repository, error) {
	return []types.Repository{{ID: 1, FullName: "octo/widgets"}}, nil
}

func (stubBrowse) ListPullRequests(context.Context, string, string, string) ([]types.PullRequest, error) {
	return []types.PullRequest{{Number: 7, Title: "Fix login"}}, nil
}

func newTestApp(t *testing.T) (*fiber.App, *jobs.Registry) {
	t.Helper()
	registry := jobs.NewRegistry()
	store, err := jobs.NewResultStore(t.TempDir())
	require.NoError(t, err)

	factory := func(types.Credentials) (*orchestrator.Clients, error) {
		return &orchestrator.Clients{
			Hosting:   stubHosting{},
			Processor: stubProcessor{},
			Scorer:    stubScorer{},
		}, nil
	}
	poll := orchestrator.PollPolicy{
		MaxWait:  time.Minute,
		Interval: time.Second,
		Now:      time.Now,
		Sleep:    func(time.Duration) {},
	}
	orch := orchestrator.New(registry, store, factory, poll)

	browse := func(string) (services.BrowseClient, error) {
		return stubBrowse{}, nil
	}
	service := services.NewAnalysisServiceWithDeps(registry, store, orch, browse)

	app := fiber.New()
	routes.RegisterRoutes(app, handlers.NewAnalysisHandler(service), handlers.NewReposHandler(service))
	return app, registry
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body interface{}) (int, handlers.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope handlers.Response
	if len(raw) > 0 && raw[0] == '{' {
		_ = json.Unmarshal(raw, &envelope)
	}
	return resp.StatusCode, envelope
}

func validRequest() types.AnalyzeRequest {
	return types.AnalyzeRequest{
		Credentials: types.Credentials{
			GitHubToken:   "ghp_test",
			SandboxAPIKey: "dtn_test",
			OpenAIAPIKey:  "sk_test",
		},
		Owner:     "octo",
		Repo:      "widgets",
		PRNumbers: []int{7},
	}
}

func TestSubmitAnalysisRejectsMissingCredentials(t *testing.T) {
	app, _ := newTestApp(t)

	req := validRequest()
	req.SandboxAPIKey = ""

	status, envelope := doJSON(t, app, http.MethodPost, "/api/v1/analyses", req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, handlers.InvalidInputSlug, envelope.Slug)
	assert.Contains(t, envelope.Error, "sandboxApiKey")
}

func TestSubmitAnalysisRejectsEmptyBatch(t *testing.T) {
	app, _ := newTestApp(t)

	req := validRequest()
	req.PRNumbers = nil

	status, envelope := doJSON(t, app, http.MethodPost, "/api/v1/analyses", req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, handlers.InvalidInputSlug, envelope.Slug)
}

func TestSubmitThenStatusIsImmediatelyVisible(t *testing.T) {
	app, _ := newTestApp(t)

	status, envelope := doJSON(t, app, http.MethodPost, "/api/v1/analyses", validRequest())
	require.Equal(t, http.StatusAccepted, status)
	require.Equal(t, handlers.SuccessSlug, envelope.Slug)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var accepted types.AnalyzeAccepted
	require.NoError(t, json.Unmarshal(data, &accepted))
	require.NotEmpty(t, accepted.JobID)

	statusCode, statusEnvelope := doJSON(t, app, http.MethodGet,
		"/api/v1/analyses/"+accepted.JobID+"/status", nil)
	assert.Equal(t, http.StatusOK, statusCode)
	assert.Equal(t, handlers.SuccessSlug, statusEnvelope.Slug)

	// The background job with stub clients finishes quickly; results become
	// servable once the job reports completed.
	require.Eventually(t, func() bool {
		code, _ := doJSON(t, app, http.MethodGet,
			"/api/v1/analyses/"+accepted.JobID+"/results", nil)
		return code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestGetJobStatusUnknownID(t *testing.T) {
	app, _ := newTestApp(t)

	status, envelope := doJSON(t, app, http.MethodGet, "/api/v1/analyses/nope/status", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, handlers.NotFoundSlug, envelope.Slug)
}

func TestGetResultsWhileRunningConflicts(t *testing.T) {
	app, registry := newTestApp(t)

	// A job that exists but never progresses.
	registry.Create("octo_widgets_1", "octo", "widgets")

	status, envelope := doJSON(t, app, http.MethodGet, "/api/v1/analyses/octo_widgets_1/results", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, handlers.ConflictSlug, envelope.Slug)
}

func TestGetResultsUnknownID(t *testing.T) {
	app, _ := newTestApp(t)

	status, envelope := doJSON(t, app, http.MethodGet, "/api/v1/analyses/nope/results", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, handlers.NotFoundSlug, envelope.Slug)
}

func TestGetLatestResultsServesNewestJob(t *testing.T) {
	app, _ := newTestApp(t)

	status, envelope := doJSON(t, app, http.MethodPost, "/api/v1/analyses", validRequest())
	require.Equal(t, http.StatusAccepted, status)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var accepted types.AnalyzeAccepted
	require.NoError(t, json.Unmarshal(data, &accepted))

	require.Eventually(t, func() bool {
		code, latestEnvelope := doJSON(t, app, http.MethodGet, "/api/v1/analyses/latest/results", nil)
		if code != http.StatusOK {
			return false
		}
		latestData, err := json.Marshal(latestEnvelope.Data)
		require.NoError(t, err)
		var result types.AggregateResult
		require.NoError(t, json.Unmarshal(latestData, &result))
		return result.Repository == "octo/widgets"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestGetLatestResultsEmptyStore(t *testing.T) {
	app, _ := newTestApp(t)

	status, envelope := doJSON(t, app, http.MethodGet, "/api/v1/analyses/latest/results", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, handlers.NotFoundSlug, envelope.Slug)
}

func TestListRepositoriesRequiresToken(t *testing.T) {
	app, _ := newTestApp(t)

	status, envelope := doJSON(t, app, http.MethodGet, "/api/v1/repos", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, handlers.InvalidInputSlug, envelope.Slug)
}

func TestListRepositories(t *testing.T) {
	app, _ := newTestApp(t)

	status, envelope := doJSON(t, app, http.MethodGet, "/api/v1/repos?token=ghp_test", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, handlers.SuccessSlug, envelope.Slug)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var repositories []types.Repository
	require.NoError(t, json.Unmarshal(data, &repositories))
	require.Len(t, repositories, 1)
	assert.Equal(t, "octo/widgets", repositories[0].FullName)
}

func TestListPullRequests(t *testing.T) {
	app, _ := newTestApp(t)

	status, envelope := doJSON(t, app, http.MethodGet,
		"/api/v1/repos/octo/widgets/pulls?token=ghp_test", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, handlers.SuccessSlug, envelope.Slug)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var pulls []types.PullRequest
	require.NoError(t, json.Unmarshal(data, &pulls))
	require.Len(t, pulls, 1)
	assert.Equal(t, 7, pulls[0].Number)
}

func TestHealthCheck(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}
