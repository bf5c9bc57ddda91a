// Package services provides the business logic behind the v1 API handlers.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/shipsure/shipsure/internal/hosting"
	"github.com/shipsure/shipsure/internal/jobs"
	"github.com/shipsure/shipsure/internal/logger"
	"github.com/shipsure/shipsure/internal/orchestrator"
	"github.com/shipsure/shipsure/pkg/types"
)

// LatestJobID selects the most recently persisted result instead of a
// specific job.
const LatestJobID = "latest"

// Sentinel errors the handlers translate into HTTP status codes.
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotCompleted = errors.New("job has not completed yet")
	ErrNoResults       = errors.New("no results available")
)

// BrowseClientFactory builds a hosting client for the read-only repository
// and pull request listings, which authenticate per request.
type BrowseClientFactory func(token string) (BrowseClient, error)

// BrowseClient is the listing slice of the hosting adapter
type BrowseClient interface {
	ListRepositories(ctx context.Context) ([]types.Repository, error)
	ListPullRequests(ctx context.Context, owner, repo, state string) ([]types.PullRequest, error)
}

func defaultBrowseFactory(token string) (BrowseClient, error) {
	return hosting.NewClient(token)
}

// AnalysisService submits analysis jobs and serves their status and results
type AnalysisService struct {
	registry *jobs.Registry
	store    *jobs.ResultStore
	orch     *orchestrator.Orchestrator
	browse   BrowseClientFactory
}

// NewAnalysisService creates the service with the production orchestrator
// wiring
func NewAnalysisService(registry *jobs.Registry, store *jobs.ResultStore) *AnalysisService {
	orch := orchestrator.New(registry, store, orchestrator.DefaultClientFactory, orchestrator.DefaultPollPolicy())
	return &AnalysisService{
		registry: registry,
		store:    store,
		orch:     orch,
		browse:   defaultBrowseFactory,
	}
}

// NewAnalysisServiceWithDeps creates the service with an injected
// orchestrator and browse factory for testing
func NewAnalysisServiceWithDeps(registry *jobs.Registry, store *jobs.ResultStore, orch *orchestrator.Orchestrator, browse BrowseClientFactory) *AnalysisService {
	return &AnalysisService{
		registry: registry,
		store:    store,
		orch:     orch,
		browse:   browse,
	}
}

// SubmitAnalysis validates the request, registers the job and starts the
// analysis in the background. The job record exists before this returns, so
// an immediate status lookup always succeeds.
func (s *AnalysisService) SubmitAnalysis(req *types.AnalyzeRequest) (*types.AnalyzeAccepted, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	jobID := jobs.NewJobID(req.Owner, req.Repo, time.Now())
	job := s.registry.Create(jobID, req.Owner, req.Repo)

	params := orchestrator.Params{
		Owner:       req.Owner,
		Repo:        req.Repo,
		PRNumbers:   req.PRNumbers,
		Credentials: req.Credentials,
	}
	go s.orch.Run(context.Background(), jobID, params)

	logger.InfoWithFields("analysis submitted", map[string]interface{}{
		"job_id": jobID,
		"repo":   req.Owner + "/" + req.Repo,
		"prs":    len(req.PRNumbers),
	})

	return &types.AnalyzeAccepted{JobID: jobID, Status: job.Status, Message: job.Message}, nil
}

// GetJobStatus returns the current job record
func (s *AnalysisService) GetJobStatus(jobID string) (*types.Job, error) {
	job, ok := s.registry.Get(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

// GetJobResult loads the persisted aggregate result for a job. The id
// "latest" resolves to the most recently persisted result regardless of the
// registry, which only knows about jobs from the current process lifetime.
func (s *AnalysisService) GetJobResult(jobID string) (*types.AggregateResult, error) {
	if jobID == LatestJobID {
		latest, err := s.store.Latest()
		if err != nil {
			if errors.Is(err, jobs.ErrResultNotFound) {
				return nil, ErrNoResults
			}
			return nil, err
		}
		return s.store.Load(latest)
	}

	if job, ok := s.registry.Get(jobID); ok && !job.Status.Terminal() {
		return nil, ErrJobNotCompleted
	}

	result, err := s.store.Load(jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrResultNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return result, nil
}

// ListRepositories lists the repositories visible to the given token
func (s *AnalysisService) ListRepositories(ctx context.Context, token string) ([]types.Repository, error) {
	client, err := s.browse(token)
	if err != nil {
		return nil, err
	}
	return client.ListRepositories(ctx)
}

// ListPullRequests lists pull requests for a repository, with generated
// test companions filtered out
func (s *AnalysisService) ListPullRequests(ctx context.Context, token, owner, repo, state string) ([]types.PullRequest, error) {
	client, err := s.browse(token)
	if err != nil {
		return nil, err
	}
	return client.ListPullRequests(ctx, owner, repo, state)
}
