// Package orchestrator drives the lifecycle of one analysis job: request
// test generation, wait for companion pull requests, process and score each
// pull request, and persist the aggregate result. Per-item failures degrade
// that item only; the job itself fails only on client construction or
// persistence faults.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shipsure/shipsure/internal/hosting"
	"github.com/shipsure/shipsure/internal/jobs"
	"github.com/shipsure/shipsure/internal/logger"
	"github.com/shipsure/shipsure/internal/pipeline"
	"github.com/shipsure/shipsure/internal/sandbox"
	"github.com/shipsure/shipsure/pkg/types"
)

// Progress checkpoints for the phases before processing; processing itself
// interpolates linearly across [30, 90].
const (
	progressInitializing    = 5
	progressRequestingTests = 10
	progressWaitingForTests = 20
	progressProcessingBase  = 30
	progressProcessingSpan  = 60
)

// CompanionService is the slice of the hosting adapter the orchestrator
// drives directly while requesting and waiting for generated tests
type CompanionService interface {
	FindTestCompanion(ctx context.Context, owner, repo string, number int) (int, bool, error)
	HasPendingTestGenerationRequest(ctx context.Context, owner, repo string, number int) (bool, error)
	RequestTestGeneration(ctx context.Context, owner, repo string, number int, force bool) (string, error)
}

// Processor assembles artifacts and runs remote tests for one pull request
type Processor interface {
	Assemble(ctx context.Context, owner, repo string, number int) (*pipeline.Artifacts, error)
	RunRemoteTests(ctx context.Context, owner, repo string, number, companion int) (*types.TestExecution, error)
}

// Scorer produces a risk record; it is infallible by contract (failures come
// back as degraded records)
type Scorer interface {
	Score(ctx context.Context, artifacts *pipeline.Artifacts, execution *types.TestExecution) *types.RiskRecord
}

// Clients bundles the per-job upstream clients
type Clients struct {
	Hosting   CompanionService
	Processor Processor
	Scorer    Scorer
}

// ClientFactory builds the upstream clients from one job's credentials.
// Construction fails synchronously on a missing credential, before any
// external call is made.
type ClientFactory func(creds types.Credentials) (*Clients, error)

// DefaultClientFactory wires the real hosting, sandbox and analysis adapters
func DefaultClientFactory(creds types.Credentials) (*Clients, error) {
	hostingClient, err := hosting.NewClient(creds.GitHubToken)
	if err != nil {
		return nil, err
	}
	sandboxClient, err := sandbox.NewClient(creds.SandboxAPIKey)
	if err != nil {
		return nil, err
	}
	analyzer, err := pipeline.NewAnalyzer(creds.OpenAIAPIKey)
	if err != nil {
		return nil, err
	}

	return &Clients{
		Hosting:   hostingClient,
		Processor: pipeline.NewProcessor(hostingClient, sandboxClient),
		Scorer:    analyzer,
	}, nil
}

// Params describes one submitted job
type Params struct {
	Owner       string
	Repo        string
	PRNumbers   []int
	Credentials types.Credentials
}

// Orchestrator executes analysis jobs against an injected registry, result
// store and client factory
type Orchestrator struct {
	registry *jobs.Registry
	store    *jobs.ResultStore
	factory  ClientFactory
	poll     PollPolicy
}

// New creates an orchestrator
func New(registry *jobs.Registry, store *jobs.ResultStore, factory ClientFactory, poll PollPolicy) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		store:    store,
		factory:  factory,
		poll:     poll,
	}
}

// workItem tracks one pull request through the job
type workItem struct {
	number    int
	companion int
	hasTests  bool
}

// Run executes one job to its terminal state. It is the job's single writer
// in the registry and must run in its own goroutine; every exit path leaves
// the job either completed or error.
func (o *Orchestrator) Run(ctx context.Context, jobID string, p Params) {
	log := logger.WithJob(jobID)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("analysis aborted by panic: %v", r)
			o.registry.Fail(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	o.registry.SetPhase(jobID, types.JobStatusInitializing, progressInitializing, "Initializing clients...")

	clients, err := o.factory(p.Credentials)
	if err != nil {
		log.Errorf("client construction failed: %v", err)
		o.registry.Fail(jobID, fmt.Sprintf("Error: %v", err))
		return
	}

	items := make([]*workItem, len(p.PRNumbers))
	for i, number := range p.PRNumbers {
		items[i] = &workItem{number: number}
	}

	o.requestTests(ctx, jobID, clients.Hosting, p, items)
	o.waitForTests(ctx, jobID, clients.Hosting, p, items)

	result := o.process(ctx, jobID, clients, p, items)

	if err := o.store.Save(jobID, result); err != nil {
		log.Errorf("failed to persist result: %v", err)
		o.registry.Fail(jobID, fmt.Sprintf("Error: %v", err))
		return
	}

	o.registry.Complete(jobID, o.store.Path(jobID),
		fmt.Sprintf("Analysis complete! Processed %d PR(s).", len(result.PullRequests)))
	log.Infof("analysis completed for %s/%s (%d pull requests)", p.Owner, p.Repo, len(result.PullRequests))
}

// requestTests asks the review bot to generate tests for every pull request
// that has neither an existing companion nor a pending request. The ordering
// of the checks keeps the operation idempotent: re-submitting a job performs
// zero new side effects for items already covered.
func (o *Orchestrator) requestTests(ctx context.Context, jobID string, hostingClient CompanionService, p Params, items []*workItem) {
	o.registry.SetPhase(jobID, types.JobStatusRequestingTests, progressRequestingTests,
		fmt.Sprintf("Requesting unit test generation for %d PR(s)...", len(items)))
	log := logger.WithJob(jobID)

	requested, skipped := 0, 0
	for _, item := range items {
		companion, found, err := hostingClient.FindTestCompanion(ctx, p.Owner, p.Repo, item.number)
		if err != nil {
			log.Errorf("companion lookup failed for PR #%d: %v", item.number, err)
			continue
		}
		if found {
			item.companion = companion
			item.hasTests = true
			skipped++
			continue
		}

		pending, err := hostingClient.HasPendingTestGenerationRequest(ctx, p.Owner, p.Repo, item.number)
		if err != nil {
			log.Errorf("pending-request lookup failed for PR #%d: %v", item.number, err)
			continue
		}
		if pending {
			skipped++
			continue
		}

		handle, err := hostingClient.RequestTestGeneration(ctx, p.Owner, p.Repo, item.number, false)
		if err != nil {
			log.Errorf("test generation request failed for PR #%d: %v", item.number, err)
			continue
		}
		if handle != "" {
			requested++
		} else {
			// The adapter's own duplicate check declined to post.
			skipped++
		}
	}

	log.Infof("test generation: %d requested, %d skipped (already exist/requested)", requested, skipped)
}

// waitForTests polls for companion pull requests that were not found during
// the request phase. Best effort: when the ceiling elapses the job proceeds
// with whatever subset was found.
func (o *Orchestrator) waitForTests(ctx context.Context, jobID string, hostingClient CompanionService, p Params, items []*workItem) {
	o.registry.SetPhase(jobID, types.JobStatusWaitingForTests, progressWaitingForTests,
		"Waiting for generated tests (checking every minute)...")
	log := logger.WithJob(jobID)

	o.poll.Wait(func(elapsed time.Duration) bool {
		ready := true
		for _, item := range items {
			if item.hasTests {
				continue
			}
			companion, found, err := hostingClient.FindTestCompanion(ctx, p.Owner, p.Repo, item.number)
			if err != nil {
				log.Errorf("companion lookup failed for PR #%d: %v", item.number, err)
				ready = false
				continue
			}
			if found {
				item.companion = companion
				item.hasTests = true
				log.Infof("found companion PR #%d for PR #%d", companion, item.number)
			} else {
				ready = false
			}
		}
		if ready {
			return true
		}

		o.registry.SetMessage(jobID,
			fmt.Sprintf("Waiting for tests... (%dm elapsed, checking every minute)", int(elapsed.Minutes())))
		return false
	})

	withTests := 0
	for _, item := range items {
		if item.hasTests {
			withTests++
		}
	}
	if withTests < len(items) {
		o.registry.SetMessage(jobID,
			fmt.Sprintf("Warning: Only %d/%d test PRs found. Continuing with available tests.", withTests, len(items)))
	}
}

// process analyzes pull requests strictly in submission order. Per-item
// failures become error records; the loop never aborts.
func (o *Orchestrator) process(ctx context.Context, jobID string, clients *Clients, p Params, items []*workItem) *types.AggregateResult {
	result := &types.AggregateResult{
		Repository:   fmt.Sprintf("%s/%s", p.Owner, p.Repo),
		PullRequests: make([]types.PullRequestResult, 0, len(items)),
	}

	total := len(items)
	for idx, item := range items {
		progress := progressProcessingBase + idx*progressProcessingSpan/total
		o.registry.SetPhase(jobID, types.JobStatusProcessing, progress,
			fmt.Sprintf("Processing PR #%d (%d/%d)...", item.number, idx+1, total))

		result.PullRequests = append(result.PullRequests, o.processItem(ctx, jobID, clients, p, item))
	}

	result.ProcessedAt = time.Now().UTC()
	return result
}

func (o *Orchestrator) processItem(ctx context.Context, jobID string, clients *Clients, p Params, item *workItem) types.PullRequestResult {
	log := logger.WithJob(jobID)

	artifacts, err := clients.Processor.Assemble(ctx, p.Owner, p.Repo, item.number)
	if err != nil {
		log.Errorf("processing PR #%d failed: %v", item.number, err)
		return errorResult(p, item.number, err)
	}

	var execution *types.TestExecution
	if item.hasTests {
		o.registry.SetMessage(jobID, fmt.Sprintf("Running tests for PR #%d in the sandbox...", item.number))
		execution, err = clients.Processor.RunRemoteTests(ctx, p.Owner, p.Repo, item.number, item.companion)
		if err != nil {
			log.Errorf("processing PR #%d failed: %v", item.number, err)
			return errorResult(p, item.number, err)
		}
	}

	o.registry.SetMessage(jobID, fmt.Sprintf("Analyzing PR #%d...", item.number))
	record := clients.Scorer.Score(ctx, artifacts, execution)

	reviews := mergeReviewUpdates(artifacts.Reviews, record.ReviewUpdates)

	itemResult := types.PullRequestResult{
		Number:         item.number,
		Title:          artifacts.Info.Title,
		Link:           artifacts.Info.HTMLURL,
		Reviews:        reviews,
		Risk:           record.Risk,
		Confidence:     record.Confidence,
		Reasoning:      record.Reasoning,
		RiskCategories: record.Categories,
		SpecificRisks:  record.SpecificRisks,
	}
	if execution != nil {
		itemResult.TestResults = execution
		itemResult.GeneratedTests = execution.GeneratedTests
	}
	return itemResult
}

// mergeReviewUpdates folds the analyzer's suggested updates into the
// existing review list, matched by name. Updates for unknown names are
// silently dropped: the analyzer cannot invent review entries.
func mergeReviewUpdates(reviews []types.ReviewAnnotation, updates map[string]types.ReviewUpdate) []types.ReviewAnnotation {
	if len(updates) == 0 {
		return reviews
	}

	merged := make([]types.ReviewAnnotation, len(reviews))
	copy(merged, reviews)
	for i := range merged {
		update, ok := updates[merged[i].Name]
		if !ok {
			continue
		}
		merged[i].Risk = update.Risk
		if update.Type != "" {
			merged[i].Type = update.Type
		}
		if update.Description != "" {
			merged[i].Description = update.Description
		}
	}
	return merged
}

func errorResult(p Params, number int, err error) types.PullRequestResult {
	return types.PullRequestResult{
		Number:  number,
		Title:   fmt.Sprintf("PR #%d", number),
		Link:    fmt.Sprintf("https://github.com/%s/%s/pull/%d", p.Owner, p.Repo, number),
		Reviews: []types.ReviewAnnotation{},
		Error:   err.Error(),
	}
}
