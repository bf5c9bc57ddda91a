// Package pipeline holds the per-pull-request stages of an analysis job: the
// processor that assembles artifacts and the analyzer that scores risk.
package pipeline

import (
	"context"
	"fmt"

	"github.com/shipsure/shipsure/pkg/types"
)

// HostingClient is the subset of the hosting adapter the processor uses
type HostingClient interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*types.PullRequestInfo, error)
	GetChangedFiles(ctx context.Context, owner, repo string, number int) (map[string]string, error)
	ListReviewAnnotations(ctx context.Context, owner, repo string, number int) ([]types.ReviewAnnotation, error)
}

// SandboxClient executes generated tests in a remote isolated workspace
type SandboxClient interface {
	RunTests(ctx context.Context, owner, repo string, sourcePR, testsPR int) (*types.TestExecution, error)
}

// Artifacts is everything assembled for one pull request before analysis
type Artifacts struct {
	Info    *types.PullRequestInfo
	Files   map[string]string
	Reviews []types.ReviewAnnotation
}

// Processor assembles analysis artifacts for one pull request at a time
type Processor struct {
	hosting HostingClient
	sandbox SandboxClient
}

// NewProcessor creates a processor over the given adapters
func NewProcessor(hosting HostingClient, sandbox SandboxClient) *Processor {
	return &Processor{hosting: hosting, sandbox: sandbox}
}

// Assemble fetches pull-request metadata, existing review annotations and
// changed-file contents. The adapters own their retry policies; failures
// surface here as upstream errors for the caller to attach to the work item.
func (p *Processor) Assemble(ctx context.Context, owner, repo string, number int) (*Artifacts, error) {
	info, err := p.hosting.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request #%d: %w", number, err)
	}

	files, err := p.hosting.GetChangedFiles(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching changed files for #%d: %w", number, err)
	}

	reviews, err := p.hosting.ListReviewAnnotations(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching review annotations for #%d: %w", number, err)
	}

	return &Artifacts{
		Info:    info,
		Files:   files,
		Reviews: reviews,
	}, nil
}

// RunRemoteTests executes the companion pull request's generated tests
// against the source pull request. Blocking; the sandbox adapter owns the
// timeout.
func (p *Processor) RunRemoteTests(ctx context.Context, owner, repo string, number, companion int) (*types.TestExecution, error) {
	execution, err := p.sandbox.RunTests(ctx, owner, repo, number, companion)
	if err != nil {
		return nil, fmt.Errorf("running tests for #%d (companion #%d): %w", number, companion, err)
	}
	return execution, nil
}
