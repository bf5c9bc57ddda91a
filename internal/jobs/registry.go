// Package jobs owns job lifecycle state: the in-memory registry polled by
// status queries and the flat-file store holding completed results.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/shipsure/shipsure/pkg/types"
)

// NewJobID derives a job identifier from the repository and submission time
func NewJobID(owner, repo string, submittedAt time.Time) string {
	return fmt.Sprintf("%s_%s_%d", owner, repo, submittedAt.Unix())
}

// Registry is the process-wide mapping from job id to job record. Reads can
// happen from any request goroutine; each record is written only by the one
// orchestration goroutine that owns the job.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*types.Job
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*types.Job)}
}

// Create inserts a started record for the given job. It must be called on
// the submitting path, before the background goroutine is launched, so a
// status query issued immediately after submission always finds the job.
func (r *Registry) Create(id, owner, repo string) types.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := &types.Job{
		ID:        id,
		Owner:     owner,
		Repo:      repo,
		Status:    types.JobStatusStarted,
		Progress:  0,
		Message:   "Analysis started",
		StartedAt: time.Now().UTC(),
	}
	r.jobs[id] = job
	return *job
}

// Get returns a copy of the job record
func (r *Registry) Get(id string) (types.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return types.Job{}, false
	}
	return *job, true
}

// SetPhase moves the job to a new status with a progress checkpoint and
// message. Progress never goes backwards: a lower value keeps the current
// one so consecutive status reads are monotonic.
func (r *Registry) SetPhase(id string, status types.JobStatus, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}
	job.Status = status
	job.Message = message
	if progress > job.Progress {
		job.Progress = progress
	}
}

// SetMessage overwrites the current-activity message without changing phase
// or progress
func (r *Registry) SetMessage(id, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		job.Message = message
	}
}

// SetProgress advances the progress within the current phase
func (r *Registry) SetProgress(id string, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	job.Message = message
}

// Complete marks the job completed with its persisted result reference.
// Progress is forced to 100 unconditionally.
func (r *Registry) Complete(id, resultsRef, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}
	job.Status = types.JobStatusCompleted
	job.Progress = 100
	job.Message = message
	job.ResultsRef = resultsRef
}

// Fail marks the job as terminally failed, retaining the message for the
// status endpoint
func (r *Registry) Fail(id, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}
	job.Status = types.JobStatusError
	job.Message = message
}
