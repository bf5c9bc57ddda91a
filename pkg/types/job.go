package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the current phase of an analysis job
type JobStatus int

// Job status constants
const (
	// JobStatusUnknown represents an unknown or invalid job status
	JobStatusUnknown JobStatus = iota
	// JobStatusStarted indicates the job record exists but background work has not begun
	JobStatusStarted
	// JobStatusInitializing indicates the job is constructing its upstream clients
	JobStatusInitializing
	// JobStatusRequestingTests indicates the job is requesting test generation
	JobStatusRequestingTests
	// JobStatusWaitingForTests indicates the job is polling for companion pull requests
	JobStatusWaitingForTests
	// JobStatusProcessing indicates the job is analyzing pull requests
	JobStatusProcessing
	// JobStatusCompleted indicates the job has finished and its result is persisted
	JobStatusCompleted
	// JobStatusError indicates the job failed before producing a result
	JobStatusError
)

var jobStatusNames = []string{
	"unknown",
	"started",
	"initializing",
	"requesting_tests",
	"waiting_for_tests",
	"processing",
	"completed",
	"error",
}

// ParseJobStatus converts a string representation of a job status to JobStatus type
func ParseJobStatus(str string) (JobStatus, error) {
	for i, status := range jobStatusNames {
		if status == str {
			return JobStatus(i), nil
		}
	}
	return JobStatusUnknown, fmt.Errorf("invalid job status: %s", str)
}

func (s JobStatus) String() string {
	if int(s) < 0 || int(s) >= len(jobStatusNames) {
		return "unknown"
	}
	return jobStatusNames[s]
}

// Terminal reports whether the status is a final state
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// MarshalJSON implements the json.Marshaler interface for JobStatus
func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for JobStatus
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseJobStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// Job is the observable record of one analysis run. The registry owns the
// record; callers always receive copies.
type Job struct {
	ID         string    `json:"jobId"`
	Owner      string    `json:"owner"`
	Repo       string    `json:"repo"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"startedAt"`
	ResultsRef string    `json:"resultsRef,omitempty"`
}
