package types

import (
	"fmt"
	"time"
)

// Credentials carries the per-request secrets for the three upstream services.
// They live only for the duration of one job and are never persisted.
type Credentials struct {
	GitHubToken   string `json:"githubToken"`
	SandboxAPIKey string `json:"sandboxApiKey"`
	OpenAIAPIKey  string `json:"openaiApiKey"`
}

// Validate checks that all credentials are present
func (c *Credentials) Validate() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("githubToken is required")
	}
	if c.SandboxAPIKey == "" {
		return fmt.Errorf("sandboxApiKey is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("openaiApiKey is required")
	}
	return nil
}

// AnalyzeRequest is the body of a job submission
type AnalyzeRequest struct {
	Credentials
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	PRNumbers []int  `json:"prNumbers"`
}

// Validate checks the submission for missing credentials or an empty batch
func (r *AnalyzeRequest) Validate() error {
	if err := r.Credentials.Validate(); err != nil {
		return err
	}
	if r.Owner == "" || r.Repo == "" {
		return fmt.Errorf("owner and repo are required")
	}
	if len(r.PRNumbers) == 0 {
		return fmt.Errorf("no pull requests selected for analysis")
	}
	return nil
}

// AnalyzeAccepted is returned when a job submission is accepted
type AnalyzeAccepted struct {
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// Repository describes one repository visible to the authenticated user
type Repository struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	UpdatedAt   string `json:"updated_at"`
}

// PullRequest is a pull request listing entry
type PullRequest struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	State     string `json:"state"`
	HTMLURL   string `json:"html_url"`
	User      string `json:"user"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// PullRequestInfo is the detailed metadata for one pull request
type PullRequestInfo struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	State        string `json:"state"`
	HTMLURL      string `json:"html_url"`
	User         string `json:"user"`
	BaseRef      string `json:"base_ref"`
	HeadRef      string `json:"head_ref"`
	ChangedFiles int    `json:"changed_files"`
}

// ReviewAnnotation is one normalized review finding attached to a pull request
type ReviewAnnotation struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Risk        int    `json:"risk"`
}

// GeneratedTest is one test produced by the review automation service
type GeneratedTest struct {
	Test   string `json:"test"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// TestExecution is the raw output of running generated tests in the sandbox
type TestExecution struct {
	Status         string          `json:"status"`
	ExitCode       int             `json:"exitCode"`
	Output         string          `json:"output"`
	GeneratedTests []GeneratedTest `json:"generatedTests"`
}

// RiskCategories holds the fixed set of category subscores
type RiskCategories struct {
	Security        int `json:"security"`
	Performance     int `json:"performance"`
	Maintainability int `json:"maintainability"`
	Reliability     int `json:"reliability"`
	Compatibility   int `json:"compatibility"`
}

// SpecificRisk is one concrete risk called out by the analysis service
type SpecificRisk struct {
	Category       string `json:"category"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

// ReviewUpdate is a suggested change to an existing review annotation
type ReviewUpdate struct {
	Risk        int    `json:"risk"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// RiskRecord is the normalized output of the risk analysis stage
type RiskRecord struct {
	Risk          int                     `json:"risk"`
	Confidence    int                     `json:"confidence"`
	Reasoning     string                  `json:"reasoning"`
	Categories    *RiskCategories         `json:"riskCategories,omitempty"`
	SpecificRisks []SpecificRisk          `json:"specificRisks,omitempty"`
	ReviewUpdates map[string]ReviewUpdate `json:"reviewUpdates,omitempty"`
}

// PullRequestResult is the outcome for one pull request within a job. A
// failed item carries Error instead of analysis content but is never dropped
// from the aggregate.
type PullRequestResult struct {
	Number         int                `json:"id"`
	Title          string             `json:"title"`
	Link           string             `json:"link"`
	Reviews        []ReviewAnnotation `json:"reviews"`
	TestResults    *TestExecution     `json:"testResults,omitempty"`
	GeneratedTests []GeneratedTest    `json:"generatedTests,omitempty"`
	Risk           int                `json:"risk"`
	Confidence     int                `json:"confidence"`
	Reasoning      string             `json:"reasoning,omitempty"`
	RiskCategories *RiskCategories    `json:"riskCategories,omitempty"`
	SpecificRisks  []SpecificRisk     `json:"specificRisks,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// AggregateResult is the durable output of one completed job. PullRequests
// preserves submission order and always has one entry per requested pull
// request.
type AggregateResult struct {
	Repository   string              `json:"repository"`
	ProcessedAt  time.Time           `json:"processedAt"`
	PullRequests []PullRequestResult `json:"pullRequests"`
}
