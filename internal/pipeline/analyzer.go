package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/shipsure/shipsure/config"
	"github.com/shipsure/shipsure/internal/faults"
	"github.com/shipsure/shipsure/internal/logger"
	"github.com/shipsure/shipsure/pkg/types"
)

const (
	defaultModel = "gpt-4o"

	// maxTestsInPrompt bounds how many generated tests are quoted verbatim;
	// the remainder is summarized as an omitted count.
	maxTestsInPrompt = 10

	maxBodyChars = 500

	systemPrompt = "You are a security and code quality analyst. Analyze pull requests and " +
		"provide risk assessments based on code type, test coverage, and automated reviews."
)

// ChatCompleter is the slice of the OpenAI client the analyzer uses.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CountExtractor pulls pass/fail totals out of free-form test runner output.
// The extraction is a best-effort heuristic, so it is replaceable rather than
// load-bearing: a wrong count degrades the prompt, never the job.
type CountExtractor func(output string) (passed, failed int)

var (
	passedRe = regexp.MustCompile(`(\d+)\s+passed`)
	failedRe = regexp.MustCompile(`(\d+)\s+failed`)
)

// ExtractTestCounts is the default CountExtractor: it counts the first
// "N passed" / "N failed" markers in the output
func ExtractTestCounts(output string) (passed, failed int) {
	if m := passedRe.FindStringSubmatch(output); m != nil {
		passed, _ = strconv.Atoi(m[1])
	}
	if m := failedRe.FindStringSubmatch(output); m != nil {
		failed, _ = strconv.Atoi(m[1])
	}
	return passed, failed
}

// Analyzer scores pull-request risk through the analysis service. Failures
// never escape as errors: a failed call yields a degraded low-confidence
// record so the batch always completes.
type Analyzer struct {
	client        ChatCompleter
	model         string
	extractCounts CountExtractor
}

// NewAnalyzer creates an analyzer backed by the OpenAI API. The model is
// read from OPENAI_MODEL.
func NewAnalyzer(apiKey string) (*Analyzer, error) {
	if apiKey == "" {
		return nil, &faults.ConfigurationError{Field: "openai api key"}
	}
	return &Analyzer{
		client:        openai.NewClient(apiKey),
		model:         config.GetEnv(config.EnvOpenAIModel, defaultModel),
		extractCounts: ExtractTestCounts,
	}, nil
}

// NewAnalyzerWithClient creates an analyzer over an existing completion
// client; used by tests and alternative transports
func NewAnalyzerWithClient(client ChatCompleter, model string) *Analyzer {
	if model == "" {
		model = defaultModel
	}
	return &Analyzer{
		client:        client,
		model:         model,
		extractCounts: ExtractTestCounts,
	}
}

// SetCountExtractor replaces the pass/fail extraction heuristic
func (a *Analyzer) SetCountExtractor(fn CountExtractor) {
	if fn != nil {
		a.extractCounts = fn
	}
}

// Score builds the analysis request for one pull request and normalizes the
// response into a risk record. It never returns an error: adapter failures
// and unparseable responses produce a degraded record with risk 50 and zero
// confidence.
func (a *Analyzer) Score(ctx context.Context, artifacts *Artifacts, execution *types.TestExecution) *types.RiskRecord {
	prompt := a.buildPrompt(artifacts, execution)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		logger.Warnf("Analysis call failed for PR #%d: %v", artifacts.Info.Number, err)
		return degradedRecord(fmt.Sprintf("Error in risk analysis: %v", err))
	}
	if len(resp.Choices) == 0 {
		return degradedRecord("Error in risk analysis: empty response")
	}

	var record types.RiskRecord
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &record); err != nil {
		logger.Warnf("Unparseable analysis response for PR #%d: %v", artifacts.Info.Number, err)
		return degradedRecord(fmt.Sprintf("Error in risk analysis: unparseable response: %v", err))
	}

	record.Risk = clampScore(record.Risk)
	record.Confidence = clampScore(record.Confidence)
	return &record
}

func degradedRecord(reason string) *types.RiskRecord {
	return &types.RiskRecord{
		Risk:       50,
		Confidence: 0,
		Reasoning:  reason,
	}
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// trimToRuneBoundary cuts s at no more than max bytes without splitting a
// multi-byte rune. Callers guarantee len(s) > max.
func trimToRuneBoundary(s string, max int) string {
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func (a *Analyzer) buildPrompt(artifacts *Artifacts, execution *types.TestExecution) string {
	info := artifacts.Info

	body := info.Body
	if len(body) > maxBodyChars {
		body = trimToRuneBoundary(body, maxBodyChars)
	}
	if body == "" {
		body = "N/A"
	}

	reviewsJSON, err := json.MarshalIndent(artifacts.Reviews, "", "  ")
	if err != nil {
		reviewsJSON = []byte("[]")
	}

	status, exitCode, output := "no_tests", "N/A", "No tests were run"
	passed, failed := 0, 0
	if execution != nil {
		status = execution.Status
		exitCode = strconv.Itoa(execution.ExitCode)
		output = execution.Output
		passed, failed = a.extractCounts(execution.Output)
	}

	var sb strings.Builder
	sb.WriteString("Analyze this pull request and provide a risk assessment.\n\n")
	sb.WriteString("PR Information:\n")
	fmt.Fprintf(&sb, "- Title: %s\n", info.Title)
	fmt.Fprintf(&sb, "- Description: %s\n", body)
	fmt.Fprintf(&sb, "- Code Type: %s\n\n", classifyCodeType(artifacts.Files))
	fmt.Fprintf(&sb, "Automated Reviews (%d):\n%s\n\n", len(artifacts.Reviews), reviewsJSON)
	fmt.Fprintf(&sb, "Generated Tests (showing first %d with code):\n%s\n\n", maxTestsInPrompt, formatGeneratedTests(execution))
	sb.WriteString("Sandbox Test Results:\n")
	fmt.Fprintf(&sb, "- Status: %s\n", status)
	fmt.Fprintf(&sb, "- Exit Code: %s\n", exitCode)
	fmt.Fprintf(&sb, "- Total Tests: %d\n", passed+failed)
	fmt.Fprintf(&sb, "- Passed: %d\n", passed)
	fmt.Fprintf(&sb, "- Failed: %d\n", failed)
	fmt.Fprintf(&sb, "- Full Test Output:\n%s\n\n", output)
	fmt.Fprintf(&sb, "Code Files (%d):\n%s\n\n", len(artifacts.Files), fileNameSample(artifacts.Files))
	sb.WriteString(responseSchema)
	return sb.String()
}

// formatGeneratedTests quotes the first maxTestsInPrompt generated tests and
// notes how many were omitted
func formatGeneratedTests(execution *types.TestExecution) string {
	if execution == nil || len(execution.GeneratedTests) == 0 {
		return "No tests generated"
	}

	tests := execution.GeneratedTests
	shown := tests
	if len(shown) > maxTestsInPrompt {
		shown = shown[:maxTestsInPrompt]
	}

	var sb strings.Builder
	for i, test := range shown {
		name := test.Test
		if name == "" {
			name = "Unknown Test"
		}
		reason := test.Reason
		if reason == "" {
			reason = "Generated by the review bot"
		}
		fmt.Fprintf(&sb, "\nTest %d: %s\nReason: %s\nCode:\n%s\n---", i+1, name, reason, test.Code)
	}
	if omitted := len(tests) - len(shown); omitted > 0 {
		fmt.Fprintf(&sb, "\n... and %d more test(s)", omitted)
	}
	return sb.String()
}

// classifyCodeType guesses the dominant code category from file names and a
// content sample, steering the risk guidelines in the prompt
func classifyCodeType(files map[string]string) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(strings.ToLower(name))
		sb.WriteByte(' ')
	}
	for i, name := range names {
		if i >= 3 {
			break
		}
		sb.WriteString(strings.ToLower(files[name]))
		sb.WriteByte(' ')
	}
	combined := sb.String()

	switch {
	case containsAny(combined, "auth", "login", "token", "password", "session"):
		return "authentication"
	case containsAny(combined, "db", "database", "sql", "query", "model"):
		return "database"
	case containsAny(combined, "api", "endpoint", "route", "handler"):
		return "api"
	case containsAny(combined, "payment", "stripe", "paypal", "billing"):
		return "payment"
	default:
		return "general"
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

func fileNameSample(files map[string]string) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 10 {
		names = names[:10]
	}
	return strings.Join(names, ", ")
}

const responseSchema = `Provide a JSON response with the following structure:
{
    "risk": <number 0-100>,
    "confidence": <number 0-100>,
    "reasoning": "<explanation>",
    "riskCategories": {
        "security": <number 0-100>,
        "performance": <number 0-100>,
        "maintainability": <number 0-100>,
        "reliability": <number 0-100>,
        "compatibility": <number 0-100>
    },
    "specificRisks": [
        {
            "category": "<security|performance|maintainability|reliability|compatibility>",
            "severity": "<critical|high|medium|low>",
            "description": "<specific risk description>",
            "impact": "<what could go wrong>",
            "recommendation": "<how to mitigate>"
        }
    ],
    "reviewUpdates": {
        "<review_name>": {
            "risk": <number 0-100>,
            "type": "<danger|warning|success|info>",
            "description": "<updated description with specific risk details>"
        }
    }
}

IMPORTANT: The reviewUpdates keys must match the review names provided above. Update each review with appropriate risk scores and descriptions based on your analysis.

Risk Assessment Guidelines:
- Critical (80-100): Authentication, database operations, payment processing, security-sensitive code
- High (60-79): API endpoints, data validation, file operations
- Medium (40-59): Business logic, utilities, helpers
- Low (0-39): UI changes, documentation, configuration

Confidence Guidelines:
- High (80-100): Many tests passed, comprehensive coverage
- Medium (50-79): Some tests passed, moderate coverage
- Low (0-49): Few/no tests passed, limited coverage

Provide at least 3-5 specific risks in the specificRisks array, covering different categories when possible. Each risk should be unique and actionable.

When updating review descriptions, include insights from the generated test code. For example, if a test checks for SQL injection, mention that in the review update and categorize it as a security risk.`
