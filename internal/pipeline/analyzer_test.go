package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsure/shipsure/pkg/types"
)

// fakeCompleter returns a canned response or error and records the last request
type fakeCompleter struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func sampleArtifacts() *Artifacts {
	return &Artifacts{
		Info: &types.PullRequestInfo{Number: 101, Title: "Add login flow", Body: "Adds session tokens"},
		Files: map[string]string{
			"auth/login.go": "@@ -1 +1 @@ password check",
		},
		Reviews: []types.ReviewAnnotation{
			{Name: "auth/login.go:10", Type: "warning", Description: "token stored in plain text"},
		},
	}
}

func TestExtractTestCounts(t *testing.T) {
	tests := []struct {
		name   string
		output string
		passed int
		failed int
	}{
		{"pytest style", "===== 7 passed, 2 failed in 3.21s =====", 7, 2},
		{"passes only", "12 passed in 0.8s", 12, 0},
		{"no markers", "error: could not collect tests", 0, 0},
		{"surrounding noise", "INFO run complete\n 3 passed \nwarnings: 1 failed assertion retried", 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, failed := ExtractTestCounts(tt.output)
			assert.Equal(t, tt.passed, passed)
			assert.Equal(t, tt.failed, failed)
		})
	}
}

func TestScoreParsesResponse(t *testing.T) {
	fake := &fakeCompleter{content: `{
		"risk": 74,
		"confidence": 82,
		"reasoning": "authentication changes with partial coverage",
		"riskCategories": {"security": 85, "performance": 30, "maintainability": 40, "reliability": 55, "compatibility": 20},
		"specificRisks": [
			{"category": "security", "severity": "high", "description": "token comparison is not constant time", "impact": "credential probing", "recommendation": "use subtle.ConstantTimeCompare"}
		],
		"reviewUpdates": {"auth/login.go:10": {"risk": 80, "type": "danger", "description": "plaintext token confirmed by generated test"}}
	}`}
	a := NewAnalyzerWithClient(fake, "gpt-4o")

	record := a.Score(context.Background(), sampleArtifacts(), &types.TestExecution{Status: "completed", Output: "5 passed"})
	require.NotNil(t, record)
	assert.Equal(t, 74, record.Risk)
	assert.Equal(t, 82, record.Confidence)
	require.NotNil(t, record.Categories)
	assert.Equal(t, 85, record.Categories.Security)
	require.Len(t, record.SpecificRisks, 1)
	assert.Contains(t, record.ReviewUpdates, "auth/login.go:10")

	// The request must ask for a JSON object and carry the system persona.
	require.NotNil(t, fake.lastReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, fake.lastReq.ResponseFormat.Type)
	require.Len(t, fake.lastReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, fake.lastReq.Messages[0].Role)
}

func TestScoreDegradesOnError(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("rate limited")}
	a := NewAnalyzerWithClient(fake, "")

	record := a.Score(context.Background(), sampleArtifacts(), nil)
	require.NotNil(t, record)
	assert.Equal(t, 50, record.Risk)
	assert.Equal(t, 0, record.Confidence)
	assert.Contains(t, record.Reasoning, "rate limited")
}

func TestScoreDegradesOnUnparseableResponse(t *testing.T) {
	fake := &fakeCompleter{content: "sorry, I cannot answer in JSON"}
	a := NewAnalyzerWithClient(fake, "")

	record := a.Score(context.Background(), sampleArtifacts(), nil)
	assert.Equal(t, 50, record.Risk)
	assert.Equal(t, 0, record.Confidence)
}

func TestScoreClampsScores(t *testing.T) {
	fake := &fakeCompleter{content: `{"risk": 250, "confidence": -3, "reasoning": "x"}`}
	a := NewAnalyzerWithClient(fake, "")

	record := a.Score(context.Background(), sampleArtifacts(), nil)
	assert.Equal(t, 100, record.Risk)
	assert.Equal(t, 0, record.Confidence)
}

func TestBuildPromptTruncatesGeneratedTests(t *testing.T) {
	execution := &types.TestExecution{Status: "completed", Output: "14 passed"}
	for i := 0; i < 14; i++ {
		execution.GeneratedTests = append(execution.GeneratedTests, types.GeneratedTest{
			Test: fmt.Sprintf("test_case_%d", i),
			Code: "assert true",
		})
	}

	a := NewAnalyzerWithClient(&fakeCompleter{content: "{}"}, "")
	prompt := a.buildPrompt(sampleArtifacts(), execution)

	assert.Contains(t, prompt, "test_case_9")
	assert.NotContains(t, prompt, "test_case_10")
	assert.Contains(t, prompt, "... and 4 more test(s)")
}

func TestBuildPromptWithoutExecution(t *testing.T) {
	a := NewAnalyzerWithClient(&fakeCompleter{content: "{}"}, "")
	prompt := a.buildPrompt(sampleArtifacts(), nil)

	assert.Contains(t, prompt, "No tests generated")
	assert.Contains(t, prompt, "Status: no_tests")
	assert.Contains(t, prompt, "No tests were run")
}

func TestBuildPromptTruncatesDescription(t *testing.T) {
	artifacts := sampleArtifacts()
	artifacts.Info.Body = strings.Repeat("x", 2000)

	a := NewAnalyzerWithClient(&fakeCompleter{content: "{}"}, "")
	prompt := a.buildPrompt(artifacts, nil)

	assert.Contains(t, prompt, strings.Repeat("x", maxBodyChars))
	assert.NotContains(t, prompt, strings.Repeat("x", maxBodyChars+1))
}

func TestBuildPromptTruncatesDescriptionOnRuneBoundary(t *testing.T) {
	artifacts := sampleArtifacts()
	// Place a two-byte rune across the cut point.
	artifacts.Info.Body = strings.Repeat("x", maxBodyChars-1) + "é" + strings.Repeat("y", 100)

	a := NewAnalyzerWithClient(&fakeCompleter{content: "{}"}, "")
	prompt := a.buildPrompt(artifacts, nil)

	assert.True(t, utf8.ValidString(prompt))
	assert.NotContains(t, prompt, "é")
}

func TestTrimToRuneBoundary(t *testing.T) {
	s := "abécd"
	assert.Equal(t, "ab", trimToRuneBoundary(s, 3))
	assert.Equal(t, "abé", trimToRuneBoundary(s, 4))
	assert.Equal(t, "abéc", trimToRuneBoundary(s, 5))
}

func TestClassifyCodeType(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		expected string
	}{
		{"authentication", map[string]string{"auth/session.go": ""}, "authentication"},
		{"database", map[string]string{"store/query.go": "SELECT 1"}, "database"},
		{"api", map[string]string{"server/handler.go": ""}, "api"},
		{"general", map[string]string{"docs/readme.md": "hello"}, "general"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyCodeType(tt.files))
		})
	}
}

func TestSetCountExtractor(t *testing.T) {
	a := NewAnalyzerWithClient(&fakeCompleter{content: "{}"}, "")
	a.SetCountExtractor(func(string) (int, int) { return 99, 1 })

	prompt := a.buildPrompt(sampleArtifacts(), &types.TestExecution{Output: "anything"})
	assert.Contains(t, prompt, "Passed: 99")
	assert.Contains(t, prompt, "Failed: 1")
	assert.Contains(t, prompt, "Total Tests: 100")
}
