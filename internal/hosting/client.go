// Package hosting is the adapter for the code hosting and review platform
// (GitHub REST API). It owns auth headers, retries on throttling and error
// translation, so callers only see typed results and the
// shared error taxonomy.
package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shipsure/shipsure/config"
	"github.com/shipsure/shipsure/internal/faults"
	"github.com/shipsure/shipsure/pkg/types"
)

const (
	defaultAPIURL = "https://api.github.com"
	serviceName   = "github"

	// testGenerationTrigger is the comment that asks the review bot to
	// generate unit tests for a pull request.
	testGenerationTrigger = "@coderabbitai generate unit tests"

	// maxChangedFiles caps how many file patches are assembled per pull
	// request before the artifacts go to analysis.
	maxChangedFiles = 30

	maxRetries = 2
)

// companionTitleKeywords mark pull requests that carry bot-generated tests
var companionTitleKeywords = []string{
	"coderabbit generated unit tests",
	"generated unit tests",
	"unit test",
	"test for pr",
}

// Client provides access to the hosting platform REST API
type Client struct {
	token   string
	apiURL  string
	httpCli *http.Client
}

// NewClient creates a hosting client for the given token. The API base URL
// can be overridden with GITHUB_API_URL for tests and enterprise installs.
func NewClient(token string) (*Client, error) {
	if token == "" {
		return nil, &faults.ConfigurationError{Field: "github token"}
	}

	apiURL := strings.TrimRight(config.GetEnv(config.EnvGitHubAPIURL, defaultAPIURL), "/")

	return &Client{
		token:   token,
		apiURL:  apiURL,
		httpCli: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// do performs one API request, retrying transient upstream statuses, and
// decodes the JSON response into v when v is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, v interface{}) error {
	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		body = data
	}

	endpoint := c.apiURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return &faults.UpstreamError{Service: serviceName, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpCli.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable:
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
			continue
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return &faults.UpstreamError{
				Service: serviceName,
				Err:     fmt.Errorf("authentication failed (status %d)", resp.StatusCode),
			}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return &faults.UpstreamError{
				Service: serviceName,
				Err:     fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
			}
		}

		if v != nil {
			if err := json.Unmarshal(respBody, v); err != nil {
				return &faults.UpstreamError{Service: serviceName, Err: fmt.Errorf("parsing response: %w", err)}
			}
		}
		return nil
	}

	return &faults.UpstreamError{Service: serviceName, Err: lastErr}
}

type ghUser struct {
	Login string `json:"login"`
}

type ghRepo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Owner       ghUser `json:"owner"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	UpdatedAt   string `json:"updated_at"`
}

type ghRef struct {
	Ref string `json:"ref"`
}

type ghPull struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	State        string `json:"state"`
	HTMLURL      string `json:"html_url"`
	User         ghUser `json:"user"`
	Base         ghRef  `json:"base"`
	Head         ghRef  `json:"head"`
	ChangedFiles int    `json:"changed_files"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type ghFile struct {
	Filename string `json:"filename"`
	Patch    string `json:"patch"`
}

type ghComment struct {
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	User    ghUser `json:"user"`
}

type ghReviewComment struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
	Line int    `json:"line"`
	Body string `json:"body"`
	User ghUser `json:"user"`
}

// ListRepositories fetches the repositories visible to the token's user,
// most recently updated first
func (c *Client) ListRepositories(ctx context.Context) ([]types.Repository, error) {
	query := url.Values{}
	query.Set("sort", "updated")
	query.Set("affiliation", "owner,collaborator")

	var raw []ghRepo
	if err := c.do(ctx, http.MethodGet, "/user/repos", query, nil, &raw); err != nil {
		return nil, err
	}

	repos := make([]types.Repository, 0, len(raw))
	for _, r := range raw {
		repos = append(repos, types.Repository{
			ID:          r.ID,
			Name:        r.Name,
			FullName:    r.FullName,
			Owner:       r.Owner.Login,
			Description: r.Description,
			Private:     r.Private,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return repos, nil
}

// ListPullRequests fetches pull requests in the given state. Companion pull
// requests carrying bot-generated tests are filtered out of the listing so
// they are never offered for analysis themselves.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo, state string) ([]types.PullRequest, error) {
	raw, err := c.listPulls(ctx, owner, repo, state)
	if err != nil {
		return nil, err
	}

	pulls := make([]types.PullRequest, 0, len(raw))
	for _, pr := range raw {
		if isCompanion(pr) {
			continue
		}
		pulls = append(pulls, types.PullRequest{
			Number:    pr.Number,
			Title:     pr.Title,
			State:     pr.State,
			HTMLURL:   pr.HTMLURL,
			User:      pr.User.Login,
			CreatedAt: pr.CreatedAt,
			UpdatedAt: pr.UpdatedAt,
		})
	}
	return pulls, nil
}

func (c *Client) listPulls(ctx context.Context, owner, repo, state string) ([]ghPull, error) {
	if state == "" {
		state = "open"
	}
	query := url.Values{}
	query.Set("state", state)
	query.Set("per_page", "100")

	var raw []ghPull
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetPullRequest fetches detailed metadata for one pull request
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*types.PullRequestInfo, error) {
	var raw ghPull
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}

	return &types.PullRequestInfo{
		Number:       raw.Number,
		Title:        raw.Title,
		Body:         raw.Body,
		State:        raw.State,
		HTMLURL:      raw.HTMLURL,
		User:         raw.User.Login,
		BaseRef:      raw.Base.Ref,
		HeadRef:      raw.Head.Ref,
		ChangedFiles: raw.ChangedFiles,
	}, nil
}

// GetChangedFiles fetches the changed files of a pull request as a map from
// filename to unified-diff patch text, capped at maxChangedFiles entries
func (c *Client) GetChangedFiles(ctx context.Context, owner, repo string, number int) (map[string]string, error) {
	query := url.Values{}
	query.Set("per_page", "100")

	var raw []ghFile
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files", owner, repo, number)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}

	files := make(map[string]string, len(raw))
	for _, f := range raw {
		if len(files) >= maxChangedFiles {
			break
		}
		files[f.Filename] = f.Patch
	}
	return files, nil
}

// ListReviewAnnotations fetches the review bot's inline review comments and
// normalizes them into named annotations. The name identifies the annotation
// for later risk updates from the analysis stage.
func (c *Client) ListReviewAnnotations(ctx context.Context, owner, repo string, number int) ([]types.ReviewAnnotation, error) {
	query := url.Values{}
	query.Set("per_page", "100")

	var raw []ghReviewComment
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/comments", owner, repo, number)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}

	annotations := make([]types.ReviewAnnotation, 0, len(raw))
	for _, comment := range raw {
		if !isBotLogin(comment.User.Login) {
			continue
		}
		name := fmt.Sprintf("%s:%d", comment.Path, comment.Line)
		if comment.Path == "" {
			name = fmt.Sprintf("comment-%d", comment.ID)
		}
		annotations = append(annotations, types.ReviewAnnotation{
			Name:        name,
			Type:        classifyAnnotation(comment.Body),
			Description: truncate(comment.Body, 1000),
		})
	}
	return annotations, nil
}

// FindTestCompanion looks for an open companion pull request that carries
// generated tests for the given source pull request. Returns the companion
// number and whether one was found.
func (c *Client) FindTestCompanion(ctx context.Context, owner, repo string, number int) (int, bool, error) {
	raw, err := c.listPulls(ctx, owner, repo, "open")
	if err != nil {
		return 0, false, err
	}

	for _, pr := range raw {
		if !isCompanion(pr) {
			continue
		}
		if referencesPR(pr.Title, number) || referencesPR(pr.Body, number) {
			return pr.Number, true, nil
		}
	}
	return 0, false, nil
}

// referencesPR reports whether s contains a "#<n>" back-reference to the
// given pull request. The digit run must end at n, so "#1011" does not
// match PR 101.
func referencesPR(s string, number int) bool {
	ref := fmt.Sprintf("#%d", number)
	for offset := 0; ; {
		i := strings.Index(s[offset:], ref)
		if i < 0 {
			return false
		}
		end := offset + i + len(ref)
		if end >= len(s) || s[end] < '0' || s[end] > '9' {
			return true
		}
		offset = end
	}
}

// HasPendingTestGenerationRequest reports whether the generation trigger
// comment was already posted on the pull request
func (c *Client) HasPendingTestGenerationRequest(ctx context.Context, owner, repo string, number int) (bool, error) {
	query := url.Values{}
	query.Set("per_page", "100")

	var raw []ghComment
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return false, err
	}

	for _, comment := range raw {
		if strings.Contains(strings.ToLower(comment.Body), testGenerationTrigger) {
			return true, nil
		}
	}
	return false, nil
}

// RequestTestGeneration posts the trigger comment asking the review bot to
// generate unit tests. Unless force is set, it re-checks for an existing
// request first and returns an empty handle without posting when one is
// already pending.
func (c *Client) RequestTestGeneration(ctx context.Context, owner, repo string, number int, force bool) (string, error) {
	if !force {
		pending, err := c.HasPendingTestGenerationRequest(ctx, owner, repo, number)
		if err != nil {
			return "", err
		}
		if pending {
			return "", nil
		}
	}

	var created ghComment
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	payload := map[string]string{"body": testGenerationTrigger}
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &created); err != nil {
		return "", err
	}
	return created.HTMLURL, nil
}

// isCompanion reports whether a pull request is a bot-generated test
// companion based on its author and title
func isCompanion(pr ghPull) bool {
	if !isBotLogin(pr.User.Login) {
		return false
	}
	title := strings.ToLower(pr.Title)
	for _, keyword := range companionTitleKeywords {
		if strings.Contains(title, keyword) {
			return true
		}
	}
	return false
}

func isBotLogin(login string) bool {
	login = strings.ToLower(login)
	return strings.Contains(login, "coderabbit") || strings.Contains(login, "bot")
}

// classifyAnnotation maps a review comment body onto a coarse severity type
func classifyAnnotation(body string) string {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "potential issue") || strings.Contains(lower, "critical") || strings.Contains(lower, "security"):
		return "danger"
	case strings.Contains(lower, "warning") || strings.Contains(lower, "caution"):
		return "warning"
	case strings.Contains(lower, "nitpick") || strings.Contains(lower, "nit:"):
		return "info"
	default:
		return "info"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte rune.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
