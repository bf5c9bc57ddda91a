// Package routes defines the API routes and URL structure
package routes

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/shipsure/shipsure/internal/api/v1/handlers"
)

// API base configuration
const (
	// DefaultPort is the default port for the API
	DefaultPort = "8080"
	// APIv1Prefix is the prefix for all API endpoints
	APIv1Prefix = "/api/v1"
)

// DefaultBaseURL is the default base URL for the API
var DefaultBaseURL = fmt.Sprintf("http://localhost:%s", DefaultPort)

// Route names for lookup
const (
	// Health check
	HealthCheck = "HealthCheck"

	// Repository routes
	GetRepositories = "GetRepositories"
	GetPullRequests = "GetPullRequests"

	// Analysis routes
	SubmitAnalysis   = "SubmitAnalysis"
	GetJobStatus     = "GetJobStatus"
	GetJobResults    = "GetJobResults"
	GetLatestResults = "GetLatestResults"
)

// routeCache stores extracted routes for use prior to compilation
var (
	routeCache     map[string]string
	routeCacheMu   sync.RWMutex
	routeCacheInit sync.Once
)

// RegisterRoutes configures all the v1 routes
//
// NOTE: route ordering is important because routes match in registration
// order. The literal /analyses/latest/results must be registered before the
// parameterized /analyses/:id/results or fiber would bind "latest" as an id.
func RegisterRoutes(
	app *fiber.App,
	analysisHandler *handlers.AnalysisHandler,
	reposHandler *handlers.ReposHandler,
) {
	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	}).Name(HealthCheck)

	// API v1 routes
	v1 := app.Group(APIv1Prefix)

	// Repository endpoints
	repos := v1.Group("/repos")
	repos.Get("/", reposHandler.ListRepositories).Name(GetRepositories)
	repos.Get("/:owner/:repo/pulls", reposHandler.ListPullRequests).Name(GetPullRequests)

	// Analysis endpoints
	analyses := v1.Group("/analyses")
	analyses.Get("/latest/results", analysisHandler.GetJobResults).Name(GetLatestResults)
	analyses.Get("/:id/status", analysisHandler.GetJobStatus).Name(GetJobStatus)
	analyses.Get("/:id/results", analysisHandler.GetJobResults).Name(GetJobResults)
	analyses.Post("/", analysisHandler.SubmitAnalysis).Name(SubmitAnalysis)
}

// initRouteCache initializes the route cache by creating a mock app and extracting routes
func initRouteCache() {
	routeCacheInit.Do(func() {
		routeCache = make(map[string]string)

		// Create a mock app
		app := fiber.New()

		// Create empty handlers for route registration
		mockAnalysisHandler := &handlers.AnalysisHandler{}
		mockReposHandler := &handlers.ReposHandler{}

		RegisterRoutes(app, mockAnalysisHandler, mockReposHandler)

		// Extract routes from the app
		for _, route := range app.GetRoutes() {
			if route.Name != "" {
				routeCache[route.Name] = route.Path
			}
		}
	})
}

// GetRoute returns the route pattern for the given route name
func GetRoute(name string) string {
	routeCacheMu.RLock()
	defer routeCacheMu.RUnlock()

	// Initialize cache if needed
	if routeCache == nil {
		routeCacheMu.RUnlock()
		initRouteCache()
		routeCacheMu.RLock()
	}

	return routeCache[name]
}

// BuildURL builds a URL for the given route name and parameters
func BuildURL(routeName string, params map[string]string, queryParams url.Values) string {
	route := GetRoute(routeName)
	if route == "" {
		return ""
	}

	// Replace parameters in the route
	for param, value := range params {
		route = strings.ReplaceAll(route, ":"+param, value)
	}

	// Remove trailing slash if it's a base endpoint with no parameters
	if strings.HasSuffix(route, "/") && !strings.Contains(route, ":") {
		route = strings.TrimSuffix(route, "/")
	}

	// Add query parameters if any
	if len(queryParams) > 0 {
		route = fmt.Sprintf("%s?%s", route, queryParams.Encode())
	}

	return route
}

// HealthCheckURL returns the URL for the health check endpoint
func HealthCheckURL() string {
	return BuildURL(HealthCheck, nil, nil)
}

// GetRepositoriesURL returns the URL for listing repositories
func GetRepositoriesURL(queryParams url.Values) string {
	return BuildURL(GetRepositories, nil, queryParams)
}

// GetPullRequestsURL returns the URL for listing pull requests
func GetPullRequestsURL(owner, repo string, queryParams url.Values) string {
	return BuildURL(GetPullRequests, map[string]string{"owner": owner, "repo": repo}, queryParams)
}

// SubmitAnalysisURL returns the URL for submitting an analysis
func SubmitAnalysisURL() string {
	return BuildURL(SubmitAnalysis, nil, nil)
}

// GetJobStatusURL returns the URL for a job's status
func GetJobStatusURL(jobID string) string {
	return BuildURL(GetJobStatus, map[string]string{"id": jobID}, nil)
}

// GetJobResultsURL returns the URL for a job's results
func GetJobResultsURL(jobID string) string {
	return BuildURL(GetJobResults, map[string]string{"id": jobID}, nil)
}

// GetLatestResultsURL returns the URL for the most recent results
func GetLatestResultsURL() string {
	return BuildURL(GetLatestResults, nil, nil)
}
