// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names
const (
	EnvPort          = "PORT"
	EnvResultsDir    = "RESULTS_DIR"
	EnvGitHubAPIURL  = "GITHUB_API_URL"
	EnvSandboxAPIURL = "SANDBOX_API_URL"
	EnvOpenAIModel   = "OPENAI_MODEL"
	EnvPollInterval  = "TEST_POLL_INTERVAL"
	EnvPollMaxWait   = "TEST_POLL_MAX_WAIT"
)

// GetEnv retrieves the value of an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// GetEnvDuration retrieves a duration-valued environment variable, falling
// back when unset or unparseable
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// GetEnvInt retrieves an integer-valued environment variable, falling back
// when unset or unparseable
func GetEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// Port returns the API server listen port
func Port() string {
	return GetEnv(EnvPort, "8080")
}

// ResultsDir returns the directory holding persisted job results
func ResultsDir() string {
	return GetEnv(EnvResultsDir, "output")
}
