package ciutil

import (
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// Common environment variable names used across the codebase.
const (
	// CI environment detection variables
	EnvCI              = "CI"
	EnvGitHubActions   = "GITHUB_ACTIONS"
	EnvGitHubWorkspace = "GITHUB_WORKSPACE"
	EnvGitLabCI        = "GITLAB_CI"
	EnvJenkinsURL      = "JENKINS_URL"
	EnvTravisCI        = "TRAVIS"
	EnvCircleCI        = "CIRCLECI"

	// Database connection environment variables
	EnvDatabaseURL     = "DATABASE_URL"
	EnvScryTestDBURL   = "SCRY_TEST_DB_URL" // Preferred standardized name
	EnvScryDatabaseURL = "SCRY_DATABASE_URL"
)

// IsCI returns true if the current environment is a CI environment.
// It checks for common CI environment variables across different CI providers.
func IsCI() bool {
	return os.Getenv(EnvCI) != "" ||
		os.Getenv(EnvGitHubActions) != "" ||
		os.Getenv(EnvGitLabCI) != "" ||
		os.Getenv(EnvJenkinsURL) != "" ||
		os.Getenv(EnvTravisCI) != "" ||
		os.Getenv(EnvCircleCI) != ""
}

// GetEnvWithFallbacks returns the value of the first non-empty environment variable
// from the provided list. If no environment variables are set, it returns the defaultValue.
func GetEnvWithFallbacks(envVars []string, defaultValue string, logger *slog.Logger) string {
	for i, envVar := range envVars {
		if val := os.Getenv(envVar); val != "" {
			if i > 0 && logger != nil {
				logger.Debug("using fallback environment variable",
					"used_var", envVar,
					"preferred_var", envVars[0],
					"value", MaskSensitiveValue(val),
				)
			}
			return val
		}
	}
	return defaultValue
}

// MaskSensitiveValue masks sensitive data in values like database URLs to prevent
// exposing credentials in logs. This should be used whenever potentially sensitive
// environment variable values are logged.
func MaskSensitiveValue(value string) string {
	if strings.Contains(value, "://") {
		u, err := url.Parse(value)
		if err == nil && u.User != nil {
			if _, hasPassword := u.User.Password(); hasPassword {
				u.User = url.UserPassword(u.User.Username(), "****")
				// url.URL.String escapes the asterisks
				return strings.Replace(u.String(), "%2A%2A%2A%2A", "****", 1)
			}
		}
		return value
	}

	lower := strings.ToLower(value)
	if len(value) > 8 && (strings.Contains(lower, "key") ||
		strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret")) {
		return value[:4] + "****" + value[len(value)-4:]
	}

	return value
}
