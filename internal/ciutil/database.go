package ciutil

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

const (
	// StandardCIPort is the port assumed for a CI database when the URL omits it.
	StandardCIPort = "5432"

	// StandardCIDatabase is the database assumed in CI when the URL omits it.
	StandardCIDatabase = "scry_test"

	// StandardCIOptions contains the connection options applied in CI when none are given.
	StandardCIOptions = "sslmode=disable"
)

// DatabaseURLEnvVars lists the variables consulted for a database URL, in order.
var DatabaseURLEnvVars = []string{EnvDatabaseURL, EnvScryTestDBURL, EnvScryDatabaseURL}

// GetTestDatabaseURL returns the first database URL found in DatabaseURLEnvVars,
// or an empty string. In CI the URL is completed with the standard port,
// database name and options when it leaves them out.
func GetTestDatabaseURL(logger *slog.Logger) string {
	dbURL := GetEnvWithFallbacks(DatabaseURLEnvVars, "", logger)
	if dbURL == "" {
		if logger != nil {
			logger.Debug("no database URL environment variables found")
		}
		return ""
	}

	if !IsCI() {
		return dbURL
	}

	standardized, err := standardizeDatabaseURL(dbURL)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to standardize database URL",
				"error", err,
				"url", MaskSensitiveValue(dbURL),
			)
		}
		return dbURL
	}

	if standardized != dbURL && logger != nil {
		logger.Info("standardized database URL for CI environment",
			"original", MaskSensitiveValue(dbURL),
			"standardized", MaskSensitiveValue(standardized),
		)
	}
	return standardized
}

// standardizeDatabaseURL fills in the port, database and options of a
// postgres URL that leaves them out. Credentials are never rewritten.
func standardizeDatabaseURL(dbURL string) (string, error) {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
		return dbURL, nil
	}

	standardized := *parsedURL
	if parsedURL.Port() == "" && parsedURL.Hostname() != "" {
		standardized.Host = parsedURL.Hostname() + ":" + StandardCIPort
	}
	if strings.TrimPrefix(parsedURL.Path, "/") == "" {
		standardized.Path = "/" + StandardCIDatabase
	}
	if parsedURL.RawQuery == "" {
		standardized.RawQuery = StandardCIOptions
	}

	return standardized.String(), nil
}
