// Package ciutil provides utilities for CI and environment-specific functionality.
//
// It centralizes CI detection, the ordered list of environment variables that may
// carry a database URL, and masking of credentials before values reach the logs.
// Both the configuration loader and the integration test harness resolve the
// database URL through this package, so a CI job only has to export one variable.
package ciutil
