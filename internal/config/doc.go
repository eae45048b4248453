// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the database, logging, cleanup and retry settings needed by the
// reset tooling while keeping configuration details separate from the
// components that consume them.
//
// Precedence, highest first: explicit overrides (command line flags),
// SCRY_-prefixed environment variables, the optional YAML config file,
// built-in defaults. When no database URL is configured the CI variable
// chain from package ciutil is consulted.
package config
