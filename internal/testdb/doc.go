// Package testdb provides utilities specifically for database testing.
//
// It opens the test database named by the CI environment variables, applies
// an embedded fixture schema with goose, and exposes hooks that reset the
// database around a test: CleanBefore and CleanAfter empty every table and
// restart every sequence, TruncateBefore and TruncateAfter empty only the
// named tables and whatever references them.
package testdb
