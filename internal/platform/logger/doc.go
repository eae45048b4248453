// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels. In CI environments the JSON handler is wrapped by a
// CIHandler that stamps every record with provider metadata, so cleanup runs can be
// correlated with the build that triggered them.
//
// Loggers travel through contexts with WithLogger and FromContext; code that receives
// a context should prefer FromContext over the package-level slog functions.
package logger
