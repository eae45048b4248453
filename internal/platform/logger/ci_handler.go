package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/phrazzld/scry-dbreset/internal/ciutil"
)

// CIHandler is a custom slog.Handler that adds CI environment metadata
// to log records.
type CIHandler struct {
	// The underlying handler (usually JSON)
	handler slog.Handler
	// CI metadata to add to every log record
	metadata []slog.Attr
}

// NewCIHandler creates a new CIHandler that wraps a JSON handler writing to
// out, adding CI metadata to each log record.
func NewCIHandler(out io.Writer, opts *slog.HandlerOptions) *CIHandler {
	var handlerOpts slog.HandlerOptions
	if opts != nil {
		// Clone the options to avoid modifying the caller's options
		handlerOpts = *opts
	}

	return &CIHandler{
		handler:  slog.NewJSONHandler(out, &handlerOpts),
		metadata: ciMetadata(),
	}
}

// Enabled implements the slog.Handler interface.
func (h *CIHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs implements the slog.Handler interface.
func (h *CIHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CIHandler{
		handler:  h.handler.WithAttrs(attrs),
		metadata: h.metadata,
	}
}

// WithGroup implements the slog.Handler interface.
func (h *CIHandler) WithGroup(name string) slog.Handler {
	return &CIHandler{
		handler:  h.handler.WithGroup(name),
		metadata: h.metadata,
	}
}

// Handle implements the slog.Handler interface.
func (h *CIHandler) Handle(ctx context.Context, record slog.Record) error {
	enhanced := record.Clone()
	enhanced.AddAttrs(h.metadata...)
	return h.handler.Handle(ctx, enhanced)
}

// ciMetadata collects the provider-specific variables that identify a build.
func ciMetadata() []slog.Attr {
	attrs := []slog.Attr{slog.Bool("ci", true)}

	vars := []struct{ key, env string }{
		{"ci_github_actions", ciutil.EnvGitHubActions},
		{"ci_gitlab", ciutil.EnvGitLabCI},
		{"ci_workspace", ciutil.EnvGitHubWorkspace},
		{"ci_run_id", "GITHUB_RUN_ID"},
		{"ci_job_id", "CI_JOB_ID"},
		{"ci_commit", "GITHUB_SHA"},
	}
	for _, v := range vars {
		if val := os.Getenv(v.env); val != "" {
			attrs = append(attrs, slog.String(v.key, val))
		}
	}
	return attrs
}
