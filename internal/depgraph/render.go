package depgraph

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the output of Render.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
)

// ParseFormat maps a user supplied name onto a Format.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatText, FormatMarkdown, FormatYAML, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown format %q", name)
	}
}

// Render writes the dependency map to w in the given format.
func Render(w io.Writer, m *Map, format Format) error {
	switch format {
	case FormatText, "":
		return renderText(w, m)
	case FormatMarkdown:
		return renderMarkdown(w, m)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m.Graph()); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m.Graph())
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func renderText(w io.Writer, m *Map) error {
	var b strings.Builder
	for _, t := range m.tables {
		fmt.Fprintf(&b, "%s\n", t)
		deps := m.DependsOn(t)
		if len(deps) == 0 {
			b.WriteString("  (no dependencies)\n")
		}
		for _, d := range deps {
			marker := ""
			switch {
			case d == t:
				marker = " (self)"
			case !m.Has(d):
				marker = " (external)"
			}
			fmt.Fprintf(&b, "  -> %s%s\n", d, marker)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderMarkdown(w io.Writer, m *Map) error {
	var b strings.Builder
	b.WriteString("| Table | Depends on | Depended by |\n")
	b.WriteString("|---|---|---|\n")
	for _, t := range m.tables {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", t, joinOrDash(m.DependsOn(t)), joinOrDash(m.DependedBy(t)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
