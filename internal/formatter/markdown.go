package formatter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tordrt/pgschemadoc/internal/schema"
)

const (
	// TimestampLayout formats the generation time as YYYY-MM-DD HH:MM:SS
	TimestampLayout = "2006-01-02 15:04:05"

	maxDefaultLen   = 50
	truncatedMarker = "..."
)

// MarkdownFormatter renders a schema as a single Markdown reference document
type MarkdownFormatter struct {
	writer  io.Writer
	project string
	now     func() time.Time
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer, project string) *MarkdownFormatter {
	return &MarkdownFormatter{
		writer:  w,
		project: project,
		now:     time.Now,
	}
}

// WithClock overrides the clock used for the generation timestamp
func (f *MarkdownFormatter) WithClock(now func() time.Time) *MarkdownFormatter {
	f.now = now
	return f
}

// Format writes the schema in markdown format
func (f *MarkdownFormatter) Format(s *schema.Schema) error {
	_, err := f.writer.Write(f.Render(s))
	return err
}

// Render builds the whole document in memory
func (f *MarkdownFormatter) Render(s *schema.Schema) []byte {
	var buf bytes.Buffer

	f.writeHeader(&buf, s)
	f.writeIndex(&buf, s.Tables)
	for i, table := range s.Tables {
		f.writeTable(&buf, i+1, s.Name, table)
	}

	return buf.Bytes()
}

func (f *MarkdownFormatter) writeHeader(w io.Writer, s *schema.Schema) {
	_, _ = fmt.Fprintln(w, "# Database Schema Reference")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "- **Generated:** %s\n", f.now().Local().Format(TimestampLayout))
	_, _ = fmt.Fprintf(w, "- **Project:** %s\n", f.project)
	_, _ = fmt.Fprintf(w, "- **Schema:** %s\n", s.Name)
	_, _ = fmt.Fprintf(w, "- **Tables:** %d\n", len(s.Tables))
	_, _ = fmt.Fprintln(w)
}

func (f *MarkdownFormatter) writeIndex(w io.Writer, tables []schema.Table) {
	_, _ = fmt.Fprintln(w, "## Index")
	_, _ = fmt.Fprintln(w)
	for i, table := range tables {
		_, _ = fmt.Fprintf(w, "%d. [%s](#%s)\n", i+1, table.Name, table.Name)
	}
	if len(tables) > 0 {
		_, _ = fmt.Fprintln(w)
	}
	_, _ = fmt.Fprintln(w, "---")
	_, _ = fmt.Fprintln(w)
}

func (f *MarkdownFormatter) writeTable(w io.Writer, seq int, schemaName string, table schema.Table) {
	_, _ = fmt.Fprintf(w, "<a id=\"%s\"></a>\n", table.Name)
	_, _ = fmt.Fprintf(w, "## %d. %s\n\n", seq, table.Name)
	_, _ = fmt.Fprintf(w, "Table `%s` in schema `%s`.\n\n", table.Name, schemaName)

	if len(table.Columns) > 0 {
		_, _ = fmt.Fprintln(w, "### Columns")
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "| Column | Type | Nullable | Default | Description |")
		_, _ = fmt.Fprintln(w, "|--------|------|----------|---------|-------------|")
		for _, col := range table.Columns {
			_, _ = fmt.Fprintf(w, "| %s | %s | %s | %s |  |\n",
				escapeCell(col.Name),
				escapeCell(col.TypeString()),
				formatNullable(col.Nullable),
				formatDefault(col.Default))
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(table.Constraints) > 0 {
		_, _ = fmt.Fprintln(w, "### Constraints")
		_, _ = fmt.Fprintln(w)
		for _, c := range table.Constraints {
			_, _ = fmt.Fprintf(w, "- **%s**: %s\n", c.Kind, c.Name)
		}
		_, _ = fmt.Fprintln(w)
	}

	_, _ = fmt.Fprintln(w, "---")
	_, _ = fmt.Fprintln(w)
}

func formatNullable(nullable bool) string {
	if nullable {
		return "YES"
	}
	return "NO"
}

func formatDefault(def *string) string {
	if def == nil {
		return "-"
	}
	return escapeCell(TruncateDefault(*def))
}

// TruncateDefault shortens values longer than 50 characters to 47 plus "..."
func TruncateDefault(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDefaultLen {
		return s
	}
	return string(runes[:maxDefaultLen-len(truncatedMarker)]) + truncatedMarker
}

// escapeCell keeps a value on one table row and inside its cell
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// WriteFile writes a rendered document to path in one operation,
// creating parent directories and replacing any existing file
func WriteFile(path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
