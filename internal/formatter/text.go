package formatter

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/pgschemadoc/internal/schema"
)

// TextFormatter formats schema as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the schema in compact text format
func (f *TextFormatter) Format(s *schema.Schema) error {
	_, err := f.writer.Write(f.Render(s))
	return err
}

// Render builds the compact text in memory
func (f *TextFormatter) Render(s *schema.Schema) []byte {
	var buf bytes.Buffer

	_, _ = fmt.Fprintf(&buf, "SCHEMA %s (%d tables)\n", s.Name, len(s.Tables))
	for _, table := range s.Tables {
		_, _ = fmt.Fprintln(&buf) // Blank line between tables
		f.formatTable(&buf, table)
	}

	return buf.Bytes()
}

func (f *TextFormatter) formatTable(w io.Writer, table schema.Table) {
	_, _ = fmt.Fprintf(w, "TABLE %s\n", table.Name)

	for _, col := range table.Columns {
		_, _ = fmt.Fprintf(w, "  %s\n", f.formatColumn(col))
	}

	if len(table.Constraints) > 0 {
		_, _ = fmt.Fprintln(w, "  CONSTRAINTS:")
		for _, c := range table.Constraints {
			_, _ = fmt.Fprintf(w, "    %s %s\n", c.Kind, c.Name)
		}
	}
}

func (f *TextFormatter) formatColumn(col schema.Column) string {
	parts := []string{col.Name + ":", col.TypeString()}

	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}

	// Defaults are shortened the same way as in the Markdown document
	if col.Default != nil {
		parts = append(parts, "DEFAULT "+strings.ReplaceAll(TruncateDefault(*col.Default), "\n", " "))
	}

	return strings.Join(parts, " ")
}
