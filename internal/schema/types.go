package schema

import (
	"sort"
	"strconv"
)

// TableName identifies a table within a schema
type TableName string

// Schema represents a documented database schema
type Schema struct {
	Name   string
	Tables []Table
}

// Table represents a database table and its metadata
type Table struct {
	Name        TableName
	Columns     []Column
	Constraints []Constraint
}

// Column represents a table column, in ordinal position order within its table
type Column struct {
	Name      string
	Type      string
	MaxLength *int
	Nullable  bool
	Default   *string
}

// TypeString returns the declared type with its length suffix, e.g. "character varying(255)"
func (c Column) TypeString() string {
	if c.MaxLength == nil {
		return c.Type
	}
	return c.Type + "(" + strconv.Itoa(*c.MaxLength) + ")"
}

// Constraint represents a table constraint (PRIMARY KEY, FOREIGN KEY, UNIQUE, CHECK)
type Constraint struct {
	Kind string
	Name string
}

// NormalizeConstraints deduplicates constraints by (Kind, Name) and sorts them by Kind then Name
func NormalizeConstraints(constraints []Constraint) []Constraint {
	if len(constraints) == 0 {
		return nil
	}

	seen := make(map[Constraint]bool, len(constraints))
	out := make([]Constraint, 0, len(constraints))
	for _, c := range constraints {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}
