package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a diagnostic for reporting and persistence.
type Kind string

const (
	KindSchema           Kind = "schema"
	KindConsistency      Kind = "consistency"
	KindIncompleteJoin   Kind = "incomplete_join"
	KindDegenerateColumn Kind = "degenerate_column"
)

// SchemaError indicates a required input field is missing or has the wrong type.
// It aborts the whole run.
type SchemaError struct {
	Missing []string // required fields absent from the header
	Row     int      // 1-based data row, 0 when the problem is in the header
	Field   string
	Value   string
	Err     error
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("schema: missing required fields: %s", strings.Join(e.Missing, ", "))
	}
	if e.Row > 0 {
		if e.Err != nil {
			return fmt.Sprintf("schema: row %d field %s: invalid value %q: %v", e.Row, e.Field, e.Value, e.Err)
		}
		return fmt.Sprintf("schema: row %d field %s: invalid value %q", e.Row, e.Field, e.Value)
	}
	if e.Err != nil {
		return fmt.Sprintf("schema: %v", e.Err)
	}
	return "schema: invalid input"
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ConsistencyError reports a group holding more than one distinct value for a
// field that must be constant within the group.
type ConsistencyError struct {
	Group  string // "trip" or "route"
	Key    string
	Field  string
	Values []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency: %s %s has %d distinct %s values: %s",
		e.Group, e.Key, len(e.Values), e.Field, strings.Join(e.Values, ", "))
}

// IncompleteJoinWarning reports a group dropped because a joined table lacked its key.
type IncompleteJoinWarning struct {
	Group   string
	Key     string
	Missing []string // names of the tables or fields that lacked the key
}

func (e *IncompleteJoinWarning) Error() string {
	return fmt.Sprintf("incomplete join: %s %s dropped, missing %s", e.Group, e.Key, strings.Join(e.Missing, ", "))
}

// DegenerateColumnError reports a constant column that cannot be standardized.
type DegenerateColumnError struct {
	Column string
	Value  float64
}

func (e *DegenerateColumnError) Error() string {
	return fmt.Sprintf("degenerate column: %s is constant (%g), excluded from z-score filter", e.Column, e.Value)
}

// KindOf returns the Kind of a diagnostic error, or "" when it is not one of ours.
func KindOf(err error) Kind {
	var (
		se *SchemaError
		ce *ConsistencyError
		ij *IncompleteJoinWarning
		dc *DegenerateColumnError
	)
	switch {
	case errors.As(err, &se):
		return KindSchema
	case errors.As(err, &ce):
		return KindConsistency
	case errors.As(err, &ij):
		return KindIncompleteJoin
	case errors.As(err, &dc):
		return KindDegenerateColumn
	}
	return ""
}

// Diagnostics collects non-fatal data-quality findings of a run.
type Diagnostics []error

// Add appends err when it is non-nil.
func (d *Diagnostics) Add(err error) {
	if err != nil {
		*d = append(*d, err)
	}
}

// Merge appends all entries of other.
func (d *Diagnostics) Merge(other Diagnostics) {
	*d = append(*d, other...)
}

// Count returns how many entries are of the given kind.
func (d Diagnostics) Count(k Kind) int {
	n := 0
	for _, err := range d {
		if KindOf(err) == k {
			n++
		}
	}
	return n
}

// Summary returns per-kind counts in a stable order.
func (d Diagnostics) Summary() string {
	if len(d) == 0 {
		return "no diagnostics"
	}
	counts := map[Kind]int{}
	for _, err := range d {
		counts[KindOf(err)]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		name := k
		if name == "" {
			name = "other"
		}
		parts = append(parts, fmt.Sprintf("%s=%d", name, counts[Kind(k)]))
	}
	return strings.Join(parts, " ")
}
