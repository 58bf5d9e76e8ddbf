// Package result holds the normalized outcome of one statement and the single
// text rendering shared by every backend.
package result

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	NullText       = "NULL"
	ExecutedStatus = "executed"
)

// Outcome is one of *Table, RowsAffected or Status.
type Outcome interface {
	outcome()
}

// Cell is a single value. Null cells keep an empty Value.
type Cell struct {
	Value string
	Null  bool
}

func Value(s string) Cell { return Cell{Value: s} }

func Null() Cell { return Cell{Null: true} }

// Table is a result set. A table with columns and no rows is an empty result,
// not a missing one.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

type RowsAffected struct {
	Count int64
}

type Status struct {
	Message string
}

func (*Table) outcome()       {}
func (RowsAffected) outcome() {}
func (Status) outcome()       {}

// Validate checks that every row is exactly as wide as the header.
func (t *Table) Validate() error {
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, expected %d", i+1, len(row), len(t.Columns))
		}
	}
	return nil
}

// Text renders an outcome as tab-separated text: a header line, then one line
// per row, with NULL for null cells. Lines are separated by \n with no
// trailing newline.
func Text(o Outcome) string {
	switch o := o.(type) {
	case *Table:
		var b strings.Builder
		b.WriteString(strings.Join(o.Columns, "\t"))
		for _, row := range o.Rows {
			b.WriteByte('\n')
			for i, cell := range row {
				if i > 0 {
					b.WriteByte('\t')
				}
				if cell.Null {
					b.WriteString(NullText)
				} else {
					b.WriteString(cell.Value)
				}
			}
		}
		return b.String()
	case RowsAffected:
		return "Rows affected: " + strconv.FormatInt(o.Count, 10)
	case Status:
		return o.Message
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", o)
	}
}
