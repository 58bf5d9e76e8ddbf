package backend

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shakram02/go-mcp-sql/internal/result"
)

const nullMarker = `\N`

var rowsAffectedLine = regexp.MustCompile(`^Rows affected: (-?[0-9]+)$`)

// ParseTSV decodes the generated program's stdout.
//
// Empty output is a Status. A sole "Rows affected: N" line, N an integer, is a
// RowsAffected. Anything else is a header line followed by zero or more rows that must each
// have as many cells as the header.
func ParseTSV(stdout string) (result.Outcome, error) {
	stdout = strings.TrimSuffix(stdout, "\n")
	if strings.TrimSpace(stdout) == "" {
		return result.Status{Message: result.ExecutedStatus}, nil
	}

	lines := strings.Split(stdout, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}

	if m := rowsAffectedLine.FindStringSubmatch(lines[0]); m != nil {
		if len(lines) > 1 {
			return nil, fmt.Errorf("unexpected output after row count: %q", lines[1])
		}
		count, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid row count %q: %w", m[1], err)
		}
		return result.RowsAffected{Count: count}, nil
	}

	header := strings.Split(lines[0], "\t")
	columns := make([]string, len(header))
	for i, h := range header {
		c, err := unescapeCell(h)
		if err != nil {
			return nil, fmt.Errorf("header column %d: %w", i+1, err)
		}
		columns[i] = c.Value
	}

	table := &result.Table{Columns: columns, Rows: make([][]result.Cell, 0, len(lines)-1)}
	for i, line := range lines[1:] {
		fields := strings.Split(line, "\t")
		if len(fields) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", i+1, len(fields), len(columns))
		}
		row := make([]result.Cell, len(fields))
		for j, f := range fields {
			c, err := unescapeCell(f)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+1, j+1, err)
			}
			row[j] = c
		}
		table.Rows = append(table.Rows, row)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func unescapeCell(s string) (result.Cell, error) {
	if s == nullMarker {
		return result.Null(), nil
	}
	if !strings.Contains(s, `\`) {
		return result.Value(s), nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 == len(s) {
			return result.Cell{}, fmt.Errorf("dangling escape in %q", s)
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			return result.Cell{}, fmt.Errorf("invalid escape \\%c in %q", s[i], s)
		}
	}
	return result.Value(b.String()), nil
}
