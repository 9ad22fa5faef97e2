package ui

import (
	"slices"
	"strings"

	"github.com/vanderheijden86/sgv/pkg/metrics"
	"github.com/vanderheijden86/sgv/pkg/natsort"
)

// SortDirection represents ascending or descending sort order.
type SortDirection int

const (
	SortAscending  SortDirection = iota // ▲ ascending
	SortDescending                      // ▼ descending
)

// String returns a human-readable label for the sort direction.
func (d SortDirection) String() string {
	if d == SortAscending {
		return "Ascending"
	}
	return "Descending"
}

// Indicator returns the arrow indicator for the sort direction.
func (d SortDirection) Indicator() string {
	if d == SortAscending {
		return "▲"
	}
	return "▼"
}

// Toggle returns the opposite direction.
func (d SortDirection) Toggle() SortDirection {
	if d == SortAscending {
		return SortDescending
	}
	return SortAscending
}

// Row is one body row of a sortable table. Key identifies the row across
// re-sorts so expansion state can follow it.
type Row struct {
	Key   string
	Cells []string
}

// TableSorter keeps a table's body rows ordered by one column at a time.
// The zero value is an unsorted, empty table.
type TableSorter struct {
	headers []string
	rows    []Row
	column  int // -1 while unsorted
	dir     SortDirection
}

// NewTableSorter returns an unsorted table.
func NewTableSorter(headers []string, rows []Row) *TableSorter {
	return &TableSorter{
		headers: headers,
		rows:    rows,
		column:  -1,
	}
}

// SetRows replaces the body, keeping the active sort.
func (t *TableSorter) SetRows(rows []Row) {
	t.rows = rows
	t.apply()
}

// SortBy handles a click on header col: the active column flips direction,
// any other column becomes active and sorts ascending. Out-of-range columns
// are ignored.
func (t *TableSorter) SortBy(col int) {
	if col < 0 || col >= len(t.headers) {
		return
	}
	if col == t.column {
		t.dir = t.dir.Toggle()
	} else {
		t.column = col
		t.dir = SortAscending
	}
	t.apply()
}

// Sort orders the body by col in the given direction.
func (t *TableSorter) Sort(col int, dir SortDirection) {
	if col < 0 || col >= len(t.headers) {
		return
	}
	t.column = col
	t.dir = dir
	t.apply()
}

func (t *TableSorter) apply() {
	if t.column < 0 || len(t.rows) < 2 {
		return
	}
	defer metrics.Timer(metrics.TableSort)()
	col, asc := t.column, t.dir == SortAscending
	slices.SortStableFunc(t.rows, func(a, b Row) int {
		return natsort.CompareDir(cell(a, col), cell(b, col), asc)
	})
}

func cell(r Row, col int) string {
	if col < len(r.Cells) {
		return r.Cells[col]
	}
	return ""
}

// Rows returns the body in display order.
func (t *TableSorter) Rows() []Row {
	return t.rows
}

// Len returns the number of body rows.
func (t *TableSorter) Len() int {
	return len(t.rows)
}

// Headers returns the plain header labels.
func (t *TableSorter) Headers() []string {
	return t.headers
}

// SortState returns the active column and direction; ok is false while the
// table is unsorted.
func (t *TableSorter) SortState() (col int, dir SortDirection, ok bool) {
	return t.column, t.dir, t.column >= 0
}

// HeaderLabels returns the headers with the direction indicator on the
// active column only.
func (t *TableSorter) HeaderLabels() []string {
	labels := slices.Clone(t.headers)
	if t.column >= 0 {
		labels[t.column] = strings.TrimSpace(labels[t.column] + " " + t.dir.Indicator())
	}
	return labels
}

// IndexOf returns the display position of the row with key, or -1.
func (t *TableSorter) IndexOf(key string) int {
	return slices.IndexFunc(t.rows, func(r Row) bool { return r.Key == key })
}
