package ui

import (
	"reflect"
	"slices"
	"testing"

	"pgregory.net/rapid"
)

func rowsOf(col0 ...string) []Row {
	rows := make([]Row, len(col0))
	for i, v := range col0 {
		rows[i] = Row{Key: v, Cells: []string{v, "x"}}
	}
	return rows
}

func firstColumn(t *TableSorter) []string {
	out := make([]string, 0, t.Len())
	for _, r := range t.Rows() {
		out = append(out, r.Cells[0])
	}
	return out
}

func TestSortDirection(t *testing.T) {
	if SortAscending.Indicator() != "▲" || SortDescending.Indicator() != "▼" {
		t.Error("unexpected indicators")
	}
	if SortAscending.Toggle() != SortDescending || SortDescending.Toggle() != SortAscending {
		t.Error("Toggle should flip")
	}
	if SortAscending.String() != "Ascending" {
		t.Errorf("String() = %q", SortAscending.String())
	}
}

func TestTableSorterMixedOrder(t *testing.T) {
	ts := NewTableSorter([]string{"Name", "Other"}, rowsOf("item10", "item2", "item1", "item20"))
	ts.SortBy(0)

	if got, want := firstColumn(ts), []string{"item1", "item2", "item10", "item20"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ascending = %q, want %q", got, want)
	}
	col, dir, ok := ts.SortState()
	if !ok || col != 0 || dir != SortAscending {
		t.Errorf("SortState = %d %v %v", col, dir, ok)
	}

	ts.SortBy(0)
	if got, want := firstColumn(ts), []string{"item20", "item10", "item2", "item1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("descending = %q, want %q", got, want)
	}
}

func TestTableSorterHeaderIndicators(t *testing.T) {
	ts := NewTableSorter([]string{"A", "B"}, rowsOf("1", "2"))
	if got := ts.HeaderLabels(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("unsorted labels = %q", got)
	}
	ts.SortBy(0)
	ts.SortBy(0)
	if got := ts.HeaderLabels(); !reflect.DeepEqual(got, []string{"A ▼", "B"}) {
		t.Errorf("labels = %q", got)
	}
	// Another column starts ascending and takes the indicator.
	ts.SortBy(1)
	if got := ts.HeaderLabels(); !reflect.DeepEqual(got, []string{"A", "B ▲"}) {
		t.Errorf("labels after switching column = %q", got)
	}
	if got := ts.Headers(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("plain headers changed: %q", got)
	}
}

func TestTableSorterIgnoresBadColumn(t *testing.T) {
	ts := NewTableSorter([]string{"A"}, rowsOf("b", "a"))
	ts.SortBy(5)
	ts.Sort(-1, SortAscending)
	if _, _, ok := ts.SortState(); ok {
		t.Error("out-of-range column should leave the table unsorted")
	}
	if got := firstColumn(ts); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("rows moved: %q", got)
	}
}

func TestTableSorterSetRowsKeepsSort(t *testing.T) {
	ts := NewTableSorter([]string{"A"}, nil)
	ts.Sort(0, SortDescending)
	ts.SetRows(rowsOf("T1", "T10", "T2"))
	if got := firstColumn(ts); !reflect.DeepEqual(got, []string{"T10", "T2", "T1"}) {
		t.Errorf("rows = %q", got)
	}
	if ts.IndexOf("T2") != 1 || ts.IndexOf("missing") != -1 {
		t.Error("IndexOf wrong")
	}
}

func TestTableSorterShortRows(t *testing.T) {
	ts := NewTableSorter([]string{"A", "B"}, []Row{
		{Key: "1", Cells: []string{"x", "b"}},
		{Key: "2", Cells: []string{"y"}},
	})
	ts.SortBy(1)
	if ts.Rows()[0].Key != "2" {
		t.Error("a missing cell should sort as empty text, first")
	}
}

var cellGen = rapid.SampledFrom([]string{
	"item1", "item2", "item10", "T0", "T9", "T12", "cluster 3", "alpha", "beta",
	"GO:0007411", "GO:0045202", "3", "12", "", "x7y2", "x7y10",
})

func TestTableSorterIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.SliceOf(cellGen).Draw(rt, "values")
		ts := NewTableSorter([]string{"A", "B"}, rowsOf(values...))
		ts.Sort(0, SortAscending)
		once := firstColumn(ts)
		ts.Sort(0, SortAscending)
		if twice := firstColumn(ts); !reflect.DeepEqual(once, twice) {
			rt.Fatalf("sorting twice changed order: %q -> %q", once, twice)
		}
	})
}

func TestTableSorterDescendingReversesAscending(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.SliceOfDistinct(cellGen, func(s string) string { return s }).Draw(rt, "values")
		ts := NewTableSorter([]string{"A", "B"}, rowsOf(values...))
		ts.SortBy(0)
		asc := firstColumn(ts)
		ts.SortBy(0)
		desc := firstColumn(ts)
		slices.Reverse(desc)
		if !reflect.DeepEqual(asc, desc) {
			rt.Fatalf("descending is not the reverse of ascending: %q vs %q", asc, desc)
		}
	})
}
