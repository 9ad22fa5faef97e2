package model

import (
	"slices"
	"strings"
)

// Dataset is the ordered, read-only collection of records loaded at startup.
// The subgraph index is built once so expanding a row does not rescan.
type Dataset struct {
	records    []Record
	bySubgraph map[string][]int
}

// NewDataset wraps records. A nil slice is treated as empty.
func NewDataset(records []Record) *Dataset {
	d := &Dataset{
		records:    records,
		bySubgraph: make(map[string][]int),
	}
	for i, r := range records {
		d.bySubgraph[r.SubgraphID] = append(d.bySubgraph[r.SubgraphID], i)
	}
	return d
}

// Len returns the number of records. Safe on a nil Dataset.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Records returns the records in load order. Callers must not modify them.
func (d *Dataset) Records() []Record {
	if d == nil {
		return nil
	}
	return d.records
}

// BySubgraph returns the records whose subgraph id equals id, preserving
// load order.
func (d *Dataset) BySubgraph(id string) []Record {
	if d == nil {
		return nil
	}
	idx := d.bySubgraph[id]
	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		out = append(out, d.records[i])
	}
	return out
}

// CellTypes returns the distinct cell types in display form.
func (d *Dataset) CellTypes() []string {
	if d == nil {
		return nil
	}
	values := make([]string, 0, len(d.records))
	for _, r := range d.records {
		values = append(values, FormatCellType(r.CellType))
	}
	return SortedDistinct(values)
}

// Terms returns the distinct term names starting with prefix
// (case-insensitive), at most limit of them.
func (d *Dataset) Terms(prefix string, limit int) []string {
	if d == nil {
		return nil
	}
	prefix = strings.ToLower(prefix)
	var values []string
	for _, r := range d.records {
		if r.TermName != "" && strings.HasPrefix(strings.ToLower(r.TermName), prefix) {
			values = append(values, r.TermName)
		}
	}
	values = SortedDistinct(values)
	if limit > 0 && len(values) > limit {
		values = values[:limit]
	}
	return values
}

// Filter narrows search results. Empty fields match everything; each field
// may hold a comma-separated list of accepted values.
type Filter struct {
	CellType  string
	Iteration string
	Cluster   string
	Module    string
}

// IsZero reports whether the filter accepts everything.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Record) bool {
	if f.CellType != "" && !inList(f.CellType, NormalizeCellType(r.CellType), NormalizeCellType) {
		return false
	}
	if f.Iteration != "" && !inList(f.Iteration, r.Iteration, strings.TrimSpace) {
		return false
	}
	if f.Cluster != "" && !inList(f.Cluster, r.Cluster, strings.TrimSpace) {
		return false
	}
	if f.Module != "" && !inList(f.Module, r.Module, strings.TrimSpace) {
		return false
	}
	return true
}

func inList(list, value string, norm func(string) string) bool {
	for _, item := range strings.Split(list, ",") {
		if norm(item) == value {
			return true
		}
	}
	return false
}

// Search returns records whose term name or term id equals term, narrowed
// by f and ordered by ascending p-value. An empty term matches every record.
func (d *Dataset) Search(term string, f Filter) []Record {
	if d == nil {
		return nil
	}
	term = strings.TrimSpace(term)
	var out []Record
	for _, r := range d.records {
		if term != "" && r.TermName != term && r.TermID != term {
			continue
		}
		if !f.Match(r) {
			continue
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b Record) int {
		pa, pb := a.PValueFloat(), b.PValueFloat()
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		default:
			return 0
		}
	})
	return out
}
