package ui

import (
	"strings"

	"github.com/vanderheijden86/sgv/pkg/debug"
	"github.com/vanderheijden86/sgv/pkg/model"
)

const (
	// DetailTitle heads the nested table of an expanded row.
	DetailTitle = "Subgraph members"
	// NoDetailResults replaces the nested table when a subgraph has no records.
	NoDetailResults = "No additional results found."
)

// DetailView is the nested table shown directly below an expanded row.
type DetailView struct {
	RowKey     string
	SubgraphID string
	Headers    []string
	Rows       [][]string
	Records    []model.Record
}

// Empty reports whether the view shows the placeholder instead of a table.
func (d *DetailView) Empty() bool {
	return len(d.Records) == 0
}

// Toggler expands one results row at a time into the records of its
// subgraph.
type Toggler struct {
	dataset  *model.Dataset
	maxGenes int
	active   *DetailView
}

// NewToggler returns a toggler over dataset. A nil dataset is logged and
// treated as empty; maxGenes <= 0 uses model.DefaultMaxGenes.
func NewToggler(dataset *model.Dataset, maxGenes int) *Toggler {
	t := &Toggler{maxGenes: maxGenes}
	if t.maxGenes <= 0 {
		t.maxGenes = model.DefaultMaxGenes
	}
	t.SetDataset(dataset)
	return t
}

// SetDataset swaps the dataset and collapses any expanded row, whose
// contents may no longer exist.
func (t *Toggler) SetDataset(dataset *model.Dataset) {
	if dataset == nil {
		debug.Log("toggler: no dataset loaded, using an empty one")
		dataset = model.NewDataset(nil)
	}
	t.dataset = dataset
	t.active = nil
}

// Toggle handles the expand control of the row with rowKey. An expanded row
// collapses; a collapsed row expands after collapsing whichever row was
// expanded before. It reports whether the row is expanded afterwards.
func (t *Toggler) Toggle(rowKey, subgraphID string) bool {
	if t.Expanded(rowKey) {
		t.active = nil
		return false
	}
	t.active = t.build(rowKey, subgraphID)
	debug.Log("toggler: expanded %s (%d records)", subgraphID, len(t.active.Records))
	return true
}

// Collapse removes the detail view, if any.
func (t *Toggler) Collapse() {
	t.active = nil
}

// Expanded reports whether rowKey owns the detail view.
func (t *Toggler) Expanded(rowKey string) bool {
	return t.active != nil && t.active.RowKey == rowKey
}

// Active returns the detail view, or nil when every row is collapsed.
func (t *Toggler) Active() *DetailView {
	return t.active
}

func (t *Toggler) build(rowKey, subgraphID string) *DetailView {
	records := t.dataset.BySubgraph(subgraphID)
	v := &DetailView{
		RowKey:     rowKey,
		SubgraphID: subgraphID,
		Headers:    model.Columns,
		Records:    records,
	}
	for _, r := range records {
		v.Rows = append(v.Rows, detailCells(r, t.maxGenes))
	}
	return v
}

// detailCells renders a member record. Values are shown as loaded, apart
// from the cell type and the gene list.
func detailCells(r model.Record, maxGenes int) []string {
	return []string{
		r.Iteration,
		model.FormatCellType(r.CellType),
		r.Cluster,
		r.Module,
		r.TermID,
		r.TermName,
		r.PValue,
		model.FormatIntersectionN(r.Intersection, maxGenes),
		r.LengthIntersection,
		r.Source,
		r.SubgraphID,
		r.SubgraphSize,
		r.IC,
	}
}

// GeneList returns every distinct gene of the expanded subgraph, sorted and
// comma-joined, for copying. It is empty when nothing is expanded.
func (t *Toggler) GeneList() string {
	if t.active == nil {
		return ""
	}
	var genes []string
	for _, r := range t.active.Records {
		genes = append(genes, r.Genes()...)
	}
	return strings.Join(model.SortedDistinct(genes), ", ")
}
