// Package model defines the annotation records browsed by sgv and the
// formatting rules shared by the table, the detail rows and the exports.
package model

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vanderheijden86/sgv/pkg/natsort"
)

// Record is one GO-term enrichment annotation of a module subgraph.
// Values are kept as they appear in the source so the table shows exactly
// what was loaded; numeric accessors parse on demand.
type Record struct {
	SubgraphID         string `json:"subgraph_id"`
	Iteration          string `json:"iteration"`
	CellType           string `json:"cell_type"`
	Cluster            string `json:"cluster"`
	Module             string `json:"module"`
	TermID             string `json:"term_id"`
	TermName           string `json:"term_name"`
	PValue             string `json:"p_value"`
	Intersection       string `json:"intersection"` // Comma-separated gene names
	LengthIntersection string `json:"length_intersection"`
	Source             string `json:"source"`
	SubgraphSize       string `json:"subgraph_size"`
	IC                 string `json:"IC"`
}

// Columns lists the record fields in display order with their headers.
var Columns = []string{
	"Iteration", "Cell type", "Cluster", "Module", "Term id", "Term name",
	"P-value", "Intersection", "Length of Intersection", "Source",
	"Subgraph ID", "Subgraph size", "IC",
}

// RawColumns lists the source column names of an annotations file, in the
// order Raw returns them.
var RawColumns = []string{
	"subgraph_id", "iteration", "cell_type", "cluster", "module", "term_id",
	"term_name", "p_value", "intersection", "length_intersection", "source",
	"subgraph_size", "IC",
}

// Raw returns the record values as loaded, in RawColumns order.
func (r Record) Raw() []string {
	return []string{
		r.SubgraphID,
		r.Iteration,
		r.CellType,
		r.Cluster,
		r.Module,
		r.TermID,
		r.TermName,
		r.PValue,
		r.Intersection,
		r.LengthIntersection,
		r.Source,
		r.SubgraphSize,
		r.IC,
	}
}

// Cells renders the record as display cells in Columns order.
func (r Record) Cells() []string {
	return []string{
		r.Iteration,
		FormatCellType(r.CellType),
		r.Cluster,
		r.Module,
		r.TermID,
		r.TermName,
		FormatPValue(r.PValue),
		FormatIntersection(r.Intersection),
		r.LengthIntersection,
		r.Source,
		r.SubgraphID,
		r.SubgraphSize,
		FormatIC(r.IC),
	}
}

// PValueFloat parses the p-value; unparsable values sort last.
func (r Record) PValueFloat() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.PValue), 64)
	if err != nil {
		return math.Inf(1)
	}
	return v
}

// ICFloat parses the information content. "inf" parses to +Inf.
func (r Record) ICFloat() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.IC), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SubgraphSizeInt parses the subgraph size.
func (r Record) SubgraphSizeInt() (int, bool) {
	s := strings.TrimSpace(r.SubgraphSize)
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	// pandas writes integer columns with NaNs as floats ("12.0")
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
		return int(f), true
	}
	return 0, false
}

// Genes returns the trimmed, non-empty gene names of the intersection in
// source order.
func (r Record) Genes() []string {
	return splitGenes(r.Intersection)
}

// DefaultMaxGenes is how many genes FormatIntersection shows.
const DefaultMaxGenes = 5

// FormatIntersection sorts the comma-separated gene list and keeps the first
// DefaultMaxGenes entries, appending ", ..." when more exist.
func FormatIntersection(intersection string) string {
	return FormatIntersectionN(intersection, DefaultMaxGenes)
}

// FormatIntersectionN is FormatIntersection with a custom limit.
func FormatIntersectionN(intersection string, limit int) string {
	genes := splitGenes(intersection)
	if len(genes) == 0 {
		return ""
	}
	col := collate.New(language.English)
	col.SortStrings(genes)
	if limit > 0 && len(genes) > limit {
		return strings.Join(genes[:limit], ", ") + ", ..."
	}
	return strings.Join(genes, ", ")
}

func splitGenes(intersection string) []string {
	if intersection == "" {
		return nil
	}
	parts := strings.Split(intersection, ",")
	genes := make([]string, 0, len(parts))
	for _, p := range parts {
		if g := strings.TrimSpace(p); g != "" {
			genes = append(genes, g)
		}
	}
	return genes
}

// FormatCellType replaces every underscore with a space.
func FormatCellType(cellType string) string {
	return strings.ReplaceAll(cellType, "_", " ")
}

// NormalizeCellType folds a cell type for comparison: underscores become
// spaces, case and surrounding space are ignored.
func NormalizeCellType(cellType string) string {
	return strings.ToLower(strings.TrimSpace(FormatCellType(cellType)))
}

// FormatPValue shortens a p-value: scientific notation with two decimals at
// or below 1e-3, four fixed decimals otherwise. Non-numeric input is
// returned unchanged.
func FormatPValue(p string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
	if err != nil {
		return p
	}
	if v <= 1e-3 {
		return fmt.Sprintf("%.2E", v)
	}
	return fmt.Sprintf("%.4f", v)
}

// FormatIC rounds the information content to three decimals. Unparsable
// values render as 0.
func FormatIC(ic string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(ic), 64)
	if err != nil {
		return "0"
	}
	if math.IsInf(v, 0) {
		return ic
	}
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

// SortedDistinct returns the distinct non-empty values in mixed order.
func SortedDistinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.SortFunc(out, natsort.Compare)
	return out
}
