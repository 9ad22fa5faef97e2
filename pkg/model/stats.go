package model

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TotalCellTypes is the number of cell type/cluster combinations in the
// single-cell atlas the annotations come from.
const TotalCellTypes = 24

// EnrichmentStats summarizes the search results for one term.
type EnrichmentStats struct {
	TermIC           float64
	HasTermIC        bool
	CellTypes        int
	CellTypesPercent float64
	MeanSubgraphSize float64
	HasSubgraphSize  bool
	MeanNegLog10P    float64
	HasPValues       bool
	MeanIC           float64
	HasIC            bool
}

// ComputeStats summarizes results. Infinite IC values count as the largest
// finite IC in the whole dataset plus 10.
func ComputeStats(results []Record, all *Dataset) EnrichmentStats {
	var st EnrichmentStats
	if len(results) == 0 {
		return st
	}

	if v, ok := results[0].ICFloat(); ok {
		st.TermIC, st.HasTermIC = math.Round(v*1000)/1000, true
	}

	seen := make(map[string]struct{})
	for _, r := range results {
		seen[FormatCellType(r.CellType)+" "+r.Cluster] = struct{}{}
	}
	st.CellTypes = len(seen)
	st.CellTypesPercent = round2(float64(st.CellTypes) / TotalCellTypes * 100)

	var sizes []float64
	for _, r := range results {
		if v, ok := r.SubgraphSizeInt(); ok {
			sizes = append(sizes, float64(v))
		}
	}
	if len(sizes) > 0 {
		st.MeanSubgraphSize = math.RoundToEven(stat.Mean(sizes, nil))
		st.HasSubgraphSize = true
	}

	var negLogP []float64
	for _, r := range results {
		if p := r.PValueFloat(); p > 0 && !math.IsInf(p, 0) {
			negLogP = append(negLogP, -math.Log10(p))
		}
	}
	if len(negLogP) > 0 {
		st.MeanNegLog10P = round2(stat.Mean(negLogP, nil))
		st.HasPValues = true
	}

	replacement := maxFiniteIC(all) + 10
	var ics []float64
	for _, r := range results {
		v, ok := r.ICFloat()
		if !ok {
			continue
		}
		if math.IsInf(v, 1) {
			v = replacement
		}
		ics = append(ics, v)
	}
	if len(ics) > 0 {
		st.MeanIC = round2(stat.Mean(ics, nil))
		st.HasIC = true
	}

	return st
}

func maxFiniteIC(d *Dataset) float64 {
	best := math.Inf(-1)
	for _, r := range d.Records() {
		if v, ok := r.ICFloat(); ok && !math.IsInf(v, 0) && v > best {
			best = v
		}
	}
	if math.IsInf(best, -1) {
		return -10 // no finite IC: replacement becomes 0
	}
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
