// Package datasource builds the lookup index behind the filter cascade from a
// directory of co-expression module files, caches it in SQLite, and loads
// the annotation records the results table shows.
//
// Module files are named <cell_type>_<n>_T<k>_modules.csv, for example
// DA_like_neurons_11_T0_modules.csv, and carry at least a subcluster column.
package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/sgv/pkg/debug"
	"github.com/vanderheijden86/sgv/pkg/metrics"
	"github.com/vanderheijden86/sgv/pkg/model"
	"github.com/vanderheijden86/sgv/pkg/natsort"
)

var (
	iterationRe = regexp.MustCompile(`_T(\d+)_`)
	cellTypeRe  = regexp.MustCompile(`^(.+?)_\d+_`)
)

// ErrNoModules is returned when a modules directory holds no module files.
var ErrNoModules = errors.New("no module files found")

// ParseModuleFileName extracts the display cell type ("DA like neurons") and
// iteration ("T0") from a module file name. ok is false when either part is
// missing.
func ParseModuleFileName(name string) (cellType, iteration string, ok bool) {
	base := filepath.Base(name)
	if m := cellTypeRe.FindStringSubmatch(base); m != nil {
		cellType = model.FormatCellType(m[1])
	}
	if m := iterationRe.FindStringSubmatch(base); m != nil {
		iteration = "T" + m[1]
	}
	return cellType, iteration, cellType != "" && iteration != ""
}

// Entry records that a cluster of a cell type exists at an iteration.
type Entry struct {
	CellType  string
	Cluster   string
	Iteration string
	File      string
}

// Index answers the cascade lookups. It is safe for concurrent use; Replace
// swaps the contents atomically after a rebuild.
type Index struct {
	mu      sync.RWMutex
	entries []Entry
	genes   []string
	builtAt time.Time
}

// NewIndex builds an index from already-collected entries and genes.
func NewIndex(entries []Entry, genes []string) *Index {
	idx := &Index{}
	idx.set(entries, genes)
	return idx
}

func (idx *Index) set(entries []Entry, genes []string) {
	idx.entries = entries
	idx.genes = model.SortedDistinct(genes)
	idx.builtAt = time.Now()
}

// Replace swaps in the contents of other.
func (idx *Index) Replace(other *Index) {
	other.mu.RLock()
	entries, genes := other.entries, other.genes
	other.mu.RUnlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = entries
	idx.genes = genes
	idx.builtAt = time.Now()
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Entries returns a copy of the entries.
func (idx *Index) Entries() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.Clone(idx.entries)
}

// BuiltAt returns when the contents were last set.
func (idx *Index) BuiltAt() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.builtAt
}

// CellTypes returns the distinct cell types in display form.
func (idx *Index) CellTypes(context.Context) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	values := make([]string, 0, len(idx.entries))
	for _, e := range idx.entries {
		values = append(values, e.CellType)
	}
	return model.SortedDistinct(values), nil
}

// Clusters returns the distinct clusters of a cell type in numeric order.
// An empty cell type yields an empty list.
func (idx *Index) Clusters(_ context.Context, cellType string) ([]string, error) {
	want := model.NormalizeCellType(cellType)
	if want == "" {
		return []string{}, nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var values []string
	for _, e := range idx.entries {
		if model.NormalizeCellType(e.CellType) == want {
			values = append(values, e.Cluster)
		}
	}
	return nonNil(model.SortedDistinct(values)), nil
}

// Iterations returns the iterations of a cell type, restricted to those whose
// module file contains cluster when cluster is non-empty.
func (idx *Index) Iterations(_ context.Context, cellType, cluster string) ([]string, error) {
	want := model.NormalizeCellType(cellType)
	if want == "" {
		return []string{}, nil
	}
	cluster = strings.TrimSpace(cluster)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var values []string
	for _, e := range idx.entries {
		if model.NormalizeCellType(e.CellType) != want {
			continue
		}
		if cluster != "" && e.Cluster != cluster {
			continue
		}
		values = append(values, e.Iteration)
	}
	return nonNil(model.SortedDistinct(values)), nil
}

// Genes returns up to limit genes starting with prefix, case-insensitively.
func (idx *Index) Genes(prefix string, limit int) []string {
	prefix = strings.ToUpper(prefix)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []string
	for _, g := range idx.genes {
		if strings.HasPrefix(strings.ToUpper(g), prefix) {
			out = append(out, g)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return nonNil(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ModuleFiles lists the module CSV files of dir in name order.
func ModuleFiles(dir string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading modules dir: %w", err)
	}
	var files []string
	for _, de := range des {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, de.Name()))
	}
	slices.SortFunc(files, natsort.Compare)
	return files, nil
}

// BuildIndex scans dir in parallel. Files that cannot be parsed are logged
// and skipped; the build fails only when dir cannot be read, the context is
// cancelled, or nothing usable was found.
func BuildIndex(ctx context.Context, dir string) (*Index, error) {
	defer metrics.Timer(metrics.IndexBuild)()
	defer debug.LogEnterExit("datasource.BuildIndex")()

	files, err := ModuleFiles(dir)
	if err != nil {
		return nil, err
	}

	type fileResult struct {
		entries []Entry
		genes   []string
	}
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cellType, iteration, ok := ParseModuleFileName(path)
			if !ok {
				debug.Log("skipping %s: name does not match <cell>_<n>_T<k>_", filepath.Base(path))
				return nil
			}
			clusters, genes, err := readModuleFile(path)
			if err != nil {
				debug.Log("skipping %s: %v", filepath.Base(path), err)
				return nil
			}
			entries := make([]Entry, 0, len(clusters))
			for _, c := range clusters {
				entries = append(entries, Entry{
					CellType:  cellType,
					Cluster:   c,
					Iteration: iteration,
					File:      filepath.Base(path),
				})
			}
			results[i] = fileResult{entries: entries, genes: genes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var entries []Entry
	var genes []string
	for _, r := range results {
		entries = append(entries, r.entries...)
		genes = append(genes, r.genes...)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoModules)
	}
	debug.Log("indexed %d entries from %d files", len(entries), len(files))
	return NewIndex(entries, genes), nil
}

// readModuleFile returns the distinct subclusters and genes of one module
// file. A missing gene column is fine; a missing subcluster column is not.
func readModuleFile(path string) (clusters, genes []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	clusterCol, geneCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case "subcluster":
			clusterCol = i
		case "gene":
			geneCol = i
		}
	}
	if clusterCol < 0 {
		return nil, nil, errors.New("no subcluster column")
	}

	seenCluster := make(map[string]struct{})
	seenGene := make(map[string]struct{})
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if clusterCol < len(rec) {
			if c := NormalizeCluster(rec[clusterCol]); c != "" {
				if _, ok := seenCluster[c]; !ok {
					seenCluster[c] = struct{}{}
					clusters = append(clusters, c)
				}
			}
		}
		if geneCol >= 0 && geneCol < len(rec) {
			if gene := strings.TrimSpace(rec[geneCol]); gene != "" {
				if _, ok := seenGene[gene]; !ok {
					seenGene[gene] = struct{}{}
					genes = append(genes, gene)
				}
			}
		}
	}
	return clusters, genes, nil
}

// NormalizeCluster renders integral cluster ids without a fractional part,
// so "3.0" and "3" name the same cluster.
func NormalizeCluster(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}
