package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/sgv/pkg/debug"
	"github.com/vanderheijden86/sgv/pkg/lookup"
	"github.com/vanderheijden86/sgv/pkg/metrics"
	"github.com/vanderheijden86/sgv/pkg/model"
)

// Option labels shown by the filter controls.
const (
	AllCellTypes           = "All cell types"
	AllClusters            = "All clusters"
	AllIterations          = "All iterations"
	NoIterationsForCluster = "No iterations found for this cluster"
	ErrLoadingCellTypes    = "Error loading cell types"
	ErrLoadingClusters     = "Error loading clusters"
	ErrLoadingIterations   = "Error loading iterations"
)

// DefaultLookupTimeout bounds a single lookup.
const DefaultLookupTimeout = 10 * time.Second

// ErrNoLookup is reported when the cascade has nothing to ask.
var ErrNoLookup = errors.New("no lookup source configured")

// CellTypesLoadedMsg carries the cell type lookup result.
type CellTypesLoadedMsg struct {
	Token     uint64
	CellTypes []string
	Err       error
}

// ClustersLoadedMsg carries the clusters of one cell type.
type ClustersLoadedMsg struct {
	Token    uint64
	CellType string
	Clusters []string
	Err      error
}

// IterationsLoadedMsg carries the iterations of a cell type. An empty
// Cluster marks the unscoped lookup that fills the iteration cache.
type IterationsLoadedMsg struct {
	Token      uint64
	CellType   string
	Cluster    string
	Iterations []string
	Err        error
}

// Cascade keeps the cell type, cluster and iteration controls consistent.
// Every lookup is issued as a tea.Cmd tagged with the request token of the
// control it fills; a result whose token is no longer current is dropped,
// so the last selection always wins.
type Cascade struct {
	CellType  *SelectControl
	Cluster   *SelectControl
	Iteration *SelectControl

	lookup  lookup.Lookup
	timeout time.Duration

	cellType string
	cluster  string

	// All iterations of cellType, shown when no cluster is selected and as
	// the fallback when a cluster has none of its own.
	currentIterations []string
	cacheReady        bool
	cacheLoading      bool

	cellTypeToken  uint64
	clusterToken   uint64
	cacheToken     uint64
	iterationToken uint64

	// Selections to apply once their options arrive.
	pendingCluster   string
	pendingIteration string

	lastErr error
}

// NewCascade returns a cascade with every dependent control disabled.
// timeout <= 0 uses DefaultLookupTimeout.
func NewCascade(l lookup.Lookup, timeout time.Duration) *Cascade {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Cascade{
		CellType:  NewSelectControl(CellTypeControl, "Cell type", AllCellTypes),
		Cluster:   NewSelectControl(ClusterControl, "Cluster", AllClusters),
		Iteration: NewSelectControl(IterationControl, "Iteration", AllIterations),
		lookup:    l,
		timeout:   timeout,
	}
}

// Init loads the cell types and, when a cell type is preset, runs its
// cascade straight away. A preset cluster is selected once the iteration
// cache is filled, then its own cascade runs; a preset iteration is selected
// once the iteration options settle.
func (c *Cascade) Init(cellType, cluster, iteration string) tea.Cmd {
	cmds := []tea.Cmd{c.loadCellTypes()}
	if cmd := c.SelectCellType(cellType); cmd != nil {
		cmds = append(cmds, cmd)
		c.pendingCluster = strings.TrimSpace(cluster)
		c.pendingIteration = strings.TrimSpace(iteration)
	}
	return tea.Batch(cmds...)
}

// Refresh re-runs every lookup, keeping the current selections.
func (c *Cascade) Refresh() tea.Cmd {
	return c.Init(c.cellType, c.cluster, c.Iteration.Value())
}

// SelectCellType handles a change of the cell type control. An empty value
// resets both dependents to their disabled sentinel and clears the cache.
func (c *Cascade) SelectCellType(v string) tea.Cmd {
	v = strings.TrimSpace(v)
	c.cellType = v
	c.cluster = ""
	c.currentIterations = nil
	c.cacheReady = false
	c.cacheLoading = false
	c.pendingCluster = ""
	c.pendingIteration = ""
	c.clusterToken++
	c.cacheToken++
	c.iterationToken++
	c.CellType.Select(v)

	if v == "" {
		c.Cluster.Reset()
		c.Iteration.Reset()
		return nil
	}
	c.Cluster.SetLoading()
	c.Iteration.SetLoading()
	return c.loadClusters(c.clusterToken, v)
}

// SelectCluster handles a change of the cluster control.
func (c *Cascade) SelectCluster(v string) tea.Cmd {
	if c.cellType == "" {
		c.cluster = ""
		c.Cluster.Reset()
		c.Iteration.Reset()
		return nil
	}
	v = strings.TrimSpace(v)
	c.cluster = v
	c.Cluster.Select(v)
	c.iterationToken++
	c.pendingIteration = ""

	if !c.cacheReady {
		// Pick the cluster up when the unscoped lookup lands. A failed one is
		// retried here.
		c.pendingCluster = v
		c.Iteration.SetLoading()
		if c.cacheLoading {
			return nil
		}
		return c.loadCache()
	}
	return c.runCluster()
}

// SelectIteration records the iteration choice. Unknown values are ignored.
func (c *Cascade) SelectIteration(v string) {
	c.Iteration.Select(strings.TrimSpace(v))
}

func (c *Cascade) runCluster() tea.Cmd {
	if c.cluster == "" {
		c.populateFromCache()
		return nil
	}
	c.Iteration.SetLoading()
	return c.loadIterations(c.iterationToken, c.cellType, c.cluster)
}

func (c *Cascade) populateFromCache() {
	c.Iteration.Populate(c.currentIterations)
	c.restoreIteration()
}

func (c *Cascade) restoreIteration() {
	if p := c.pendingIteration; p != "" {
		c.pendingIteration = ""
		if !c.Iteration.Select(p) {
			debug.Log("cascade: saved iteration %q is not available", p)
		}
	}
}

// Update applies lookup results. It reports whether msg was a cascade
// message.
func (c *Cascade) Update(msg tea.Msg) (bool, tea.Cmd) {
	switch msg := msg.(type) {
	case CellTypesLoadedMsg:
		c.onCellTypes(msg)
		return true, nil
	case ClustersLoadedMsg:
		return true, c.onClusters(msg)
	case IterationsLoadedMsg:
		return true, c.onIterations(msg)
	}
	return false, nil
}

func (c *Cascade) onCellTypes(msg CellTypesLoadedMsg) {
	if msg.Token != c.cellTypeToken {
		return
	}
	if msg.Err != nil {
		c.fail("cell types", msg.Err)
		c.CellType.SetError(ErrLoadingCellTypes)
		return
	}
	c.CellType.Populate(msg.CellTypes)
	if c.cellType != "" && !c.CellType.Select(c.cellType) {
		debug.Log("cascade: cell type %q is not in the lookup list", c.cellType)
	}
}

func (c *Cascade) onClusters(msg ClustersLoadedMsg) tea.Cmd {
	if msg.Token != c.clusterToken {
		debug.Log("cascade: dropping stale clusters for %q", msg.CellType)
		return nil
	}
	if msg.Err != nil {
		c.fail("clusters", msg.Err)
		c.Cluster.SetError(ErrLoadingClusters)
		c.Iteration.SetError(ErrLoadingIterations)
		c.cacheToken++
		c.cacheLoading = false
		return nil
	}
	c.Cluster.Populate(dedupe(msg.Clusters))
	return c.loadCache()
}

// loadCache issues the unscoped iteration lookup for the current cell type.
func (c *Cascade) loadCache() tea.Cmd {
	c.cacheToken++
	c.cacheLoading = true
	return c.loadIterations(c.cacheToken, c.cellType, "")
}

func (c *Cascade) onIterations(msg IterationsLoadedMsg) tea.Cmd {
	if msg.Cluster == "" {
		if msg.Token != c.cacheToken {
			debug.Log("cascade: dropping stale iterations for %q", msg.CellType)
			return nil
		}
		c.cacheLoading = false
		if msg.Err != nil {
			c.fail("iterations", msg.Err)
			c.pendingCluster = ""
			c.Iteration.SetError(ErrLoadingIterations)
			return nil
		}
		c.currentIterations = dedupe(msg.Iterations)
		c.cacheReady = true

		pending := c.pendingCluster
		c.pendingCluster = ""
		if pending != "" {
			if c.Cluster.Select(pending) {
				c.cluster = pending
			} else {
				debug.Log("cascade: cluster %q is not available", pending)
				c.cluster = ""
			}
		}
		return c.runCluster()
	}

	if msg.Token != c.iterationToken {
		debug.Log("cascade: dropping stale iterations for %q/%q", msg.CellType, msg.Cluster)
		return nil
	}
	if msg.Err != nil {
		c.fail("iterations", msg.Err)
		c.Iteration.SetError(ErrLoadingIterations)
		return nil
	}
	if iterations := dedupe(msg.Iterations); len(iterations) > 0 {
		c.Iteration.Populate(iterations)
	} else {
		c.Iteration.Populate(c.currentIterations, Option{Label: NoIterationsForCluster, Disabled: true})
	}
	c.restoreIteration()
	return nil
}

func (c *Cascade) fail(what string, err error) {
	debug.Log("cascade: loading %s failed: %v", what, err)
	c.lastErr = err
}

// Err returns the most recent lookup failure, for the status line.
func (c *Cascade) Err() error {
	return c.lastErr
}

// ClearErr forgets the last failure.
func (c *Cascade) ClearErr() {
	c.lastErr = nil
}

// CurrentIterations returns the cached unscoped iterations.
func (c *Cascade) CurrentIterations() []string {
	return c.currentIterations
}

// Busy reports whether any lookup is in flight.
func (c *Cascade) Busy() bool {
	return c.Cluster.Loading() || c.Iteration.Loading()
}

// Selection returns the applied filter values; empty means "all".
func (c *Cascade) Selection() (cellType, cluster, iteration string) {
	return c.cellType, c.cluster, c.Iteration.Value()
}

// Filter turns the selection into a results filter.
func (c *Cascade) Filter() model.Filter {
	cellType, cluster, iteration := c.Selection()
	return model.Filter{CellType: cellType, Cluster: cluster, Iteration: iteration}
}

func (c *Cascade) loadCellTypes() tea.Cmd {
	c.cellTypeToken++
	token := c.cellTypeToken
	l, timeout := c.lookup, c.timeout
	return func() tea.Msg {
		if l == nil {
			return CellTypesLoadedMsg{Token: token, Err: ErrNoLookup}
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		cellTypes, err := l.CellTypes(ctx)
		return CellTypesLoadedMsg{Token: token, CellTypes: cellTypes, Err: err}
	}
}

func (c *Cascade) loadClusters(token uint64, cellType string) tea.Cmd {
	l, timeout := c.lookup, c.timeout
	return func() tea.Msg {
		if l == nil {
			return ClustersLoadedMsg{Token: token, CellType: cellType, Err: ErrNoLookup}
		}
		defer metrics.Timer(metrics.LookupClusters)()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		clusters, err := l.Clusters(ctx, cellType)
		return ClustersLoadedMsg{Token: token, CellType: cellType, Clusters: clusters, Err: err}
	}
}

func (c *Cascade) loadIterations(token uint64, cellType, cluster string) tea.Cmd {
	l, timeout := c.lookup, c.timeout
	return func() tea.Msg {
		if l == nil {
			return IterationsLoadedMsg{Token: token, CellType: cellType, Cluster: cluster, Err: ErrNoLookup}
		}
		defer metrics.Timer(metrics.LookupIterations)()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		iterations, err := l.Iterations(ctx, cellType, cluster)
		return IterationsLoadedMsg{Token: token, CellType: cellType, Cluster: cluster, Iterations: iterations, Err: err}
	}
}

// dedupe drops blanks and repeats, keeping first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
