package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/sgv/pkg/config"
	"github.com/vanderheijden86/sgv/pkg/debug"
	"github.com/vanderheijden86/sgv/pkg/lookup"
	"github.com/vanderheijden86/sgv/pkg/metrics"
	"github.com/vanderheijden86/sgv/pkg/model"
	"github.com/vanderheijden86/sgv/pkg/watcher"
)

// focus represents which UI element has keyboard focus
type focus int

const (
	focusTable focus = iota
	focusSearch
	focusCellType
	focusCluster
	focusIteration
	focusModule
	numFocus // Keep last, used for cycling
)

// chromeLines is the number of lines around the table body: title, filters,
// two dividers, table header, stats, footer.
const chromeLines = 7

// FileChangedMsg is sent when the annotations file changes on disk
type FileChangedMsg struct{}

// DatasetReloadedMsg carries a freshly loaded dataset.
type DatasetReloadedMsg struct {
	Dataset *model.Dataset
	Err     error
}

// TermsLoadedMsg carries term name suggestions for the search box.
type TermsLoadedMsg struct {
	Token  uint64
	Prefix string
	Terms  []string
	Err    error
}

// TermSource suggests term names by prefix. *lookup.Client satisfies it.
type TermSource interface {
	Terms(ctx context.Context, prefix string) ([]string, error)
}

// ReadyTimeoutMsg is sent after a short delay to ensure the UI becomes ready
// even if the terminal doesn't send WindowSizeMsg promptly.
type ReadyTimeoutMsg struct{}

// ReadyTimeoutCmd returns a command that sends ReadyTimeoutMsg after 100ms.
func ReadyTimeoutCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return ReadyTimeoutMsg{}
	})
}

// WatchFileCmd returns a command that waits for file changes and sends FileChangedMsg
func WatchFileCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		<-w.Changed()
		return FileChangedMsg{}
	}
}

// ReloadCmd loads the dataset again off the UI goroutine.
func ReloadCmd(reload func() (*model.Dataset, error)) tea.Cmd {
	return func() tea.Msg {
		ds, err := reload()
		return DatasetReloadedMsg{Dataset: ds, Err: err}
	}
}

// Options configures a Model.
type Options struct {
	Dataset   *model.Dataset
	Lookup    lookup.Lookup
	Timeout   time.Duration
	MaxGenes  int
	CellWidth int

	// Initial search term and filter selection, e.g. from the state file.
	Term  string
	State config.FilterState

	// Terms feeds the search box suggestions. Nil suggests from Dataset.
	Terms TermSource

	// Watcher and Reload enable live reload of the dataset.
	Watcher *watcher.Watcher
	Reload  func() (*model.Dataset, error)
}

// Model is the main Bubble Tea model: a term search box, the filter
// cascade, a module filter, and the sortable results table with one
// expandable row.
type Model struct {
	theme   Theme
	dataset *model.Dataset

	cascade *Cascade
	sorter  *TableSorter
	toggler *Toggler
	results []model.Record
	stats   model.EnrichmentStats

	search   textinput.Model
	term     string
	module   textinput.Model
	applied  model.Filter
	help     viewport.Model
	showHelp bool

	focused focus
	cursor  int
	column  int

	width, height int
	ready         bool
	maxGenes      int
	cellWidth     int

	statusMsg     string
	statusIsError bool

	terms     TermSource
	termToken uint64
	timeout   time.Duration

	initial config.FilterState
	watcher *watcher.Watcher
	reload  func() (*model.Dataset, error)
}

// NewModel builds the model and runs the initial search with the initial
// filter selection, the way a reloaded results page shows its last query.
func NewModel(opts Options) Model {
	ds := opts.Dataset
	if ds == nil {
		ds = model.NewDataset(nil)
	}
	if opts.MaxGenes <= 0 {
		opts.MaxGenes = model.DefaultMaxGenes
	}

	search := textinput.New()
	search.Prompt = "Term: "
	search.Placeholder = "GO term name or id"
	search.CharLimit = 200
	search.ShowSuggestions = true
	search.KeyMap.AcceptSuggestion = key.NewBinding(key.WithKeys("right"))

	module := textinput.New()
	module.Prompt = "Module: "
	module.Placeholder = "red, blue"
	module.CharLimit = 200
	module.Width = 16
	module.SetValue(opts.State.Module)

	term := opts.Term
	if term == "" {
		term = opts.State.Term
	}
	search.SetValue(term)

	m := Model{
		theme:     DefaultTheme(lipgloss.DefaultRenderer()),
		dataset:   ds,
		cascade:   NewCascade(opts.Lookup, opts.Timeout),
		sorter:    NewTableSorter(model.Columns, nil),
		toggler:   NewToggler(ds, opts.MaxGenes),
		search:    search,
		term:      strings.TrimSpace(term),
		module:    module,
		terms:     opts.Terms,
		timeout:   opts.Timeout,
		maxGenes:  opts.MaxGenes,
		cellWidth: opts.CellWidth,
		initial:   opts.State,
		watcher:   opts.Watcher,
		reload:    opts.Reload,
	}
	m.initial.Term = m.term
	m.runSearch(model.Filter{
		CellType:  opts.State.CellType,
		Cluster:   opts.State.Cluster,
		Iteration: opts.State.Iteration,
		Module:    normalizeList(opts.State.Module),
	})
	return m
}

// normalizeList trims each entry of a comma-separated list and drops
// empty ones.
func normalizeList(s string) string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ",")
}

// Init starts the filter cascade from the initial selection.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		ReadyTimeoutCmd(),
		m.cascade.Init(m.initial.CellType, m.initial.Cluster, m.initial.Iteration),
	}
	if m.watcher != nil && m.reload != nil {
		cmds = append(cmds, WatchFileCmd(m.watcher))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if handled, cmd := m.cascade.Update(msg); handled {
		if err := m.cascade.Err(); err != nil {
			m.setError(fmt.Sprintf("Lookup failed: %v", err))
			m.cascade.ClearErr()
		}
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.search.Width = max(10, m.width/3)
		m.help.Width, m.help.Height = m.width, m.height
		return m, nil

	case ReadyTimeoutMsg:
		if !m.ready {
			if m.width == 0 {
				m.width, m.height = 80, 24
			}
			m.ready = true
		}
		return m, nil

	case FileChangedMsg:
		debug.Log("annotations changed on disk, reloading")
		return m, tea.Batch(ReloadCmd(m.reload), WatchFileCmd(m.watcher))

	case DatasetReloadedMsg:
		if msg.Err != nil {
			m.setError(fmt.Sprintf("Reload failed: %v", msg.Err))
			return m, nil
		}
		m.SetDataset(msg.Dataset)
		m.setStatus(fmt.Sprintf("Reloaded %d records", m.dataset.Len()))
		return m, m.cascade.Refresh()

	case TermsLoadedMsg:
		if msg.Token != m.termToken {
			return m, nil
		}
		if msg.Err != nil {
			debug.Log("term suggestions for %q: %v", msg.Prefix, msg.Err)
			return m, nil
		}
		m.search.SetSuggestions(msg.Terms)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// suggestTerms refreshes the search box suggestions for its current value.
// Without a TermSource they come from the loaded dataset.
func (m *Model) suggestTerms() tea.Cmd {
	m.termToken++
	prefix := strings.TrimSpace(m.search.Value())
	if prefix == "" {
		m.search.SetSuggestions(nil)
		return nil
	}
	if m.terms == nil {
		m.search.SetSuggestions(m.dataset.Terms(prefix, lookup.MaxSuggestions))
		return nil
	}
	token, src, timeout := m.termToken, m.terms, m.timeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		terms, err := src.Terms(ctx, prefix)
		return TermsLoadedMsg{Token: token, Prefix: prefix, Terms: terms, Err: err}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	m.statusMsg = ""
	m.statusIsError = false

	if m.showHelp {
		switch key {
		case "?", "esc", "q":
			m.showHelp = false
			return m, nil
		}
		var cmd tea.Cmd
		m.help, cmd = m.help.Update(msg)
		return m, cmd
	}

	if input := m.focusedInput(); input != nil {
		switch key {
		case "enter":
			m.applyFilters()
			return m, m.setFocus(focusTable)
		case "esc":
			m.search.SetValue(m.term)
			m.module.SetValue(m.applied.Module)
			return m, m.setFocus(focusTable)
		case "tab":
			return m, m.cycleFocus(1)
		case "shift+tab":
			return m, m.cycleFocus(-1)
		}
		before := input.Value()
		var cmd tea.Cmd
		*input, cmd = input.Update(msg)
		if m.focused == focusSearch && input.Value() != before {
			return m, tea.Batch(cmd, m.suggestTerms())
		}
		return m, cmd
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "?":
		m.openHelp()
		return m, nil
	case "tab":
		return m, m.cycleFocus(1)
	case "shift+tab":
		return m, m.cycleFocus(-1)
	case "/":
		return m, m.setFocus(focusSearch)
	case "m":
		return m, m.setFocus(focusModule)
	case "a":
		m.applyFilters()
		return m, nil
	case "r":
		return m, m.cascade.Refresh()
	}

	if m.focused == focusTable {
		m.handleTableKey(key)
		return m, nil
	}
	return m, m.handleSelectKey(key)
}

func (m *Model) handleSelectKey(key string) tea.Cmd {
	ctl := m.focusedControl()
	if ctl == nil {
		return nil
	}
	delta := 0
	switch key {
	case "left", "h", "up", "k":
		delta = -1
	case "right", "l", "down", "j":
		delta = 1
	case "enter":
		m.applyFilters()
		return nil
	case "esc":
		return m.setFocus(focusTable)
	}
	if delta == 0 || !ctl.Move(delta) {
		return nil
	}
	v := ctl.Value()
	switch m.focused {
	case focusCellType:
		return m.cascade.SelectCellType(v)
	case focusCluster:
		return m.cascade.SelectCluster(v)
	case focusIteration:
		m.cascade.SelectIteration(v)
	}
	return nil
}

func (m *Model) handleTableKey(key string) {
	n := m.sorter.Len()
	page := max(1, m.bodyHeight()-1)
	switch key {
	case "j", "down":
		m.cursor++
	case "k", "up":
		m.cursor--
	case "g", "home":
		m.cursor = 0
	case "G", "end":
		m.cursor = n - 1
	case "pgdown", "ctrl+d":
		m.cursor += page
	case "pgup", "ctrl+u":
		m.cursor -= page
	case "left", "h":
		m.column = max(0, m.column-1)
	case "right", "l":
		m.column = min(len(model.Columns)-1, m.column+1)
	case "s":
		m.sortBy(m.column)
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		col, _ := strconv.Atoi(key)
		m.column = col - 1
		m.sortBy(m.column)
	case "enter", " ":
		m.toggleCurrent()
	case "esc":
		m.toggler.Collapse()
	case "y":
		m.copyGenes()
	}
	m.cursor = max(0, min(m.cursor, n-1))
}

// sortBy re-sorts on col, keeping the cursor on the same record.
func (m *Model) sortBy(col int) {
	key := m.currentKey()
	m.sorter.SortBy(col)
	if i := m.sorter.IndexOf(key); i >= 0 {
		m.cursor = i
	}
}

func (m *Model) toggleCurrent() {
	rec, key, ok := m.currentRecord()
	if !ok {
		return
	}
	m.toggler.Toggle(key, rec.SubgraphID)
}

func (m *Model) copyGenes() {
	genes := m.toggler.GeneList()
	if genes == "" {
		m.setError("Expand a row to copy its genes")
		return
	}
	if err := clipboard.WriteAll(genes); err != nil {
		m.setError(fmt.Sprintf("Clipboard error: %v", err))
		return
	}
	m.setStatus(fmt.Sprintf("Copied %d genes of %s", strings.Count(genes, ",")+1, m.toggler.Active().SubgraphID))
}

func (m *Model) currentKey() string {
	rows := m.sorter.Rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return ""
	}
	return rows[m.cursor].Key
}

func (m *Model) currentRecord() (model.Record, string, bool) {
	key := m.currentKey()
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(m.results) {
		return model.Record{}, "", false
	}
	return m.results[i], key, true
}

func (m *Model) setFocus(f focus) tea.Cmd {
	m.focused = f
	m.search.Blur()
	m.module.Blur()
	switch f {
	case focusSearch:
		return m.search.Focus()
	case focusModule:
		return m.module.Focus()
	}
	return nil
}

// focusedInput returns the text input with focus, if any.
func (m *Model) focusedInput() *textinput.Model {
	switch m.focused {
	case focusSearch:
		return &m.search
	case focusModule:
		return &m.module
	}
	return nil
}

func (m *Model) cycleFocus(delta int) tea.Cmd {
	next := (int(m.focused) + delta + int(numFocus)) % int(numFocus)
	return m.setFocus(focus(next))
}

func (m *Model) focusedControl() *SelectControl {
	switch m.focused {
	case focusCellType:
		return m.cascade.CellType
	case focusCluster:
		return m.cascade.Cluster
	case focusIteration:
		return m.cascade.Iteration
	}
	return nil
}

// applyFilters submits the search term, the cascade selection and the
// module filter.
func (m *Model) applyFilters() {
	m.term = strings.TrimSpace(m.search.Value())
	f := m.cascade.Filter()
	f.Module = normalizeList(m.module.Value())
	m.runSearch(f)
	m.setStatus(fmt.Sprintf("%d results", len(m.results)))
}

// runSearch runs the search with f and remembers f as the applied filter.
func (m *Model) runSearch(f model.Filter) {
	defer metrics.Timer(metrics.Search)()
	m.applied = f
	m.results = m.dataset.Search(m.term, f)
	rows := make([]Row, len(m.results))
	for i, r := range m.results {
		rows[i] = Row{Key: strconv.Itoa(i), Cells: resultCells(r, m.maxGenes)}
	}
	m.sorter.SetRows(rows)
	m.toggler.Collapse()
	m.cursor = 0
	m.stats = model.EnrichmentStats{}
	if m.term != "" && len(m.results) > 0 {
		m.stats = model.ComputeStats(m.results, m.dataset)
	}
	debug.Log("search %q %+v: %d results", m.term, f, len(m.results))
}

// resultCells renders a result row in model.Columns order.
func resultCells(r model.Record, maxGenes int) []string {
	cells := r.Cells()
	for i, c := range model.Columns {
		if c == "Intersection" {
			cells[i] = model.FormatIntersectionN(r.Intersection, maxGenes)
		}
	}
	return cells
}

// SetDataset swaps the dataset and re-runs the last applied search. Filter
// changes not yet applied stay pending.
func (m *Model) SetDataset(ds *model.Dataset) {
	if ds == nil {
		ds = model.NewDataset(nil)
	}
	m.dataset = ds
	m.toggler.SetDataset(ds)
	m.runSearch(m.applied)
}

// Applied returns the filter behind the current results.
func (m Model) Applied() model.Filter {
	return m.applied
}

// Results returns the results in display order.
func (m Model) Results() []model.Record {
	rows := m.sorter.Rows()
	out := make([]model.Record, 0, len(rows))
	for _, r := range rows {
		if i, err := strconv.Atoi(r.Key); err == nil && i < len(m.results) {
			out = append(out, m.results[i])
		}
	}
	return out
}

// FilterState returns the applied term and current filter selection for
// saving.
func (m Model) FilterState() config.FilterState {
	cellType, cluster, iteration := m.cascade.Selection()
	return config.FilterState{
		Term:      m.term,
		CellType:  cellType,
		Cluster:   cluster,
		Iteration: iteration,
		Module:    normalizeList(m.module.Value()),
	}
}

// Cascade exposes the filter controller.
func (m Model) Cascade() *Cascade {
	return m.cascade
}

// Toggler exposes the expansion state.
func (m Model) Toggler() *Toggler {
	return m.toggler
}

// Sorter exposes the results table.
func (m Model) Sorter() *TableSorter {
	return m.sorter
}

func (m *Model) setStatus(s string) {
	m.statusMsg = s
	m.statusIsError = false
}

func (m *Model) setError(s string) {
	m.statusMsg = s
	m.statusIsError = true
}

func (m Model) bodyHeight() int {
	return max(1, m.height-chromeLines)
}
