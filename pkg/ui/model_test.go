package ui

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/sgv/pkg/config"
	"github.com/vanderheijden86/sgv/pkg/model"
)

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// press feeds keys to the model and drops the commands they return.
func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		updated, _ := m.Update(keyMsg(k))
		m = updated.(Model)
	}
	return m
}

// pressLookup feeds select keys and runs the cascade lookups they start.
func pressLookup(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		updated, cmd := m.Update(keyMsg(k))
		m = updated.(Model)
		drain(t, m.Cascade(), cmd)
	}
	return m
}

func newTestModel(t *testing.T, opts Options) Model {
	t.Helper()
	if opts.Dataset == nil {
		opts.Dataset = testDataset()
	}
	if opts.Lookup == nil {
		opts.Lookup = newFakeLookup()
	}
	m := NewModel(opts)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	return updated.(Model)
}

func TestModelInitialSearch(t *testing.T) {
	m := newTestModel(t, Options{Term: "axon guidance"})
	res := m.Results()
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].SubgraphID != "sg1" || res[1].SubgraphID != "sg2" {
		t.Errorf("results not ordered by p-value: %s, %s", res[0].SubgraphID, res[1].SubgraphID)
	}
	if st := m.FilterState(); st.Term != "axon guidance" {
		t.Errorf("FilterState term = %q", st.Term)
	}
}

func TestModelInitialFilterFromState(t *testing.T) {
	m := newTestModel(t, Options{State: config.FilterState{Term: "axon guidance", CellType: "Tcell"}})
	if res := m.Results(); len(res) != 1 || res[0].SubgraphID != "sg2" {
		t.Errorf("results = %+v", res)
	}
}

func TestModelToggleSingleExpansion(t *testing.T) {
	m := newTestModel(t, Options{Term: "axon guidance"})

	m = press(t, m, "enter")
	first := m.Sorter().Rows()[0].Key
	if !m.Toggler().Expanded(first) {
		t.Fatal("enter should expand the cursor row")
	}
	if !strings.Contains(m.View(), DetailTitle) {
		t.Error("view should show the detail table")
	}

	m = press(t, m, "j", "enter")
	second := m.Sorter().Rows()[1].Key
	if m.Toggler().Expanded(first) || !m.Toggler().Expanded(second) {
		t.Error("exactly the second row should be expanded")
	}
	if got := strings.Count(m.View(), DetailTitle); got != 1 {
		t.Errorf("expected one detail table in view, found %d", got)
	}

	m = press(t, m, "enter")
	if m.Toggler().Active() != nil {
		t.Error("second enter should collapse")
	}
}

func TestModelPlaceholderForUnknownSubgraph(t *testing.T) {
	ds := model.NewDataset([]model.Record{{SubgraphID: "", TermName: "lonely", PValue: "0.1"}})
	m := newTestModel(t, Options{Dataset: ds, Term: "lonely"})
	m.Toggler().SetDataset(model.NewDataset(nil))
	m = press(t, m, "enter")
	if !strings.Contains(m.View(), NoDetailResults) {
		t.Error("expected the no-results placeholder")
	}
}

func TestModelSortKeepsCursorRecord(t *testing.T) {
	m := newTestModel(t, Options{Term: "axon guidance"})
	m = press(t, m, "j") // cursor on sg2 (cluster 3)
	before := m.Results()[1].SubgraphID

	m = press(t, m, "3") // Cluster column ascending: "3" before "11"
	col, dir, ok := m.Sorter().SortState()
	if !ok || col != 2 || dir != SortAscending {
		t.Fatalf("SortState = %d %v %v", col, dir, ok)
	}
	if got := m.Results()[0].SubgraphID; got != "sg2" {
		t.Errorf("first row after sort = %s", got)
	}
	rec, _, _ := m.currentRecord()
	if rec.SubgraphID != before {
		t.Errorf("cursor moved to %s, want %s", rec.SubgraphID, before)
	}

	m = press(t, m, "s") // same column again: descending
	if _, dir, _ := m.Sorter().SortState(); dir != SortDescending {
		t.Error("second sort on the column should descend")
	}
	if got := m.Sorter().HeaderLabels()[2]; got != "Cluster ▼" {
		t.Error("header should show the descending indicator")
	}
}

func TestModelFilterCascadeAndApply(t *testing.T) {
	m := newTestModel(t, Options{Term: "axon guidance"})
	drain(t, m.Cascade(), m.Cascade().Init("", "", ""))

	// table -> search -> cell type
	m = press(t, m, "tab", "tab")
	if m.focused != focusCellType {
		t.Fatalf("focus = %d", m.focused)
	}
	m = pressLookup(t, m, "right", "right") // Bcell, then Tcell
	if v := m.Cascade().CellType.Value(); v != "Tcell" {
		t.Fatalf("cell type = %q", v)
	}
	if got := m.Cascade().Cluster.Labels(); len(got) != 3 {
		t.Errorf("cluster options = %q", got)
	}

	m = press(t, m, "a")
	if res := m.Results(); len(res) != 1 || res[0].SubgraphID != "sg2" {
		t.Errorf("filtered results = %+v", res)
	}
	if st := m.FilterState(); st.CellType != "Tcell" {
		t.Errorf("FilterState = %+v", st)
	}

	// Back to all cell types: the dependents reset.
	m = pressLookup(t, m, "left", "left")
	if m.Cascade().Cluster.Enabled() {
		t.Error("cluster control should be disabled again")
	}
}

func TestModelSearchInput(t *testing.T) {
	m := newTestModel(t, Options{})
	if len(m.Results()) != 3 {
		t.Fatalf("empty term should list every record, got %d", len(m.Results()))
	}
	m = press(t, m, "/", "s", "y", "n", "a", "p", "s", "e", "enter")
	if m.focused != focusTable {
		t.Error("enter should return focus to the table")
	}
	if res := m.Results(); len(res) != 1 || res[0].TermName != "synapse" {
		t.Errorf("results = %+v", res)
	}
}

func TestModelLookupErrorShowsStatus(t *testing.T) {
	f := newFakeLookup()
	f.fail["clusters"] = errors.New("unreachable")
	m := newTestModel(t, Options{Lookup: f})

	updated, _ := m.Update(ClustersLoadedMsg{Token: 99, Err: errors.New("stale")})
	m = updated.(Model)
	if m.statusIsError {
		t.Error("stale failures should not reach the status line")
	}

	cmd := m.Cascade().SelectCellType("Tcell")
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	if !m.statusIsError || !strings.Contains(m.statusMsg, "unreachable") {
		t.Errorf("status = %q", m.statusMsg)
	}
}

func TestModelCopyWithoutExpansion(t *testing.T) {
	m := newTestModel(t, Options{})
	m = press(t, m, "y")
	if !m.statusIsError {
		t.Error("copy without an expanded row should report an error")
	}
}

func TestModelDatasetReload(t *testing.T) {
	m := newTestModel(t, Options{Term: "synapse"})
	m = press(t, m, "enter")

	updated, _ := m.Update(DatasetReloadedMsg{Dataset: model.NewDataset([]model.Record{
		{SubgraphID: "sg9", TermName: "synapse", PValue: "0.5"},
		{SubgraphID: "sg8", TermName: "synapse", PValue: "0.1"},
	})})
	m = updated.(Model)
	if m.Toggler().Active() != nil {
		t.Error("reload should collapse the detail row")
	}
	if res := m.Results(); len(res) != 2 || res[0].SubgraphID != "sg8" {
		t.Errorf("results after reload = %+v", res)
	}

	updated, _ = m.Update(DatasetReloadedMsg{Err: errors.New("parse error")})
	m = updated.(Model)
	if !m.statusIsError {
		t.Error("failed reload should be reported")
	}
}

func TestModelHelpOverlay(t *testing.T) {
	m := newTestModel(t, Options{})
	m = press(t, m, "?")
	if !m.showHelp {
		t.Fatal("? should open help")
	}
	if !strings.Contains(m.View(), "Keys") {
		t.Error("help should list the keys")
	}
	m = press(t, m, "esc")
	if m.showHelp {
		t.Error("esc should close help")
	}
}

func TestModelViewBeforeReady(t *testing.T) {
	m := NewModel(Options{Dataset: testDataset()})
	if v := m.View(); v != "Loading…" {
		t.Errorf("View = %q", v)
	}
	updated, _ := m.Update(ReadyTimeoutMsg{})
	if v := updated.(Model).View(); v == "Loading…" {
		t.Error("ready timeout should show the UI")
	}
}

func TestModelStatsLine(t *testing.T) {
	m := newTestModel(t, Options{Term: "axon guidance"})
	if s := m.renderStats(); !strings.Contains(s, "cell types 2/24") {
		t.Errorf("stats = %q", s)
	}
	m2 := newTestModel(t, Options{})
	if s := m2.renderStats(); s != "" {
		t.Errorf("stats without a term = %q", s)
	}
}

func TestVisibleColumns(t *testing.T) {
	widths := []int{10, 10, 10, 10}
	start, vis := visibleColumns(widths, 0, 25)
	if start != 0 || len(vis) != 3 || vis[2] != 1 {
		t.Errorf("start=%d vis=%v", start, vis)
	}
	start, vis = visibleColumns(widths, 3, 25)
	if start != 2 || len(vis) != 2 {
		t.Errorf("cursor at the end: start=%d vis=%v", start, vis)
	}
}

func TestModelReloadKeepsAppliedFilter(t *testing.T) {
	m := newTestModel(t, Options{Term: "axon guidance"})
	drain(t, m.Cascade(), m.Cascade().Init("", "", ""))

	// Pick Tcell but do not apply it.
	m = press(t, m, "tab", "tab")
	m = pressLookup(t, m, "right", "right")
	if v := m.Cascade().CellType.Value(); v != "Tcell" {
		t.Fatalf("cell type = %q", v)
	}

	updated, _ := m.Update(DatasetReloadedMsg{Dataset: testDataset()})
	m = updated.(Model)
	if res := m.Results(); len(res) != 2 {
		t.Errorf("reload applied a pending filter: %d results", len(res))
	}
	if f := m.Applied(); f.CellType != "" {
		t.Errorf("applied filter = %+v", f)
	}

	m = press(t, m, "a")
	if res := m.Results(); len(res) != 1 || res[0].SubgraphID != "sg2" {
		t.Errorf("results after apply = %+v", res)
	}
}

func moduleDataset() *model.Dataset {
	return model.NewDataset([]model.Record{
		{SubgraphID: "sg1", Module: "red", TermName: "synapse", PValue: "0.01"},
		{SubgraphID: "sg2", Module: "blue", TermName: "synapse", PValue: "0.02"},
		{SubgraphID: "sg3", Module: "green", TermName: "synapse", PValue: "0.03"},
	})
}

func TestModelModuleFilter(t *testing.T) {
	m := newTestModel(t, Options{Dataset: moduleDataset()})
	m = press(t, m, "m")
	if m.focused != focusModule {
		t.Fatalf("focus = %d", m.focused)
	}
	m = press(t, m, "r", "e", "d", ",", " ", "b", "l", "u", "e", "enter")
	if m.focused != focusTable {
		t.Error("enter should return focus to the table")
	}
	var ids []string
	for _, r := range m.Results() {
		ids = append(ids, r.SubgraphID)
	}
	if !reflect.DeepEqual(ids, []string{"sg1", "sg2"}) {
		t.Errorf("results = %q", ids)
	}
	if got := m.Applied().Module; got != "red,blue" {
		t.Errorf("applied module = %q", got)
	}
	if st := m.FilterState(); st.Module != "red,blue" {
		t.Errorf("FilterState module = %q", st.Module)
	}

	// Esc drops an unapplied edit.
	m = press(t, m, "m", "x", "esc")
	if v := m.module.Value(); v != "red,blue" {
		t.Errorf("module input after esc = %q", v)
	}
	if !strings.Contains(m.View(), "Module:") {
		t.Error("view should show the module input")
	}
}

func TestModelModuleFromState(t *testing.T) {
	m := newTestModel(t, Options{Dataset: moduleDataset(), State: config.FilterState{Module: " green "}})
	if res := m.Results(); len(res) != 1 || res[0].SubgraphID != "sg3" {
		t.Errorf("results = %+v", res)
	}
}

func TestModelTermSuggestionsFromDataset(t *testing.T) {
	m := newTestModel(t, Options{})
	m = press(t, m, "/", "a", "x")
	if got := m.search.AvailableSuggestions(); !reflect.DeepEqual(got, []string{"axon guidance"}) {
		t.Errorf("suggestions = %q", got)
	}
	m = press(t, m, "right")
	if v := m.search.Value(); v != "axon guidance" {
		t.Errorf("accepted value = %q", v)
	}
	m = press(t, m, "enter")
	if len(m.Results()) != 2 {
		t.Errorf("results = %d", len(m.Results()))
	}
}

type fakeTerms struct {
	prefixes []string
}

func (f *fakeTerms) Terms(_ context.Context, prefix string) ([]string, error) {
	f.prefixes = append(f.prefixes, prefix)
	return []string{"synapse", "synaptic signaling"}, nil
}

func TestModelTermSuggestionsFromSource(t *testing.T) {
	src := &fakeTerms{}
	m := newTestModel(t, Options{Terms: src})
	m.search.SetValue("syn")
	cmd := m.suggestTerms()
	if cmd == nil {
		t.Fatal("a term source should be queried asynchronously")
	}
	msg := cmd().(TermsLoadedMsg)

	// A newer keystroke makes the answer stale.
	m.search.SetValue("syna")
	next := m.suggestTerms()
	updated, _ := m.Update(msg)
	m = updated.(Model)
	if got := m.search.AvailableSuggestions(); len(got) != 0 {
		t.Errorf("stale suggestions applied: %q", got)
	}

	updated, _ = m.Update(next())
	m = updated.(Model)
	if got := m.search.AvailableSuggestions(); len(got) != 2 {
		t.Errorf("suggestions = %q", got)
	}
	if !reflect.DeepEqual(src.prefixes, []string{"syn", "syna"}) {
		t.Errorf("prefixes = %q", src.prefixes)
	}
}
