package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"github.com/vanderheijden86/sgv/pkg/metrics"
	"github.com/vanderheijden86/sgv/pkg/model"
	"github.com/vanderheijden86/sgv/pkg/version"
)

// View renders the whole screen.
func (m Model) View() string {
	defer metrics.Timer(metrics.UIRender)()

	if !m.ready {
		return "Loading…"
	}
	if m.showHelp {
		return m.help.View()
	}

	lines := []string{
		m.renderTitle(),
		m.renderFilters(),
		RenderDivider(m.width),
	}
	lines = append(lines, m.renderTable(m.bodyHeight())...)
	lines = append(lines,
		RenderDivider(m.width),
		m.renderStats(),
		m.renderFooter(),
	)
	return strings.Join(lines, "\n")
}

func (m Model) renderTitle() string {
	t := m.theme
	title := t.Header.Render("sgv")
	count := t.InfoText.Render(fmt.Sprintf("%d results", len(m.results)))
	if m.term == "" {
		count = t.MutedText.Render(fmt.Sprintf("%d records", m.dataset.Len()))
	}
	return title + " " + m.search.View() + "  " + count
}

func (m Model) renderFilters() string {
	w := max(8, (m.width-m.module.Width-12)/3-16)
	parts := []string{
		m.cascade.CellType.View(w, m.focused == focusCellType, m.theme),
		m.cascade.Cluster.View(w, m.focused == focusCluster, m.theme),
		m.cascade.Iteration.View(w, m.focused == focusIteration, m.theme),
		m.module.View(),
	}
	return strings.Join(parts, "   ")
}

// visibleColumns picks the columns to draw starting at the first one that
// keeps the cursor column on screen, trimming the last to fit avail cells.
func visibleColumns(widths []int, cursor, avail int) (start int, vis []int) {
	span := func(from, to int) int {
		total := 0
		for i := from; i <= to; i++ {
			total += widths[i] + 2
		}
		return total - 2
	}
	if cursor >= len(widths) {
		cursor = len(widths) - 1
	}
	for start < cursor && span(start, cursor) > avail {
		start++
	}
	used := 0
	for i := start; i < len(widths); i++ {
		w := widths[i]
		if used > 0 {
			used += 2
		}
		if used+w > avail {
			if rest := avail - used; rest > 0 {
				vis = append(vis, rest)
			}
			break
		}
		vis = append(vis, w)
		used += w
	}
	return start, vis
}

func (m Model) renderTable(height int) []string {
	t := m.theme
	rows := m.sorter.Rows()

	if len(rows) == 0 {
		msg := "No results. Press / to search a GO term, tab to pick filters, a to apply."
		if m.term != "" {
			msg = fmt.Sprintf("No results for %q with the current filters.", m.term)
		}
		out := []string{t.MutedText.Render(msg)}
		for len(out) < height+1 {
			out = append(out, "")
		}
		return out
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = r.Cells
	}
	labels := m.sorter.HeaderLabels()
	widths := columnWidths(labels, cells, m.cellWidth)
	prefix := 6 // cursor marker and toggle button
	start, vis := visibleColumns(widths, m.column, max(10, m.width-prefix))

	sortedCol := -1
	if col, _, ok := m.sorter.SortState(); ok {
		sortedCol = col
	}

	var header strings.Builder
	header.WriteString(strings.Repeat(" ", prefix))
	for i, w := range vis {
		if i > 0 {
			header.WriteString("  ")
		}
		label := fit(labels[start+i], w)
		switch {
		case start+i == m.column && m.focused == focusTable:
			header.WriteString(t.PrimaryBold.Underline(true).Render(label))
		case start+i == sortedCol:
			header.WriteString(t.SortArrow.Render(label))
		default:
			header.WriteString(t.InfoBold.Render(label))
		}
	}

	var lines []string
	cursorLine, cursorEnd := 0, 0
	for i, r := range rows {
		expanded := m.toggler.Expanded(r.Key)
		marker := "  "
		if i == m.cursor {
			marker = t.PrimaryBold.Render("▸ ")
			cursorLine = len(lines)
		}
		text := joinCells(r.Cells[min(start, len(r.Cells)):], vis)
		if i == m.cursor && m.focused == focusTable {
			text = t.Selected.Render(text)
		} else {
			text = t.Base.Render(text)
		}
		lines = append(lines, marker+RenderToggleButton(expanded)+" "+text)
		if expanded {
			lines = append(lines, m.renderDetail(m.toggler.Active())...)
		}
		if i == m.cursor {
			cursorEnd = len(lines)
		}
	}

	// Keep the cursor row, and as much of its detail as fits, on screen.
	first := max(0, cursorEnd-height)
	if first > cursorLine {
		first = cursorLine
	}
	last := min(len(lines), first+height)

	out := make([]string, 0, height+1)
	out = append(out, header.String())
	out = append(out, lines[first:last]...)
	for len(out) < height+1 {
		out = append(out, "")
	}
	return out
}

func (m Model) renderDetail(v *DetailView) []string {
	t := m.theme
	indent := "      "
	if v == nil {
		return nil
	}
	if v.Empty() {
		return []string{indent + t.MutedText.Render(NoDetailResults)}
	}
	avail := max(10, m.width-len(indent))
	widths := columnWidths(v.Headers, v.Rows, m.cellWidth)
	_, vis := visibleColumns(widths, 0, avail)

	lines := []string{
		indent + t.DetailHeader.Render(DetailTitle),
		indent + t.SecondaryText.Render(joinCells(v.Headers, vis)),
	}
	for _, r := range v.Rows {
		lines = append(lines, indent+t.Base.Render(joinCells(r, vis)))
	}
	return lines
}

func (m Model) renderStats() string {
	t := m.theme
	if m.term == "" || len(m.results) == 0 {
		return ""
	}
	st := m.stats
	var parts []string
	if st.HasTermIC {
		parts = append(parts, fmt.Sprintf("term IC %s", model.FormatIC(fmt.Sprint(st.TermIC))))
	}
	parts = append(parts, fmt.Sprintf("cell types %d/%d %s %.1f%%",
		st.CellTypes, model.TotalCellTypes, RenderMiniBar(st.CellTypesPercent/100, 8, t), st.CellTypesPercent))
	if st.HasSubgraphSize {
		parts = append(parts, fmt.Sprintf("mean size %g", st.MeanSubgraphSize))
	}
	if st.HasPValues {
		parts = append(parts, fmt.Sprintf("mean -log10(p) %.2f", st.MeanNegLog10P))
	}
	if st.HasIC {
		parts = append(parts, fmt.Sprintf("mean IC %.2f", st.MeanIC))
	}
	return t.InfoText.Render(strings.Join(parts, " · "))
}

func (m Model) renderFooter() string {
	t := m.theme
	if m.statusMsg != "" {
		if m.statusIsError {
			return t.ErrorText.Render(m.statusMsg)
		}
		return t.InfoText.Render(m.statusMsg)
	}
	hints := "tab focus · ←/→ change · enter expand · s sort · y copy genes · a apply · ? help · q quit"
	if col, dir, ok := m.sorter.SortState(); ok {
		hints = fmt.Sprintf("sorted by %s %s · ", model.Columns[col], dir.Indicator()) + hints
	}
	if m.cascade.Busy() {
		hints = "loading filters… · " + hints
	}
	return t.MutedText.Render(truncateRunesHelper(hints, max(10, m.width), "…"))
}

// helpMarkdown lists the key bindings and the timings collected so far.
func helpMarkdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# sgv %s\n\n", version.Version)
	sb.WriteString("## Keys\n\n| Key | Action |\n|---|---|\n")
	for _, kv := range [][2]string{
		{"tab / shift+tab", "Move focus: table, search, cell type, cluster, iteration, module"},
		{"/", "Edit the search term"},
		{"→ (search)", "Accept the suggested term name"},
		{"ctrl+n / ctrl+p (search)", "Next or previous suggestion"},
		{"m", "Edit the module filter, comma-separated"},
		{"← → (filters)", "Change the focused filter"},
		{"a / enter (filters)", "Apply term and filters"},
		{"j k ↑ ↓", "Move the row cursor"},
		{"← → (table)", "Move the column cursor"},
		{"s", "Sort by the column under the cursor, again to reverse"},
		{"1-9", "Sort by column n"},
		{"enter / space", "Expand or collapse the subgraph of the row"},
		{"y", "Copy the genes of the expanded subgraph"},
		{"r", "Reload filter lookups"},
		{"?", "Toggle this help"},
		{"q / ctrl+c", "Quit"},
	} {
		fmt.Fprintf(&sb, "| `%s` | %s |\n", kv[0], kv[1])
	}

	if stats := metrics.AllTimingStats(); len(stats) > 0 {
		sb.WriteString("\n## Timings\n\n| Operation | Count | Avg ms | Max ms |\n|---|---:|---:|---:|\n")
		for _, s := range stats {
			fmt.Fprintf(&sb, "| %s | %d | %.2f | %.2f |\n", s.Name, s.Count, s.AvgMs, s.MaxMs)
		}
	}
	return sb.String()
}

func (m *Model) openHelp() {
	md := helpMarkdown()
	out := md
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(20, m.width-4)),
	)
	if err == nil {
		if s, err := r.Render(md); err == nil {
			out = s
		}
	}
	m.help = viewport.New(max(20, m.width), max(5, m.height))
	m.help.SetContent(out)
	m.showHelp = true
}
