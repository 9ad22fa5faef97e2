package export

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vanderheijden86/sgv/pkg/model"
)

var cellEscaper = strings.NewReplacer(
	"|", `\|`,
	"\n", " ",
	"\r", "",
)

// escapeCell makes a value safe inside a markdown table cell.
func escapeCell(s string) string {
	return strings.TrimSpace(cellEscaper.Replace(s))
}

// GenerateMarkdown renders records as a markdown report: a summary block
// followed by one table row per record in the order given.
func GenerateMarkdown(records []model.Record, title string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "*Generated: %s*\n\n", time.Now().Format(time.RFC1123))

	subgraphs := make(map[string]struct{})
	cellTypes := make(map[string]struct{})
	for _, r := range records {
		if r.SubgraphID != "" {
			subgraphs[r.SubgraphID] = struct{}{}
		}
		if r.CellType != "" {
			cellTypes[model.NormalizeCellType(r.CellType)] = struct{}{}
		}
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Count |\n|--------|-------|\n")
	fmt.Fprintf(&sb, "| **Results** | %d |\n", len(records))
	fmt.Fprintf(&sb, "| Subgraphs | %d |\n", len(subgraphs))
	fmt.Fprintf(&sb, "| Cell types | %d |\n\n", len(cellTypes))

	if len(records) == 0 {
		sb.WriteString("No results.\n")
		return sb.String()
	}

	sb.WriteString("## Results\n\n")
	sb.WriteString("| " + strings.Join(model.Columns, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat("---|", len(model.Columns)) + "\n")
	for _, r := range records {
		cells := r.Cells()
		for i, c := range cells {
			cells[i] = escapeCell(c)
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return sb.String()
}

// SaveMarkdownToFile writes the generated markdown to a file.
func SaveMarkdownToFile(records []model.Record, title, filename string) error {
	return os.WriteFile(filename, []byte(GenerateMarkdown(records, title)), 0o644)
}
