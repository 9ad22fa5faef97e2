// Package export writes search results to files: a CSV download, a
// markdown report, a SQLite database, or an SVG/PNG chart of subgraph sizes.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vanderheijden86/sgv/pkg/model"
)

// Format names an export file type.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatSQLite   Format = "sqlite"
	FormatSVG      Format = "svg"
	FormatPNG      Format = "png"
)

// Options controls Save.
type Options struct {
	Path    string         // Output path; format inferred from extension when Format empty
	Format  Format         // Overrides the extension
	Title   string         // Report or chart title
	Term    string         // Search term the records answer
	Filter  model.Filter   // Filter applied to the records, recorded as metadata
	Records []model.Record // Results in display order
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".sqlite", ".sqlite3", ".db":
		return FormatSQLite, nil
	case ".svg":
		return FormatSVG, nil
	case ".png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("cannot infer export format from %q (want .csv, .md, .sqlite, .svg or .png)", path)
	}
}

// Save writes opts.Records to opts.Path in the requested format.
func Save(opts Options) error {
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}
	format := Format(strings.ToLower(strings.TrimPrefix(string(opts.Format), ".")))
	if format == "" {
		f, err := DetectFormat(opts.Path)
		if err != nil {
			return err
		}
		format = f
	}
	if opts.Title == "" {
		opts.Title = "Subgraph enrichment results"
		if opts.Term != "" {
			opts.Title = fmt.Sprintf("Subgraphs enriched for %s", opts.Term)
		}
	}

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create parent dir: %w", err)
		}
	}

	switch format {
	case FormatCSV:
		return SaveCSVToFile(opts.Records, opts.Path)
	case FormatMarkdown:
		return SaveMarkdownToFile(opts.Records, opts.Title, opts.Path)
	case FormatSQLite:
		return NewSQLiteExporter(opts.Records, opts.Term, opts.Filter).Export(opts.Path)
	case FormatSVG, FormatPNG:
		return SaveSizeChart(ChartOptions{Path: opts.Path, Format: format, Title: opts.Title, Records: opts.Records})
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
