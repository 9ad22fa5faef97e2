package export

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/sgv/pkg/debug"
	"github.com/vanderheijden86/sgv/pkg/model"
	"github.com/vanderheijden86/sgv/pkg/version"
)

// SchemaVersion is stored in the meta table of every export.
const SchemaVersion = 1

const resultsSchema = `
CREATE TABLE IF NOT EXISTS results (
	position            INTEGER PRIMARY KEY,
	subgraph_id         TEXT NOT NULL,
	iteration           TEXT,
	cell_type           TEXT,
	cluster             TEXT,
	module              TEXT,
	term_id             TEXT,
	term_name           TEXT,
	p_value             REAL,
	p_value_text        TEXT,
	intersection        TEXT,
	length_intersection TEXT,
	source              TEXT,
	subgraph_size       INTEGER,
	ic                  REAL,
	ic_text             TEXT
);
CREATE INDEX IF NOT EXISTS idx_results_subgraph ON results(subgraph_id);
CREATE INDEX IF NOT EXISTS idx_results_cell_type ON results(cell_type, cluster, iteration);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS results_fts USING fts5(
	term_name, intersection, content='results', content_rowid='position'
);
INSERT INTO results_fts(results_fts) VALUES('rebuild');
`

// SQLiteExporter writes results to a standalone SQLite database.
type SQLiteExporter struct {
	Records []model.Record
	Term    string
	Filter  model.Filter
}

// NewSQLiteExporter creates an exporter for records found by term and filter.
func NewSQLiteExporter(records []model.Record, term string, f model.Filter) *SQLiteExporter {
	return &SQLiteExporter{Records: records, Term: term, Filter: f}
}

// Export replaces any database at path with a fresh one holding the records.
func (e *SQLiteExporter) Export(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing database: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(resultsSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if err := e.insertResults(db); err != nil {
		return fmt.Errorf("insert results: %w", err)
	}
	// modernc.org/sqlite ships FTS5; a build without it still gets the table.
	if _, err := db.Exec(ftsSchema); err != nil {
		debug.Log("export: FTS5 not available: %v", err)
	}
	if err := e.insertMeta(db); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}
	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

func (e *SQLiteExporter) insertResults(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO results (position, subgraph_id, iteration, cell_type, cluster, module,
			term_id, term_name, p_value, p_value_text, intersection, length_intersection,
			source, subgraph_size, ic, ic_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range e.Records {
		var size, ic any
		if n, ok := r.SubgraphSizeInt(); ok {
			size = n
		}
		// SQLite has no infinity literal; the text column keeps "inf".
		if v, ok := r.ICFloat(); ok && !math.IsInf(v, 0) {
			ic = v
		}
		var p any
		if v := r.PValueFloat(); !math.IsInf(v, 0) {
			p = v
		}
		_, err := stmt.Exec(
			i+1,
			r.SubgraphID,
			r.Iteration,
			r.CellType,
			r.Cluster,
			r.Module,
			r.TermID,
			r.TermName,
			p,
			r.PValue,
			r.Intersection,
			r.LengthIntersection,
			r.Source,
			size,
			ic,
			r.IC,
		)
		if err != nil {
			return fmt.Errorf("insert result %d (%s): %w", i+1, r.SubgraphID, err)
		}
	}
	return tx.Commit()
}

func (e *SQLiteExporter) insertMeta(db *sql.DB) error {
	meta := map[string]string{
		"schema_version": strconv.Itoa(SchemaVersion),
		"generator":      "sgv " + version.Version,
		"exported_at":    time.Now().UTC().Format(time.RFC3339),
		"term":           e.Term,
		"cell_type":      e.Filter.CellType,
		"cluster":        e.Filter.Cluster,
		"iteration":      e.Filter.Iteration,
		"module":         e.Filter.Module,
		"result_count":   strconv.Itoa(len(e.Records)),
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("meta %s: %w", k, err)
		}
	}
	return tx.Commit()
}
