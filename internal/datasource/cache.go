package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/sgv/pkg/debug"
)

// ErrCacheStale is returned when the cache was built from a different
// modules directory state.
var ErrCacheStale = errors.New("index cache is stale")

const cacheSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	cell_type TEXT NOT NULL,
	cluster   TEXT NOT NULL,
	iteration TEXT NOT NULL,
	file      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_cell_type ON entries(cell_type);
CREATE TABLE IF NOT EXISTS genes (
	gene TEXT PRIMARY KEY
);
`

// Signature fingerprints a modules directory: file count, total size and
// newest modification time. Any added, removed or rewritten module file
// changes it.
func Signature(dir string) (string, error) {
	files, err := ModuleFiles(dir)
	if err != nil {
		return "", err
	}
	var size int64
	var newest time.Time
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", filepath.Base(f), err)
		}
		size += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return fmt.Sprintf("%s|%d|%d|%d", abs, len(files), size, newest.UnixNano()), nil
}

func openCache(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open cache: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return db, nil
}

// SaveIndex writes idx to the SQLite cache at path, tagged with signature.
func SaveIndex(ctx context.Context, path, signature string, idx *Index) error {
	db, err := openCache(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM entries", "DELETE FROM genes", "DELETE FROM meta"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
	}

	insEntry, err := tx.PrepareContext(ctx, "INSERT INTO entries (cell_type, cluster, iteration, file) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare entries: %w", err)
	}
	defer insEntry.Close()

	idx.mu.RLock()
	entries, genes := idx.entries, idx.genes
	idx.mu.RUnlock()

	for _, e := range entries {
		if _, err := insEntry.ExecContext(ctx, e.CellType, e.Cluster, e.Iteration, e.File); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}

	insGene, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO genes (gene) VALUES (?)")
	if err != nil {
		return fmt.Errorf("prepare genes: %w", err)
	}
	defer insGene.Close()
	for _, g := range genes {
		if _, err := insGene.ExecContext(ctx, g); err != nil {
			return fmt.Errorf("insert gene: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES ('signature', ?)", signature); err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	debug.Log("cached %d entries, %d genes at %s", len(entries), len(genes), path)
	return nil
}

// LoadIndexCache reads the index cached at path. It returns ErrCacheStale
// when the stored signature differs from signature, and os.ErrNotExist
// when there is no cache file.
func LoadIndexCache(ctx context.Context, path, signature string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := openCache(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var stored string
	err = db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'signature'").Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && stored != signature) {
		return nil, ErrCacheStale
	}
	if err != nil {
		return nil, fmt.Errorf("reading signature: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT cell_type, cluster, iteration, file FROM entries ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.CellType, &e.Cluster, &e.Iteration, &e.File); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	geneRows, err := db.QueryContext(ctx, "SELECT gene FROM genes")
	if err != nil {
		return nil, fmt.Errorf("query genes: %w", err)
	}
	defer geneRows.Close()

	var genes []string
	for geneRows.Next() {
		var g string
		if err := geneRows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan gene: %w", err)
		}
		genes = append(genes, g)
	}
	if err := geneRows.Err(); err != nil {
		return nil, err
	}

	return NewIndex(entries, genes), nil
}

// OpenIndex returns the index for dir, from the cache at cachePath when it
// is current, otherwise by scanning and refreshing the cache. An empty
// cachePath disables caching. Cache failures are logged, never fatal.
func OpenIndex(ctx context.Context, dir, cachePath string) (*Index, error) {
	if cachePath == "" {
		return BuildIndex(ctx, dir)
	}

	sig, err := Signature(dir)
	if err != nil {
		return nil, err
	}

	idx, err := LoadIndexCache(ctx, cachePath, sig)
	if err == nil {
		debug.Log("index cache hit: %s", cachePath)
		return idx, nil
	}
	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, ErrCacheStale) {
		debug.Log("index cache unreadable, rebuilding: %v", err)
	}

	idx, err = BuildIndex(ctx, dir)
	if err != nil {
		return nil, err
	}
	if err := SaveIndex(ctx, cachePath, sig, idx); err != nil {
		debug.Log("saving index cache: %v", err)
	}
	return idx, nil
}
