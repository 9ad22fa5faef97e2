// Package lookup serves and consumes the filter lookups: the distinct
// clusters of a cell type, and the iterations of a cell type optionally
// scoped to one cluster.
//
// The HTTP surface is:
//
//	GET /api/cell_types
//	GET /api/clusters?cell_type=Tcell
//	GET /api/iterations?cell_type=Tcell&cluster=3
//	GET /api/genes?term=TP
//	GET /api/terms?term=axon
//	GET /api/records
//	GET /api/subgraphs/{id}
//
// Every endpoint answers with a JSON array. Any non-2xx status is a failure.
package lookup

import (
	"context"
	"fmt"
)

// Lookup is what the filter cascade needs. *Client satisfies it over HTTP
// and *datasource.Index satisfies it in-process.
type Lookup interface {
	CellTypes(ctx context.Context) ([]string, error)
	Clusters(ctx context.Context, cellType string) ([]string, error)
	Iterations(ctx context.Context, cellType, cluster string) ([]string, error)
}

// MaxSuggestions caps the gene and term autocomplete lists.
const MaxSuggestions = 100

// Error describes a failed lookup.
type Error struct {
	Op     string // "clusters", "iterations", ...
	Status int    // HTTP status, 0 when the request never completed
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("lookup %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("lookup %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
