package lookup

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/sgv/internal/datasource"
	"github.com/vanderheijden86/sgv/pkg/debug"
	"github.com/vanderheijden86/sgv/pkg/model"
)

var _ Lookup = (*datasource.Index)(nil)

// Server answers lookups from a module index and the annotation dataset.
// Both can be swapped while serving.
type Server struct {
	index   *datasource.Index
	dataset atomic.Pointer[model.Dataset]
	mux     *http.ServeMux
}

// NewServer wires the handlers. A nil dataset serves empty record lists.
func NewServer(index *datasource.Index, dataset *model.Dataset) *Server {
	s := &Server{
		index: index,
		mux:   http.NewServeMux(),
	}
	s.SetDataset(dataset)
	s.mux.HandleFunc("GET /api/cell_types", s.handleCellTypes)
	s.mux.HandleFunc("GET /api/clusters", s.handleClusters)
	s.mux.HandleFunc("GET /api/iterations", s.handleIterations)
	s.mux.HandleFunc("GET /api/genes", s.handleGenes)
	s.mux.HandleFunc("GET /api/terms", s.handleTerms)
	s.mux.HandleFunc("GET /api/records", s.handleRecords)
	s.mux.HandleFunc("GET /api/subgraphs/{id}", s.handleSubgraph)
	return s
}

// SetDataset replaces the annotation dataset.
func (s *Server) SetDataset(d *model.Dataset) {
	if d == nil {
		d = model.NewDataset(nil)
	}
	s.dataset.Store(d)
}

// ServeHTTP logs and dispatches a request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	debug.Log("%s %s (%v)", r.Method, r.URL.RequestURI(), time.Since(start))
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleCellTypes(w http.ResponseWriter, r *http.Request) {
	cellTypes, err := s.index.CellTypes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, cellTypes)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	cellType := strings.TrimSpace(r.URL.Query().Get("cell_type"))
	clusters, err := s.index.Clusters(r.Context(), cellType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, clusterValues(clusters))
}

func (s *Server) handleIterations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cellType := strings.TrimSpace(q.Get("cell_type"))
	cluster := strings.TrimSpace(q.Get("cluster"))
	iterations, err := s.index.Iterations(r.Context(), cellType, cluster)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, iterations)
}

func (s *Server) handleGenes(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	writeJSON(w, s.index.Genes(term, MaxSuggestions))
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	terms := s.dataset.Load().Terms(term, MaxSuggestions)
	if terms == nil {
		terms = []string{}
	}
	writeJSON(w, terms)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records := s.dataset.Load().Records()
	if records == nil {
		records = []model.Record{}
	}
	writeJSON(w, records)
}

func (s *Server) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.dataset.Load().BySubgraph(r.PathValue("id")))
}

// clusterValues emits integral cluster ids as JSON numbers, matching what
// existing page scripts expect, and falls back to strings otherwise.
func clusterValues(clusters []string) any {
	nums := make([]int, 0, len(clusters))
	for _, c := range clusters {
		n, err := strconv.Atoi(c)
		if err != nil {
			return clusters
		}
		nums = append(nums, n)
	}
	return nums
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Log("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	debug.Log("lookup failed: %v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
