package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/sgv/internal/datasource"
	"github.com/vanderheijden86/sgv/pkg/config"
	"github.com/vanderheijden86/sgv/pkg/lookup"
	"github.com/vanderheijden86/sgv/pkg/version"
)

const annotationsCSV = `subgraph_id,iteration,cell_type,cluster,module,term_id,term_name,p_value,intersection,length_intersection,source,subgraph_size,IC
sg1,T0,Tcell,1.0,blue,GO:0007411,axon guidance,0.0004,"TP53, MYC",2,GO:BP,6,4.2
sg2,T1,Tcell,2,red,GO:0007411,axon guidance,0.02,EGFR,1,GO:BP,3,inf
sg3,T0,DA_like_neurons,11,green,GO:0045202,synapse,0.001,SNCA,1,GO:CC,4,2
`

// writeFixture lays out an annotations file, a modules directory and a
// config pointing at both, and isolates the XDG directories.
func writeFixture(t *testing.T) (cfgPath, annotations, modules string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	annotations = filepath.Join(dir, "annotations.csv")
	if err := os.WriteFile(annotations, []byte(annotationsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	modules = filepath.Join(dir, "networks")
	if err := os.MkdirAll(modules, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"Tcell_1_T0_modules.csv":            "gene,subcluster\nTP53,1\nMYC,2\n",
		"Tcell_1_T1_modules.csv":            "gene,subcluster\nEGFR,2\n",
		"DA_like_neurons_11_T0_modules.csv": "gene,subcluster\nSNCA,11\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(modules, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Data.Annotations = annotations
	cfg.Data.ModulesDir = modules
	cfg.Data.CachePath = filepath.Join(dir, "index.db")
	cfgPath = filepath.Join(dir, "sgv.yaml")
	if err := config.SaveTo(cfg, cfgPath); err != nil {
		t.Fatal(err)
	}
	return cfgPath, annotations, modules
}

func TestRunVersion(t *testing.T) {
	for _, args := range [][]string{{"--version"}, {"export", "--version"}, {"serve", "--version"}} {
		var out, errOut bytes.Buffer
		if code := run(args, &out, &errOut); code != 0 {
			t.Fatalf("run(%v) = %d, stderr %q", args, code, errOut.String())
		}
		if !strings.Contains(out.String(), version.Version) {
			t.Errorf("run(%v) printed %q", args, out.String())
		}
	}
}

func TestRunHelpAndUsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"help"}, &out, &errOut); code != 0 || !strings.Contains(out.String(), "sgv serve") {
		t.Errorf("help: code=%d out=%q", code, out.String())
	}
	if code := run([]string{"-h"}, &out, &errOut); code != 0 {
		t.Errorf("-h exit code = %d", code)
	}
	if code := run([]string{"--no-such-flag"}, &out, &errOut); code == 0 {
		t.Error("unknown flag should fail")
	}
	if code := run([]string{"export"}, &out, &errOut); code != 2 {
		t.Errorf("export without -o = %d, want 2", code)
	}
	if code := run([]string{"stray"}, &out, &errOut); code != 2 {
		t.Errorf("stray argument = %d, want 2", code)
	}
}

func TestRunExportMarkdown(t *testing.T) {
	cfgPath, _, _ := writeFixture(t)
	out := filepath.Join(t.TempDir(), "axon.md")

	var stdout, stderr bytes.Buffer
	code := run([]string{"export", "--config", cfgPath, "--term", "axon guidance", "--cell-type", "Tcell", "-o", out}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("export failed (%d): %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Exported 2 results") {
		t.Errorf("stdout = %q", stdout.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	md := string(data)
	if !strings.Contains(md, "axon guidance") || strings.Contains(md, "synapse") {
		t.Errorf("unexpected report:\n%s", md)
	}
	// Results are in p-value order.
	if strings.Index(md, "| T0 |") > strings.Index(md, "| T1 |") {
		t.Error("T0 row (p=0.0004) should precede T1 row (p=0.02)")
	}
}

func TestRunExportCSVWithModule(t *testing.T) {
	cfgPath, _, _ := writeFixture(t)
	out := filepath.Join(t.TempDir(), "go_term_axon.csv")

	var stdout, stderr bytes.Buffer
	code := run([]string{"export", "--config", cfgPath, "--term", "axon guidance", "--module", "red, green", "-o", out}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("export failed (%d): %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Exported 1 results") {
		t.Errorf("stdout = %q", stdout.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "subgraph_id,") || !strings.HasPrefix(lines[1], "sg2,T1,Tcell,2,red,") {
		t.Errorf("unexpected csv:\n%s", data)
	}
}

func TestRunExportFromServer(t *testing.T) {
	_, annotations, modules := writeFixture(t)
	ctx := context.Background()
	idx, err := datasource.BuildIndex(ctx, modules)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := datasource.LoadAnnotations(annotations)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(lookup.NewServer(idx, ds))
	defer ts.Close()

	out := filepath.Join(t.TempDir(), "sizes.svg")
	var stdout, stderr bytes.Buffer
	code := run([]string{"export", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--server", ts.URL, "-o", out}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("export failed (%d): %s", code, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "3 subgraphs by size") {
		t.Errorf("chart does not cover the served records")
	}
}

func TestOpenSourceLocal(t *testing.T) {
	cfgPath, _, _ := writeFixture(t)
	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	src, err := openSource(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if src.remote || src.dataset.Len() != 3 || src.lookup == nil {
		t.Fatalf("source = %+v", src)
	}
	clusters, err := src.lookup.Clusters(context.Background(), "Tcell")
	if err != nil || len(clusters) != 2 {
		t.Errorf("clusters = %q, %v", clusters, err)
	}

	// No modules: records still load, filters are disabled.
	cfg.Data.ModulesDir = filepath.Join(t.TempDir(), "missing")
	cfg.Data.CachePath = ""
	src, err = openSource(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if src.lookup != nil {
		t.Error("lookup should be nil without a modules directory")
	}
}

func TestOpenSourceMissingAnnotations(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Data.Annotations = filepath.Join(t.TempDir(), "absent.csv")
	if _, err := openSource(context.Background(), cfg); err == nil {
		t.Error("missing annotations file should fail")
	}
}

func TestApplyFlagState(t *testing.T) {
	saved := config.FilterState{Term: "synapse", CellType: "Tcell", Cluster: "2", Iteration: "T1"}

	tests := []struct {
		name  string
		flags browseFlags
		want  config.FilterState
	}{
		{"no flags keep saved", browseFlags{}, saved},
		{"term only", browseFlags{term: "axon guidance"}, config.FilterState{Term: "axon guidance", CellType: "Tcell", Cluster: "2", Iteration: "T1"}},
		{"same cell type keeps dependents", browseFlags{cellType: "Tcell"}, saved},
		{"new cell type clears dependents", browseFlags{cellType: "Bcell"}, config.FilterState{Term: "synapse", CellType: "Bcell"}},
		{"cluster clears iteration", browseFlags{cluster: "1"}, config.FilterState{Term: "synapse", CellType: "Tcell", Cluster: "1"}},
		{"module", browseFlags{module: "red,blue"}, config.FilterState{Term: "synapse", CellType: "Tcell", Cluster: "2", Iteration: "T1", Module: "red,blue"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := applyFlagState(saved, tt.flags); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if got := applyFlagState(config.FilterState{}, browseFlags{cluster: "1"}); got.Cluster != "" {
		t.Error("a cluster without a cell type should be ignored")
	}
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	cfgPath, _, _ := writeFixture(t)
	c := commonFlags{configPath: cfgPath, modules: "/other", server: "http://localhost:9"}
	cfg, err := c.loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data.ModulesDir != "/other" || cfg.Lookup.Server != "http://localhost:9" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !strings.HasSuffix(cfg.Data.Annotations, "annotations.csv") {
		t.Errorf("config value lost: %q", cfg.Data.Annotations)
	}
}
