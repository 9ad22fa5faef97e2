package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vanderheijden86/sgv/internal/datasource"
	_ "github.com/vanderheijden86/sgv/internal/ttyguard"
	"github.com/vanderheijden86/sgv/pkg/config"
	"github.com/vanderheijden86/sgv/pkg/debug"
	"github.com/vanderheijden86/sgv/pkg/export"
	"github.com/vanderheijden86/sgv/pkg/lookup"
	"github.com/vanderheijden86/sgv/pkg/model"
	"github.com/vanderheijden86/sgv/pkg/ui"
	"github.com/vanderheijden86/sgv/pkg/version"
	"github.com/vanderheijden86/sgv/pkg/watcher"
)

const usage = `sgv - browse GO-term enrichment of module subgraphs

Usage:
  sgv [flags]            interactive results browser
  sgv serve [flags]      run the filter lookup server
  sgv export [flags]     write search results to .csv, .md, .sqlite, .svg or .png

Run "sgv <command> -h" for command flags.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := ""
	if len(args) > 0 {
		switch args[0] {
		case "serve", "export":
			cmd, args = args[0], args[1:]
		case "help":
			fmt.Fprint(stdout, usage)
			return 0
		}
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args, stdout, stderr)
	case "export":
		err = runExport(args, stdout, stderr)
	default:
		err = runBrowse(args, stdout, stderr)
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

var errUsage = errors.New("usage error")

// commonFlags are shared by every command.
type commonFlags struct {
	configPath  string
	annotations string
	modules     string
	server      string
	version     bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Config file (default "+config.ConfigPath()+")")
	fs.StringVar(&c.annotations, "annotations", "", "Annotation CSV or JSON records file")
	fs.StringVar(&c.modules, "modules", "", "Directory of <cell>_<n>_T<k>_modules.csv files")
	fs.StringVar(&c.server, "server", "", "Lookup server base URL (default: in-process index)")
	fs.BoolVar(&c.version, "version", false, "Show version")
}

// loadConfig reads the config file and lets flags override it.
func (c *commonFlags) loadConfig() (config.Config, error) {
	var cfg config.Config
	var err error
	if c.configPath != "" {
		cfg, err = config.LoadFrom(c.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, err
	}
	if c.annotations != "" {
		cfg.Data.Annotations = c.annotations
	}
	if c.modules != "" {
		cfg.Data.ModulesDir = c.modules
	}
	if c.server != "" {
		cfg.Lookup.Server = c.server
	}
	return cfg, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// source is where records and filter lookups come from.
type source struct {
	dataset *model.Dataset
	lookup  lookup.Lookup
	terms   ui.TermSource // nil: suggest from dataset
	remote  bool
}

// openSource loads the dataset and the lookup backend. With a server
// configured both come from it; otherwise the annotations file and the
// modules index are read locally. A missing modules directory is not
// fatal: the filter controls then show their error state.
func openSource(ctx context.Context, cfg config.Config) (source, error) {
	if cfg.Lookup.Server != "" {
		client, err := lookup.NewClient(cfg.Lookup.Server, cfg.Lookup.Timeout)
		if err != nil {
			return source{}, err
		}
		records, err := client.Records(ctx)
		if err != nil {
			return source{}, fmt.Errorf("loading records from %s: %w", cfg.Lookup.Server, err)
		}
		return source{dataset: model.NewDataset(records), lookup: client, terms: client, remote: true}, nil
	}

	ds, err := datasource.LoadAnnotations(cfg.Data.Annotations)
	if err != nil {
		return source{}, err
	}
	src := source{dataset: ds}
	idx, err := datasource.OpenIndex(ctx, cfg.Data.ModulesDir, cfg.Data.CachePath)
	if err != nil {
		debug.Log("no module index (%v); filters disabled", err)
		return src, nil
	}
	src.lookup = idx
	return src, nil
}

// browseFlags are the TUI command's flags.
type browseFlags struct {
	commonFlags
	term     string
	cellType string
	cluster  string
	module   string
	pick     bool
	fresh    bool
}

func runBrowse(args []string, stdout, stderr io.Writer) error {
	var f browseFlags
	fs := newFlagSet("sgv", stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage+"\nFlags:\n")
		fs.PrintDefaults()
	}
	f.register(fs)
	fs.StringVar(&f.term, "term", "", "Initial GO term name or id")
	fs.StringVar(&f.cellType, "cell-type", "", "Initial cell type filter")
	fs.StringVar(&f.cluster, "cluster", "", "Initial cluster filter (needs --cell-type)")
	fs.StringVar(&f.module, "module", "", "Initial module filter, comma-separated")
	fs.BoolVar(&f.pick, "pick", false, "Choose the initial cell type from a list")
	fs.BoolVar(&f.fresh, "fresh", false, "Ignore the saved filter selection")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.version {
		fmt.Fprintf(stdout, "sgv %s\n", version.Version)
		return nil
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}

	cfg, err := f.loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	src, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}

	statePath := config.StatePath()
	state := config.FilterState{}
	if cfg.UI.RestoreLast && !f.fresh && statePath != "" {
		if st, err := config.LoadStateFrom(statePath); err == nil {
			state = st
		} else {
			debug.Log("ignoring state file: %v", err)
		}
	}
	state = applyFlagState(state, f)

	if f.pick && src.lookup != nil {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("%w: --pick needs an interactive terminal", errUsage)
		}
		picked, err := pickCellType(ctx, src.lookup, state.CellType)
		if err != nil {
			return err
		}
		if picked != state.CellType {
			state.CellType, state.Cluster, state.Iteration = picked, "", ""
		}
	}

	opts := ui.Options{
		Dataset:   src.dataset,
		Lookup:    src.lookup,
		Timeout:   cfg.Lookup.Timeout,
		MaxGenes:  cfg.UI.MaxGenes,
		CellWidth: cfg.UI.CellWidth,
		State:     state,
		Terms:     src.terms,
	}

	if !src.remote {
		w, err := watcher.NewWatcher(cfg.Data.Annotations)
		if err == nil {
			err = w.Start()
		}
		if err == nil {
			defer w.Stop()
			path := cfg.Data.Annotations
			opts.Watcher = w
			opts.Reload = func() (*model.Dataset, error) { return datasource.LoadAnnotations(path) }
		} else {
			debug.Log("live reload disabled: %v", err)
		}
	}

	final, err := runTUIProgram(ui.NewModel(opts))
	if err != nil {
		return fmt.Errorf("running sgv: %w", err)
	}
	if statePath != "" {
		if err := config.SaveStateTo(final.FilterState(), statePath); err != nil {
			debug.Log("saving state: %v", err)
		}
	}
	return nil
}

// applyFlagState overlays the command line selection on the saved one.
// A new cell type clears the saved cluster and iteration.
func applyFlagState(st config.FilterState, f browseFlags) config.FilterState {
	if f.term != "" {
		st.Term = f.term
	}
	if f.cellType != "" && f.cellType != st.CellType {
		st.CellType, st.Cluster, st.Iteration = f.cellType, "", ""
	}
	if f.cluster != "" && st.CellType != "" {
		st.Cluster, st.Iteration = f.cluster, ""
	}
	if f.module != "" {
		st.Module = f.module
	}
	return st
}

func pickCellType(ctx context.Context, l lookup.Lookup, current string) (string, error) {
	cellTypes, err := l.CellTypes(ctx)
	if err != nil {
		return "", fmt.Errorf("loading cell types: %w", err)
	}
	options := []huh.Option[string]{huh.NewOption(ui.AllCellTypes, "")}
	for _, ct := range cellTypes {
		options = append(options, huh.NewOption(ct, ct))
	}
	choice := current
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Cell type").
				Options(options...).
				Value(&choice),
		),
	).WithTheme(huh.ThemeDracula())
	if err := form.Run(); err != nil {
		return "", err
	}
	return choice, nil
}

func runTUIProgram(m ui.Model) (ui.Model, error) {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set SGV_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("SGV_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()
				select {
				case <-runDone:
					return
				case <-timer.C:
				}
				p.Quit()
			}()
		}
	}

	final, err := p.Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted)) {
		err = nil
	}
	if fm, ok := final.(ui.Model); ok {
		return fm, err
	}
	return m, err
}

func runServe(args []string, stdout, stderr io.Writer) error {
	var c commonFlags
	var addr string
	var watch, noWatch bool
	fs := newFlagSet("sgv serve", stderr)
	c.register(fs)
	fs.StringVar(&addr, "addr", "", "Listen address (default from config)")
	fs.BoolVar(&watch, "watch", false, "Rebuild the index when module files change")
	fs.BoolVar(&noWatch, "no-watch", false, "Do not watch for changes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.version {
		fmt.Fprintf(stdout, "sgv %s\n", version.Version)
		return nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Serve.Addr
	}
	watchDirs := (cfg.Serve.Watch || watch) && !noWatch

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, err := datasource.OpenIndex(ctx, cfg.Data.ModulesDir, cfg.Data.CachePath)
	if err != nil {
		return fmt.Errorf("building module index: %w", err)
	}
	ds, err := datasource.LoadAnnotations(cfg.Data.Annotations)
	if err != nil {
		// The filter endpoints work without annotations.
		fmt.Fprintf(stderr, "Warning: %v\n", err)
		ds = nil
	}

	srv := lookup.NewServer(idx, ds)

	if watchDirs {
		stopWatch, err := watchSources(ctx, cfg, idx, srv, stderr)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	fmt.Fprintf(stderr, "sgv %s serving %d module entries on http://%s\n", version.Version, idx.Len(), addr)
	return srv.ListenAndServe(ctx, addr)
}

// watchSources keeps the served index and dataset current as the modules
// directory and the annotations file change.
func watchSources(ctx context.Context, cfg config.Config, idx *datasource.Index, srv *lookup.Server, stderr io.Writer) (func(), error) {
	rebuild := func() {
		fresh, err := datasource.BuildIndex(ctx, cfg.Data.ModulesDir)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: index rebuild failed: %v\n", err)
			return
		}
		idx.Replace(fresh)
		if cfg.Data.CachePath != "" {
			if sig, err := datasource.Signature(cfg.Data.ModulesDir); err == nil {
				if err := datasource.SaveIndex(ctx, cfg.Data.CachePath, sig, idx); err != nil {
					debug.Log("saving index cache: %v", err)
				}
			}
		}
		debug.Log("index rebuilt: %d entries", idx.Len())
	}
	modules, err := watcher.NewWatcher(cfg.Data.ModulesDir,
		watcher.WithSuffix("_modules.csv"),
		watcher.WithOnChange(rebuild),
		watcher.WithOnError(func(err error) { debug.Log("modules watcher: %v", err) }),
	)
	if err != nil {
		return nil, err
	}
	if err := modules.Start(); err != nil {
		return nil, fmt.Errorf("watching %s: %w", cfg.Data.ModulesDir, err)
	}

	stops := []func(){modules.Stop}
	annotations, err := watcher.NewWatcher(cfg.Data.Annotations,
		watcher.WithOnChange(func() {
			ds, err := datasource.LoadAnnotations(cfg.Data.Annotations)
			if err != nil {
				fmt.Fprintf(stderr, "Warning: annotations reload failed: %v\n", err)
				return
			}
			srv.SetDataset(ds)
		}),
	)
	if err == nil && annotations.Start() == nil {
		stops = append(stops, annotations.Stop)
	}
	return func() {
		for _, s := range stops {
			s()
		}
	}, nil
}

// exportFlags are the export command's flags.
type exportFlags struct {
	commonFlags
	out       string
	format    string
	title     string
	term      string
	cellType  string
	cluster   string
	iteration string
	module    string
}

func runExport(args []string, stdout, stderr io.Writer) error {
	var f exportFlags
	fs := newFlagSet("sgv export", stderr)
	f.register(fs)
	fs.StringVar(&f.out, "o", "", "Output file; format from the extension")
	fs.StringVar(&f.format, "format", "", "Force format: csv, md, sqlite, svg or png")
	fs.StringVar(&f.title, "title", "", "Report or chart title")
	fs.StringVar(&f.term, "term", "", "GO term name or id (empty: all records)")
	fs.StringVar(&f.cellType, "cell-type", "", "Cell type filter")
	fs.StringVar(&f.cluster, "cluster", "", "Cluster filter")
	fs.StringVar(&f.iteration, "iteration", "", "Iteration filter")
	fs.StringVar(&f.module, "module", "", "Module filter, comma-separated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.version {
		fmt.Fprintf(stdout, "sgv %s\n", version.Version)
		return nil
	}
	if f.out == "" {
		fs.Usage()
		return fmt.Errorf("%w: -o is required", errUsage)
	}

	cfg, err := f.loadConfig()
	if err != nil {
		return err
	}
	src, err := openSource(context.Background(), cfg)
	if err != nil {
		return err
	}

	filter := model.Filter{CellType: f.cellType, Cluster: f.cluster, Iteration: f.iteration, Module: f.module}
	records := src.dataset.Search(f.term, filter)
	if err := export.Save(export.Options{
		Path:    f.out,
		Format:  export.Format(f.format),
		Title:   f.title,
		Term:    f.term,
		Filter:  filter,
		Records: records,
	}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Exported %d results to %s\n", len(records), f.out)
	return nil
}
