package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/codegraph/internal/builder"
	"github.com/conduit-lang/codegraph/internal/cli/config"
	"github.com/conduit-lang/codegraph/internal/cli/ui"
	"github.com/conduit-lang/codegraph/internal/export"
	"github.com/conduit-lang/codegraph/internal/graph"
	"github.com/conduit-lang/codegraph/internal/serve"
	"github.com/conduit-lang/codegraph/internal/watch"
)

// generateOptions holds the parsed command line
type generateOptions struct {
	inputs     []string
	assemblies bool
	namespaces bool
	types      bool
	methods    bool
	fields     bool
	private    bool
	format     string
	configPath string
	verbose    bool
	noColor    bool
	stats      bool
	watch      bool
	progress   bool
	serve      string
}

// generator builds and exports one graph per run
type generator struct {
	inputs   []string
	output   string
	format   export.Format
	options  builder.Options
	exporter *export.Exporter
	logger   *zap.Logger
	out      io.Writer
	errOut   io.Writer
	noColor  bool
	stats    bool
	progress bool
	server   *serve.Server
}

func runGenerate(cmd *cobra.Command, opts *generateOptions, args []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return &configError{err: err}
	}
	merge(cmd, cfg, opts)

	if len(opts.inputs) == 0 {
		return usageErrorf("Must provide some assembly inputs with the -i option")
	}
	if len(args) > 1 {
		return usageErrorf("Too many arguments: %v", args[1:])
	}
	var output string
	if len(args) == 1 {
		output = args[0]
	}

	// --format, then the output's extension or scheme, then the config file
	format, known := export.FormatFor(output)
	name := opts.format
	if name == "" && !known {
		name = cfg.Format
	}
	switch {
	case name != "":
		if format, err = export.ParseFormat(name); err != nil {
			return &formatError{name: name}
		}
	case !known:
		format = export.FormatDGML
	}
	if !format.IsFile() && output == "" && opts.serve == "" {
		return usageErrorf("The %s format needs an output target", format)
	}
	if opts.watch && output == "" && opts.serve == "" {
		return usageErrorf("--watch needs an output file or --serve")
	}

	logger := newLogger(opts.verbose)
	defer logger.Sync()

	if cmd.Flags().Changed("types") {
		fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("-t has no effect: type nodes are always graphed", nil, opts.noColor))
	}

	gen := &generator{
		inputs: opts.inputs,
		output: output,
		format: format,
		options: builder.Options{
			AssemblyDependencies:   opts.assemblies,
			NamespaceDependencies:  opts.namespaces,
			TypeDependencies:       opts.types,
			MethodCallDependencies: opts.methods,
			FieldDependencies:      opts.fields,
			PrivateDependencies:    opts.private,
		},
		exporter: export.NewExporter(export.Config{
			TablePrefix: cfg.Export.TablePrefix,
			KeyPrefix:   cfg.Export.KeyPrefix,
		}, cmd.OutOrStdout(), logger),
		logger:   logger,
		out:      infoWriter(cmd, output == "" && opts.serve == ""),
		errOut:   cmd.ErrOrStderr(),
		noColor:  opts.noColor,
		stats:    opts.stats,
		progress: opts.progress,
	}

	if !opts.watch && opts.serve == "" {
		return gen.run(contextOf(cmd))
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.serve == "" {
		return gen.watch(ctx, cfg.Watch.Debounce)
	}

	l, err := net.Listen("tcp", opts.serve)
	if err != nil {
		return fmt.Errorf("cannot serve on %s: %w", opts.serve, err)
	}
	gen.server = serve.New(logger)
	return gen.serve(ctx, l, opts.watch, cfg.Watch.Debounce)
}

// merge applies configuration values for every toggle not given explicitly
func merge(cmd *cobra.Command, cfg *config.Config, opts *generateOptions) {
	flags := cmd.Flags()
	set := func(name string, target *bool, value bool) {
		if !flags.Changed(name) {
			*target = value
		}
	}
	set("assemblies", &opts.assemblies, cfg.Graph.Assemblies)
	set("namespaces", &opts.namespaces, cfg.Graph.Namespaces)
	set("types", &opts.types, cfg.Graph.Types)
	set("methods", &opts.methods, cfg.Graph.Methods)
	set("fields", &opts.fields, cfg.Graph.Fields)
	set("private", &opts.private, cfg.Graph.Private)
	set("verbose", &opts.verbose, cfg.Verbose)
	set("no-color", &opts.noColor, cfg.NoColor)
}

// newLogger returns a development logger on stderr when verbose, else a
// no-op logger
func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// run builds a fresh graph from every input and exports it. The first
// input that fails aborts the run.
func (gen *generator) run(ctx context.Context) error {
	start := time.Now()

	g := graph.New()
	b := builder.New(g, newInputReader(gen.logger), gen.options, gen.logger)

	build := func(step func(string)) error {
		for _, input := range gen.inputs {
			step(input)
			if err := b.Generate(input); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if gen.progress {
		err = ui.WithProgress(gen.errOut, fmt.Sprintf("Graphed %d inputs", len(gen.inputs)), len(gen.inputs), gen.noColor,
			func(bar *ui.ProgressBar) error {
				return build(bar.Step)
			})
	} else {
		err = build(func(input string) {
			gen.logger.Info("graphing input", zap.String("input", input), zap.String("kind", inputKind(input)))
		})
	}
	if err != nil {
		if gen.server != nil {
			gen.server.PublishError(err)
		}
		return err
	}

	// a served graph without an output target is only published
	if gen.output != "" || gen.server == nil {
		if err := gen.exporter.Export(ctx, g, gen.format, gen.output); err != nil {
			if gen.server != nil {
				gen.server.PublishError(err)
			}
			return err
		}
	}
	if gen.server != nil {
		gen.server.Publish(g, time.Since(start))
	}

	gen.logger.Info("graph complete",
		zap.Int("nodes", g.NodeCount()),
		zap.Int("links", g.EdgeCount()),
		zap.Duration("elapsed", time.Since(start)))

	if gen.output != "" {
		ui.WriteSuccess(gen.out, "Saved "+gen.output, gen.noColor)
	}
	if gen.stats {
		printStats(gen.out, g, b.Stats(), gen.noColor)
	}
	return nil
}

// watch runs once, then again after every batch of input changes until
// ctx is done. Failed rebuilds are reported and watching continues.
func (gen *generator) watch(ctx context.Context, debounce time.Duration) error {
	if err := gen.run(ctx); err != nil {
		reportRunError(gen.errOut, err, gen.noColor)
	}

	watcher, err := watch.NewFileWatcher(gen.inputs, func(files []string) error {
		gen.logger.Info("inputs changed", zap.Strings("files", files))
		fmt.Fprint(gen.out, ui.Info(fmt.Sprintf("Rebuilding after %d change(s)", len(files)), gen.noColor))
		if err := gen.run(ctx); err != nil {
			reportRunError(gen.errOut, err, gen.noColor)
		}
		return nil
	}, watch.Options{Debounce: debounce, Logger: gen.logger})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		watcher.Stop()
		return err
	}

	fmt.Fprint(gen.out, ui.Info(fmt.Sprintf("Watching %d input(s). Press Ctrl+C to stop.", len(gen.inputs)), gen.noColor))
	<-ctx.Done()

	if err := watcher.Stop(); err != nil {
		return fmt.Errorf("error stopping watcher: %w", err)
	}
	return nil
}

func reportRunError(w io.Writer, err error, noColor bool) {
	consequence := "The previous output was kept."
	if errors.Is(err, builder.ErrUnknownTypeKind) {
		consequence = "The module uses a type kind that cannot be graphed; the previous output was kept."
	}
	fmt.Fprint(w, ui.GraphError(err.Error(), consequence, noColor))
}

// printStats writes totals and per-category counts
func printStats(w io.Writer, g *graph.Graph, bs builder.Stats, noColor bool) {
	gs := g.Stats()

	fmt.Fprintln(w)
	ui.Header(w, "Graph statistics", noColor)
	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Nodes", strconv.Itoa(gs.NodeCount))
	kv.AddRow("Links", strconv.Itoa(gs.EdgeCount))
	kv.AddRow("Groups", strconv.Itoa(gs.Groups))
	kv.AddRow("Modules", strconv.Itoa(bs.Modules))
	kv.AddRow("Types visited", strconv.Itoa(bs.TypesVisited))
	kv.AddRow("Types filtered", strconv.Itoa(bs.TypesFiltered))
	kv.AddRow("References", strconv.Itoa(bs.References))
	kv.AddRow("External references", strconv.Itoa(bs.ExternalReferences))
	kv.AddRow("Unresolved references", strconv.Itoa(bs.UnresolvedReferences))
	kv.AddRow("Calls", strconv.Itoa(bs.Calls))
	kv.AddRow("Calls skipped", strconv.Itoa(bs.CallsSkipped))
	kv.Render()

	fmt.Fprintln(w)
	table := ui.NewTable(w, []string{"Category", "Count"}, &ui.TableOptions{NoColor: noColor, RightAlign: []int{1}})
	for _, c := range graph.NodeCategories {
		if n := gs.Nodes[c]; n > 0 {
			table.AddRow(c.String(), strconv.Itoa(n))
		}
	}
	for _, c := range graph.LinkCategories {
		name := c.String()
		if c == graph.LinkPlain {
			name = "Dependency"
		}
		if n := gs.Links[c]; n > 0 {
			table.AddRow(name+" links", strconv.Itoa(n))
		}
	}
	table.Render()
}
