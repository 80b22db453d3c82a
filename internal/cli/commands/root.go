package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/codegraph/internal/cli/ui"
	"github.com/conduit-lang/codegraph/internal/export"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// UsageError is an invalid command line. It is reported together with the
// usage text.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// configError wraps a failure to load the configuration file
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// formatError is an output format name that is not supported
type formatError struct {
	name string
}

func (e *formatError) Error() string {
	return fmt.Sprintf("%v: %q", export.ErrUnknownFormat, e.name)
}

func (e *formatError) Unwrap() error { return export.ErrUnknownFormat }

// NewRootCommand creates the codegraph command
func NewRootCommand() *cobra.Command {
	opts := &generateOptions{}

	rootCmd := &cobra.Command{
		Use:   "codegraph [flags] [output]",
		Short: "Generate dependency graphs of compiled modules",
		Long: color.CyanString(`codegraph - dependency graphs for modules, namespaces, types and methods

Reads Go modules (a go.mod or the directory holding it) and metadata
manifests (.yaml, .yml, .json) and writes how they reference one another.
The output format follows the output name: .dgml (default), .dot/.gv,
.json, .db/.sqlite, postgres:// and redis:// URLs. Without an output the
document is written to standard output.`),
		Example: `  codegraph -i App.yaml -n -t deps.dgml
  codegraph -i ./service -m -f --format json
  codegraph -i ./service -a postgres://localhost/graphs
  codegraph -i App.yaml -i Lib.yaml --watch --stats deps.dot
  codegraph -i ./service -n -t --watch --serve localhost:8080`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts, args)
		},
	}

	flags := rootCmd.Flags()
	flags.StringArrayVarP(&opts.inputs, "input", "i", nil, "input module: go.mod, Go module directory or manifest (repeatable)")
	flags.BoolVarP(&opts.assemblies, "assemblies", "a", false, "add assembly dependency graph")
	flags.BoolVarP(&opts.namespaces, "namespaces", "n", false, "add namespace dependency graph")
	flags.BoolVarP(&opts.types, "types", "t", false, "add type dependency graph")
	flags.BoolVarP(&opts.methods, "methods", "m", false, "add method call dependencies")
	flags.BoolVarP(&opts.fields, "fields", "f", false, "field level dependencies")
	flags.BoolVarP(&opts.private, "private", "p", false, "include dependencies from private members")
	flags.StringVar(&opts.format, "format", "", "output format: dgml, dot, json, sqlite, postgres, redis")
	flags.StringVar(&opts.configPath, "config", "", "config file (default ./codegraph.yaml)")
	flags.BoolVar(&opts.verbose, "verbose", false, "log progress to stderr")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.BoolVar(&opts.stats, "stats", false, "print graph statistics after each run")
	flags.BoolVar(&opts.watch, "watch", false, "rebuild when an input changes")
	flags.BoolVar(&opts.progress, "progress", false, "show a progress bar over the inputs")
	flags.StringVar(&opts.serve, "serve", "", "serve the graph over HTTP on this address, e.g. localhost:8080")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Message: err.Error()}
	})

	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the codegraph version, Git commit, build date, and Go version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			w := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Fprint(w, "codegraph version: ")
			valueColor.Fprintln(w, Version)

			titleColor.Fprint(w, "Git commit: ")
			valueColor.Fprintln(w, GitCommit)

			titleColor.Fprint(w, "Build date: ")
			valueColor.Fprintln(w, BuildDate)

			titleColor.Fprint(w, "Go version: ")
			valueColor.Fprintln(w, goVer)
		},
	}
}

// Execute runs the codegraph command with the process arguments
func Execute() error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(NormalizeArgs(os.Args[1:]))

	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		reportError(cmd, err, noColor(cmd))
	}
	return err
}

// reportError renders err on the command's error stream. Usage errors are
// followed by the usage text.
func reportError(cmd *cobra.Command, err error, noColor bool) {
	w := cmd.ErrOrStderr()

	var usageErr *UsageError
	var cfgErr *configError
	var fmtErr *formatError
	switch {
	case errors.As(err, &usageErr):
		fmt.Fprint(w, ui.UsageError(usageErr.Message, noColor))
		fmt.Fprintln(w)
		fmt.Fprint(w, cmd.UsageString())
	case errors.As(err, &cfgErr):
		fmt.Fprint(w, ui.ConfigError(cfgErr.Error(), nil, noColor))
	case errors.As(err, &fmtErr):
		fmt.Fprint(w, ui.FormatNotFoundError(fmtErr.name, formatNames(), noColor))
	default:
		fmt.Fprint(w, ui.GraphError(err.Error(), "No output was written.", noColor))
	}
}

// noColor reads --no-color from cmd, falling back to the color package's
// terminal detection
func noColor(cmd *cobra.Command) bool {
	if cmd == nil {
		return color.NoColor
	}
	if v, err := cmd.Flags().GetBool("no-color"); err == nil && v {
		return true
	}
	return color.NoColor
}

func formatNames() []string {
	var names []string
	for _, f := range export.Formats() {
		names = append(names, string(f))
	}
	return names
}

// infoWriter is where status lines go: stderr when the graph itself is
// written to stdout
func infoWriter(cmd *cobra.Command, documentToStdout bool) io.Writer {
	if documentToStdout {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}
