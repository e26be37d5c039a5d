package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-cdecl/pkg/cabs"
	"github.com/raymyers/ralph-cdecl/pkg/config"
	"github.com/raymyers/ralph-cdecl/pkg/cpp"
	"github.com/raymyers/ralph-cdecl/pkg/diag"
	"github.com/raymyers/ralph-cdecl/pkg/header"
	"github.com/raymyers/ralph-cdecl/pkg/model"
	"github.com/raymyers/ralph-cdecl/pkg/parser"
)

var version = "0.1.0"

// ErrDiagnostics is returned when the model was printed but some
// diagnostic had error severity.
var ErrDiagnostics = errors.New("errors were reported")

// options holds the command line flags
type options struct {
	configFile   string
	includePaths []string
	systemPaths  []string
	searchSystem bool
	defines      []string
	macros       []string
	failFast     bool
	externalCPP  bool
	format       string

	preprocessOnly bool // -E
	dParse         bool
	verbose        bool
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// singleDashFlags accept the -dparse style used by C compilers
var singleDashFlags = []string{"dparse"}

// normalizeFlags converts single-dash long flags like -dparse to --dparse
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range singleDashFlags {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var opts options
	rootCmd := &cobra.Command{
		Use:   "ralph-cdecl [flags] file...",
		Short: "ralph-cdecl parses C headers into a declaration model",
		Long: `ralph-cdecl reads C headers and prints the declarations they make:
macro constants, structs and unions, enums with their values, typedefs,
variables and function signatures, in source order.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			cfg, err := opts.config()
			if err != nil {
				fmt.Fprintf(errOut, "ralph-cdecl: %v\n", err)
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			switch {
			case opts.preprocessOnly:
				err = doPreprocessOnly(ctx, args, cfg, out, errOut)
			case opts.dParse:
				err = doParse(ctx, args, cfg, out, errOut)
			default:
				err = doModel(ctx, args, cfg, opts, out, errOut)
			}
			if err != nil && !errors.Is(err, ErrDiagnostics) {
				fmt.Fprintf(errOut, "ralph-cdecl: %v\n", err)
			}
			return err
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	opts.bind(rootCmd.Flags())

	return rootCmd
}

// bind registers the flags on fs. Preprocessor flags use the cc spelling.
func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.configFile, "config", "", "Load settings from a YAML or JSON file")
	fs.StringArrayVarP(&o.includePaths, "include", "I", nil, "Add directory to include search path")
	fs.StringArrayVar(&o.systemPaths, "isystem", nil, "Add directory to system include search path")
	fs.BoolVar(&o.searchSystem, "system-includes", false, "Also search the C compiler's own include directories")
	fs.StringArrayVarP(&o.defines, "define", "D", nil, "Treat NAME as defined; NAME=VALUE also fixes its value")
	fs.StringArrayVar(&o.macros, "macro", nil, "Override an object-like macro (NAME=VALUE)")
	fs.BoolVar(&o.failFast, "fail-fast", false, "Stop at the first syntax error")
	fs.BoolVar(&o.externalCPP, "external-cpp", false, "Use the system C preprocessor instead of the built-in one")
	fs.StringVar(&o.format, "format", "text", "Output format: text or yaml")
	fs.BoolVarP(&o.preprocessOnly, "preprocess", "E", false, "Preprocess only, output to stdout")
	fs.BoolVar(&o.dParse, "dparse", false, "Dump declarations after parsing")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "Report progress on stderr")
}

// config loads the config file, if any, and applies the flags over it
func (o *options) config() (*config.Config, error) {
	if o.format != "text" && o.format != "yaml" {
		return nil, fmt.Errorf("unknown format %q (want text or yaml)", o.format)
	}
	cfg := config.New()
	if o.configFile != "" {
		if err := cfg.LoadFile(o.configFile); err != nil {
			return nil, err
		}
	}
	flags := &config.Config{
		FailFast:     o.failFast,
		IncludePaths: o.includePaths,
		SystemPaths:  o.systemPaths,
		SearchSystem: o.searchSystem,
		External:     config.External{Enabled: o.externalCPP},
	}
	for _, d := range o.defines {
		name, _, hasValue := strings.Cut(d, "=")
		flags.DefinedSymbols = append(flags.DefinedSymbols, name)
		if hasValue {
			if err := flags.SetMacro(d); err != nil {
				return nil, err
			}
		}
	}
	for _, m := range o.macros {
		if !strings.Contains(m, "=") {
			return nil, fmt.Errorf("--macro %s: want NAME=VALUE", m)
		}
		if err := flags.SetMacro(m); err != nil {
			return nil, err
		}
	}
	cfg.Merge(flags)
	return cfg, nil
}

// printDiags writes diagnostics to w, one per line
func printDiags(w io.Writer, diags *diag.List) {
	for d := range diags.All() {
		fmt.Fprintln(w, d)
	}
}

// source reads filename and prepares it for the built-in preprocessor
func source(ctx context.Context, filename string, cfg *config.Config) (string, cpp.Options, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", cpp.Options{}, err
	}
	return header.Prepare(ctx, filename, string(data), cfg)
}

// doPreprocessOnly prints the preprocessed text of each file (-E flag)
func doPreprocessOnly(ctx context.Context, files []string, cfg *config.Config, out, errOut io.Writer) error {
	for _, filename := range files {
		src, opts, err := source(ctx, filename, cfg)
		if err != nil {
			return err
		}
		diags := &diag.List{}
		text, err := cpp.New(filename, src, opts, diags).Text()
		printDiags(errOut, diags)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
	}
	return nil
}

// doParse prints the raw declarations of each file back as C (-dparse flag)
func doParse(ctx context.Context, files []string, cfg *config.Config, out, errOut io.Writer) error {
	printer := cabs.NewPrinter(out)
	failed := false
	for _, filename := range files {
		src, opts, err := source(ctx, filename, cfg)
		if err != nil {
			return err
		}
		diags := &diag.List{}
		p := parser.New(cpp.New(filename, src, opts, diags), diags)
		for d := range p.Decls() {
			printer.PrintDeclaration(d)
		}
		printDiags(errOut, diags)
		if p.Err() != nil {
			return p.Err()
		}
		failed = failed || diags.HasErrors()
	}
	if failed {
		return ErrDiagnostics
	}
	return nil
}

// doModel parses every file, merges the units and prints the model
func doModel(ctx context.Context, files []string, cfg *config.Config, opts options, out, errOut io.Writer) error {
	if opts.verbose {
		for _, f := range files {
			fmt.Fprintf(errOut, "ralph-cdecl: parsing %s\n", f)
		}
	}
	proj, err := header.ParseFiles(ctx, files, cfg, nil)
	if err != nil {
		return err
	}
	for _, u := range proj.Units {
		printDiags(errOut, u.Diags)
	}
	printDiags(errOut, proj.Diags)
	if opts.verbose {
		fmt.Fprintf(errOut, "ralph-cdecl: merged %d units\n", len(proj.Units))
	}

	switch opts.format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(proj.Model)); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	default:
		model.NewPrinter(out).PrintModel(proj.Model)
	}

	if proj.HasErrors() {
		return ErrDiagnostics
	}
	return nil
}
