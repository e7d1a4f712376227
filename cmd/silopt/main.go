// Command silopt lowers Go packages into the silopt IR, runs optimization
// pipelines over them and inspects the results: callee lists, the
// bottom-up function order and the call graph.
//
// Options come from a silopt.toml file, SILOPT_* environment variables
// and the global flags, in increasing order of precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli"

	"github.com/picatz/silopt"
	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/callgraph"
	"github.com/picatz/silopt/callgraphutil"
	"github.com/picatz/silopt/config"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/logging"
	"github.com/picatz/silopt/passes"
)

// cliState carries what the global flags configure to the commands.
type cliState struct {
	ctx    context.Context
	opts   config.Options
	logger *logging.Logger
}

func newApp(ctx context.Context, out, errOut io.Writer) (*cli.App, *cliState) {
	st := &cliState{ctx: ctx, opts: config.Default(), logger: logging.Discard()}

	app := cli.NewApp()
	app.Name = "silopt"
	app.Usage = "optimize Go packages lowered into the silopt IR"
	app.Version = "0.1.0"
	app.Writer = out
	app.ErrWriter = errOut
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "load options from `FILE` (default ./" + config.FileName + " if present)"},
		cli.StringFlag{Name: "log-level", Usage: "silent, info, debug or trace"},
		cli.BoolFlag{Name: "verify-all", Usage: "verify the module before the pipeline and after every pass"},
		cli.BoolFlag{Name: "whole-module", Usage: "assume no code outside the loaded packages"},
		cli.StringSliceFlag{Name: "only", Usage: "run function passes only on matching functions (fuzzy:, glob:, regex:)"},
		cli.IntFlag{Name: "max-passes", Usage: "stop after `N` pass runs"},
		cli.IntFlag{Name: "max-subpasses", Usage: "stop the last pass after `N` transformations"},
		cli.IntFlag{Name: "concurrency", Usage: "lower and analyze up to `N` functions at once"},
		cli.BoolFlag{Name: "no-color", Usage: "disable colored output"},
		cli.StringFlag{Name: "theme", Usage: "dark or light"},
	}
	app.Before = st.configure
	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "load packages and run an optimization pipeline",
			ArgsUsage: "<target> [patterns]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "pipeline", Usage: "YAML pipeline `FILE` replacing the default plan"},
				cli.BoolFlag{Name: "print", Usage: "print the optimized module"},
			},
			Action: st.run,
		},
		{
			Name:      "dump",
			Usage:     "print the lowered module without optimizing it",
			ArgsUsage: "<target> [patterns]",
			Action:    st.dump,
		},
		{
			Name:      "callees",
			Usage:     "print the callee list of every call site",
			ArgsUsage: "<target> [patterns]",
			Action:    st.printer("callee-analysis-printer"),
		},
		{
			Name:      "order",
			Usage:     "print the bottom-up function order",
			ArgsUsage: "<target> [patterns]",
			Action:    st.printer("function-order-printer"),
		},
		{
			Name:      "graph",
			Usage:     "write the call graph",
			ArgsUsage: "<target> [patterns]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "format", Value: "text", Usage: "text, dot, csv or cosmograph"},
				cli.StringFlag{Name: "output", Usage: "write to `PREFIX` instead of stdout (required for cosmograph)"},
			},
			Action: st.graph,
		},
		{
			Name:      "callpath",
			Usage:     "find call paths to matching functions",
			ArgsUsage: "<target> <function> [patterns]",
			Action:    st.callpath,
		},
		{
			Name:  "passes",
			Usage: "list the registered passes",
			Action: func(c *cli.Context) error {
				writePasses(c.App.Writer, passes.NewRegistry())
				return nil
			},
		},
		{
			Name:  "shell",
			Usage: "start an interactive shell",
			Action: func(c *cli.Context) error {
				return startShell(st.context(), &session{opts: st.opts})
			},
		},
	}
	return app, st
}

// configure merges the configuration file, the environment and the
// global flags.
func (st *cliState) configure(c *cli.Context) error {
	opts := config.Default()
	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(config.FileName); err == nil {
			path = config.FileName
		}
	}
	if path != "" {
		var err error
		if opts, err = config.Load(path); err != nil {
			return err
		}
	}
	if err := opts.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}

	if c.IsSet("log-level") {
		opts.LogLevel = c.String("log-level")
	}
	if c.IsSet("verify-all") {
		opts.VerifyAll = c.Bool("verify-all")
	}
	if c.IsSet("whole-module") {
		opts.WholeModule = c.Bool("whole-module")
	}
	if c.IsSet("only") {
		opts.OnlyFunctions = c.StringSlice("only")
	}
	if c.IsSet("max-passes") {
		opts.MaxPassesToRun = c.Int("max-passes")
	}
	if c.IsSet("max-subpasses") {
		opts.MaxSubpassesToRun = c.Int("max-subpasses")
	}
	if c.IsSet("concurrency") {
		opts.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("no-color") {
		opts.NoColor = c.Bool("no-color")
	}
	if c.IsSet("theme") {
		opts.Theme = c.String("theme")
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	st.opts = opts
	st.logger = opts.Logger(c.App.ErrWriter)
	initStyles(opts.NoColor, opts.Theme)
	return nil
}

func (st *cliState) context() context.Context {
	return logging.WithLogger(st.ctx, st.logger)
}

// load resolves the target argument and imports the packages named by
// the argument at patternArg.
func (st *cliState) load(c *cli.Context, patternArg int) (*ir.Module, error) {
	if c.NArg() < 1 {
		return nil, fmt.Errorf("%s: missing target", c.Command.Name)
	}
	t, err := resolveTarget(st.context(), c.Args().First())
	if err != nil {
		return nil, err
	}
	return importTarget(st.context(), t, t.patterns(c.Args().Get(patternArg)), st.opts.WholeModule, st.opts.Concurrency)
}

func (st *cliState) run(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("run: missing target")
	}
	ctx := st.context()
	t, err := resolveTarget(ctx, c.Args().First())
	if err != nil {
		return err
	}
	opts := st.opts
	if c.IsSet("pipeline") {
		opts.Pipeline = c.String("pipeline")
	}

	m, err := silopt.OptimizePackages(ctx, t.dir, t.patterns(c.Args().Get(1)), opts, c.App.Writer)
	if m != nil {
		for _, d := range m.Diagnostics.All() {
			fmt.Fprintln(c.App.ErrWriter, styleWarning.Render(d.String()))
		}
		if err == nil && c.Bool("print") {
			if werr := ir.WriteModule(c.App.Writer, m); werr != nil {
				return werr
			}
		}
	}
	return err
}

func (st *cliState) dump(c *cli.Context) error {
	m, err := st.load(c, 1)
	if err != nil {
		return err
	}
	if len(st.opts.OnlyFunctions) == 0 {
		return ir.WriteModule(c.App.Writer, m)
	}
	filter, err := callgraphutil.FunctionFilter(st.opts.OnlyFunctions)
	if err != nil {
		return err
	}
	for _, f := range m.Functions() {
		if !filter(f) {
			continue
		}
		if err := ir.WriteFunction(c.App.Writer, f); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer)
	}
	return nil
}

// printer returns an action running the printing module pass name over
// the loaded module.
func (st *cliState) printer(name string) func(*cli.Context) error {
	return func(c *cli.Context) error {
		m, err := st.load(c, 1)
		if err != nil {
			return err
		}
		opts, err := st.opts.PassManagerOptions(c.App.Writer, st.logger)
		if err != nil {
			return err
		}
		silopt.NewPassManager(m, opts).RunModulePass(name)
		return nil
	}
}

func (st *cliState) callGraph(c *cli.Context, patternArg int) (*callgraph.Graph, error) {
	m, err := st.load(c, patternArg)
	if err != nil {
		return nil, err
	}
	return callgraph.New(st.context(), m, analysis.NewBasicCallee(m), int64(st.opts.Concurrency))
}

func (st *cliState) graph(c *cli.Context) error {
	g, err := st.callGraph(c, 1)
	if err != nil {
		return err
	}

	format, prefix := c.String("format"), c.String("output")
	if format == "cosmograph" {
		if prefix == "" {
			return errors.New("graph: cosmograph output needs --output")
		}
		return writeFiles(func(graph, metadata io.Writer) error {
			return callgraphutil.WriteCosmograph(graph, metadata, g)
		}, prefix+".csv", prefix+"-metadata.csv")
	}

	write := func(w io.Writer) error {
		switch format {
		case "text":
			_, err := io.WriteString(w, callgraphutil.GraphString(g))
			return err
		case "dot":
			return callgraphutil.WriteDOT(w, g)
		case "csv":
			return callgraphutil.WriteCSV(w, g)
		}
		return fmt.Errorf("graph: unknown format %q", format)
	}
	if prefix == "" {
		return write(c.App.Writer)
	}
	return writeFiles(func(w, _ io.Writer) error { return write(w) }, prefix)
}

// writeFiles creates the named files and passes them to write, which
// receives nil for names that are not given.
func writeFiles(write func(a, b io.Writer) error, names ...string) error {
	var ws [2]io.Writer
	for i, name := range names {
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("%w", err)
		}
		defer f.Close()
		ws[i] = f
	}
	return write(ws[0], ws[1])
}

func (st *cliState) callpath(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("callpath: need a target and a function")
	}
	g, err := st.callGraph(c, 2)
	if err != nil {
		return err
	}
	pattern := c.Args().Get(1)
	paths, strategy, err := callgraphutil.PathsSearchCallToAdvancedAllNodes(g, pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no calls found using %s matching for %s", strategy, pattern)
	}
	for i, p := range paths {
		fmt.Fprintf(c.App.Writer, "%s: %s\n", styleNumber.Render(fmt.Sprintf("%d", i+1)), formatPath(p))
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	app, _ := newApp(ctx, os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
