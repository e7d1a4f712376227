package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/picatz/silopt"
	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/callgraph"
	"github.com/picatz/silopt/callgraphutil"
	"github.com/picatz/silopt/config"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/passes"
	"github.com/picatz/silopt/passmanager"
)

// makeRawTerminal returns a raw terminal and a function to restore the
// terminal to its previous state, which should be called when the terminal
// is no longer needed (typically in a defer).
func makeRawTerminal() (*term.Terminal, func(), error) {
	oldState, err := term.MakeRaw(0)
	if err != nil {
		return nil, nil, fmt.Errorf("%w", err)
	}

	termWidth, termHeight, err := term.GetSize(0)
	if err != nil {
		term.Restore(0, oldState)
		return nil, nil, fmt.Errorf("%w", err)
	}

	termReadWriter := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}

	t := term.NewTerminal(termReadWriter, "") // Will set the prompt later.

	if err := t.SetSize(termWidth, termHeight); err != nil {
		term.Restore(0, oldState)
		return nil, nil, fmt.Errorf("%w", err)
	}

	return t, func() { term.Restore(0, oldState) }, nil
}

func clearScreen(bt *bufio.Writer) error {
	// Clear the screen, then move to the top left.
	if _, err := bt.WriteString("\033[2J\033[H"); err != nil {
		return fmt.Errorf("%w", err)
	}
	if err := bt.Flush(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

type commandArg struct {
	name     string
	desc     string
	optional bool
}

type commandFlag struct {
	name string
	desc string
}

type command struct {
	name  string
	desc  string
	args  []*commandArg
	flags []*commandFlag
	fn    commandFn
}

func (c *command) nRequiredArgs() int {
	var n int
	for _, arg := range c.args {
		if arg.optional {
			continue
		}
		n++
	}
	return n
}

func (c *command) help() string {
	var help strings.Builder

	help.WriteString(styleCommand.Render(c.name) + " ")

	for _, arg := range c.args {
		if arg.optional {
			help.WriteString(styleArgument.Render("[") + styleFaint.Render(fmt.Sprintf("<%s>", arg.name)) + styleArgument.Render("] "))
			continue
		}
		help.WriteString(styleArgument.Render(fmt.Sprintf("<%s> ", arg.name)))
	}

	for _, flag := range c.flags {
		help.WriteString(styleFlag.Render(fmt.Sprintf("--%s ", flag.name)) + styleFaint.Render(flag.desc) + " ")
	}

	help.WriteString(styleFaint.Render(c.desc) + "\n")

	return help.String()
}

// commandFn runs a command. Boolean flags set on the command line are
// present in flags.
type commandFn func(
	ctx context.Context,
	bt *bufio.Writer,
	args []string,
	flags map[string]bool,
) error

func errorCommandFn(err error) commandFn {
	return func(context.Context, *bufio.Writer, []string, map[string]bool) error {
		return err
	}
}

func terminalWriteFn(fn func(bt *bufio.Writer) error) commandFn {
	return func(_ context.Context, bt *bufio.Writer, _ []string, _ map[string]bool) error {
		return fn(bt)
	}
}

type commands []*command

func (c commands) help() string {
	var help strings.Builder
	for _, cmd := range c {
		help.WriteString(styleFaint.Render("- ") + styleCommand.Render(cmd.name) + " ")

		for _, arg := range cmd.args {
			if arg.optional {
				help.WriteString(styleArgument.Render("[") + styleFaint.Render(arg.name) + styleArgument.Render("] "))
				continue
			}
			help.WriteString(styleArgument.Render(fmt.Sprintf("<%s> ", arg.name)))
		}

		help.WriteString(styleFaint.Render(cmd.desc) + "\n")
	}

	help.WriteString("\n")

	return help.String()
}

func (c commands) lookup(name string) *command {
	for _, cmd := range c {
		if cmd.name == name {
			return cmd
		}
	}
	return nil
}

// eval parses and runs one line of input. Only io.EOF is returned;
// other failures are printed.
func (c commands) eval(ctx context.Context, bt *bufio.Writer, input string) error {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil
	}

	cmdName := fields[0]
	cmd := c.lookup(cmdName)
	if cmd == nil {
		bt.WriteString("unknown command: " + cmdName + "\n")
		bt.Flush()
		return nil
	}

	flagSet := flag.NewFlagSet(cmdName, flag.ContinueOnError)
	flagSet.SetOutput(bt)
	flagSet.Usage = func() {
		bt.WriteString("usage: " + cmd.help())
		bt.Flush()
	}
	for _, f := range cmd.flags {
		flagSet.Bool(f.name, false, f.desc)
	}

	// The flag package reports parse errors and usage itself.
	if err := flagSet.Parse(fields[1:]); err != nil {
		bt.Flush()
		return nil
	}

	flags := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) {
		flags[f.Name] = f.Value.String() == "true"
	})

	if len(flagSet.Args()) < cmd.nRequiredArgs() {
		bt.WriteString("not enough arguments, expected " + styleNumber.Render(fmt.Sprintf("%d", cmd.nRequiredArgs())) + " but got " + styleNumber.Render(fmt.Sprintf("%d", len(flagSet.Args()))) + "\n")
		bt.WriteString("usage: " + cmd.help())
		bt.Flush()
		return nil
	}

	if err := cmd.fn(ctx, bt, flagSet.Args(), flags); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		bt.WriteString("✗ " + styleError.Render(err.Error()) + "\n")
	}
	bt.Flush()
	return nil
}

// complete returns the completion of line, completing command names
// and the directory argument of load.
func (c commands) complete(line string) (string, bool) {
	if dir, ok := strings.CutPrefix(line, "load "); ok {
		if _, err := os.Stat(dir); err == nil {
			return line, false
		}
		dirPrefix := strings.TrimSuffix(dir, "/")
		parentDir := filepath.Dir(dirPrefix)
		entries, err := os.ReadDir(parentDir)
		if err != nil {
			return line, false
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), filepath.Base(dirPrefix)) {
				return "load " + filepath.Join(parentDir, entry.Name()), true
			}
		}
		return line, false
	}
	for _, cmd := range c {
		if line != "" && strings.HasPrefix(cmd.name, line) {
			return cmd.name, true
		}
	}
	return line, false
}

// A session is the state of an interactive shell: the loaded module
// and its call graph.
type session struct {
	opts   config.Options
	target *target
	module *ir.Module
	graph  *callgraph.Graph
}

func (s *session) passManagerOptions(bt *bufio.Writer) (passmanager.Options, error) {
	return s.opts.PassManagerOptions(bt, s.opts.Logger(bt))
}

// setModule makes m the current module and rebuilds its call graph.
func (s *session) setModule(ctx context.Context, m *ir.Module) error {
	g, err := callgraph.New(ctx, m, analysis.NewBasicCallee(m), int64(s.opts.Concurrency))
	if err != nil {
		return err
	}
	s.module, s.graph = m, g
	return nil
}

func (s *session) requireModule(bt *bufio.Writer) bool {
	if s.module == nil {
		bt.WriteString("no module is loaded\n")
		return false
	}
	return true
}

func (s *session) commands() commands {
	return commands{
		{
			name: "exit",
			desc: "exit the shell",
			fn:   errorCommandFn(io.EOF),
		},
		{
			name: "clear",
			desc: "clear the screen",
			fn:   terminalWriteFn(clearScreen),
		},
		{
			name: "load",
			desc: "load and lower Go packages",
			args: []*commandArg{
				{name: "target", desc: "directory or GitHub repository URL, which may include a subdirectory or file path"},
				{name: "pattern", desc: "comma-separated package patterns", optional: true},
			},
			flags: []*commandFlag{
				{name: "full", desc: "load ./... of a GitHub repository"},
			},
			fn: s.load,
		},
		{
			name: "funcs",
			desc: "list functions and their linkage",
			args: []*commandArg{
				{name: "pattern", desc: "only list matching functions (fuzzy:, glob:, regex:)", optional: true},
			},
			fn: s.funcs,
		},
		{
			name: "print",
			desc: "print the body of a function",
			args: []*commandArg{
				{name: "function", desc: "the function to print"},
			},
			fn: s.print,
		},
		{
			name: "passes",
			desc: "list the registered passes",
			fn: terminalWriteFn(func(bt *bufio.Writer) error {
				writePasses(bt, passes.NewRegistry())
				return nil
			}),
		},
		{
			name: "run",
			desc: "run passes over the loaded module, the default pipeline without arguments",
			args: []*commandArg{
				{name: "pass", desc: "passes to run as a single stage", optional: true},
			},
			flags: []*commandFlag{
				{name: "verify", desc: "verify the module after every pass"},
			},
			fn: s.run,
		},
		{
			name: "callees",
			desc: "print the callee list of every call site",
			fn:   s.printer("callee-analysis-printer"),
		},
		{
			name: "order",
			desc: "print the bottom-up function order",
			fn:   s.printer("function-order-printer"),
		},
		{
			name: "cg",
			desc: "print the call graph",
			fn:   s.cg,
		},
		{
			name: "roots",
			desc: "print the call graph roots",
			fn:   s.roots,
		},
		{
			name: "nodes",
			desc: "print the call graph nodes",
			fn:   s.nodes,
		},
		{
			name: "callpath",
			desc: "find call paths to a function",
			args: []*commandArg{
				{name: "function", desc: "the function to find call paths to (supports fuzzy, glob, and regex matching)"},
			},
			flags: []*commandFlag{
				{name: "shortest", desc: "only print the shortest path"},
			},
			fn: s.callpath,
		},
		{
			name: "callers",
			desc: "list the direct callers of a function",
			args: []*commandArg{
				{name: "function", desc: "the function whose callers to list"},
			},
			fn: s.callers,
		},
	}
}

func (s *session) load(ctx context.Context, bt *bufio.Writer, args []string, flags map[string]bool) error {
	t, err := resolveTarget(ctx, args[0])
	if err != nil {
		return err
	}
	if t.cloneURL != "" {
		msg := "cloned " + styleNumber.Render(t.cloneURL) + " to " + styleNumber.Render(t.dir) + " at " + styleNumber.Render(t.head)
		if t.subpath != "" {
			msg += styleSubtle.Render(" (subpath)")
		}
		bt.WriteString(msg + "\n")
		bt.Flush()
	}

	var list string
	if len(args) > 1 {
		list = args[1]
	} else if flags["full"] {
		list = "./..."
	}
	m, err := importTarget(ctx, t, t.patterns(list), s.opts.WholeModule, s.opts.Concurrency)
	if err != nil {
		return err
	}
	if err := s.setModule(ctx, m); err != nil {
		return err
	}
	s.target = t

	bt.WriteString("✓ " + styleSuccess.Render("loaded ") + styleNumber.Render(fmt.Sprintf("%d", m.NumFunctions())) + styleSuccess.Render(" functions") +
		styleSubtle.Render(" and ") + styleNumber.Render(fmt.Sprintf("%d", len(m.WitnessTables()))) + styleSubtle.Render(" witness tables") + "\n")
	return nil
}

func (s *session) funcs(_ context.Context, bt *bufio.Writer, args []string, _ map[string]bool) error {
	if !s.requireModule(bt) {
		return nil
	}
	filter, err := callgraphutil.FunctionFilter(args)
	if err != nil {
		return err
	}
	for _, f := range s.module.Functions() {
		if !filter(f) {
			continue
		}
		line := semanticColorFunc(f.Name) + " " + styleLinkage.Render(f.Linkage.String())
		if f.IsExternalDeclaration() {
			line += styleFaint.Render(" (declaration)")
		}
		bt.WriteString(line + "\n")
	}
	return nil
}

func (s *session) print(_ context.Context, bt *bufio.Writer, args []string, _ map[string]bool) error {
	if !s.requireModule(bt) {
		return nil
	}
	f := s.module.LookupFunction(args[0])
	if f == nil {
		return fmt.Errorf("no function named %q", args[0])
	}
	return ir.WriteFunction(bt, f)
}

func (s *session) run(ctx context.Context, bt *bufio.Writer, args []string, flags map[string]bool) error {
	if !s.requireModule(bt) {
		return nil
	}
	plan := silopt.DefaultPlan()
	if len(args) > 0 {
		plan = passmanager.Plan{}
		plan.AddStage("Shell", args...)
	}
	if err := plan.Validate(passes.NewRegistry()); err != nil {
		return err
	}
	opts, err := s.passManagerOptions(bt)
	if err != nil {
		return err
	}
	if flags["verify"] {
		opts.VerifyAll = true
	}
	before := s.module.NumFunctions()
	runErr := silopt.Optimize(ctx, s.module, plan, opts)
	// Passes may have changed the module even if the pipeline stopped.
	if err := s.setModule(ctx, s.module); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	bt.WriteString("✓ " + styleSuccess.Render("ran ") + styleInfo.Render(plan.String()) +
		styleSubtle.Render(", ") + styleNumber.Render(fmt.Sprintf("%d", before)) + styleSubtle.Render(" → ") +
		styleNumber.Render(fmt.Sprintf("%d", s.module.NumFunctions())) + styleSubtle.Render(" functions") + "\n")
	return nil
}

// printer returns a command running the printing module pass name.
func (s *session) printer(name string) commandFn {
	return func(_ context.Context, bt *bufio.Writer, _ []string, _ map[string]bool) error {
		if !s.requireModule(bt) {
			return nil
		}
		opts, err := s.passManagerOptions(bt)
		if err != nil {
			return err
		}
		silopt.NewPassManager(s.module, opts).RunModulePass(name)
		return nil
	}
}

func (s *session) cg(_ context.Context, bt *bufio.Writer, _ []string, _ map[string]bool) error {
	if !s.requireModule(bt) {
		return nil
	}
	arrow := styleArrow.Render(" → ")
	for _, n := range s.graph.All() {
		bt.WriteString(highlightNode(n.String()) + "\n")
		for _, e := range n.Out {
			bt.WriteString("  " + arrow + highlightNode(e.Callee.String()) + styleFaint.Render(" ("+e.Description()+")") + "\n")
		}
		bt.WriteString("\n")
	}
	return nil
}

func (s *session) roots(_ context.Context, bt *bufio.Writer, _ []string, _ map[string]bool) error {
	if !s.requireModule(bt) {
		return nil
	}
	for _, n := range s.graph.Roots() {
		bt.WriteString(highlightNode(n.String()) + "\n")
	}
	return nil
}

func (s *session) nodes(_ context.Context, bt *bufio.Writer, _ []string, _ map[string]bool) error {
	if !s.requireModule(bt) {
		return nil
	}
	for _, n := range s.graph.All() {
		line := highlightNode(n.String())
		if n.Incomplete {
			line += styleWarning.Render(" (incomplete)")
		}
		bt.WriteString(line + "\n")
	}
	return nil
}

func (s *session) callpath(_ context.Context, bt *bufio.Writer, args []string, flags map[string]bool) error {
	if !s.requireModule(bt) {
		return nil
	}
	pattern := args[0]

	paths, strategy, err := callgraphutil.PathsSearchCallToAdvancedAllNodes(s.graph, pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	if len(paths) == 0 {
		bt.WriteString("✗ " + styleWarning.Render("no calls found") + styleSubtle.Render(" using ") + styleInfo.Render(strategy.String()) + styleSubtle.Render(" matching for: ") + styleArgument.Render(pattern) + "\n")
		bt.WriteString(styleSubtle.Render("available functions:") + "\n")
		names := functionNames(s.graph)
		for i, name := range names {
			if i >= 10 {
				bt.WriteString(styleSubtle.Render("  ... and ") + styleNumber.Render(fmt.Sprintf("%d", len(names)-10)) + styleSubtle.Render(" more") + "\n")
				break
			}
			bt.WriteString(styleSubtle.Render("  ") + name + "\n")
		}
		return nil
	}

	if flags["shortest"] {
		paths = callgraphutil.Paths{paths.Shortest()}
	}
	bt.WriteString("✓ " + styleSuccess.Render(fmt.Sprintf("found %d path(s)", len(paths))) + styleSubtle.Render(" using ") + styleInfo.Render(strategy.String()) + styleSubtle.Render(" matching for: ") + styleArgument.Render(pattern) + "\n")
	for i, path := range paths {
		bt.WriteString(styleNumber.Render(fmt.Sprintf("%d", i+1)) + ": " + formatPath(path) + "\n")
	}
	return nil
}

func (s *session) callers(_ context.Context, bt *bufio.Writer, args []string, _ map[string]bool) error {
	if !s.requireModule(bt) {
		return nil
	}
	n := s.graph.Lookup(args[0])
	if n == nil {
		return fmt.Errorf("no function named %q", args[0])
	}
	callers := callgraphutil.CallersOf(n)
	if len(callers) == 0 {
		bt.WriteString(styleSubtle.Render("no callers") + "\n")
		return nil
	}
	for _, caller := range callers {
		bt.WriteString(highlightNode(caller.String()) + "\n")
	}
	return nil
}

// formatPath highlights the nodes of p. An empty path is a function
// that nothing calls.
func formatPath(p callgraphutil.Path) string {
	if p.Empty() {
		return styleSubtle.Render("(no callers)")
	}
	parts := []string{highlightNode(p.First().Caller.String())}
	for _, e := range p {
		parts = append(parts, highlightNode(e.Callee.String()))
	}
	return strings.Join(parts, styleSubtle.Render(" → "))
}

// functionNames returns the sorted function names of g.
func functionNames(g *callgraph.Graph) []string {
	var names []string
	for _, n := range g.All() {
		names = append(names, n.Func.Name)
	}
	slices.Sort(names)
	return names
}

func writePasses(w io.Writer, r *passmanager.Registry) {
	for _, info := range r.Passes() {
		fmt.Fprintf(w, "%s %s %s\n",
			styleCommand.Render(info.Name),
			styleLinkage.Render(info.Kind.String()),
			styleFaint.Render(info.Description))
	}
}

func startShell(ctx context.Context, s *session) error {
	t, restore, err := makeRawTerminal()
	if err != nil {
		return err
	}
	defer restore()

	bt := bufio.NewWriter(t)
	cmds := s.commands()

	t.AutoCompleteCallback = func(line string, pos int, key rune) (newLine string, newPos int, ok bool) {
		if key != '\t' {
			return line, pos, false
		}
		if completed, ok := cmds.complete(line); ok {
			return completed, len(completed), true
		}
		return line, pos, false
	}

	bt.WriteString(styleHeader.Render("Commands") + styleSubtle.Render(" (tab complete)") + "\n\n")
	bt.WriteString(cmds.help())
	bt.Flush()

	for {
		// Move to left edge, then prompt.
		bt.WriteString("\033[0G")
		bt.WriteString(styleBold.Render("> "))
		bt.Flush()

		input, err := t.ReadLine()
		if err != nil {
			return err
		}

		if err := cmds.eval(ctx, bt, input); err != nil {
			return err
		}
		bt.Flush()
	}
}
