package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/picatz/silopt/config"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/ir/irtest"
)

func init() {
	initStyles(true, "dark")
}

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		url      string
		cloneURL string
		subpath  string
	}{
		{"https://github.com/picatz/silopt", "https://github.com/picatz/silopt", ""},
		{"https://github.com/picatz/silopt.git", "https://github.com/picatz/silopt", ""},
		{"https://github.com/picatz/silopt/cmd/silopt", "https://github.com/picatz/silopt", "cmd/silopt"},
		{"https://github.com/picatz/silopt/blob/main/cmd/silopt/main.go", "https://github.com/picatz/silopt", "cmd/silopt/main.go"},
		{"https://github.com/picatz/silopt/tree/main/callgraphutil", "https://github.com/picatz/silopt", "callgraphutil"},
	}
	for _, tt := range tests {
		cloneURL, subpath, err := parseGitHubURL(tt.url)
		if err != nil {
			t.Fatalf("%s: %v", tt.url, err)
		}
		if cloneURL != tt.cloneURL || subpath != filepath.FromSlash(tt.subpath) {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", tt.url, cloneURL, subpath, tt.cloneURL, tt.subpath)
		}
	}

	if _, _, err := parseGitHubURL("https://github.com/picatz"); err == nil {
		t.Fatal("expected an error for a URL without a repository")
	}
}

func TestTargetPatterns(t *testing.T) {
	local := &target{dir: "."}
	if got := local.patterns(""); len(got) != 1 || got[0] != "./..." {
		t.Fatalf("unexpected local default %v", got)
	}
	remote := &target{dir: ".", cloneURL: "https://github.com/picatz/silopt"}
	if got := remote.patterns(""); len(got) != 1 || got[0] != "." {
		t.Fatalf("unexpected repository default %v", got)
	}
	if got := local.patterns(" ., ./cmd/x ,"); len(got) != 2 || got[1] != "./cmd/x" {
		t.Fatalf("unexpected patterns %v", got)
	}

	if _, err := resolveTarget(context.Background(), "testdata/missing"); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}

func runApp(t *testing.T, args ...string) (string, *cliState, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app, st := newApp(context.Background(), &out, &errOut)
	err := app.Run(append([]string{"silopt", "--no-color"}, args...))
	return out.String(), st, err
}

func TestPassesCommand(t *testing.T) {
	out, _, err := runApp(t, "passes")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"devirtualizer function", "dead-function-elimination module", "callee-analysis-printer"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestConfigure(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	if err := os.WriteFile(path, []byte("verify-all = true\nmax-passes = 3\nonly-functions = [\"glob:main.*\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, st, err := runApp(t, "--config", path, "--max-passes", "5", "passes")
	if err != nil {
		t.Fatal(err)
	}
	if !st.opts.VerifyAll {
		t.Error("expected verify-all from the configuration file")
	}
	if st.opts.MaxPassesToRun != 5 {
		t.Errorf("flags should override the file, got max-passes %d", st.opts.MaxPassesToRun)
	}
	if len(st.opts.OnlyFunctions) != 1 || st.opts.OnlyFunctions[0] != "glob:main.*" {
		t.Errorf("unexpected function filter %v", st.opts.OnlyFunctions)
	}

	if _, _, err := runApp(t, "--log-level", "loud", "passes"); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected an invalid configuration error, got %v", err)
	}
}

func newTestSession(t *testing.T) *session {
	t.Helper()
	m := ir.NewModule("test")
	m.WholeModule = true
	leaf := irtest.Leaf(m, "leaf")
	leaf.Linkage = ir.LinkageHidden
	dead := irtest.Leaf(m, "dead")
	dead.Linkage = ir.LinkageHidden
	irtest.Calls(m, "root", leaf)

	opts := config.Default()
	opts.LogLevel = "silent"
	s := &session{opts: opts}
	if err := s.setModule(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return s
}

func eval(t *testing.T, cmds commands, input string) string {
	t.Helper()
	var buf bytes.Buffer
	bt := bufio.NewWriter(&buf)
	if err := cmds.eval(context.Background(), bt, input); err != nil {
		t.Fatalf("%s: %v", input, err)
	}
	bt.Flush()
	return buf.String()
}

func TestShellCommands(t *testing.T) {
	s := newTestSession(t)
	cmds := s.commands()

	tests := []struct {
		input string
		want  []string
	}{
		{"nodes", []string{":root", ":leaf", ":dead"}},
		{"roots", []string{":root"}},
		{"funcs", []string{"leaf hidden", "root public"}},
		{"funcs glob:r*", []string{"root public"}},
		{"print leaf", []string{"@leaf"}},
		{"cg", []string{"static call"}},
		{"callpath leaf", []string{"found 1 path(s)", ":root → ", ":leaf"}},
		{"callpath --shortest leaf", []string{"found 1 path(s)"}},
		{"callers leaf", []string{":root"}},
		{"callers root", []string{"no callers"}},
		{"callpath nothing", []string{"no calls found", "available functions:"}},
		{"callees", []string{"root:", "apply #0"}},
		{"order", []string{"Bottom up function order:"}},
		{"print", []string{"not enough arguments"}},
		{"print missing", []string{`no function named "missing"`}},
		{"bogus", []string{"unknown command: bogus"}},
		{"run no-such-pass", []string{"no-such-pass"}},
	}
	for _, tt := range tests {
		out := eval(t, cmds, tt.input)
		for _, want := range tt.want {
			if !strings.Contains(out, want) {
				t.Errorf("%s: expected %q in:\n%s", tt.input, want, out)
			}
		}
	}

	out := eval(t, cmds, "run --verify dead-function-elimination")
	if !strings.Contains(out, "3 → 2 functions") {
		t.Fatalf("expected dead to be removed, got:\n%s", out)
	}
	if s.module.LookupFunction("dead") != nil || s.graph.Lookup("dead") != nil {
		t.Fatal("dead should be gone from the module and the call graph")
	}

	bt := bufio.NewWriter(io.Discard)
	if err := cmds.eval(context.Background(), bt, "exit"); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF from exit, got %v", err)
	}
}

func TestShellWithoutModule(t *testing.T) {
	s := &session{opts: config.Default()}
	out := eval(t, s.commands(), "nodes")
	if !strings.Contains(out, "no module is loaded") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestComplete(t *testing.T) {
	cmds := (&session{}).commands()
	if got, ok := cmds.complete("pas"); !ok || got != "passes" {
		t.Fatalf("expected passes, got %q", got)
	}
	if got, ok := cmds.complete("load testd"); !ok || got != "load testdata" {
		t.Fatalf("expected the testdata directory, got %q", got)
	}
	if _, ok := cmds.complete("zzz"); ok {
		t.Fatal("nothing should complete zzz")
	}
}

func TestRunExample(t *testing.T) {
	if testing.Short() {
		t.Skip("loading packages runs the go command")
	}
	out, _, err := runApp(t, "--whole-module", "--log-level", "silent", "run", "--print", "testdata/example")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "@example.com/example.main") {
		t.Errorf("expected main in the optimized module:\n%s", out)
	}
	if strings.Contains(out, "@example.com/example.unused") {
		t.Errorf("expected unused to be eliminated:\n%s", out)
	}

	out, _, err = runApp(t, "--log-level", "silent", "--only", "fuzzy:.unused", "dump", "testdata/example")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "sil hidden @example.com/example.unused") || strings.Contains(out, "example.main") {
		t.Errorf("expected only unused in the dump:\n%s", out)
	}

	out, _, err = runApp(t, "--log-level", "silent", "graph", "--format", "dot", "testdata/example")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "digraph callgraph {") {
		t.Errorf("expected DOT output, got:\n%s", out)
	}

	out, _, err = runApp(t, "--log-level", "silent", "callpath", "testdata/example", "fuzzy:welcome")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "example.com/example.main") || !strings.Contains(out, "example.com/example.welcome") {
		t.Errorf("expected a path from main to welcome, got:\n%s", out)
	}
}
