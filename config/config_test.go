package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/picatz/silopt/config"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/logging"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestParse(t *testing.T) {
	opts, err := config.Parse([]byte(`
verify-all = true
max-passes = 12
max-subpasses = 3
only-functions = ["glob:Derived*", "main"]
log-level = "debug"
pipeline = "pipeline.yaml"
concurrency = 4
`))
	if err != nil {
		t.Fatal(err)
	}
	if !opts.VerifyAll || opts.WholeModule {
		t.Fatalf("unexpected flags %+v", opts)
	}
	if opts.MaxPassesToRun != 12 || opts.MaxSubpassesToRun != 3 || opts.Concurrency != 4 {
		t.Fatalf("unexpected numbers %+v", opts)
	}
	if !slices.Equal(opts.OnlyFunctions, []string{"glob:Derived*", "main"}) {
		t.Fatalf("unexpected functions %v", opts.OnlyFunctions)
	}
	if opts.Theme != "dark" {
		t.Fatalf("expected the default theme, got %q", opts.Theme)
	}
}

func TestParseErrors(t *testing.T) {
	for name, input := range map[string]string{
		"syntax":         "verify-all = ",
		"unknown key":    "verify = true",
		"wrong type":     `max-passes = "many"`,
		"negative limit": "max-passes = -1",
		"log level":      `log-level = "loud"`,
		"theme":          `theme = "plaid"`,
		"bad pattern":    `only-functions = ["regex:("]`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := config.Parse([]byte(input)); !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	if err := os.WriteFile(path, []byte("whole-module = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !opts.WholeModule {
		t.Fatal("expected whole-module to be set")
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	opts := config.Default()
	err := opts.ApplyEnv(env(map[string]string{
		"SILOPT_VERIFY_ALL":   "1",
		"SILOPT_WHOLE_MODULE": "true",
		"SILOPT_LOG_LEVEL":    "trace",
		"SILOPT_THEME":        "light",
		"NO_COLOR":            "yes",
	}))
	if err != nil {
		t.Fatal(err)
	}
	want := config.Options{
		VerifyAll:   true,
		WholeModule: true,
		LogLevel:    "trace",
		Theme:       "light",
		Concurrency: 10,
		NoColor:     true,
	}
	if !reflect.DeepEqual(opts, want) {
		t.Fatalf("expected %+v, got %+v", want, opts)
	}
	if l := opts.Logger(nil).Level(); l != logging.LevelTrace {
		t.Fatalf("expected trace logging, got %v", l)
	}

	bad := config.Default()
	if err := bad.ApplyEnv(env(map[string]string{"SILOPT_VERIFY_ALL": "sometimes"})); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestPassManagerOptions(t *testing.T) {
	opts := config.Default()
	opts.VerifyAll = true
	opts.MaxPassesToRun = 5
	opts.OnlyFunctions = []string{"fuzzy:.m"}

	pmOpts, err := opts.PassManagerOptions(nil, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if !pmOpts.VerifyAll || pmOpts.MaxPassesToRun != 5 {
		t.Fatalf("unexpected options %+v", pmOpts)
	}
	m := ir.NewModule("test")
	if !pmOpts.FunctionFilter(m.NewFunction("Base.m", ir.LinkagePublic)) {
		t.Fatal("expected Base.m to be selected")
	}
	if pmOpts.FunctionFilter(m.NewFunction("main", ir.LinkagePublic)) {
		t.Fatal("expected main not to be selected")
	}
}
