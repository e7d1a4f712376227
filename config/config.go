// Package config loads silopt options from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"

	"github.com/picatz/silopt/callgraphutil"
	"github.com/picatz/silopt/logging"
	"github.com/picatz/silopt/passmanager"
)

// FileName is the configuration file looked up in a target directory.
const FileName = "silopt.toml"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Options holds everything that configures an optimizer run.
type Options struct {
	VerifyAll         bool     `toml:"verify-all"`
	WholeModule       bool     `toml:"whole-module"`
	MaxPassesToRun    int      `toml:"max-passes"`
	MaxSubpassesToRun int      `toml:"max-subpasses"`
	OnlyFunctions     []string `toml:"only-functions"`
	LogLevel          string   `toml:"log-level"`
	Pipeline          string   `toml:"pipeline"`
	Theme             string   `toml:"theme"`
	Concurrency       int      `toml:"concurrency"`
	NoColor           bool     `toml:"no-color"`
}

// Default returns the options used when nothing is configured.
func Default() Options {
	return Options{
		LogLevel:    "info",
		Theme:       "dark",
		Concurrency: 10,
	}
}

var knownKeys = []string{
	"verify-all", "whole-module", "max-passes", "max-subpasses", "only-functions",
	"log-level", "pipeline", "theme", "concurrency", "no-color",
}

// Parse decodes TOML data over the defaults. Unknown keys are errors.
func Parse(data []byte) (Options, error) {
	opts := Default()
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return opts, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for _, key := range tree.Keys() {
		if !slices.Contains(knownKeys, key) {
			return opts, fmt.Errorf("%w: unknown key %q", ErrInvalid, key)
		}
	}
	if err := tree.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return opts, opts.Validate()
}

// Load reads and parses the file at path.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("failed to read config: %w", err)
	}
	opts, err := Parse(data)
	if err != nil {
		return opts, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

// ApplyEnv overrides options from environment variables, read with
// lookup (usually os.LookupEnv).
func (o *Options) ApplyEnv(lookup func(string) (string, bool)) error {
	bools := []struct {
		name string
		dst  *bool
	}{
		{"SILOPT_VERIFY_ALL", &o.VerifyAll},
		{"SILOPT_WHOLE_MODULE", &o.WholeModule},
	}
	for _, b := range bools {
		v, ok := lookup(b.name)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, b.name, err)
		}
		*b.dst = parsed
	}
	if v, ok := lookup("SILOPT_LOG_LEVEL"); ok {
		o.LogLevel = v
	}
	if v, ok := lookup("SILOPT_THEME"); ok {
		o.Theme = v
	}
	// Any value disables color, see https://no-color.org.
	if v, ok := lookup("NO_COLOR"); ok && v != "" {
		o.NoColor = true
	}
	return o.Validate()
}

// Validate checks option values.
func (o Options) Validate() error {
	if _, err := logging.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if o.MaxPassesToRun < 0 || o.MaxSubpassesToRun < 0 {
		return fmt.Errorf("%w: pass limits must not be negative", ErrInvalid)
	}
	if o.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", ErrInvalid)
	}
	switch strings.ToLower(o.Theme) {
	case "dark", "light":
	default:
		return fmt.Errorf("%w: unknown theme %q", ErrInvalid, o.Theme)
	}
	if _, err := callgraphutil.FunctionFilter(o.OnlyFunctions); err != nil {
		return fmt.Errorf("%w: only-functions: %w", ErrInvalid, err)
	}
	return nil
}

// Logger returns a logger writing to w at the configured level.
func (o Options) Logger(w io.Writer) *logging.Logger {
	level, err := logging.ParseLevel(o.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.New(level, w)
}

// PassManagerOptions converts o for a pass manager writing pass output
// to out and logging to logger.
func (o Options) PassManagerOptions(out io.Writer, logger *logging.Logger) (passmanager.Options, error) {
	filter, err := callgraphutil.FunctionFilter(o.OnlyFunctions)
	if err != nil {
		return passmanager.Options{}, fmt.Errorf("%w: only-functions: %w", ErrInvalid, err)
	}
	return passmanager.Options{
		VerifyAll:         o.VerifyAll,
		MaxPassesToRun:    o.MaxPassesToRun,
		MaxSubpassesToRun: o.MaxSubpassesToRun,
		FunctionFilter:    filter,
		Output:            out,
		Logger:            logger,
	}, nil
}
