package callgraphutil

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/picatz/silopt/callgraph"
	"github.com/picatz/silopt/ir"
)

// MatchStrategy selects how a pattern is compared with function names.
type MatchStrategy int

const (
	MatchExact MatchStrategy = iota
	// MatchFuzzy matches substrings.
	MatchFuzzy
	// MatchGlob uses path.Match syntax.
	MatchGlob
	MatchRegex
)

var strategyNames = map[string]MatchStrategy{
	"exact":     MatchExact,
	"fuzzy":     MatchFuzzy,
	"fuzz":      MatchFuzzy,
	"substring": MatchFuzzy,
	"contains":  MatchFuzzy,
	"glob":      MatchGlob,
	"pattern":   MatchGlob,
	"regex":     MatchRegex,
	"regexp":    MatchRegex,
	"re":        MatchRegex,
}

func (m MatchStrategy) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	case MatchGlob:
		return "glob"
	case MatchRegex:
		return "regex"
	}
	return "unknown"
}

// ParseMatchStrategy returns the strategy named by s, or MatchExact for
// an unknown name.
func ParseMatchStrategy(s string) MatchStrategy {
	return strategyNames[strings.ToLower(s)]
}

// A FunctionMatcher matches function names against a single pattern.
type FunctionMatcher struct {
	pattern  string
	strategy MatchStrategy
	regex    *regexp.Regexp
}

// NewFunctionMatcher returns a matcher for pattern. Only regular
// expressions can fail to compile; a malformed glob matches itself.
func NewFunctionMatcher(pattern string, strategy MatchStrategy) (*FunctionMatcher, error) {
	m := &FunctionMatcher{pattern: pattern, strategy: strategy}
	if strategy == MatchRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
		m.regex = re
	}
	return m, nil
}

// NewFunctionMatcherFromString parses "strategy:pattern", for example
// "fuzzy:deinit" or "re:\.m$". Input without a known strategy prefix,
// such as "closure:#1", is matched exactly as a whole.
func NewFunctionMatcherFromString(input string) (*FunctionMatcher, error) {
	prefix, pattern, ok := strings.Cut(input, ":")
	if !ok {
		return NewFunctionMatcher(input, MatchExact)
	}
	strategy, known := strategyNames[strings.ToLower(prefix)]
	if !known {
		return NewFunctionMatcher(input, MatchExact)
	}
	return NewFunctionMatcher(pattern, strategy)
}

// Match reports whether name matches. Glob patterns are tried against
// the whole name and then against the part after its last slash, so
// "glob:p.*" selects every function of example.com/p.
func (m *FunctionMatcher) Match(name string) bool {
	switch m.strategy {
	case MatchExact:
		return name == m.pattern
	case MatchFuzzy:
		return strings.Contains(name, m.pattern)
	case MatchGlob:
		return m.glob(name) || (strings.Contains(name, "/") && m.glob(name[strings.LastIndex(name, "/")+1:]))
	case MatchRegex:
		return m.regex != nil && m.regex.MatchString(name)
	}
	return false
}

func (m *FunctionMatcher) glob(name string) bool {
	ok, err := path.Match(m.pattern, name)
	if err != nil {
		return name == m.pattern
	}
	return ok
}

func (m *FunctionMatcher) Strategy() MatchStrategy { return m.strategy }

func (m *FunctionMatcher) Pattern() string { return m.pattern }

func (m *FunctionMatcher) String() string {
	return m.strategy.String() + ":" + m.pattern
}

// FunctionFilter returns a predicate selecting the functions whose
// name matches any of patterns, each parsed like
// NewFunctionMatcherFromString. No patterns select every function.
func FunctionFilter(patterns []string) (func(*ir.Function) bool, error) {
	if len(patterns) == 0 {
		return func(*ir.Function) bool { return true }, nil
	}
	matchers := make([]*FunctionMatcher, len(patterns))
	for i, p := range patterns {
		m, err := NewFunctionMatcherFromString(p)
		if err != nil {
			return nil, err
		}
		matchers[i] = m
	}
	return func(f *ir.Function) bool {
		for _, m := range matchers {
			if m.Match(f.Name) {
				return true
			}
		}
		return false
	}, nil
}

// PathsSearchCallToWithMatcher returns paths that call functions matching the given matcher
func PathsSearchCallToWithMatcher(start *callgraph.Node, matcher *FunctionMatcher) Paths {
	return PathsSearch(start, func(n *callgraph.Node) bool {
		if n == nil || n.Func == nil {
			return false
		}
		return matcher.Match(n.Func.Name)
	})
}

// PathsSearchCallToAdvanced finds paths from start to functions
// matching a pattern. The pattern format determines the matching
// strategy:
//   - "pattern" or "exact:pattern" → exact string matching
//   - "fuzzy:pattern" → substring/fuzzy matching
//   - "glob:pattern" → shell-style glob matching
//   - "regex:pattern" → regular expression matching
func PathsSearchCallToAdvanced(start *callgraph.Node, pattern string) (Paths, MatchStrategy, error) {
	matcher, err := NewFunctionMatcherFromString(pattern)
	if err != nil {
		return nil, MatchExact, err
	}
	return PathsSearchCallToWithMatcher(start, matcher), matcher.Strategy(), nil
}

// PathsSearchCallToAdvancedAllNodes searches from every root of the
// graph. A library has many roots, and functions nothing reachable
// calls are still found: for those the paths hold a single edge from a
// direct caller, or are empty when there is no caller at all.
func PathsSearchCallToAdvancedAllNodes(g *callgraph.Graph, pattern string) (Paths, MatchStrategy, error) {
	matcher, err := NewFunctionMatcherFromString(pattern)
	if err != nil {
		return nil, MatchExact, err
	}

	var all Paths
	for _, root := range g.Roots() {
		all = append(all, PathsSearchCallToWithMatcher(root, matcher)...)
	}
	if len(all) > 0 {
		return all, matcher.Strategy(), nil
	}

	for _, n := range g.All() {
		if !matcher.Match(n.Func.Name) {
			continue
		}
		if len(n.In) > 0 {
			all = append(all, Path{n.In[0]})
		} else {
			all = append(all, Path{})
		}
	}
	return all, matcher.Strategy(), nil
}
