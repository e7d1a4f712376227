package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/logging"
	"github.com/picatz/silopt/ssaimport"
)

const githubPrefix = "https://github.com/"

// A target is a directory of Go packages to optimize, either local or
// inside a GitHub repository clone.
type target struct {
	dir      string
	cloneURL string // empty for local targets
	subpath  string // path inside the repository
	head     string // commit hash of the clone
}

// parseGitHubURL splits a repository URL into the URL to clone and the
// path within the repository. Both tree/<branch>/ and blob/<branch>/
// forms are accepted.
func parseGitHubURL(arg string) (cloneURL, subpath string, err error) {
	u, err := url.Parse(arg)
	if err != nil {
		return "", "", fmt.Errorf("%w", err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub URL: %s", arg)
	}
	cloneURL = githubPrefix + segments[0] + "/" + strings.TrimSuffix(segments[1], ".git")
	rest := segments[2:]
	if len(rest) >= 2 && (rest[0] == "blob" || rest[0] == "tree") {
		rest = rest[2:]
	}
	if len(rest) > 0 {
		subpath = filepath.Join(rest...)
	}
	return cloneURL, subpath, nil
}

// resolveTarget returns the local directory for arg, cloning GitHub
// repositories first.
func resolveTarget(ctx context.Context, arg string) (*target, error) {
	if !strings.HasPrefix(arg, githubPrefix) {
		if _, err := os.Stat(arg); err != nil {
			return nil, fmt.Errorf("target %q: %w", arg, err)
		}
		return &target{dir: arg}, nil
	}

	cloneURL, subpath, err := parseGitHubURL(arg)
	if err != nil {
		return nil, err
	}
	dir, head, err := cloneRepository(ctx, cloneURL)
	if err != nil {
		return nil, err
	}
	t := &target{dir: dir, cloneURL: cloneURL, subpath: subpath, head: head}
	if subpath != "" {
		t.dir = filepath.Join(dir, subpath)
	}
	if strings.HasSuffix(t.dir, ".go") {
		t.dir = filepath.Dir(t.dir)
	}
	return t, nil
}

// patterns splits a comma-separated pattern list. Without patterns a
// local target loads ./... and a repository loads its root package.
func (t *target) patterns(list string) []string {
	var patterns []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) > 0 {
		return patterns
	}
	if t.cloneURL != "" {
		return []string{"."}
	}
	return []string{"./..."}
}

func (t *target) String() string {
	if t.cloneURL == "" {
		return t.dir
	}
	return fmt.Sprintf("%s at %s", t.cloneURL, t.head)
}

// importTarget loads and lowers the packages of t matching patterns.
// Dependency bodies are loaded on demand.
func importTarget(ctx context.Context, t *target, patterns []string, wholeModule bool, concurrency int) (*ir.Module, error) {
	cfg := ssaimport.Config{
		WholeModule:          wholeModule,
		Concurrency:          int64(concurrency),
		LoadDependencyBodies: true,
	}
	logging.FromContext(ctx).Debug("loading %v from %s", patterns, t)
	prog, pkgs, err := ssaimport.Load(ctx, t.dir, cfg, patterns...)
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages matching %v in %s", patterns, t.dir)
	}
	return ssaimport.Import(ctx, prog, pkgs, cfg)
}

// cloneRepository clones a repository and returns the directory it was cloned
// to using go-git under the hood, which is a pure Go implementation of Git.
// An existing clone is reused.
func cloneRepository(ctx context.Context, repoURL string) (string, string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("%w", err)
	}

	pathSegments := strings.Split(u.Path, "/")
	if len(pathSegments) < 3 {
		return "", "", fmt.Errorf("invalid GitHub URL: %s", repoURL)
	}
	ownerAndRepo := pathSegments[1] + "/" + pathSegments[2]

	dir := filepath.Join(os.TempDir(), "silopt", "github", ownerAndRepo)

	if _, err := os.Stat(dir); err == nil {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return dir, "", fmt.Errorf("%w", err)
		}
		head, err := repo.Head()
		if err != nil {
			return dir, "", fmt.Errorf("%w", err)
		}
		return dir, head.Hash().String(), nil
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		Tags:         git.NoTags,
		SingleBranch: true,
	})
	if err != nil {
		return dir, "", fmt.Errorf("%w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return dir, "", fmt.Errorf("%w", err)
	}

	return dir, head.Hash().String(), nil
}
