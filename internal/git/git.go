// Package git wraps the handful of git queries pp needs: the repository
// root, working tree status, changed files and the GitHub remote.
package git

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/platformplatform/developer-cli/internal/process"
)

// Repo runs git inside Dir.
type Repo struct {
	Runner process.Runner
	Dir    string
}

// New returns a Repo for dir.
func New(r process.Runner, dir string) *Repo {
	return &Repo{Runner: r, Dir: dir}
}

func (g *Repo) output(ctx context.Context, args ...string) (string, error) {
	return process.Output(ctx, g.Runner, g.Dir, "git", args...)
}

// Root returns the top-level directory of the working tree.
func (g *Repo) Root(ctx context.Context) (string, error) {
	out, err := g.output(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return filepath.Clean(out), nil
}

// FileStatus is one entry from `git status --porcelain`.
type FileStatus struct {
	Code string // two-letter XY code, e.g. " M", "??"
	Path string
}

// Status lists changed and untracked files relative to the repository root.
func (g *Repo) Status(ctx context.Context, pathspec ...string) ([]FileStatus, error) {
	args := []string{"status", "--porcelain", "--untracked-files=all"}
	if len(pathspec) > 0 {
		args = append(append(args, "--"), pathspec...)
	}
	res, err := g.Runner.Run(ctx, process.Command{Name: "git", Args: args, Dir: g.Dir})
	if err != nil {
		return nil, err
	}
	return ParseStatus(res.Stdout), nil
}

// ParseStatus parses porcelain v1 output. Renames report the new path.
func ParseStatus(out string) []FileStatus {
	var files []FileStatus
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		files = append(files, FileStatus{Code: line[:2], Path: strings.Trim(path, `"`)})
	}
	return files
}

// Snapshot returns the set of dirty paths with their status codes, used to
// detect what a formatter changed.
func (g *Repo) Snapshot(ctx context.Context, pathspec ...string) (map[string]string, error) {
	files, err := g.Status(ctx, pathspec...)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]string, len(files))
	for _, f := range files {
		snap[f.Path] = f.Code
	}
	return snap, nil
}

// Diff returns the paths whose status differs between two snapshots, sorted.
func Diff(before, after map[string]string) []string {
	var changed []string
	for path, code := range after {
		if before[path] != code {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

// ChangedFilesSince lists files changed on this branch relative to base
// (merge-base diff) plus uncommitted changes.
func (g *Repo) ChangedFilesSince(ctx context.Context, base string) ([]string, error) {
	committed, err := g.output(ctx, "diff", "--name-only", base+"...HEAD")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var files []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, p := range strings.Split(committed, "\n") {
		add(strings.TrimSpace(p))
	}
	dirty, err := g.Status(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range dirty {
		add(f.Path)
	}
	sort.Strings(files)
	return files, nil
}

var githubRemote = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// GitHubRepository returns "owner/name" parsed from the origin remote.
func (g *Repo) GitHubRepository(ctx context.Context) (string, error) {
	url, err := g.output(ctx, "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("no origin remote: %w", err)
	}
	return ParseGitHubRepository(url)
}

// ParseGitHubRepository extracts "owner/name" from an https or ssh remote URL.
func ParseGitHubRepository(url string) (string, error) {
	m := githubRemote.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", fmt.Errorf("remote %q is not a GitHub repository", url)
	}
	return m[1] + "/" + m[2], nil
}
