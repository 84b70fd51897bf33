// Package packages finds outdated NuGet and npm dependencies and applies
// version bumps.
package packages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/platformplatform/developer-cli/internal/prereq"
	"github.com/platformplatform/developer-cli/internal/process"
)

// Ecosystem is "nuget" or "npm".
type Ecosystem string

const (
	NuGet Ecosystem = "nuget"
	Npm   Ecosystem = "npm"
)

// Update is one outdated package.
type Update struct {
	Ecosystem Ecosystem `json:"ecosystem"`
	Name      string    `json:"name"`
	Current   string    `json:"current"`
	Latest    string    `json:"latest"`
	// Dependent is the npm workspace that declares the package. Empty for
	// NuGet and for the workspace root.
	Dependent string `json:"dependent,omitempty"`
}

// IsMajor reports whether the bump crosses a major version.
func (u Update) IsMajor() bool {
	return prereq.Major(u.Current) != prereq.Major(u.Latest)
}

// Filter drops excluded names (exact or trailing-* prefix) and, unless
// includeMajor, major bumps. Skipped updates are returned separately.
func Filter(updates []Update, includeMajor bool, exclude []string) (keep, skipped []Update) {
	for _, u := range updates {
		if excluded(u.Name, exclude) || (u.IsMajor() && !includeMajor) {
			skipped = append(skipped, u)
			continue
		}
		keep = append(keep, u)
	}
	return keep, skipped
}

func excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// dotnet list package --outdated --format json
type dotnetReport struct {
	Projects []struct {
		Path       string `json:"path"`
		Frameworks []struct {
			Framework        string `json:"framework"`
			TopLevelPackages []struct {
				ID              string `json:"id"`
				ResolvedVersion string `json:"resolvedVersion"`
				LatestVersion   string `json:"latestVersion"`
			} `json:"topLevelPackages"`
		} `json:"frameworks"`
	} `json:"projects"`
}

// ParseDotnetOutdated merges the per-project report into one update per
// package.
func ParseDotnetOutdated(data []byte) ([]Update, error) {
	var report dotnetReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse dotnet outdated report: %w", err)
	}
	byName := map[string]Update{}
	for _, p := range report.Projects {
		for _, fw := range p.Frameworks {
			for _, pkg := range fw.TopLevelPackages {
				if pkg.LatestVersion == "" || pkg.LatestVersion == "Not found at the sources" {
					continue
				}
				byName[pkg.ID] = Update{Ecosystem: NuGet, Name: pkg.ID, Current: pkg.ResolvedVersion, Latest: pkg.LatestVersion}
			}
		}
	}
	return sorted(byName), nil
}

// npm outdated --json
type npmEntry struct {
	Current   string `json:"current"`
	Wanted    string `json:"wanted"`
	Latest    string `json:"latest"`
	Dependent string `json:"dependent"`
}

// ParseNpmOutdated reads `npm outdated --json`. Workspaces report a list per
// package, one entry per dependent workspace, and each becomes its own update.
func ParseNpmOutdated(data []byte) ([]Update, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse npm outdated report: %w", err)
	}
	byName := map[string]Update{}
	for name, msg := range raw {
		var entries []npmEntry
		if err := json.Unmarshal(msg, &entries); err != nil {
			var single npmEntry
			if err := json.Unmarshal(msg, &single); err != nil {
				return nil, fmt.Errorf("failed to parse npm outdated entry %s: %w", name, err)
			}
			entries = []npmEntry{single}
		}
		for _, e := range entries {
			if e.Latest == "" || e.Current == e.Latest {
				continue
			}
			current := e.Current
			if current == "" {
				current = e.Wanted
			}
			byName[name+"|"+e.Dependent] = Update{Ecosystem: Npm, Name: name, Current: current, Latest: e.Latest, Dependent: e.Dependent}
		}
	}
	return sorted(byName), nil
}

func sorted(byName map[string]Update) []Update {
	out := make([]Update, 0, len(byName))
	for _, u := range byName {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Dependent < out[j].Dependent
	})
	return out
}

// packageVersionRe matches <PackageVersion Include="X" Version="Y" /> with
// either attribute order.
var packageVersionRe = regexp.MustCompile(`(<PackageVersion\s+[^>]*?Include="([^"]+)"[^>]*?Version=")([^"]+)(")|(<PackageVersion\s+[^>]*?Version=")([^"]+)("[^>]*?Include="([^"]+)")`)

// ReadProps lists Include→Version from Directory.Packages.props content.
func ReadProps(content string) map[string]string {
	out := map[string]string{}
	for _, m := range packageVersionRe.FindAllStringSubmatch(content, -1) {
		if m[2] != "" {
			out[m[2]] = m[3]
		} else {
			out[m[8]] = m[6]
		}
	}
	return out
}

// RewriteProps sets new versions in place, leaving all other text
// untouched. It returns the names it changed.
func RewriteProps(content string, versions map[string]string) (string, []string) {
	var changed []string
	out := packageVersionRe.ReplaceAllStringFunc(content, func(match string) string {
		m := packageVersionRe.FindStringSubmatch(match)
		name, version := m[2], m[3]
		if name == "" {
			name, version = m[8], m[6]
		}
		want, ok := versions[name]
		if !ok || want == version {
			return match
		}
		changed = append(changed, name)
		if m[2] != "" {
			return m[1] + want + m[4]
		}
		return m[5] + want + m[7]
	})
	sort.Strings(changed)
	return out, changed
}

// UpdatePropsFile applies NuGet updates to a Directory.Packages.props file.
func UpdatePropsFile(path string, updates []Update) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- props file inside the workspace
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	versions := map[string]string{}
	for _, u := range updates {
		if u.Ecosystem == NuGet {
			versions[u.Name] = u.Latest
		}
	}
	out, changed := RewriteProps(string(data), versions)
	if len(changed) == 0 {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return changed, nil
}

// DotnetOutdated runs `dotnet list package --outdated --format json`.
func DotnetOutdated(ctx context.Context, r process.Runner, solution string) ([]Update, error) {
	res, err := r.Run(ctx, process.Command{
		Name: "dotnet",
		Args: []string{"list", solution, "package", "--outdated", "--format", "json"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list outdated NuGet packages: %w", err)
	}
	return ParseDotnetOutdated([]byte(res.Stdout))
}

// NpmOutdated runs `npm outdated --json`, which exits 1 when anything is
// outdated.
func NpmOutdated(ctx context.Context, r process.Runner, dir string) ([]Update, error) {
	res, err := r.Run(ctx, process.Command{Name: "npm", Args: []string{"outdated", "--json"}, Dir: dir})
	var exitErr *process.ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.ExitCode == 1) {
		return nil, fmt.Errorf("failed to list outdated npm packages: %w", err)
	}
	return ParseNpmOutdated([]byte(res.Stdout))
}

// NpmInstall installs the given versions as exact pins. Updates are grouped
// by dependent so each lands in the manifest that declares it: the root
// package first, then one `npm install -w <workspace>` per workspace.
func NpmInstall(ctx context.Context, r process.Runner, dir string, updates []Update) error {
	root := rootPackageName(dir)
	byWorkspace := map[string][]string{}
	for _, u := range updates {
		if u.Ecosystem != Npm {
			continue
		}
		ws := u.Dependent
		if ws == root {
			ws = ""
		}
		byWorkspace[ws] = append(byWorkspace[ws], u.Name+"@"+u.Latest)
	}
	names := make([]string, 0, len(byWorkspace))
	for ws := range byWorkspace {
		names = append(names, ws)
	}
	sort.Strings(names)

	for _, ws := range names {
		args := []string{"install", "--save-exact"}
		if ws != "" {
			args = append(args, "-w", ws)
		}
		args = append(args, byWorkspace[ws]...)
		if _, err := r.Run(ctx, process.Command{Name: "npm", Args: args, Dir: dir}); err != nil {
			return err
		}
	}
	return nil
}

// rootPackageName is the "name" of dir/package.json, which npm reports as the
// dependent of root dependencies. Empty when unreadable.
func rootPackageName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json")) // #nosec G304 -- workspace manifest
	if err != nil {
		return ""
	}
	var manifest struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(data, &manifest) != nil {
		return ""
	}
	return manifest.Name
}
