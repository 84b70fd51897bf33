// Package prereq checks that the toolchains pp shells out to are installed
// and recent enough.
package prereq

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/platformplatform/developer-cli/internal/process"
)

// Tool describes how to find and version one executable.
type Tool struct {
	Name    string
	Command string
	Args    []string
	// Pattern's first group is the version.
	Pattern *regexp.Regexp
	Min     string
	Hint    string
}

var versionRe = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// Tools is every prerequisite pp knows about.
var Tools = map[string]Tool{
	"dotnet": {
		Name: ".NET SDK", Command: "dotnet", Args: []string{"--version"},
		Pattern: versionRe, Min: "9.0.0",
		Hint: "install the .NET SDK from https://dotnet.microsoft.com/download",
	},
	"node": {
		Name: "Node.js", Command: "node", Args: []string{"--version"},
		Pattern: versionRe, Min: "22.0.0",
		Hint: "install Node.js from https://nodejs.org",
	},
	"npm": {
		Name: "npm", Command: "npm", Args: []string{"--version"},
		Pattern: versionRe, Min: "10.0.0",
		Hint: "npm ships with Node.js",
	},
	"docker": {
		Name: "Docker", Command: "docker", Args: []string{"--version"},
		Pattern: regexp.MustCompile(`version (\d+\.\d+(?:\.\d+)?)`), Min: "24.0.0",
		Hint: "install Docker Desktop from https://www.docker.com/products/docker-desktop",
	},
	"git": {
		Name: "Git", Command: "git", Args: []string{"--version"},
		Pattern: regexp.MustCompile(`git version (\d+\.\d+(?:\.\d+)?)`), Min: "2.30.0",
		Hint: "install Git from https://git-scm.com",
	},
	"gh": {
		Name: "GitHub CLI", Command: "gh", Args: []string{"--version"},
		Pattern: regexp.MustCompile(`gh version (\d+\.\d+(?:\.\d+)?)`), Min: "2.0.0",
		Hint: "install the GitHub CLI from https://cli.github.com",
	},
	"az": {
		Name: "Azure CLI", Command: "az", Args: []string{"--version"},
		Pattern: regexp.MustCompile(`azure-cli\s+(\d+\.\d+(?:\.\d+)?)`), Min: "2.50.0",
		Hint: "install the Azure CLI from https://learn.microsoft.com/cli/azure/install-azure-cli",
	},
	"openssl": {
		Name: "OpenSSL", Command: "openssl", Args: []string{"version"},
		Pattern: regexp.MustCompile(`(?:OpenSSL|LibreSSL) (\d+\.\d+(?:\.\d+)?)`), Min: "1.1.0",
		Hint: "install OpenSSL with your package manager",
	},
	"ollama": {
		Name: "Ollama", Command: "ollama", Args: []string{"--version"},
		Pattern: versionRe, Min: "0.1.0",
		Hint: "install Ollama from https://ollama.com/download",
	},
	"lsof": {
		Name: "lsof", Command: "lsof", Args: []string{"-v"},
		Pattern: regexp.MustCompile(`revision:\s+(\d+\.\d+(?:\.\d+)?)`), Min: "4.0.0",
		Hint: "install lsof with your package manager",
	},
}

// DoctorTools is the set `pp doctor` reports on, in display order.
var DoctorTools = []string{"dotnet", "node", "npm", "docker", "git", "gh", "az", "openssl", "ollama"}

// Status is the result of checking one tool.
type Status struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Found   bool   `json:"found"`
	Version string `json:"version,omitempty"`
	Min     string `json:"min_version"`
	OK      bool   `json:"ok"`
	Problem string `json:"problem,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Checker runs version commands through a process.Runner.
type Checker struct {
	Runner process.Runner
	Tools  map[string]Tool
}

// NewChecker uses the builtin tool table.
func NewChecker(r process.Runner) *Checker {
	return &Checker{Runner: r, Tools: Tools}
}

// Check inspects one tool by key.
func (c *Checker) Check(ctx context.Context, key string) Status {
	tool, ok := c.Tools[key]
	if !ok {
		return Status{Key: key, Name: key, Problem: "unknown tool"}
	}
	st := Status{Key: key, Name: tool.Name, Min: tool.Min, Hint: tool.Hint}

	if _, err := c.Runner.LookPath(tool.Command); err != nil {
		st.Problem = "not installed"
		return st
	}
	st.Found = true

	res, err := c.Runner.Run(ctx, process.Command{Name: tool.Command, Args: tool.Args})
	if err != nil && res == nil {
		st.Problem = err.Error()
		return st
	}
	m := tool.Pattern.FindStringSubmatch(res.Combined())
	if m == nil {
		st.Problem = "could not determine version"
		return st
	}
	st.Version = m[1]
	if Compare(st.Version, tool.Min) < 0 {
		st.Problem = fmt.Sprintf("version %s is older than %s", st.Version, tool.Min)
		return st
	}
	st.OK = true
	st.Hint = ""
	return st
}

// CheckAll checks keys in order.
func (c *Checker) CheckAll(ctx context.Context, keys ...string) []Status {
	out := make([]Status, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.Check(ctx, k))
	}
	return out
}

// MissingError lists failed prerequisites.
type MissingError struct {
	Failed []Status
}

func (e *MissingError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, s := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Name, s.Problem))
	}
	return "missing prerequisites: " + strings.Join(parts, ", ")
}

// Hints joins the install hints of the failed tools.
func (e *MissingError) Hints() string {
	var hints []string
	for _, s := range e.Failed {
		if s.Hint != "" {
			hints = append(hints, s.Hint)
		}
	}
	sort.Strings(hints)
	return strings.Join(hints, "\n")
}

// Require returns a *MissingError if any tool fails its check.
func (c *Checker) Require(ctx context.Context, keys ...string) error {
	var failed []Status
	for _, s := range c.CheckAll(ctx, keys...) {
		if !s.OK {
			failed = append(failed, s)
		}
	}
	if len(failed) > 0 {
		return &MissingError{Failed: failed}
	}
	return nil
}

// Compare orders dotted versions; a leading "v" is optional. Unparseable
// versions sort first.
func Compare(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// Major returns the major version, e.g. "v9".
func Major(v string) string {
	return semver.Major(canonical(v))
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	// semver wants at most three numeric parts
	core, rest, hasRest := strings.Cut(v, "-")
	parts := strings.Split(core, ".")
	if len(parts) > 3 {
		core = strings.Join(parts[:3], ".")
	}
	if hasRest {
		return core + "-" + rest
	}
	return core
}
