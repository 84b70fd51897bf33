// Package workspace locates a PlatformPlatform checkout and the pieces of it
// pp operates on: the .NET solution, the AppHost, the self-contained systems
// and their frontends.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when no workspace root can be located.
var ErrNotFound = errors.New("not inside a PlatformPlatform workspace")

// ApplicationDir is the folder holding the solution and all systems.
const ApplicationDir = "application"

// StateDir holds pp's per-workspace state (config, locks, pid files, logs).
const StateDir = ".pp"

// nonSystemDirs are application/ children that are shared code, not SCSs.
var nonSystemDirs = map[string]bool{
	"AppHost":       true,
	"shared-kernel": true,
	"shared-webapp": true,
	"node_modules":  true,
	"dist":          true,
}

// Workspace is a discovered checkout.
type Workspace struct {
	Root         string
	SolutionName string
}

// SelfContainedSystem is a deployable unit under application/.
type SelfContainedSystem struct {
	Name      string
	Dir       string
	HasAPI    bool
	HasWebApp bool
}

// WebAppDir returns the system's frontend package directory.
func (s SelfContainedSystem) WebAppDir() string {
	return filepath.Join(s.Dir, "WebApp")
}

// Open validates that root contains an application/ folder.
func Open(root, solutionName string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if !isDir(filepath.Join(abs, ApplicationDir)) {
		return nil, fmt.Errorf("%w: %s has no %s/ directory", ErrNotFound, abs, ApplicationDir)
	}
	return &Workspace{Root: abs, SolutionName: solutionName}, nil
}

// Discover walks up from start to the first directory that contains
// application/.
func Discover(start, solutionName string) (*Workspace, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", start, err)
	}
	for {
		if isDir(filepath.Join(dir, ApplicationDir)) {
			return &Workspace{Root: dir, SolutionName: solutionName}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w (searched up from %s)", ErrNotFound, start)
		}
		dir = parent
	}
}

// ApplicationPath joins elem under application/.
func (w *Workspace) ApplicationPath(elem ...string) string {
	return filepath.Join(append([]string{w.Root, ApplicationDir}, elem...)...)
}

// SolutionPath is the .slnx/.sln file the backend commands operate on.
func (w *Workspace) SolutionPath() string {
	return w.ApplicationPath(w.SolutionName)
}

// HasSolution reports whether the solution file exists.
func (w *Workspace) HasSolution() bool {
	_, err := os.Stat(w.SolutionPath())
	return err == nil
}

// FrontendDir is the npm workspace root (application/package.json).
func (w *Workspace) FrontendDir() string {
	return w.ApplicationPath()
}

// HasFrontend reports whether application/package.json exists.
func (w *Workspace) HasFrontend() bool {
	_, err := os.Stat(w.ApplicationPath("package.json"))
	return err == nil
}

// AppHostDir returns the Aspire orchestrator project directory.
func (w *Workspace) AppHostDir(project string) string {
	return w.ApplicationPath(project)
}

// StatePath joins elem under .pp/.
func (w *Workspace) StatePath(elem ...string) string {
	return filepath.Join(append([]string{w.Root, StateDir}, elem...)...)
}

// EnsureStateDir creates .pp/ if needed.
func (w *Workspace) EnsureStateDir() error {
	if err := os.MkdirAll(w.StatePath(), 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", w.StatePath(), err)
	}
	return nil
}

// Rel returns path relative to the workspace root, for display.
func (w *Workspace) Rel(path string) string {
	if rel, err := filepath.Rel(w.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

// SelfContainedSystems lists the systems under application/, sorted by name.
func (w *Workspace) SelfContainedSystems() ([]SelfContainedSystem, error) {
	entries, err := os.ReadDir(w.ApplicationPath())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", w.ApplicationPath(), err)
	}
	var systems []SelfContainedSystem
	for _, e := range entries {
		if !e.IsDir() || nonSystemDirs[e.Name()] || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := w.ApplicationPath(e.Name())
		s := SelfContainedSystem{
			Name:      e.Name(),
			Dir:       dir,
			HasAPI:    isDir(filepath.Join(dir, "Api")),
			HasWebApp: isDir(filepath.Join(dir, "WebApp")),
		}
		if s.HasAPI || s.HasWebApp {
			systems = append(systems, s)
		}
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i].Name < systems[j].Name })
	return systems, nil
}

// SelfContainedSystem looks up one system by name.
func (w *Workspace) SelfContainedSystem(name string) (SelfContainedSystem, error) {
	systems, err := w.SelfContainedSystems()
	if err != nil {
		return SelfContainedSystem{}, err
	}
	var names []string
	for _, s := range systems {
		if s.Name == name {
			return s, nil
		}
		names = append(names, s.Name)
	}
	return SelfContainedSystem{}, fmt.Errorf("unknown self-contained system %q (available: %s)", name, strings.Join(names, ", "))
}

// TranslationFiles finds every translations/locale/*.po file below application/,
// skipping node_modules.
func (w *Workspace) TranslationFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.ApplicationPath(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == "dist" || d.Name() == "bin" || d.Name() == "obj" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".po" && filepath.Base(filepath.Dir(path)) == "locale" &&
			filepath.Base(filepath.Dir(filepath.Dir(path))) == "translations" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan translations: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
