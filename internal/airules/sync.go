package airules

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Action is what sync did (or would do) to a file.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionRemoved Action = "removed"
)

// Change is one file touched by sync.
type Change struct {
	Target string `json:"target"`
	Path   string `json:"path"`
	Action Action `json:"action"`
}

// Report summarizes a sync run.
type Report struct {
	Rules     int      `json:"rules"`
	Changes   []Change `json:"changes"`
	Unchanged int      `json:"unchanged"`
	DryRun    bool     `json:"dry_run"`
}

// Syncer writes converted rules into a workspace.
type Syncer struct {
	Root   string // workspace root
	Source string // slash-separated, relative to Root
	DryRun bool
}

// Sync converts every source rule for each target. Files are written only
// when their content differs and generated files without a source are
// removed, so a second run reports no changes.
func (s *Syncer) Sync(targets []NamedTarget) (*Report, error) {
	rules, err := LoadRules(filepath.Join(s.Root, filepath.FromSlash(s.Source)))
	if err != nil {
		return nil, err
	}
	report := &Report{Rules: len(rules), DryRun: s.DryRun}

	for _, t := range targets {
		conv := NewConverter(s.Source, t.Target)
		want := make(map[string]bool)

		for _, r := range rules {
			rel, content, ok, err := conv.Convert(r)
			if err != nil {
				return report, err
			}
			if !ok {
				continue
			}
			want[rel] = true
			action, err := s.write(rel, content)
			if err != nil {
				return report, err
			}
			if action == "" {
				report.Unchanged++
				continue
			}
			report.Changes = append(report.Changes, Change{Target: t.Key, Path: rel, Action: action})
		}

		orphans, err := s.orphans(t.Target, want)
		if err != nil {
			return report, err
		}
		for _, rel := range orphans {
			if !s.DryRun {
				if err := os.Remove(s.abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return report, fmt.Errorf("failed to remove %s: %w", rel, err)
				}
			}
			report.Changes = append(report.Changes, Change{Target: t.Key, Path: rel, Action: ActionRemoved})
		}
	}
	return report, nil
}

func (s *Syncer) abs(rel string) string {
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

// write returns "" when the file already has content.
func (s *Syncer) write(rel string, content []byte) (Action, error) {
	p := s.abs(rel)
	existing, err := os.ReadFile(p) // #nosec G304 -- generated file inside the workspace
	action := ActionUpdated
	switch {
	case errors.Is(err, fs.ErrNotExist):
		action = ActionCreated
	case err != nil:
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	case bytes.Equal(existing, content):
		return "", nil
	}
	if s.DryRun {
		return action, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil { // #nosec G306 -- committed source files
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return action, nil
}

// orphans lists files with the target's extension in its managed
// directories that no source rule produced.
func (s *Syncer) orphans(t Target, want map[string]bool) ([]string, error) {
	var out []string
	for _, dir := range t.ManagedDirs() {
		root := s.abs(dir)
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() || filepath.Ext(p) != t.ext() {
				return nil
			}
			rel, err := filepath.Rel(s.Root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if !want[rel] {
				out = append(out, rel)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
	}
	sort.Strings(out)
	return out, nil
}
