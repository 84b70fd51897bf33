package airules

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// SourceExt is the extension of source rule files.
const SourceExt = ".mdc"

// WorkflowsDir is the subdirectory of the source dir holding workflows.
const WorkflowsDir = "workflows"

// Rule is one parsed source file.
type Rule struct {
	// RelPath is slash-separated and relative to the source directory.
	RelPath  string
	Workflow bool
	Frontmatter
	Body []byte
}

// Name is RelPath without the extension.
func (r Rule) Name() string {
	return strings.TrimSuffix(r.RelPath, SourceExt)
}

// ParseRule parses one source file's content.
func ParseRule(relPath string, content []byte) (Rule, error) {
	block, body, err := SplitFrontmatter(content)
	if err != nil {
		return Rule{}, fmt.Errorf("%s: %w", relPath, err)
	}
	fm, err := ParseFrontmatter(block)
	if err != nil {
		return Rule{}, fmt.Errorf("%s: %w", relPath, err)
	}
	relPath = filepath.ToSlash(relPath)
	return Rule{
		RelPath:     relPath,
		Workflow:    strings.HasPrefix(relPath, WorkflowsDir+"/"),
		Frontmatter: fm,
		Body:        body,
	}, nil
}

// LoadRules reads every .mdc file below dir, sorted by path.
func LoadRules(dir string) ([]Rule, error) {
	var rules []Rule
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != SourceExt {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p) // #nosec G304 -- walking the rules source dir
		if err != nil {
			return err
		}
		rule, err := ParseRule(rel, content)
		if err != nil {
			return err
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %s: %w", dir, err)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].RelPath < rules[j].RelPath })
	return rules, nil
}

// FindRule matches a name against RelPath, Name or the base name.
func FindRule(rules []Rule, name string) (Rule, bool) {
	name = strings.TrimSuffix(filepath.ToSlash(name), SourceExt)
	for _, r := range rules {
		if r.Name() == name {
			return r, true
		}
	}
	for _, r := range rules {
		if path.Base(r.Name()) == name {
			return r, true
		}
	}
	return Rule{}, false
}
