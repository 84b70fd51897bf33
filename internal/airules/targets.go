package airules

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Frontmatter keys a target can ask for.
const (
	FieldTrigger     = "trigger"
	FieldDescription = "description"
	FieldGlobs       = "globs"
	FieldPaths       = "paths"
	FieldAlwaysApply = "alwaysApply"
)

// OverridesFile lives in the workspace state directory.
const OverridesFile = "ai-rules.toml"

// Target describes where and how one assistant reads rules.
type Target struct {
	Name           string   `toml:"name"`
	Description    string   `toml:"description"`
	RulesDir       string   `toml:"rules_dir"`       // rules keep their relative path below here
	WorkflowsDir   string   `toml:"workflows_dir"`   // workflows keep their path below workflows/
	Extension      string   `toml:"extension"`       // default ".md"
	RuleFields     []string `toml:"rule_fields"`     // frontmatter keys written for rules, in order
	WorkflowFields []string `toml:"workflow_fields"` // frontmatter keys written for workflows
	Disabled       bool     `toml:"disabled"`
}

// BuiltinTargets are compiled in; .pp/ai-rules.toml can override or add to them.
var BuiltinTargets = map[string]Target{
	"windsurf": {
		Name:           "Windsurf",
		Description:    "Windsurf rules and workflows",
		RulesDir:       ".windsurf/rules",
		WorkflowsDir:   ".windsurf/workflows",
		Extension:      ".md",
		RuleFields:     []string{FieldTrigger, FieldDescription, FieldGlobs},
		WorkflowFields: []string{FieldDescription},
	},
	"claude": {
		Name:           "Claude",
		Description:    "Claude rules and slash commands",
		RulesDir:       ".claude/rules",
		WorkflowsDir:   ".claude/commands",
		Extension:      ".md",
		RuleFields:     []string{FieldDescription, FieldPaths},
		WorkflowFields: []string{FieldDescription},
	},
}

type overrides struct {
	Targets map[string]Target `toml:"targets"`
}

// LoadTargets merges .pp/ai-rules.toml over the builtin targets. Keys set in
// the file replace the builtin value; unset keys keep it.
func LoadTargets(stateDir string) (map[string]Target, error) {
	result := make(map[string]Target, len(BuiltinTargets))
	for name, t := range BuiltinTargets {
		result[name] = t
	}

	p := filepath.Join(stateDir, OverridesFile)
	data, err := os.ReadFile(p) // #nosec G304 -- path is under the workspace state dir
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", OverridesFile, err)
	}

	var o overrides
	md, err := toml.Decode(string(data), &o)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", OverridesFile, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse %s: unknown key %s", OverridesFile, undecoded[0])
	}

	for name, user := range o.Targets {
		base, builtin := result[name]
		if !builtin {
			base = Target{Name: name, Extension: ".md"}
		}
		mergeTarget(&base, user, md, name)
		if base.RulesDir == "" && base.WorkflowsDir == "" {
			return nil, fmt.Errorf("%s: target %q needs rules_dir or workflows_dir", OverridesFile, name)
		}
		result[name] = base
	}
	return result, nil
}

func mergeTarget(base *Target, user Target, md toml.MetaData, name string) {
	set := func(key string) bool { return md.IsDefined("targets", name, key) }
	if set("name") {
		base.Name = user.Name
	}
	if set("description") {
		base.Description = user.Description
	}
	if set("rules_dir") {
		base.RulesDir = user.RulesDir
	}
	if set("workflows_dir") {
		base.WorkflowsDir = user.WorkflowsDir
	}
	if set("extension") {
		base.Extension = user.Extension
	}
	if set("rule_fields") {
		base.RuleFields = user.RuleFields
	}
	if set("workflow_fields") {
		base.WorkflowFields = user.WorkflowFields
	}
	if set("disabled") {
		base.Disabled = user.Disabled
	}
}

// SelectTargets returns the enabled targets sorted by key, or just the named
// one.
func SelectTargets(all map[string]Target, name string) ([]NamedTarget, error) {
	if name != "" {
		name = strings.ToLower(name)
		t, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("unknown ai-rules target %q (available: %s)", name, strings.Join(targetKeys(all), ", "))
		}
		return []NamedTarget{{Key: name, Target: t}}, nil
	}
	var out []NamedTarget
	for _, key := range targetKeys(all) {
		if !all[key].Disabled {
			out = append(out, NamedTarget{Key: key, Target: all[key]})
		}
	}
	return out, nil
}

// NamedTarget pairs a target with its config key.
type NamedTarget struct {
	Key string
	Target
}

func targetKeys(all map[string]Target) []string {
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t Target) ext() string {
	if t.Extension == "" {
		return ".md"
	}
	return t.Extension
}

// PathFor maps a rule to its slash-separated output path relative to the
// workspace root. ok is false when the target has no place for that kind.
func (t Target) PathFor(r Rule) (p string, ok bool) {
	if r.Workflow {
		if t.WorkflowsDir == "" {
			return "", false
		}
		return path.Join(t.WorkflowsDir, strings.TrimPrefix(r.Name(), WorkflowsDir+"/")+t.ext()), true
	}
	if t.RulesDir == "" {
		return "", false
	}
	return path.Join(t.RulesDir, r.Name()+t.ext()), true
}

// ManagedDirs are the directories sync owns for this target.
func (t Target) ManagedDirs() []string {
	var dirs []string
	for _, d := range []string{t.RulesDir, t.WorkflowsDir} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}
