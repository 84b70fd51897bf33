package airules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTrigger(t *testing.T) {
	tests := []struct {
		name string
		fm   Frontmatter
		want Trigger
	}{
		{"always apply wins", Frontmatter{AlwaysApply: true, Globs: []string{"*.cs"}, Description: "x"}, TriggerAlwaysOn},
		{"globs", Frontmatter{Globs: []string{"*.cs"}, Description: "x"}, TriggerGlob},
		{"description only", Frontmatter{Description: "x"}, TriggerModelDecision},
		{"nothing", Frontmatter{}, TriggerManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fm.Trigger(); got != tt.want {
				t.Errorf("Trigger() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseRule(t *testing.T) {
	content := "---\r\ndescription: Rules for API endpoints\r\nglobs: *.cs,**/Endpoints/*.cs\r\nalwaysApply: false\r\nowner: backend\r\n---\r\n# API\r\n\r\nBody text.\r\n"
	r, err := ParseRule(filepath.Join("backend", "api.mdc"), []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "backend/api.mdc", r.RelPath)
	assert.Equal(t, "backend/api", r.Name())
	assert.False(t, r.Workflow)
	assert.Equal(t, "Rules for API endpoints", r.Description)
	assert.Equal(t, []string{"*.cs", "**/Endpoints/*.cs"}, r.Globs)
	assert.False(t, r.AlwaysApply)
	assert.Equal(t, []KeyValue{{Key: "owner", Value: "backend"}}, r.Extra)
	assert.Equal(t, "# API\n\nBody text.\n", string(r.Body))
}

func TestParseFrontmatterStructuredValues(t *testing.T) {
	fm, err := ParseFrontmatter([]string{
		`description: "Quoted: with colon"`,
		`globs: ["*.ts", "*.tsx"]`,
		`alwaysApply: 'true'`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Quoted: with colon", fm.Description)
	assert.Equal(t, []string{"*.ts", "*.tsx"}, fm.Globs)
	assert.True(t, fm.AlwaysApply)

	_, err = ParseFrontmatter([]string{"no separator here"})
	assert.ErrorContains(t, err, "line 2")
}

func TestSplitFrontmatter(t *testing.T) {
	block, body, err := SplitFrontmatter([]byte("no frontmatter\n"))
	require.NoError(t, err)
	assert.Nil(t, block)
	assert.Equal(t, "no frontmatter\n", string(body))

	block, body, err = SplitFrontmatter([]byte("---\ndescription: x\n---"))
	require.NoError(t, err)
	assert.Equal(t, []string{"description: x"}, block)
	assert.Empty(t, body)

	_, _, err = SplitFrontmatter([]byte("---\ndescription: x\n"))
	assert.ErrorContains(t, err, "not closed")
}

// frontmatterOf decodes the emitted header back into a map.
func frontmatterOf(t *testing.T, content []byte) (map[string]any, string) {
	t.Helper()
	block, body, err := SplitFrontmatter(content)
	require.NoError(t, err)
	m := map[string]any{}
	require.NoError(t, yaml.Unmarshal([]byte(strings.Join(block, "\n")), &m))
	return m, string(body)
}

func TestConvertWindsurf(t *testing.T) {
	conv := NewConverter(".cursor/rules", BuiltinTargets["windsurf"])

	r, err := ParseRule("backend/api.mdc", []byte("---\ndescription: API rules\nglobs: *.cs\nalwaysApply: false\n---\nSee [tests](.cursor/rules/backend/tests.mdc) and /.cursor/rules/workflows/review.mdc.\n"))
	require.NoError(t, err)

	out, content, ok, err := conv.Convert(r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ".windsurf/rules/backend/api.md", out)

	fm, body := frontmatterOf(t, content)
	assert.Equal(t, map[string]any{"trigger": "glob", "description": "API rules", "globs": "*.cs"}, fm)
	assert.Equal(t, "See [tests](.windsurf/rules/backend/tests.md) and /.windsurf/workflows/review.md.\n", body)
	assert.True(t, strings.HasPrefix(string(content), "---\ntrigger: glob\n"), "keys keep their order")
}

func TestConvertClaude(t *testing.T) {
	conv := NewConverter(".cursor/rules", BuiltinTargets["claude"])

	rule, err := ParseRule("frontend/react.mdc", []byte("---\ndescription: React rules\nglobs: *.tsx,**/*.ts\n---\nbody\n"))
	require.NoError(t, err)
	out, content, ok, err := conv.Convert(rule)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ".claude/rules/frontend/react.md", out)
	fm, _ := frontmatterOf(t, content)
	assert.Equal(t, map[string]any{"description": "React rules", "paths": []any{"*.tsx", "**/*.ts"}}, fm)

	wf, err := ParseRule("workflows/review/pull-request.mdc", []byte("---\ndescription: Review a PR\nalwaysApply: true\n---\nSteps\n"))
	require.NoError(t, err)
	out, content, ok, err = conv.Convert(wf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ".claude/commands/review/pull-request.md", out)
	fm, body := frontmatterOf(t, content)
	assert.Equal(t, map[string]any{"description": "Review a PR"}, fm)
	assert.Equal(t, "Steps\n", body)
}

func TestConvertManualRuleWithoutFrontmatterFields(t *testing.T) {
	conv := NewConverter(".cursor/rules", BuiltinTargets["claude"])
	r, err := ParseRule("notes.mdc", []byte("just a body\n"))
	require.NoError(t, err)
	_, content, ok, err := conv.Convert(r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "just a body\n", string(content))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func TestSyncIsIdempotentAndRemovesOrphans(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".cursor/rules/main.mdc", "---\nalwaysApply: true\n---\nAlways.\n")
	writeFile(t, root, ".cursor/rules/backend/api.mdc", "---\ndescription: API\nglobs: *.cs\n---\nAPI.\n")
	writeFile(t, root, ".cursor/rules/workflows/commit.mdc", "---\ndescription: Commit changes\n---\nCommit.\n")
	writeFile(t, root, ".windsurf/rules/old.md", "stale")
	writeFile(t, root, ".windsurf/rules/keep.txt", "not ours")

	targets, err := SelectTargets(BuiltinTargets, "")
	require.NoError(t, err)
	require.Len(t, targets, 2)

	s := &Syncer{Root: root, Source: ".cursor/rules", DryRun: true}
	dry, err := s.Sync(targets)
	require.NoError(t, err)
	assert.Len(t, dry.Changes, 7)
	assert.NoFileExists(t, filepath.Join(root, ".claude", "commands", "commit.md"))

	s.DryRun = false
	first, err := s.Sync(targets)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Rules)
	assert.Equal(t, dry.Changes, first.Changes)
	assert.Contains(t, first.Changes, Change{Target: "windsurf", Path: ".windsurf/rules/old.md", Action: ActionRemoved})
	assert.Contains(t, first.Changes, Change{Target: "claude", Path: ".claude/commands/commit.md", Action: ActionCreated})
	assert.FileExists(t, filepath.Join(root, ".windsurf", "workflows", "commit.md"))
	assert.FileExists(t, filepath.Join(root, ".windsurf", "rules", "keep.txt"))
	assert.NoFileExists(t, filepath.Join(root, ".windsurf", "rules", "old.md"))

	second, err := s.Sync(targets)
	require.NoError(t, err)
	assert.Empty(t, second.Changes)
	assert.Equal(t, 6, second.Unchanged)

	writeFile(t, root, ".cursor/rules/main.mdc", "---\nalwaysApply: true\n---\nAlways, edited.\n")
	third, err := s.Sync(targets)
	require.NoError(t, err)
	assert.Equal(t, []Change{
		{Target: "claude", Path: ".claude/rules/main.md", Action: ActionUpdated},
		{Target: "windsurf", Path: ".windsurf/rules/main.md", Action: ActionUpdated},
	}, third.Changes)
}

func TestSyncKeepsSameNamedWorkflowsApart(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".cursor/rules/workflows/backend/review.mdc", "---\ndescription: Review backend\n---\nBackend.\n")
	writeFile(t, root, ".cursor/rules/workflows/frontend/review.mdc", "---\ndescription: Review frontend\n---\nFrontend.\n")

	targets, err := SelectTargets(BuiltinTargets, "claude")
	require.NoError(t, err)
	s := &Syncer{Root: root, Source: ".cursor/rules"}

	first, err := s.Sync(targets)
	require.NoError(t, err)
	assert.Equal(t, []Change{
		{Target: "claude", Path: ".claude/commands/backend/review.md", Action: ActionCreated},
		{Target: "claude", Path: ".claude/commands/frontend/review.md", Action: ActionCreated},
	}, first.Changes)

	second, err := s.Sync(targets)
	require.NoError(t, err)
	assert.Empty(t, second.Changes)
	assert.Equal(t, 2, second.Unchanged)
}

func TestLoadTargetsOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OverridesFile, `
[targets.claude]
disabled = true

[targets.copilot]
name = "Copilot"
rules_dir = ".github/instructions"
extension = ".instructions.md"
rule_fields = ["description"]
`)
	all, err := LoadTargets(dir)
	require.NoError(t, err)

	assert.True(t, all["claude"].Disabled)
	assert.Equal(t, ".claude/rules", all["claude"].RulesDir, "unset keys keep the builtin value")

	copilot := all["copilot"]
	assert.Equal(t, "Copilot", copilot.Name)
	p, ok := copilot.PathFor(Rule{RelPath: "a/b.mdc"})
	assert.True(t, ok)
	assert.Equal(t, ".github/instructions/a/b.instructions.md", p)
	_, ok = copilot.PathFor(Rule{RelPath: "workflows/x.mdc", Workflow: true})
	assert.False(t, ok)

	selected, err := SelectTargets(all, "")
	require.NoError(t, err)
	var keys []string
	for _, s := range selected {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"copilot", "windsurf"}, keys)

	_, err = SelectTargets(all, "vim")
	assert.ErrorContains(t, err, "available: claude, copilot, windsurf")
}

func TestLoadTargetsRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OverridesFile, "[targets.windsurf]\nrulesdir = \"x\"\n")
	_, err := LoadTargets(dir)
	assert.ErrorContains(t, err, "unknown key")
}

func TestFindRule(t *testing.T) {
	rules := []Rule{{RelPath: "backend/api.mdc"}, {RelPath: "workflows/commit.mdc", Workflow: true}}
	r, ok := FindRule(rules, "commit")
	assert.True(t, ok)
	assert.True(t, r.Workflow)
	_, ok = FindRule(rules, "backend/api.mdc")
	assert.True(t, ok)
	_, ok = FindRule(rules, "missing")
	assert.False(t, ok)
}
