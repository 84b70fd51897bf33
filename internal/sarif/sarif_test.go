package sarif

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const report = `{
  "$schema": "https://json.schemastore.org/sarif-2.1.0.json",
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {"name": "InspectCode", "rules": [
      {"id": "UnusedVariable", "shortDescription": {"text": "Unused local variable"}},
      {"id": "RedundantUsingDirective", "shortDescription": {"text": "Redundant using directive"}}
    ]}},
    "results": [
      {"ruleId": "RedundantUsingDirective", "level": "note", "message": {"text": "Using directive is not required"},
       "locations": [{"physicalLocation": {"artifactLocation": {"uri": "Api/Program.cs"}, "region": {"startLine": 1, "startColumn": 1}}}]},
      {"ruleId": "RedundantUsingDirective", "level": "note", "message": {"text": "Using directive is not required"},
       "locations": [{"physicalLocation": {"artifactLocation": {"uri": "Api/Startup.cs"}, "region": {"startLine": 2}}}]},
      {"ruleId": "UnusedVariable", "message": {"text": "Local variable 'x' is never used"},
       "locations": [{"physicalLocation": {"artifactLocation": {"uri": "file://Core/Users.cs"}, "region": {"startLine": 40, "startColumn": 13}}}]}
    ]
  }]
}`

func TestParseAndGroup(t *testing.T) {
	r, err := Parse([]byte(report))
	require.NoError(t, err)
	assert.Equal(t, "InspectCode", r.Tool)
	require.Len(t, r.Issues, 3)

	unused := r.Issues[2]
	assert.Equal(t, "warning", unused.Level, "missing level defaults to warning")
	assert.Equal(t, "Core/Users.cs:40:13", unused.Location())
	assert.Equal(t, "Api/Startup.cs:2", r.Issues[1].Location())

	groups := r.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "UnusedVariable", groups[0].RuleID)
	assert.Equal(t, "Unused local variable", groups[0].Description)
	assert.Equal(t, "RedundantUsingDirective", groups[1].RuleID)
	assert.Len(t, groups[1].Issues, 2)

	assert.Equal(t, map[string]int{"note": 2, "warning": 1}, r.CountByLevel())
}

func TestParseFileEmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.sarif.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"InspectCode"}},"results":[]}]}`), 0o600))
	r, err := ParseFile(path)
	require.NoError(t, err)
	assert.Empty(t, r.Issues)
	assert.Empty(t, r.Groups())

	_, err = Parse([]byte("not json"))
	assert.ErrorContains(t, err, "failed to parse SARIF")
}
