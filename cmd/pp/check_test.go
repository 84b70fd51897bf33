package main

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/process/processtest"
)

const inspectSarif = `{
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {"name": "InspectCode", "rules": [
      {"id": "UnusedVariable", "shortDescription": {"text": "Unused local variable"}},
      {"id": "RedundantUsingDirective", "shortDescription": {"text": "Redundant using directive"}}
    ]}},
    "results": [
      {"ruleId": "RedundantUsingDirective", "level": "note", "message": {"text": "Using directive is not required"},
       "locations": [{"physicalLocation": {"artifactLocation": {"uri": "Api/Program.cs"}, "region": {"startLine": 1}}}]},
      {"ruleId": "RedundantUsingDirective", "level": "note", "message": {"text": "Using directive is not required"},
       "locations": [{"physicalLocation": {"artifactLocation": {"uri": "Api/Startup.cs"}, "region": {"startLine": 2}}}]},
      {"ruleId": "UnusedVariable", "level": "warning", "message": {"text": "Local variable 'x' is never used"},
       "locations": [{"physicalLocation": {"artifactLocation": {"uri": "Core/Users.cs"}, "region": {"startLine": 40}}}]}
    ]
  }]
}`

// writeInspectReport emulates inspectcode writing its --output file.
func writeInspectReport(t *testing.T, content string) func(process.Command) {
	return func(c process.Command) {
		for _, a := range c.Args {
			if path, ok := strings.CutPrefix(a, "--output="); ok {
				require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			}
		}
	}
}

func TestFormatCodeReportsChangedFiles(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().
		On("git status", processtest.Response{Stdout: " M application/account-management/Core/Users.cs\n M README.md\n"}).
		Once("git status", processtest.Response{Stdout: " M README.md\n"})

	rep, err := formatCode(context.Background(), fake, w, targets{Backend: true, Frontend: true}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"application/account-management/Core/Users.cs"}, rep.Changed)
	assert.True(t, fake.Called("dotnet tool restore"))
	assert.True(t, fake.Called("dotnet jb cleanupcode "+testSolution))
	assert.True(t, fake.Called("npm run format"))
	assert.False(t, fake.Called("dotnet build"), "--no-build skips the solution build")
}

func TestFormatCodeBuildsUnlessNoBuild(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().On("dotnet build", processtest.Response{Stdout: failedBuild, ExitCode: 1})

	_, err := formatCode(context.Background(), fake, w, targets{Backend: true}, false)
	require.Error(t, err)
	assert.False(t, fake.Called("dotnet jb cleanupcode"))
}

func TestLintCodeGroupsInspectionResults(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().
		On("dotnet jb inspectcode", processtest.Response{Hook: writeInspectReport(t, inspectSarif)})

	rep, err := lintCode(context.Background(), fake, w, targets{Backend: true, Frontend: true}, true)
	assert.ErrorIs(t, err, errLintIssues)
	assert.Equal(t, 3, rep.Issues)
	require.Len(t, rep.Backend, 2)
	assert.Equal(t, map[string]int{"note": 2, "warning": 1}, rep.BackendLevel)
	assert.True(t, fake.Called("npm run lint"))
	assert.FileExists(t, w.StatePath(inspectReport))
}

func TestLintCodeClean(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().
		On("dotnet jb inspectcode", processtest.Response{Hook: writeInspectReport(t, `{"version":"2.1.0","runs":[{"results":[]}]}`)})

	rep, err := lintCode(context.Background(), fake, w, targets{Backend: true}, true)
	require.NoError(t, err)
	assert.Zero(t, rep.Issues)
}

func TestLintCodeFrontendFailureCountsAsIssue(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().On("npm run lint", processtest.Response{Stdout: "src/a.ts: noUnusedVariables\n", ExitCode: 1})

	rep, err := lintCode(context.Background(), fake, w, targets{Frontend: true}, true)
	require.Error(t, err)
	assert.Equal(t, 1, rep.Issues)
	assert.Contains(t, rep.Frontend, "noUnusedVariables")
}

func TestRunCheckSkipsAfterFailure(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().On("dotnet build", processtest.Response{Stdout: failedBuild, ExitCode: 1})

	steps, err := runCheck(context.Background(), fake, w, checkOptions{targets: targets{Backend: true, Frontend: true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build:")
	assert.Equal(t, 1, exitCodeOf(err))

	statuses := make([]string, 0, len(steps))
	for _, s := range steps {
		statuses = append(statuses, s.Name+"="+s.Status)
	}
	assert.Equal(t, []string{"build=error", "test=skipped", "format=skipped", "lint=skipped"}, statuses)
	assert.Equal(t, "1 errors, 1 warnings", steps[0].Detail)
	assert.False(t, fake.Called("dotnet test"))
}

func TestRunCheckFrontendOnly(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake()

	steps, err := runCheck(context.Background(), fake, w, checkOptions{targets: targets{Frontend: true}})
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, statusOK, steps[0].Status)
	assert.Equal(t, statusSkipped, steps[1].Status)
	assert.Equal(t, statusOK, steps[2].Status)
	assert.Equal(t, statusOK, steps[3].Status)
	assert.False(t, fake.Called("dotnet"))
}

func TestRunCheckFailsOnReportedTestFailures(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().On("dotnet test", processtest.Response{Stdout: failingTestRun})

	steps, err := runCheck(context.Background(), fake, w, checkOptions{
		targets:    targets{Backend: true},
		SkipFormat: true,
		SkipLint:   true,
	})
	require.Error(t, err)
	assert.Equal(t, "test: tests failed", err.Error())
	assert.Equal(t, "2 passed, 1 failed, 0 skipped", steps[1].Detail)
	assert.True(t, fake.Called("dotnet test "+testSolution+" --no-build"))
}

func TestRunCheckParallelBuild(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake()

	steps, err := runCheck(context.Background(), fake, w, checkOptions{
		targets:    targets{Backend: true, Frontend: true},
		SkipFormat: true,
		SkipLint:   true,
		Parallel:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, statusOK, steps[0].Status)
	assert.True(t, fake.Called("dotnet build"))
	assert.True(t, fake.Called("npm run build"))
}
