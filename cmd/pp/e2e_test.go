package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformplatform/developer-cli/internal/process/processtest"
)

func TestE2EGrep(t *testing.T) {
	tests := []struct {
		name  string
		terms []string
		smoke bool
		want  string
	}{
		{"nothing", nil, false, ""},
		{"one term", []string{"login"}, false, "login"},
		{"terms are alternatives", []string{"login", " signup "}, false, "login|signup"},
		{"metacharacters quoted", []string{"user (admin)"}, false, `user \(admin\)`},
		{"smoke only", nil, true, "@smoke"},
		{"smoke and terms", []string{"login", "signup"}, true, "(?=.*@smoke)(?=.*(login|signup))"},
		{"blank terms ignored", []string{"", "  "}, true, "@smoke"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e2eGrep(tt.terms, tt.smoke))
		})
	}
}

func TestPlaywrightArgs(t *testing.T) {
	assert.Equal(t, []string{"playwright", "test", "--reporter=list"}, playwrightArgs(e2eOptions{Retries: -1}))

	got := playwrightArgs(e2eOptions{
		Terms:             []string{"login"},
		Browser:           "Firefox",
		Smoke:             true,
		Headed:            true,
		Retries:           0,
		Workers:           4,
		StopOnFirstFailed: true,
		RepeatEach:        3,
		OnlyChanged:       true,
		BaseBranch:        "origin/main",
	})
	assert.Equal(t, []string{
		"playwright", "test",
		"--project=firefox",
		"--grep=(?=.*@smoke)(?=.*(login))",
		"--headed",
		"--retries=0",
		"--workers=4",
		"--max-failures=1",
		"--repeat-each=3",
		"--only-changed=origin/main",
		"--reporter=list",
	}, got)

	assert.NotContains(t, playwrightArgs(e2eOptions{Browser: "all", Retries: -1}), "--project=all")
	assert.Contains(t, playwrightArgs(e2eOptions{OnlyChanged: true, Retries: -1}), "--only-changed")
}

func TestE2ESystems(t *testing.T) {
	w := newTestWorkspace(t)

	systems, err := e2eSystems(w, "")
	require.NoError(t, err)
	require.Len(t, systems, 1)
	assert.Equal(t, "account-management", systems[0].Name)

	_, err = e2eSystems(w, "back-office")
	assert.ErrorContains(t, err, "no end-to-end tests")

	_, err = e2eSystems(w, "billing")
	assert.ErrorContains(t, err, "unknown self-contained system")
}

func TestRunE2ESumsSystems(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, os.MkdirAll(filepath.Join(w.ApplicationPath("back-office"), "WebApp", "tests", "e2e"), 0o750))
	systems, err := e2eSystems(w, "")
	require.NoError(t, err)
	require.Len(t, systems, 2)

	fake := processtest.NewFake().
		On("npx playwright test", processtest.Response{Stdout: "Running 3 tests using 1 worker\n  3 passed (2.1s)\n"}).
		Once("npx playwright test", processtest.Response{
			Stdout: "  1) [chromium] › signup.spec.ts:9:3 › signup › rejects bad email\n" +
				"    Error: expect(received).toBeVisible()\n" +
				"  1 failed\n" +
				"  4 passed (5.0s)\n",
			ExitCode: 1,
		})

	total, err := runE2E(context.Background(), fake, systems, e2eOptions{Retries: -1, BaseURL: "https://localhost:9000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account-management")
	assert.Equal(t, 1, e2eExitCode(total, err))
	assert.Equal(t, 7, total.Passed)
	assert.Equal(t, 1, total.Failed)
	require.Len(t, total.FailedTests, 1)
	assert.Equal(t, "chromium", total.FailedTests[0].Browser)

	for _, c := range fake.Commands() {
		assert.Contains(t, c.Env, "BASE_URL=https://localhost:9000")
	}
}

func TestRunE2EStopsOnFirstFailure(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, os.MkdirAll(filepath.Join(w.ApplicationPath("back-office"), "WebApp", "tests", "e2e"), 0o750))
	systems, err := e2eSystems(w, "")
	require.NoError(t, err)

	fake := processtest.NewFake().On("npx playwright test", processtest.Response{Stdout: "  1 failed\n", ExitCode: 1})

	_, err = runE2E(context.Background(), fake, systems, e2eOptions{Retries: -1, StopOnFirstFailed: true})
	require.Error(t, err)
	assert.Len(t, fake.Calls(), 1)
}

func TestChangedSystems(t *testing.T) {
	w := newTestWorkspace(t)
	all, err := w.SelfContainedSystems()
	require.NoError(t, err)

	fake := processtest.NewFake().
		On("git diff --name-only origin/main...HEAD", processtest.Response{Stdout: "application/back-office/Api/Program.cs\nREADME.md\n"}).
		On("git status --porcelain", processtest.Response{Stdout: "?? application/back-office-legacy/x.cs\n"})

	changed, err := changedSystems(context.Background(), fake, w, all, "origin/main")
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "back-office", changed[0].Name)
}
