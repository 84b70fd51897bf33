package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformplatform/developer-cli/internal/process/processtest"
	"github.com/platformplatform/developer-cli/internal/testsummary"
)

const failingTestRun = `  Passed AccountManagement.Tests.Users.CreateUserTests.CreateUser_WhenValid_ShouldCreate [12 ms]
  Failed AccountManagement.Tests.Users.DeleteUserTests.DeleteUser_WhenOwner_ShouldFail [45 ms]
  Error Message:
   Expected response.StatusCode to be 403, but found 204.
  Stack Trace:
     at DeleteUserTests.DeleteUser_WhenOwner_ShouldFail() in /src/DeleteUserTests.cs:line 42

Failed!  - Failed:     1, Passed:     2, Skipped:     0, Total:     3, Duration: 1 s - AccountManagement.Tests.dll (net9.0)
`

func TestDotnetTestArgs(t *testing.T) {
	w := newTestWorkspace(t)
	tests := []struct {
		name string
		opts testOptions
		want []string
	}{
		{"plain", testOptions{}, []string{"test", testSolution}},
		{"no build", testOptions{NoBuild: true}, []string{"test", testSolution, "--no-build"}},
		{"filter and extra", testOptions{Filter: "FullyQualifiedName~Users", Extra: []string{"--collect", "XPlat Code Coverage"}},
			[]string{"test", testSolution, "--filter", "FullyQualifiedName~Users", "--collect", "XPlat Code Coverage"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dotnetTestArgs(w, tt.opts))
		})
	}
}

func TestRunTestsSummarizesFailures(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().On("dotnet test", processtest.Response{Stdout: failingTestRun, ExitCode: 1})

	s, err := runTests(context.Background(), fake, w, testOptions{NoBuild: true})
	require.Error(t, err)
	assert.Equal(t, 1, testExitCode(s, err))
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Failed)
	require.Len(t, s.FailedTests, 1)
	assert.Equal(t, "Expected response.StatusCode to be 403, but found 204.", s.FailedTests[0].Message)
}

func TestTestExitCode(t *testing.T) {
	failed := testsummary.Summary{Total: 2, Passed: 1, Failed: 1}
	passed := testsummary.Summary{Total: 2, Passed: 2}

	assert.Equal(t, 0, testExitCode(passed, nil))
	// failures in the output fail the run even when dotnet exited zero
	assert.Equal(t, 1, testExitCode(failed, nil))
	assert.Equal(t, 1, testExitCode(passed, errors.New("killed")))
}
