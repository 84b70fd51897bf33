package main

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/process/processtest"
)

const failedBuild = `Account.cs(3,1): error CS0246: The type or namespace name 'Bar' could not be found [/src/Core/Core.csproj]
Account.cs(3,1): error CS0246: The type or namespace name 'Bar' could not be found [/src/Core/Core.csproj::TargetFramework=net9.0]
Users.cs(9,2): warning CS8618: Non-nullable property [/src/Core/Core.csproj]
Build FAILED.
`

func TestBuildTargetsStopsAfterBackendFailure(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().On("dotnet build", processtest.Response{Stdout: failedBuild, ExitCode: 1})

	report, err := buildTargets(context.Background(), fake, w, targets{Backend: true, Frontend: true})
	require.Error(t, err)
	assert.Equal(t, 1, process.ExitCode(err))
	assert.False(t, report.Success())
	require.NotNil(t, report.Backend)
	assert.Equal(t, []string{"Account.cs(3,1): error CS0246: The type or namespace name 'Bar' could not be found"}, report.Backend.Errors)
	assert.Len(t, report.Backend.Warnings, 1)
	assert.Nil(t, report.Frontend)
	assert.False(t, fake.Called("npm"))
}

func TestBuildTargetsBoth(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake()

	report, err := buildTargets(context.Background(), fake, w, targets{Backend: true, Frontend: true})
	require.NoError(t, err)
	assert.True(t, report.Success())
	assert.Equal(t, []string{"dotnet build " + testSolution, "npm run build"}, fake.Calls())

	cmds := fake.Commands()
	assert.Equal(t, w.ApplicationPath(), cmds[0].Dir)
	assert.Equal(t, w.FrontendDir(), cmds[1].Dir)
}

func TestBuildFrontendFailureKeepsTail(t *testing.T) {
	w := newTestWorkspace(t)
	fake := processtest.NewFake().On("npm run build", processtest.Response{
		Stdout:   "vite v6\ntransforming...\n",
		Stderr:   "src/main.tsx:4:1 ERROR: Expected \";\"\n",
		ExitCode: 2,
	})

	report, err := buildTargets(context.Background(), fake, w, targets{Frontend: true})
	require.Error(t, err)
	assert.Equal(t, 2, exitCodeOf(err))
	require.NotNil(t, report.Frontend)
	assert.Contains(t, report.Frontend.Errors, `src/main.tsx:4:1 ERROR: Expected ";"`)
	assert.Nil(t, report.Backend)
}

func TestBuildFrontendWithoutPackageJSON(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, os.Remove(w.ApplicationPath("package.json")))
	fake := processtest.NewFake()

	report, err := buildTargets(context.Background(), fake, w, targets{Frontend: true})
	require.NoError(t, err)
	assert.Nil(t, report.Frontend)
	assert.Empty(t, fake.Calls())
}
