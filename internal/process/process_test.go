package process_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/process/processtest"
)

func TestOutputTrimsStdout(t *testing.T) {
	fake := processtest.NewFake().On("git rev-parse --show-toplevel", processtest.Response{Stdout: "/src/pp\n"})

	out, err := process.Output(context.Background(), fake, "", "git", "rev-parse", "--show-toplevel")
	require.NoError(t, err)
	assert.Equal(t, "/src/pp", out)
}

func TestFakeMatchesMostRecentRule(t *testing.T) {
	fake := processtest.NewFake().
		On("dotnet", processtest.Response{Stdout: "generic"}).
		On("dotnet build", processtest.Response{Stdout: "build"})

	res, err := fake.Run(context.Background(), process.Command{Name: "dotnet", Args: []string{"build"}})
	require.NoError(t, err)
	assert.Equal(t, "build", res.Stdout)

	res, err = fake.Run(context.Background(), process.Command{Name: "dotnet", Args: []string{"test"}})
	require.NoError(t, err)
	assert.Equal(t, "generic", res.Stdout)
	assert.Equal(t, []string{"dotnet build", "dotnet test"}, fake.Calls())
}

func TestFakeOnceThenFallback(t *testing.T) {
	fake := processtest.NewFake().
		On("docker info", processtest.Response{}).
		Once("docker info", processtest.Response{ExitCode: 1, Stderr: "Cannot connect to the Docker daemon"})

	_, err := fake.Run(context.Background(), process.Command{Name: "docker", Args: []string{"info"}})
	assert.Equal(t, 1, process.ExitCode(err))
	_, err = fake.Run(context.Background(), process.Command{Name: "docker", Args: []string{"info"}})
	assert.NoError(t, err)
}

func TestFakeReplaysLinesAndWriters(t *testing.T) {
	fake := processtest.NewFake().On("npm run build", processtest.Response{Stdout: "a\nb\n", Stderr: "warn\n"})
	var out, errOut bytes.Buffer
	var lines []string

	_, err := fake.Run(context.Background(), process.Command{
		Name: "npm", Args: []string{"run", "build"},
		Stdout: &out, Stderr: &errOut,
		OnLine: func(l string) { lines = append(lines, l) },
	})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out.String())
	assert.Equal(t, "warn\n", errOut.String())
	assert.Equal(t, []string{"a", "b", "warn"}, lines)
}

func TestFakeMissingAndStrict(t *testing.T) {
	fake := processtest.NewFake().Missing("ollama")
	_, err := fake.LookPath("ollama")
	assert.True(t, errors.Is(err, process.ErrNotFound))

	fake.Strict = true
	_, err = fake.Run(context.Background(), process.Command{Name: "gh"})
	assert.Error(t, err)
}

func TestResultCombined(t *testing.T) {
	assert.Equal(t, "out\nerr", (&process.Result{Stdout: "out", Stderr: "err"}).Combined())
	assert.Equal(t, "err", (&process.Result{Stderr: "err"}).Combined())
	assert.True(t, (&process.Result{}).Success())
	assert.Equal(t, 1, process.ExitCode(errors.New("boom")))
}
