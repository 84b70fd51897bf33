package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformplatform/developer-cli/internal/process/processtest"
)

func TestCleanDatabaseResourcesIgnoresMissing(t *testing.T) {
	fake := processtest.NewFake().
		On("docker rm --force sql-server", processtest.Response{Stderr: "Error response from daemon: No such container: sql-server", ExitCode: 1}).
		On("docker volume rm sql-server-data", processtest.Response{Stderr: "Error response from daemon: get sql-server-data: no such volume", ExitCode: 1})

	require.NoError(t, cleanDatabaseResources(context.Background(), fake))
	assert.Equal(t, []string{
		"docker rm --force sql-server",
		"docker rm --force azure-storage",
		"docker volume rm sql-server-data",
		"docker volume rm azure-storage-data",
	}, fake.Calls())
}

func TestCleanDatabaseResourcesFailsOnOtherErrors(t *testing.T) {
	fake := processtest.NewFake().
		On("docker volume rm", processtest.Response{Stderr: "volume is in use", ExitCode: 1})

	err := cleanDatabaseResources(context.Background(), fake)
	assert.ErrorContains(t, err, "docker volume rm sql-server-data failed")
	assert.False(t, fake.Called("docker volume rm azure-storage-data"))
}

func TestCheckDocker(t *testing.T) {
	fake := processtest.NewFake().On("docker info", processtest.Response{Stdout: "27.3.1\n"})
	require.NoError(t, checkDocker(context.Background(), fake))

	fake = processtest.NewFake().On("docker info", processtest.Response{Stderr: "Cannot connect to the Docker daemon", ExitCode: 1})
	assert.Error(t, checkDocker(context.Background(), fake))
}
