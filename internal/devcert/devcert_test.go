package devcert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/process/processtest"
)

const secrets = "ConnectionStrings:db = Server=localhost\ncertificate-password = s3cret\n"

func newManager(t *testing.T, fake *processtest.Fake, withCert bool) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "https", "localhost.pfx")
	if withCert {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte("pfx"), 0o600))
	}
	return &Manager{Runner: fake, CertPath: path, AppHostDir: "/src/application/AppHost"}
}

func TestParseSecret(t *testing.T) {
	assert.Equal(t, "s3cret", ParseSecret(secrets, SecretKey))
	assert.Equal(t, "Server=localhost", ParseSecret(secrets, "ConnectionStrings:db"))
	assert.Empty(t, ParseSecret("No secrets configured for this application.", SecretKey))
}

func TestCheckHealthy(t *testing.T) {
	fake := processtest.NewFake().On("dotnet user-secrets list", processtest.Response{Stdout: secrets})
	m := newManager(t, fake, true)

	st, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, st.OK())
	assert.Empty(t, st.Problem())
	assert.True(t, fake.Called("openssl pkcs12 -in "+m.CertPath+" -passin pass:s3cret -noout"))
	assert.True(t, fake.Called("dotnet dev-certs https --check --trust"))
}

func TestCheckFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		fake := processtest.NewFake()
		st, err := newManager(t, fake, false).Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "certificate file is missing", st.Problem())
		assert.Empty(t, fake.Calls())
	})
	t.Run("no password", func(t *testing.T) {
		fake := processtest.NewFake().On("dotnet user-secrets list", processtest.Response{Stdout: "No secrets configured"})
		st, err := newManager(t, fake, true).Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "certificate password is not stored in user secrets", st.Problem())
	})
	t.Run("wrong password", func(t *testing.T) {
		fake := processtest.NewFake().
			On("dotnet user-secrets list", processtest.Response{Stdout: secrets}).
			On("openssl pkcs12", processtest.Response{ExitCode: 1, Stderr: "Mac verify error: invalid password?"})
		st, err := newManager(t, fake, true).Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "stored password does not open the certificate", st.Problem())
		assert.False(t, fake.Called("dotnet dev-certs"))
	})
	t.Run("untrusted", func(t *testing.T) {
		fake := processtest.NewFake().
			On("dotnet user-secrets list", processtest.Response{Stdout: secrets}).
			On("dotnet dev-certs https --check", processtest.Response{ExitCode: 7})
		st, err := newManager(t, fake, true).Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "certificate is not trusted", st.Problem())
	})
}

func TestEnsureRecreatesBrokenCertificate(t *testing.T) {
	var password string
	fake := processtest.NewFake()
	m := newManager(t, fake, false)
	fake.On("dotnet dev-certs https --trust -ep", processtest.Response{Hook: func(c process.Command) {
		password = c.Args[len(c.Args)-1]
		_ = os.WriteFile(m.CertPath, []byte("new"), 0o600)
	}})
	fake.On("dotnet user-secrets list", processtest.Response{Stdout: secrets})

	created, st, err := m.Ensure(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, st.Exists)
	assert.Len(t, password, PasswordLength)
	assert.True(t, fake.Called("dotnet dev-certs https --clean"))
	assert.True(t, fake.Called("dotnet user-secrets set certificate-password "+password+" --project /src/application/AppHost"))
}

func TestEnsureHealthyWithoutForceDoesNothing(t *testing.T) {
	fake := processtest.NewFake().On("dotnet user-secrets list", processtest.Response{Stdout: secrets})
	m := newManager(t, fake, true)

	created, _, err := m.Ensure(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.False(t, fake.Called("dotnet dev-certs https --clean"))

	created, _, err = m.Ensure(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCreateRedactsPassword(t *testing.T) {
	fake := processtest.NewFake()
	m := newManager(t, fake, false)
	fake.On("dotnet dev-certs https --trust", processtest.Response{Hook: func(c process.Command) {
		fake.On("dotnet user-secrets set", processtest.Response{ExitCode: 1, Stderr: "could not save " + c.Args[len(c.Args)-1]})
	}})

	err := m.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dotnet user-secrets set failed")
	assert.Contains(t, err.Error(), "***")
	assert.Equal(t, 1, process.ExitCode(err))
	for _, c := range fake.Commands() {
		if c.Args[0] == "dev-certs" && len(c.Args) > 4 {
			assert.False(t, strings.Contains(err.Error(), c.Args[len(c.Args)-1]))
		}
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := GeneratePassword(PasswordLength)
	require.NoError(t, err)
	b, err := GeneratePassword(PasswordLength)
	require.NoError(t, err)
	assert.Len(t, a, PasswordLength)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.Contains(t, passwordAlphabet, string(r))
	}
}
