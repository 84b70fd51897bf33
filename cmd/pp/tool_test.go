package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetsFromFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		want  targets
		tools []string
	}{
		{"neither means both", nil, targets{Backend: true, Frontend: true}, []string{"dotnet", "node", "npm"}},
		{"backend only", []string{"--backend"}, targets{Backend: true}, []string{"dotnet"}},
		{"frontend only", []string{"--frontend"}, targets{Frontend: true}, []string{"node", "npm"}},
		{"both explicit", []string{"--backend", "--frontend"}, targets{Backend: true, Frontend: true}, []string{"dotnet", "node", "npm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "x"}
			addTargetFlags(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))

			got := targetsFromFlags(cmd)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.tools, got.tools())
		})
	}
}

func TestTailLines(t *testing.T) {
	out := "one\n\ntwo  \r\n   \nthree\nfour\n"
	assert.Equal(t, []string{"three", "four"}, tailLines(out, 2))
	assert.Equal(t, []string{"one", "two", "three", "four"}, tailLines(out, 10))
	assert.Empty(t, tailLines("", 3))
}

func TestTimeStep(t *testing.T) {
	s, err := timeStep("build", func() (string, error) { return "0 errors", nil })
	require.NoError(t, err)
	assert.Equal(t, statusOK, s.Status)
	assert.Equal(t, "0 errors", s.Detail)

	s, err = timeStep("lint", func() (string, error) { return "", errLintIssues })
	assert.ErrorIs(t, err, errLintIssues)
	assert.Equal(t, statusError, s.Status)
	assert.Equal(t, errLintIssues.Error(), s.Detail)
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "pp version "+Version+" ("+Build+")", versionString(""))
	assert.Equal(t, "pp version "+Version+" ("+Build+": 0123456789ab)", versionString("0123456789abcdef"))
}
