package ui

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name          string
		noColor       string
		cliColor      string
		cliColorForce string
		want          bool
	}{
		{name: "NO_COLOR disables color", noColor: "1", want: false},
		{name: "CLICOLOR=0 disables color", cliColor: "0", want: false},
		{name: "CLICOLOR_FORCE enables color without a TTY", cliColorForce: "1", want: true},
		{name: "NO_COLOR wins over CLICOLOR_FORCE", noColor: "1", cliColorForce: "1", want: false},
		{name: "no TTY under go test", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("CLICOLOR", tt.cliColor)
			t.Setenv("CLICOLOR_FORCE", tt.cliColorForce)
			assert.Equal(t, tt.want, ShouldUseColor())
		})
	}
}

func TestIsAgentMode(t *testing.T) {
	t.Setenv("PP_AGENT_MODE", "")
	t.Setenv("CLAUDECODE", "")
	t.Setenv("CURSOR_AGENT", "")
	assert.False(t, IsAgentMode())

	t.Setenv("PP_AGENT_MODE", "1")
	assert.True(t, IsAgentMode())

	t.Setenv("PP_AGENT_MODE", "")
	t.Setenv("CLAUDECODE", "1")
	assert.True(t, IsAgentMode())
}

func TestPromptsWithoutTTYReturnDefaults(t *testing.T) {
	ok, err := Confirm("Proceed?", "", true)
	assert.NoError(t, err)
	assert.True(t, ok)

	v, err := Input("Prefix", "", "acme", nil)
	assert.NoError(t, err)
	assert.Equal(t, "acme", v)

	_, err = Input("Prefix", "", "", func(s string) error {
		if s == "" {
			return os.ErrInvalid
		}
		return nil
	})
	assert.ErrorIs(t, err, os.ErrInvalid)
}

func TestTruncateSimple(t *testing.T) {
	assert.Equal(t, "short", TruncateSimple("short", 10))
	assert.Equal(t, "abcd...", TruncateSimple("abcdefghij", 7))
	assert.Equal(t, "...", TruncateSimple("abcdefghij", 2))
	assert.Equal(t, "日本...", TruncateSimple("日本語のテキスト", 5))
}

func TestTruncateLines(t *testing.T) {
	text := "a\nb\nc\nd\ne"
	assert.Equal(t, text, TruncateLines(text, 5))

	got := TruncateLines(text, 2)
	assert.True(t, strings.HasPrefix(got, "a\nb\n"))
	assert.Contains(t, got, "3 more lines")
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "  a\n\n  b", Indent("a\n\nb", "  "))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "850ms", FormatDuration(850*time.Millisecond))
	assert.Equal(t, "12.4s", FormatDuration(12400*time.Millisecond))
	assert.Equal(t, "3m05s", FormatDuration(3*time.Minute+5*time.Second))
}

func TestRenderCommand(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	ApplyColorProfile()
	assert.Equal(t, `$ dotnet test --filter "Name~Login Flow"`, RenderCommand("dotnet", "test", "--filter", "Name~Login Flow"))
}

func TestRenderTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	ApplyColorProfile()
	out := RenderTable([]string{"Step", "Status"}, [][]string{{"build", "ok"}, {"test", "failed"}})
	assert.Contains(t, out, "Step")
	assert.Contains(t, out, "build")
	assert.Contains(t, out, "failed")
}
