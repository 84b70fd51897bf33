package ui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// PagerOptions controls pager behavior
type PagerOptions struct {
	// NoPager disables pager for this command (--no-pager flag)
	NoPager bool
}

func shouldUsePager(opts PagerOptions) bool {
	if opts.NoPager || os.Getenv("PP_NO_PAGER") != "" || IsAgentMode() {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// pagerCommand checks PP_PAGER, then PAGER, defaults to "less".
func pagerCommand() string {
	if pager := os.Getenv("PP_PAGER"); pager != "" {
		return pager
	}
	if pager := os.Getenv("PAGER"); pager != "" {
		return pager
	}
	return "less"
}

// ToPager pipes content to a pager when stdout is a terminal and the content
// does not fit on one screen. Otherwise it prints directly.
func ToPager(content string, opts PagerOptions) error {
	if !shouldUsePager(opts) {
		fmt.Print(content)
		return nil
	}

	if _, height, err := term.GetSize(int(os.Stdout.Fd())); err == nil && height > 0 {
		if strings.Count(content, "\n")+1 <= height-1 {
			fmt.Print(content)
			return nil
		}
	}

	parts := strings.Fields(pagerCommand())
	if len(parts) == 0 {
		fmt.Print(content)
		return nil
	}

	cmd := exec.Command(parts[0], parts[1:]...) // #nosec G204 - pager command is user-configurable
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// -R: ANSI colors, -F: quit if one screen, -X: keep screen on exit
	cmd.Env = os.Environ()
	if os.Getenv("LESS") == "" {
		cmd.Env = append(cmd.Env, "LESS=-RFX")
	}
	return cmd.Run()
}
