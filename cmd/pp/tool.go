package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/config"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/ui"
)

// runTool echoes the command line and runs it. With --verbose the tool's own
// output is streamed unless the caller filters lines itself.
func runTool(ctx context.Context, r process.Runner, c process.Command) (*process.Result, error) {
	debug.PrintNormal("%s\n", ui.RenderCommand(c.Name, c.Args...))
	if debug.Enabled() && !jsonOutput && c.OnLine == nil {
		if c.Stdout == nil {
			c.Stdout = os.Stdout
		}
		if c.Stderr == nil {
			c.Stderr = os.Stderr
		}
	}
	return r.Run(ctx, c)
}

// printLine writes a line of wrapped tool output in human mode.
func printLine(line string) {
	debug.PrintNormal("%s\n", line)
}

// targets selects the backend and/or frontend half of the codebase.
type targets struct {
	Backend  bool
	Frontend bool
}

// addTargetFlags registers --backend and --frontend.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("backend", false, "Only the .NET backend")
	cmd.Flags().Bool("frontend", false, "Only the frontend")
}

// targetsFromFlags defaults to both halves when neither flag is given.
func targetsFromFlags(cmd *cobra.Command) targets {
	backend, _ := cmd.Flags().GetBool("backend")
	frontend, _ := cmd.Flags().GetBool("frontend")
	if !backend && !frontend {
		return targets{Backend: true, Frontend: true}
	}
	return targets{Backend: backend, Frontend: frontend}
}

// tools lists the prerequisites of the selected halves.
func (t targets) tools() []string {
	var keys []string
	if t.Backend {
		keys = append(keys, "dotnet")
	}
	if t.Frontend {
		keys = append(keys, "node", "npm")
	}
	return keys
}

// applySolutionFlag lets --solution-name override the configured solution.
func applySolutionFlag(cmd *cobra.Command) {
	if name, _ := cmd.Flags().GetString("solution-name"); name != "" {
		mustWorkspace().SolutionName = name
		config.Set("solution-name", name)
	}
	if !ws.HasSolution() {
		FatalErrorWithHint(fmt.Sprintf("solution %s not found", ws.Rel(ws.SolutionPath())),
			"pass --solution-name or set solution-name in .pp/config.yaml")
	}
}

// stepStatus values shared by build, check and the other multi-step commands.
const (
	statusOK      = "ok"
	statusError   = "error"
	statusSkipped = "skipped"
)

// step is one timed unit of work in a report.
type step struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Detail   string        `json:"detail,omitempty"`
}

// timeStep runs fn and records its outcome.
func timeStep(name string, fn func() (string, error)) (step, error) {
	start := time.Now()
	detail, err := fn()
	s := step{Name: name, Status: statusOK, Duration: time.Since(start), Detail: detail}
	if err != nil {
		s.Status = statusError
		if s.Detail == "" {
			s.Detail = err.Error()
		}
	}
	return s, err
}

func renderSteps(steps []step) string {
	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, []string{
			ui.StatusIcon(s.Status) + " " + s.Name,
			s.Status,
			ui.FormatDuration(s.Duration),
			ui.TruncateSimple(s.Detail, 60),
		})
	}
	return ui.RenderTable([]string{"Step", "Status", "Duration", "Detail"}, rows)
}

// tailLines returns the last n non-empty lines of output.
func tailLines(output string, n int) []string {
	var lines []string
	for _, l := range strings.Split(output, "\n") {
		if l = strings.TrimRight(l, "\r "); strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
