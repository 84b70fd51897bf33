package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/testsummary"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	GroupID: GroupDevelop,
	Short:   "Build the backend solution and the frontend",
	Long: `Build runs 'dotnet build' on the solution and 'npm run build' in the
application folder, then prints the compiler errors and warnings once each.`,
	Run: func(cmd *cobra.Command, args []string) {
		t := targetsFromFlags(cmd)
		if t.Backend {
			applySolutionFlag(cmd)
		}
		requireTools(t.tools()...)

		report, err := buildTargets(rootCtx, runner, mustWorkspace(), t)
		if jsonOutput {
			outputJSONResult(report, exitCodeOf(err))
			return
		}
		printBuildReport(report)
		if err != nil {
			FatalToolError(err)
		}
	},
}

func init() {
	addTargetFlags(buildCmd)
	buildCmd.Flags().String("solution-name", "", "Solution file under application/ (default from config)")
	rootCmd.AddCommand(buildCmd)
}

// buildOutcome is the result of building one half.
type buildOutcome struct {
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration_ns"`
	Errors   []string      `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

type buildReport struct {
	Backend  *buildOutcome `json:"backend,omitempty"`
	Frontend *buildOutcome `json:"frontend,omitempty"`
}

// Success is true when every half that ran compiled.
func (r *buildReport) Success() bool {
	return (r.Backend == nil || r.Backend.Success) && (r.Frontend == nil || r.Frontend.Success)
}

// buildTargets builds the backend first and stops there if it fails.
func buildTargets(ctx context.Context, r process.Runner, w *workspace.Workspace, t targets) (*buildReport, error) {
	report := &buildReport{}
	if t.Backend {
		out, err := buildBackend(ctx, r, w)
		report.Backend = out
		if err != nil {
			return report, err
		}
	}
	if t.Frontend {
		out, err := buildFrontend(ctx, r, w)
		report.Frontend = out
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func buildBackend(ctx context.Context, r process.Runner, w *workspace.Workspace) (*buildOutcome, error) {
	start := time.Now()
	res, err := runTool(ctx, r, process.Command{
		Name: "dotnet",
		Args: []string{"build", w.SolutionName},
		Dir:  w.ApplicationPath(),
	})
	out := &buildOutcome{Success: err == nil, Duration: time.Since(start)}
	if res != nil {
		out.Errors, out.Warnings = testsummary.BuildDiagnostics(res.Combined())
	}
	if err != nil {
		return out, fmt.Errorf("backend build failed: %w", err)
	}
	return out, nil
}

func buildFrontend(ctx context.Context, r process.Runner, w *workspace.Workspace) (*buildOutcome, error) {
	if !w.HasFrontend() {
		return nil, nil
	}
	start := time.Now()
	res, err := runTool(ctx, r, process.Command{
		Name: "npm",
		Args: []string{"run", "build"},
		Dir:  w.FrontendDir(),
	})
	out := &buildOutcome{Success: err == nil, Duration: time.Since(start)}
	if err != nil {
		if res != nil {
			out.Errors = tailLines(res.Combined(), 20)
		}
		return out, fmt.Errorf("frontend build failed: %w", err)
	}
	return out, nil
}

func printBuildReport(r *buildReport) {
	show := func(name string, o *buildOutcome) {
		if o == nil {
			return
		}
		icon := ui.RenderPassIcon()
		if !o.Success {
			icon = ui.RenderFailIcon()
		}
		debug.PrintNormal("%s %s build (%s)\n", icon, name, ui.FormatDuration(o.Duration))
		for _, e := range o.Errors {
			debug.PrintNormal("  %s\n", ui.RenderFail(e))
		}
		if len(o.Warnings) > 0 {
			debug.PrintNormal("  %s\n", ui.RenderWarn(fmt.Sprintf("%d %s", len(o.Warnings), ui.Pluralize(len(o.Warnings), "warning", "warnings"))))
			for _, wn := range o.Warnings {
				debug.PrintNormal("  %s\n", ui.RenderMuted(wn))
			}
		}
	}
	show("Backend", r.Backend)
	show("Frontend", r.Frontend)
}

// exitCodeOf maps a command error to the process exit code.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	return process.ExitCode(err)
}
