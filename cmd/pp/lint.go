package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/sarif"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

// inspectReport is where inspectcode writes its SARIF output, under .pp/.
const inspectReport = "inspectcode.sarif"

// errLintIssues marks a lint run that worked but found issues.
var errLintIssues = errors.New("code inspection found issues")

var lintCmd = &cobra.Command{
	Use:     "lint",
	GroupID: GroupQuality,
	Short:   "Inspect the backend and lint the frontend",
	Long: `Lint runs JetBrains inspectcode on the solution, groups the SARIF results
by rule and severity, and runs 'npm run lint' in the application folder.
Any issue fails the command.`,
	Run: func(cmd *cobra.Command, args []string) {
		t := targetsFromFlags(cmd)
		if t.Backend {
			applySolutionFlag(cmd)
		}
		requireTools(t.tools()...)
		noBuild, _ := cmd.Flags().GetBool("no-build")

		report, err := lintCode(rootCtx, runner, mustWorkspace(), t, noBuild)
		if jsonOutput {
			outputJSONResult(report, exitCodeOf(err))
			return
		}
		printLintReport(report)
		if err != nil {
			FatalToolError(err)
		}
	},
}

func init() {
	addTargetFlags(lintCmd)
	lintCmd.Flags().Bool("no-build", false, "Skip building the solution before inspectcode")
	lintCmd.Flags().String("solution-name", "", "Solution file under application/ (default from config)")
	rootCmd.AddCommand(lintCmd)
}

type lintReport struct {
	Backend      []sarif.RuleGroup `json:"backend,omitempty"`
	BackendLevel map[string]int    `json:"backend_levels,omitempty"`
	Frontend     string            `json:"frontend,omitempty"`
	Issues       int               `json:"issues"`
}

func lintCode(ctx context.Context, r process.Runner, w *workspace.Workspace, t targets, noBuild bool) (*lintReport, error) {
	report := &lintReport{}
	if t.Backend {
		rep, err := inspectBackend(ctx, r, w, noBuild)
		if err != nil {
			return report, err
		}
		report.Backend = rep.Groups()
		report.BackendLevel = rep.CountByLevel()
		report.Issues += len(rep.Issues)
	}
	if t.Frontend && w.HasFrontend() {
		res, err := runTool(ctx, r, process.Command{
			Name: "npm",
			Args: []string{"run", "lint"},
			Dir:  w.FrontendDir(),
		})
		if err != nil {
			if res != nil {
				report.Frontend = res.Combined()
			}
			report.Issues++
			return report, fmt.Errorf("frontend lint failed: %w", err)
		}
	}
	if report.Issues > 0 {
		return report, errLintIssues
	}
	return report, nil
}

func inspectBackend(ctx context.Context, r process.Runner, w *workspace.Workspace, noBuild bool) (*sarif.Report, error) {
	if err := w.EnsureStateDir(); err != nil {
		return nil, err
	}
	if err := restoreDotnetTools(ctx, r, w); err != nil {
		return nil, err
	}
	if !noBuild {
		if _, err := buildBackend(ctx, r, w); err != nil {
			return nil, err
		}
	}
	out := w.StatePath(inspectReport)
	if _, err := runTool(ctx, r, process.Command{
		Name: "dotnet",
		Args: []string{"jb", "inspectcode", w.SolutionName, "--no-build", "--format=Sarif", "--output=" + out, "--severity=SUGGESTION"},
		Dir:  w.ApplicationPath(),
	}); err != nil {
		return nil, fmt.Errorf("backend inspection failed: %w", err)
	}
	return sarif.ParseFile(out)
}

func printLintReport(r *lintReport) {
	if len(r.Backend) > 0 {
		rows := make([][]string, 0, len(r.Backend))
		for _, g := range r.Backend {
			rows = append(rows, []string{
				ui.StatusIcon(levelStatus(g.Level)) + " " + g.Level,
				g.RuleID,
				strconv.Itoa(len(g.Issues)),
				ui.TruncateSimple(g.Description, 50),
			})
		}
		debug.PrintNormal("%s\n", ui.RenderTable([]string{"Severity", "Rule", "Count", "Description"}, rows))
		for _, g := range r.Backend {
			debug.PrintNormal("%s\n", ui.RenderCategory(g.RuleID))
			for i, issue := range g.Issues {
				if i == 5 {
					debug.PrintNormal("  %s\n", ui.RenderMuted(fmt.Sprintf("... %d more", len(g.Issues)-i)))
					break
				}
				debug.PrintNormal("  %s %s\n", issue.Location(), ui.RenderMuted(issue.Message))
			}
		}
	}
	if r.Frontend != "" {
		debug.PrintNormal("%s\n", ui.RenderCategory("Frontend lint"))
		debug.PrintNormal("%s\n", ui.TruncateLines(r.Frontend, 40))
	}
	if r.Issues == 0 {
		debug.PrintNormal("%s No issues found\n", ui.RenderPassIcon())
	}
}

func levelStatus(level string) string {
	switch level {
	case "error":
		return statusError
	case "warning":
		return "warning"
	}
	return statusSkipped
}
