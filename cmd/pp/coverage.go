package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/coverage"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/testsummary"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

// coverageDir holds raw results and the HTML report, under .pp/.
const coverageDir = "coverage"

var coverageCmd = &cobra.Command{
	Use:     "coverage",
	GroupID: GroupDevelop,
	Short:   "Run the backend tests with code coverage",
	Long: `Coverage runs 'dotnet test' with the XPlat Code Coverage collector, prints
line and branch coverage from the Cobertura reports, and renders an HTML
report with reportgenerator.`,
	Run: func(cmd *cobra.Command, args []string) {
		applySolutionFlag(cmd)
		requireTools("dotnet")

		report, err := runCoverage(rootCtx, runner, mustWorkspace())
		if jsonOutput {
			outputJSONResult(report, exitCodeOf(err))
			return
		}
		if report != nil {
			printCoverageReport(report)
		}
		if err != nil {
			FatalToolError(err)
		}
	},
}

func init() {
	coverageCmd.Flags().String("solution-name", "", "Solution file under application/ (default from config)")
	rootCmd.AddCommand(coverageCmd)
}

type coverageReport struct {
	Tests   testsummary.Summary `json:"tests"`
	Summary *coverage.Summary   `json:"coverage,omitempty"`
	Lines   float64             `json:"line_percent"`
	Branch  float64             `json:"branch_percent"`
	HTML    string              `json:"html,omitempty"`
}

func runCoverage(ctx context.Context, r process.Runner, w *workspace.Workspace) (*coverageReport, error) {
	results := w.StatePath(coverageDir)
	// Stale results from an earlier run would be summed in.
	if err := os.RemoveAll(results); err != nil {
		return nil, fmt.Errorf("failed to clean %s: %w", results, err)
	}
	if err := os.MkdirAll(results, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", results, err)
	}

	report := &coverageReport{}
	summary, err := runTests(ctx, r, w, testOptions{
		Extra: []string{"--collect", "XPlat Code Coverage", "--results-directory", results},
	})
	report.Tests = summary
	if err != nil {
		return report, err
	}
	if !summary.Success() {
		return report, errors.New("tests failed")
	}

	paths, err := coverage.FindReports(results)
	if err != nil {
		return report, err
	}
	if len(paths) == 0 {
		return report, fmt.Errorf("no %s found under %s", coverage.FileName, w.Rel(results))
	}
	cov, err := coverage.Load(paths)
	if err != nil {
		return report, err
	}
	report.Summary = cov
	report.Lines = cov.LinePercent()
	report.Branch = cov.BranchPercent()

	if err := restoreDotnetTools(ctx, r, w); err != nil {
		return report, err
	}
	htmlDir := filepath.Join(results, "html")
	if _, err := runTool(ctx, r, process.Command{
		Name: "dotnet",
		Args: []string{
			"reportgenerator",
			"-reports:" + strings.Join(paths, ";"),
			"-targetdir:" + htmlDir,
			"-reporttypes:Html",
		},
		Dir: w.ApplicationPath(),
	}); err != nil {
		return report, fmt.Errorf("reportgenerator failed: %w", err)
	}
	report.HTML = filepath.Join(htmlDir, "index.html")
	return report, nil
}

func printCoverageReport(r *coverageReport) {
	printTestSummary(r.Tests)
	if r.Summary == nil {
		return
	}
	rows := make([][]string, 0, len(r.Summary.Packages))
	for _, p := range r.Summary.Packages {
		rows = append(rows, []string{p.Name, percent(p.LineRate * 100), percent(p.BranchRate * 100)})
	}
	debug.PrintlnNormal()
	debug.PrintNormal("%s\n", ui.RenderTable([]string{"Assembly", "Lines", "Branches"}, rows))
	debug.PrintNormal("%s Line coverage: %s  Branch coverage: %s\n",
		ui.RenderInfoIcon(), ui.RenderAccent(percent(r.Lines)), ui.RenderAccent(percent(r.Branch)))
	if r.HTML != "" {
		debug.PrintNormal("%s HTML report: %s\n", ui.RenderInfoIcon(), r.HTML)
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
