package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/testsummary"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

var testCmd = &cobra.Command{
	Use:     "test",
	GroupID: GroupDevelop,
	Short:   "Run the backend tests and summarize the results",
	Long: `Test runs 'dotnet test' on the solution. Only failures, their error
messages, build errors and the totals are shown unless --verbose-output is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		applySolutionFlag(cmd)
		requireTools("dotnet")

		filter, _ := cmd.Flags().GetString("filter")
		noBuild, _ := cmd.Flags().GetBool("no-build")
		verboseOutput, _ := cmd.Flags().GetBool("verbose-output")

		summary, err := runTests(rootCtx, runner, mustWorkspace(), testOptions{
			Filter:        filter,
			NoBuild:       noBuild,
			VerboseOutput: verboseOutput,
		})
		if jsonOutput {
			outputJSONResult(summary, testExitCode(summary, err))
			return
		}
		printTestSummary(summary)
		if code := testExitCode(summary, err); code != 0 {
			if err != nil && summary.Total == 0 && len(summary.BuildErrors) == 0 {
				FatalToolError(err)
			}
			exit(code)
		}
	},
}

func init() {
	testCmd.Flags().String("filter", "", "Only run tests matching this dotnet test filter expression")
	testCmd.Flags().Bool("no-build", false, "Skip building before testing")
	testCmd.Flags().String("solution-name", "", "Solution file under application/ (default from config)")
	testCmd.Flags().Bool("verbose-output", false, "Show the full test runner output")
	rootCmd.AddCommand(testCmd)
}

type testOptions struct {
	Filter        string
	NoBuild       bool
	VerboseOutput bool
	// Extra arguments appended to dotnet test (coverage collection).
	Extra []string
}

func dotnetTestArgs(w *workspace.Workspace, opts testOptions) []string {
	args := []string{"test", w.SolutionName}
	if opts.NoBuild {
		args = append(args, "--no-build")
	}
	if opts.Filter != "" {
		args = append(args, "--filter", opts.Filter)
	}
	return append(args, opts.Extra...)
}

// runTests streams dotnet test output through the summarizer. The returned
// summary is complete even when the run fails.
func runTests(ctx context.Context, r process.Runner, w *workspace.Workspace, opts testOptions) (testsummary.Summary, error) {
	parser := testsummary.NewDotnet()
	_, err := runTool(ctx, r, process.Command{
		Name: "dotnet",
		Args: dotnetTestArgs(w, opts),
		Dir:  w.ApplicationPath(),
		OnLine: func(line string) {
			parser.Feed(line)
			if opts.VerboseOutput || parser.Filter(line) {
				printLine(line)
			}
		},
	})
	return parser.Summary(), err
}

// testExitCode is the tool's code when it failed, 1 when the output shows
// failures the tool did not exit non-zero for, else 0.
func testExitCode(s testsummary.Summary, err error) int {
	if err != nil {
		return process.ExitCode(err)
	}
	if !s.Success() {
		return 1
	}
	return 0
}

func printTestSummary(s testsummary.Summary) {
	debug.PrintlnNormal()
	if len(s.BuildErrors) > 0 {
		debug.PrintNormal("%s\n", ui.RenderCategory("Build errors"))
		for _, e := range s.BuildErrors {
			debug.PrintNormal("  %s %s\n", ui.RenderFailIcon(), e)
		}
		debug.PrintlnNormal()
	}
	if len(s.FailedTests) > 0 {
		debug.PrintNormal("%s\n", ui.RenderCategory("Failed tests"))
		for _, t := range s.FailedTests {
			name := t.Name
			if t.Duration != "" {
				name += " " + ui.RenderMuted("["+t.Duration+"]")
			}
			debug.PrintNormal("  %s %s\n", ui.RenderFailIcon(), name)
			if t.Message != "" {
				debug.PrintNormal("%s\n", ui.Indent(ui.TruncateLines(t.Message, 10), "      "))
			}
		}
		debug.PrintlnNormal()
	}

	line := fmt.Sprintf("Total: %d  Passed: %d  Failed: %d  Skipped: %d",
		s.Total, s.Passed, s.Failed, s.Skipped)
	if s.Duration > 0 {
		line += "  (" + ui.FormatDuration(s.Duration) + ")"
	}
	if s.Success() {
		debug.PrintNormal("%s %s\n", ui.RenderPassIcon(), ui.RenderPass(line))
	} else {
		debug.PrintNormal("%s %s\n", ui.RenderFailIcon(), ui.RenderFail(line))
	}
}
