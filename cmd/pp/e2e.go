package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/apphost"
	"github.com/platformplatform/developer-cli/internal/config"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/git"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/testsummary"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

// e2eTestsDir is where a system's Playwright tests live, below WebApp/.
const e2eTestsDir = "tests/e2e"

var e2eCmd = &cobra.Command{
	Use:     "e2e [terms...]",
	GroupID: GroupDevelop,
	Short:   "Run the Playwright end-to-end tests",
	Long: `E2e runs 'npx playwright test' for every self-contained system that has
end-to-end tests, against the app started by 'pp run'. Terms filter tests by
title. The output is condensed to failures and the final counts.`,
	Run: func(cmd *cobra.Command, args []string) {
		requireTools("node", "npm")
		w := mustWorkspace()
		opts := e2eOptionsFromFlags(cmd, args)

		if !apphost.PortOpen(config.GetInt("app.port")) {
			FatalErrorWithHint(fmt.Sprintf("nothing is listening on port %d", config.GetInt("app.port")),
				"start the app with 'pp run --detach' first")
		}

		systems, err := e2eSystems(w, opts.System)
		if err != nil {
			FatalError("%v", err)
		}
		if opts.OnlyChanged {
			base := opts.BaseBranch
			if systems, err = changedSystems(rootCtx, runner, w, systems, base); err != nil {
				FatalError("%v", err)
			}
			if len(systems) == 0 {
				debug.PrintNormal("%s No self-contained system changed since %s\n", ui.RenderSkipIcon(), base)
				if jsonOutput {
					outputJSON(testsummary.PlaywrightSummary{})
				}
				return
			}
		}
		summary, err := runE2E(rootCtx, runner, systems, opts)
		if jsonOutput {
			outputJSONResult(summary, e2eExitCode(summary, err))
			return
		}
		printE2ESummary(summary)
		if opts.ShowReport && !summary.Success() {
			for _, s := range systems {
				_, _ = runTool(rootCtx, runner, process.Command{
					Name: "npx", Args: []string{"playwright", "show-report"}, Dir: s.WebAppDir(),
					Stdout: os.Stdout, Stderr: os.Stderr,
				})
			}
		}
		if code := e2eExitCode(summary, err); code != 0 {
			if err != nil && summary.Total() == 0 {
				FatalToolError(err)
			}
			exit(code)
		}
	},
}

func init() {
	f := e2eCmd.Flags()
	f.String("browser", "", "Browser project: chromium, firefox, webkit, all (default from config)")
	f.Bool("smoke", false, "Only run tests tagged @smoke")
	f.Bool("headed", false, "Show the browser")
	f.Bool("debug-e2e", false, "Run with the Playwright inspector")
	f.StringP("self-contained-system", "s", "", "Only this self-contained system")
	f.Int("retries", -1, "Retries per failing test (default from the Playwright config)")
	f.Int("workers", 0, "Parallel workers (default from the Playwright config)")
	f.Bool("stop-on-first-failure", false, "Stop after the first failing test")
	f.Int("repeat-each", 0, "Run each test this many times")
	f.Bool("only-changed", false, "Only run test files changed since the base branch")
	f.Bool("show-report", false, "Open the HTML report when tests fail")
	rootCmd.AddCommand(e2eCmd)
}

type e2eOptions struct {
	Terms             []string
	Browser           string
	Smoke             bool
	Headed            bool
	Debug             bool
	System            string
	Retries           int
	Workers           int
	StopOnFirstFailed bool
	RepeatEach        int
	OnlyChanged       bool
	BaseBranch        string
	ShowReport        bool
	BaseURL           string
}

func e2eOptionsFromFlags(cmd *cobra.Command, args []string) e2eOptions {
	f := cmd.Flags()
	opts := e2eOptions{Terms: args, BaseURL: config.GetString("e2e.base-url")}
	opts.Browser, _ = f.GetString("browser")
	if opts.Browser == "" {
		opts.Browser = config.GetString("e2e.browser")
	}
	opts.Smoke, _ = f.GetBool("smoke")
	opts.Headed, _ = f.GetBool("headed")
	opts.Debug, _ = f.GetBool("debug-e2e")
	opts.System, _ = f.GetString("self-contained-system")
	opts.Retries, _ = f.GetInt("retries")
	opts.Workers, _ = f.GetInt("workers")
	opts.StopOnFirstFailed, _ = f.GetBool("stop-on-first-failure")
	opts.RepeatEach, _ = f.GetInt("repeat-each")
	opts.OnlyChanged, _ = f.GetBool("only-changed")
	opts.BaseBranch = config.GetString("e2e.base-branch")
	opts.ShowReport, _ = f.GetBool("show-report")
	return opts
}

// playwrightArgs builds the `npx playwright test` command line.
func playwrightArgs(opts e2eOptions) []string {
	args := []string{"playwright", "test"}
	if b := strings.ToLower(opts.Browser); b != "" && b != "all" {
		args = append(args, "--project="+b)
	}
	if grep := e2eGrep(opts.Terms, opts.Smoke); grep != "" {
		args = append(args, "--grep="+grep)
	}
	if opts.Headed {
		args = append(args, "--headed")
	}
	if opts.Debug {
		args = append(args, "--debug")
	}
	if opts.Retries >= 0 {
		args = append(args, "--retries="+strconv.Itoa(opts.Retries))
	}
	if opts.Workers > 0 {
		args = append(args, "--workers="+strconv.Itoa(opts.Workers))
	}
	if opts.StopOnFirstFailed {
		args = append(args, "--max-failures=1")
	}
	if opts.RepeatEach > 0 {
		args = append(args, "--repeat-each="+strconv.Itoa(opts.RepeatEach))
	}
	if opts.OnlyChanged {
		// Bare --only-changed compares against HEAD.
		if opts.BaseBranch != "" {
			args = append(args, "--only-changed="+opts.BaseBranch)
		} else {
			args = append(args, "--only-changed")
		}
	}
	return append(args, "--reporter=list")
}

// e2eGrep matches any of the terms, and the @smoke tag when smoke is set.
func e2eGrep(terms []string, smoke bool) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	anyTerm := strings.Join(quoted, "|")
	switch {
	case smoke && anyTerm != "":
		return "(?=.*@smoke)(?=.*(" + anyTerm + "))"
	case smoke:
		return "@smoke"
	default:
		return anyTerm
	}
}

// e2eSystems returns the systems with Playwright tests, or just the named one.
func e2eSystems(w *workspace.Workspace, name string) ([]workspace.SelfContainedSystem, error) {
	if name != "" {
		s, err := w.SelfContainedSystem(name)
		if err != nil {
			return nil, err
		}
		if !hasE2ETests(s) {
			return nil, fmt.Errorf("%s has no end-to-end tests", s.Name)
		}
		return []workspace.SelfContainedSystem{s}, nil
	}
	all, err := w.SelfContainedSystems()
	if err != nil {
		return nil, err
	}
	var out []workspace.SelfContainedSystem
	for _, s := range all {
		if hasE2ETests(s) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no self-contained system has end-to-end tests")
	}
	return out, nil
}

// changedSystems keeps the systems with files changed since base, committed
// or not. Playwright's own --only-changed then narrows the test files.
func changedSystems(ctx context.Context, r process.Runner, w *workspace.Workspace, systems []workspace.SelfContainedSystem, base string) ([]workspace.SelfContainedSystem, error) {
	files, err := git.New(r, w.Root).ChangedFilesSince(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes since %s: %w", base, err)
	}
	var out []workspace.SelfContainedSystem
	for _, s := range systems {
		prefix := w.Rel(s.Dir) + "/"
		for _, f := range files {
			if strings.HasPrefix(f, prefix) {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func hasE2ETests(s workspace.SelfContainedSystem) bool {
	if !s.HasWebApp {
		return false
	}
	info, err := os.Stat(filepath.Join(s.WebAppDir(), filepath.FromSlash(e2eTestsDir)))
	return err == nil && info.IsDir()
}

// runE2E runs each system in turn and sums the results. The first tool error
// is returned after all systems ran.
func runE2E(ctx context.Context, r process.Runner, systems []workspace.SelfContainedSystem, opts e2eOptions) (testsummary.PlaywrightSummary, error) {
	var total testsummary.PlaywrightSummary
	var firstErr error
	for _, s := range systems {
		debug.PrintNormal("%s\n", ui.RenderCategory(s.Name))
		parser := testsummary.NewPlaywright()
		c := process.Command{
			Name: "npx",
			Args: playwrightArgs(opts),
			Dir:  s.WebAppDir(),
			OnLine: func(line string) {
				parser.Feed(line)
				if debug.Enabled() || parser.Filter(line) {
					printLine(line)
				}
			},
		}
		if opts.BaseURL != "" {
			c.Env = append(c.Env, "BASE_URL="+opts.BaseURL)
		}
		_, err := runTool(ctx, r, c)
		total.Add(parser.Summary())
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", s.Name, err)
		}
		if ctx.Err() != nil || (opts.StopOnFirstFailed && !total.Success()) {
			break
		}
	}
	return total, firstErr
}

func e2eExitCode(s testsummary.PlaywrightSummary, err error) int {
	if err != nil {
		return process.ExitCode(err)
	}
	if !s.Success() {
		return 1
	}
	return 0
}

func printE2ESummary(s testsummary.PlaywrightSummary) {
	debug.PrintlnNormal()
	if len(s.FailedTests) > 0 {
		debug.PrintNormal("%s\n", ui.RenderCategory("Failed tests"))
		for _, t := range s.FailedTests {
			debug.PrintNormal("  %s [%s] %s\n", ui.RenderFailIcon(), t.Browser, t.Title)
		}
		debug.PrintlnNormal()
	}
	line := fmt.Sprintf("Passed: %d  Failed: %d  Flaky: %d  Skipped: %d", s.Passed, s.Failed, s.Flaky, s.Skipped)
	if s.DidNotRun > 0 {
		line += fmt.Sprintf("  Did not run: %d", s.DidNotRun)
	}
	if s.Interrupted > 0 {
		line += fmt.Sprintf("  Interrupted: %d", s.Interrupted)
	}
	if s.Success() {
		debug.PrintNormal("%s %s\n", ui.RenderPassIcon(), ui.RenderPass(line))
	} else {
		debug.PrintNormal("%s %s\n", ui.RenderFailIcon(), ui.RenderFail(line))
	}
}
