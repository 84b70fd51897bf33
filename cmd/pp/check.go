package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	GroupID: GroupQuality,
	Short:   "Build, test, format and lint in one go",
	Long: `Check runs build, test, format and lint in that order and stops at the
first failing step. A table of steps with their timings is printed at the end.`,
	Run: func(cmd *cobra.Command, args []string) {
		t := targetsFromFlags(cmd)
		if t.Backend {
			applySolutionFlag(cmd)
		}
		requireTools(append(t.tools(), "git")...)

		opts := checkOptions{targets: t}
		opts.SkipFormat, _ = cmd.Flags().GetBool("skip-format")
		opts.SkipLint, _ = cmd.Flags().GetBool("skip-lint")
		opts.Parallel, _ = cmd.Flags().GetBool("parallel")

		steps, err := runCheck(rootCtx, runner, mustWorkspace(), opts)
		if jsonOutput {
			outputJSONResult(map[string]interface{}{"steps": steps, "success": err == nil}, exitCodeOf(err))
			return
		}
		debug.PrintlnNormal()
		debug.PrintNormal("%s\n", renderSteps(steps))
		if err != nil {
			FatalToolError(err)
		}
	},
}

func init() {
	addTargetFlags(checkCmd)
	checkCmd.Flags().Bool("skip-format", false, "Skip the format step")
	checkCmd.Flags().Bool("skip-lint", false, "Skip the lint step")
	checkCmd.Flags().Bool("parallel", false, "Build the backend and frontend concurrently")
	checkCmd.Flags().String("solution-name", "", "Solution file under application/ (default from config)")
	rootCmd.AddCommand(checkCmd)
}

type checkOptions struct {
	targets
	SkipFormat bool
	SkipLint   bool
	Parallel   bool
}

// runCheck returns every step, with the ones after a failure marked skipped.
func runCheck(ctx context.Context, r process.Runner, w *workspace.Workspace, opts checkOptions) ([]step, error) {
	type stage struct {
		name string
		skip bool
		run  func() (string, error)
	}
	stages := []stage{
		{name: "build", run: func() (string, error) {
			return checkBuild(ctx, r, w, opts)
		}},
		{name: "test", skip: !opts.Backend, run: func() (string, error) {
			s, err := runTests(ctx, r, w, testOptions{NoBuild: true})
			detail := fmt.Sprintf("%d passed, %d failed, %d skipped", s.Passed, s.Failed, s.Skipped)
			if err == nil && !s.Success() {
				err = errors.New("tests failed")
			}
			return detail, err
		}},
		{name: "format", skip: opts.SkipFormat, run: func() (string, error) {
			rep, err := formatCode(ctx, r, w, opts.targets, true)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d files changed", len(rep.Changed)), nil
		}},
		{name: "lint", skip: opts.SkipLint, run: func() (string, error) {
			rep, err := lintCode(ctx, r, w, opts.targets, true)
			return fmt.Sprintf("%d issues", rep.Issues), err
		}},
	}

	var steps []step
	var failed error
	for _, st := range stages {
		if st.skip || failed != nil {
			steps = append(steps, step{Name: st.name, Status: statusSkipped})
			continue
		}
		s, err := timeStep(st.name, st.run)
		steps = append(steps, s)
		if err != nil {
			failed = fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return steps, failed
}

// checkBuild builds the selected halves, concurrently with --parallel.
func checkBuild(ctx context.Context, r process.Runner, w *workspace.Workspace, opts checkOptions) (string, error) {
	if !opts.Parallel || !opts.Backend || !opts.Frontend {
		report, err := buildTargets(ctx, r, w, opts.targets)
		return buildDetail(report), err
	}

	report := &buildReport{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := buildBackend(gctx, r, w)
		report.Backend = out
		return err
	})
	g.Go(func() error {
		out, err := buildFrontend(gctx, r, w)
		report.Frontend = out
		return err
	})
	err := g.Wait()
	return buildDetail(report), err
}

func buildDetail(r *buildReport) string {
	if r == nil {
		return ""
	}
	var errs, warnings int
	for _, o := range []*buildOutcome{r.Backend, r.Frontend} {
		if o != nil {
			errs += len(o.Errors)
			warnings += len(o.Warnings)
		}
	}
	return fmt.Sprintf("%d errors, %d warnings", errs, warnings)
}
