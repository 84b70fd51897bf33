package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/git"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

var formatCmd = &cobra.Command{
	Use:     "format",
	GroupID: GroupQuality,
	Short:   "Format the backend and frontend code",
	Long: `Format runs JetBrains cleanupcode on the solution and 'npm run format' in
the application folder, then lists the files the formatters changed.`,
	Run: func(cmd *cobra.Command, args []string) {
		t := targetsFromFlags(cmd)
		if t.Backend {
			applySolutionFlag(cmd)
		}
		requireTools(append(t.tools(), "git")...)
		noBuild, _ := cmd.Flags().GetBool("no-build")

		report, err := formatCode(rootCtx, runner, mustWorkspace(), t, noBuild)
		if jsonOutput {
			outputJSONResult(report, exitCodeOf(err))
			return
		}
		if err != nil {
			FatalToolError(err)
		}
		printFormatReport(report)
	},
}

func init() {
	addTargetFlags(formatCmd)
	formatCmd.Flags().Bool("no-build", false, "Skip building the solution before cleanupcode")
	formatCmd.Flags().String("solution-name", "", "Solution file under application/ (default from config)")
	rootCmd.AddCommand(formatCmd)
}

type formatReport struct {
	Changed []string `json:"changed"`
}

// formatCode runs the formatters and diffs git status around them.
func formatCode(ctx context.Context, r process.Runner, w *workspace.Workspace, t targets, noBuild bool) (*formatReport, error) {
	repo := git.New(r, w.Root)
	before, err := repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read git status: %w", err)
	}

	if t.Backend {
		if err := formatBackend(ctx, r, w, noBuild); err != nil {
			return nil, err
		}
	}
	if t.Frontend && w.HasFrontend() {
		if _, err := runTool(ctx, r, process.Command{
			Name: "npm",
			Args: []string{"run", "format"},
			Dir:  w.FrontendDir(),
		}); err != nil {
			return nil, fmt.Errorf("frontend format failed: %w", err)
		}
	}

	after, err := repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read git status: %w", err)
	}
	return &formatReport{Changed: git.Diff(before, after)}, nil
}

func formatBackend(ctx context.Context, r process.Runner, w *workspace.Workspace, noBuild bool) error {
	if err := restoreDotnetTools(ctx, r, w); err != nil {
		return err
	}
	if !noBuild {
		if _, err := buildBackend(ctx, r, w); err != nil {
			return err
		}
	}
	_, err := runTool(ctx, r, process.Command{
		Name: "dotnet",
		Args: []string{"jb", "cleanupcode", w.SolutionName, "--profile=.NET only", "--no-build"},
		Dir:  w.ApplicationPath(),
	})
	if err != nil {
		return fmt.Errorf("backend format failed: %w", err)
	}
	return nil
}

// restoreDotnetTools installs the local tools (jb, reportgenerator) pinned in
// the tool manifest.
func restoreDotnetTools(ctx context.Context, r process.Runner, w *workspace.Workspace) error {
	if _, err := runTool(ctx, r, process.Command{
		Name: "dotnet",
		Args: []string{"tool", "restore"},
		Dir:  w.ApplicationPath(),
	}); err != nil {
		return fmt.Errorf("dotnet tool restore failed: %w", err)
	}
	return nil
}

func printFormatReport(r *formatReport) {
	if len(r.Changed) == 0 {
		debug.PrintNormal("%s No files changed\n", ui.RenderPassIcon())
		return
	}
	debug.PrintNormal("%s Formatted %d %s:\n", ui.RenderWarnIcon(), len(r.Changed), ui.Pluralize(len(r.Changed), "file", "files"))
	for _, f := range r.Changed {
		debug.PrintNormal("  %s\n", f)
	}
}
