package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/config"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/packages"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

// propsFile pins every NuGet version centrally, under application/.
const propsFile = "Directory.Packages.props"

var updatePackagesCmd = &cobra.Command{
	Use:     "update-packages",
	GroupID: GroupSetup,
	Short:   "Update outdated NuGet and npm packages",
	Long: `Update-packages lists outdated NuGet packages (Directory.Packages.props) and
npm packages, asks for confirmation, and applies the new versions. Major
version bumps are skipped unless --include-major is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		t := targetsFromFlags(cmd)
		if t.Backend {
			applySolutionFlag(cmd)
		}
		requireTools(t.tools()...)
		f := cmd.Flags()
		dryRun, _ := f.GetBool("dry-run")
		includeMajor, _ := f.GetBool("include-major")
		yes, _ := f.GetBool("yes")
		exclude, _ := f.GetStringSlice("exclude")
		exclude = append(exclude, config.GetStringSlice("update-packages.exclude")...)

		w := mustWorkspace()
		plan, err := planPackageUpdates(rootCtx, runner, w, t, includeMajor, exclude)
		if err != nil {
			FatalError("%v", err)
		}
		if !jsonOutput {
			printPackagePlan(plan)
		}
		if dryRun || len(plan.Updates) == 0 {
			if jsonOutput {
				outputJSON(plan)
			}
			return
		}
		if !yes {
			ok, err := ui.Confirm(fmt.Sprintf("Apply %d package updates?", len(plan.Updates)), "", true)
			if err != nil {
				FatalError("%v", err)
			}
			if !ok {
				debug.PrintNormal("Nothing changed\n")
				return
			}
		}
		if err := applyPackageUpdates(rootCtx, runner, w, plan); err != nil {
			FatalToolError(err)
		}
		if jsonOutput {
			outputJSON(plan)
			return
		}
		debug.PrintNormal("%s Updated %d %s\n", ui.RenderPassIcon(), len(plan.Updates), ui.Pluralize(len(plan.Updates), "package", "packages"))
	},
}

func init() {
	addTargetFlags(updatePackagesCmd)
	f := updatePackagesCmd.Flags()
	f.Bool("dry-run", false, "Only list the outdated packages")
	f.Bool("include-major", false, "Also apply major version bumps")
	f.StringSlice("exclude", nil, "Package names to leave alone; a trailing * matches a prefix")
	f.BoolP("yes", "y", false, "Apply without asking")
	f.String("solution-name", "", "Solution file under application/ (default from config)")
	rootCmd.AddCommand(updatePackagesCmd)
}

type packagePlan struct {
	Updates []packages.Update `json:"updates"`
	Skipped []packages.Update `json:"skipped,omitempty"`
}

func planPackageUpdates(ctx context.Context, r process.Runner, w *workspace.Workspace, t targets, includeMajor bool, exclude []string) (*packagePlan, error) {
	var all []packages.Update
	if t.Backend {
		debug.PrintNormal("%s\n", ui.RenderCommand("dotnet", "list", w.SolutionName, "package", "--outdated"))
		nuget, err := packages.DotnetOutdated(ctx, r, w.SolutionPath())
		if err != nil {
			return nil, err
		}
		all = append(all, pinnedOnly(w, nuget)...)
	}
	if t.Frontend && w.HasFrontend() {
		debug.PrintNormal("%s\n", ui.RenderCommand("npm", "outdated"))
		npm, err := packages.NpmOutdated(ctx, r, w.FrontendDir())
		if err != nil {
			return nil, err
		}
		all = append(all, npm...)
	}
	keep, skipped := packages.Filter(all, includeMajor, exclude)
	return &packagePlan{Updates: keep, Skipped: skipped}, nil
}

// pinnedOnly drops NuGet updates for packages Directory.Packages.props does
// not pin, since only pinned versions can be rewritten.
func pinnedOnly(w *workspace.Workspace, updates []packages.Update) []packages.Update {
	data, err := os.ReadFile(w.ApplicationPath(propsFile))
	if err != nil {
		return updates
	}
	pinned := packages.ReadProps(string(data))
	out := updates[:0:0]
	for _, u := range updates {
		if _, ok := pinned[u.Name]; !ok {
			debug.Logf("%s is not pinned in %s, skipping\n", u.Name, propsFile)
			continue
		}
		out = append(out, u)
	}
	return out
}

func applyPackageUpdates(ctx context.Context, r process.Runner, w *workspace.Workspace, plan *packagePlan) error {
	changed, err := packages.UpdatePropsFile(w.ApplicationPath(propsFile), plan.Updates)
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		debug.LogEvent("PACKAGES_UPDATED", "update-packages", fmt.Sprintf("nuget=%v", changed))
	}
	if err := packages.NpmInstall(ctx, r, w.FrontendDir(), plan.Updates); err != nil {
		return fmt.Errorf("npm install failed: %w", err)
	}
	return nil
}

func printPackagePlan(plan *packagePlan) {
	if len(plan.Updates) == 0 && len(plan.Skipped) == 0 {
		debug.PrintNormal("%s All packages are up to date\n", ui.RenderPassIcon())
		return
	}
	rows := make([][]string, 0, len(plan.Updates)+len(plan.Skipped))
	for _, u := range plan.Updates {
		rows = append(rows, []string{string(u.Ecosystem), packageLabel(u), u.Current, ui.RenderPass(u.Latest), "update"})
	}
	for _, u := range plan.Skipped {
		reason := "excluded"
		if u.IsMajor() {
			reason = "major"
		}
		rows = append(rows, []string{string(u.Ecosystem), packageLabel(u), u.Current, ui.RenderMuted(u.Latest), ui.RenderMuted("skip (" + reason + ")")})
	}
	debug.PrintNormal("%s\n", ui.RenderTable([]string{"Source", "Package", "Current", "Latest", "Action"}, rows))
}

// packageLabel names an update, with its npm workspace when it has one.
func packageLabel(u packages.Update) string {
	if u.Dependent == "" {
		return u.Name
	}
	return u.Name + " " + ui.RenderMuted("("+u.Dependent+")")
}
