package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/cloudsetup"
	"github.com/platformplatform/developer-cli/internal/config"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/git"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

var configureCDCmd = &cobra.Command{
	Use:     "configure-continuous-deployments",
	GroupID: GroupSetup,
	Short:   "Let GitHub Actions deploy to Azure",
	Long: `Configure-continuous-deployments creates an Entra application with a
service principal and a GitHub OIDC federated credential, grants it a role on
the active Azure subscription, and stores the ids as GitHub repository
variables. Running it again reuses what already exists.`,
	Run: func(cmd *cobra.Command, args []string) {
		requireTools("az", "gh", "git")
		w := mustWorkspace()
		f := cmd.Flags()
		yes, _ := f.GetBool("yes")

		c := &cloudsetup.Configurer{Runner: runner, Dir: w.Root}
		plan, err := deploymentPlan(rootCtx, runner, c, w, cmd)
		if errors.Is(err, cloudsetup.ErrNotLoggedIn) {
			FatalErrorWithHint(err.Error(), "log in with 'az login' and 'gh auth login' first")
		}
		if err != nil {
			FatalError("%v", err)
		}

		if !jsonOutput {
			printDeploymentPlan(plan)
		}
		if !yes {
			ok, err := ui.Confirm("Create these resources?", "Existing resources are reused.", false)
			if err != nil {
				FatalError("%v", err)
			}
			if !ok {
				FatalErrorWithHint("nothing was changed", "pass --yes to skip the confirmation")
			}
		}

		res, err := c.Configure(rootCtx, plan)
		if err != nil {
			FatalToolError(err)
		}
		if location := config.GetString("deploy.azure-location"); location != "" {
			if err := setRepoVariable(rootCtx, runner, w, plan.Repository, "AZURE_LOCATION", location); err != nil {
				FatalToolError(err)
			}
			res.Variables["AZURE_LOCATION"] = location
		}
		debug.LogEvent("CD_CONFIGURED", "configure-continuous-deployments", plan.Repository+" app="+res.AppID)

		if jsonOutput {
			outputJSON(res)
			return
		}
		printDeploymentResult(res)
	},
}

func init() {
	f := configureCDCmd.Flags()
	f.BoolP("yes", "y", false, "Create the resources without asking")
	f.String("environment", "", "GitHub environment allowed to deploy (default: the main branch)")
	f.String("app-name", "", "Entra application name (default: GitHub - <owner>/<repo>)")
	f.String("role", "Contributor", "Azure role granted on the subscription")
	rootCmd.AddCommand(configureCDCmd)
}

func deploymentPlan(ctx context.Context, r process.Runner, c *cloudsetup.Configurer, w *workspace.Workspace, cmd *cobra.Command) (cloudsetup.Plan, error) {
	account, err := c.AzureAccount(ctx)
	if err != nil {
		return cloudsetup.Plan{}, err
	}
	if err := c.CheckGitHubLogin(ctx); err != nil {
		return cloudsetup.Plan{}, err
	}
	repo, err := git.New(r, w.Root).GitHubRepository(ctx)
	if err != nil {
		return cloudsetup.Plan{}, err
	}

	f := cmd.Flags()
	env, _ := f.GetString("environment")
	if env == "" {
		env = config.GetString("deploy.github-environment")
	}
	appName, _ := f.GetString("app-name")
	if appName == "" {
		appName = "GitHub - " + repo
		if yes, _ := f.GetBool("yes"); !yes && !jsonOutput {
			if appName, err = ui.Input("Entra application name", "", appName, nil); err != nil {
				return cloudsetup.Plan{}, err
			}
		}
	}
	role, _ := f.GetString("role")

	return cloudsetup.Plan{
		Repository:  repo,
		Environment: env,
		AppName:     appName,
		Role:        role,
		Account:     account,
	}, nil
}

func setRepoVariable(ctx context.Context, r process.Runner, w *workspace.Workspace, repo, name, value string) error {
	_, err := r.Run(ctx, process.Command{
		Name: "gh",
		Args: []string{"variable", "set", name, "--body", value, "--repo", repo},
		Dir:  w.Root,
	})
	if err != nil {
		return fmt.Errorf("failed to set GitHub variable %s: %w", name, err)
	}
	return nil
}

func printDeploymentPlan(p cloudsetup.Plan) {
	rows := [][]string{
		{"Subscription", fmt.Sprintf("%s (%s)", p.Account.SubscriptionName, p.Account.SubscriptionID)},
		{"Tenant", p.Account.TenantID},
		{"Signed in as", p.Account.User.Name},
		{"Repository", p.Repository},
		{"Entra application", p.AppName},
		{"Federated subject", p.Subject()},
		{"Role", p.Role + " on " + p.Scope()},
	}
	debug.PrintNormal("%s\n", ui.RenderTable([]string{"Setting", "Value"}, rows))
}

func printDeploymentResult(res *cloudsetup.Result) {
	verb := "Reused"
	if res.CreatedApp {
		verb = "Created"
	}
	debug.PrintNormal("%s %s Entra application %s\n", ui.RenderPassIcon(), verb, res.AppID)
	debug.PrintNormal("%s Federated credential for %s\n", ui.RenderPassIcon(), res.Credential)
	names := slices.Sorted(maps.Keys(res.Variables))
	debug.PrintNormal("%s GitHub variables set: %s\n", ui.RenderPassIcon(), strings.Join(names, ", "))
}
