package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/apphost"
	"github.com/platformplatform/developer-cli/internal/config"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/devcert"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

// Aspire resources removed by --clean-database.
var (
	databaseContainers = []string{"sql-server", "azure-storage"}
	databaseVolumes    = []string{"sql-server-data", "azure-storage-data"}
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: GroupRun,
	Short:   "Start the AppHost and wait until the app answers",
	Long: `Run starts the Aspire AppHost with 'dotnet run', waits for the dashboard
and the app to listen, and opens the app in the browser. Only one run may be
active per workspace. With --detach the AppHost keeps running in the
background; stop it with 'pp stop'.`,
	Run: func(cmd *cobra.Command, args []string) {
		requireTools("dotnet", "docker")
		w := mustWorkspace()
		detach, _ := cmd.Flags().GetBool("detach")
		cleanDatabase, _ := cmd.Flags().GetBool("clean-database")
		noBrowser, _ := cmd.Flags().GetBool("no-browser")

		if err := checkDocker(rootCtx, runner); err != nil {
			FatalErrorWithHint(err.Error(), "start Docker Desktop (or the docker daemon) and try again")
		}
		if cleanDatabase {
			ok, err := ui.Confirm("Delete the local database?", "The SQL Server and storage containers and their volumes are removed.", true)
			if err != nil {
				FatalError("%v", err)
			}
			if ok {
				if err := cleanDatabaseResources(rootCtx, runner); err != nil {
					FatalError("%v", err)
				}
			}
		}
		ensureDevCertQuietly(w)

		m := newAppHostManager(w)
		openBrowser := !noBrowser && config.GetBool("run.open-browser") && !ui.IsAgentMode()
		url := appURL()

		debug.PrintNormal("%s Starting the AppHost (dashboard on port %d, app on port %d)\n",
			ui.RenderRunIcon(), m.DashboardPort, m.AppPort)
		err := m.Start(rootCtx, apphost.StartOptions{
			Detach: detach,
			Ready: func() {
				debug.PrintNormal("%s App ready at %s\n", ui.RenderPassIcon(), url)
				debug.PrintNormal("%s Dashboard at https://localhost:%d\n", ui.RenderInfoIcon(), m.DashboardPort)
				if openBrowser {
					if err := apphost.OpenBrowser(rootCtx, runner, url); err != nil {
						WarnError("failed to open the browser: %v", err)
					}
				}
			},
		})
		switch {
		case errors.Is(err, apphost.ErrLocked):
			FatalErrorWithHint(err.Error(), "wait for the other pp run to finish, or stop it")
		case errors.Is(err, apphost.ErrAlreadyRunning):
			FatalErrorWithHint(err.Error(), "run 'pp stop' first")
		case err != nil:
			if detach {
				FatalErrorWithHint(err.Error(), "see "+w.Rel(m.LogPath()))
			}
			FatalToolError(err)
		}

		if jsonOutput {
			pid, _ := m.RunningPid()
			outputJSON(map[string]interface{}{"url": url, "detached": detach, "pid": pid, "log": m.LogPath()})
			return
		}
		if detach {
			debug.PrintNormal("%s AppHost running in the background, logs in %s\n", ui.RenderInfoIcon(), w.Rel(m.LogPath()))
		}
	},
}

func init() {
	runCmd.Flags().BoolP("detach", "d", false, "Keep the AppHost running in the background")
	runCmd.Flags().Bool("clean-database", false, "Delete the local database containers and volumes first")
	runCmd.Flags().Bool("no-browser", false, "Do not open the app in the browser")
	rootCmd.AddCommand(runCmd)
}

func newAppHostManager(w *workspace.Workspace) *apphost.Manager {
	return &apphost.Manager{
		Runner:         runner,
		StateDir:       w.StatePath(),
		ProjectDir:     w.AppHostDir(config.GetString("apphost.project")),
		DashboardPort:  config.GetInt("dashboard.port"),
		AppPort:        config.GetInt("app.port"),
		StartupTimeout: config.GetDuration("run.startup-timeout"),
		Output:         os.Stdout,
	}
}

func appURL() string {
	return fmt.Sprintf("https://localhost:%d", config.GetInt("app.port"))
}

// checkDocker fails when the docker daemon does not answer.
func checkDocker(ctx context.Context, r process.Runner) error {
	if _, err := r.Run(ctx, process.Command{Name: "docker", Args: []string{"info", "--format", "{{.ServerVersion}}"}}); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}
	return nil
}

// cleanDatabaseResources removes the containers, then their volumes.
// Resources that do not exist are ignored.
func cleanDatabaseResources(ctx context.Context, r process.Runner) error {
	for _, c := range databaseContainers {
		if err := dockerRemove(ctx, r, "rm", "--force", c); err != nil {
			return err
		}
	}
	for _, v := range databaseVolumes {
		if err := dockerRemove(ctx, r, "volume", "rm", v); err != nil {
			return err
		}
	}
	return nil
}

func dockerRemove(ctx context.Context, r process.Runner, args ...string) error {
	res, err := runTool(ctx, r, process.Command{Name: "docker", Args: args})
	if err != nil && !strings.Contains(strings.ToLower(res.Combined()), "no such") {
		return fmt.Errorf("docker %s failed: %w", strings.Join(args, " "), err)
	}
	return nil
}

// ensureDevCertQuietly repairs the HTTPS certificate before a run; problems
// are warnings because 'pp dev-cert' can fix them separately.
func ensureDevCertQuietly(w *workspace.Workspace) {
	if _, err := runner.LookPath("openssl"); err != nil {
		debug.Logf("openssl not found, skipping the dev certificate check\n")
		return
	}
	m, err := newDevCertManager(w)
	if err != nil {
		WarnError("%v", err)
		return
	}
	created, _, err := m.Ensure(rootCtx, false)
	if err != nil {
		WarnError("dev certificate: %v", err)
		return
	}
	if created {
		debug.PrintNormal("%s Created a new localhost development certificate\n", ui.RenderInfoIcon())
	}
}

func newDevCertManager(w *workspace.Workspace) (*devcert.Manager, error) {
	path := os.Getenv("PP_DEV_CERT_PATH")
	if path == "" {
		path = config.GetString("devcert.path")
	}
	if path == "" {
		var err error
		if path, err = devcert.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return &devcert.Manager{
		Runner:     runner,
		CertPath:   path,
		AppHostDir: w.AppHostDir(config.GetString("apphost.project")),
	}, nil
}
