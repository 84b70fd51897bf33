package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/apphost"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/ui"
)

var stopCmd = &cobra.Command{
	Use:     "stop",
	GroupID: GroupRun,
	Short:   "Stop a detached AppHost",
	Long: `Stop ends the AppHost started with 'pp run --detach' and frees the app
and dashboard ports, also when a crashed run left something listening.`,
	Run: func(cmd *cobra.Command, args []string) {
		m := newAppHostManager(mustWorkspace())
		pid, err := m.Stop(rootCtx)
		notRunning := errors.Is(err, apphost.ErrNotRunning)
		if err != nil && !notRunning {
			FatalError("failed to stop the AppHost: %v", err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"stopped": !notRunning, "pid": pid})
			return
		}
		if notRunning {
			debug.PrintNormal("%s The AppHost is not running\n", ui.RenderSkipIcon())
			return
		}
		debug.PrintNormal("%s Stopped the AppHost (pid %d)\n", ui.RenderPassIcon(), pid)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
