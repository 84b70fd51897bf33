package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/config"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/git"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/telemetry"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

var (
	rootFlag    string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// runner executes every wrapped tool; tests swap in a processtest.Fake.
	runner process.Runner = process.NewExecRunner()

	// ws is the discovered workspace, nil for commands that run anywhere.
	ws *workspace.Workspace
)

// Command groups for organized help output
const (
	GroupDevelop = "develop"
	GroupQuality = "quality"
	GroupRun     = "run"
	GroupSetup   = "setup"
)

// noWorkspaceCommands run without a PlatformPlatform checkout.
var noWorkspaceCommands = map[string]bool{
	"version":    true,
	"doctor":     true,
	"help":       true,
	"completion": true,
	"__complete": true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupDevelop, Title: "Build & Test:"},
		&cobra.Group{ID: GroupQuality, Title: "Code Quality:"},
		&cobra.Group{ID: GroupRun, Title: "Run Locally:"},
		&cobra.Group{ID: GroupSetup, Title: "Setup & Maintenance:"},
	)

	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Workspace root (default: $PP_ROOT, then the nearest directory containing application/)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "pp",
	Short: "pp - PlatformPlatform developer CLI",
	Long: `pp wraps the toolchains of a PlatformPlatform checkout (dotnet, npm, git,
docker, az, gh, openssl, ollama) and summarizes what they print.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			printVersion()
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		if err := config.Initialize(); err != nil {
			WarnError("failed to initialize config: %v", err)
		}
		applyConfigDefaults(cmd)
		applyVerbosityFlags()
		ui.ApplyColorProfile()

		if err := telemetry.Init(rootCtx, "pp", Version, debug.SessionID()); err != nil {
			debug.Logf("telemetry disabled: %v\n", err)
		}
		rootCtx = telemetry.StartCommand(rootCtx, cmd.CommandPath())

		if noWorkspaceCommands[cmd.Name()] {
			return
		}
		openWorkspace(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		telemetry.EndCommand(context.Background(), 0)
		telemetry.Shutdown(context.Background())
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyConfigDefaults lets config (file or PP_* env) switch on global flags
// that were not given on the command line. It runs again once the workspace
// config is loaded, so it must only read flags, never its own earlier result.
func applyConfigDefaults(cmd *cobra.Command) {
	flags := cmd.Flags()
	if !flags.Changed("json") {
		jsonOutput = config.GetBool("json")
	}
	if !flags.Changed("verbose") {
		verboseFlag = config.GetBool("verbose")
	}
	if !flags.Changed("quiet") {
		quietFlag = config.GetBool("quiet")
	}
}

// applyVerbosityFlags propagates --verbose and --quiet to the debug package.
// JSON output implies quiet so stdout carries nothing but the document.
func applyVerbosityFlags() {
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag || jsonOutput)
}

// openWorkspace resolves the root: --root, then PP_ROOT, then the nearest
// ancestor containing application/, then the git toplevel. The config is then
// reloaded from that root, which may not contain the working directory.
func openWorkspace(cmd *cobra.Command) {
	root := rootFlag
	if root == "" {
		root = os.Getenv("PP_ROOT")
	}

	var err error
	switch {
	case root != "":
		ws, err = workspace.Open(root, "")
	default:
		ws, err = discoverWorkspace()
	}
	if err != nil {
		FatalErrorWithHint(fmt.Sprintf("%s: %v", cmd.CommandPath(), err),
			"run pp inside a PlatformPlatform checkout, or pass --root / set PP_ROOT")
	}

	if err := config.InitializeAt(ws.Root); err != nil {
		WarnError("failed to read workspace config: %v", err)
	}
	ws.SolutionName = config.GetString("solution-name")
	applyConfigDefaults(cmd)
	applyVerbosityFlags()

	debug.SetEventLogDir(ws.StatePath())
	debug.LogEvent("COMMAND", cmd.CommandPath(), ws.Root)
	debug.Logf("workspace: %s\n", ws.Root)
}

func discoverWorkspace() (*workspace.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	w, err := workspace.Discover(cwd, "")
	if err == nil {
		return w, nil
	}
	top, gitErr := git.New(runner, cwd).Root(rootCtx)
	if gitErr != nil {
		return nil, err
	}
	return workspace.Open(filepath.Clean(top), "")
}

// mustWorkspace returns the workspace opened by the pre-run.
func mustWorkspace() *workspace.Workspace {
	if ws == nil {
		FatalErrorWithHint("not inside a PlatformPlatform workspace", "pass --root or set PP_ROOT")
	}
	return ws
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
