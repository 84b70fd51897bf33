package main

import (
	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/devcert"
	"github.com/platformplatform/developer-cli/internal/ui"
)

var devCertCmd = &cobra.Command{
	Use:     "dev-cert",
	GroupID: GroupSetup,
	Short:   "Check and repair the localhost HTTPS certificate",
	Long: `Dev-cert checks that the localhost development certificate exists, is
trusted, and opens with the password stored in the AppHost user secrets.
A broken certificate is recreated; --force recreates a healthy one too.`,
	Run: func(cmd *cobra.Command, args []string) {
		requireTools("dotnet", "openssl")
		force, _ := cmd.Flags().GetBool("force")

		m, err := newDevCertManager(mustWorkspace())
		if err != nil {
			FatalError("%v", err)
		}
		created, st, err := m.Ensure(rootCtx, force)
		if err != nil {
			FatalErrorWithHint(err.Error(), "run 'dotnet dev-certs https --clean' and try again")
		}
		if jsonOutput {
			outputJSON(struct {
				devcert.Status
				Created bool `json:"created"`
			}{st, created})
			return
		}
		printCertStatus(st, created)
	},
}

func init() {
	devCertCmd.Flags().Bool("force", false, "Recreate the certificate even when it is healthy")
	rootCmd.AddCommand(devCertCmd)
}

func printCertStatus(st devcert.Status, created bool) {
	check := func(ok bool, label string) {
		icon := ui.RenderPassIcon()
		if !ok {
			icon = ui.RenderFailIcon()
		}
		debug.PrintNormal("  %s %s\n", icon, label)
	}
	debug.PrintNormal("%s %s\n", ui.RenderCategory("Certificate"), ui.RenderMuted(st.Path))
	check(st.Exists, "file exists")
	check(st.PasswordStored, "password stored in user secrets")
	check(st.PasswordValid, "password opens the certificate")
	check(st.Trusted, "trusted by the system")
	switch {
	case created:
		debug.PrintNormal("%s Created a new development certificate\n", ui.RenderPassIcon())
	case st.OK():
		debug.PrintNormal("%s Development certificate is healthy\n", ui.RenderPassIcon())
	default:
		debug.PrintNormal("%s %s\n", ui.RenderWarnIcon(), st.Problem())
	}
}
