package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/prereq"
	"github.com/platformplatform/developer-cli/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: GroupSetup,
	Short:   "Check that the required tools are installed",
	Long: `Doctor runs '<tool> --version' for every tool pp wraps and compares the
result with the minimum supported version. It exits non-zero when anything
needs attention.`,
	Run: func(cmd *cobra.Command, args []string) {
		statuses := prereq.NewChecker(runner).CheckAll(rootCtx, prereq.DoctorTools...)
		problems := countProblems(statuses)
		if jsonOutput {
			code := 0
			if problems > 0 {
				code = 1
			}
			outputJSONResult(map[string]interface{}{"tools": statuses, "problems": problems}, code)
			return
		}
		fmt.Println(renderDoctor(statuses))
		if problems == 0 {
			debug.PrintNormal("%s All prerequisites are installed\n", ui.RenderPassIcon())
			return
		}
		for _, s := range statuses {
			if !s.OK && s.Hint != "" {
				debug.PrintNormal("  %s %s: %s\n", ui.RenderInfoIcon(), s.Name, s.Hint)
			}
		}
		exit(1)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func countProblems(statuses []prereq.Status) int {
	n := 0
	for _, s := range statuses {
		if !s.OK {
			n++
		}
	}
	return n
}

func renderDoctor(statuses []prereq.Status) string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		status := statusOK
		detail := s.Version
		if !s.OK {
			status = statusError
			detail = s.Problem
		}
		rows = append(rows, []string{ui.StatusIcon(status) + " " + s.Name, detail, ">= " + s.Min})
	}
	return ui.RenderTable([]string{"Tool", "Version", "Required"}, rows)
}
