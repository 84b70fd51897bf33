package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/airules"
	"github.com/platformplatform/developer-cli/internal/config"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

var aiRulesCmd = &cobra.Command{
	Use:     "ai-rules",
	GroupID: GroupSetup,
	Short:   "Convert AI assistant rules between tool formats",
	Long: `The rules in .cursor/rules are the source of truth. 'pp ai-rules sync'
converts them into the formats of the other assistants (Windsurf, Claude)
so every tool follows the same guidance.`,
}

var aiRulesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Write every rule in each target format",
	Run: func(cmd *cobra.Command, args []string) {
		w := mustWorkspace()
		target, _ := cmd.Flags().GetString("target")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		watch, _ := cmd.Flags().GetBool("watch")

		targets, err := loadRuleTargets(w, target)
		if err != nil {
			FatalError("%v", err)
		}
		syncer := &airules.Syncer{Root: w.Root, Source: rulesSource(), DryRun: dryRun}

		report, err := syncer.Sync(targets)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput && !watch {
			outputJSON(report)
			return
		}
		printSyncReport(report)
		if !watch {
			return
		}

		var mu sync.Mutex
		dir := filepath.Join(w.Root, filepath.FromSlash(syncer.Source))
		debug.PrintNormal("%s Watching %s, press Ctrl+C to stop\n", ui.RenderInfoIcon(), syncer.Source)
		err = airules.Watch(rootCtx, dir, airules.DefaultDebounce, func() {
			mu.Lock()
			defer mu.Unlock()
			report, err := syncer.Sync(targets)
			if err != nil {
				WarnError("%v", err)
				return
			}
			if jsonOutput {
				outputJSON(report)
				return
			}
			printSyncReport(report)
		}, func(err error) {
			WarnError("watch: %v", err)
		})
		if err != nil {
			FatalError("%v", err)
		}
	},
}

var aiRulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the source rules and how they are triggered",
	Run: func(cmd *cobra.Command, args []string) {
		rules := loadSourceRules(mustWorkspace())
		if jsonOutput {
			outputJSON(ruleListing(rules))
			return
		}
		if len(rules) == 0 {
			debug.PrintNormal("No rules in %s\n", rulesSource())
			return
		}
		rows := make([][]string, 0, len(rules))
		for _, r := range rules {
			kind := "rule"
			if r.Workflow {
				kind = "workflow"
			}
			rows = append(rows, []string{r.Name(), kind, string(r.Trigger()), ui.TruncateSimple(r.Description, 60)})
		}
		fmt.Println(ui.RenderTable([]string{"Name", "Kind", "Trigger", "Description"}, rows))
	},
}

var aiRulesShowCmd = &cobra.Command{
	Use:   "show <rule>",
	Short: "Render one source rule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rules := loadSourceRules(mustWorkspace())
		r, ok := airules.FindRule(rules, args[0])
		if !ok {
			FatalErrorWithHint(fmt.Sprintf("no rule named %q", args[0]), "run 'pp ai-rules list' to see the rules")
		}
		if jsonOutput {
			outputJSON(ruleListing([]airules.Rule{r})[0])
			return
		}
		noPager, _ := cmd.Flags().GetBool("no-pager")
		if err := ui.ToPager(renderRule(r), ui.PagerOptions{NoPager: noPager}); err != nil {
			FatalError("%v", err)
		}
	},
}

func init() {
	aiRulesSyncCmd.Flags().String("target", "", "Only this target (windsurf, claude, or one from .pp/ai-rules.toml)")
	aiRulesSyncCmd.Flags().Bool("dry-run", false, "Report changes without writing")
	aiRulesSyncCmd.Flags().Bool("watch", false, "Keep running and sync whenever a source rule changes")
	aiRulesShowCmd.Flags().Bool("no-pager", false, "Print directly instead of using a pager")

	aiRulesCmd.AddCommand(aiRulesSyncCmd, aiRulesListCmd, aiRulesShowCmd)
	rootCmd.AddCommand(aiRulesCmd)
}

func rulesSource() string {
	return strings.Trim(filepath.ToSlash(config.GetString("ai-rules.source")), "/")
}

func loadRuleTargets(w *workspace.Workspace, name string) ([]airules.NamedTarget, error) {
	all, err := airules.LoadTargets(w.StatePath())
	if err != nil {
		return nil, err
	}
	return airules.SelectTargets(all, name)
}

func loadSourceRules(w *workspace.Workspace) []airules.Rule {
	rules, err := airules.LoadRules(filepath.Join(w.Root, filepath.FromSlash(rulesSource())))
	if err != nil {
		FatalError("%v", err)
	}
	return rules
}

type ruleInfo struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	Workflow    bool     `json:"workflow"`
	Trigger     string   `json:"trigger"`
	Description string   `json:"description,omitempty"`
	Globs       []string `json:"globs,omitempty"`
	Body        string   `json:"body,omitempty"`
}

func ruleListing(rules []airules.Rule) []ruleInfo {
	out := make([]ruleInfo, 0, len(rules))
	for _, r := range rules {
		out = append(out, ruleInfo{
			Name:        r.Name(),
			Path:        rulesSource() + "/" + r.RelPath,
			Workflow:    r.Workflow,
			Trigger:     string(r.Trigger()),
			Description: r.Description,
			Globs:       r.Globs,
			Body:        string(r.Body),
		})
	}
	return out
}

func renderRule(r airules.Rule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Name())
	fmt.Fprintf(&b, "- **Trigger:** %s\n", r.Trigger())
	if r.Description != "" {
		fmt.Fprintf(&b, "- **Description:** %s\n", r.Description)
	}
	if len(r.Globs) > 0 {
		fmt.Fprintf(&b, "- **Globs:** `%s`\n", strings.Join(r.Globs, "`, `"))
	}
	b.WriteString("\n---\n\n")
	b.Write(r.Body)
	return ui.RenderMarkdown(b.String())
}

func printSyncReport(r *airules.Report) {
	verb := "Synced"
	if r.DryRun {
		verb = "Would sync"
	}
	for _, c := range r.Changes {
		icon := ui.RenderPassIcon()
		if c.Action == airules.ActionRemoved {
			icon = ui.RenderWarnIcon()
		}
		debug.PrintNormal("  %s %-8s %s %s\n", icon, c.Action, c.Path, ui.RenderMuted("("+c.Target+")"))
	}
	debug.PrintNormal("%s %s %d %s: %d changed, %d unchanged\n", ui.RenderInfoIcon(), verb, r.Rules,
		ui.Pluralize(r.Rules, "rule", "rules"), len(r.Changes), r.Unchanged)
}
