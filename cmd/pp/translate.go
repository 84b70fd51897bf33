package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/config"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/po"
	"github.com/platformplatform/developer-cli/internal/translate"
	"github.com/platformplatform/developer-cli/internal/ui"
	"github.com/platformplatform/developer-cli/internal/workspace"
)

var translateCmd = &cobra.Command{
	Use:     "translate",
	GroupID: GroupDevelop,
	Short:   "Fill in missing translations in the PO files",
	Long: `Translate finds the entries with an empty msgstr in every
translations/locale/<locale>.po file and asks a language model for them.
Placeholders such as {name} and <0>...</0> must survive; entries where they
do not are left empty and reported. The source locale is never changed.`,
	Run: func(cmd *cobra.Command, args []string) {
		w := mustWorkspace()
		opts := translateOptionsFromFlags(cmd)

		files, err := catalogs(w, opts.Locales, opts.SourceLocale)
		if err != nil {
			FatalError("%v", err)
		}
		if len(files) == 0 {
			FatalErrorWithHint("no translation files found", "PO files live in <system>/WebApp/**/translations/locale/")
		}

		var tr translate.Translator
		if !opts.DryRun {
			if opts.Provider.Name == translate.ProviderOllama || opts.Provider.Name == "" {
				requireTools("ollama")
			}
			tr, err = translate.NewProvider(rootCtx, runner, opts.Provider)
			if err != nil {
				FatalErrorWithHint(err.Error(), "use --provider anthropic with ANTHROPIC_API_KEY set, or install ollama")
			}
		}

		results, err := translateCatalogs(rootCtx, tr, w, files, opts)
		if jsonOutput {
			outputJSONResult(results, exitCodeOf(err))
			return
		}
		printTranslateResults(results, opts.DryRun)
		if err != nil {
			FatalError("%v", err)
		}
	},
}

func init() {
	translateCmd.Flags().StringSlice("locale", nil, "Only these locales, e.g. da-DK (default: all)")
	translateCmd.Flags().String("provider", "", "Translation provider: ollama or anthropic (default from config)")
	translateCmd.Flags().String("model", "", "Model for the provider (default from config)")
	translateCmd.Flags().Bool("dry-run", false, "Only count the missing translations")
	translateCmd.Flags().Int("concurrency", 0, "Entries translated at once (default from config)")
	rootCmd.AddCommand(translateCmd)
}

type translateOptions struct {
	Locales      []string
	SourceLocale string
	DryRun       bool
	Concurrency  int
	Provider     translate.ProviderConfig
}

func translateOptionsFromFlags(cmd *cobra.Command) translateOptions {
	f := cmd.Flags()
	opts := translateOptions{
		SourceLocale: config.GetString("translate.source-locale"),
		Concurrency:  config.GetInt("translate.concurrency"),
		Provider: translate.ProviderConfig{
			Name:           config.GetString("translate.provider"),
			OllamaModel:    config.GetString("translate.model"),
			AnthropicModel: config.GetString("translate.anthropic-model"),
		},
	}
	if opts.SourceLocale == "" {
		opts.SourceLocale = po.SourceLocale
	}
	opts.Locales, _ = f.GetStringSlice("locale")
	opts.DryRun, _ = f.GetBool("dry-run")
	if n, _ := f.GetInt("concurrency"); n > 0 {
		opts.Concurrency = n
	}
	if p, _ := f.GetString("provider"); p != "" {
		opts.Provider.Name = strings.ToLower(p)
	}
	if m, _ := f.GetString("model"); m != "" {
		if opts.Provider.Name == translate.ProviderAnthropic {
			opts.Provider.AnthropicModel = m
		} else {
			opts.Provider.OllamaModel = m
		}
	}
	return opts
}

// catalogs returns the PO files to translate, without the source locale.
func catalogs(w *workspace.Workspace, locales []string, source string) ([]string, error) {
	all, err := w.TranslationFiles()
	if err != nil {
		return nil, err
	}
	want := map[string]bool{}
	for _, l := range locales {
		want[strings.ToLower(l)] = true
	}
	var out []string
	for _, p := range all {
		locale := po.LocaleOf(p)
		if strings.EqualFold(locale, source) {
			continue
		}
		if len(want) > 0 && !want[strings.ToLower(locale)] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func translateCatalogs(ctx context.Context, tr translate.Translator, w *workspace.Workspace, files []string, opts translateOptions) ([]*translate.Result, error) {
	var results []*translate.Result
	for _, p := range files {
		f, err := po.ParseFile(p)
		if err != nil {
			return results, err
		}
		rel := w.Rel(p)
		res, err := translate.TranslateFile(ctx, tr, f, translate.Options{
			SourceLocale: opts.SourceLocale,
			Concurrency:  opts.Concurrency,
			DryRun:       opts.DryRun,
			Progress:     progressPrinter(rel),
		})
		if res != nil {
			res.Path = rel
			results = append(results, res)
		}
		if err != nil {
			return results, fmt.Errorf("%s: %w", rel, err)
		}
		debug.LogEvent("TRANSLATED", "translate", fmt.Sprintf("%s translated=%d failed=%d", rel, res.Translated, len(res.Failures)))
	}
	return results, nil
}

// progressPrinter redraws one status line per file on a terminal.
func progressPrinter(name string) func(done, total int) {
	if debug.IsQuiet() || !ui.IsTerminal() {
		return nil
	}
	return func(done, total int) {
		fmt.Fprintf(os.Stderr, "\r%s %s %d/%d", ui.RenderRunIcon(), name, done, total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func printTranslateResults(results []*translate.Result, dryRun bool) {
	rows := make([][]string, 0, len(results))
	var failures int
	for _, r := range results {
		rows = append(rows, []string{r.Locale, r.Path, strconv.Itoa(r.Missing), strconv.Itoa(r.Translated), strconv.Itoa(len(r.Failures))})
		failures += len(r.Failures)
	}
	debug.PrintNormal("%s\n", ui.RenderTable([]string{"Locale", "File", "Missing", "Translated", "Failed"}, rows))
	for _, r := range results {
		for _, f := range r.Failures {
			debug.PrintNormal("  %s %s %q: %s\n", ui.RenderWarnIcon(), r.Locale, ui.TruncateSimple(f.ID, 60), f.Err)
		}
	}
	switch {
	case dryRun:
		debug.PrintNormal("%s Dry run, no files changed\n", ui.RenderInfoIcon())
	case failures > 0:
		debug.PrintNormal("%s %d %s left untranslated, run again or translate by hand\n", ui.RenderWarnIcon(),
			failures, ui.Pluralize(failures, "entry", "entries"))
	default:
		debug.PrintNormal("%s Translations up to date\n", ui.RenderPassIcon())
	}
}
