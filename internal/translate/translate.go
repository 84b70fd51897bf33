// Package translate fills in missing PO translations with a language model.
package translate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/platformplatform/developer-cli/internal/po"
)

// ErrPlaceholders is returned when a translation dropped or invented a
// placeholder such as {name} or <0></0>.
var ErrPlaceholders = errors.New("translation does not preserve placeholders")

// Request is one string to translate.
type Request struct {
	Text string
	// Context is the msgctxt and translator comments, if any.
	Context      string
	SourceLocale string
	TargetLocale string
}

// Translator turns a request into translated text.
type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)
}

var placeholderRe = regexp.MustCompile(`\{[^{}\s]+\}|</?\d+/?>`)

// Placeholders returns the sorted interpolation tokens in s.
func Placeholders(s string) []string {
	found := placeholderRe.FindAllString(s, -1)
	slices.Sort(found)
	return found
}

// CheckPlaceholders verifies that translated carries exactly the tokens of
// source.
func CheckPlaceholders(source, translated string) error {
	want, got := Placeholders(source), Placeholders(translated)
	if !slices.Equal(want, got) {
		return fmt.Errorf("%w: want %v, got %v", ErrPlaceholders, want, got)
	}
	return nil
}

// Prompt is the instruction sent to text-completion providers.
func Prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following user interface text from %s to %s.\n", req.SourceLocale, req.TargetLocale)
	b.WriteString("Keep placeholders such as {name} and tags such as <0></0> exactly as they are.\n")
	b.WriteString("Reply with the translation only, without quotes or explanations.\n")
	if req.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", req.Context)
	}
	fmt.Fprintf(&b, "\nText:\n%s\n", req.Text)
	return b.String()
}

// clean strips wrapping a model tends to add around a one-line answer.
func clean(out, source string) string {
	out = strings.TrimSpace(out)
	if !strings.Contains(source, "\n") {
		if i := strings.IndexByte(out, '\n'); i >= 0 {
			out = strings.TrimSpace(out[:i])
		}
	}
	for _, q := range []string{`"`, "'", "`", "“"} {
		end := q
		if q == "“" {
			end = "”"
		}
		if len(out) >= len(q)+len(end) && strings.HasPrefix(out, q) && strings.HasSuffix(out, end) &&
			!strings.HasPrefix(source, q) {
			out = strings.TrimSpace(out[len(q) : len(out)-len(end)])
		}
	}
	return out
}

// Failure is an entry that was left untranslated.
type Failure struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}

// Result summarizes one catalog.
type Result struct {
	Path       string    `json:"path"`
	Locale     string    `json:"locale"`
	Missing    int       `json:"missing"`
	Translated int       `json:"translated"`
	Failures   []Failure `json:"failures,omitempty"`
}

// Options controls TranslateFile.
type Options struct {
	SourceLocale string
	Concurrency  int
	DryRun       bool
	// Progress is called after each entry, from worker goroutines.
	Progress func(done, total int)
}

// TranslateFile translates the untranslated entries of f and saves it unless
// DryRun is set. Entries whose translation fails or breaks placeholders are
// left empty and reported in Result.Failures; only context cancellation and
// write errors abort.
func TranslateFile(ctx context.Context, tr Translator, f *po.File, opts Options) (*Result, error) {
	res := &Result{Path: f.Path, Locale: f.Locale()}
	if res.Locale == opts.SourceLocale {
		return res, nil
	}
	entries := f.Untranslated()
	res.Missing = len(entries)
	if len(entries) == 0 || opts.DryRun {
		return res, nil
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	done := 0
	for _, e := range entries {
		g.Go(func() error {
			translated, err := translateEntry(gctx, tr, e, res.Locale, opts.SourceLocale)

			mu.Lock()
			defer mu.Unlock()
			done++
			if opts.Progress != nil {
				opts.Progress(done, len(entries))
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res.Failures = append(res.Failures, Failure{ID: e.ID, Err: err.Error()})
				return nil
			}
			if e.IDPlural != "" {
				n := len(e.StrPlural)
				if n == 0 {
					n = 2
				}
				for i := 0; i < n; i++ {
					e.SetStrPlural(i, translated[min(i, len(translated)-1)])
				}
			} else {
				e.SetStr(translated[0])
			}
			res.Translated++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	slices.SortFunc(res.Failures, func(a, b Failure) int { return strings.Compare(a.ID, b.ID) })
	if f.Dirty() {
		if err := f.Save(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// translateEntry returns one translation, or singular and plural forms for a
// plural entry.
func translateEntry(ctx context.Context, tr Translator, e *po.Entry, locale, source string) ([]string, error) {
	texts := []string{e.ID}
	if e.IDPlural != "" {
		texts = append(texts, e.IDPlural)
	}
	out := make([]string, 0, len(texts))
	for _, text := range texts {
		got, err := tr.Translate(ctx, Request{
			Text:         text,
			Context:      entryContext(e),
			SourceLocale: source,
			TargetLocale: locale,
		})
		if err != nil {
			return nil, err
		}
		got = clean(got, text)
		if got == "" {
			return nil, errors.New("empty translation")
		}
		if err := CheckPlaceholders(text, got); err != nil {
			return nil, err
		}
		out = append(out, got)
	}
	return out, nil
}

func entryContext(e *po.Entry) string {
	var parts []string
	if e.HasContext {
		parts = append(parts, e.Context)
	}
	for _, c := range e.Comments {
		if rest, ok := strings.CutPrefix(c, "#."); ok {
			parts = append(parts, strings.TrimSpace(rest))
		}
	}
	return strings.Join(parts, "; ")
}
