package testsummary

import (
	"regexp"
	"strings"
)

var (
	playwrightCountRe   = regexp.MustCompile(`^\s*(\d+) (passed|failed|flaky|skipped|did not run|interrupted)\b`)
	playwrightFailureRe = regexp.MustCompile(`^\s*\d+\) \[(\w+)\] › (.+)$`)
	playwrightListRe    = regexp.MustCompile(`^\s*\[(\w+)\] › (.+)$`)
)

// PlaywrightSummary is the outcome of `playwright test`.
type PlaywrightSummary struct {
	Passed      int                `json:"passed"`
	Failed      int                `json:"failed"`
	Flaky       int                `json:"flaky"`
	Skipped     int                `json:"skipped"`
	DidNotRun   int                `json:"did_not_run"`
	Interrupted int                `json:"interrupted"`
	FailedTests []PlaywrightFailed `json:"failed_tests,omitempty"`
}

// PlaywrightFailed names a failing test and the browser project it ran in.
type PlaywrightFailed struct {
	Browser string `json:"browser"`
	Title   string `json:"title"`
}

// Success is true when nothing failed or was interrupted. Flaky tests pass.
func (s PlaywrightSummary) Success() bool {
	return s.Failed == 0 && s.Interrupted == 0
}

// Total counts every test Playwright reported on.
func (s PlaywrightSummary) Total() int {
	return s.Passed + s.Failed + s.Flaky + s.Skipped + s.DidNotRun + s.Interrupted
}

// Add merges another run, used when tests run once per system.
func (s *PlaywrightSummary) Add(o PlaywrightSummary) {
	s.Passed += o.Passed
	s.Failed += o.Failed
	s.Flaky += o.Flaky
	s.Skipped += o.Skipped
	s.DidNotRun += o.DidNotRun
	s.Interrupted += o.Interrupted
	s.FailedTests = append(s.FailedTests, o.FailedTests...)
}

// Playwright accumulates the list reporter's output.
type Playwright struct {
	summary PlaywrightSummary
	seen    map[string]bool
	// current tally block ("failed", "flaky", ...) in the closing summary
	section string
}

// NewPlaywright returns an empty parser.
func NewPlaywright() *Playwright {
	return &Playwright{seen: make(map[string]bool)}
}

// ParsePlaywright runs a whole output through a new parser.
func ParsePlaywright(output string) PlaywrightSummary {
	p := NewPlaywright()
	for _, line := range strings.Split(output, "\n") {
		p.Feed(line)
	}
	return p.Summary()
}

// Feed consumes one line of output.
func (p *Playwright) Feed(line string) {
	line = strings.TrimRight(line, "\r")

	if m := playwrightFailureRe.FindStringSubmatch(line); m != nil {
		p.addFailure(m[1], m[2])
		return
	}
	if m := playwrightCountRe.FindStringSubmatch(line); m != nil {
		p.section = m[2]
		n := atoi(m[1])
		switch m[2] {
		case "passed":
			p.summary.Passed = n
		case "failed":
			p.summary.Failed = n
		case "flaky":
			p.summary.Flaky = n
		case "skipped":
			p.summary.Skipped = n
		case "did not run":
			p.summary.DidNotRun = n
		case "interrupted":
			p.summary.Interrupted = n
		}
		return
	}
	// The tally repeats failed tests without the "N)" prefix.
	if p.section == "failed" {
		if m := playwrightListRe.FindStringSubmatch(line); m != nil {
			p.addFailure(m[1], m[2])
		}
	}
}

// addFailure records a failed test once. Numbered headings are padded with a
// "───" rule that the closing tally omits, so it is cut before comparing.
func (p *Playwright) addFailure(browser, title string) {
	title = strings.TrimSpace(strings.TrimRight(title, "─ \t"))
	key := browser + "|" + title
	if p.seen[key] {
		return
	}
	p.seen[key] = true
	p.summary.FailedTests = append(p.summary.FailedTests, PlaywrightFailed{Browser: browser, Title: title})
}

// Summary returns the counts seen so far.
func (p *Playwright) Summary() PlaywrightSummary {
	s := p.summary
	s.FailedTests = append([]PlaywrightFailed(nil), p.summary.FailedTests...)
	return s
}

// Filter keeps failure headings, tallies and error lines.
func (p *Playwright) Filter(line string) bool {
	t := strings.TrimSpace(line)
	switch {
	case t == "":
		return false
	case playwrightFailureRe.MatchString(line), playwrightCountRe.MatchString(line):
		return true
	case strings.HasPrefix(t, "Error:"), strings.HasPrefix(t, "Running "):
		return true
	}
	return false
}
