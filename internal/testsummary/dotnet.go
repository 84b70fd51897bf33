// Package testsummary interprets the console output of test runners.
//
// The parsers are streaming: feed lines as the runner prints them and ask for
// the Summary at the end. Filter reports which lines are worth echoing when
// the user did not ask for the full output.
package testsummary

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	testLineRe     = regexp.MustCompile(`^\s*(Passed|Failed|Skipped)\s+(\S.*?)\s+\[([^\]]+)\]\s*$`)
	vstestTotalsRe = regexp.MustCompile(`(Passed|Failed)!\s+-\s+Failed:\s+(\d+),\s+Passed:\s+(\d+),\s+Skipped:\s+(\d+),\s+Total:\s+(\d+)(?:,\s+Duration:\s+(.+?)(?:\s+-|$))?`)
	mtpSummaryRe   = regexp.MustCompile(`Test summary:\s+total:\s+(\d+),\s+failed:\s+(\d+),\s+succeeded:\s+(\d+),\s+skipped:\s+(\d+),\s+duration:\s+(\S+)`)
	buildErrorRe   = regexp.MustCompile(`: error [A-Z]+\d+:`)
	buildWarningRe = regexp.MustCompile(`: warning [A-Z]+\d+:`)
	msbuildSuffix  = regexp.MustCompile(`\s+\[[^\]]+\.(?:cs|fs|vb)proj(?:::TargetFramework=[^\]]+)?\]\s*$`)
)

// FailedTest is one failing test with the message the runner printed for it.
type FailedTest struct {
	Name     string `json:"name"`
	Duration string `json:"duration,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Summary is the outcome of a test run.
type Summary struct {
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Total       int           `json:"total"`
	Duration    time.Duration `json:"duration_ns,omitempty"`
	FailedTests []FailedTest  `json:"failed_tests,omitempty"`
	BuildErrors []string      `json:"build_errors,omitempty"`
}

// Success is true when nothing failed and the build compiled.
func (s Summary) Success() bool {
	return s.Failed == 0 && len(s.BuildErrors) == 0
}

// Dotnet accumulates `dotnet test` output.
type Dotnet struct {
	// per-test counters, used when no totals line was seen
	passed, failed, skipped int

	// totals lines, summed across assemblies
	totals                             bool
	tPassed, tFailed, tSkipped, tTotal int
	duration                           time.Duration

	failedTests []FailedTest
	current     *FailedTest
	inMessage   bool
	message     []string

	buildErrors []string
	seenErrors  map[string]bool
}

// NewDotnet returns an empty parser.
func NewDotnet() *Dotnet {
	return &Dotnet{seenErrors: make(map[string]bool)}
}

// ParseDotnet runs a whole output through a new parser.
func ParseDotnet(output string) Summary {
	p := NewDotnet()
	for _, line := range strings.Split(output, "\n") {
		p.Feed(line)
	}
	return p.Summary()
}

// Feed consumes one line of output.
func (p *Dotnet) Feed(line string) {
	line = strings.TrimRight(line, "\r")

	if m := testLineRe.FindStringSubmatch(line); m != nil {
		p.closeMessage()
		switch m[1] {
		case "Passed":
			p.passed++
		case "Skipped":
			p.skipped++
		case "Failed":
			p.failed++
			p.failedTests = append(p.failedTests, FailedTest{Name: m[2], Duration: m[3]})
			p.current = &p.failedTests[len(p.failedTests)-1]
		}
		return
	}

	trimmed := strings.TrimSpace(line)
	if p.current != nil {
		switch {
		case trimmed == "Error Message:":
			p.inMessage = true
			return
		case trimmed == "Stack Trace:" || strings.HasPrefix(trimmed, "Standard Output Messages:"):
			p.closeMessage()
			return
		case p.inMessage && !isTotalsLine(line):
			if trimmed != "" {
				p.message = append(p.message, trimmed)
			}
			return
		}
	}

	if m := vstestTotalsRe.FindStringSubmatch(line); m != nil {
		p.closeMessage()
		p.totals = true
		p.tFailed += atoi(m[2])
		p.tPassed += atoi(m[3])
		p.tSkipped += atoi(m[4])
		p.tTotal += atoi(m[5])
		if m[6] != "" {
			p.duration += parseDuration(m[6])
		}
		return
	}

	if m := mtpSummaryRe.FindStringSubmatch(line); m != nil {
		p.closeMessage()
		p.totals = true
		p.tTotal += atoi(m[1])
		p.tFailed += atoi(m[2])
		p.tPassed += atoi(m[3])
		p.tSkipped += atoi(m[4])
		p.duration += parseDuration(m[5])
		return
	}

	if buildErrorRe.MatchString(line) {
		key := msbuildSuffix.ReplaceAllString(trimmed, "")
		if !p.seenErrors[key] {
			p.seenErrors[key] = true
			p.buildErrors = append(p.buildErrors, key)
		}
	}
}

// isTotalsLine matches the per-assembly or MTP summary, which ends an
// "Error Message:" block even when no "Stack Trace:" follows.
func isTotalsLine(line string) bool {
	return vstestTotalsRe.MatchString(line) || mtpSummaryRe.MatchString(line)
}

func (p *Dotnet) closeMessage() {
	if p.current != nil && len(p.message) > 0 {
		p.current.Message = strings.Join(p.message, "\n")
	}
	p.message = nil
	p.inMessage = false
	p.current = nil
}

// Summary returns what has been seen so far. Totals lines win over per-test
// counts.
func (p *Dotnet) Summary() Summary {
	p.closeMessage()
	s := Summary{
		Passed:      p.passed,
		Failed:      p.failed,
		Skipped:     p.skipped,
		Total:       p.passed + p.failed + p.skipped,
		Duration:    p.duration,
		FailedTests: append([]FailedTest(nil), p.failedTests...),
		BuildErrors: append([]string(nil), p.buildErrors...),
	}
	if p.totals {
		s.Passed, s.Failed, s.Skipped, s.Total = p.tPassed, p.tFailed, p.tSkipped, p.tTotal
	}
	return s
}

// Filter reports whether a line should be shown when output is condensed:
// failures, their messages, build errors and summary lines.
func (p *Dotnet) Filter(line string) bool {
	t := strings.TrimSpace(line)
	switch {
	case t == "":
		return false
	case strings.HasPrefix(t, "Failed "), strings.HasPrefix(t, "Failed!"), strings.HasPrefix(t, "Passed!"):
		return true
	case t == "Error Message:" || (p.inMessage && p.current != nil):
		return true
	case buildErrorRe.MatchString(line):
		return true
	case mtpSummaryRe.MatchString(line), strings.HasPrefix(t, "Test summary:"):
		return true
	case strings.HasPrefix(t, "error "), strings.Contains(t, "Build FAILED"):
		return true
	}
	return false
}

// BuildDiagnostics collects deduplicated compiler errors and warnings from
// `dotnet build` output.
func BuildDiagnostics(output string) (errs, warnings []string) {
	seen := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		var bucket *[]string
		switch {
		case buildErrorRe.MatchString(line):
			bucket = &errs
		case buildWarningRe.MatchString(line):
			bucket = &warnings
		default:
			continue
		}
		key := msbuildSuffix.ReplaceAllString(line, "")
		if seen[key] {
			continue
		}
		seen[key] = true
		*bucket = append(*bucket, key)
	}
	return errs, warnings
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// parseDuration understands "1.2s", "350 ms", "2m 3s" and "00:00:01.23".
func parseDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(strings.ReplaceAll(s, " ", "")); err == nil {
		return d
	}
	parts := strings.Split(s, ":")
	if len(parts) == 3 {
		h, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		sec, _ := strconv.ParseFloat(parts[2], 64)
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second))
	}
	return 0
}
