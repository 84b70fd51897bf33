// Package sarif reads the SARIF reports JetBrains inspectcode writes.
package sarif

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

type document struct {
	Version string `json:"version"`
	Runs    []run  `json:"runs"`
}

type run struct {
	Tool struct {
		Driver struct {
			Name  string `json:"name"`
			Rules []struct {
				ID               string  `json:"id"`
				ShortDescription message `json:"shortDescription"`
			} `json:"rules"`
		} `json:"driver"`
	} `json:"tool"`
	Results []struct {
		RuleID    string  `json:"ruleId"`
		Level     string  `json:"level"`
		Message   message `json:"message"`
		Locations []struct {
			PhysicalLocation struct {
				ArtifactLocation struct {
					URI string `json:"uri"`
				} `json:"artifactLocation"`
				Region struct {
					StartLine   int `json:"startLine"`
					StartColumn int `json:"startColumn"`
				} `json:"region"`
			} `json:"physicalLocation"`
		} `json:"locations"`
	} `json:"results"`
}

type message struct {
	Text string `json:"text"`
}

// Issue is one finding.
type Issue struct {
	RuleID  string `json:"rule_id"`
	Level   string `json:"level"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Location renders file:line:column.
func (i Issue) Location() string {
	switch {
	case i.File == "":
		return ""
	case i.Line == 0:
		return i.File
	case i.Column == 0:
		return fmt.Sprintf("%s:%d", i.File, i.Line)
	}
	return fmt.Sprintf("%s:%d:%d", i.File, i.Line, i.Column)
}

// Report is every issue in a SARIF file.
type Report struct {
	Tool         string
	Issues       []Issue
	descriptions map[string]string
}

// Parse decodes a SARIF document. A missing level means "warning", as the
// format specifies.
func Parse(data []byte) (*Report, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse SARIF: %w", err)
	}
	r := &Report{descriptions: map[string]string{}}
	for _, run := range doc.Runs {
		if r.Tool == "" {
			r.Tool = run.Tool.Driver.Name
		}
		for _, rule := range run.Tool.Driver.Rules {
			r.descriptions[rule.ID] = rule.ShortDescription.Text
		}
		for _, res := range run.Results {
			issue := Issue{RuleID: res.RuleID, Level: res.Level, Message: res.Message.Text}
			if issue.Level == "" {
				issue.Level = "warning"
			}
			if len(res.Locations) > 0 {
				loc := res.Locations[0].PhysicalLocation
				issue.File = strings.TrimPrefix(loc.ArtifactLocation.URI, "file://")
				issue.Line = loc.Region.StartLine
				issue.Column = loc.Region.StartColumn
			}
			r.Issues = append(r.Issues, issue)
		}
	}
	return r, nil
}

// ParseFile reads and parses path.
func ParseFile(path string) (*Report, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- report written by inspectcode
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// RuleGroup aggregates issues of one rule.
type RuleGroup struct {
	RuleID      string  `json:"rule_id"`
	Level       string  `json:"level"`
	Description string  `json:"description,omitempty"`
	Issues      []Issue `json:"issues"`
}

var levelOrder = map[string]int{"error": 0, "warning": 1, "note": 2, "none": 3}

// Groups returns issues grouped by rule, most severe level first, then by
// count.
func (r *Report) Groups() []RuleGroup {
	byRule := map[string]*RuleGroup{}
	var order []string
	for _, i := range r.Issues {
		g, ok := byRule[i.RuleID]
		if !ok {
			g = &RuleGroup{RuleID: i.RuleID, Level: i.Level, Description: r.descriptions[i.RuleID]}
			byRule[i.RuleID] = g
			order = append(order, i.RuleID)
		}
		if levelOrder[i.Level] < levelOrder[g.Level] {
			g.Level = i.Level
		}
		g.Issues = append(g.Issues, i)
	}
	out := make([]RuleGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *byRule[id])
	}
	sort.SliceStable(out, func(a, b int) bool {
		if levelOrder[out[a].Level] != levelOrder[out[b].Level] {
			return levelOrder[out[a].Level] < levelOrder[out[b].Level]
		}
		if len(out[a].Issues) != len(out[b].Issues) {
			return len(out[a].Issues) > len(out[b].Issues)
		}
		return out[a].RuleID < out[b].RuleID
	})
	return out
}

// CountByLevel counts issues per level.
func (r *Report) CountByLevel() map[string]int {
	out := map[string]int{}
	for _, i := range r.Issues {
		out[i.Level]++
	}
	return out
}
