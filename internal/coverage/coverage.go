// Package coverage summarizes Cobertura reports produced by coverlet.
package coverage

import (
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileName is what the XPlat Code Coverage collector writes.
const FileName = "coverage.cobertura.xml"

type cobertura struct {
	LineRate        float64 `xml:"line-rate,attr"`
	BranchRate      float64 `xml:"branch-rate,attr"`
	LinesCovered    int     `xml:"lines-covered,attr"`
	LinesValid      int     `xml:"lines-valid,attr"`
	BranchesCovered int     `xml:"branches-covered,attr"`
	BranchesValid   int     `xml:"branches-valid,attr"`
	Packages        []struct {
		Name       string  `xml:"name,attr"`
		LineRate   float64 `xml:"line-rate,attr"`
		BranchRate float64 `xml:"branch-rate,attr"`
	} `xml:"packages>package"`
}

// Package is per-assembly coverage.
type Package struct {
	Name       string  `json:"name"`
	LineRate   float64 `json:"line_rate"`
	BranchRate float64 `json:"branch_rate"`
}

// Summary aggregates one or more reports.
type Summary struct {
	LinesCovered    int       `json:"lines_covered"`
	LinesValid      int       `json:"lines_valid"`
	BranchesCovered int       `json:"branches_covered"`
	BranchesValid   int       `json:"branches_valid"`
	Packages        []Package `json:"packages"`
	Reports         []string  `json:"reports"`
}

// LinePercent is covered lines as a percentage.
func (s Summary) LinePercent() float64 {
	return percent(s.LinesCovered, s.LinesValid)
}

// BranchPercent is covered branches as a percentage.
func (s Summary) BranchPercent() float64 {
	return percent(s.BranchesCovered, s.BranchesValid)
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) * 100 / float64(d)
}

// Parse adds one Cobertura document to s. Reports without absolute counts
// contribute their rates as packages only.
func (s *Summary) Parse(data []byte, name string) error {
	var doc cobertura
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	s.LinesCovered += doc.LinesCovered
	s.LinesValid += doc.LinesValid
	s.BranchesCovered += doc.BranchesCovered
	s.BranchesValid += doc.BranchesValid
	for _, p := range doc.Packages {
		s.Packages = append(s.Packages, Package{Name: p.Name, LineRate: p.LineRate, BranchRate: p.BranchRate})
	}
	s.Reports = append(s.Reports, name)
	return nil
}

// FindReports returns every coverage.cobertura.xml below dir.
func FindReports(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "node_modules" {
			return filepath.SkipDir
		}
		if !d.IsDir() && d.Name() == FileName {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s for coverage reports: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

// Load parses every report in paths.
func Load(paths []string) (*Summary, error) {
	s := &Summary{}
	for _, p := range paths {
		data, err := os.ReadFile(p) // #nosec G304 -- report found under the workspace
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		if err := s.Parse(data, p); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(s.Packages, func(i, j int) bool { return s.Packages[i].Name < s.Packages[j].Name })
	return s, nil
}
