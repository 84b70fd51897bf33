package airules

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// Converter renders rules for one target.
type Converter struct {
	// Source is the slash-separated source dir relative to the workspace
	// root, e.g. ".cursor/rules".
	Source string
	Target Target

	linkRe *regexp.Regexp
}

// NewConverter prepares link rewriting for source.
func NewConverter(source string, target Target) *Converter {
	source = strings.Trim(strings.ReplaceAll(source, "\\", "/"), "/")
	return &Converter{
		Source: source,
		Target: target,
		linkRe: regexp.MustCompile(`(?:\./|/)?` + regexp.QuoteMeta(source) + `/([A-Za-z0-9_./-]+?)\` + SourceExt),
	}
}

// Convert returns the output path and file content for r. ok is false when
// the target has nowhere to put this kind of rule.
func (c *Converter) Convert(r Rule) (outPath string, content []byte, ok bool, err error) {
	outPath, ok = c.Target.PathFor(r)
	if !ok {
		return "", nil, false, nil
	}

	fieldNames := c.Target.RuleFields
	if r.Workflow {
		fieldNames = c.Target.WorkflowFields
	}
	fields := make([]field, 0, len(fieldNames))
	for _, name := range fieldNames {
		f, err := c.fieldValue(r, name)
		if err != nil {
			return "", nil, false, fmt.Errorf("%s: %w", r.RelPath, err)
		}
		fields = append(fields, f)
	}

	header, err := renderFrontmatter(fields)
	if err != nil {
		return "", nil, false, fmt.Errorf("%s: %w", r.RelPath, err)
	}

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(c.RewriteLinks(r.Body))
	return outPath, buf.Bytes(), true, nil
}

func (c *Converter) fieldValue(r Rule, name string) (field, error) {
	switch name {
	case FieldTrigger:
		return field{name, string(r.Trigger())}, nil
	case FieldDescription:
		return field{name, r.Description}, nil
	case FieldGlobs:
		// only meaningful when the rule is glob-triggered
		if r.Trigger() != TriggerGlob {
			return field{name, ""}, nil
		}
		return field{name, strings.Join(r.Globs, ",")}, nil
	case FieldPaths:
		if r.Trigger() != TriggerGlob {
			return field{name, []string(nil)}, nil
		}
		return field{name, r.Globs}, nil
	case FieldAlwaysApply:
		return field{name, r.AlwaysApply}, nil
	}
	return field{}, fmt.Errorf("unknown frontmatter field %q", name)
}

// RewriteLinks points references to other source rules at their converted
// location. Links to rules the target cannot hold are left alone.
func (c *Converter) RewriteLinks(body []byte) []byte {
	return c.linkRe.ReplaceAllFunc(body, func(match []byte) []byte {
		sub := c.linkRe.FindSubmatch(match)
		rel := string(sub[1]) + SourceExt
		p, ok := c.Target.PathFor(Rule{RelPath: rel, Workflow: strings.HasPrefix(rel, WorkflowsDir+"/")})
		if !ok {
			return match
		}
		if bytes.HasPrefix(match, []byte("/")) {
			return []byte("/" + p)
		}
		return []byte(p)
	})
}
