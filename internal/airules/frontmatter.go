// Package airules converts Cursor rule files (.mdc) into the rule and
// workflow formats other AI assistants read.
package airules

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trigger is how an assistant decides to load a rule.
type Trigger string

const (
	TriggerAlwaysOn      Trigger = "always_on"
	TriggerGlob          Trigger = "glob"
	TriggerModelDecision Trigger = "model_decision"
	TriggerManual        Trigger = "manual"
)

const fence = "---"

// Frontmatter is the metadata block of a source rule.
type Frontmatter struct {
	Description string
	Globs       []string
	AlwaysApply bool
	// Extra holds keys pp does not interpret, in file order.
	Extra []KeyValue
}

// KeyValue is one raw frontmatter line.
type KeyValue struct {
	Key   string
	Value string
}

// Trigger derives the load trigger: alwaysApply wins, then globs, then a
// description lets the model decide, otherwise the rule is manual.
func (f Frontmatter) Trigger() Trigger {
	switch {
	case f.AlwaysApply:
		return TriggerAlwaysOn
	case len(f.Globs) > 0:
		return TriggerGlob
	case f.Description != "":
		return TriggerModelDecision
	default:
		return TriggerManual
	}
}

// SplitFrontmatter separates the leading --- block from the body. A file
// without frontmatter returns an empty block and the whole content.
func SplitFrontmatter(content []byte) (block []string, body []byte, err error) {
	content = bytes.TrimPrefix(content, []byte("\ufeff"))
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(normalized, []byte(fence+"\n")) {
		return nil, normalized, nil
	}
	rest := normalized[len(fence)+1:]

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(rest))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	offset := 0
	for scanner.Scan() {
		line := scanner.Text()
		offset += len(line) + 1
		if strings.TrimSpace(line) == fence {
			if offset > len(rest) {
				offset = len(rest)
			}
			return lines, rest[offset:], nil
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return nil, nil, fmt.Errorf("frontmatter is not closed with %q", fence)
}

// ParseFrontmatter reads `key: value` lines. Values are taken literally
// unless they are quoted or a flow sequence, which go through YAML.
func ParseFrontmatter(lines []string) (Frontmatter, error) {
	var fm Frontmatter
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, raw, ok := strings.Cut(line, ":")
		if !ok {
			return fm, fmt.Errorf("line %d: expected key: value, got %q", i+2, line)
		}
		key = strings.TrimSpace(key)
		raw = strings.TrimSpace(raw)

		switch key {
		case "description":
			v, err := scalar(raw)
			if err != nil {
				return fm, fmt.Errorf("line %d: description: %w", i+2, err)
			}
			fm.Description = v
		case "globs":
			globs, err := list(raw)
			if err != nil {
				return fm, fmt.Errorf("line %d: globs: %w", i+2, err)
			}
			fm.Globs = globs
		case "alwaysApply":
			v, err := scalar(raw)
			if err != nil {
				return fm, fmt.Errorf("line %d: alwaysApply: %w", i+2, err)
			}
			if v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return fm, fmt.Errorf("line %d: alwaysApply: %w", i+2, err)
				}
				fm.AlwaysApply = b
			}
		default:
			fm.Extra = append(fm.Extra, KeyValue{Key: key, Value: raw})
		}
	}
	return fm, nil
}

func structured(raw string) bool {
	return strings.HasPrefix(raw, `"`) || strings.HasPrefix(raw, "'") || strings.HasPrefix(raw, "[")
}

func scalar(raw string) (string, error) {
	if !structured(raw) {
		return raw, nil
	}
	var v string
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return "", err
	}
	return v, nil
}

// list accepts a comma separated string, a quoted string or a flow sequence.
func list(raw string) ([]string, error) {
	if strings.HasPrefix(raw, "[") {
		var v []string
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return compact(v), nil
	}
	s, err := scalar(raw)
	if err != nil {
		return nil, err
	}
	return compact(strings.Split(s, ",")), nil
}

func compact(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// field is one key of an emitted frontmatter block.
type field struct {
	key   string
	value any
}

// renderFrontmatter emits fields as YAML in the given order. Empty values are
// dropped. Returns nil when nothing remains.
func renderFrontmatter(fields []field) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		value := &yaml.Node{}
		switch v := f.value.(type) {
		case string:
			if v == "" {
				continue
			}
			value.Kind, value.Tag, value.Value = yaml.ScalarNode, "!!str", v
		case []string:
			if len(v) == 0 {
				continue
			}
			value.Kind = yaml.SequenceNode
			for _, item := range v {
				value.Content = append(value.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
			}
		case bool:
			value.Kind, value.Tag, value.Value = yaml.ScalarNode, "!!bool", strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("unsupported frontmatter value for %s: %T", f.key, f.value)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: f.key}, value)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString(fence + "\n")
	return buf.Bytes(), nil
}
