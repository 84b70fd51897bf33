package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetProjectValue writes key=value into <root>/.pp/config.yaml, creating the
// file if needed. Dotted keys become nested mappings. Existing comments and
// key order are kept because the document is edited as a yaml.Node tree.
func SetProjectValue(root, key, value string) (string, error) {
	if key == "" {
		return "", errors.New("config key must not be empty")
	}
	path := filepath.Join(root, DirName, FileName)

	var doc yaml.Node
	data, err := os.ReadFile(path) // #nosec G304 - path is under the workspace root
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root0 := doc.Content[0]
	if root0.Kind != yaml.MappingNode {
		return "", fmt.Errorf("%s: top level must be a mapping", path)
	}

	setNode(root0, strings.Split(key, "."), scalarNode(value))

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// LoadProjectFile parses <root>/.pp/config.yaml without going through the
// viper singleton. A missing file yields an empty map.
func LoadProjectFile(root string) (map[string]interface{}, error) {
	path := filepath.Join(root, DirName, FileName)
	data, err := os.ReadFile(path) // #nosec G304 - path is under the workspace root
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	out := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return out, nil
}

func setNode(mapping *yaml.Node, path []string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k, val := mapping.Content[i], mapping.Content[i+1]
		if k.Value != path[0] {
			continue
		}
		if len(path) == 1 {
			value.HeadComment, value.LineComment = val.HeadComment, val.LineComment
			mapping.Content[i+1] = value
			return
		}
		if val.Kind != yaml.MappingNode {
			val = &yaml.Node{Kind: yaml.MappingNode}
			mapping.Content[i+1] = val
		}
		setNode(val, path[1:], value)
		return
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: path[0]}
	if len(path) == 1 {
		mapping.Content = append(mapping.Content, keyNode, value)
		return
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	mapping.Content = append(mapping.Content, keyNode, child)
	setNode(child, path[1:], value)
}

// scalarNode tags booleans, integers and durations so they round-trip
// unquoted; everything else is a string.
func scalarNode(value string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Value: value, Tag: "!!str"}
	lower := strings.ToLower(value)
	switch {
	case lower == "true" || lower == "false":
		n.Tag, n.Value = "!!bool", lower
	case isInt(value):
		n.Tag = "!!int"
	}
	return n
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
