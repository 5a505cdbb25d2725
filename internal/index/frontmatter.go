package index

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

var (
	// ErrNoFrontMatter is returned for documents that do not open with a metadata block
	// or whose block is empty.
	ErrNoFrontMatter = errors.New("no front matter")

	// ErrUnterminatedFrontMatter is returned when the closing delimiter is missing.
	ErrUnterminatedFrontMatter = errors.New("unterminated front matter")
)

// FrontMatter is the metadata block at the top of a corpus document.
// Scalar fields are decoded as written, so dates and versions stay verbatim.
type FrontMatter struct {
	Title        string   `yaml:"title"`
	Department   string   `yaml:"department"`
	Sensitivity  string   `yaml:"sensitivity"`
	DocumentType string   `yaml:"document_type"`
	LastUpdated  string   `yaml:"last_updated"`
	Version      string   `yaml:"version"`
	RoleAccess   RoleList `yaml:"role_access"`
}

// RoleList accepts either a comma separated string or a YAML sequence.
type RoleList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *RoleList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*r = nil
			return nil
		}
		*r = strings.Split(node.Value, ",")
		return nil
	case yaml.SequenceNode:
		roles := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: role_access entries must be scalars", item.Line)
			}
			roles = append(roles, item.Value)
		}
		*r = roles
		return nil
	default:
		return fmt.Errorf("line %d: role_access must be a string or a list", node.Line)
	}
}

// ParseDocument splits a Markdown document into its front matter and body.
// The document must start with a "---" line; the block ends at the next line starting with "---".
func ParseDocument(content string) (*FrontMatter, string, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")

	if !strings.HasPrefix(content, frontMatterDelimiter) {
		return nil, "", ErrNoFrontMatter
	}

	rest := content[len(frontMatterDelimiter):]
	end := strings.Index(rest, "\n"+frontMatterDelimiter)
	if end < 0 {
		return nil, "", ErrUnterminatedFrontMatter
	}

	block := rest[:end]
	body := rest[end+1+len(frontMatterDelimiter):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}

	if strings.TrimSpace(block) == "" {
		return nil, "", ErrNoFrontMatter
	}

	var fm FrontMatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, "", fmt.Errorf("invalid front matter: %w", err)
	}
	return &fm, body, nil
}
