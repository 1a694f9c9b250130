package mailer

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the optional YAML header of a library template.
type Frontmatter struct {
	Subject     string `yaml:"subject"`
	Description string `yaml:"description"`
}

// Template is a template file split into header and body.
type Template struct {
	Body        string
	Frontmatter Frontmatter
}

var delimiter = []byte("---")

// ParseTemplate splits content into frontmatter and body. Content without a
// leading "---" line is returned as body with an empty header.
func ParseTemplate(content []byte) (*Template, error) {
	if !bytes.HasPrefix(content, delimiter) {
		return &Template{Body: string(content)}, nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delimiter), "\r\n")
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: no content after opening delimiter", ErrInvalidFrontmatter)
	}

	end := bytes.Index(rest, delimiter)
	if end == -1 {
		return nil, fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	header := rest[:end]
	body := rest[end+len(delimiter):]
	body = bytes.TrimPrefix(body, []byte("\r"))
	body = bytes.TrimPrefix(body, []byte("\n"))

	t := &Template{Body: string(body)}
	if len(bytes.TrimSpace(header)) > 0 {
		if err := yaml.Unmarshal(header, &t.Frontmatter); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}
	return t, nil
}
