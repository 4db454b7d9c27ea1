package markdown

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

var delimiter = []byte("---")

// Document is a template file split into YAML frontmatter and markdown body.
type Document struct {
	Metadata map[string]any
	Body     string
}

// Subject returns the "Subject" frontmatter value, if set.
func (d *Document) Subject() (string, bool) {
	s, ok := d.Metadata["Subject"].(string)
	return s, ok && s != ""
}

// Parse splits content into frontmatter and body. Content without a leading
// "---" line has no frontmatter.
func Parse(content []byte) (*Document, error) {
	if !bytes.HasPrefix(content, delimiter) {
		return &Document{Metadata: map[string]any{}, Body: string(content)}, nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delimiter), "\r\n")
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: no content after opening delimiter", ErrInvalidFrontmatter)
	}

	end := bytes.Index(rest, delimiter)
	if end == -1 {
		return nil, fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	front := rest[:end]
	body := skipNewline(rest[end+len(delimiter):])

	meta := map[string]any{}
	if len(bytes.TrimSpace(front)) > 0 {
		if err := yaml.Unmarshal(front, &meta); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrontmatter, err)
		}
	}

	return &Document{Metadata: meta, Body: string(body)}, nil
}

func skipNewline(b []byte) []byte {
	switch {
	case bytes.HasPrefix(b, []byte("\r\n")):
		return b[2:]
	case bytes.HasPrefix(b, []byte("\n")):
		return b[1:]
	}
	return b
}
