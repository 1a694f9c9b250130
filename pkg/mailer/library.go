package mailer

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Template formats known to the library.
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// TemplateInfo describes one library entry.
type TemplateInfo struct {
	Name        string `json:"name"`
	Subject     string `json:"subject,omitempty"`
	Description string `json:"description,omitempty"`
	Format      string `json:"format"`
}

type libraryEntry struct {
	info TemplateInfo
	body string
}

// Library is a read-only set of named templates. Names are file names
// without extension, so "welcome.md" is looked up as "welcome".
type Library struct {
	renderer *Renderer
	md       goldmark.Markdown
	entries  map[string]libraryEntry
}

// LoadLibrary reads every *.md and *.txt file under fsys.
// A nil fsys yields an empty library.
func LoadLibrary(fsys fs.FS, renderer *Renderer) (*Library, error) {
	lib := &Library{
		renderer: renderer,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Linkify),
			goldmark.WithRendererOptions(html.WithHardWraps(), html.WithUnsafe()),
		),
		entries: make(map[string]libraryEntry),
	}
	if fsys == nil {
		return lib, nil
	}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		var format string
		switch strings.ToLower(path.Ext(p)) {
		case ".md":
			format = FormatMarkdown
		case ".txt":
			format = FormatText
		default:
			return nil
		}

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		tpl, err := ParseTemplate(content)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}

		name := strings.TrimSuffix(p, path.Ext(p))
		lib.entries[name] = libraryEntry{
			info: TemplateInfo{
				Name:        name,
				Subject:     tpl.Frontmatter.Subject,
				Description: tpl.Frontmatter.Description,
				Format:      format,
			},
			body: tpl.Body,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mailer: load templates: %w", err)
	}
	return lib, nil
}

// List returns all templates sorted by name.
func (l *Library) List() []TemplateInfo {
	out := make([]TemplateInfo, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.info)
	}
	slices.SortFunc(out, func(a, b TemplateInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Lookup returns the description of name.
func (l *Library) Lookup(name string) (TemplateInfo, bool) {
	e, ok := l.entries[name]
	return e.info, ok
}

// Render fills the named template. Markdown output is converted to HTML.
// Rendering itself falls back like Renderer.Render; only an unknown name or a
// markdown conversion failure is reported as an error.
func (l *Library) Render(name string, data map[string]any) (string, error) {
	e, ok := l.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	out := l.renderer.Render(e.body, data)
	if e.info.Format != FormatMarkdown {
		return out, nil
	}

	var buf bytes.Buffer
	if err := l.md.Convert([]byte(out), &buf); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}
	return buf.String(), nil
}
