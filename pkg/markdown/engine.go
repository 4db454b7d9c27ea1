package markdown

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"sync"
	texttemplate "text/template"

	"github.com/yuin/goldmark"

	"github.com/dmitrymomot/mailing"
)

// Config configures the engine.
// Embed this in your app config for env parsing with caarlos0/env.
type Config struct {
	TemplateDir   string `env:"MAIL_MARKDOWN_DIR" envDefault:"."`
	LayoutDir     string `env:"MAIL_MARKDOWN_LAYOUT_DIR" envDefault:"layouts"`
	DefaultLayout string `env:"MAIL_MARKDOWN_LAYOUT" envDefault:"base.html"`
	ButtonClass   string `env:"MAIL_MARKDOWN_BUTTON_CLASS" envDefault:"btn"`
}

// Engine renders markdown templates with YAML frontmatter into HTML emails.
// A template body is executed with text/template, converted with goldmark and
// wrapped in an html/template layout that receives .Content and .Metadata.
// Parsed templates and layouts are cached; output never is.
type Engine struct {
	fs  fs.FS
	md  goldmark.Markdown
	cfg Config

	templates map[string]*parsedTemplate
	layouts   map[string]*template.Template
	mu        sync.RWMutex
}

var _ mailing.TemplateEngine = (*Engine)(nil)

type parsedTemplate struct {
	doc  *Document
	body *texttemplate.Template
}

// New creates an engine reading from fsys.
func New(fsys fs.FS, cfg Config) *Engine {
	if cfg.TemplateDir == "" {
		cfg.TemplateDir = "."
	}
	if cfg.LayoutDir == "" {
		cfg.LayoutDir = "layouts"
	}

	return &Engine{
		fs:        fsys,
		md:        goldmark.New(goldmark.WithExtensions(Button(cfg.ButtonClass))),
		cfg:       cfg,
		templates: make(map[string]*parsedTemplate),
		layouts:   make(map[string]*template.Template),
	}
}

// Result is a rendered template.
type Result struct {
	Metadata map[string]any
	Subject  string // Frontmatter Subject executed against the data
	HTML     string
	Text     string // Executed markdown, before HTML conversion
}

// Render renders name with the default layout. An empty DefaultLayout
// returns the converted markdown without a layout.
func (e *Engine) Render(ctx context.Context, name string, data any) (string, error) {
	res, err := e.Execute(ctx, e.cfg.DefaultLayout, name, data)
	if err != nil {
		return "", err
	}
	return res.HTML, nil
}

// Execute renders name inside layout.
func (e *Engine) Execute(_ context.Context, layout, name string, data any) (*Result, error) {
	tmpl, err := e.template(name)
	if err != nil {
		return nil, err
	}

	var md bytes.Buffer
	if err := tmpl.body.Execute(&md, data); err != nil {
		return nil, errors.Join(mailing.ErrValidation, fmt.Errorf("%w: %s: %w", mailing.ErrRenderFailed, name, err))
	}

	var content bytes.Buffer
	if err := e.md.Convert(md.Bytes(), &content); err != nil {
		return nil, errors.Join(mailing.ErrValidation, fmt.Errorf("%w: %s: convert markdown: %w", mailing.ErrRenderFailed, name, err))
	}

	subject, err := executeSubject(tmpl.doc, data)
	if err != nil {
		return nil, errors.Join(mailing.ErrValidation, fmt.Errorf("%w: %s: subject: %w", mailing.ErrRenderFailed, name, err))
	}

	res := &Result{
		Metadata: tmpl.doc.Metadata,
		Subject:  subject,
		HTML:     content.String(),
		Text:     md.String(),
	}
	if layout == "" {
		return res, nil
	}

	lt, err := e.layout(layout)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := lt.Execute(&out, map[string]any{
		"Content":  template.HTML(content.String()), //nolint:gosec // goldmark output, raw HTML disabled
		"Metadata": tmpl.doc.Metadata,
		"Subject":  subject,
	}); err != nil {
		return nil, errors.Join(mailing.ErrValidation, fmt.Errorf("%w: layout %s: %w", mailing.ErrRenderFailed, layout, err))
	}
	res.HTML = out.String()
	return res, nil
}

func executeSubject(doc *Document, data any) (string, error) {
	raw, ok := doc.Subject()
	if !ok {
		return "", nil
	}
	t, err := texttemplate.New("subject").Parse(raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *Engine) template(name string) (*parsedTemplate, error) {
	e.mu.RLock()
	t, ok := e.templates[name]
	e.mu.RUnlock()
	if ok {
		return t, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.templates[name]; ok {
		return t, nil
	}

	content, err := fs.ReadFile(e.fs, path.Join(e.cfg.TemplateDir, name))
	if err != nil {
		return nil, errors.Join(mailing.ErrConfiguration, fmt.Errorf("%w: %s: %w", mailing.ErrTemplateNotFound, name, err))
	}

	doc, err := Parse(content)
	if err != nil {
		return nil, errors.Join(mailing.ErrConfiguration, fmt.Errorf("%w: %s: %w", mailing.ErrRenderFailed, name, err))
	}

	body, err := texttemplate.New(name).Parse(doc.Body)
	if err != nil {
		return nil, errors.Join(mailing.ErrConfiguration, fmt.Errorf("%w: %s: %w", mailing.ErrRenderFailed, name, err))
	}

	t = &parsedTemplate{doc: doc, body: body}
	e.templates[name] = t
	return t, nil
}

func (e *Engine) layout(name string) (*template.Template, error) {
	e.mu.RLock()
	lt, ok := e.layouts[name]
	e.mu.RUnlock()
	if ok {
		return lt, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if lt, ok := e.layouts[name]; ok {
		return lt, nil
	}

	content, err := fs.ReadFile(e.fs, path.Join(e.cfg.LayoutDir, name))
	if err != nil {
		return nil, errors.Join(mailing.ErrConfiguration, fmt.Errorf("%w: %s: %w", ErrLayoutNotFound, name, err))
	}

	lt, err = template.New(name).Parse(string(content))
	if err != nil {
		return nil, errors.Join(mailing.ErrConfiguration, fmt.Errorf("%w: layout %s: %w", mailing.ErrRenderFailed, name, err))
	}

	e.layouts[name] = lt
	return lt, nil
}
