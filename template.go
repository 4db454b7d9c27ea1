package mailing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"reflect"
	"sync"
)

// TemplateEngine renders a named template with data into an HTML string.
// pkg/markdown provides a markdown implementation; FolderEngine is the default.
type TemplateEngine interface {
	Render(ctx context.Context, name string, data any) (string, error)
}

// TemplateFunc adapts a function to TemplateEngine.
type TemplateFunc func(ctx context.Context, name string, data any) (string, error)

func (f TemplateFunc) Render(ctx context.Context, name string, data any) (string, error) {
	return f(ctx, name, data)
}

// FolderEngine loads html/template files from a directory. Names resolve
// inside the directory only; parsed templates are cached.
type FolderEngine struct {
	root  *os.Root
	funcs template.FuncMap

	cache map[string]*template.Template
	mu    sync.RWMutex
}

// NewFolderEngine opens dir for template lookups.
func NewFolderEngine(dir string, funcs template.FuncMap) (*FolderEngine, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, errors.Join(ErrConfiguration, fmt.Errorf("%w: %q", ErrTemplateFolder, dir), err)
	}
	return &FolderEngine{
		root:  root,
		funcs: funcs,
		cache: make(map[string]*template.Template),
	}, nil
}

// Render executes the template called name with data.
func (e *FolderEngine) Render(_ context.Context, name string, data any) (string, error) {
	tmpl, err := e.lookup(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Join(ErrValidation, fmt.Errorf("%w: %s: %w", ErrRenderFailed, name, err))
	}
	return buf.String(), nil
}

// Close releases the directory handle.
func (e *FolderEngine) Close() error {
	return e.root.Close()
}

func (e *FolderEngine) lookup(name string) (*template.Template, error) {
	e.mu.RLock()
	if tmpl, ok := e.cache[name]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if tmpl, ok := e.cache[name]; ok {
		return tmpl, nil
	}

	f, err := e.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Join(ErrConfiguration, fmt.Errorf("%w: %s", ErrTemplateNotFound, name))
		}
		return nil, errors.Join(ErrConfiguration, fmt.Errorf("%w: %s: %w", ErrTemplateNotFound, name, err))
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Join(ErrConfiguration, fmt.Errorf("%w: %s: %w", ErrTemplateNotFound, name, err))
	}

	tmpl, err := template.New(name).Funcs(e.funcs).Parse(string(content))
	if err != nil {
		return nil, errors.Join(ErrConfiguration, fmt.Errorf("%w: %s: %w", ErrRenderFailed, name, err))
	}

	e.cache[name] = tmpl
	return tmpl, nil
}

// templateData shapes message data for rendering: sequences are exposed as
// "body", mappings and structs are passed through.
func templateData(data any) (any, error) {
	if data == nil {
		return map[string]any{}, nil
	}

	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, validationError(ErrTemplateData, "nil %T", data)
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return map[string]any{"body": data}, nil
	case reflect.Map, reflect.Struct:
		return data, nil
	}
	return nil, validationError(ErrTemplateData, "%T is neither a sequence nor a mapping", data)
}
