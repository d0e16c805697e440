// Package prompt renders the system prompts sent to the chat completer.
package prompt

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
)

// TemplateExt is the file extension LoadFS picks up.
const TemplateExt = ".tmpl"

var funcs = template.FuncMap{
	"join":  strings.Join,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
}

// Template is a named text/template.
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate parses content. Missing map keys render as errors instead of "<no value>".
func NewTemplate(name, content string) (*Template, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: template name is empty", errorskg.ErrInvalidInput)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: parse template %s: %v", errorskg.ErrInvalidInput, name, err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// Render renders the template with data, a map or a struct.
func (t *Template) Render(data any) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Manager is a concurrency-safe registry of named templates.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager creates a prompt manager holding the built-in templates.
func NewManager() *Manager {
	m := &Manager{templates: make(map[string]*Template)}
	// built-in templates are static and parse
	_ = m.RegisterString(SystemTemplateName, systemTemplate)
	return m
}

// Register adds a template, replacing any template with the same name so
// deployments can override the built-ins.
func (m *Manager) Register(tmpl *Template) error {
	if tmpl == nil || tmpl.Name == "" {
		return fmt.Errorf("%w: template name is empty", errorskg.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tmpl.Name] = tmpl
	return nil
}

func (m *Manager) RegisterString(name, content string) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	return m.Register(tmpl)
}

// Get returns an error wrapping ErrNotFound for unknown names.
func (m *Manager) Get(name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", name, errorskg.ErrNotFound)
	}
	return tmpl, nil
}

// Render renders the named template.
func (m *Manager) Render(name string, data any) (string, error) {
	tmpl, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(data)
}

// List returns all registered template names in order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFS registers every *.tmpl file under fsys, named after the file without its
// extension, so "system.tmpl" replaces the built-in system prompt. It returns the
// registered names.
func (m *Manager) LoadFS(fsys fs.FS) ([]string, error) {
	var names []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != TemplateExt {
			return nil
		}
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(path.Base(p), TemplateExt)
		if err := m.RegisterString(name, string(content)); err != nil {
			return err
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
