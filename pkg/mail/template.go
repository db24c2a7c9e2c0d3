package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"sync"
)

// TemplateMessage is an email described by a named template and its render context.
type TemplateMessage struct {
	To       string
	Subject  string
	Template string
	Context  map[string]any
}

// Renderer turns a named template and context into an HTML body.
type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

// ErrTemplateNotFound is returned when a template name is not registered.
var ErrTemplateNotFound = errors.New("mail: template not found")

// TemplateRegistry is an in-memory Renderer backed by html/template.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewTemplateRegistry constructs an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]*template.Template)}
}

// Register parses and stores a template under the supplied name.
func (r *TemplateRegistry) Register(name, source string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("mail: template name is required")
	}
	tpl, err := template.New(name).Option("missingkey=zero").Parse(source)
	if err != nil {
		return fmt.Errorf("mail: parse template %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = tpl
	return nil
}

// Render executes the named template.
func (r *TemplateRegistry) Render(name string, data map[string]any) (string, error) {
	r.mu.RLock()
	tpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return buf.String(), nil
}

// TemplateSender renders TemplateMessages and hands them to a Mailer.
type TemplateSender struct {
	mailer   Mailer
	renderer Renderer
}

// NewTemplateSender pairs a Mailer with a Renderer.
func NewTemplateSender(mailer Mailer, renderer Renderer) (*TemplateSender, error) {
	if mailer == nil {
		return nil, errors.New("mail: mailer is required")
	}
	if renderer == nil {
		return nil, errors.New("mail: renderer is required")
	}
	return &TemplateSender{mailer: mailer, renderer: renderer}, nil
}

// SendTemplate renders and delivers a single message.
func (s *TemplateSender) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	body, err := s.renderer.Render(msg.Template, msg.Context)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, Message{
		To:       []string{msg.To},
		Subject:  msg.Subject,
		HTMLBody: body,
	})
}
