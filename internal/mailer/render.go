package mailer

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// ErrUnknownTemplate is returned when no template has the requested name.
var ErrUnknownTemplate = errors.New("unknown template")

// TemplateData is what a template sees. Token holds the decrypted secret, if any.
type TemplateData struct {
	To      string
	Subject string
	Vars    map[string]any
	Token   string
}

// TemplateRenderer renders the embedded html and text templates. A template
// name may have either variant or both.
type TemplateRenderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

var funcs = map[string]any{
	// get looks a key up in Vars and prints nothing when it is absent.
	"get": func(vars map[string]any, key string) any {
		if v, ok := vars[key]; ok && v != nil {
			return v
		}
		return ""
	},
}

func NewTemplateRenderer() (*TemplateRenderer, error) {
	html, err := htmltemplate.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &TemplateRenderer{html: html, text: text}, nil
}

// Render builds the message for the named template.
func (r *TemplateRenderer) Render(name string, data TemplateData) (*Message, error) {
	if data.Vars == nil {
		data.Vars = map[string]any{}
	}

	h := r.html.Lookup(name + ".html.tmpl")
	t := r.text.Lookup(name + ".txt.tmpl")
	if h == nil && t == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	msg := &Message{To: data.To, Subject: cleanSubject(data.Subject)}

	if h != nil {
		var buf bytes.Buffer
		if err := h.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render %s html: %w", name, err)
		}
		msg.HTML = buf.String()
	}
	if t != nil {
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render %s text: %w", name, err)
		}
		msg.Text = buf.String()
	}

	return msg, nil
}
