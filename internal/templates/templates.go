// Package templates renders the console and callback response text
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"text/template"

	"github.com/wrale/oauth2-login/internal/oauth"
)

//go:embed text/*.tmpl
var content embed.FS

// TemplateError wraps a rendering failure
type TemplateError struct {
	Cause   error
	Message string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Templates manages the text templates
type Templates struct {
	text *template.Template
}

// LoadTemplates loads and parses all embedded templates
func LoadTemplates() (*Templates, error) {
	t, err := template.ParseFS(content, "text/*.tmpl")
	if err != nil {
		return nil, &TemplateError{Cause: err, Message: "parsing templates"}
	}
	return &Templates{text: t}, nil
}

// BannerData holds data for the startup instructions
type BannerData struct {
	Provider string
	URL      string
}

// RenderBanner renders the startup banner and the URL to open
func (t *Templates) RenderBanner(w io.Writer, data BannerData) error {
	return t.render(w, "banner", data)
}

// ResultData holds data for the callback result.
// A nil Token renders as "None".
type ResultData struct {
	State string
	Code  string
	Token *oauth.Token
}

// RenderResult renders the received parameters and the exchanged tokens
func (t *Templates) RenderResult(w io.Writer, data ResultData) error {
	return t.render(w, "result", data)
}

// RenderFinished renders the completion marker
func (t *Templates) RenderFinished(w io.Writer) error {
	return t.render(w, "finished", nil)
}

// ErrorData holds data for a callback error response
type ErrorData struct {
	Title   string
	Message string
}

// RenderError renders a one-line error message
func (t *Templates) RenderError(w io.Writer, data ErrorData) error {
	return t.render(w, "error", data)
}

// RenderToString renders a named template to a string
func (t *Templates) RenderToString(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.render(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (t *Templates) render(w io.Writer, name string, data interface{}) error {
	if err := t.text.ExecuteTemplate(w, name, data); err != nil {
		return &TemplateError{Cause: err, Message: "rendering " + name}
	}
	return nil
}
