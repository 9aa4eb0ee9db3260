package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names understood by Renderer.
const (
	TemplateVerifyEmail    = "verify_email.html"
	TemplateResetPassword  = "reset_password.html"
	TemplateApprovalStatus = "approval_status.html"
	TemplateCourseApproved = "course_approved.html"
	TemplateCourseRejected = "course_rejected.html"
)

// Renderer executes the embedded HTML templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("mail").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render builds a Message addressed to `to` from the named template.
func (r *Renderer) Render(name, to, subject string, data interface{}) (Message, error) {
	buf := &bytes.Buffer{}
	if err := r.templates.ExecuteTemplate(buf, name, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}
