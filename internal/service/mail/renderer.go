package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

var subjects = map[string]string{
	TemplateWelcome:       "Welcome to Our Platform!",
	TemplatePasswordReset: "Password Reset Request",
	TemplatePromotion:     "Special Promotion Just For You!",
}

// Renderer turns queued messages into emails
type Renderer struct {
	tmpl *template.Template

	// Added to every template data unless message sets the key itself
	defaults map[string]string
}

func NewRenderer(projectName string) (*Renderer, error) {
	tmpl, err := template.New("mail").Option("missingkey=zero").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("can't parse mail templates: %w", err)
	}

	return &Renderer{
		tmpl:     tmpl,
		defaults: map[string]string{"project_name": projectName},
	}, nil
}

func (r *Renderer) Render(msg Message) (Email, error) {
	subject, ok := subjects[msg.Template]
	if !ok {
		return Email{}, fmt.Errorf("unknown mail template %q", msg.Template)
	}

	data := make(map[string]string, len(r.defaults)+len(msg.Data))
	for k, v := range r.defaults {
		data[k] = v
	}
	for k, v := range msg.Data {
		data[k] = v
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, msg.Template, data); err != nil {
		return Email{}, fmt.Errorf("can't render %q template: %w", msg.Template, err)
	}

	return Email{To: msg.To, Subject: subject, HTML: buf.String()}, nil
}
