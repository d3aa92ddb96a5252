// Package mailer renders outbound emails and sends them through a transport.
package mailer

import (
	"fmt"
	"html"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Email type keys. They double as template keys and as the email_type column
// in the outbox.
const (
	TypeWelcome              = "welcome"
	TypeEmailChangedNotice   = "email_changed_notice"
	TypePasswordChangedAlert = "password_changed_alert"
)

// Rendered is the output of template rendering. Text is nil when the type has
// no dedicated plain-text template; the processor derives a fallback from the
// HTML at send time.
type Rendered struct {
	Subject string
	HTML    string
	Text    *string
}

type templateSet struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template // optional
}

// Renderer holds per-type subject/html/text templates.
type Renderer struct {
	sets map[string]*templateSet
}

func NewRenderer() *Renderer {
	return &Renderer{sets: make(map[string]*templateSet)}
}

// RegisterTemplate parses and stores the templates for one email type.
// textTmpl may be empty; the type then relies on the HTML-derived fallback.
func (r *Renderer) RegisterTemplate(key, subjectTmpl, htmlTmpl, textTmpl string) error {
	subject, err := texttemplate.New(key + ":subject").Parse(subjectTmpl)
	if err != nil {
		return fmt.Errorf("parse subject template %q: %w", key, err)
	}
	htmlT, err := htmltemplate.New(key + ":html").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template %q: %w", key, err)
	}

	set := &templateSet{subject: subject, html: htmlT}
	if textTmpl != "" {
		textT, err := texttemplate.New(key + ":text").Parse(textTmpl)
		if err != nil {
			return fmt.Errorf("parse text template %q: %w", key, err)
		}
		set.text = textT
	}

	r.sets[key] = set
	return nil
}

// Render produces subject, HTML body and, when a text template exists, the
// plain-text body for the given email type and context.
func (r *Renderer) Render(key string, data map[string]any) (Rendered, error) {
	set, ok := r.sets[key]
	if !ok {
		return Rendered{}, fmt.Errorf("no template registered for email type %q", key)
	}

	var subject, htmlBody strings.Builder
	if err := set.subject.Execute(&subject, data); err != nil {
		return Rendered{}, fmt.Errorf("render subject %q: %w", key, err)
	}
	if err := set.html.Execute(&htmlBody, data); err != nil {
		return Rendered{}, fmt.Errorf("render html %q: %w", key, err)
	}

	out := Rendered{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    htmlBody.String(),
	}

	if set.text != nil {
		var textBody strings.Builder
		if err := set.text.Execute(&textBody, data); err != nil {
			return Rendered{}, fmt.Errorf("render text %q: %w", key, err)
		}
		t := textBody.String()
		out.Text = &t
	}
	return out, nil
}

// HTMLToText derives a plain-text body from HTML by stripping markup and
// collapsing whitespace. The documented fallback for types without a
// dedicated text template.
func HTMLToText(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			sb.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(sb.String())), " ")
}

// RegisterDefaultTemplates installs the built-in templates for every email
// type the enqueue policy produces. The welcome email ships a dedicated text
// template; the notices rely on the HTML fallback.
func RegisterDefaultTemplates(r *Renderer) error {
	if err := r.RegisterTemplate(TypeWelcome,
		`Welcome, {{.first_name}}!`,
		`<html><body><h1>Welcome, {{.first_name}}!</h1><p>Your account {{.email}} is ready.</p></body></html>`,
		`Welcome, {{.first_name}}! Your account {{.email}} is ready.`,
	); err != nil {
		return err
	}

	if err := r.RegisterTemplate(TypeEmailChangedNotice,
		`Your email address was changed`,
		`<html><body><p>The email on your account was changed from {{.old_email}} to {{.new_email}}. If this wasn't you, contact support.</p></body></html>`,
		"",
	); err != nil {
		return err
	}

	return r.RegisterTemplate(TypePasswordChangedAlert,
		`Your password was changed`,
		`<html><body><p>The password on your account was just changed. If this wasn't you, contact support immediately.</p></body></html>`,
		"",
	)
}
