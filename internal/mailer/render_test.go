package mailer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderWelcomeProducesAllParts(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, RegisterDefaultTemplates(r))

	out, err := r.Render(TypeWelcome, map[string]any{
		"first_name": "Jane",
		"email":      "jane@example.com",
	})
	require.NoError(t, err)

	require.Equal(t, "Welcome, Jane!", out.Subject)
	require.Contains(t, out.HTML, "<h1>Welcome, Jane!</h1>")
	require.Contains(t, out.HTML, "jane@example.com")
	require.NotNil(t, out.Text)
	require.Contains(t, *out.Text, "jane@example.com")
}

func TestRenderNoticeHasNoDedicatedText(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, RegisterDefaultTemplates(r))

	out, err := r.Render(TypeEmailChangedNotice, map[string]any{
		"old_email": "old@example.com",
		"new_email": "new@example.com",
	})
	require.NoError(t, err)

	require.Contains(t, out.HTML, "old@example.com")
	require.Contains(t, out.HTML, "new@example.com")
	require.Nil(t, out.Text)
}

func TestRenderEscapesHTMLInData(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, RegisterDefaultTemplates(r))

	out, err := r.Render(TypeWelcome, map[string]any{
		"first_name": `<script>alert(1)</script>`,
		"email":      "x@example.com",
	})
	require.NoError(t, err)
	require.NotContains(t, out.HTML, "<script>")
}

func TestRenderUnknownTypeFails(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render("no_such_type", nil)
	require.Error(t, err)
}

func TestHTMLToText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<p>Hello</p>", "Hello"},
		{"<html><body><h1>Hi</h1><p>There &amp; back</p></body></html>", "Hi There & back"},
		{"plain already", "plain already"},
		{"", ""},
		{"<br><br>", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, HTMLToText(tc.in), "input %q", tc.in)
	}
}

func TestBuildMIMEIsMultipartAlternative(t *testing.T) {
	raw := string(buildMIME(Message{
		FromAddress: "no-reply@eventgate.local",
		FromName:    "Eventgate",
		To:          "jane@example.com",
		ToName:      "Jane Doe",
		Subject:     "Welcome, Jane!",
		HTMLBody:    "<p>hi</p>",
		TextBody:    "hi",
	}))

	require.Contains(t, raw, "From: Eventgate <no-reply@eventgate.local>")
	require.Contains(t, raw, "To: Jane Doe <jane@example.com>")
	require.Contains(t, raw, "Content-Type: multipart/alternative")
	require.Contains(t, raw, "Content-Type: text/plain; charset=utf-8")
	require.Contains(t, raw, "Content-Type: text/html; charset=utf-8")
	require.Contains(t, raw, "<p>hi</p>")
}
