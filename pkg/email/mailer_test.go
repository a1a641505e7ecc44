package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/pkg/email"
	"github.com/dmitrymomot/viewportly/pkg/email/templates"
)

func validParams() email.SendEmailParams {
	return email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Payment failed",
		BodyHTML: "<p>Please update your card</p>",
		Tag:      "payment_failed",
	}
}

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*email.SendEmailParams)
		errMsg string
	}{
		{"valid", func(*email.SendEmailParams) {}, ""},
		{"valid with plus address", func(p *email.SendEmailParams) { p.SendTo = "test.user+tag@sub.example.com" }, ""},
		{"empty recipient", func(p *email.SendEmailParams) { p.SendTo = " " }, "SendTo is required"},
		{"no domain", func(p *email.SendEmailParams) { p.SendTo = "user@" }, "SendTo must be a valid email address"},
		{"no local part", func(p *email.SendEmailParams) { p.SendTo = "@example.com" }, "SendTo must be a valid email address"},
		{"display name", func(p *email.SendEmailParams) { p.SendTo = "User <user@example.com>" }, "SendTo must be a valid email address"},
		{"empty subject", func(p *email.SendEmailParams) { p.Subject = "" }, "Subject is required"},
		{"empty body", func(p *email.SendEmailParams) { p.BodyHTML = "   " }, "BodyHTML is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validParams()
			tt.mutate(&p)

			err := p.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, email.ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(dir)
	require.NoError(t, sender.SendEmail(context.Background(), validParams()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var htmlFile, jsonFile string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".html":
			htmlFile = filepath.Join(dir, e.Name())
		case ".json":
			jsonFile = filepath.Join(dir, e.Name())
		}
	}
	require.NotEmpty(t, htmlFile)
	require.NotEmpty(t, jsonFile)
	assert.True(t, strings.HasSuffix(htmlFile, "payment_failed.html"))

	body, err := os.ReadFile(htmlFile)
	require.NoError(t, err)
	assert.Equal(t, "<p>Please update your card</p>", string(body))

	raw, err := os.ReadFile(jsonFile)
	require.NoError(t, err)
	var envelope map[string]string
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "user@example.com", envelope["send_to"])
	assert.Equal(t, "Payment failed", envelope["subject"])

	t.Run("rejects invalid params", func(t *testing.T) {
		t.Parallel()
		err := email.NewDevSender(t.TempDir()).SendEmail(context.Background(), email.SendEmailParams{})
		assert.ErrorIs(t, err, email.ErrInvalidParams)
	})
}

func TestNewPostmarkClient(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		client, err := email.NewPostmarkClient(email.Config{
			PostmarkServerToken: "server-token",
			SenderEmail:         "billing@example.com",
			SupportEmail:        "support@example.com",
		})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		_, err := email.NewPostmarkClient(email.Config{SenderEmail: "billing@example.com"})
		assert.ErrorIs(t, err, email.ErrInvalidConfig)
	})

	t.Run("invalid sender", func(t *testing.T) {
		t.Parallel()
		_, err := email.NewPostmarkClient(email.Config{PostmarkServerToken: "x", SenderEmail: "nope"})
		assert.ErrorIs(t, err, email.ErrInvalidConfig)
	})
}

func TestRender(t *testing.T) {
	t.Parallel()
	html, err := templates.Render(context.Background(), templ.Raw("<b>hi</b>"))
	require.NoError(t, err)
	assert.Equal(t, "<b>hi</b>", html)
}

func TestLayout(t *testing.T) {
	t.Parallel()
	html, err := templates.Render(context.Background(),
		templates.Layout("Plan <ended>", "Sent by Acme", templ.Raw("<p>body</p>")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(html, "<!doctype html>"))
	assert.Contains(t, html, "<title>Plan &lt;ended&gt;</title>")
	assert.Contains(t, html, "<p>body</p>")
	assert.Contains(t, html, "Sent by Acme</p></body></html>")

	html, err = templates.Render(context.Background(), templates.Layout("t", "", templ.Raw("x")))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(html, "x</body></html>"))
}
