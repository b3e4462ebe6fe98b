package assets_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/willemschots/mailverify/assets"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/email/view"
)

func Test_EmailVerificationTemplate(t *testing.T) {
	v, err := view.Parse(assets.EmailFS, "email-verification")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	data := email.TemplateData{
		BaseURL:   "https://example.com",
		Recipient: "a+b@example.com",
		Data: struct {
			Name      string
			Email     email.Address
			Token     string
			ExpiresAt time.Time
		}{
			Name:      "Alice",
			Email:     "a+b@example.com",
			Token:     "abc123",
			ExpiresAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	err = v.Render(&buf, email.ElementBody, data)
	if err != nil {
		t.Fatalf("failed to render: %v", err)
	}

	want := "https://example.com/verify?token=abc123&email=a%2Bb%40example.com"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("body does not contain %q:\n%s", want, buf.String())
	}
}
