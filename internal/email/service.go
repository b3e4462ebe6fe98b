package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementBody    TemplateElement = "body"
)

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(w io.Writer, name string, element TemplateElement, data any) error
}

// Sender is responsible for actually sending an email.
type Sender interface {
	Send(ctx context.Context, sender, recipient Address, subject, body string) error
}

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// From is the address emails are sent from.
	From Address
	// BaseURL is the public URL of the app, templates use it to construct links.
	BaseURL *url.URL
}

// Service renders templated emails and hands them to a Sender.
type Service struct {
	renderer Renderer
	sender   Sender
	cfg      ServiceConfig
}

func NewService(renderer Renderer, sender Sender, cfg ServiceConfig) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		cfg:      cfg,
	}
}

// TemplateData is the data every email template is rendered with.
type TemplateData struct {
	// BaseURL never has a trailing slash.
	BaseURL   string
	Recipient Address
	Data      any
}

// Send renders the subject and body of the named template and sends the
// result to the recipient.
func (s *Service) Send(ctx context.Context, name string, recipient Address, data any) error {
	td := TemplateData{
		Recipient: recipient,
		Data:      data,
	}

	if s.cfg.BaseURL != nil {
		td.BaseURL = strings.TrimSuffix(s.cfg.BaseURL.String(), "/")
	}

	subject, err := s.render(name, ElementSubject, td)
	if err != nil {
		return err
	}

	body, err := s.render(name, ElementBody, td)
	if err != nil {
		return err
	}

	err = s.sender.Send(ctx, s.cfg.From, recipient, subject, body)
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", name, err)
	}

	return nil
}

func (s *Service) render(name string, element TemplateElement, data TemplateData) (string, error) {
	var buf bytes.Buffer
	err := s.renderer.Render(&buf, name, element, data)
	if err != nil {
		return "", fmt.Errorf("failed to render %s of %s email: %w", element, name, err)
	}

	return strings.TrimSpace(buf.String()), nil
}
