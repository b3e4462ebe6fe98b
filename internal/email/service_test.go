package email_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"testing"

	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/errorz/testerr"
)

func Test_Service_Send(t *testing.T) {
	baseURL, err := url.Parse("https://example.com/")
	if err != nil {
		t.Fatalf("failed to parse url: %v", err)
	}

	cfg := email.ServiceConfig{
		From:    "noreply@example.com",
		BaseURL: baseURL,
	}

	t.Run("ok, renders and sends", func(t *testing.T) {
		sender := email.NewMemorySender()
		svc := email.NewService(&fakeRenderer{}, sender, cfg)

		err := svc.Send(context.Background(), "welcome", "alice@example.com", "data")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := sender.Emails()
		want := []email.Email{
			{
				From:      "noreply@example.com",
				Recipient: "alice@example.com",
				Subject:   "welcome subject for alice@example.com",
				Body:      "welcome body https://example.com data",
			},
		}

		if len(got) != 1 || got[0] != want[0] {
			t.Errorf("got %+v want %+v", got, want)
		}
	})

	t.Run("fail, renderer fails", func(t *testing.T) {
		sender := email.NewMemorySender()
		svc := email.NewService(&fakeRenderer{err: testerr.Err}, sender, cfg)

		err := svc.Send(context.Background(), "welcome", "alice@example.com", nil)
		if !errors.Is(err, testerr.Err) {
			t.Fatalf("expected %v, got %v", testerr.Err, err)
		}

		if len(sender.Emails()) != 0 {
			t.Errorf("expected no emails to be sent")
		}
	})

	t.Run("fail, sender fails", func(t *testing.T) {
		svc := email.NewService(&fakeRenderer{}, failingSender{}, cfg)

		err := svc.Send(context.Background(), "welcome", "alice@example.com", nil)
		if !errors.Is(err, testerr.Err) {
			t.Fatalf("expected %v, got %v", testerr.Err, err)
		}
	})
}

type fakeRenderer struct {
	err error
}

func (r *fakeRenderer) Render(w io.Writer, name string, element email.TemplateElement, data any) error {
	if r.err != nil {
		return r.err
	}

	td, ok := data.(email.TemplateData)
	if !ok {
		return fmt.Errorf("unexpected data type %T", data)
	}

	switch element {
	case email.ElementSubject:
		_, err := fmt.Fprintf(w, "  %s subject for %s\n", name, td.Recipient)
		return err
	default:
		_, err := fmt.Fprintf(w, "%s body %s %v", name, td.BaseURL, td.Data)
		return err
	}
}

type failingSender struct{}

func (failingSender) Send(context.Context, email.Address, email.Address, string, string) error {
	return testerr.Err
}
