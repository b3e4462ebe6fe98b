package email

import (
	"context"
	"sync"
)

// Email is an email as it was handed to a Sender.
type Email struct {
	From      Address
	Recipient Address
	Subject   string
	Body      string
}

// MemorySender keeps all emails in memory, it's used in tests.
type MemorySender struct {
	mu     sync.Mutex
	emails []Email
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(_ context.Context, from, recipient Address, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emails = append(s.emails, Email{
		From:      from,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	return nil
}

// Emails returns a copy of all emails sent so far.
func (s *MemorySender) Emails() []Email {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Email, len(s.emails))
	copy(out, s.emails)
	return out
}
