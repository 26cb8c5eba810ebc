package email

import "context"

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Subject     string
	HTML        string
	Text        string
	Headers     map[string]string
	Attachments []Attachment
}

// Mailer delivers one message per call without retrying.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Verify(ctx context.Context) error
}

type NoOpMailer struct{}

func (NoOpMailer) Send(context.Context, Message) error { return nil }

func (NoOpMailer) Verify(context.Context) error { return nil }
