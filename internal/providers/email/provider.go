package email

import (
	"context"
	"errors"
)

var (
	// ErrPermanent marks deliveries the caller must not retry (rejected
	// recipient, malformed address).
	ErrPermanent = errors.New("delivery_permanent")
	// ErrTransient marks deliveries the caller may retry (connection refused,
	// greylisting, 4xx responses).
	ErrTransient = errors.New("delivery_transient")
)

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string, attachments ...Attachment) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string, attachments ...Attachment) error {
	return nil
}
