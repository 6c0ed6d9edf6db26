package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/email"
)

// ErrNoAddress means the contact has nothing this channel can deliver to.
var ErrNoAddress = errors.New("contact has no address for channel")

// Channel delivers a rendered message to one kind of address.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, contact domain.Contact, msg Message) error
}

// EmailChannel delivers through an email.Sender.
type EmailChannel struct {
	sender email.Sender
}

func NewEmailChannel(sender email.Sender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(ctx context.Context, contact domain.Contact, msg Message) error {
	if contact.Email == "" {
		return ErrNoAddress
	}
	if err := c.sender.Send(ctx, contact.Email, msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}

// LogChannel writes messages to the log. It stands in for the chat channel
// when no bot token is configured.
type LogChannel struct {
	name   string
	logger *slog.Logger
}

func NewLogChannel(name string, logger *slog.Logger) *LogChannel {
	return &LogChannel{name: name, logger: logger.With("component", "notify_log")}
}

func (c *LogChannel) Name() string { return c.name }

func (c *LogChannel) Deliver(ctx context.Context, contact domain.Contact, msg Message) error {
	c.logger.InfoContext(ctx, "notification (not sent)",
		"channel", c.name,
		"phone", contact.Phone,
		"chat_id", contact.TelegramChatID,
		"body", msg.Body,
	)
	return nil
}
