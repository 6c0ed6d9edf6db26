// Package notify renders localized payment messages and delivers them over
// a primary channel with a single fallback. Delivery is best effort: Send
// never reports failure to its caller.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/metrics"
)

const defaultSendTimeout = 10 * time.Second

type Notifier struct {
	primary   Channel
	secondary Channel
	timeout   time.Duration
	logger    *slog.Logger
}

func NewNotifier(primary, secondary Channel, timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Notifier{
		primary:   primary,
		secondary: secondary,
		timeout:   timeout,
		logger:    logger.With("component", "notifier"),
	}
}

// Send renders kind in lang and tries the primary channel, then the
// secondary. Failures are logged and counted, never returned.
func (n *Notifier) Send(ctx context.Context, kind Kind, data TemplateContext, lang domain.Language, contact domain.Contact) {
	msg, err := Render(kind, lang, data)
	if err != nil {
		n.logger.ErrorContext(ctx, "render notification", "kind", kind, "error", err)
		return
	}

	if n.deliver(ctx, n.primary, kind, contact, msg) {
		return
	}
	if n.deliver(ctx, n.secondary, kind, contact, msg) {
		return
	}
	n.logger.WarnContext(ctx, "notification not delivered", "kind", kind)
}

func (n *Notifier) deliver(ctx context.Context, ch Channel, kind Kind, contact domain.Contact, msg Message) bool {
	if ch == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := ch.Deliver(ctx, contact, msg)
	switch {
	case err == nil:
		metrics.NotificationsTotal.WithLabelValues(ch.Name(), "sent").Inc()
		n.logger.DebugContext(ctx, "notification sent", "kind", kind, "channel", ch.Name())
		return true
	case errors.Is(err, ErrNoAddress):
		metrics.NotificationsTotal.WithLabelValues(ch.Name(), "skipped").Inc()
		return false
	default:
		metrics.NotificationsTotal.WithLabelValues(ch.Name(), "failed").Inc()
		n.logger.WarnContext(ctx, "notification channel failed", "kind", kind, "channel", ch.Name(), "error", err)
		return false
	}
}
