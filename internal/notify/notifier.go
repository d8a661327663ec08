// Package notify delivers alerts to chat channels (Telegram, Discord).
// Alerts are filtered by event type so operators only receive the kinds they
// subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Event types.
const (
	EventOpportunity  = "opportunity"
	EventCycleFailed  = "cycle_failed"
	EventPlatformDown = "platform_down"
	EventStartup      = "startup"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans notifications out to every Sender.
type Notifier struct {
	senders      []Sender
	events       map[string]bool
	minSpreadBps float64
	logger       *slog.Logger
}

// NewNotifier creates a Notifier. Only events listed in events are
// forwarded by Notify; an empty list allows all. Opportunities below
// minSpreadBps are not announced.
func NewNotifier(senders []Sender, events []string, minSpreadBps float64, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:      senders,
		events:       allowed,
		minSpreadBps: minSpreadBps,
		logger:       logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends to all senders if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyOpportunity announces opp if it clears the notification threshold.
func (n *Notifier) NotifyOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	if !n.Enabled() || opp.SpreadBps < n.minSpreadBps {
		return nil
	}
	title, body := FormatOpportunity(opp)
	return n.Notify(ctx, EventOpportunity, title, body)
}

// dispatch delivers to every sender. One failing sender does not stop the
// others; failures are joined.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
