// Package notify alerts operators about publish cycles. Notifications are
// dispatched to all registered senders (Telegram, Discord) and filtered by
// event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// Event types.
const (
	EventVenueFailed    = "venue_failed"
	EventCycleFailed    = "cycle_failed"
	EventCyclePublished = "cycle_published"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards events whose type is in the allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is registered.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends a notification to all senders only if the event type is in the
// allowed list. If no events were configured (empty list), all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyCycle emits the events a finished cycle warrants: one per failed
// venue, plus either a cycle failure or a publish summary.
func (n *Notifier) NotifyCycle(ctx context.Context, report domain.CycleReport) error {
	var errs []error
	for _, vr := range report.Venues {
		if vr.Err == nil {
			continue
		}
		title := fmt.Sprintf("%s publish failed", vr.Venue)
		msg := fmt.Sprintf("cycle %s, %d attempt(s): %v", report.ID, vr.Attempts, vr.Err)
		if err := n.Notify(ctx, EventVenueFailed, title, msg); err != nil {
			errs = append(errs, err)
		}
	}

	if report.AllFailed() {
		if err := n.Notify(ctx, EventCycleFailed, "Publish cycle failed",
			fmt.Sprintf("cycle %s: every venue failed", report.ID)); err != nil {
			errs = append(errs, err)
		}
	} else if pubs := report.Publications(); len(pubs) > 0 {
		if err := n.Notify(ctx, EventCyclePublished, "Prices published", FormatPublications(pubs)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatPublications renders one "<Venue>:<ASSET> -> <tx>" line per
// publication.
func FormatPublications(pubs []domain.Publication) string {
	lines := make([]string, len(pubs))
	for i, p := range pubs {
		lines[i] = fmt.Sprintf("%s -> %s", p.Key, p.TxHash)
	}
	return strings.Join(lines, "\n")
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
