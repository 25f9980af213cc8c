package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// PublishHandler lets operators request an out-of-schedule publish cycle.
type PublishHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{}
}

// NewPublishHandler creates a PublishHandler. Each accepted request performs
// a non-blocking send on triggerCh; the daemon loop receives from it to run
// one cycle.
func NewPublishHandler(triggerCh chan<- struct{}, logger *slog.Logger) *PublishHandler {
	return &PublishHandler{
		logger:    logger.With(slog.String("handler", "publish")),
		triggerCh: triggerCh,
	}
}

// Trigger enqueues one publish cycle. A trigger that is still pending is not
// queued twice.
// POST /api/publish/trigger
func (h *PublishHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	queued := false
	if h.triggerCh != nil {
		select {
		case h.triggerCh <- struct{}{}:
			queued = true
		default:
		}
	}
	h.logger.InfoContext(r.Context(), "publish trigger requested", slog.Bool("queued", queued))

	msg := "publish cycle enqueued"
	if !queued {
		msg = "a publish cycle is already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"queued":       queued,
		"message":      msg,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
