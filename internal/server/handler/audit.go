package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// AuditReader reads the audit log.
type AuditReader interface {
	AuditLog(ctx context.Context, event string, limit int) ([]domain.AuditEntry, error)
}

// AuditHandler serves the cycle, archive and prune audit trail.
type AuditHandler struct {
	reader AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(reader AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		reader: reader,
		logger: logger.With(slog.String("handler", "audit")),
	}
}

type auditJSON struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// List responds with the newest audit rows, optionally of one event such as
// publish.cycle.
// GET /api/audit?event=E&limit=N
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	event := r.URL.Query().Get("event")
	entries, err := h.reader.AuditLog(r.Context(), event, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	out := make([]auditJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditJSON{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
