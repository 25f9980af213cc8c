package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// PublicationReader is the read side of the publication service.
type PublicationReader interface {
	LatestPrices(ctx context.Context, keys []string) (map[string]domain.AttestedPrice, error)
	VenueHistory(ctx context.Context, venue string) ([]domain.PublicationRecord, error)
	KeyHistory(ctx context.Context, key string, limit int) ([]domain.PublicationRecord, error)
}

// PublicationHandler serves cached prices and publication history.
type PublicationHandler struct {
	reader PublicationReader
	keys   []string
	logger *slog.Logger
}

// NewPublicationHandler creates a PublicationHandler. keys are the
// "<Venue>:<ASSET>" keys the publisher is configured for.
func NewPublicationHandler(reader PublicationReader, keys []string, logger *slog.Logger) *PublicationHandler {
	return &PublicationHandler{
		reader: reader,
		keys:   keys,
		logger: logger.With(slog.String("handler", "publications")),
	}
}

type priceJSON struct {
	Key        string    `json:"key"`
	Price      uint64    `json:"price"`
	AttestedAt time.Time `json:"attested_at"`
	TxHash     string    `json:"tx_hash"`
}

type recordJSON struct {
	CycleID     string    `json:"cycle_id"`
	Key         string    `json:"key"`
	Venue       string    `json:"venue"`
	Asset       string    `json:"asset"`
	TxHash      string    `json:"tx_hash"`
	Mode        string    `json:"mode"`
	Price       uint64    `json:"price"`
	AttestedAt  time.Time `json:"attested_at"`
	PublishedAt time.Time `json:"published_at"`
}

// ListPrices responds with the latest cached price of every configured key.
// GET /api/prices
func (h *PublicationHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.reader.LatestPrices(r.Context(), h.keys)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "latest prices failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read prices")
		return
	}
	out := make([]priceJSON, 0, len(prices))
	for _, k := range h.keys {
		if p, ok := prices[k]; ok {
			out = append(out, priceJSON{Key: k, Price: p.Price, AttestedAt: p.AttestedAt, TxHash: p.TxHash})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": out})
}

// VenueHistory responds with the newest publication of every asset of a
// venue.
// GET /api/publications/{venue}
func (h *PublicationHandler) VenueHistory(w http.ResponseWriter, r *http.Request) {
	venue := r.PathValue("venue")
	records, err := h.reader.VenueHistory(r.Context(), venue)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "venue history failed",
			slog.String("venue", venue),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"publications": toJSON(records)})
}

// KeyHistory responds with the stored publications of one venue and asset,
// newest first.
// GET /api/publications/{venue}/{asset}?limit=N
func (h *PublicationHandler) KeyHistory(w http.ResponseWriter, r *http.Request) {
	venue, asset := r.PathValue("venue"), r.PathValue("asset")
	if strings.TrimSpace(venue) == "" || strings.TrimSpace(asset) == "" {
		writeError(w, http.StatusBadRequest, "venue and asset are required")
		return
	}
	key := domain.ResultKey(venue, asset)
	records, err := h.reader.KeyHistory(r.Context(), key, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "key history failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "publications": toJSON(records)})
}

func toJSON(records []domain.PublicationRecord) []recordJSON {
	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON{
			CycleID:     rec.CycleID,
			Key:         rec.Key,
			Venue:       rec.Venue,
			Asset:       rec.Asset,
			TxHash:      rec.TxHash,
			Mode:        string(rec.Mode),
			Price:       rec.Price,
			AttestedAt:  rec.AttestedAt,
			PublishedAt: rec.PublishedAt,
		})
	}
	return out
}
