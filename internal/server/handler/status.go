package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// CycleReporter exposes the most recent publish cycle.
type CycleReporter interface {
	LastCycle() (domain.CycleReport, bool)
}

// StatusInfo is the static part of the status response.
type StatusInfo struct {
	Mode        string
	Account     string
	Venues      []string
	Assets      []string
	PublishMode string
	StartedAt   time.Time
}

// StatusHandler serves the publisher status: what it publishes and how the
// last cycle went.
type StatusHandler struct {
	info   StatusInfo
	cycles CycleReporter
	now    func() time.Time
}

// NewStatusHandler creates a StatusHandler. cycles may be nil.
func NewStatusHandler(info StatusInfo, cycles CycleReporter) *StatusHandler {
	return &StatusHandler{info: info, cycles: cycles, now: time.Now}
}

type venueStatus struct {
	Venue     string `json:"venue"`
	Attempts  int    `json:"attempts"`
	Published int    `json:"published"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

type cycleStatus struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Published  int           `json:"published"`
	AllFailed  bool          `json:"all_failed"`
	Venues     []venueStatus `json:"venues"`
}

// GetStatus responds with the publisher configuration and last cycle.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(h.now().Sub(h.info.StartedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	resp := map[string]any{
		"mode":           h.info.Mode,
		"account":        h.info.Account,
		"venues":         h.info.Venues,
		"assets":         h.info.Assets,
		"publish_mode":   h.info.PublishMode,
		"uptime_seconds": uptime,
		"last_cycle":     nil,
	}
	if h.cycles != nil {
		if report, ok := h.cycles.LastCycle(); ok {
			resp["last_cycle"] = summarize(report)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func summarize(report domain.CycleReport) cycleStatus {
	cs := cycleStatus{
		ID:         report.ID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Published:  len(report.Publications()),
		AllFailed:  report.AllFailed(),
		Venues:     make([]venueStatus, 0, len(report.Venues)),
	}
	for _, vr := range report.Venues {
		vs := venueStatus{
			Venue:     vr.Venue,
			Attempts:  vr.Attempts,
			Published: len(vr.Publications),
			Skipped:   len(vr.Skipped),
		}
		if vr.Err != nil {
			vs.Error = vr.Err.Error()
		}
		cs.Venues = append(cs.Venues, vs)
	}
	return cs
}
