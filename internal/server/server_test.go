package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/openoracle/internal/domain"
	"github.com/alanyoungcy/openoracle/internal/server/handler"
)

var discard = slog.New(slog.DiscardHandler)

type fakeReader struct {
	prices  map[string]domain.AttestedPrice
	records []domain.PublicationRecord
	keys    []string
	limit   int
	event   string
}

func (f *fakeReader) LatestPrices(_ context.Context, keys []string) (map[string]domain.AttestedPrice, error) {
	return f.prices, nil
}

func (f *fakeReader) VenueHistory(_ context.Context, venue string) ([]domain.PublicationRecord, error) {
	var out []domain.PublicationRecord
	for _, r := range f.records {
		if r.Venue == venue {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReader) KeyHistory(_ context.Context, key string, limit int) ([]domain.PublicationRecord, error) {
	f.keys = append(f.keys, key)
	f.limit = limit
	return f.records, nil
}

func (f *fakeReader) AuditLog(_ context.Context, event string, limit int) ([]domain.AuditEntry, error) {
	f.event, f.limit = event, limit
	return []domain.AuditEntry{
		{ID: 2, Event: "publish.cycle", Detail: map[string]any{"cycle_id": "c1"}, CreatedAt: time.Unix(1700000000, 0).UTC()},
	}, nil
}

type fakeCycles struct {
	report domain.CycleReport
}

func (f fakeCycles) LastCycle() (domain.CycleReport, bool) {
	return f.report, f.report.ID != ""
}

func newTestServer(t *testing.T, cfg Config, trigger chan struct{}) (*Server, *fakeReader) {
	t.Helper()
	reader := &fakeReader{
		prices: map[string]domain.AttestedPrice{
			"OKX:BTC": {Price: 30000, AttestedAt: time.Unix(1700000000, 0).UTC(), TxHash: "0xaa"},
		},
		records: []domain.PublicationRecord{
			{CycleID: "c1", Key: "OKX:BTC", Venue: "OKX", Asset: "BTC", TxHash: "0xaa", Mode: domain.SubmitBatched, Price: 30000},
		},
	}
	handlers := Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:        "daemon",
			Account:     "0xabc",
			Venues:      []string{"OKX"},
			Assets:      []string{"btc", "eth"},
			PublishMode: "batched",
			StartedAt:   time.Now(),
		}, fakeCycles{report: domain.CycleReport{
			ID: "c1",
			Venues: []domain.VenueReport{
				{Venue: "OKX", Attempts: 2, Publications: []domain.Publication{{Key: "OKX:BTC"}}},
			},
		}}),
		Publications: handler.NewPublicationHandler(reader, []string{"OKX:BTC", "OKX:ETH"}, discard),
		Audit:        handler.NewAuditHandler(reader, discard),
	}
	if trigger != nil {
		handlers.Publish = handler.NewPublishHandler(trigger, discard)
	}
	return NewServer(cfg, handlers, nil, discard), reader
}

func do(t *testing.T, h http.Handler, method, path string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth_BypassesAuth(t *testing.T) {
	s, _ := newTestServer(t, Config{APIKey: "secret"}, nil)
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestAuth_RequiredForAPI(t *testing.T) {
	s, _ := newTestServer(t, Config{APIKey: "secret"}, nil)

	rec, _ := do(t, s.Handler(), http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/status", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus_ReportsLastCycle(t *testing.T) {
	s, _ := newTestServer(t, Config{}, nil)
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "daemon", body["mode"])
	assert.Equal(t, "batched", body["publish_mode"])

	last, ok := body["last_cycle"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "c1", last["id"])
	assert.Equal(t, float64(1), last["published"])
	venues := last["venues"].([]any)
	require.Len(t, venues, 1)
	assert.Equal(t, float64(2), venues[0].(map[string]any)["attempts"])
}

func TestPrices_OnlyCachedKeys(t *testing.T) {
	s, _ := newTestServer(t, Config{}, nil)
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/prices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prices := body["prices"].([]any)
	require.Len(t, prices, 1)
	p := prices[0].(map[string]any)
	assert.Equal(t, "OKX:BTC", p["key"])
	assert.Equal(t, float64(30000), p["price"])
}

func TestPublications_VenueAndKeyHistory(t *testing.T) {
	s, reader := newTestServer(t, Config{}, nil)

	rec, body := do(t, s.Handler(), http.MethodGet, "/api/publications/OKX", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["publications"], 1)

	rec, body = do(t, s.Handler(), http.MethodGet, "/api/publications/OKX/btc?limit=9999", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OKX:BTC", body["key"])
	assert.Equal(t, []string{"OKX:BTC"}, reader.keys)
	assert.Equal(t, 500, reader.limit)
}

func TestAudit_FiltersByEvent(t *testing.T) {
	s, reader := newTestServer(t, Config{}, nil)

	rec, body := do(t, s.Handler(), http.MethodGet, "/api/audit?event=publish.cycle&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "publish.cycle", reader.event)
	assert.Equal(t, 5, reader.limit)

	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	e := entries[0].(map[string]any)
	assert.Equal(t, "publish.cycle", e["event"])
	assert.Equal(t, "c1", e["detail"].(map[string]any)["cycle_id"])
}

func TestTrigger_QueuesOnce(t *testing.T) {
	trigger := make(chan struct{}, 1)
	s, _ := newTestServer(t, Config{}, trigger)

	rec, body := do(t, s.Handler(), http.MethodPost, "/api/publish/trigger", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, body["queued"])

	rec, body = do(t, s.Handler(), http.MethodPost, "/api/publish/trigger", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, false, body["queued"])
	assert.Len(t, trigger, 1)
}

func TestTrigger_NotRegisteredWithoutHandler(t *testing.T) {
	s, _ := newTestServer(t, Config{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/publish/trigger", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit_PerClient(t *testing.T) {
	s, _ := newTestServer(t, Config{RateLimitPerMin: 2}, nil)

	for i := 0; i < 2; i++ {
		rec, _ := do(t, s.Handler(), http.MethodGet, "/api/status", map[string]string{"X-Real-IP": "10.0.0.1"})
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, _ := do(t, s.Handler(), http.MethodGet, "/api/status", map[string]string{"X-Real-IP": "10.0.0.1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/status", map[string]string{"X-Real-IP": "10.0.0.2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	s, _ := newTestServer(t, Config{CORSOrigins: []string{"https://ops.example"}}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://ops.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
