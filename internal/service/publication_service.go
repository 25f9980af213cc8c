package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// CycleNotifier alerts operators about a finished cycle.
type CycleNotifier interface {
	NotifyCycle(ctx context.Context, report domain.CycleReport) error
}

// PublicationDeps are the sinks a PublicationService fans a cycle out to.
// Every field is optional; a nil sink is skipped.
type PublicationDeps struct {
	Store    domain.PublicationStore
	Audit    domain.AuditStore
	Prices   domain.PriceCache
	Bus      domain.EventBus
	Archiver domain.BatchArchiver
	Notifier CycleNotifier
}

// PublicationService records finished publish cycles: history in the
// publication store, latest prices in the cache, events on the bus, raw
// batches in the archive, a row in the audit log and operator alerts.
// Sink failures never change what was published; they are logged and
// returned joined.
type PublicationService struct {
	deps   PublicationDeps
	logger *slog.Logger
}

// NewPublicationService creates a PublicationService.
func NewPublicationService(deps PublicationDeps, logger *slog.Logger) *PublicationService {
	return &PublicationService{
		deps:   deps,
		logger: logger.With(slog.String("component", "publication_service")),
	}
}

// publishEvent is the bus payload for one publication.
type publishEvent struct {
	Event      string    `json:"event"`
	CycleID    string    `json:"cycle_id"`
	Key        string    `json:"key"`
	Venue      string    `json:"venue"`
	Asset      string    `json:"asset"`
	Price      uint64    `json:"price"`
	AttestedAt time.Time `json:"attested_at"`
	TxHash     string    `json:"tx_hash"`
}

// marshalEvent encodes the bus payload announcing r.
func marshalEvent(r domain.PublicationRecord) ([]byte, error) {
	evt, err := json.Marshal(publishEvent{
		Event:      "published",
		CycleID:    r.CycleID,
		Key:        r.Key,
		Venue:      r.Venue,
		Asset:      r.Asset,
		Price:      r.Price,
		AttestedAt: r.AttestedAt,
		TxHash:     r.TxHash,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", r.Key, err)
	}
	return evt, nil
}

// Record fans report out to every configured sink.
func (s *PublicationService) Record(ctx context.Context, report domain.CycleReport) error {
	var errs []error
	fail := func(sink string, err error) {
		s.logger.WarnContext(ctx, "publication_service: sink failed",
			slog.String("sink", sink),
			slog.String("cycle_id", report.ID),
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("publication_service: %s: %w", sink, err))
	}

	records := ToRecords(report)

	if s.deps.Store != nil && len(records) > 0 {
		if err := s.deps.Store.InsertBatch(ctx, records); err != nil {
			fail("store", err)
		}
	}

	for _, r := range records {
		if s.deps.Prices != nil {
			if err := s.deps.Prices.SetPrice(ctx, r.Key, domain.AttestedPrice{
				Price:      r.Price,
				AttestedAt: r.AttestedAt,
				TxHash:     r.TxHash,
			}); err != nil {
				fail("price cache", err)
			}
		}
		if s.deps.Bus != nil {
			evt, err := marshalEvent(r)
			if err != nil {
				fail("bus marshal", err)
				continue
			}
			if err := s.deps.Bus.Publish(ctx, domain.PublishChannel, evt); err != nil {
				fail("bus publish", err)
			}
			if err := s.deps.Bus.StreamAppend(ctx, domain.PublishStream, evt); err != nil {
				fail("bus stream", err)
			}
		}
	}

	if s.deps.Archiver != nil {
		if n, err := s.deps.Archiver.ArchiveCycle(ctx, report); err != nil {
			fail("archive", err)
		} else if n > 0 {
			s.logger.DebugContext(ctx, "cycle batches archived",
				slog.String("cycle_id", report.ID),
				slog.Int("objects", n),
			)
		}
	}

	if s.deps.Audit != nil {
		if err := s.deps.Audit.Log(ctx, "publish.cycle", auditDetail(report)); err != nil {
			fail("audit", err)
		}
	}

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyCycle(ctx, report); err != nil {
			fail("notify", err)
		}
	}

	return errors.Join(errs...)
}

// Prune deletes publication history older than retention.
func (s *PublicationService) Prune(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	if s.deps.Store == nil || retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-retention)
	n, err := s.deps.Store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("publication_service: prune: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "pruned publication history",
			slog.Int64("deleted", n),
			slog.Time("before", cutoff),
		)
	}
	if s.deps.Audit != nil {
		if err := s.deps.Audit.Log(ctx, "publish.prune", map[string]any{
			"deleted": n,
			"before":  cutoff.Format(time.RFC3339),
		}); err != nil {
			s.logger.WarnContext(ctx, "publication_service: audit prune failed", slog.String("error", err.Error()))
		}
	}
	return n, nil
}

// LatestPrices returns the cached attested price for each key. Keys with no
// cached price are omitted.
func (s *PublicationService) LatestPrices(ctx context.Context, keys []string) (map[string]domain.AttestedPrice, error) {
	if s.deps.Prices == nil {
		return map[string]domain.AttestedPrice{}, nil
	}
	prices, err := s.deps.Prices.GetPrices(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("publication_service: latest prices: %w", err)
	}
	return prices, nil
}

// VenueHistory returns the newest stored publication of every asset of
// venue.
func (s *PublicationService) VenueHistory(ctx context.Context, venue string) ([]domain.PublicationRecord, error) {
	if s.deps.Store == nil {
		return nil, nil
	}
	records, err := s.deps.Store.LatestByVenue(ctx, venue)
	if err != nil {
		return nil, fmt.Errorf("publication_service: venue history %s: %w", venue, err)
	}
	return records, nil
}

// KeyHistory returns the stored publications of one "<Venue>:<ASSET>" key,
// newest first.
func (s *PublicationService) KeyHistory(ctx context.Context, key string, limit int) ([]domain.PublicationRecord, error) {
	if s.deps.Store == nil {
		return nil, nil
	}
	records, err := s.deps.Store.ListByKey(ctx, key, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("publication_service: key history %s: %w", key, err)
	}
	return records, nil
}

// AuditLog returns the newest audit rows of event, at most limit of them. An
// empty event lists every event.
func (s *PublicationService) AuditLog(ctx context.Context, event string, limit int) ([]domain.AuditEntry, error) {
	if s.deps.Audit == nil {
		return nil, nil
	}
	entries, err := s.deps.Audit.List(ctx, event, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("publication_service: audit log: %w", err)
	}
	return entries, nil
}

// ToRecords converts the publications of report into store records.
func ToRecords(report domain.CycleReport) []domain.PublicationRecord {
	pubs := report.Publications()
	records := make([]domain.PublicationRecord, 0, len(pubs))
	for _, p := range pubs {
		records = append(records, domain.PublicationRecord{
			CycleID:     report.ID,
			Key:         p.Key,
			Venue:       p.Venue,
			Asset:       p.Asset,
			TxHash:      p.TxHash,
			Mode:        report.Mode,
			Price:       p.Args.Price,
			AttestedAt:  time.Unix(int64(p.Args.Timestamp), 0).UTC(),
			PublishedAt: report.FinishedAt,
		})
	}
	return records
}

func auditDetail(report domain.CycleReport) map[string]any {
	venues := make(map[string]any, len(report.Venues))
	for _, vr := range report.Venues {
		v := map[string]any{
			"attempts":  vr.Attempts,
			"published": len(vr.Publications),
			"skipped":   len(vr.Skipped),
		}
		if vr.Err != nil {
			v["error"] = vr.Err.Error()
		}
		venues[vr.Venue] = v
	}
	return map[string]any{
		"cycle_id":   report.ID,
		"mode":       string(report.Mode),
		"assets":     report.Assets,
		"published":  len(report.Publications()),
		"all_failed": report.AllFailed(),
		"elapsed_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		"venues":     venues,
	}
}
