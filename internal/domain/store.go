package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PublicationRecord is a persisted publication.
type PublicationRecord struct {
	ID          int64
	CycleID     string
	Key         string
	Venue       string
	Asset       string
	TxHash      string
	Mode        SubmitMode
	Price       uint64
	AttestedAt  time.Time
	PublishedAt time.Time
}

// PublicationStore persists publication history.
type PublicationStore interface {
	InsertBatch(ctx context.Context, records []PublicationRecord) error
	ListByKey(ctx context.Context, key string, opts ListOpts) ([]PublicationRecord, error)
	LatestByVenue(ctx context.Context, venue string) ([]PublicationRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns entries newest first. An empty event lists every event.
	List(ctx context.Context, event string, opts ListOpts) ([]AuditEntry, error)
}
