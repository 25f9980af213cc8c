package s3blob

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// Compile-time check that Archiver implements domain.BatchArchiver.
var _ domain.BatchArchiver = (*Archiver)(nil)

// multipartWriter is implemented by writers that can stream large objects.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// batchDocument is the archived form of one venue's fetched batch.
type batchDocument struct {
	CycleID    string            `json:"cycle_id"`
	Venue      string            `json:"venue"`
	Mode       string            `json:"mode"`
	FetchedAt  time.Time         `json:"fetched_at"`
	Attempts   int               `json:"attempts"`
	Messages   []string          `json:"messages"`
	Signatures []string          `json:"signatures"`
	Tickers    []string          `json:"tickers"`
	Published  map[string]string `json:"published,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Archiver uploads the raw signed batch of every venue in a cycle, one JSON
// object per venue, so published prices can be re-verified later.
//
// Objects land at attestations/<venue>/<yyyy>/<mm>/<dd>/<cycle id>.json.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates a new Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit}
}

// ArchiveCycle uploads the batches of report and returns how many objects
// were written. Venues that never fetched a batch are skipped.
func (a *Archiver) ArchiveCycle(ctx context.Context, report domain.CycleReport) (int, error) {
	written := 0
	for _, vr := range report.Venues {
		if len(vr.Batch) == 0 {
			continue
		}

		buf, err := json.Marshal(newBatchDocument(report, vr))
		if err != nil {
			return written, fmt.Errorf("s3blob: archive %s marshal: %w", vr.Venue, err)
		}

		path := archivePath(vr.Venue, report.StartedAt, report.ID)
		if err := a.put(ctx, path, buf); err != nil {
			return written, fmt.Errorf("s3blob: archive %s upload: %w", vr.Venue, err)
		}
		written++
	}

	if a.audit != nil && written > 0 {
		if err := a.audit.Log(ctx, "archive.cycle", map[string]any{
			"cycle_id": report.ID,
			"objects":  written,
		}); err != nil {
			return written, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return written, nil
}

func (a *Archiver) put(ctx context.Context, path string, buf []byte) error {
	if mw, ok := a.writer.(multipartWriter); ok && int64(len(buf)) >= minPartSize {
		return mw.PutMultipart(ctx, path, bytes.NewReader(buf), "application/json", minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json")
}

func newBatchDocument(report domain.CycleReport, vr domain.VenueReport) batchDocument {
	doc := batchDocument{
		CycleID:    report.ID,
		Venue:      vr.Venue,
		Mode:       string(report.Mode),
		FetchedAt:  report.StartedAt,
		Attempts:   vr.Attempts,
		Messages:   make([]string, len(vr.Batch)),
		Signatures: make([]string, len(vr.Batch)),
		Tickers:    make([]string, len(vr.Batch)),
	}
	for i, sa := range vr.Batch {
		doc.Messages[i] = "0x" + hex.EncodeToString(sa.Message)
		doc.Signatures[i] = "0x" + hex.EncodeToString(sa.Signature)
		doc.Tickers[i] = sa.Ticker
	}
	if len(vr.Publications) > 0 {
		doc.Published = make(map[string]string, len(vr.Publications))
		for _, p := range vr.Publications {
			doc.Published[p.Key] = p.TxHash
		}
	}
	if vr.Err != nil {
		doc.Error = vr.Err.Error()
	}
	return doc
}

// archivePath builds the object key for a venue batch, partitioned by the
// UTC day the cycle started.
//
//	attestations/okx/2026/01/02/<cycle id>.json
func archivePath(venue string, started time.Time, cycleID string) string {
	return fmt.Sprintf("attestations/%s/%s/%s.json",
		strings.ToLower(venue), started.UTC().Format("2006/01/02"), cycleID)
}
