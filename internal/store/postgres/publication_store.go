package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// Compile-time check that PublicationStore implements domain.PublicationStore.
var _ domain.PublicationStore = (*PublicationStore)(nil)

// PublicationStore implements domain.PublicationStore using PostgreSQL.
type PublicationStore struct {
	pool *pgxpool.Pool
}

// NewPublicationStore creates a new PublicationStore backed by the given
// connection pool.
func NewPublicationStore(pool *pgxpool.Pool) *PublicationStore {
	return &PublicationStore{pool: pool}
}

// price is NUMERIC(20,0) so the full uint64 range fits; it travels as text.
const publicationSelectCols = `id, cycle_id::text, result_key, venue, asset, tx_hash,
	submit_mode, price::text, attested_at, published_at`

func scanPublicationRows(rows pgx.Rows) ([]domain.PublicationRecord, error) {
	var records []domain.PublicationRecord
	for rows.Next() {
		var (
			r     domain.PublicationRecord
			mode  string
			price string
		)
		if err := rows.Scan(
			&r.ID, &r.CycleID, &r.Key, &r.Venue, &r.Asset, &r.TxHash,
			&mode, &price, &r.AttestedAt, &r.PublishedAt,
		); err != nil {
			return nil, err
		}
		p, err := strconv.ParseUint(price, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", price, err)
		}
		r.Price = p
		r.Mode = domain.SubmitMode(mode)
		records = append(records, r)
	}
	return records, rows.Err()
}

// InsertBatch inserts the publications of one cycle using a pgx Batch.
// Re-recording the same cycle is a no-op via ON CONFLICT DO NOTHING.
func (s *PublicationStore) InsertBatch(ctx context.Context, records []domain.PublicationRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO publications (
			cycle_id, result_key, venue, asset, tx_hash,
			submit_mode, price, attested_at, published_at
		) VALUES (
			$1::uuid, $2, $3, $4, $5,
			$6, $7::numeric, $8, $9
		) ON CONFLICT (cycle_id, result_key) DO NOTHING`

	for _, r := range records {
		batch.Queue(query,
			r.CycleID, r.Key, r.Venue, r.Asset, r.TxHash,
			string(r.Mode), strconv.FormatUint(r.Price, 10), r.AttestedAt, r.PublishedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert publication %d (%s): %w", i, records[i].Key, err)
		}
	}
	return nil
}

// ListByKey returns the publication history of one "<Venue>:<ASSET>" key,
// newest first.
func (s *PublicationStore) ListByKey(ctx context.Context, key string, opts domain.ListOpts) ([]domain.PublicationRecord, error) {
	query := `SELECT ` + publicationSelectCols + ` FROM publications WHERE result_key = $1`
	args := []any{key}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND published_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND published_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY published_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list publications for %s: %w", key, err)
	}
	defer rows.Close()

	records, err := scanPublicationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan publications for %s: %w", key, err)
	}
	return records, nil
}

// LatestByVenue returns the newest publication of every asset a venue has
// published.
func (s *PublicationStore) LatestByVenue(ctx context.Context, venue string) ([]domain.PublicationRecord, error) {
	query := `SELECT DISTINCT ON (asset) ` + publicationSelectCols + `
		FROM publications
		WHERE venue = $1
		ORDER BY asset, published_at DESC`

	rows, err := s.pool.Query(ctx, query, venue)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest publications for %s: %w", venue, err)
	}
	defer rows.Close()

	records, err := scanPublicationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan latest publications for %s: %w", venue, err)
	}
	return records, nil
}

// DeleteBefore prunes publications older than before and returns how many
// rows were removed.
func (s *PublicationStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM publications WHERE published_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete publications before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
