// Package publisher runs publish cycles: for every configured venue it fetches
// the signed batch, selects the requested assets, builds one publishEntry call
// per asset and submits the calls, retrying the whole venue on transport
// failures. Venues are processed one after another and never abort each
// other.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/openoracle/internal/attestation"
	"github.com/alanyoungcy/openoracle/internal/domain"
)

// ErrMissingIdentity is reported for a venue configured without a publisher
// identity.
var ErrMissingIdentity = errors.New("missing publisher identity")

// Venue is an attestation source together with the on-chain identity the
// contract attributes its prices to.
type Venue struct {
	Name     string
	Identity *big.Int
	Source   domain.AttestationSource
}

// Options tunes a Publisher.
type Options struct {
	Mode  domain.SubmitMode
	Retry RetryPolicy
	// Now defaults to time.Now.
	Now func() time.Time
}

// Publisher orchestrates publish cycles over a fixed set of venues. It shares
// one Submitter across venues and calls it strictly sequentially; a Publisher
// must not run two cycles at once.
type Publisher struct {
	submitter domain.Submitter
	venues    []Venue
	opts      Options
	logger    *slog.Logger
}

// New creates a Publisher. Venues are processed in the given order.
func New(submitter domain.Submitter, venues []Venue, opts Options, logger *slog.Logger) *Publisher {
	if opts.Mode == "" {
		opts.Mode = domain.SubmitSequential
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{
		submitter: submitter,
		venues:    venues,
		opts:      opts,
		logger:    logger.With(slog.String("component", "publisher")),
	}
}

// PublishAll runs one cycle for the requested assets and returns the
// published transactions keyed by "<Venue>:<ASSET>". Venue failures are
// logged and leave the venue out of the result.
func (p *Publisher) PublishAll(ctx context.Context, assets []string) domain.PublishResult {
	return p.PublishCycle(ctx, assets).Results()
}

// PublishCycle is PublishAll returning the full per-venue report.
func (p *Publisher) PublishCycle(ctx context.Context, assets []string) domain.CycleReport {
	report := domain.CycleReport{
		ID:        uuid.NewString(),
		Mode:      p.opts.Mode,
		Assets:    append([]string(nil), assets...),
		StartedAt: p.opts.Now().UTC(),
	}
	logger := p.logger.With(slog.String("cycle_id", report.ID))

	logger.InfoContext(ctx, "publish cycle starting",
		slog.String("mode", string(p.opts.Mode)),
		slog.Any("assets", assets),
		slog.Int("venues", len(p.venues)),
	)

	for _, v := range p.venues {
		report.Venues = append(report.Venues, p.publishVenue(ctx, v, assets, logger))
	}
	report.FinishedAt = p.opts.Now().UTC()

	logger.InfoContext(ctx, "publish cycle finished",
		slog.Int("published", len(report.Publications())),
		slog.Bool("all_failed", report.AllFailed()),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

func (p *Publisher) publishVenue(ctx context.Context, v Venue, assets []string, logger *slog.Logger) domain.VenueReport {
	vr := domain.VenueReport{Venue: v.Name}
	logger = logger.With(slog.String("venue", v.Name))

	if v.Identity == nil {
		vr.Err = fmt.Errorf("publisher: venue %s: %w", v.Name, ErrMissingIdentity)
		logger.ErrorContext(ctx, "venue has no publisher identity, venue skipped this cycle")
		return vr
	}

	attempts, err := p.opts.Retry.run(ctx,
		func(attempt int) error {
			logger.DebugContext(ctx, "venue attempt", slog.Int("attempt", attempt))
			out, err := p.attempt(ctx, v, assets, logger)
			if out.batch != nil {
				vr.Batch = out.batch
			}
			if err != nil {
				return err
			}
			vr.Publications = out.publications
			vr.Skipped = out.skipped
			return nil
		},
		func(attempt int, err error, wait time.Duration) {
			logger.WarnContext(ctx, "venue attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		},
	)
	vr.Attempts = attempts

	if err != nil {
		vr.Err = fmt.Errorf("publisher: venue %s: %w", v.Name, err)
		logger.ErrorContext(ctx, "venue publish failed, venue skipped this cycle",
			slog.Int("attempts", attempts),
			slog.Bool("retryable", Retryable(err)),
			slog.String("error", err.Error()),
		)
	}
	return vr
}

type attemptOutput struct {
	publications []domain.Publication
	skipped      []domain.SkippedAsset
	batch        []domain.SignedAttestation
}

// attempt runs fetch, match, build and submit once for a venue.
func (p *Publisher) attempt(ctx context.Context, v Venue, assets []string, logger *slog.Logger) (attemptOutput, error) {
	var out attemptOutput

	batch, err := v.Source.Fetch(ctx, assets)
	if err != nil {
		return out, fmt.Errorf("fetch: %w", err)
	}
	out.batch = batch

	matched := attestation.MatchAssets(v.Name, assets, batch, v.Identity, logger)
	pending, skipped := p.build(v.Name, matched, logger)
	out.skipped = skipped

	if len(pending) == 0 {
		logger.InfoContext(ctx, "no attestations to publish for venue")
		return out, nil
	}

	switch p.opts.Mode {
	case domain.SubmitBatched:
		calls := make([]domain.ContractCallArgs, len(pending))
		for i := range pending {
			calls[i] = pending[i].Args
		}
		tx, err := p.submitter.Submit(ctx, calls)
		if err != nil {
			return out, fmt.Errorf("submit batch of %d: %w", len(calls), err)
		}
		for _, pub := range pending {
			pub.TxHash = tx
			out.publications = append(out.publications, pub)
		}
		logger.InfoContext(ctx, "venue batch published",
			slog.String("tx", tx),
			slog.Int("calls", len(calls)),
		)

	default:
		for _, pub := range pending {
			tx, err := p.submitter.Submit(ctx, []domain.ContractCallArgs{pub.Args})
			if err != nil {
				return out, fmt.Errorf("submit %s: %w", pub.Key, err)
			}
			pub.TxHash = tx
			out.publications = append(out.publications, pub)
			logger.InfoContext(ctx, "attestation published",
				slog.String("key", pub.Key),
				slog.String("tx", tx),
			)
		}
	}

	return out, nil
}

// build turns matches into pending publications. Matches that fail to decode
// are dropped here so they never reach a batch.
func (p *Publisher) build(venue string, matched []domain.MatchedAttestation, logger *slog.Logger) ([]domain.Publication, []domain.SkippedAsset) {
	var (
		pending []domain.Publication
		skipped []domain.SkippedAsset
	)
	seen := make(map[string]bool, len(matched))

	for _, m := range matched {
		key := domain.ResultKey(venue, m.Asset)
		if seen[key] {
			continue
		}
		seen[key] = true

		args, err := attestation.PrepareCallArgs(m, logger)
		if err != nil {
			logger.Warn("dropping undecodable attestation",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			skipped = append(skipped, domain.SkippedAsset{Asset: m.Asset, Reason: err.Error()})
			continue
		}

		pending = append(pending, domain.Publication{
			Key:   key,
			Venue: venue,
			Asset: m.Asset,
			Args:  args,
		})
	}
	return pending, skipped
}
