package publisher

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// --- fakes -----------------------------------------------------------------

type fakeSource struct {
	name  string
	batch []domain.SignedAttestation
	// errs is consumed one per Fetch call; nil entries succeed.
	errs   []error
	always error
	calls  int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Fetch(_ context.Context, _ []string) ([]domain.SignedAttestation, error) {
	s.calls++
	if s.always != nil {
		return nil, s.always
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.batch, nil
}

type fakeSubmitter struct {
	mu    sync.Mutex
	next  int
	calls [][]domain.ContractCallArgs
	// failAt maps a 1-based Submit call number to the error it returns.
	failAt map[int]error
}

func (s *fakeSubmitter) Submit(_ context.Context, calls []domain.ContractCallArgs) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, calls)
	if err, ok := s.failAt[len(s.calls)]; ok {
		return "", err
	}
	s.next++
	return fmt.Sprintf("0x%04x", s.next), nil
}

type fakeTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (f *fakeTimer) Start(d time.Duration) {
	f.waits = append(f.waits, d)
	f.c <- time.Time{}
}

func (f *fakeTimer) Stop() {}

func (f *fakeTimer) C() <-chan time.Time { return f.c }

// --- helpers ---------------------------------------------------------------

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func signed(ticker string, price uint64) domain.SignedAttestation {
	msg := make([]byte, 232)
	binary.LittleEndian.PutUint64(msg[56:], 1_700_000_000)
	binary.LittleEndian.PutUint64(msg[120:], price)
	binary.LittleEndian.PutUint64(msg[216:], uint64(len(ticker)))
	copy(msg[224:232], ticker)

	sig := make([]byte, 96)
	sig[31] = 0x11
	sig[63] = 0x22
	sig[95] = 27
	return domain.SignedAttestation{Message: msg, Signature: sig, Ticker: ticker}
}

func transient(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrTransport, msg)
}

func newPublisher(sub domain.Submitter, mode domain.SubmitMode, attempts int, timer *fakeTimer, venues ...Venue) *Publisher {
	return New(sub, venues, Options{
		Mode: mode,
		Retry: RetryPolicy{
			MaxAttempts: attempts,
			Delay:       10 * time.Second,
			Timer:       timer,
		},
	}, discardLogger())
}

// --- tests -----------------------------------------------------------------

func TestPublishAll_RetriesTransientFailures(t *testing.T) {
	src := &fakeSource{
		name:  "OKX",
		batch: []domain.SignedAttestation{signed("BTC", 1)},
		errs:  []error{transient("timeout"), transient("reset"), nil},
	}
	sub := &fakeSubmitter{}
	timer := newFakeTimer()

	p := newPublisher(sub, domain.SubmitSequential, 3, timer,
		Venue{Name: "OKX", Identity: big.NewInt(1), Source: src})

	res := p.PublishAll(context.Background(), []string{"btc"})

	assert.Equal(t, 3, src.calls)
	assert.Equal(t, domain.PublishResult{"OKX:BTC": "0x0001"}, res)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, timer.waits)
}

func TestPublishAll_ExhaustedVenueContributesNothing(t *testing.T) {
	src := &fakeSource{name: "OKX", always: transient("connection refused")}
	sub := &fakeSubmitter{}
	timer := newFakeTimer()

	p := newPublisher(sub, domain.SubmitSequential, 2, timer,
		Venue{Name: "OKX", Identity: big.NewInt(1), Source: src})

	var res domain.PublishResult
	require.NotPanics(t, func() {
		res = p.PublishAll(context.Background(), []string{"btc", "eth"})
	})

	assert.Empty(t, res)
	assert.Equal(t, 2, src.calls)
	assert.Empty(t, sub.calls)
	assert.Len(t, timer.waits, 1)
}

func TestPublishAll_TwoVenuesEndToEnd(t *testing.T) {
	a := &fakeSource{name: "A", batch: []domain.SignedAttestation{signed("BTC", 1), signed("ETH", 2)}}
	b := &fakeSource{name: "B", batch: []domain.SignedAttestation{signed("ETH", 3)}}
	sub := &fakeSubmitter{}

	p := newPublisher(sub, domain.SubmitSequential, 3, newFakeTimer(),
		Venue{Name: "A", Identity: big.NewInt(0xa), Source: a},
		Venue{Name: "B", Identity: big.NewInt(0xb), Source: b},
	)

	res := p.PublishAll(context.Background(), []string{"btc", "eth"})

	require.Len(t, res, 3)
	assert.Contains(t, res, "A:BTC")
	assert.Contains(t, res, "A:ETH")
	assert.Contains(t, res, "B:ETH")

	distinct := map[string]bool{}
	for _, tx := range res {
		distinct[tx] = true
	}
	assert.Len(t, distinct, 3)

	// One call per transaction, in venue then requested order.
	require.Len(t, sub.calls, 3)
	assert.Equal(t, "BTC", sub.calls[0][0].Ticker)
	assert.Equal(t, int64(0xa), sub.calls[0][0].PublisherIdentity.Int64())
	assert.Equal(t, "ETH", sub.calls[2][0].Ticker)
	assert.Equal(t, int64(0xb), sub.calls[2][0].PublisherIdentity.Int64())
}

func TestPublishCycle_VenueWithoutIdentityFails(t *testing.T) {
	a := &fakeSource{name: "A", batch: []domain.SignedAttestation{signed("BTC", 1)}}
	b := &fakeSource{name: "B", batch: []domain.SignedAttestation{signed("BTC", 2)}}
	sub := &fakeSubmitter{}

	p := newPublisher(sub, domain.SubmitSequential, 3, newFakeTimer(),
		Venue{Name: "A", Source: a},
		Venue{Name: "B", Identity: big.NewInt(0xb), Source: b},
	)

	report := p.PublishCycle(context.Background(), []string{"btc"})

	require.Len(t, report.Venues, 2)
	assert.ErrorIs(t, report.Venues[0].Err, ErrMissingIdentity)
	assert.Zero(t, a.calls)
	assert.NoError(t, report.Venues[1].Err)
	assert.Equal(t, domain.PublishResult{"B:BTC": "0x0001"}, report.Results())
}

func TestPublishAll_BatchedAttributesOneTransaction(t *testing.T) {
	a := &fakeSource{name: "A", batch: []domain.SignedAttestation{signed("BTC", 1), signed("ETH", 2)}}
	b := &fakeSource{name: "B", batch: []domain.SignedAttestation{signed("ETH", 3)}}
	sub := &fakeSubmitter{}

	p := newPublisher(sub, domain.SubmitBatched, 3, newFakeTimer(),
		Venue{Name: "A", Identity: big.NewInt(1), Source: a},
		Venue{Name: "B", Identity: big.NewInt(2), Source: b},
	)

	res := p.PublishAll(context.Background(), []string{"btc", "eth"})

	require.Len(t, sub.calls, 2)
	assert.Len(t, sub.calls[0], 2)
	assert.Len(t, sub.calls[1], 1)
	assert.Equal(t, res["A:BTC"], res["A:ETH"])
	assert.NotEqual(t, res["A:ETH"], res["B:ETH"])
}

func TestPublishAll_ValidationRejectedIsNotRetried(t *testing.T) {
	a := &fakeSource{name: "A", batch: []domain.SignedAttestation{signed("BTC", 1)}}
	b := &fakeSource{name: "B", batch: []domain.SignedAttestation{signed("BTC", 2)}}
	sub := &fakeSubmitter{failAt: map[int]error{
		1: fmt.Errorf("%w: execution reverted", domain.ErrValidationRejected),
	}}
	timer := newFakeTimer()

	p := newPublisher(sub, domain.SubmitSequential, 3, timer,
		Venue{Name: "A", Identity: big.NewInt(1), Source: a},
		Venue{Name: "B", Identity: big.NewInt(2), Source: b},
	)

	report := p.PublishCycle(context.Background(), []string{"btc"})

	assert.Equal(t, 1, a.calls)
	assert.Empty(t, timer.waits)
	require.Len(t, report.Venues, 2)
	assert.ErrorIs(t, report.Venues[0].Err, domain.ErrValidationRejected)
	assert.Equal(t, 1, report.Venues[0].Attempts)
	assert.NoError(t, report.Venues[1].Err)
	assert.Equal(t, domain.PublishResult{"B:BTC": "0x0001"}, report.Results())
	assert.False(t, report.AllFailed())
}

func TestPublishAll_UnclassifiedErrorIsNotRetried(t *testing.T) {
	src := &fakeSource{name: "A", always: errors.New("boom")}
	p := newPublisher(&fakeSubmitter{}, domain.SubmitSequential, 5, newFakeTimer(),
		Venue{Name: "A", Identity: big.NewInt(1), Source: src})

	report := p.PublishCycle(context.Background(), []string{"btc"})

	assert.Equal(t, 1, src.calls)
	assert.True(t, report.AllFailed())
}

func TestPublishAll_MalformedAttestationFilteredBeforeBatching(t *testing.T) {
	bad := signed("ETH", 2)
	bad.Signature = bad.Signature[:65]
	src := &fakeSource{name: "A", batch: []domain.SignedAttestation{signed("BTC", 1), bad}}
	sub := &fakeSubmitter{}

	p := newPublisher(sub, domain.SubmitBatched, 1, newFakeTimer(),
		Venue{Name: "A", Identity: big.NewInt(1), Source: src})

	report := p.PublishCycle(context.Background(), []string{"btc", "eth"})

	require.Len(t, sub.calls, 1)
	require.Len(t, sub.calls[0], 1)
	assert.Equal(t, "BTC", sub.calls[0][0].Ticker)
	assert.Equal(t, domain.PublishResult{"A:BTC": "0x0001"}, report.Results())
	require.Len(t, report.Venues[0].Skipped, 1)
	assert.Equal(t, "ETH", report.Venues[0].Skipped[0].Asset)
}

func TestPublishAll_SequentialRetryResubmitsWholeVenue(t *testing.T) {
	src := &fakeSource{name: "A", batch: []domain.SignedAttestation{signed("BTC", 1), signed("ETH", 2)}}
	sub := &fakeSubmitter{failAt: map[int]error{2: transient("nonce race")}}

	p := newPublisher(sub, domain.SubmitSequential, 3, newFakeTimer(),
		Venue{Name: "A", Identity: big.NewInt(1), Source: src})

	report := p.PublishCycle(context.Background(), []string{"btc", "eth"})

	assert.Equal(t, 2, src.calls)
	assert.Len(t, sub.calls, 4)
	assert.Equal(t, 2, report.Venues[0].Attempts)
	// Results come from the successful attempt only.
	assert.Equal(t, domain.PublishResult{"A:BTC": "0x0002", "A:ETH": "0x0003"}, report.Results())
}

func TestPublishAll_DuplicateRequestsPublishOnce(t *testing.T) {
	src := &fakeSource{name: "A", batch: []domain.SignedAttestation{signed("BTC", 1)}}
	sub := &fakeSubmitter{}

	p := newPublisher(sub, domain.SubmitSequential, 1, newFakeTimer(),
		Venue{Name: "A", Identity: big.NewInt(1), Source: src})

	res := p.PublishAll(context.Background(), []string{"btc", "BTC"})

	assert.Len(t, sub.calls, 1)
	assert.Len(t, res, 1)
}

func TestPublishCycle_ReportOrderAndBatch(t *testing.T) {
	batch := []domain.SignedAttestation{signed("ETH", 2), signed("BTC", 1)}
	src := &fakeSource{name: "A", batch: batch}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	p := New(&fakeSubmitter{}, []Venue{{Name: "A", Identity: big.NewInt(1), Source: src}}, Options{
		Retry: RetryPolicy{MaxAttempts: 1},
		Now:   func() time.Time { return now },
	}, discardLogger())

	report := p.PublishCycle(context.Background(), []string{"btc", "eth"})

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, domain.SubmitSequential, report.Mode)
	assert.Equal(t, now, report.StartedAt)
	assert.Equal(t, batch, report.Venues[0].Batch)

	pubs := report.Publications()
	require.Len(t, pubs, 2)
	assert.Equal(t, "A:BTC", pubs[0].Key)
	assert.Equal(t, "A:ETH", pubs[1].Key)
	assert.Equal(t, uint64(1), pubs[0].Args.Price)
}

func TestPublishCycle_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{name: "A", always: transient("down")}
	timer := &cancelTimer{cancel: cancel, c: make(chan time.Time)}

	p := New(&fakeSubmitter{}, []Venue{{Name: "A", Identity: big.NewInt(1), Source: src}}, Options{
		Retry: RetryPolicy{MaxAttempts: 10, Delay: time.Hour, Timer: timer},
	}, discardLogger())

	report := p.PublishCycle(ctx, []string{"btc"})

	assert.Equal(t, 1, src.calls)
	assert.ErrorIs(t, report.Venues[0].Err, context.Canceled)
}

// cancelTimer cancels the cycle's context instead of firing.
type cancelTimer struct {
	cancel context.CancelFunc
	c      chan time.Time
}

func (c *cancelTimer) Start(time.Duration) { c.cancel() }
func (c *cancelTimer) Stop()               {}
func (c *cancelTimer) C() <-chan time.Time { return c.c }
