package domain

import (
	"strings"
	"time"
)

// SubmitMode selects how a venue's calls are turned into transactions.
type SubmitMode string

const (
	// SubmitBatched combines every call of a venue into one transaction.
	SubmitBatched SubmitMode = "batched"
	// SubmitSequential sends one transaction per call, in order.
	SubmitSequential SubmitMode = "sequential"
)

// PublishResult maps "<Venue>:<ASSET>" to the transaction that carried the
// asset's attestation.
type PublishResult map[string]string

// ResultKey builds the source-qualified key used in PublishResult.
func ResultKey(venue, asset string) string {
	return venue + ":" + strings.ToUpper(asset)
}

// Publication is one published asset.
type Publication struct {
	Key    string
	Venue  string
	Asset  string
	TxHash string
	Args   ContractCallArgs
}

// SkippedAsset records an asset that was matched but could not be turned into
// a call.
type SkippedAsset struct {
	Asset  string
	Reason string
}

// VenueReport is the outcome of one venue within a publish cycle. Err is set
// when the venue contributed nothing.
type VenueReport struct {
	Venue        string
	Attempts     int
	Publications []Publication
	Skipped      []SkippedAsset
	Batch        []SignedAttestation // last fetched batch
	Err          error
}

// CycleReport is the full outcome of a publish cycle.
type CycleReport struct {
	ID         string
	Mode       SubmitMode
	Assets     []string
	StartedAt  time.Time
	FinishedAt time.Time
	Venues     []VenueReport
}

// Publications returns every publication of the cycle in submission order.
func (r CycleReport) Publications() []Publication {
	var out []Publication
	for _, v := range r.Venues {
		out = append(out, v.Publications...)
	}
	return out
}

// Results flattens the report into a PublishResult.
func (r CycleReport) Results() PublishResult {
	res := make(PublishResult)
	for _, p := range r.Publications() {
		res[p.Key] = p.TxHash
	}
	return res
}

// AllFailed reports whether every venue of the cycle failed.
func (r CycleReport) AllFailed() bool {
	if len(r.Venues) == 0 {
		return false
	}
	for _, v := range r.Venues {
		if v.Err == nil {
			return false
		}
	}
	return true
}
