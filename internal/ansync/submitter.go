package ansync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/observability"
	"github.com/rs/zerolog/log"
)

// DefaultChunkSize keeps each update well under the per-message bound.
const DefaultChunkSize = 25

// Policy decides what happens after a chunk fails.
type Policy string

const (
	// PolicyAbort stops at the first failing chunk. Earlier chunks stay committed.
	PolicyAbort Policy = "abort"
	// PolicySkip records the failure and continues with the next chunk.
	PolicySkip Policy = "skip"
	// PolicyRetry retries transient commit failures, then aborts.
	PolicyRetry Policy = "retry"
)

func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyAbort, nil
	case PolicyAbort, PolicySkip, PolicyRetry:
		return p, nil
	default:
		return "", fmt.Errorf("ansync: unknown failure policy %q", raw)
	}
}

// ReconcileError reports the chunk that failed. Chunks before it committed.
type ReconcileError struct {
	Kind       string
	ChunkIndex int
	Cause      error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("ansync: reconcile %s chunk %d: %v", e.Kind, e.ChunkIndex, e.Cause)
}

func (e *ReconcileError) Unwrap() error {
	return e.Cause
}

// Updater submits one update as its own transaction; *ans.Client implements it.
type Updater interface {
	Update(ctx context.Context, sender ledger.Address, msg api.AnsExecute) (*ledger.Result, error)
}

type Options struct {
	ChunkSize       int
	Policy          Policy
	MaxRetries      uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:       DefaultChunkSize,
		Policy:          PolicyAbort,
		MaxRetries:      5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Report summarises one entry kind's reconciliation.
type Report struct {
	Kind         string `json:"kind"`
	Chunks       int    `json:"chunks"`
	Committed    int    `json:"committed"`
	FailedChunks []int  `json:"failed_chunks,omitempty"`
	Added        int    `json:"added"`
	Removed      int    `json:"removed"`

	// PendingRemovals counts removals no committed chunk carried.
	PendingRemovals int `json:"pending_removals,omitempty"`
}

// Submitter splits updates into chunks and submits them sequentially.
type Submitter struct {
	updater Updater
	sender  ledger.Address
	opts    Options
}

func NewSubmitter(updater Updater, sender ledger.Address, opts Options) *Submitter {
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.Policy == "" {
		opts.Policy = def.Policy
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = def.InitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = def.MaxInterval
	}
	return &Submitter{updater: updater, sender: sender, opts: opts}
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]T
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		out = append(out, items[i:end])
	}
	return out
}

func (s *Submitter) UpdateAssets(ctx context.Context, add []api.Pair[string, api.AssetInfo], remove []string) (Report, error) {
	return submitChunked(ctx, s, api.EntryAssets, add, remove, func(a []api.Pair[string, api.AssetInfo], r []string) api.AnsExecute {
		return api.AnsExecute{UpdateAssets: &api.UpdateAssets{ToAdd: a, ToRemove: r}}
	})
}

func (s *Submitter) UpdateContracts(ctx context.Context, add []api.Pair[api.ContractEntry, string], remove []api.ContractEntry) (Report, error) {
	return submitChunked(ctx, s, api.EntryContracts, add, remove, func(a []api.Pair[api.ContractEntry, string], r []api.ContractEntry) api.AnsExecute {
		return api.AnsExecute{UpdateContracts: &api.UpdateContracts{ToAdd: a, ToRemove: r}}
	})
}

func (s *Submitter) UpdateChannels(ctx context.Context, add []api.Pair[api.ChannelEntry, string], remove []api.ChannelEntry) (Report, error) {
	return submitChunked(ctx, s, api.EntryChannels, add, remove, func(a []api.Pair[api.ChannelEntry, string], r []api.ChannelEntry) api.AnsExecute {
		return api.AnsExecute{UpdateChannels: &api.UpdateChannels{ToAdd: a, ToRemove: r}}
	})
}

func (s *Submitter) UpdateDexes(ctx context.Context, add, remove []string) (Report, error) {
	return submitChunked(ctx, s, api.EntryDexes, add, remove, func(a, r []string) api.AnsExecute {
		return api.AnsExecute{UpdateDexes: &api.UpdateDexes{ToAdd: a, ToRemove: r}}
	})
}

// UpdatePools registers every dex referenced by add before the first pool chunk.
func (s *Submitter) UpdatePools(ctx context.Context, add []api.Pair[api.PoolAddress, api.PoolMetadata], remove []api.PoolAddress) ([]Report, error) {
	var reports []Report
	if dexes := DexSet(add); len(dexes) > 0 {
		rep, err := s.UpdateDexes(ctx, dexes, nil)
		reports = append(reports, rep)
		if err != nil {
			return reports, err
		}
	}
	rep, err := submitChunked(ctx, s, api.EntryPools, add, remove, func(a []api.Pair[api.PoolAddress, api.PoolMetadata], r []api.PoolAddress) api.AnsExecute {
		return api.AnsExecute{UpdatePools: &api.UpdatePools{ToAdd: a, ToRemove: r}}
	})
	return append(reports, rep), err
}

// DexSet returns the sorted distinct dexes referenced by pools.
func DexSet(pools []api.Pair[api.PoolAddress, api.PoolMetadata]) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range pools {
		d := api.NormalizeName(p.Value.Dex)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Sync reconciles assets, contracts, channels, then dexes and pools. Under
// PolicySkip every kind is attempted and the chunk errors are joined.
func (s *Submitter) Sync(ctx context.Context, ds Dataset) ([]Report, error) {
	var reports []Report
	var errs []error
	steps := []func() ([]Report, error){
		func() ([]Report, error) {
			rep, err := s.UpdateAssets(ctx, ds.Assets, nil)
			return []Report{rep}, err
		},
		func() ([]Report, error) {
			rep, err := s.UpdateContracts(ctx, ds.Contracts, nil)
			return []Report{rep}, err
		},
		func() ([]Report, error) {
			rep, err := s.UpdateChannels(ctx, ds.Channels, nil)
			return []Report{rep}, err
		},
		func() ([]Report, error) {
			return s.UpdatePools(ctx, ds.Pools, nil)
		},
	}
	for _, step := range steps {
		reps, err := step()
		reports = append(reports, reps...)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if s.opts.Policy != PolicySkip {
			break
		}
	}
	return reports, errors.Join(errs...)
}

// submitChunked sends removals with the first chunk. Under PolicySkip a
// failed chunk hands its removals to the next one, and removals left over
// when every chunk failed are reported as pending. An update with removals
// and no additions is still one call.
func submitChunked[A, R any](ctx context.Context, s *Submitter, kind string, add []A, remove []R, build func([]A, []R) api.AnsExecute) (Report, error) {
	report := Report{Kind: kind}
	chunks := Chunk(add, s.opts.ChunkSize)
	if len(chunks) == 0 && len(remove) > 0 {
		chunks = [][]A{nil}
	}
	report.Chunks = len(chunks)

	var errs []error
	pending := remove
	for i, chunk := range chunks {
		rm := pending
		msg := build(chunk, rm)
		if err := s.submit(ctx, msg); err != nil {
			observability.RecordReconcileChunk(kind, observability.OutcomeFailed, len(chunk)+len(rm))
			rerr := &ReconcileError{Kind: kind, ChunkIndex: i, Cause: err}
			report.FailedChunks = append(report.FailedChunks, i)
			log.Warn().Msgf("ansync.Submitter.submit kind=%s chunk=%d/%d policy=%s err=%v", kind, i+1, len(chunks), s.opts.Policy, err)
			if s.opts.Policy != PolicySkip || ctx.Err() != nil {
				report.PendingRemovals = len(pending)
				return report, rerr
			}
			errs = append(errs, rerr)
			continue
		}
		observability.RecordReconcileChunk(kind, observability.OutcomeCommitted, len(chunk)+len(rm))
		pending = nil
		report.Committed++
		report.Added += len(chunk)
		report.Removed += len(rm)
		log.Debug().Msgf("ansync.Submitter.submit kind=%s chunk=%d/%d added=%d removed=%d", kind, i+1, len(chunks), len(chunk), len(rm))
	}
	if len(chunks) > 0 {
		log.Info().Msgf("ansync.Submitter kind=%s chunks=%d committed=%d failed=%d", kind, report.Chunks, report.Committed, len(report.FailedChunks))
	}
	report.PendingRemovals = len(pending)
	if len(pending) > 0 {
		log.Warn().Msgf("ansync.Submitter kind=%s removals=%d not applied", kind, len(pending))
	}
	return report, errors.Join(errs...)
}

func (s *Submitter) submit(ctx context.Context, msg api.AnsExecute) error {
	if s.opts.Policy != PolicyRetry {
		_, err := s.updater.Update(ctx, s.sender, msg)
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval
	_, err := backoff.Retry(ctx, func() (*ledger.Result, error) {
		res, err := s.updater.Update(ctx, s.sender, msg)
		if err != nil && !errors.Is(err, ledger.ErrCommitFailed) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.opts.MaxRetries+1))
	return err
}
