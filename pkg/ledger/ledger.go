package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// commitRetries bounds the stale-tip retry loop in Commit.
const commitRetries = 5

// Ledger serializes appends onto one session's hash chain. Appends are
// linearizable: the caller presents the tip hash it observed, and the append
// fails with contracts.ErrStaleTip when a concurrent writer advanced the tip
// first. Entries are never mutated; annotations go to a side table.
type Ledger struct {
	store   Store
	genesis string
	clock   func() time.Time

	// appendMu serializes the read-compare-append window so that the store
	// never observes two entries claiming the same predecessor.
	appendMu chan struct{}
}

// New creates a ledger over a store anchored at the session genesis hash.
func New(store Store, sessionID string) *Ledger {
	l := &Ledger{
		store:    store,
		genesis:  GenesisHash(sessionID),
		clock:    time.Now,
		appendMu: make(chan struct{}, 1),
	}
	l.appendMu <- struct{}{}
	return l
}

// WithClock overrides the clock for deterministic testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Genesis returns the chain's anchor hash.
func (l *Ledger) Genesis() string { return l.genesis }

// Tip returns the current head hash and entry count.
func (l *Ledger) Tip(ctx context.Context) (string, uint64, error) {
	return l.store.Tip(ctx)
}

// Append commits one decision against the tip the caller observed. On
// contracts.ErrStaleTip the caller must refresh the tip and retry; the entry
// was not committed and must never be reordered silently.
func (l *Ledger) Append(ctx context.Context, d contracts.Decision, p contracts.TransitionProposal, expectedPrev string) (Entry, error) {
	select {
	case <-l.appendMu:
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
	defer func() { l.appendMu <- struct{}{} }()

	tip, count, err := l.store.Tip(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: reading tip: %w", err)
	}
	if expectedPrev != tip {
		return Entry{}, fmt.Errorf("ledger: expected prev %s, committed tip %s: %w",
			expectedPrev, tip, contracts.ErrStaleTip)
	}

	e := Entry{
		Sequence:   count + 1,
		ProposalID: p.ProposalID,
		EpochIndex: p.EpochIndex,
		Decision:   d.Outcome,
		Reason:     d.Reason,
		RiskBefore: p.Risk.Before,
		RiskAfter:  p.Risk.After,
		PrevHash:   tip,
		Timestamp:  l.clock().UTC(),
		PolicyRefs: p.PolicyRefs,
	}
	e.EntryHash, err = ComputeHash(e)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: hashing entry: %w", err)
	}

	if err := l.store.Append(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("ledger: appending: %w", err)
	}
	return e, nil
}

// Commit appends with automatic stale-tip refresh. Other errors surface
// unchanged.
func (l *Ledger) Commit(ctx context.Context, d contracts.Decision, p contracts.TransitionProposal) (Entry, error) {
	var lastErr error
	for attempt := 0; attempt < commitRetries; attempt++ {
		tip, _, err := l.store.Tip(ctx)
		if err != nil {
			return Entry{}, fmt.Errorf("ledger: reading tip: %w", err)
		}
		e, err := l.Append(ctx, d, p, tip)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, contracts.ErrStaleTip) {
			return Entry{}, err
		}
		lastErr = err
	}
	return Entry{}, lastErr
}

// VerifyChain walks the full sequence recomputing hashes. It returns the
// number of verified entries; on the first mismatch it fails with
// contracts.ErrChainCorruption naming the offending index.
func (l *Ledger) VerifyChain(ctx context.Context) (uint64, error) {
	entries, err := l.store.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: reading entries: %w", err)
	}

	prev := l.genesis
	for i, e := range entries {
		if e.PrevHash != prev {
			return uint64(i), fmt.Errorf("entry %d: prev hash %s, expected %s: %w",
				i, e.PrevHash, prev, contracts.ErrChainCorruption)
		}
		computed, err := ComputeHash(e)
		if err != nil {
			return uint64(i), fmt.Errorf("entry %d: recompute: %w", i, err)
		}
		if computed != e.EntryHash {
			return uint64(i), fmt.Errorf("entry %d: hash mismatch: %w", i, contracts.ErrChainCorruption)
		}
		prev = e.EntryHash
	}
	return uint64(len(entries)), nil
}

// Annotate stores a diagnostic annotation for a committed proposal. The
// annotation never participates in entry hashing; a missing proposal is an
// error so that stray annotations are not silently accepted.
func (l *Ledger) Annotate(ctx context.Context, a contracts.DiagnosticAnnotation) error {
	if _, err := l.store.ByProposal(ctx, a.ProposalID); err != nil {
		return fmt.Errorf("ledger: annotating %s: %w", a.ProposalID, err)
	}
	return l.store.PutAnnotation(ctx, a)
}

// Annotations returns the side-table records for a proposal.
func (l *Ledger) Annotations(ctx context.Context, proposalID string) ([]contracts.DiagnosticAnnotation, error) {
	return l.store.Annotations(ctx, proposalID)
}

// Entries returns all committed entries in order.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	return l.store.Entries(ctx)
}
