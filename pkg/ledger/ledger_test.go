package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

func fixedClock() func() time.Time {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	genesis := GenesisHash("sess-1")
	store := NewMemoryStore(genesis)
	return New(store, "sess-1").WithClock(fixedClock()), store
}

func proposal(id string, epoch uint64) contracts.TransitionProposal {
	return contracts.TransitionProposal{
		ProposalID: id,
		SubjectID:  "subj-1",
		EpochIndex: epoch,
		FromState:  contracts.CapModelOnly,
		ToState:    contracts.CapLabBench,
		Risk:       contracts.RiskScore{Before: 0.05, After: 0.08},
	}
}

func appendN(t *testing.T, l *Ledger, n int) []Entry {
	t.Helper()
	ctx := context.Background()
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		e, err := l.Commit(ctx, contracts.Accept(), proposal(fmt.Sprintf("prop-%d", i), uint64(i)))
		require.NoError(t, err)
		entries = append(entries, e)
	}
	return entries
}

func TestAppendLinksChain(t *testing.T) {
	l, _ := newTestLedger(t)
	entries := appendN(t, l, 3)

	require.Equal(t, l.Genesis(), entries[0].PrevHash)
	require.Equal(t, entries[0].EntryHash, entries[1].PrevHash)
	require.Equal(t, entries[1].EntryHash, entries[2].PrevHash)

	count, err := l.VerifyChain(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
}

func TestAppendDenyEntriesAreCommitted(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tip, _, err := l.Tip(ctx)
	require.NoError(t, err)
	e, err := l.Append(ctx, contracts.Deny(contracts.DenyRiskInvariant, "ceiling"), proposal("prop-deny", 4), tip)
	require.NoError(t, err)
	require.Equal(t, contracts.OutcomeDeny, e.Decision)
	require.Equal(t, contracts.DenyRiskInvariant, e.Reason)

	got, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestAppendStaleTip(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tip, _, err := l.Tip(ctx)
	require.NoError(t, err)
	_, err = l.Append(ctx, contracts.Accept(), proposal("prop-a", 1), tip)
	require.NoError(t, err)

	// Same observed tip presented again: the chain has moved on.
	_, err = l.Append(ctx, contracts.Accept(), proposal("prop-b", 2), tip)
	require.ErrorIs(t, err, contracts.ErrStaleTip)

	// The losing append must not have committed anything.
	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "prop-a", entries[0].ProposalID)
}

func TestCommitRetriesPastStaleTip(t *testing.T) {
	l, _ := newTestLedger(t)
	appendN(t, l, 5)

	entries, err := l.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		require.Equal(t, uint64(i+1), e.Sequence)
	}
}

func TestVerifyChainDetectsTamperedEntry(t *testing.T) {
	l, store := newTestLedger(t)
	appendN(t, l, 4)

	store.Tamper(2, func(e *Entry) { e.RiskAfter = 0.0 })

	idx, err := l.VerifyChain(context.Background())
	require.ErrorIs(t, err, contracts.ErrChainCorruption)
	require.Equal(t, uint64(2), idx)
}

func TestVerifyChainDetectsBrokenLink(t *testing.T) {
	l, store := newTestLedger(t)
	appendN(t, l, 3)

	store.Tamper(1, func(e *Entry) {
		e.PrevHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"
	})

	idx, err := l.VerifyChain(context.Background())
	require.ErrorIs(t, err, contracts.ErrChainCorruption)
	require.Equal(t, uint64(1), idx)
}

func TestAnnotationsDoNotAffectHashes(t *testing.T) {
	l, _ := newTestLedger(t)
	entries := appendN(t, l, 2)
	ctx := context.Background()

	err := l.Annotate(ctx, contracts.DiagnosticAnnotation{
		ProposalID: "prop-0",
		EpochIndex: 0,
		Tags:       []contracts.DiagnosticTag{contracts.TagCalmStable},
	})
	require.NoError(t, err)

	after, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Equal(t, entries[0].EntryHash, after[0].EntryHash)

	count, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	anns, err := l.Annotations(ctx, "prop-0")
	require.NoError(t, err)
	require.Len(t, anns, 1)
}

func TestAnnotateUnknownProposal(t *testing.T) {
	l, _ := newTestLedger(t)
	appendN(t, l, 1)

	err := l.Annotate(context.Background(), contracts.DiagnosticAnnotation{ProposalID: "prop-missing"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGenesisDiffersPerSession(t *testing.T) {
	require.NotEqual(t, GenesisHash("sess-1"), GenesisHash("sess-2"))
}

func TestComputeHashCoversDecisionFields(t *testing.T) {
	e := Entry{
		ProposalID: "prop-1",
		Decision:   contracts.OutcomeAccept,
		RiskBefore: 0.05,
		RiskAfter:  0.08,
		PrevHash:   GenesisHash("sess-1"),
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h1, err := ComputeHash(e)
	require.NoError(t, err)

	e.RiskAfter = 0.09
	h2, err := ComputeHash(e)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)

	// Sequence is ordering metadata, not hashed content.
	e.RiskAfter = 0.08
	e.Sequence = 99
	h3, err := ComputeHash(e)
	require.NoError(t, err)
	require.Equal(t, h1, h3)
}

func TestAnchorCheckpointRoundTrip(t *testing.T) {
	anchor, err := DeriveAnchor([]byte("master-seed-material"), "sess-1")
	require.NoError(t, err)

	cp, err := anchor.SignCheckpoint("sha256:abc", 7, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, VerifyCheckpoint(anchor.PublicKey(), cp))

	cp.Count = 8
	err = VerifyCheckpoint(anchor.PublicKey(), cp)
	require.True(t, errors.Is(err, ErrBadCheckpoint))
}

func TestDeriveAnchorDeterministic(t *testing.T) {
	a, err := DeriveAnchor([]byte("seed"), "sess-1")
	require.NoError(t, err)
	b, err := DeriveAnchor([]byte("seed"), "sess-1")
	require.NoError(t, err)
	require.Equal(t, a.PublicKey(), b.PublicKey())

	c, err := DeriveAnchor([]byte("seed"), "sess-2")
	require.NoError(t, err)
	require.NotEqual(t, a.PublicKey(), c.PublicKey())
}
