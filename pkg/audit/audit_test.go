package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
	"github.com/neuroprint-labs/neurogate/pkg/ledger"
)

func seededLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore(ledger.GenesisHash("sess-a")), "sess-a").
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })

	ctx := context.Background()
	_, err := l.Commit(ctx, contracts.Accept(), contracts.TransitionProposal{
		ProposalID: "prop-1", SubjectID: "subj-1", EpochIndex: 1,
		FromState: contracts.CapLabBench, ToState: contracts.CapLabBench,
		Risk: contracts.RiskScore{Before: 0, After: 0.05},
	})
	require.NoError(t, err)
	_, err = l.Commit(ctx, contracts.Deny(contracts.DenyRiskInvariant, "x"), contracts.TransitionProposal{
		ProposalID: "prop-2", SubjectID: "subj-1", EpochIndex: 2,
		FromState: contracts.CapLabBench, ToState: contracts.CapLabBench,
		Risk: contracts.RiskScore{Before: 0.05, After: 0.04},
	})
	require.NoError(t, err)
	require.NoError(t, l.Annotate(ctx, contracts.DiagnosticAnnotation{
		ProposalID: "prop-1", EpochIndex: 1,
		Tags: []contracts.DiagnosticTag{contracts.TagCalmStable},
	}))
	return l
}

func TestProposalLogWritesOneLinePerDecision(t *testing.T) {
	var buf bytes.Buffer
	log := NewProposalLogWithWriter(&buf)
	ctx := context.Background()

	p := contracts.TransitionProposal{
		ProposalID: "prop-1", SubjectID: "subj-1",
		FromState: contracts.CapLabBench, ToState: contracts.CapLabBench,
	}
	e := ledger.Entry{ProposalID: "prop-1", Decision: contracts.OutcomeAccept, EntryHash: "sha256:aa"}
	require.NoError(t, log.Record(ctx, e, p, contracts.Accept()))

	e2 := ledger.Entry{ProposalID: "prop-2", Decision: contracts.OutcomeDeny, Reason: contracts.DenyConsentInvalid}
	require.NoError(t, log.Record(ctx, e2, p, contracts.Deny(contracts.DenyConsentInvalid, "expired")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var rec ProposalRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	require.Equal(t, contracts.OutcomeDeny, rec.Decision)
	require.Equal(t, contracts.DenyConsentInvalid, rec.Reason)
	require.Equal(t, "expired", rec.Detail)
}

func TestAnnotationStreamJSONL(t *testing.T) {
	var buf bytes.Buffer
	s := NewAnnotationStream(&buf)

	row := 0.02
	require.NoError(t, s.Annotate(context.Background(), contracts.DiagnosticAnnotation{
		ProposalID: "prop-1",
		Row:        &row,
		Tags:       []contracts.DiagnosticTag{contracts.TagRowHigh},
	}))

	var a contracts.DiagnosticAnnotation
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &a))
	require.NotNil(t, a.Row)
	require.Equal(t, []contracts.DiagnosticTag{contracts.TagRowHigh}, a.Tags)
}

func TestTeeFansOut(t *testing.T) {
	var a, b bytes.Buffer
	tee := Tee{NewAnnotationStream(&a), NewAnnotationStream(&b)}
	require.NoError(t, tee.Annotate(context.Background(), contracts.DiagnosticAnnotation{ProposalID: "prop-1"}))
	require.Equal(t, a.String(), b.String())
	require.NotEmpty(t, a.String())
}

func TestGeneratePack(t *testing.T) {
	e := NewExporter(seededLedger(t))
	pack, checksum, err := e.GeneratePack(context.Background(), ExportRequest{SessionID: "sess-a"})
	require.NoError(t, err)
	require.Len(t, checksum, 64)

	r, err := zip.NewReader(bytes.NewReader(pack), int64(len(pack)))
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range r.File {
		names[f.Name] = true
	}
	require.True(t, names["entries.json"])
	require.True(t, names["annotations.json"])
	require.True(t, names["manifest.json"])
	require.True(t, names["README.txt"])
}

func TestGeneratePackValidation(t *testing.T) {
	e := NewExporter(seededLedger(t))
	_, _, err := e.GeneratePack(context.Background(), ExportRequest{})
	require.ErrorIs(t, err, ErrEmptySessionID)

	_, _, err = NewExporter(nil).GeneratePack(context.Background(), ExportRequest{SessionID: "sess-a"})
	require.ErrorIs(t, err, ErrLedgerNotConfigured)
}
