package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neuroprint-labs/neurogate/pkg/ledger"
)

var (
	// ErrEmptySessionID is returned when the session ID is empty.
	ErrEmptySessionID = errors.New("audit: session_id must not be empty")
	// ErrLedgerNotConfigured is returned when export is invoked without a ledger.
	ErrLedgerNotConfigured = errors.New("audit: ledger not configured (fail-closed)")
)

// ExportRequest defines what to export.
type ExportRequest struct {
	SessionID string    `json:"session_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Exporter builds evidence packs: a zip of the session's ledger entries,
// their annotations, and a manifest carrying the chain tip so an auditor can
// re-verify independently.
type Exporter struct {
	ledger *ledger.Ledger
}

func NewExporter(l *ledger.Ledger) *Exporter {
	return &Exporter{ledger: l}
}

// GeneratePack creates the zip and returns it with its sha256 checksum.
func (e *Exporter) GeneratePack(ctx context.Context, req ExportRequest) ([]byte, string, error) {
	if req.SessionID == "" {
		return nil, "", ErrEmptySessionID
	}
	if e.ledger == nil {
		return nil, "", ErrLedgerNotConfigured
	}

	entries, err := e.ledger.Entries(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("audit: reading ledger: %w", err)
	}
	entries = filterByTime(entries, req.StartTime, req.EndTime)

	annotations := make(map[string]any, len(entries))
	for _, entry := range entries {
		anns, err := e.ledger.Annotations(ctx, entry.ProposalID)
		if err != nil {
			return nil, "", fmt.Errorf("audit: reading annotations for %s: %w", entry.ProposalID, err)
		}
		if len(anns) > 0 {
			annotations[entry.ProposalID] = anns
		}
	}

	tip, count, err := e.ledger.Tip(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("audit: reading tip: %w", err)
	}
	manifest := map[string]any{
		"session_id":   req.SessionID,
		"generated_at": time.Now().UTC(),
		"entry_count":  len(entries),
		"chain_tip":    tip,
		"chain_length": count,
		"genesis":      e.ledger.Genesis(),
		"period": map[string]any{
			"start": req.StartTime,
			"end":   req.EndTime,
		},
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	if err := writeJSON(w, "entries.json", entries); err != nil {
		return nil, "", err
	}
	if err := writeJSON(w, "annotations.json", annotations); err != nil {
		return nil, "", err
	}
	if err := writeJSON(w, "manifest.json", manifest); err != nil {
		return nil, "", err
	}

	f, err := w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	_, _ = fmt.Fprintf(f, "Evidence pack for session %s\nGenerated at %s\nVerify by recomputing each entry hash from (prev_hash, proposal_id, decision, risk_before, risk_after, timestamp, policy_refs).\n",
		req.SessionID, time.Now().UTC())

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	hash := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(hash[:]), nil
}

func writeJSON(w *zip.Writer, name string, v any) error {
	f, err := w.Create(name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: failed to marshal %s: %w", name, err)
	}
	_, err = f.Write(data)
	return err
}

func filterByTime(entries []ledger.Entry, start, end time.Time) []ledger.Entry {
	if start.IsZero() && end.IsZero() {
		return entries
	}
	out := make([]ledger.Entry, 0, len(entries))
	for _, e := range entries {
		if !start.IsZero() && e.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && e.Timestamp.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}
