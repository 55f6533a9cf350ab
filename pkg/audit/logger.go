// Package audit emits the externally consumable records of a session: the
// JSONL proposal log (every decision with its reason) and the diagnostic
// annotation stream. Both are additive outputs; nothing here feeds back into
// the decision path.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
	"github.com/neuroprint-labs/neurogate/pkg/ledger"
)

// ProposalRecord is one line of the proposal log.
type ProposalRecord struct {
	ProposalID string                    `json:"proposal_id"`
	SubjectID  string                    `json:"subject_id"`
	EpochIndex uint64                    `json:"epoch_index"`
	FromState  contracts.CapabilityState `json:"from_state"`
	ToState    contracts.CapabilityState `json:"to_state"`
	Decision   contracts.Outcome         `json:"decision"`
	Reason     contracts.DenyReason      `json:"reason,omitempty"`
	Detail     string                    `json:"detail,omitempty"`
	RiskBefore float64                   `json:"risk_before"`
	RiskAfter  float64                   `json:"risk_after"`
	EntryHash  string                    `json:"entry_hash"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// ProposalLog writes one JSON line per committed decision. Accepts and denies
// are both logged; a silent drop is a protocol violation.
type ProposalLog struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewProposalLog writes to os.Stdout.
func NewProposalLog() *ProposalLog {
	return NewProposalLogWithWriter(os.Stdout)
}

// NewProposalLogWithWriter allows injection for testing and custom sinks.
func NewProposalLogWithWriter(w io.Writer) *ProposalLog {
	if w == nil {
		w = os.Stdout
	}
	return &ProposalLog{writer: w}
}

// Record appends one decision line.
func (l *ProposalLog) Record(_ context.Context, e ledger.Entry, p contracts.TransitionProposal, d contracts.Decision) error {
	rec := ProposalRecord{
		ProposalID: e.ProposalID,
		SubjectID:  p.SubjectID,
		EpochIndex: e.EpochIndex,
		FromState:  p.FromState,
		ToState:    p.ToState,
		Decision:   e.Decision,
		Reason:     e.Reason,
		Detail:     d.Detail,
		RiskBefore: e.RiskBefore,
		RiskAfter:  e.RiskAfter,
		EntryHash:  e.EntryHash,
		Timestamp:  e.Timestamp,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = l.writer.Write(append(bytes, '\n'))
	return err
}
