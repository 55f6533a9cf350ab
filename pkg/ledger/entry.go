// Package ledger implements the append-only, hash-chained decision ledger.
// Every kernel decision — accept or deny — is committed as an entry whose
// hash covers the previous entry's hash, so retroactive edits are detectable.
// Diagnostic annotations live in a side table keyed by proposal ID and are
// never folded into entry hashes.
package ledger

import (
	"time"

	"github.com/neuroprint-labs/neurogate/pkg/canonical"
	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// Entry is one immutable, hash-chained ledger record.
type Entry struct {
	Sequence   uint64               `json:"sequence"`
	ProposalID string               `json:"proposal_id"`
	EpochIndex uint64               `json:"epoch_index"`
	Decision   contracts.Outcome    `json:"decision"`
	Reason     contracts.DenyReason `json:"reason,omitempty"`
	RiskBefore float64              `json:"risk_before"`
	RiskAfter  float64              `json:"risk_after"`
	PrevHash   string               `json:"prev_hash"`
	EntryHash  string               `json:"entry_hash"`
	Timestamp  time.Time            `json:"timestamp"`
	PolicyRefs []string             `json:"policy_refs,omitempty"`
}

// hashInput is the exact field set covered by the entry hash. Annotations and
// sequence numbers are deliberately excluded: the chain itself orders entries.
type hashInput struct {
	PrevHash   string   `json:"prev_hash"`
	ProposalID string   `json:"proposal_id"`
	Decision   string   `json:"decision"`
	Reason     string   `json:"reason"`
	RiskBefore float64  `json:"risk_before"`
	RiskAfter  float64  `json:"risk_after"`
	Timestamp  string   `json:"timestamp"`
	PolicyRefs []string `json:"policy_refs"`
}

// ComputeHash returns the canonical hash of the entry's covered fields.
func ComputeHash(e Entry) (string, error) {
	return canonical.Hash(hashInput{
		PrevHash:   e.PrevHash,
		ProposalID: canonical.NFC(e.ProposalID),
		Decision:   string(e.Decision),
		Reason:     string(e.Reason),
		RiskBefore: e.RiskBefore,
		RiskAfter:  e.RiskAfter,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		PolicyRefs: canonical.NFCAll(e.PolicyRefs),
	})
}

// GenesisHash anchors a session's chain. Distinct sessions never share an
// anchor, so entries cannot be replayed across chains.
func GenesisHash(sessionID string) string {
	return canonical.HashString("neurogate/ledger/" + sessionID)
}
