package contracts

import "time"

// ReversalEvidence carries the conditions that, together, are the only path
// to an accepted capability downgrade. Downgrades are denied by default.
type ReversalEvidence struct {
	// ExplicitOrder is set when a regulator has issued a written reversal order.
	ExplicitOrder bool `json:"explicit_order"`
	// NoSaferAlternative is set when a no-safer-alternative proof accompanies
	// the order.
	NoSaferAlternative bool `json:"no_safer_alternative"`
	// QuorumRoles lists the distinct stakeholder roles that co-signed the
	// reversal. The kernel compares the count against the stake policy quorum.
	QuorumRoles []string `json:"quorum_roles,omitempty"`
}

// TransitionProposal is a candidate capability transition. It is ephemeral:
// it exists only for the duration of one kernel evaluation and the ledger
// append that records its outcome.
type TransitionProposal struct {
	ProposalID   string           `json:"proposal_id"`
	SubjectID    string           `json:"subject_id"`
	EpochIndex   uint64           `json:"epoch_index"`
	FromState    CapabilityState  `json:"from_state"`
	ToState      CapabilityState  `json:"to_state"`
	Risk         RiskScore        `json:"risk"`
	ConsentToken string           `json:"-"`
	Role         string           `json:"role"`
	Jurisdiction string           `json:"jurisdiction"`
	PolicyRefs   []string         `json:"policy_refs,omitempty"`
	Reversal     ReversalEvidence `json:"reversal"`
	// EvaluatedAt pins the time used for consent-window checks so that
	// evaluation stays a pure function of the proposal.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// IsHold reports whether the proposal keeps the current tier (an epoch-level
// risk accounting record rather than an access change).
func (p TransitionProposal) IsHold() bool { return p.FromState == p.ToState }
