package contracts

// Outcome is the kernel's verdict on a proposal.
type Outcome string

const (
	OutcomeAccept Outcome = "ACCEPT"
	OutcomeDeny   Outcome = "DENY"
)

// DenyReason categorizes a refusal. Every deny is receipted in the ledger
// with its reason; no silent drops.
type DenyReason string

const (
	DenyNone                    DenyReason = ""
	DenyRiskInvariant           DenyReason = "RISK_INVARIANT"
	DenyConsentInvalid          DenyReason = "CONSENT_INVALID"
	DenyPolicyViolation         DenyReason = "POLICY_VIOLATION"
	DenyReversalConditionsUnmet DenyReason = "REVERSAL_CONDITIONS_UNMET"
)

// Decision is the kernel's pure evaluation result. Identical proposals yield
// identical decisions; the caller commits state changes only after an accept.
type Decision struct {
	Outcome Outcome    `json:"outcome"`
	Reason  DenyReason `json:"reason,omitempty"`
	// Detail names the failing predicate for POLICY_VIOLATION, or the missing
	// reversal condition for REVERSAL_CONDITIONS_UNMET.
	Detail string `json:"detail,omitempty"`
}

// Accepted reports whether the proposal may be committed.
func (d Decision) Accepted() bool { return d.Outcome == OutcomeAccept }

// Accept returns an accepting decision.
func Accept() Decision { return Decision{Outcome: OutcomeAccept} }

// Deny returns a refusing decision with a reason and optional detail.
func Deny(reason DenyReason, detail string) Decision {
	return Decision{Outcome: OutcomeDeny, Reason: reason, Detail: detail}
}
