// Package kernel implements the capability/consent decision function. The
// kernel is pure: identical proposals yield identical decisions, it performs
// no I/O, and it holds no mutable subject state — the caller commits
// CapabilityState and RiskScore only after an accept.
package kernel

import (
	"fmt"
	"time"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// Named policy checks built into the kernel (as opposed to configured CEL
// predicates). They surface in Decision.Detail on violation.
const (
	policyLatticeAdjacency = "capability_lattice_adjacency"
	policyUnknownTier      = "capability_tier_known"
)

// Reversal condition names surfaced in Decision.Detail.
const (
	reversalNotPermitted       = "reversal_not_permitted"
	reversalMissingOrder       = "missing_explicit_reversal_order"
	reversalMissingNoSaferAlt  = "missing_no_safer_alternative_proof"
	reversalQuorumNotSatisfied = "quorum_not_satisfied"
)

// ConsentChecker validates a consent token deterministically at a pinned
// instant. Implemented by consent.Verifier.
type ConsentChecker interface {
	Check(token, subjectID string, to contracts.CapabilityState, at time.Time) error
}

// ReversalPolicy is the stake policy governing capability downgrades.
type ReversalPolicy struct {
	// Permitted gates downgrades globally; when false no evidence suffices.
	Permitted bool `yaml:"permitted" json:"permitted"`
	// RequiredQuorum is the number of distinct stakeholder roles that must
	// co-sign a reversal.
	RequiredQuorum int `yaml:"required_quorum" json:"required_quorum"`
}

// Kernel evaluates transition proposals against risk, consent, and policy.
type Kernel struct {
	consent       ConsentChecker
	stack         *PolicyStack
	ceilings      map[contracts.CapabilityState]float64
	reversal      ReversalPolicy
	multiTierRefs map[string]bool
}

// Config assembles a kernel.
type Config struct {
	Consent  ConsentChecker
	Stack    *PolicyStack
	Ceilings map[contracts.CapabilityState]float64
	Reversal ReversalPolicy
	// MultiTierPolicyRefs lists policy refs that authorize moving more than
	// one tier in a single transition.
	MultiTierPolicyRefs []string
}

// New builds a kernel. Every tier must have a ceiling.
func New(cfg Config) (*Kernel, error) {
	if cfg.Consent == nil {
		return nil, fmt.Errorf("kernel: consent checker required")
	}
	if cfg.Stack == nil {
		return nil, fmt.Errorf("kernel: policy stack required")
	}
	for _, tier := range contracts.TierOrder {
		if _, ok := cfg.Ceilings[tier]; !ok {
			return nil, fmt.Errorf("kernel: no risk ceiling for tier %s", tier)
		}
	}
	refs := make(map[string]bool, len(cfg.MultiTierPolicyRefs))
	for _, r := range cfg.MultiTierPolicyRefs {
		refs[r] = true
	}
	return &Kernel{
		consent:       cfg.Consent,
		stack:         cfg.Stack,
		ceilings:      cfg.Ceilings,
		reversal:      cfg.Reversal,
		multiTierRefs: refs,
	}, nil
}

// Ceiling returns the risk ceiling of a tier.
func (k *Kernel) Ceiling(tier contracts.CapabilityState) float64 {
	return k.ceilings[tier]
}

// Evaluate decides a proposal. The ordering is fixed: risk invariant, then
// consent, then the policy stack, then reversal conditions for downgrades.
func (k *Kernel) Evaluate(p contracts.TransitionProposal) contracts.Decision {
	if !p.FromState.Valid() || !p.ToState.Valid() {
		return contracts.Deny(contracts.DenyPolicyViolation, policyUnknownTier)
	}

	// 1. Risk invariant: monotone, and within the target tier's ceiling.
	if p.Risk.After < p.Risk.Before {
		return contracts.Deny(contracts.DenyRiskInvariant,
			fmt.Sprintf("risk_after %.4f < risk_before %.4f", p.Risk.After, p.Risk.Before))
	}
	if ceiling := k.ceilings[p.ToState]; p.Risk.After > ceiling {
		return contracts.Deny(contracts.DenyRiskInvariant,
			fmt.Sprintf("risk_after %.4f exceeds ceiling %.4f of %s", p.Risk.After, ceiling, p.ToState))
	}

	// 2. Consent: valid, unexpired, scoped to the target tier.
	if err := k.consent.Check(p.ConsentToken, p.SubjectID, p.ToState, p.EvaluatedAt); err != nil {
		return contracts.Deny(contracts.DenyConsentInvalid, err.Error())
	}

	// 3. Policy stack: configured predicates plus lattice adjacency.
	if !p.IsHold() && !p.FromState.IsAdjacent(p.ToState) && !k.hasMultiTierRef(p.PolicyRefs) {
		return contracts.Deny(contracts.DenyPolicyViolation, policyLatticeAdjacency)
	}
	if failed := k.stack.Evaluate(p); failed != "" {
		return contracts.Deny(contracts.DenyPolicyViolation, failed)
	}

	// 4. Downgrades are denied by default; the only path to accept is the
	// full set of reversal conditions.
	if p.FromState.IsDowngrade(p.ToState) {
		if d, ok := k.checkReversal(p); !ok {
			return d
		}
	}

	return contracts.Accept()
}

func (k *Kernel) checkReversal(p contracts.TransitionProposal) (contracts.Decision, bool) {
	if !k.reversal.Permitted {
		return contracts.Deny(contracts.DenyReversalConditionsUnmet, reversalNotPermitted), false
	}
	if !p.Reversal.ExplicitOrder {
		return contracts.Deny(contracts.DenyReversalConditionsUnmet, reversalMissingOrder), false
	}
	if !p.Reversal.NoSaferAlternative {
		return contracts.Deny(contracts.DenyReversalConditionsUnmet, reversalMissingNoSaferAlt), false
	}
	if distinctRoles(p.Reversal.QuorumRoles) < k.reversal.RequiredQuorum {
		return contracts.Deny(contracts.DenyReversalConditionsUnmet, reversalQuorumNotSatisfied), false
	}
	return contracts.Decision{}, true
}

func (k *Kernel) hasMultiTierRef(refs []string) bool {
	for _, r := range refs {
		if k.multiTierRefs[r] {
			return true
		}
	}
	return false
}

func distinctRoles(roles []string) int {
	seen := make(map[string]bool, len(roles))
	for _, r := range roles {
		if r != "" {
			seen[r] = true
		}
	}
	return len(seen)
}
