// Package risk implements Risk-of-Harm accounting. The accountant folds axis
// severities into a single bounded score; the score may only grow within a
// session, and a raw computation that would shrink it is a protocol error
// surfaced to the caller, never a value to floor.
package risk

import (
	"fmt"
	"sort"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// Severity fractions used in the weighted sum. INFO contributes nothing;
// RISK contributes the axis's full weight.
const (
	warnFraction = 0.5
	riskFraction = 1.0
)

// Weights maps axis name to its non-negative contribution weight.
type Weights map[string]float64

// Validate rejects negative weights.
func (w Weights) Validate() error {
	for axis, v := range w {
		if v < 0 {
			return fmt.Errorf("risk weight for axis %q is negative: %.3f", axis, v)
		}
	}
	return nil
}

// Accountant computes the aggregate Risk-of-Harm score. HardCeiling is the
// absolute accounting cap (0.30 in the reference policy); per-tier ceilings
// are enforced by the kernel against the proposal's target tier.
type Accountant struct {
	weights     Weights
	hardCeiling float64
}

// NewAccountant builds an accountant. Returns an error for negative weights
// or a non-positive ceiling.
func NewAccountant(weights Weights, hardCeiling float64) (*Accountant, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if hardCeiling <= 0 {
		return nil, fmt.Errorf("hard ceiling must be positive, got %.3f", hardCeiling)
	}
	cp := make(Weights, len(weights))
	for k, v := range weights {
		cp[k] = v
	}
	return &Accountant{weights: cp, hardCeiling: hardCeiling}, nil
}

// HardCeiling returns the absolute accounting cap.
func (a *Accountant) HardCeiling() float64 { return a.hardCeiling }

// Compute folds the axis states into the next score. The result is clamped
// to [0, hardCeiling]. If the clamped result would fall below before, the
// accountant returns contracts.ErrRiskMonotonicity together with the raw
// value so the surrounding proposal can be denied and the violation logged.
func (a *Accountant) Compute(states map[string]contracts.AxisState, before float64) (float64, error) {
	raw := a.WeightedSeverity(states)

	after := raw * a.hardCeiling
	if after < 0 {
		after = 0
	}
	if after > a.hardCeiling {
		after = a.hardCeiling
	}

	if after < before {
		return after, fmt.Errorf("computed %.4f below committed %.4f: %w",
			after, before, contracts.ErrRiskMonotonicity)
	}
	return after, nil
}

// WeightedSeverity returns the weight-normalized WARN/RISK fraction across
// all configured axes, in [0,1]. Exposed for the asset derivation engine's
// POWER scalar and for composites over axis subsets.
func (a *Accountant) WeightedSeverity(states map[string]contracts.AxisState) float64 {
	return WeightedSeverity(states, a.weights)
}

// WeightedSeverity computes the weighted WARN/RISK fraction for an arbitrary
// weight set. Axes absent from states contribute nothing; a zero total weight
// yields zero.
func WeightedSeverity(states map[string]contracts.AxisState, weights Weights) float64 {
	// Deterministic iteration keeps float accumulation reproducible.
	axes := make([]string, 0, len(weights))
	for axis := range weights {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	var total, sum float64
	for _, axis := range axes {
		w := weights[axis]
		if w <= 0 {
			continue
		}
		total += w
		st, ok := states[axis]
		if !ok {
			continue
		}
		switch st.Severity {
		case contracts.SeverityWarn:
			sum += w * warnFraction
		case contracts.SeverityRisk:
			sum += w * riskFraction
		}
	}
	if total == 0 {
		return 0
	}
	return sum / total
}
