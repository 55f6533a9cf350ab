package envelope

import (
	"math"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// Evaluator advances per-axis hysteresis state. It holds only configuration;
// axis state is supplied and returned by value, so a step is a pure function
// of (thresholds, prior state, observation).
type Evaluator struct {
	thresholds map[string]Thresholds
}

// NewEvaluator builds an evaluator for the configured axes.
func NewEvaluator(thresholds map[string]Thresholds) *Evaluator {
	cp := make(map[string]Thresholds, len(thresholds))
	for axis, t := range thresholds {
		cp[axis] = t
	}
	return &Evaluator{thresholds: cp}
}

// Axes returns the configured axis names.
func (e *Evaluator) Axes() []string {
	out := make([]string, 0, len(e.thresholds))
	for axis := range e.thresholds {
		out = append(out, axis)
	}
	return out
}

// Step produces the next AxisState for one axis given the epoch's value.
// epochDurationSeconds is used for the fast-transient rate check. An axis
// without configured thresholds passes through unchanged at INFO.
func (e *Evaluator) Step(prev contracts.AxisState, value, epochDurationSeconds float64) contracts.AxisState {
	t, ok := e.thresholds[prev.Axis]
	if !ok {
		prev.Severity = contracts.SeverityInfo
		prev.LastValue = value
		prev.Observed = true
		return prev
	}

	if prev.Severity == "" {
		prev.Severity = contracts.SeverityInfo
	}

	var next contracts.AxisState
	switch prev.Severity {
	case contracts.SeverityWarn:
		next = stepWarn(t, prev, value)
	case contracts.SeverityRisk:
		next = stepRisk(t, prev, value)
	default:
		next = stepInfo(t, prev, value)
	}
	next.LastValue = value
	next.Observed = true

	// Fast transient: spikes escalate to WARN immediately, bypassing the
	// consecutive-count. Never de-escalates an existing WARN or RISK.
	if prev.Observed && t.MaxDeltaPerSec > 0 && epochDurationSeconds > 0 {
		delta := math.Abs(value-prev.LastValue) / epochDurationSeconds
		if delta > t.MaxDeltaPerSec && next.Severity.Rank() < contracts.SeverityWarn.Rank() {
			next.Severity = contracts.SeverityWarn
			next.ConsecutiveAboveCount = 0
			next.ConsecutiveBelowCount = 0
		}
	}

	return next
}

func stepInfo(t Thresholds, prev contracts.AxisState, v float64) contracts.AxisState {
	next := prev
	if t.outsideWarn(v) {
		next.ConsecutiveAboveCount = prev.ConsecutiveAboveCount + 1
		next.ConsecutiveBelowCount = 0
		if next.ConsecutiveAboveCount >= t.WarnEpochsToFlag {
			next.Severity = contracts.SeverityWarn
			next.ConsecutiveAboveCount = 0
		}
		return next
	}
	next.ConsecutiveAboveCount = 0
	next.ConsecutiveBelowCount = 0
	return next
}

func stepWarn(t Thresholds, prev contracts.AxisState, v float64) contracts.AxisState {
	next := prev
	switch {
	case t.outsideSafe(v):
		next.ConsecutiveAboveCount = prev.ConsecutiveAboveCount + 1
		next.ConsecutiveBelowCount = 0
		if next.ConsecutiveAboveCount >= t.RiskEpochsToDowngrade {
			next.Severity = contracts.SeverityRisk
			next.ConsecutiveAboveCount = 0
		}
	case !t.outsideWarn(v):
		next.ConsecutiveBelowCount = prev.ConsecutiveBelowCount + 1
		next.ConsecutiveAboveCount = 0
		if next.ConsecutiveBelowCount >= t.WarnEpochsToFlag {
			next.Severity = contracts.SeverityInfo
			next.ConsecutiveBelowCount = 0
		}
	default:
		// Outside the warn band but inside the safe band: holding pattern.
		next.ConsecutiveAboveCount = 0
		next.ConsecutiveBelowCount = 0
	}
	return next
}

func stepRisk(t Thresholds, prev contracts.AxisState, v float64) contracts.AxisState {
	next := prev
	if t.outsideSafe(v) {
		next.ConsecutiveBelowCount = 0
		return next
	}
	next.ConsecutiveBelowCount = prev.ConsecutiveBelowCount + 1
	if next.ConsecutiveBelowCount >= t.RiskEpochsToDowngrade {
		next.Severity = contracts.SeverityWarn
		next.ConsecutiveBelowCount = 0
	}
	return next
}
