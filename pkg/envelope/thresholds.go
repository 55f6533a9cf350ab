// Package envelope implements the per-axis hysteresis evaluator. Each
// monitored axis carries a warn band and a safe band; severity escalates only
// after a configured number of consecutive out-of-band epochs, which
// suppresses flapping from single-epoch noise. A fast transient (per-second
// rate of change above MaxDeltaPerSec) escalates to WARN immediately.
package envelope

import "fmt"

// Thresholds are the non-relaxing bounds for one axis. Within a session a
// configuration update may only tighten these bounds; widening is rejected at
// reload time (see the config package).
type Thresholds struct {
	// Warn band: values outside [MinWarn, MaxWarn] count toward WARN.
	MinWarn float64 `yaml:"min_warn" json:"min_warn"`
	MaxWarn float64 `yaml:"max_warn" json:"max_warn"`
	// Safe band: values outside [MinSafe, MaxSafe] count toward RISK.
	MinSafe float64 `yaml:"min_safe" json:"min_safe"`
	MaxSafe float64 `yaml:"max_safe" json:"max_safe"`

	// WarnEpochsToFlag is the consecutive epoch count required to enter WARN,
	// and symmetrically to leave it.
	WarnEpochsToFlag int `yaml:"warn_epochs_to_flag" json:"warn_epochs_to_flag"`
	// RiskEpochsToDowngrade is the consecutive epoch count required to enter
	// RISK, and symmetrically to leave it.
	RiskEpochsToDowngrade int `yaml:"risk_epochs_to_downgrade" json:"risk_epochs_to_downgrade"`

	// MaxDeltaPerSec is the fast-transient override: a per-second rate of
	// change above this jumps severity to WARN regardless of counts.
	MaxDeltaPerSec float64 `yaml:"max_delta_per_sec" json:"max_delta_per_sec"`
}

// Validate rejects malformed bands.
func (t Thresholds) Validate() error {
	if t.MinWarn > t.MaxWarn {
		return fmt.Errorf("warn band inverted: min %.3f > max %.3f", t.MinWarn, t.MaxWarn)
	}
	if t.MinSafe > t.MaxSafe {
		return fmt.Errorf("safe band inverted: min %.3f > max %.3f", t.MinSafe, t.MaxSafe)
	}
	if t.MinSafe > t.MinWarn || t.MaxSafe < t.MaxWarn {
		return fmt.Errorf("warn band must sit inside safe band")
	}
	if t.WarnEpochsToFlag < 1 || t.RiskEpochsToDowngrade < 1 {
		return fmt.Errorf("hysteresis epoch counts must be >= 1")
	}
	if t.MaxDeltaPerSec < 0 {
		return fmt.Errorf("max_delta_per_sec must be non-negative")
	}
	return nil
}

// TightensOrEqual reports whether t only tightens (or keeps) the bounds of
// prev. Used to enforce the non-relaxing rule across configuration reloads.
func (t Thresholds) TightensOrEqual(prev Thresholds) bool {
	return t.MinWarn >= prev.MinWarn && t.MaxWarn <= prev.MaxWarn &&
		t.MinSafe >= prev.MinSafe && t.MaxSafe <= prev.MaxSafe
}

func (t Thresholds) outsideWarn(v float64) bool { return v < t.MinWarn || v > t.MaxWarn }
func (t Thresholds) outsideSafe(v float64) bool { return v < t.MinSafe || v > t.MaxSafe }
