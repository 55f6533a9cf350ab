// Package overlay computes read-only diagnostics over the asset time series
// and committed decision history. The overlay is structurally barred from
// influencing decisions: its input is an immutable frame view, its output is
// a DiagnosticAnnotation, and no type here can carry a mutable reference into
// the kernel path.
package overlay

import (
	"fmt"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// Frame is the overlay's immutable per-epoch input view. The kernel path
// publishes frames by value after a decision is committed; nothing the
// overlay does to a frame reaches kernel state.
type Frame struct {
	ProposalID           string
	EpochIndex           uint64
	EpochDurationSeconds float64
	Assets               contracts.AssetVector
	Severities           map[string]contracts.Severity
	// GuardSatisfied reports that the epoch's risk transition was monotone and
	// within ceiling. When false, ROW is undefined for the epoch.
	GuardSatisfied bool
}

// Config holds the overlay's thresholds and window lengths.
type Config struct {
	// ThetaWave is the high-activation predicate bound: ROW is computed only
	// for epochs where WAVE >= ThetaWave.
	ThetaWave float64 `yaml:"theta_wave" json:"theta_wave"`
	// RowHighPerSec flags sustained budget consumption.
	RowHighPerSec float64 `yaml:"row_high_per_sec" json:"row_high_per_sec"`
	// RowRecoveryPerSec flags active recovery (ROW at or below the negation).
	RowRecoveryPerSec float64 `yaml:"row_recovery_per_sec" json:"row_recovery_per_sec"`

	OverloadBound   float64 `yaml:"overload_bound" json:"overload_bound"`
	CalmLifeforce   float64 `yaml:"calm_lifeforce" json:"calm_lifeforce"`
	CalmDistressMax float64 `yaml:"calm_distress_max" json:"calm_distress_max"`

	// Recovery window rule: a PastWindow of mostly-overloaded epochs, a gap,
	// then a RecentWindow whose averages have moved by at least the deltas.
	PastWindow            int     `yaml:"past_window" json:"past_window"`
	GapEpochs             int     `yaml:"gap_epochs" json:"gap_epochs"`
	RecentWindow          int     `yaml:"recent_window" json:"recent_window"`
	MinOverloadedFraction float64 `yaml:"min_overloaded_fraction" json:"min_overloaded_fraction"`
	DeltaDecayMin         float64 `yaml:"delta_decay_min" json:"delta_decay_min"`
	DeltaLifeforceMin     float64 `yaml:"delta_lifeforce_min" json:"delta_lifeforce_min"`
	DeltaFearMin          float64 `yaml:"delta_fear_min" json:"delta_fear_min"`
	DeltaPainMin          float64 `yaml:"delta_pain_min" json:"delta_pain_min"`
}

// DefaultConfig returns the baseline thresholds.
func DefaultConfig() Config {
	return Config{
		ThetaWave:             0.4,
		RowHighPerSec:         0.015,
		RowRecoveryPerSec:     0.005,
		OverloadBound:         0.7,
		CalmLifeforce:         0.7,
		CalmDistressMax:       0.3,
		PastWindow:            6,
		GapEpochs:             2,
		RecentWindow:          4,
		MinOverloadedFraction: 0.5,
		DeltaDecayMin:         0.1,
		DeltaLifeforceMin:     0.1,
		DeltaFearMin:          0.05,
		DeltaPainMin:          0.05,
	}
}

// Overlay derives per-epoch annotations. It keeps only its own diagnostic
// history; it holds no reference to kernel or ledger state.
type Overlay struct {
	cfg     Config
	history []contracts.AssetVector

	prevDecay   float64
	prevDefined bool
}

func New(cfg Config) *Overlay {
	return &Overlay{cfg: cfg}
}

// ProcessFrame derives the annotation for one epoch and advances the
// overlay's internal history. Frames must arrive in epoch order; a
// computation error degrades the epoch to no annotation.
func (o *Overlay) ProcessFrame(f Frame) (contracts.DiagnosticAnnotation, error) {
	if f.EpochDurationSeconds <= 0 {
		return contracts.DiagnosticAnnotation{}, fmt.Errorf("overlay: epoch %d: non-positive duration %v", f.EpochIndex, f.EpochDurationSeconds)
	}

	row, defined := o.computeRow(f)

	// The current epoch participates in the recent window of the recovery rule.
	o.history = append(o.history, f.Assets)
	if max := o.cfg.PastWindow + o.cfg.GapEpochs + o.cfg.RecentWindow; max > 0 && len(o.history) > max {
		o.history = o.history[len(o.history)-max:]
	}

	ann := contracts.DiagnosticAnnotation{
		ProposalID: f.ProposalID,
		EpochIndex: f.EpochIndex,
		Assets:     f.Assets,
		Severities: f.Severities,
	}
	if defined {
		ann.Row = &row
	}
	ann.Tags = o.deriveTags(f, row, defined)
	return ann, nil
}

// computeRow returns the rate of change of DECAY per second, and whether it
// is defined for this epoch. Undefined epochs are gaps, never zeros: the
// predicate fails, the guard fails, or there is no prior DECAY sample. A
// guard failure also discards the stored sample, so the epoch after it has
// no valid predecessor and is a gap as well.
func (o *Overlay) computeRow(f Frame) (float64, bool) {
	prevDecay, prevDefined := o.prevDecay, o.prevDefined

	if !f.GuardSatisfied {
		o.prevDefined = false
		return 0, false
	}
	o.prevDecay, o.prevDefined = f.Assets.Decay, true

	if f.Assets.Wave < o.cfg.ThetaWave || !prevDefined {
		return 0, false
	}
	return (f.Assets.Decay - prevDecay) / f.EpochDurationSeconds, true
}
