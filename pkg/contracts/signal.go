// Package contracts defines the shared data model for the governed-telemetry
// core: signal snapshots, axis severities, risk scores, capability tiers,
// transition proposals, decisions, and diagnostic annotations.
//
// Types here carry no behavior beyond ordering/lookup helpers. Components own
// their state exclusively: the hysteresis evaluator mutates AxisState, the
// kernel path owns CapabilityState and RiskScore, the ledger owns the hash
// chain, and the overlay owns only its annotations.
package contracts

// Channel names a raw telemetry channel inside a SignalSnapshot.
type Channel string

// Known channels. Collectors may supply a subset; consumers must tolerate
// missing channels (the asset engine substitutes a neutral default).
const (
	ChannelAlphaPower Channel = "alpha_power"
	ChannelBetaPower  Channel = "beta_power"
	ChannelGammaPower Channel = "gamma_power"
	ChannelAlphaCVE   Channel = "alpha_cve"
	ChannelHeartRate  Channel = "heart_rate"
	ChannelHRV        Channel = "hrv"
	ChannelEDA        Channel = "eda"
	ChannelMotion     Channel = "motion"
	ChannelRespire    Channel = "respiration"
	ChannelGaze       Channel = "gaze"
)

// SignalSnapshot is one epoch of raw channel values as produced by the
// external acquisition collaborator. Immutable once produced; consumed by
// value throughout the core.
type SignalSnapshot struct {
	SubjectID            string              `json:"subject_id"`
	EpochIndex           uint64              `json:"epoch_index"`
	EpochDurationSeconds float64             `json:"epoch_duration_seconds"`
	Channels             map[Channel]float64 `json:"channels"`
}

// Value returns the named channel and whether it was supplied.
func (s SignalSnapshot) Value(c Channel) (float64, bool) {
	v, ok := s.Channels[c]
	return v, ok
}

// Severity is the discretized state of one monitored axis.
type Severity string

const (
	SeverityInfo Severity = "INFO"
	SeverityWarn Severity = "WARN"
	SeverityRisk Severity = "RISK"
)

// Rank orders severities for conservative tie-breaking (higher is worse).
func (s Severity) Rank() int {
	switch s {
	case SeverityWarn:
		return 1
	case SeverityRisk:
		return 2
	default:
		return 0
	}
}

// AxisState is the hysteresis state of one monitored axis. Mutated only by
// the hysteresis evaluator; lifecycle spans the monitoring session.
type AxisState struct {
	Axis                  string   `json:"axis"`
	Severity              Severity `json:"severity"`
	ConsecutiveAboveCount int      `json:"consecutive_above_count"`
	ConsecutiveBelowCount int      `json:"consecutive_below_count"`
	LastValue             float64  `json:"last_value"`
	Observed              bool     `json:"observed"`
}
