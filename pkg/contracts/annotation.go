package contracts

// AssetVector is the fixed set of bounded diagnostic scalars derived from one
// SignalSnapshot plus published kernel context. Every field is in [0,1];
// recomputing from identical inputs yields identical output.
type AssetVector struct {
	Blood     float64 `json:"blood"`
	Oxygen    float64 `json:"oxygen"`
	Wave      float64 `json:"wave"`
	Time      float64 `json:"time"`
	Decay     float64 `json:"decay"`
	Lifeforce float64 `json:"lifeforce"`
	Brain     float64 `json:"brain"`
	Smart     float64 `json:"smart"`
	Evolve    float64 `json:"evolve"`
	Power     float64 `json:"power"`
	Tech      float64 `json:"tech"`
	Fear      float64 `json:"fear"`
	Pain      float64 `json:"pain"`
	Nano      float64 `json:"nano"`
	Field     float64 `json:"field"`
}

// DiagnosticTag is one member of the closed advisory vocabulary. New tags
// require a schema change here; free-form strings are not accepted, so the
// overlay can never grow new control semantics.
type DiagnosticTag string

const (
	TagRowHigh           DiagnosticTag = "ROW_HIGH"
	TagRowRecovery       DiagnosticTag = "ROW_RECOVERY"
	TagGammaOverload     DiagnosticTag = "GAMMA_OVERLOAD"
	TagCognitiveOverload DiagnosticTag = "COGNITIVE_OVERLOAD"
	TagCalmStable        DiagnosticTag = "CALM_STABLE"
	TagOverloaded        DiagnosticTag = "OVERLOADED"
	TagRecovery          DiagnosticTag = "RECOVERY"
)

// KnownTags is the full closed vocabulary, most severe first.
var KnownTags = []DiagnosticTag{
	TagCognitiveOverload,
	TagGammaOverload,
	TagOverloaded,
	TagRowHigh,
	TagRowRecovery,
	TagRecovery,
	TagCalmStable,
}

// DiagnosticAnnotation is the overlay's additive, non-authoritative output
// for one epoch. It is attached to a committed ledger entry by proposal ID
// and is never part of the entry hash input.
type DiagnosticAnnotation struct {
	ProposalID string `json:"proposal_id"`
	EpochIndex uint64 `json:"epoch_index"`
	// Row is the rate of change of DECAY per second. When the high-activation
	// predicate or the monotonicity/ceiling guard fails for the epoch, or there
	// is no valid prior sample, Row is nil and serializes as null: the epoch is
	// a gap in the series, never a zero.
	Row        *float64            `json:"row"`
	Assets     AssetVector         `json:"tree_of_life_view"`
	Severities map[string]Severity `json:"envelope_states,omitempty"`
	Tags       []DiagnosticTag     `json:"nature_tags,omitempty"`
}
