package contracts

// CapabilityState is an ordered access tier granted to a monitored subject's
// session. Mutated exclusively by committing an accepted kernel transition.
type CapabilityState string

const (
	CapModelOnly       CapabilityState = "MODEL_ONLY"
	CapLabBench        CapabilityState = "LAB_BENCH"
	CapControlledHuman CapabilityState = "CONTROLLED_HUMAN"
	CapGeneralUse      CapabilityState = "GENERAL_USE"
)

// TierOrder lists tiers from least to most capable.
var TierOrder = []CapabilityState{
	CapModelOnly,
	CapLabBench,
	CapControlledHuman,
	CapGeneralUse,
}

// Index returns the position of the tier in the lattice, or -1 if unknown.
func (c CapabilityState) Index() int {
	for i, t := range TierOrder {
		if t == c {
			return i
		}
	}
	return -1
}

// Valid reports whether the tier is a member of the lattice.
func (c CapabilityState) Valid() bool { return c.Index() >= 0 }

// IsDowngrade reports whether moving from c to target reduces capability.
func (c CapabilityState) IsDowngrade(target CapabilityState) bool {
	return c.Valid() && target.Valid() && target.Index() < c.Index()
}

// IsAdjacent reports whether target is exactly one tier away from c.
func (c CapabilityState) IsAdjacent(target CapabilityState) bool {
	if !c.Valid() || !target.Valid() {
		return false
	}
	d := target.Index() - c.Index()
	return d == 1 || d == -1
}

// RiskScore is the bounded Risk-of-Harm accounting value. For every accepted
// transition After >= Before and After <= the target tier's ceiling; a
// violating computation is a protocol error, never a value to clamp.
type RiskScore struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}
