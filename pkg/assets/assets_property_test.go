//go:build property
// +build property

package assets_test

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/neuroprint-labs/neurogate/pkg/assets"
	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// TestDeriveBoundsProperty verifies every output field stays in [0,1] for
// arbitrary raw inputs, including out-of-range and non-finite values.
func TestDeriveBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	engine := assets.NewEngine(assets.DefaultConfig())
	channels := []contracts.Channel{
		contracts.ChannelAlphaPower, contracts.ChannelBetaPower,
		contracts.ChannelGammaPower, contracts.ChannelAlphaCVE,
		contracts.ChannelHeartRate, contracts.ChannelHRV,
		contracts.ChannelEDA, contracts.ChannelMotion,
		contracts.ChannelRespire, contracts.ChannelGaze,
	}

	properties.Property("asset vector stays bounded", prop.ForAll(
		func(values []float64, riskAfter float64, tierIdx int, epoch uint64) bool {
			snap := contracts.SignalSnapshot{
				SubjectID:  "subj-prop",
				EpochIndex: epoch,
				Channels:   map[contracts.Channel]float64{},
			}
			for i, v := range values {
				if i >= len(channels) {
					break
				}
				snap.Channels[channels[i]] = v
			}
			tier := contracts.TierOrder[((tierIdx%len(contracts.TierOrder))+len(contracts.TierOrder))%len(contracts.TierOrder)]

			v := engine.Derive(snap, contracts.RiskScore{After: riskAfter}, tier, epoch)
			for _, f := range []float64{
				v.Blood, v.Oxygen, v.Wave, v.Time, v.Decay, v.Lifeforce,
				v.Brain, v.Smart, v.Evolve, v.Power, v.Tech, v.Fear,
				v.Pain, v.Nano, v.Field,
			} {
				if math.IsNaN(f) || f < 0 || f > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-1e12, 1e12)),
		gen.Float64Range(-10, 10),
		gen.Int(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

// TestDeriveDecayMonotoneProperty verifies DECAY never decreases as risk
// increases under a fixed tier.
func TestDeriveDecayMonotoneProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	engine := assets.NewEngine(assets.DefaultConfig())
	snap := contracts.SignalSnapshot{SubjectID: "subj-prop"}

	properties.Property("decay is monotone in risk", prop.ForAll(
		func(a, b float64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			vLo := engine.Derive(snap, contracts.RiskScore{After: lo}, contracts.CapLabBench, 0)
			vHi := engine.Derive(snap, contracts.RiskScore{After: hi}, contracts.CapLabBench, 0)
			return vLo.Decay <= vHi.Decay && vLo.Lifeforce >= vHi.Lifeforce
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
