//go:build property
// +build property

package overlay_test

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
	"github.com/neuroprint-labs/neurogate/pkg/kernel"
	"github.com/neuroprint-labs/neurogate/pkg/ledger"
	"github.com/neuroprint-labs/neurogate/pkg/overlay"
)

type openConsent struct{}

func (openConsent) Check(_, _ string, _ contracts.CapabilityState, _ time.Time) error { return nil }

// TestOverlayNonInterference runs arbitrary overlay operations before and
// after a kernel decision and asserts the decision and committed entry hash
// are identical to a run with no overlay activity at all.
func TestOverlayNonInterference(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	ceilings := map[contracts.CapabilityState]float64{
		contracts.CapModelOnly:       0.10,
		contracts.CapLabBench:        0.20,
		contracts.CapControlledHuman: 0.30,
		contracts.CapGeneralUse:      0.30,
	}
	stack, err := kernel.NewPolicyStack(nil)
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("overlay activity never changes kernel outcomes", prop.ForAll(
		func(decays []float64, waves []float64, riskAfter float64) bool {
			p := contracts.TransitionProposal{
				ProposalID:  "prop-ni",
				SubjectID:   "subj-ni",
				EpochIndex:  1,
				FromState:   contracts.CapModelOnly,
				ToState:     contracts.CapLabBench,
				Risk:        contracts.RiskScore{Before: 0.01, After: riskAfter},
				EvaluatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			}

			run := func(withOverlay bool) (contracts.Decision, string, bool) {
				k, err := kernel.New(kernel.Config{
					Consent:  openConsent{},
					Stack:    stack,
					Ceilings: ceilings,
				})
				if err != nil {
					return contracts.Decision{}, "", false
				}
				l := ledger.New(ledger.NewMemoryStore(ledger.GenesisHash("sess-ni")), "sess-ni").
					WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC) })

				o := overlay.New(overlay.DefaultConfig())
				feed := func() {
					if !withOverlay {
						return
					}
					for i := range decays {
						wave := 0.0
						if i < len(waves) {
							wave = waves[i]
						}
						_, _ = o.ProcessFrame(overlay.Frame{
							ProposalID:           "prop-ni",
							EpochIndex:           uint64(i),
							EpochDurationSeconds: 5,
							Assets:               contracts.AssetVector{Decay: decays[i], Wave: wave},
							GuardSatisfied:       true,
						})
					}
				}

				feed()
				d := k.Evaluate(p)
				feed()
				e, err := l.Commit(context.Background(), d, p)
				if err != nil {
					return contracts.Decision{}, "", false
				}
				feed()
				return d, e.EntryHash, true
			}

			dQuiet, hQuiet, ok1 := run(false)
			dNoisy, hNoisy, ok2 := run(true)
			return ok1 && ok2 && dQuiet == dNoisy && hQuiet == hNoisy
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
		gen.SliceOf(gen.Float64Range(0, 1)),
		gen.Float64Range(0, 0.5),
	))

	properties.TestingRun(t)
}
