package overlay

import "github.com/neuroprint-labs/neurogate/pkg/contracts"

// deriveTags applies the closed classification rule table. Rules are checked
// most severe first; when a severe tag and a benign tag would both fire, only
// the severe one is emitted. The vocabulary is contracts.KnownTags and
// nothing else.
func (o *Overlay) deriveTags(f Frame, row float64, rowDefined bool) []contracts.DiagnosticTag {
	var tags []contracts.DiagnosticTag
	overloaded := false

	if o.cognitiveOverload(f) {
		tags = append(tags, contracts.TagCognitiveOverload)
		overloaded = true
	}
	if f.Severities["gamma_power"] == contracts.SeverityRisk {
		tags = append(tags, contracts.TagGammaOverload)
		overloaded = true
	}
	if isOverloaded(f.Assets, o.cfg.OverloadBound) {
		tags = append(tags, contracts.TagOverloaded)
		overloaded = true
	}
	if rowDefined && row >= o.cfg.RowHighPerSec {
		tags = append(tags, contracts.TagRowHigh)
	}
	if rowDefined && row <= -o.cfg.RowRecoveryPerSec {
		tags = append(tags, contracts.TagRowRecovery)
	}
	if o.windowedRecovery() {
		tags = append(tags, contracts.TagRecovery)
	}
	if !overloaded && o.calmStable(f.Assets) {
		tags = append(tags, contracts.TagCalmStable)
	}
	return tags
}

// cognitiveOverload fires when the wave composite is in high activation while
// any monitored axis sits at RISK.
func (o *Overlay) cognitiveOverload(f Frame) bool {
	if f.Assets.Wave < o.cfg.ThetaWave {
		return false
	}
	for _, s := range f.Severities {
		if s == contracts.SeverityRisk {
			return true
		}
	}
	return false
}

func isOverloaded(v contracts.AssetVector, bound float64) bool {
	return v.Decay > bound || v.Fear > bound || v.Pain > bound
}

func (o *Overlay) calmStable(v contracts.AssetVector) bool {
	return v.Lifeforce > o.cfg.CalmLifeforce &&
		v.Fear < o.cfg.CalmDistressMax &&
		v.Pain < o.cfg.CalmDistressMax &&
		v.Decay < o.cfg.CalmDistressMax
}

// windowedRecovery checks the past-window/gap/recent-window rule: a stretch
// of mostly overloaded epochs followed, after a gap, by a recent window whose
// averages have relaxed by at least the configured deltas.
func (o *Overlay) windowedRecovery() bool {
	w, g, wr := o.cfg.PastWindow, o.cfg.GapEpochs, o.cfg.RecentWindow
	if w <= 0 || wr <= 0 || len(o.history) < w+g+wr {
		return false
	}

	recentStart := len(o.history) - wr
	gapStart := recentStart - g
	pastStart := gapStart - w

	past := o.history[pastStart:gapStart]
	recent := o.history[recentStart:]

	overloadedCount := 0
	for _, v := range past {
		if isOverloaded(v, o.cfg.OverloadBound) {
			overloadedCount++
		}
	}
	if float64(overloadedCount)/float64(len(past)) < o.cfg.MinOverloadedFraction {
		return false
	}

	avg := func(views []contracts.AssetVector, field func(contracts.AssetVector) float64) float64 {
		sum := 0.0
		for _, v := range views {
			sum += field(v)
		}
		return sum / float64(len(views))
	}

	decayDelta := avg(past, func(v contracts.AssetVector) float64 { return v.Decay }) -
		avg(recent, func(v contracts.AssetVector) float64 { return v.Decay })
	lifeforceDelta := avg(recent, func(v contracts.AssetVector) float64 { return v.Lifeforce }) -
		avg(past, func(v contracts.AssetVector) float64 { return v.Lifeforce })
	fearDelta := avg(past, func(v contracts.AssetVector) float64 { return v.Fear }) -
		avg(recent, func(v contracts.AssetVector) float64 { return v.Fear })
	painDelta := avg(past, func(v contracts.AssetVector) float64 { return v.Pain }) -
		avg(recent, func(v contracts.AssetVector) float64 { return v.Pain })

	return decayDelta >= o.cfg.DeltaDecayMin &&
		lifeforceDelta >= o.cfg.DeltaLifeforceMin &&
		fearDelta >= o.cfg.DeltaFearMin &&
		painDelta >= o.cfg.DeltaPainMin
}
