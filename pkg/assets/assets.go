// Package assets derives the bounded diagnostic scalar vector from a raw
// signal snapshot plus published kernel context. Derivation is a pure
// function: no history, no side effects, no capability writes. The output is
// view-only and structurally unusable as kernel input.
package assets

import (
	"math"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// neutralDefault substitutes for channels the collector did not supply.
const neutralDefault = 0.5

// ChannelRange maps a raw channel reading onto [0,1]. Readings outside the
// range saturate.
type ChannelRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Normalize maps raw onto [0,1] within the range.
func (r ChannelRange) Normalize(raw float64) float64 {
	if r.Max <= r.Min {
		return neutralDefault
	}
	return clamp01((raw - r.Min) / (r.Max - r.Min))
}

// CompositeWeights holds the coefficients for the composite assets. The exact
// values are operator configuration, not constants of the model; only the
// bound and direction properties are fixed.
type CompositeWeights struct {
	WaveAlpha    float64 `yaml:"wave_alpha" json:"wave_alpha"`
	WaveBeta     float64 `yaml:"wave_beta" json:"wave_beta"`
	WaveGamma    float64 `yaml:"wave_gamma" json:"wave_gamma"`
	WaveAlphaCVE float64 `yaml:"wave_alpha_cve" json:"wave_alpha_cve"`

	PowerHeart float64 `yaml:"power_heart" json:"power_heart"`
	PowerWave  float64 `yaml:"power_wave" json:"power_wave"`

	FearEDA   float64 `yaml:"fear_eda" json:"fear_eda"`
	FearHeart float64 `yaml:"fear_heart" json:"fear_heart"`

	PainMotion float64 `yaml:"pain_motion" json:"pain_motion"`
	PainEDA    float64 `yaml:"pain_eda" json:"pain_eda"`

	FieldRespiration float64 `yaml:"field_respiration" json:"field_respiration"`
	FieldGaze        float64 `yaml:"field_gaze" json:"field_gaze"`
}

// Config parameterizes derivation for one deployment.
type Config struct {
	Ranges map[contracts.Channel]ChannelRange `yaml:"ranges" json:"ranges"`
	// Ceilings gives the risk ceiling per tier, used to normalize DECAY.
	Ceilings map[contracts.CapabilityState]float64 `yaml:"ceilings" json:"ceilings"`
	Weights  CompositeWeights                      `yaml:"weights" json:"weights"`
	// EpochHorizon normalizes the epoch index for the TIME asset.
	EpochHorizon uint64 `yaml:"epoch_horizon" json:"epoch_horizon"`
}

// DefaultConfig returns a usable baseline. Deployments tune ranges per
// acquisition hardware.
func DefaultConfig() Config {
	return Config{
		Ranges: map[contracts.Channel]ChannelRange{
			contracts.ChannelAlphaPower: {Min: 0, Max: 1},
			contracts.ChannelBetaPower:  {Min: 0, Max: 1},
			contracts.ChannelGammaPower: {Min: 0, Max: 1},
			contracts.ChannelAlphaCVE:   {Min: 0, Max: 1},
			contracts.ChannelHeartRate:  {Min: 40, Max: 180},
			contracts.ChannelHRV:        {Min: 0, Max: 200},
			contracts.ChannelEDA:        {Min: 0, Max: 20},
			contracts.ChannelMotion:     {Min: 0, Max: 1},
			contracts.ChannelRespire:    {Min: 4, Max: 40},
			contracts.ChannelGaze:       {Min: 0, Max: 1},
		},
		Ceilings: map[contracts.CapabilityState]float64{
			contracts.CapModelOnly:       0.10,
			contracts.CapLabBench:        0.20,
			contracts.CapControlledHuman: 0.30,
			contracts.CapGeneralUse:      0.30,
		},
		Weights: CompositeWeights{
			WaveAlpha: 0.25, WaveBeta: 0.25, WaveGamma: 0.25, WaveAlphaCVE: 0.25,
			PowerHeart: 0.5, PowerWave: 0.5,
			FearEDA: 0.6, FearHeart: 0.4,
			PainMotion: 0.5, PainEDA: 0.5,
			FieldRespiration: 0.5, FieldGaze: 0.5,
		},
		EpochHorizon: 10000,
	}
}

// Engine derives asset vectors under one configuration.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.EpochHorizon == 0 {
		cfg.EpochHorizon = DefaultConfig().EpochHorizon
	}
	return &Engine{cfg: cfg}
}

// Derive maps one snapshot plus kernel context into the asset vector. Every
// output field is in [0,1] for arbitrary raw inputs; recomputing from
// identical inputs yields identical output.
func (e *Engine) Derive(snap contracts.SignalSnapshot, risk contracts.RiskScore, tier contracts.CapabilityState, epochIndex uint64) contracts.AssetVector {
	w := e.cfg.Weights

	heart := e.norm(snap, contracts.ChannelHeartRate)
	hrv := e.norm(snap, contracts.ChannelHRV)
	eda := e.norm(snap, contracts.ChannelEDA)
	motion := e.norm(snap, contracts.ChannelMotion)
	respiration := e.norm(snap, contracts.ChannelRespire)
	gaze := e.norm(snap, contracts.ChannelGaze)

	wave := clamp01(w.WaveAlpha*e.norm(snap, contracts.ChannelAlphaPower) +
		w.WaveBeta*e.norm(snap, contracts.ChannelBetaPower) +
		w.WaveGamma*e.norm(snap, contracts.ChannelGammaPower) +
		w.WaveAlphaCVE*e.norm(snap, contracts.ChannelAlphaCVE))

	decay := 0.0
	if ceiling, ok := e.cfg.Ceilings[tier]; ok && ceiling > 0 {
		decay = clamp01(risk.After / ceiling)
	}
	lifeforce := clamp01(1.0 - decay)

	// Higher heart rate means less circulatory reserve.
	blood := clamp01(1.0 - heart)
	oxygen := hrv

	elapsed := clamp01(float64(epochIndex) / float64(e.cfg.EpochHorizon))

	brain := tierScalar(tier)
	evolve := clamp01(0.5*brain + 0.5*elapsed)
	smart := clamp01(0.5*brain + 0.5*evolve)

	power := clamp01(w.PowerHeart*heart + w.PowerWave*wave)
	tech := clamp01(0.5*brain + 0.5*power)

	fear := clamp01(w.FearEDA*eda + w.FearHeart*heart)
	pain := clamp01(w.PainMotion*motion + w.PainEDA*eda)

	field := clamp01(w.FieldRespiration*respiration + w.FieldGaze*gaze)

	return contracts.AssetVector{
		Blood:     blood,
		Oxygen:    oxygen,
		Wave:      wave,
		Time:      elapsed,
		Decay:     decay,
		Lifeforce: lifeforce,
		Brain:     brain,
		Smart:     smart,
		Evolve:    evolve,
		Power:     power,
		Tech:      tech,
		Fear:      fear,
		Pain:      pain,
		Nano:      evolve,
		Field:     field,
	}
}

// norm returns the normalized channel value, or the neutral default when the
// collector did not supply the channel.
func (e *Engine) norm(snap contracts.SignalSnapshot, c contracts.Channel) float64 {
	raw, ok := snap.Value(c)
	if !ok {
		return neutralDefault
	}
	r, ok := e.cfg.Ranges[c]
	if !ok {
		return clamp01(raw)
	}
	return r.Normalize(raw)
}

// tierScalar maps the capability lattice onto [0,1].
func tierScalar(tier contracts.CapabilityState) float64 {
	idx := tier.Index()
	if idx < 0 || len(contracts.TierOrder) < 2 {
		return 0
	}
	return float64(idx) / float64(len(contracts.TierOrder)-1)
}

// clamp01 saturates to [0,1]; NaN collapses to 0 so bad sensor frames cannot
// poison downstream math.
func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
