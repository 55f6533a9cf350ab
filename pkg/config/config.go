// Package config loads and validates the session policy configuration:
// envelope thresholds, risk weights, tier ceilings, kernel predicates, and
// the asset/overlay parameters. Configuration is an immutable value threaded
// through component constructors, never ambient state. Reloads within a
// session may only tighten safety bounds.
package config

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/neuroprint-labs/neurogate/pkg/assets"
	"github.com/neuroprint-labs/neurogate/pkg/contracts"
	"github.com/neuroprint-labs/neurogate/pkg/envelope"
	"github.com/neuroprint-labs/neurogate/pkg/kernel"
	"github.com/neuroprint-labs/neurogate/pkg/overlay"
	"github.com/neuroprint-labs/neurogate/pkg/risk"
	"github.com/neuroprint-labs/neurogate/pkg/session"
)

// SupportedSchemaMajor is the schema major version this build understands.
// A config with a different major is rejected outright.
const SupportedSchemaMajor = 1

// SessionConfig is the full policy configuration for one deployment.
type SessionConfig struct {
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	Thresholds map[string]envelope.Thresholds `yaml:"thresholds" json:"thresholds"`

	RiskWeights risk.Weights `yaml:"risk_weights" json:"risk_weights"`
	HardCeiling float64      `yaml:"hard_ceiling" json:"hard_ceiling"`

	Ceilings map[contracts.CapabilityState]float64 `yaml:"ceilings" json:"ceilings"`

	Predicates          []kernel.Predicate    `yaml:"predicates" json:"predicates"`
	MultiTierPolicyRefs []string              `yaml:"multi_tier_policy_refs" json:"multi_tier_policy_refs"`
	Reversal            kernel.ReversalPolicy `yaml:"reversal" json:"reversal"`

	Assets  assets.Config        `yaml:"assets" json:"assets"`
	Overlay overlay.Config       `yaml:"overlay" json:"overlay"`
	Ingest  session.IngestPolicy `yaml:"ingest" json:"ingest"`

	Consent ConsentConfig `yaml:"consent" json:"consent"`
}

// ConsentConfig names the trusted token issuer and the verification key.
type ConsentConfig struct {
	Issuer string `yaml:"issuer" json:"issuer"`
	// PublicKeyBase64 is the issuer's ed25519 public key.
	PublicKeyBase64 string `yaml:"public_key_base64" json:"public_key_base64"`
}

// Load reads, schema-validates, and semantically validates a YAML config.
func Load(path string) (*SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw YAML bytes into a SessionConfig.
func Parse(data []byte) (*SessionConfig, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var cfg SessionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Asset and overlay parameters are tuning knobs, not safety bounds;
	// omitted sections fall back to the baseline.
	if cfg.Assets.Ranges == nil {
		cfg.Assets = assets.DefaultConfig()
		cfg.Assets.Ceilings = nil
	}
	// DECAY normalizes against the same per-tier budget the kernel enforces;
	// an absent asset ceiling table inherits the kernel ceilings.
	if cfg.Assets.Ceilings == nil {
		ceilings := make(map[contracts.CapabilityState]float64, len(cfg.Ceilings))
		for tier, c := range cfg.Ceilings {
			ceilings[tier] = c
		}
		cfg.Assets.Ceilings = ceilings
	}
	if cfg.Overlay == (overlay.Config{}) {
		cfg.Overlay = overlay.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies the semantic rules the JSON schema cannot express.
func (c *SessionConfig) Validate() error {
	v, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return fmt.Errorf("config: bad schema_version %q: %w", c.SchemaVersion, err)
	}
	if v.Major() != SupportedSchemaMajor {
		return fmt.Errorf("config: schema_version %s not supported (want major %d)", c.SchemaVersion, SupportedSchemaMajor)
	}

	for axis, t := range c.Thresholds {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("config: thresholds for axis %q: %w", axis, err)
		}
	}
	if err := c.RiskWeights.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.HardCeiling <= 0 {
		return fmt.Errorf("config: hard_ceiling must be positive, got %.3f", c.HardCeiling)
	}

	prev := 0.0
	for _, tier := range contracts.TierOrder {
		ceiling, ok := c.Ceilings[tier]
		if !ok {
			return fmt.Errorf("config: no risk ceiling for tier %s", tier)
		}
		if ceiling < prev {
			return fmt.Errorf("config: ceiling for %s (%.3f) below lower tier's (%.3f)", tier, ceiling, prev)
		}
		if ceiling > c.HardCeiling {
			return fmt.Errorf("config: ceiling for %s (%.3f) exceeds hard ceiling %.3f", tier, ceiling, c.HardCeiling)
		}
		prev = ceiling
	}
	for tier, ceiling := range c.Assets.Ceilings {
		if kernel, ok := c.Ceilings[tier]; ok && ceiling != kernel {
			return fmt.Errorf("config: assets ceiling for %s (%.3f) diverges from kernel ceiling (%.3f)", tier, ceiling, kernel)
		}
	}
	return nil
}

// ValidateReload rejects a replacement config that would relax any active
// safety bound: a widened warn/safe band, a raised tier ceiling, or a raised
// hard ceiling. New axes may be added; configured axes may not vanish.
func (c *SessionConfig) ValidateReload(next *SessionConfig) error {
	if err := next.Validate(); err != nil {
		return err
	}

	for axis, prev := range c.Thresholds {
		nt, ok := next.Thresholds[axis]
		if !ok {
			return fmt.Errorf("config reload: axis %q removed", axis)
		}
		if !nt.TightensOrEqual(prev) {
			return fmt.Errorf("config reload: bounds for axis %q relaxed", axis)
		}
	}
	for tier, prev := range c.Ceilings {
		if next.Ceilings[tier] > prev {
			return fmt.Errorf("config reload: ceiling for %s raised", tier)
		}
	}
	if next.HardCeiling > c.HardCeiling {
		return fmt.Errorf("config reload: hard ceiling raised")
	}
	return nil
}
