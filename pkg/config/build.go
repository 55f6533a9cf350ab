package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/neuroprint-labs/neurogate/pkg/consent"
	"github.com/neuroprint-labs/neurogate/pkg/envelope"
	"github.com/neuroprint-labs/neurogate/pkg/kernel"
	"github.com/neuroprint-labs/neurogate/pkg/risk"
)

// BuildEvaluator constructs the hysteresis evaluator for the configured axes.
func (c *SessionConfig) BuildEvaluator() *envelope.Evaluator {
	return envelope.NewEvaluator(c.Thresholds)
}

// BuildAccountant constructs the risk accountant.
func (c *SessionConfig) BuildAccountant() (*risk.Accountant, error) {
	return risk.NewAccountant(c.RiskWeights, c.HardCeiling)
}

// BuildKernel compiles the predicate stack and assembles the kernel.
func (c *SessionConfig) BuildKernel(checker kernel.ConsentChecker) (*kernel.Kernel, error) {
	stack, err := kernel.NewPolicyStack(c.Predicates)
	if err != nil {
		return nil, fmt.Errorf("config: compiling predicates: %w", err)
	}
	return kernel.New(kernel.Config{
		Consent:             checker,
		Stack:               stack,
		Ceilings:            c.Ceilings,
		Reversal:            c.Reversal,
		MultiTierPolicyRefs: c.MultiTierPolicyRefs,
	})
}

// BuildConsentVerifier constructs the token verifier from the configured
// issuer key.
func (c *SessionConfig) BuildConsentVerifier() (*consent.Verifier, error) {
	raw, err := base64.StdEncoding.DecodeString(c.Consent.PublicKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("config: decoding consent public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("config: consent public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return consent.NewVerifier(ed25519.PublicKey(raw), c.Consent.Issuer), nil
}
