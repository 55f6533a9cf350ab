// Package consent models subject consent as signed tokens with a validity
// window and an explicit tier scope. Tokens are issued by an external consent
// authority; the core only verifies them. Verification is deterministic given
// the evaluation time, so the kernel stays a pure function of its inputs.
package consent

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// Claims extend registered JWT claims with the consent scope.
type Claims struct {
	jwt.RegisteredClaims
	// ScopeTiers lists the capability tiers this consent covers. A transition
	// to a tier outside the scope is denied.
	ScopeTiers []string `json:"scope_tiers"`
}

// Issuer signs consent tokens. Production deployments hold the private key in
// the external consent authority; the in-process issuer exists for session
// bootstrap and tests.
type Issuer struct {
	key    ed25519.PrivateKey
	issuer string
	clock  func() time.Time
}

// NewIssuer creates an issuer with the given signing key.
func NewIssuer(key ed25519.PrivateKey, issuer string) *Issuer {
	return &Issuer{key: key, issuer: issuer, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (i *Issuer) WithClock(clock func() time.Time) *Issuer {
	i.clock = clock
	return i
}

// Issue signs a consent token for the subject covering the given tiers.
func (i *Issuer) Issue(subjectID string, tiers []contracts.CapabilityState, validFor time.Duration) (string, error) {
	now := i.clock().UTC()
	scope := make([]string, len(tiers))
	for n, t := range tiers {
		scope[n] = string(t)
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validFor)),
		},
		ScopeTiers: scope,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := tok.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("consent: signing failed: %w", err)
	}
	return signed, nil
}

// Verifier validates consent tokens against the authority's public key.
type Verifier struct {
	pub    ed25519.PublicKey
	issuer string
}

// NewVerifier creates a verifier pinned to one authority key and issuer.
func NewVerifier(pub ed25519.PublicKey, issuer string) *Verifier {
	return &Verifier{pub: pub, issuer: issuer}
}

// Check verifies the token at the supplied instant: signature, issuer,
// subject binding, validity window, and tier scope. Any failure means the
// proposal is denied with CONSENT_INVALID.
func (v *Verifier) Check(token, subjectID string, to contracts.CapabilityState, at time.Time) error {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.pub, nil
	}, jwt.WithTimeFunc(func() time.Time { return at }), jwt.WithIssuer(v.issuer))
	if err != nil {
		return fmt.Errorf("consent: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("consent: token invalid")
	}
	if claims.Subject != subjectID {
		return fmt.Errorf("consent: token subject %q does not cover subject %q", claims.Subject, subjectID)
	}
	for _, tier := range claims.ScopeTiers {
		if tier == string(to) {
			return nil
		}
	}
	return fmt.Errorf("consent: scope does not cover tier %s", to)
}
