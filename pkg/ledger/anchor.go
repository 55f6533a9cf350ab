package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/neuroprint-labs/neurogate/pkg/canonical"
)

// ErrBadCheckpoint is returned when a checkpoint signature does not verify.
var ErrBadCheckpoint = errors.New("ledger: checkpoint signature invalid")

// Checkpoint is a signed statement of the chain tip at a point in time.
// Auditors verify checkpoints against the session anchor's public key instead
// of trusting the store.
type Checkpoint struct {
	SessionID string    `json:"session_id"`
	TipHash   string    `json:"tip_hash"`
	Count     uint64    `json:"count"`
	SignedAt  time.Time `json:"signed_at"`
	Signature string    `json:"signature"`
}

// Anchor holds the per-session ed25519 keypair used to sign checkpoints.
// Session keys are derived from an operator master seed with HKDF-SHA256 so
// that one compromised session key never exposes another session's.
type Anchor struct {
	sessionID string
	priv      ed25519.PrivateKey
	pub       ed25519.PublicKey
}

// NewAnchor generates a standalone anchor for a session.
func NewAnchor(sessionID string) (*Anchor, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Anchor{sessionID: sessionID, priv: priv, pub: pub}, nil
}

// DeriveAnchor derives a deterministic session anchor from a master seed.
func DeriveAnchor(masterSeed []byte, sessionID string) (*Anchor, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id must not be empty")
	}
	r := hkdf.New(sha256.New, masterSeed, []byte("neurogate-session-anchor"), []byte(sessionID))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("hkdf derivation failed: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Anchor{
		sessionID: sessionID,
		priv:      priv,
		pub:       priv.Public().(ed25519.PublicKey),
	}, nil
}

// PublicKey returns the anchor's verification key.
func (a *Anchor) PublicKey() ed25519.PublicKey { return a.pub }

// SignCheckpoint signs the tip state. The signature covers the canonical form
// of the checkpoint minus the signature field.
func (a *Anchor) SignCheckpoint(tipHash string, count uint64, at time.Time) (Checkpoint, error) {
	cp := Checkpoint{
		SessionID: a.sessionID,
		TipHash:   tipHash,
		Count:     count,
		SignedAt:  at.UTC(),
	}
	msg, err := checkpointMessage(cp)
	if err != nil {
		return Checkpoint{}, err
	}
	cp.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(a.priv, msg))
	return cp, nil
}

// VerifyCheckpoint checks a checkpoint against a public key.
func VerifyCheckpoint(pub ed25519.PublicKey, cp Checkpoint) error {
	sig, err := base64.StdEncoding.DecodeString(cp.Signature)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	msg, err := checkpointMessage(cp)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, msg, sig) {
		return ErrBadCheckpoint
	}
	return nil
}

func checkpointMessage(cp Checkpoint) ([]byte, error) {
	cp.Signature = ""
	return canonical.Marshal(cp)
}
