// Package session orchestrates one governed monitoring session: epochs flow
// through the hysteresis evaluator and risk accountant into kernel decisions
// and ledger appends, while the diagnostic overlay consumes the same stream
// off the hot path.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neuroprint-labs/neurogate/pkg/assets"
	"github.com/neuroprint-labs/neurogate/pkg/contracts"
	"github.com/neuroprint-labs/neurogate/pkg/envelope"
	"github.com/neuroprint-labs/neurogate/pkg/kernel"
	"github.com/neuroprint-labs/neurogate/pkg/ledger"
	"github.com/neuroprint-labs/neurogate/pkg/overlay"
	"github.com/neuroprint-labs/neurogate/pkg/risk"
)

// Config identifies the session and its subject.
type Config struct {
	SessionID    string
	SubjectID    string
	InitialTier  contracts.CapabilityState
	ConsentToken string
	Role         string
	Jurisdiction string
	// Ingest bounds epoch submission when a limiter store is attached.
	Ingest IngestPolicy
}

// Deps are the session's collaborators. Evaluator, Accountant, Kernel, and
// Ledger are required; Assets+Overlay and Limiter are optional.
type Deps struct {
	Evaluator  *envelope.Evaluator
	Accountant *risk.Accountant
	Kernel     *kernel.Kernel
	Ledger     *ledger.Ledger
	Assets     *assets.Engine
	Overlay    *overlay.Consumer
	Limiter    LimiterStore
	Logger     *slog.Logger
}

// Session owns the mutable per-session state: axis hysteresis, the current
// capability tier, and the committed risk score. All mutations go through an
// accepted kernel decision committed to the ledger.
type Session struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps

	clock func() time.Time
	newID func() string

	axes          map[string]contracts.AxisState
	tier          contracts.CapabilityState
	committedRisk float64
	halted        bool
}

// New assembles a session at its initial tier with zero committed risk.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Evaluator == nil || deps.Accountant == nil || deps.Kernel == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("session: evaluator, accountant, kernel, and ledger are required")
	}
	if !cfg.InitialTier.Valid() {
		return nil, fmt.Errorf("session: unknown initial tier %q", cfg.InitialTier)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	axes := make(map[string]contracts.AxisState)
	for _, axis := range deps.Evaluator.Axes() {
		axes[axis] = contracts.AxisState{Axis: axis}
	}
	return &Session{
		cfg:   cfg,
		deps:  deps,
		clock: time.Now,
		newID: func() string { return uuid.New().String() },
		axes:  axes,
		tier:  cfg.InitialTier,
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (s *Session) WithClock(clock func() time.Time) *Session {
	s.clock = clock
	return s
}

// WithIDSource overrides proposal ID generation for deterministic testing.
func (s *Session) WithIDSource(newID func() string) *Session {
	s.newID = newID
	return s
}

// Tier returns the current committed capability tier.
func (s *Session) Tier() contracts.CapabilityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

// CommittedRisk returns the current committed risk score.
func (s *Session) CommittedRisk() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committedRisk
}

// Halted reports whether ingestion has stopped pending external audit.
func (s *Session) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// AxisStates returns a copy of the per-axis hysteresis state.
func (s *Session) AxisStates() map[string]contracts.AxisState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]contracts.AxisState, len(s.axes))
	for k, v := range s.axes {
		out[k] = v
	}
	return out
}

// ProcessEpoch ingests one snapshot: hysteresis step, risk accounting, a
// tier-hold kernel decision, and the ledger append. The overlay frame is
// published after commit and never awaited.
func (s *Session) ProcessEpoch(ctx context.Context, snap contracts.SignalSnapshot) (ledger.Entry, contracts.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return ledger.Entry{}, contracts.Decision{}, contracts.ErrSessionHalted
	}
	if s.deps.Limiter != nil {
		if err := CheckIngest(ctx, s.deps.Limiter, s.cfg.SubjectID, s.cfg.Ingest); err != nil {
			return ledger.Entry{}, contracts.Decision{}, err
		}
	}

	// Hysteresis advances on every observed epoch; only risk and tier commits
	// are gated on the decision.
	for axis, prev := range s.axes {
		if v, ok := snap.Value(contracts.Channel(axis)); ok {
			s.axes[axis] = s.deps.Evaluator.Step(prev, v, snap.EpochDurationSeconds)
		}
	}

	after, riskErr := s.deps.Accountant.Compute(s.axes, s.committedRisk)
	if riskErr != nil && !errors.Is(riskErr, contracts.ErrRiskMonotonicity) {
		return ledger.Entry{}, contracts.Decision{}, riskErr
	}

	p := s.proposalLocked(s.tier, after)
	p.EpochIndex = snap.EpochIndex

	d := s.deps.Kernel.Evaluate(p)
	e, err := s.commitLocked(ctx, d, p)
	if err != nil {
		return ledger.Entry{}, contracts.Decision{}, err
	}

	if d.Accepted() {
		s.committedRisk = after
	} else {
		s.deps.Logger.Warn("epoch denied",
			"proposal_id", p.ProposalID, "epoch_index", p.EpochIndex,
			"reason", d.Reason, "detail", d.Detail)
	}

	s.publishFrameLocked(snap, p, riskErr == nil, s.axes)
	return e, d, nil
}

// ProposeTransition submits a capability tier change using the current
// committed risk state. On accept the tier is committed.
func (s *Session) ProposeTransition(ctx context.Context, to contracts.CapabilityState, reversal contracts.ReversalEvidence, policyRefs []string) (ledger.Entry, contracts.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return ledger.Entry{}, contracts.Decision{}, contracts.ErrSessionHalted
	}

	after, riskErr := s.deps.Accountant.Compute(s.axes, s.committedRisk)
	if riskErr != nil && !errors.Is(riskErr, contracts.ErrRiskMonotonicity) {
		return ledger.Entry{}, contracts.Decision{}, riskErr
	}

	p := s.proposalLocked(to, after)
	p.Reversal = reversal
	p.PolicyRefs = policyRefs

	d := s.deps.Kernel.Evaluate(p)
	e, err := s.commitLocked(ctx, d, p)
	if err != nil {
		return ledger.Entry{}, contracts.Decision{}, err
	}

	if d.Accepted() {
		s.tier = to
		s.committedRisk = after
	}
	return e, d, nil
}

// VerifyChain re-verifies the session's ledger. Corruption halts ingestion
// until an external audit re-anchors the chain.
func (s *Session) VerifyChain(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.deps.Ledger.VerifyChain(ctx)
	if errors.Is(err, contracts.ErrChainCorruption) {
		s.halted = true
		s.deps.Logger.Error("ledger corruption detected, session halted",
			"session_id", s.cfg.SessionID, "entry_index", n)
	}
	return n, err
}

func (s *Session) proposalLocked(to contracts.CapabilityState, after float64) contracts.TransitionProposal {
	return contracts.TransitionProposal{
		ProposalID:   s.newID(),
		SubjectID:    s.cfg.SubjectID,
		FromState:    s.tier,
		ToState:      to,
		Risk:         contracts.RiskScore{Before: s.committedRisk, After: after},
		ConsentToken: s.cfg.ConsentToken,
		Role:         s.cfg.Role,
		Jurisdiction: s.cfg.Jurisdiction,
		EvaluatedAt:  s.clock().UTC(),
	}
}

func (s *Session) commitLocked(ctx context.Context, d contracts.Decision, p contracts.TransitionProposal) (ledger.Entry, error) {
	e, err := s.deps.Ledger.Commit(ctx, d, p)
	if err != nil {
		if errors.Is(err, contracts.ErrChainCorruption) {
			s.halted = true
			s.deps.Logger.Error("ledger corruption detected, session halted",
				"session_id", s.cfg.SessionID)
			return ledger.Entry{}, fmt.Errorf("%w: %v", contracts.ErrSessionHalted, err)
		}
		return ledger.Entry{}, err
	}
	return e, nil
}

// publishFrameLocked hands the epoch to the overlay. Publish is non-blocking
// and the frame is a value copy; a stalled overlay cannot touch this path.
func (s *Session) publishFrameLocked(snap contracts.SignalSnapshot, p contracts.TransitionProposal, guardOK bool, states map[string]contracts.AxisState) {
	if s.deps.Assets == nil || s.deps.Overlay == nil {
		return
	}
	vector := s.deps.Assets.Derive(snap, p.Risk, s.tier, snap.EpochIndex)

	severities := make(map[string]contracts.Severity, len(states))
	for axis, st := range states {
		severities[axis] = st.Severity
	}

	s.deps.Overlay.Publish(overlay.Frame{
		ProposalID:           p.ProposalID,
		EpochIndex:           snap.EpochIndex,
		EpochDurationSeconds: snap.EpochDurationSeconds,
		Assets:               vector,
		Severities:           severities,
		GuardSatisfied:       guardOK && p.Risk.After <= s.deps.Kernel.Ceiling(s.tier),
	})
}
