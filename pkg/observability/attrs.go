package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// Pipeline semantic convention attributes.
var (
	AttrSessionID  = attribute.Key("neurogate.session.id")
	AttrSubjectID  = attribute.Key("neurogate.subject.id")
	AttrEpochIndex = attribute.Key("neurogate.epoch.index")
	AttrTier       = attribute.Key("neurogate.tier")

	AttrProposalID      = attribute.Key("neurogate.proposal.id")
	AttrProposalHold    = attribute.Key("neurogate.proposal.hold")
	AttrDecisionOutcome = attribute.Key("neurogate.decision.outcome")
	AttrDenyReason      = attribute.Key("neurogate.decision.reason")

	AttrChainIntact = attribute.Key("neurogate.chain.intact")
)

// DecisionAttrs builds attributes for one kernel decision.
func DecisionAttrs(p contracts.TransitionProposal, d contracts.Decision) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrSubjectID.String(p.SubjectID),
		AttrProposalHold.Bool(p.IsHold()),
		AttrTier.String(string(p.ToState)),
		AttrDecisionOutcome.String(string(d.Outcome)),
	}
	if d.Reason != contracts.DenyNone {
		attrs = append(attrs, AttrDenyReason.String(string(d.Reason)))
	}
	return attrs
}

// TransitionAttrs builds attributes for a tier change proposal span.
func TransitionAttrs(p contracts.TransitionProposal) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProposalID.String(p.ProposalID),
		AttrSubjectID.String(p.SubjectID),
		AttrEpochIndex.Int64(int64(p.EpochIndex)),
		attribute.String("neurogate.tier.from", string(p.FromState)),
		attribute.String("neurogate.tier.to", string(p.ToState)),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
