package ledger

import (
	"context"
	"errors"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// ErrNotFound is returned for lookups of unknown entries or proposals.
var ErrNotFound = errors.New("ledger: not found")

// Store is the durable backend for one session's chain. Implementations must
// make Append atomic: the entry commits in full or not at all.
type Store interface {
	// Append persists an entry. The caller has already linked and hashed it.
	Append(ctx context.Context, e Entry) error

	// Tip returns the hash of the last committed entry (or the genesis hash)
	// and the committed entry count.
	Tip(ctx context.Context) (hash string, count uint64, err error)

	// Entries returns all committed entries in sequence order.
	Entries(ctx context.Context) ([]Entry, error)

	// ByProposal returns the entry committed for a proposal.
	ByProposal(ctx context.Context, proposalID string) (Entry, error)

	// PutAnnotation stores a diagnostic annotation in the side table.
	// Annotations are additive context and never alter committed entries.
	PutAnnotation(ctx context.Context, a contracts.DiagnosticAnnotation) error

	// Annotations returns the annotations recorded for a proposal.
	Annotations(ctx context.Context, proposalID string) ([]contracts.DiagnosticAnnotation, error)
}
