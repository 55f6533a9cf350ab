package ledger

import (
	"context"
	"sync"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// MemoryStore keeps the chain in process memory. Suitable for tests and
// single-run replay sessions.
type MemoryStore struct {
	mu          sync.RWMutex
	genesis     string
	entries     []Entry
	annotations map[string][]contracts.DiagnosticAnnotation
}

// NewMemoryStore creates a store anchored at the session's genesis hash.
func NewMemoryStore(genesis string) *MemoryStore {
	return &MemoryStore{
		genesis:     genesis,
		annotations: make(map[string][]contracts.DiagnosticAnnotation),
	}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) Tip(_ context.Context) (string, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return s.genesis, 0, nil
	}
	return s.entries[len(s.entries)-1].EntryHash, uint64(len(s.entries)), nil
}

func (s *MemoryStore) Entries(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) ByProposal(_ context.Context, proposalID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ProposalID == proposalID {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (s *MemoryStore) PutAnnotation(_ context.Context, a contracts.DiagnosticAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotations[a.ProposalID] = append(s.annotations[a.ProposalID], a)
	return nil
}

func (s *MemoryStore) Annotations(_ context.Context, proposalID string) ([]contracts.DiagnosticAnnotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	anns := s.annotations[proposalID]
	out := make([]contracts.DiagnosticAnnotation, len(anns))
	copy(out, anns)
	return out, nil
}

// Tamper overwrites a committed entry in place. Test hook for corruption
// detection; never called by production code.
func (s *MemoryStore) Tamper(index int, mutate func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 0 && index < len(s.entries) {
		mutate(&s.entries[index])
	}
}
