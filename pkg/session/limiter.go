package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// timeNow is swapped in limiter tests.
var timeNow = time.Now

// IngestPolicy bounds how fast a subject's collector may submit epochs.
type IngestPolicy struct {
	EpochsPerMinute int `yaml:"epochs_per_minute" json:"epochs_per_minute"`
	Burst           int `yaml:"burst" json:"burst"`
}

// LimiterStore abstracts the storage for ingest rate buckets.
type LimiterStore interface {
	// Allow checks whether the subject may submit an epoch costing 'cost'.
	Allow(ctx context.Context, subjectID string, policy IngestPolicy, cost int) (bool, error)
}

// CheckIngest gates one epoch submission. A nil store fails closed.
func CheckIngest(ctx context.Context, store LimiterStore, subjectID string, policy IngestPolicy) error {
	if store == nil {
		return fmt.Errorf("ingest: no limiter store configured")
	}
	allowed, err := store.Allow(ctx, subjectID, policy, 1)
	if err != nil {
		return fmt.Errorf("ingest limit check failed: %w", err)
	}
	if !allowed {
		return fmt.Errorf("ingest: rate limit exceeded for %s", subjectID)
	}
	return nil
}

// MemoryLimiterStore keeps per-subject buckets in process memory. Suitable
// for single-instance deployments and tests.
type MemoryLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewMemoryLimiterStore() *MemoryLimiterStore {
	return &MemoryLimiterStore{limiters: make(map[string]*rate.Limiter)}
}

func (s *MemoryLimiterStore) Allow(_ context.Context, subjectID string, policy IngestPolicy, cost int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lim, ok := s.limiters[subjectID]
	if !ok {
		perSec := float64(policy.EpochsPerMinute) / 60.0
		if perSec <= 0 {
			perSec = 1
		}
		burst := policy.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSec), burst)
		s.limiters[subjectID] = lim
	}
	return lim.AllowN(timeNow(), cost), nil
}
