package overlay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

func activeFrame(epoch uint64, decay float64) Frame {
	return Frame{
		ProposalID:           "prop-1",
		EpochIndex:           epoch,
		EpochDurationSeconds: 5,
		Assets: contracts.AssetVector{
			Wave:      0.6, // above theta
			Decay:     decay,
			Lifeforce: 1 - decay,
		},
		GuardSatisfied: true,
	}
}

func TestRowSignPositiveOnConsumption(t *testing.T) {
	o := New(DefaultConfig())

	_, err := o.ProcessFrame(activeFrame(1, 0.60))
	require.NoError(t, err)

	ann, err := o.ProcessFrame(activeFrame(2, 0.70))
	require.NoError(t, err)
	require.NotNil(t, ann.Row)
	require.InDelta(t, 0.02, *ann.Row, 1e-9)
}

func TestRowSignNegativeOnRecovery(t *testing.T) {
	o := New(DefaultConfig())

	_, err := o.ProcessFrame(activeFrame(1, 0.60))
	require.NoError(t, err)

	ann, err := o.ProcessFrame(activeFrame(2, 0.55))
	require.NoError(t, err)
	require.NotNil(t, ann.Row)
	require.InDelta(t, -0.01, *ann.Row, 1e-9)
}

func TestRowUndefinedOnFirstEpoch(t *testing.T) {
	o := New(DefaultConfig())
	ann, err := o.ProcessFrame(activeFrame(1, 0.60))
	require.NoError(t, err)
	require.Nil(t, ann.Row)
}

func TestRowUndefinedBelowActivation(t *testing.T) {
	o := New(DefaultConfig())
	_, err := o.ProcessFrame(activeFrame(1, 0.60))
	require.NoError(t, err)

	f := activeFrame(2, 0.70)
	f.Assets.Wave = 0.1
	ann, err := o.ProcessFrame(f)
	require.NoError(t, err)
	require.Nil(t, ann.Row)
}

func TestRowGapWhenGuardFails(t *testing.T) {
	o := New(DefaultConfig())
	_, err := o.ProcessFrame(activeFrame(1, 0.60))
	require.NoError(t, err)

	// Guard failure: the epoch is a gap, not a zero.
	f := activeFrame(2, 0.70)
	f.GuardSatisfied = false
	ann, err := o.ProcessFrame(f)
	require.NoError(t, err)
	require.Nil(t, ann.Row)

	// The epoch after the gap has no valid predecessor sample either.
	ann, err = o.ProcessFrame(activeFrame(3, 0.72))
	require.NoError(t, err)
	require.Nil(t, ann.Row)

	// One more epoch and ROW is measurable again.
	ann, err = o.ProcessFrame(activeFrame(4, 0.74))
	require.NoError(t, err)
	require.NotNil(t, ann.Row)
}

func TestAnnotationRowSerializesNullOnGap(t *testing.T) {
	o := New(DefaultConfig())

	// First epoch has no prior sample: the stream carries an explicit null,
	// never a fabricated zero.
	ann, err := o.ProcessFrame(activeFrame(1, 0.50))
	require.NoError(t, err)
	data, err := json.Marshal(ann)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	val, ok := doc["row"]
	require.True(t, ok)
	require.Nil(t, val)

	ann, err = o.ProcessFrame(activeFrame(2, 0.75))
	require.NoError(t, err)
	data, err = json.Marshal(ann)
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(data, &doc))
	require.InDelta(t, 0.05, doc["row"].(float64), 1e-9)
}

func TestProcessFrameRejectsNonPositiveDuration(t *testing.T) {
	o := New(DefaultConfig())
	f := activeFrame(1, 0.60)
	f.EpochDurationSeconds = 0
	_, err := o.ProcessFrame(f)
	require.Error(t, err)
}

func TestTagsRowHighAndRecovery(t *testing.T) {
	o := New(DefaultConfig())
	_, err := o.ProcessFrame(activeFrame(1, 0.50))
	require.NoError(t, err)

	ann, err := o.ProcessFrame(activeFrame(2, 0.60)) // ROW = 0.02 >= 0.015
	require.NoError(t, err)
	require.Contains(t, ann.Tags, contracts.TagRowHigh)

	ann, err = o.ProcessFrame(activeFrame(3, 0.40)) // ROW = -0.04 <= -0.005
	require.NoError(t, err)
	require.Contains(t, ann.Tags, contracts.TagRowRecovery)
}

func TestTagsOverloadedSuppressesCalmStable(t *testing.T) {
	o := New(DefaultConfig())
	f := activeFrame(1, 0.1)
	f.Assets.Lifeforce = 0.9
	f.Assets.Fear = 0.8 // fear alone trips the overload bound
	ann, err := o.ProcessFrame(f)
	require.NoError(t, err)
	require.Contains(t, ann.Tags, contracts.TagOverloaded)
	require.NotContains(t, ann.Tags, contracts.TagCalmStable)
}

func TestTagsCalmStable(t *testing.T) {
	o := New(DefaultConfig())
	f := activeFrame(1, 0.1)
	f.Assets.Lifeforce = 0.9
	ann, err := o.ProcessFrame(f)
	require.NoError(t, err)
	require.Equal(t, []contracts.DiagnosticTag{contracts.TagCalmStable}, ann.Tags)
}

func TestTagsGammaAndCognitiveOverload(t *testing.T) {
	o := New(DefaultConfig())
	f := activeFrame(1, 0.2)
	f.Severities = map[string]contracts.Severity{"gamma_power": contracts.SeverityRisk}
	ann, err := o.ProcessFrame(f)
	require.NoError(t, err)
	require.Contains(t, ann.Tags, contracts.TagGammaOverload)
	require.Contains(t, ann.Tags, contracts.TagCognitiveOverload) // wave high + RISK axis
}

func TestTagsWindowedRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PastWindow, cfg.GapEpochs, cfg.RecentWindow = 3, 1, 2
	o := New(cfg)

	overloaded := func(epoch uint64) Frame {
		f := activeFrame(epoch, 0.85)
		f.Assets.Fear = 0.8
		f.Assets.Pain = 0.6
		f.Assets.Lifeforce = 0.15
		return f
	}
	relaxed := func(epoch uint64) Frame {
		f := activeFrame(epoch, 0.3)
		f.Assets.Fear = 0.2
		f.Assets.Pain = 0.2
		f.Assets.Lifeforce = 0.7
		return f
	}

	var epoch uint64
	next := func(mk func(uint64) Frame) contracts.DiagnosticAnnotation {
		epoch++
		ann, err := o.ProcessFrame(mk(epoch))
		require.NoError(t, err)
		return ann
	}

	for i := 0; i < 3; i++ {
		next(overloaded)
	}
	next(relaxed) // gap
	next(relaxed) // recent window fills on the second relaxed epoch
	ann := next(relaxed)
	require.Contains(t, ann.Tags, contracts.TagRecovery)
}

func TestTagsAreClosedVocabulary(t *testing.T) {
	known := map[contracts.DiagnosticTag]bool{}
	for _, tag := range contracts.KnownTags {
		known[tag] = true
	}

	o := New(DefaultConfig())
	for epoch := uint64(1); epoch <= 50; epoch++ {
		decay := float64(epoch%10) / 10
		ann, err := o.ProcessFrame(activeFrame(epoch, decay))
		require.NoError(t, err)
		for _, tag := range ann.Tags {
			require.True(t, known[tag], "unknown tag %q", tag)
		}
	}
}

// captureSink records annotations delivered by the consumer.
type captureSink struct {
	mu   sync.Mutex
	anns []contracts.DiagnosticAnnotation
}

func (s *captureSink) Annotate(_ context.Context, a contracts.DiagnosticAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anns = append(s.anns, a)
	return nil
}

func (s *captureSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.anns)
}

func TestConsumerDeliversAnnotations(t *testing.T) {
	sink := &captureSink{}
	c := NewConsumer(New(DefaultConfig()), sink, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.Publish(activeFrame(1, 0.60))
	c.Publish(activeFrame(2, 0.70))

	require.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-c.Done()
}

func TestConsumerPublishNeverBlocks(t *testing.T) {
	// No Run goroutine at all: the queue fills and old frames are dropped,
	// but Publish returns promptly every time.
	c := NewConsumer(New(DefaultConfig()), &captureSink{}, 2, nil)

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 100; i++ {
			c.Publish(activeFrame(i, 0.5))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no consumer running")
	}
	require.NotZero(t, c.Dropped())
}

func TestConsumerFlushDrainsQueuedFrames(t *testing.T) {
	sink := &captureSink{}
	c := NewConsumer(New(DefaultConfig()), sink, 8, nil)

	c.Publish(activeFrame(1, 0.60))
	c.Publish(activeFrame(2, 0.70))

	c.Flush(context.Background())
	require.Equal(t, 2, sink.len())
}

func TestConsumerIsolatesFrameErrors(t *testing.T) {
	sink := &captureSink{}
	c := NewConsumer(New(DefaultConfig()), sink, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	good1 := activeFrame(1, 0.60)
	bad := activeFrame(2, 0.70)
	bad.EpochDurationSeconds = -1
	good2 := activeFrame(3, 0.72)

	c.Publish(good1)
	c.Publish(bad)
	c.Publish(good2)

	// The bad epoch degrades to an absent annotation; its neighbors survive.
	require.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-c.Done()
}
