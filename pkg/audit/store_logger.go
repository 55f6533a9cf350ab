package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// AnnotationStream writes the diagnostic annotation stream as JSONL for
// dashboards and chat front-ends. Consumers must treat every field as
// advisory; nothing in the stream is a decision input. Satisfies the
// overlay's Annotator interface so it can be wired as a sink directly.
type AnnotationStream struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewAnnotationStream(w io.Writer) *AnnotationStream {
	return &AnnotationStream{writer: w}
}

// Annotate appends one annotation line.
func (s *AnnotationStream) Annotate(_ context.Context, a contracts.DiagnosticAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bytes, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.writer.Write(append(bytes, '\n'))
	return err
}

// Tee fans an annotation out to several sinks, e.g. the ledger side table
// plus the JSONL stream. The first error wins but all sinks are attempted.
type Tee []interface {
	Annotate(ctx context.Context, a contracts.DiagnosticAnnotation) error
}

func (t Tee) Annotate(ctx context.Context, a contracts.DiagnosticAnnotation) error {
	var firstErr error
	for _, sink := range t {
		if err := sink.Annotate(ctx, a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
