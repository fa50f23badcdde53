// Package audit is the best-effort activity trail. Writes happen off the
// request path and their failures are logged, never returned.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OutcomeOK marks a successful operation. Failed operations carry their error code.
const OutcomeOK = "ok"

// Entry is one audited action.
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   int64
	ActorID      int64
	ActorRole    string
	Outcome      string
	Detail       string
	At           time.Time
}

// Sink persists entries somewhere.
type Sink interface {
	Log(ctx context.Context, e Entry) error
}

// Recorder hands entries to a Sink on a separate goroutine.
type Recorder struct {
	sink Sink
	log  *zap.Logger
	wg   sync.WaitGroup
}

// NewRecorder wraps sink. A nil logger falls back to the global zap logger.
func NewRecorder(sink Sink, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.L()
	}
	return &Recorder{sink: sink, log: log}
}

// Record schedules e for writing and returns immediately. The request
// context's cancellation is detached so a finished request does not abort
// the write.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	ctx = context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log.Warn("audit sink panicked", zap.String("action", e.Action), zap.Any("panic", p))
			}
		}()
		if err := r.sink.Log(ctx, e); err != nil {
			r.log.Warn("audit log failed",
				zap.String("action", e.Action),
				zap.String("resource_type", e.ResourceType),
				zap.Int64("resource_id", e.ResourceID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until all scheduled writes have finished. Call it on shutdown.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
