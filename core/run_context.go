package core

import (
	"context"
	"time"

	"github.com/hupe1980/threadmem/logging"
)

// RunContext carries the per-run execution scope handed to the steps of one
// conversation turn. It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (RunID, ThreadID, ResourceID)
//   - The run's own RuntimeContainer
//
// A RunContext is created fresh for every run and must not be reused after
// the run completes. Derived contexts (WithContext) share the container since
// they belong to the same run.
type RunContext struct {
	Context    context.Context
	RunID      string
	ThreadID   string
	ResourceID string
	StartedAt  time.Time
	Container  *RuntimeContainer

	*loggerAdapter
}

// NewRunContext constructs a RunContext with an empty container bound to schema.
func NewRunContext(ctx context.Context, threadID, resourceID string, schema *Schema, logger logging.Logger) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := NewID()
	if logger != nil {
		logger = logging.ForRun(logger, threadID, runID)
	}
	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		ThreadID:      threadID,
		ResourceID:    resourceID,
		StartedAt:     time.Now().UTC(),
		Container:     NewRuntimeContainer(schema),
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns a container value.
func (rc *RunContext) GetState(k string) (any, bool) { return rc.Container.Get(k) }

// SetState stores a container value, validated against the run schema.
func (rc *RunContext) SetState(k string, v any) error { return rc.Container.Set(k, v) }

// WithContext returns a shallow copy bound to ctx that shares the container.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx
	return &c
}

type runContextKey struct{}

// WithRunContext attaches rc to ctx so components deeper in the call chain can
// read the run's container.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFrom extracts the RunContext attached by WithRunContext.
func RunContextFrom(ctx context.Context) (*RunContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(*RunContext)
	return rc, ok && rc != nil
}
