package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Failure kinds carried in Result.FailureKind. Timeout and handler error share
// one result shape so callers never branch on exceptions.
const (
	FailureTimeout = "timeout"
	FailureError   = "error"
)

// Result is the uniform outcome of an execution. Handler errors and timeouts
// both land here with OK=false; Execute itself only returns an error when the
// capability id is not registered at all.
type Result struct {
	OK          bool            `json:"ok"`
	Output      json.RawMessage `json:"output,omitempty"`
	FailureKind string          `json:"failureKind,omitempty"`
	Detail      string          `json:"detail,omitempty"`
	HandlerID   string          `json:"handlerId"`
	ElapsedMs   int64           `json:"executionTimeMs"`
}

// Execute races the handler against globalTimeout (bounded further by the
// definition's own timeout when smaller). A handler that resolves after the
// deadline has its result discarded; there is no mid-flight cancellation beyond
// the context handed to it.
func (r *Registry) Execute(ctx context.Context, id string, in Context, globalTimeout time.Duration) (Result, error) {
	def, ok := r.Get(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnresolved, id)
	}

	timeout := globalTimeout
	if def.Timeout > 0 && def.Timeout < timeout {
		timeout = def.Timeout
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)
	started := time.Now()

	go func() {
		out, err := def.Handler(runCtx, in)
		done <- outcome{output: out, err: err}
	}()

	select {
	case <-runCtx.Done():
		return Result{
			OK:          false,
			FailureKind: FailureTimeout,
			Detail:      fmt.Sprintf("handler %q exceeded %s", id, timeout),
			HandlerID:   id,
			ElapsedMs:   time.Since(started).Milliseconds(),
		}, nil
	case o := <-done:
		elapsed := time.Since(started).Milliseconds()
		if o.err != nil {
			return Result{
				OK:          false,
				FailureKind: FailureError,
				Detail:      o.err.Error(),
				HandlerID:   id,
				ElapsedMs:   elapsed,
			}, nil
		}
		return Result{
			OK:        true,
			Output:    o.output,
			HandlerID: id,
			ElapsedMs: elapsed,
		}, nil
	}
}
